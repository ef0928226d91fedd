package discovery

import (
	"testing"

	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&user.User{}, &game.Game{}))
	return NewRepository(db), db
}

// seedCommunity 建立两个公开账号和一个私有账号，以及它们的游戏库。
func seedCommunity(t *testing.T, db *gorm.DB) {
	t.Helper()

	alice := &user.User{Email: "a@t.com", Username: "alice", PasswordHash: "x", IsPublic: true}
	bob := &user.User{Email: "b@t.com", Username: "bob", PasswordHash: "x", IsPublic: true}
	carol := &user.User{Email: "c@t.com", Username: "carol", PasswordHash: "x", IsPublic: false}
	for _, u := range []*user.User{alice, bob, carol} {
		require.NoError(t, db.Create(u).Error)
	}

	rating := func(v float64) *float64 { return &v }
	entries := []*game.Game{
		{UserID: alice.ID, Title: "Hades", Rating: rating(5), HoursPlayed: 30, Status: game.StatusCompleted},
		{UserID: bob.ID, Title: "Hades", Rating: rating(4), HoursPlayed: 10, Status: game.StatusPlaying},
		{UserID: alice.ID, Title: "Celeste", HoursPlayed: 8, Status: game.StatusBacklog},
		// 私有账号的条目不应出现在任何公开查询里
		{UserID: carol.ID, Title: "Secret Game", Rating: rating(1), HoursPlayed: 99},
	}
	for _, g := range entries {
		require.NoError(t, db.Create(g).Error)
	}
}

func TestPopularAggregatesAcrossPublicUsers(t *testing.T) {
	repo, db := newTestRepo(t)
	seedCommunity(t, db)

	rows, total, err := repo.Popular(pagination.Normalize(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	// Hades有两个公开拥有者，排在最前
	assert.Equal(t, "Hades", rows[0].Title)
	assert.Equal(t, int64(2), rows[0].Owners)
	assert.InDelta(t, 4.5, rows[0].AverageRating, 0.01)
	assert.Equal(t, "Celeste", rows[1].Title)
}

func TestSearchOnlyPublicLibraries(t *testing.T) {
	repo, db := newTestRepo(t)
	seedCommunity(t, db)

	rows, total, err := repo.Search("Hades", pagination.Normalize(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Owners)

	// 私有账号的条目检索不到
	_, total, err = repo.Search("Secret", pagination.Normalize(1, 20))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRecentListsEntriesWithOwner(t *testing.T) {
	repo, db := newTestRepo(t)
	seedCommunity(t, db)

	rows, total, err := repo.Recent(pagination.Normalize(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEmpty(t, row.Username)
		assert.NotEqual(t, "carol", row.Username)
	}
}

func TestPublicStats(t *testing.T) {
	repo, db := newTestRepo(t)
	seedCommunity(t, db)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PublicUsers)
	assert.Equal(t, int64(3), stats.TotalGames)
	assert.Equal(t, int64(2), stats.UniqueTitles)
	assert.InDelta(t, 48.0, stats.TotalHours, 0.01)
	assert.InDelta(t, 4.5, stats.AverageRating, 0.01)
}
