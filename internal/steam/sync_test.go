package steam

import (
	"context"
	"testing"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSyncTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库是按连接隔离的，限制连接池避免表丢失
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&user.User{}, &game.Game{}, &SyncRun{}))
	return db
}

func newLinkedUser(t *testing.T, db *gorm.DB) *user.User {
	t.Helper()
	steamID := "76561198000000001"
	now := time.Now()
	u := &user.User{
		Email:            "sync@test.com",
		Username:         "syncer",
		PasswordHash:     "x",
		SteamID:          &steamID,
		SteamLinkedAt:    &now,
		SteamSyncEnabled: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// fakeFetcher 返回固定的库存数据。
type fakeFetcher struct {
	owned *OwnedGames
	err   error
}

func (f *fakeFetcher) GetOwnedGames(_ context.Context, _ string) (*OwnedGames, error) {
	return f.owned, f.err
}

func newTestSynchronizer(db *gorm.DB, fetcher libraryFetcher, cooldown time.Duration) *Synchronizer {
	return NewSynchronizer(db, user.NewRepository(db), game.NewRepository(db), fetcher, SynchronizerConfig{
		Cooldown: cooldown,
	})
}

func ownedGame(appID uint, name string, minutes int, lastPlayed time.Time) OwnedGame {
	return OwnedGame{
		AppID:           appID,
		Name:            name,
		PlaytimeMinutes: minutes,
		LastPlayedUnix:  lastPlayed.Unix(),
	}
}

func TestInferStatus(t *testing.T) {
	now := time.Now()
	threeDaysAgo := now.Add(-3 * 24 * time.Hour)
	fortyDaysAgo := now.Add(-40 * 24 * time.Hour)

	cases := []struct {
		name       string
		minutes    int
		lastPlayed *time.Time
		want       game.Status
	}{
		{"没玩过", 0, &threeDaysAgo, game.StatusBacklog},
		{"没有最后游玩记录", 120, nil, game.StatusBacklog},
		{"最近玩过", 120, &threeDaysAgo, game.StatusPlaying},
		{"时长超过10小时且很久没玩", 700, &fortyDaysAgo, game.StatusCompleted},
		{"时长不足且很久没玩", 50, &fortyDaysAgo, game.StatusBacklog},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, InferStatus(c.minutes, c.lastPlayed, now))
		})
	}
}

func TestSyncImportsNewEntries(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	fetcher := &fakeFetcher{owned: &OwnedGames{Count: 2, Games: []OwnedGame{
		ownedGame(400, "Portal", 300, time.Now().Add(-2*24*time.Hour)),
		ownedGame(620, "Portal 2", 0, time.Time{}),
	}}}
	s := newTestSynchronizer(db, fetcher, time.Minute)

	summary, err := s.Sync(context.Background(), u.ID, SyncOptions{UpdatePlaytime: true})
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, summary.Status)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Imported)
	assert.Empty(t, summary.ItemErrors)
	require.NotNil(t, summary.CompletedAt)

	// 导入的条目带完整的来源字段和推断状态
	entry, err := game.NewRepository(db).FindBySteamApp(u.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, "Portal", entry.Title)
	assert.Equal(t, game.SourceSteam, entry.Source)
	assert.Equal(t, game.StatusPlaying, entry.Status)
	assert.Equal(t, 300, entry.SteamPlaytimeMinutes)
	assert.InDelta(t, 5.0, entry.HoursPlayed, 0.01)
	assert.Equal(t, CoverImageURL(400), entry.SteamImageURL)

	// 账号盖上了最后同步时间
	reloaded, err := user.NewRepository(db).FindByID(u.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastSyncAt)
}

func TestSyncMonotonicRatchet(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	appID := uint(400)
	existing := &game.Game{
		UserID:               u.ID,
		Title:                "Portal",
		HoursPlayed:          10,
		Status:               game.StatusCompleted,
		Source:               game.SourceSteam,
		SteamAppID:           &appID,
		SteamPlaytimeMinutes: 300,
		SteamImageURL:        CoverImageURL(appID),
	}
	require.NoError(t, db.Create(existing).Error)

	// 上游报告的分钟数低于已记录值：不得降低时长
	fetcher := &fakeFetcher{owned: &OwnedGames{Count: 1, Games: []OwnedGame{
		ownedGame(appID, "Portal", 250, time.Now()),
	}}}
	s := newTestSynchronizer(db, fetcher, time.Millisecond)

	summary, err := s.Sync(context.Background(), u.ID, SyncOptions{UpdatePlaytime: true})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)

	entry, err := game.NewRepository(db).FindBySteamApp(u.ID, appID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, entry.HoursPlayed, 0.01)
	assert.Equal(t, 300, entry.SteamPlaytimeMinutes)

	// 上游报告的分钟数更高：时长棘轮上升到 max(10, 700/60)
	time.Sleep(2 * time.Millisecond)
	fetcher.owned.Games[0].PlaytimeMinutes = 700
	summary, err = s.Sync(context.Background(), u.ID, SyncOptions{UpdatePlaytime: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	entry, err = game.NewRepository(db).FindBySteamApp(u.ID, appID)
	require.NoError(t, err)
	assert.InDelta(t, 11.7, entry.HoursPlayed, 0.01)
	assert.Equal(t, 700, entry.SteamPlaytimeMinutes)
}

func TestSyncIdempotence(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	fetcher := &fakeFetcher{owned: &OwnedGames{Count: 1, Games: []OwnedGame{
		ownedGame(400, "Portal", 300, time.Now()),
	}}}
	s := newTestSynchronizer(db, fetcher, time.Millisecond)

	first, err := s.Sync(context.Background(), u.ID, SyncOptions{UpdatePlaytime: true})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	// 冷却过后用相同的上游数据重复同步：不产生新导入，也不产生重复条目
	time.Sleep(2 * time.Millisecond)
	second, err := s.Sync(context.Background(), u.ID, SyncOptions{UpdatePlaytime: true})
	require.NoError(t, err)
	assert.Equal(t, RunSuccess, second.Status)
	assert.Equal(t, 0, second.Imported)

	var count int64
	require.NoError(t, db.Model(&game.Game{}).
		Where("user_id = ? AND steam_app_id = ?", u.ID, 400).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSyncCooldown(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	fetcher := &fakeFetcher{owned: &OwnedGames{}}
	s := newTestSynchronizer(db, fetcher, time.Hour)

	ok, _, err := s.CanSync(u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Sync(context.Background(), u.ID, SyncOptions{})
	require.NoError(t, err)

	// 冷却期内拒绝，并报告下次可同步的时间
	ok, retryAt, err := s.CanSync(u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, retryAt.After(time.Now()))
}

func TestSyncFailedRunDoesNotBlockCooldown(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	// 拉取失败：运行落为error终态
	fetcher := &fakeFetcher{err: assert.AnError}
	s := newTestSynchronizer(db, fetcher, time.Hour)

	summary, err := s.Sync(context.Background(), u.ID, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, RunError, summary.Status)
	assert.NotEmpty(t, summary.Error)
	assert.Zero(t, summary.Processed)

	// error运行不占用冷却
	ok, _, err := s.CanSync(u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncRequiresLinkedAccount(t *testing.T) {
	db := newSyncTestDB(t)
	u := &user.User{Email: "plain@test.com", Username: "plain", PasswordHash: "x"}
	require.NoError(t, db.Create(u).Error)

	s := newTestSynchronizer(db, &fakeFetcher{}, time.Hour)

	summary, err := s.Sync(context.Background(), u.ID, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, RunError, summary.Status)
}

func TestSyncPrivateProfile(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	// 资料不公开时客户端返回 (nil, nil)
	s := newTestSynchronizer(db, &fakeFetcher{owned: nil}, time.Hour)

	summary, err := s.Sync(context.Background(), u.ID, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, RunError, summary.Status)
	assert.Contains(t, summary.Error, "不公开")
}

func TestSyncMinPlaytimeThreshold(t *testing.T) {
	db := newSyncTestDB(t)
	u := newLinkedUser(t, db)

	fetcher := &fakeFetcher{owned: &OwnedGames{Count: 2, Games: []OwnedGame{
		ownedGame(400, "Portal", 5, time.Now()),
		ownedGame(620, "Portal 2", 120, time.Now()),
	}}}
	s := newTestSynchronizer(db, fetcher, time.Hour)

	summary, err := s.Sync(context.Background(), u.ID, SyncOptions{MinPlaytimeMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Skipped)
}

func TestMarkStrandedRuns(t *testing.T) {
	db := newSyncTestDB(t)

	require.NoError(t, db.Create(&SyncRun{UserID: 1, Status: RunPending, StartedAt: time.Now()}).Error)
	require.NoError(t, db.Create(&SyncRun{UserID: 2, Status: RunSuccess, StartedAt: time.Now()}).Error)

	n, err := MarkStrandedRuns(db, "服务重启")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var run SyncRun
	require.NoError(t, db.Where("user_id = ?", 1).First(&run).Error)
	assert.Equal(t, RunError, run.Status)
	assert.Equal(t, "服务重启", run.Error)
	assert.NotNil(t, run.CompletedAt)
}
