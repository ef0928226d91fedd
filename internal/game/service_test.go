package game

import (
	"testing"

	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Game{}))
	return NewService(NewRepository(db)), db
}

func ptr[T any](v T) *T { return &v }

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	g, err := svc.Create(1, CreateInput{Title: "Hades"})
	require.NoError(t, err)
	assert.Equal(t, StatusBacklog, g.Status)
	assert.Equal(t, SourceManual, g.Source)
	assert.Nil(t, g.Rating)
}

func TestCreateValidatesRating(t *testing.T) {
	svc, _ := newTestService(t)

	// 半分粒度合法
	_, err := svc.Create(1, CreateInput{Title: "A", Rating: ptr(4.5)})
	require.NoError(t, err)

	for _, bad := range []float64{-0.5, 5.5, 4.3} {
		_, err := svc.Create(1, CreateInput{Title: "B", Rating: ptr(bad)})
		assert.ErrorIs(t, err, ErrInvalidRating, "rating=%v", bad)
	}
}

func TestCreateValidatesStatus(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(1, CreateInput{Title: "A", Status: Status("archived")})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdatePartial(t *testing.T) {
	svc, _ := newTestService(t)

	g, err := svc.Create(1, CreateInput{Title: "Hades", Rating: ptr(4.0), Notes: "roguelike"})
	require.NoError(t, err)

	// 只改状态，其余字段不动
	updated, err := svc.Update(1, g.ID, UpdateInput{Status: ptr(StatusPlaying)})
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, updated.Status)
	assert.Equal(t, "Hades", updated.Title)
	require.NotNil(t, updated.Rating)
	assert.Equal(t, 4.0, *updated.Rating)

	// 清除评分
	updated, err = svc.Update(1, g.ID, UpdateInput{ClearRating: true})
	require.NoError(t, err)
	assert.Nil(t, updated.Rating)
}

func TestUpdateScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t)

	g, err := svc.Create(1, CreateInput{Title: "Hades"})
	require.NoError(t, err)

	// 其他用户看不到也改不了这个条目
	_, err = svc.Update(2, g.ID, UpdateInput{Title: ptr("Stolen")})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(2, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDeleteExcludedFromReads(t *testing.T) {
	svc, db := newTestService(t)

	g, err := svc.Create(1, CreateInput{Title: "Hades"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(1, g.ID))

	_, err = svc.Get(1, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	games, total, err := svc.List(1, ListFilter{}, pagination.Normalize(1, 20))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, games)

	// 行仍在表中，只是打了删除标记
	var count int64
	require.NoError(t, db.Unscoped().Model(&Game{}).Where("id = ?", g.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 重复删除返回未找到
	assert.ErrorIs(t, svc.Delete(1, g.ID), ErrNotFound)
}

func TestListFilterAndSort(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(1, CreateInput{Title: "Alpha", Status: StatusPlaying, HoursPlayed: 10})
	require.NoError(t, err)
	_, err = svc.Create(1, CreateInput{Title: "Beta", Status: StatusBacklog, HoursPlayed: 5})
	require.NoError(t, err)
	_, err = svc.Create(1, CreateInput{Title: "Gamma", Status: StatusPlaying, HoursPlayed: 20})
	require.NoError(t, err)

	// 状态过滤
	games, total, err := svc.List(1, ListFilter{Status: StatusPlaying}, pagination.Normalize(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, games, 2)

	// 标题检索
	_, total, err = svc.List(1, ListFilter{Search: "amm"}, pagination.Normalize(1, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// 按时长升序
	games, _, err = svc.List(1, ListFilter{SortBy: "hoursPlayed", Order: "asc"}, pagination.Normalize(1, 20))
	require.NoError(t, err)
	require.Len(t, games, 3)
	assert.Equal(t, "Beta", games[0].Title)
	assert.Equal(t, "Gamma", games[2].Title)
}

func TestListPagination(t *testing.T) {
	svc, _ := newTestService(t)

	for _, title := range []string{"A", "B", "C"} {
		_, err := svc.Create(1, CreateInput{Title: title})
		require.NoError(t, err)
	}

	games, total, err := svc.List(1, ListFilter{}, pagination.Normalize(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, games, 1)
}

func TestOverviewStats(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(1, CreateInput{Title: "A", Rating: ptr(4.0), HoursPlayed: 10, Status: StatusCompleted})
	require.NoError(t, err)
	_, err = svc.Create(1, CreateInput{Title: "B", Rating: ptr(5.0), HoursPlayed: 30, Status: StatusPlaying})
	require.NoError(t, err)
	_, err = svc.Create(1, CreateInput{Title: "C", HoursPlayed: 2})
	require.NoError(t, err)
	// 其他用户的条目不参与统计
	_, err = svc.Create(2, CreateInput{Title: "D", HoursPlayed: 100})
	require.NoError(t, err)

	stats, err := svc.Overview(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalGames)
	assert.InDelta(t, 42.0, stats.TotalHours, 0.01)
	assert.Equal(t, int64(2), stats.RatedGames)
	assert.InDelta(t, 4.5, stats.AverageRating, 0.01)
	assert.Equal(t, int64(1), stats.StatusCounts[StatusCompleted])
	assert.Equal(t, int64(1), stats.StatusCounts[StatusPlaying])
	assert.Equal(t, int64(1), stats.StatusCounts[StatusBacklog])
	assert.Equal(t, int64(3), stats.ManuallyAdded)
	assert.Zero(t, stats.ImportedGames)
}
