package game

import (
	"errors"
	"fmt"

	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"gorm.io/gorm"
)

// ErrNotFound 表示目标条目不存在或不属于当前用户。
var ErrNotFound = errors.New("游戏条目不存在")

// Repository 封装了game模块的全部数据库访问。
// 所有查询都以UserID为前置条件，软删除的行默认被GORM排除。
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建一个游戏库仓库。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create 插入一个新条目。
func (r *Repository) Create(g *Game) error {
	return r.db.Create(g).Error
}

// Save 保存对条目的修改。
func (r *Repository) Save(g *Game) error {
	return r.db.Save(g).Error
}

// FindForUser 查找属于给定用户的单个条目。
func (r *Repository) FindForUser(userID, gameID uint) (*Game, error) {
	var g Game
	err := r.db.Where("user_id = ?", userID).First(&g, gameID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询游戏条目失败: %w", err)
	}
	return &g, nil
}

// FindBySteamApp 查找用户名下某个Steam应用对应的未删除条目。
func (r *Repository) FindBySteamApp(userID, appID uint) (*Game, error) {
	var g Game
	err := r.db.Where("user_id = ? AND steam_app_id = ?", userID, appID).First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询游戏条目失败: %w", err)
	}
	return &g, nil
}

// SteamSourced 返回用户名下所有从Steam导入的条目。
func (r *Repository) SteamSourced(userID uint) ([]Game, error) {
	var games []Game
	err := r.db.Where("user_id = ? AND source = ?", userID, SourceSteam).Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("查询Steam导入条目失败: %w", err)
	}
	return games, nil
}

// SoftDelete 软删除一个条目（只打标记，不物理删除）。
func (r *Repository) SoftDelete(userID, gameID uint) error {
	result := r.db.Where("user_id = ?", userID).Delete(&Game{}, gameID)
	if result.Error != nil {
		return fmt.Errorf("删除游戏条目失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter 描述列表查询的筛选和排序条件。
type ListFilter struct {
	Status Status // 为空表示不过滤
	Search string // 标题模糊匹配
	SortBy string // title / rating / hoursPlayed / createdAt（默认）
	Order  string // asc / desc（默认）
}

// 允许的排序字段到数据库列的映射，防止拼接任意列名
var sortColumns = map[string]string{
	"title":       "title",
	"rating":      "rating",
	"hoursPlayed": "hours_played",
	"createdAt":   "created_at",
}

// ListForUser 返回用户游戏库的一页数据和总数。
func (r *Repository) ListForUser(userID uint, filter ListFilter, p pagination.Params) ([]Game, int64, error) {
	base := r.db.Model(&Game{}).Where("user_id = ?", userID)
	if filter.Status != "" {
		base = base.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		base = base.Where("title LIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计游戏条目失败: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "desc"
	if filter.Order == "asc" {
		direction = "asc"
	}

	var games []Game
	err := base.Order(column + " " + direction).Offset(p.Offset()).Limit(p.Limit).Find(&games).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询游戏列表失败: %w", err)
	}
	return games, total, nil
}

// Stats 是单个用户游戏库的聚合统计。
type Stats struct {
	TotalGames    int64            `json:"totalGames"`
	TotalHours    float64          `json:"totalHours"`
	AverageRating float64          `json:"averageRating"`
	RatedGames    int64            `json:"ratedGames"`
	StatusCounts  map[Status]int64 `json:"statusCounts"`
	ImportedGames int64            `json:"importedGames"`
	ManuallyAdded int64            `json:"manuallyAdded"`
}

// StatsForUser 计算用户游戏库的聚合统计。
func (r *Repository) StatsForUser(userID uint) (*Stats, error) {
	stats := &Stats{StatusCounts: map[Status]int64{
		StatusPlaying:   0,
		StatusCompleted: 0,
		StatusDropped:   0,
		StatusBacklog:   0,
	}}

	base := func() *gorm.DB { return r.db.Model(&Game{}).Where("user_id = ?", userID) }

	// 1. 总数与总时长
	type totals struct {
		Count int64
		Hours float64
	}
	var t totals
	err := base().Select("COUNT(*) as count, COALESCE(SUM(hours_played), 0) as hours").Scan(&t).Error
	if err != nil {
		return nil, fmt.Errorf("统计游戏库总量失败: %w", err)
	}
	stats.TotalGames = t.Count
	stats.TotalHours = t.Hours

	// 2. 平均评分（只统计已评分的条目）
	type ratingAgg struct {
		Count int64
		Avg   float64
	}
	var ra ratingAgg
	err = base().Where("rating IS NOT NULL").
		Select("COUNT(*) as count, COALESCE(AVG(rating), 0) as avg").Scan(&ra).Error
	if err != nil {
		return nil, fmt.Errorf("统计评分失败: %w", err)
	}
	stats.RatedGames = ra.Count
	stats.AverageRating = ra.Avg

	// 3. 各状态的条目数
	type statusRow struct {
		Status Status
		Count  int64
	}
	var rows []statusRow
	err = base().Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计状态分布失败: %w", err)
	}
	for _, row := range rows {
		stats.StatusCounts[row.Status] = row.Count
	}

	// 4. 来源分布
	if err := base().Where("source = ?", SourceSteam).Count(&stats.ImportedGames).Error; err != nil {
		return nil, fmt.Errorf("统计导入条目失败: %w", err)
	}
	stats.ManuallyAdded = stats.TotalGames - stats.ImportedGames

	return stats, nil
}
