package discovery

import (
	"fmt"
	"time"

	"github.com/SlpAus/gametracker-backend/internal/game"
	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository 封装面向公开库的跨用户查询。
// 所有查询只覆盖 is_public 的账号；软删除的条目和账号都被排除。
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建一个公开发现仓库。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// publicGames 构造公开游戏库的基础查询。
// games 上的软删除由GORM自动排除，users 上的需要显式条件。
func (r *Repository) publicGames() *gorm.DB {
	return r.db.Model(&game.Game{}).
		Joins("JOIN users ON users.id = games.user_id AND users.deleted_at IS NULL").
		Where("users.is_public = ?", true)
}

// PopularGame 是按标题聚合后的公开游戏条目。
type PopularGame struct {
	Title         string  `json:"title"`
	CoverURL      string  `json:"coverUrl"`
	Owners        int64   `json:"owners"`
	AverageRating float64 `json:"averageRating"`
}

// 聚合查询共用的列选择：封面取任意一条非空的，评分只统计已评分的行
const popularSelect = "games.title AS title, " +
	"MAX(CASE WHEN games.cover_url <> '' THEN games.cover_url ELSE games.steam_image_url END) AS cover_url, " +
	"COUNT(*) AS owners, " +
	"COALESCE(AVG(games.rating), 0) AS average_rating"

// Popular 返回公开库中被最多用户收藏的游戏（按标题聚合）。
func (r *Repository) Popular(p pagination.Params) ([]PopularGame, int64, error) {
	var total int64
	if err := r.publicGames().Distinct("games.title").Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计公开游戏数失败: %w", err)
	}

	var rows []PopularGame
	err := r.publicGames().
		Select(popularSelect).
		Group("games.title").
		Order("owners DESC, title ASC").
		Offset(p.Offset()).Limit(p.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询热门游戏失败: %w", err)
	}
	return rows, total, nil
}

// Search 在公开库中按标题模糊检索，结果与Popular同样按标题聚合。
func (r *Repository) Search(query string, p pagination.Params) ([]PopularGame, int64, error) {
	pattern := "%" + query + "%"

	var total int64
	err := r.publicGames().Where("games.title LIKE ?", pattern).
		Distinct("games.title").Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("统计检索结果失败: %w", err)
	}

	var rows []PopularGame
	err = r.publicGames().Where("games.title LIKE ?", pattern).
		Select(popularSelect).
		Group("games.title").
		Order("owners DESC, title ASC").
		Offset(p.Offset()).Limit(p.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("检索公开游戏失败: %w", err)
	}
	return rows, total, nil
}

// RecentGame 是公开库中新近添加的一条游戏记录。
type RecentGame struct {
	Title    string    `json:"title"`
	CoverURL string    `json:"coverUrl"`
	Username string    `json:"username"`
	AddedAt  time.Time `json:"addedAt"`
}

// Recent 返回公开库中最新添加的游戏条目（不聚合，带归属用户名）。
func (r *Repository) Recent(p pagination.Params) ([]RecentGame, int64, error) {
	var total int64
	if err := r.publicGames().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计公开条目数失败: %w", err)
	}

	var rows []RecentGame
	err := r.publicGames().
		Select("games.title AS title, " +
			"CASE WHEN games.cover_url <> '' THEN games.cover_url ELSE games.steam_image_url END AS cover_url, " +
			"users.username AS username, " +
			"games.created_at AS added_at").
		Order("games.created_at DESC").
		Offset(p.Offset()).Limit(p.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询最新条目失败: %w", err)
	}
	return rows, total, nil
}

// PublicStats 是整个公开社区的聚合统计。
type PublicStats struct {
	PublicUsers   int64   `json:"publicUsers"`
	TotalGames    int64   `json:"totalGames"`
	UniqueTitles  int64   `json:"uniqueTitles"`
	TotalHours    float64 `json:"totalHours"`
	AverageRating float64 `json:"averageRating"`
}

// Stats 计算公开社区的整体统计。
func (r *Repository) Stats() (*PublicStats, error) {
	stats := &PublicStats{}

	// 1. 公开账号数
	err := r.db.Table("users").
		Where("is_public = ? AND deleted_at IS NULL", true).
		Count(&stats.PublicUsers).Error
	if err != nil {
		return nil, fmt.Errorf("统计公开账号数失败: %w", err)
	}

	// 2. 条目总量与总时长
	type totals struct {
		Count int64
		Hours float64
	}
	var t totals
	err = r.publicGames().
		Select("COUNT(*) AS count, COALESCE(SUM(games.hours_played), 0) AS hours").
		Scan(&t).Error
	if err != nil {
		return nil, fmt.Errorf("统计公开条目总量失败: %w", err)
	}
	stats.TotalGames = t.Count
	stats.TotalHours = t.Hours

	// 3. 去重后的标题数
	if err := r.publicGames().Distinct("games.title").Count(&stats.UniqueTitles).Error; err != nil {
		return nil, fmt.Errorf("统计标题数失败: %w", err)
	}

	// 4. 公开条目的平均评分
	var ra struct {
		AverageRating float64
	}
	err = r.publicGames().Where("games.rating IS NOT NULL").
		Select("COALESCE(AVG(games.rating), 0) AS average_rating").
		Scan(&ra).Error
	if err != nil {
		return nil, fmt.Errorf("统计平均评分失败: %w", err)
	}
	stats.AverageRating = ra.AverageRating

	return stats, nil
}
