package steam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// metadataTTL 是缓存的商店元数据被视为过期的时间。
const metadataTTL = 24 * time.Hour

// AppMetadata 缓存Steam商店的应用描述性元数据。
// 以AppID为主键，超过24小时未刷新视为过期，按需重新拉取。
type AppMetadata struct {
	AppID uint `gorm:"primarykey"`

	Name             string `gorm:"type:varchar(255)"`
	HeaderImage      string `gorm:"type:varchar(512)"`
	ShortDescription string `gorm:"type:text"`
	// Developers / Publishers / Genres 以逗号拼接保存
	Developers  string `gorm:"type:varchar(512)"`
	Publishers  string `gorm:"type:varchar(512)"`
	Genres      string `gorm:"type:varchar(512)"`
	ReleaseDate string `gorm:"type:varchar(64)"`
	Price       string `gorm:"type:varchar(64)"`
	Metacritic  int

	// RefreshedAt 是最近一次从商店拉取的时间
	RefreshedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stale 判断缓存行是否已过期。
func (m *AppMetadata) Stale(now time.Time) bool {
	return now.Sub(m.RefreshedAt) >= metadataTTL
}

// detailsFetcher 抽象出元数据缓存对客户端的依赖，便于测试。
type detailsFetcher interface {
	GetAppDetails(ctx context.Context, appID uint) (*AppDetails, error)
}

// MetadataCache 管理商店元数据的读取与机会性刷新。
type MetadataCache struct {
	db      *gorm.DB
	fetcher detailsFetcher
}

// NewMetadataCache 创建元数据缓存服务。
func NewMetadataCache(db *gorm.DB, fetcher detailsFetcher) *MetadataCache {
	return &MetadataCache{db: db, fetcher: fetcher}
}

// Get 返回一个应用的元数据。
// 缓存新鲜时直接返回；过期或缺失时穿透到商店并回写缓存。
// force 为 true 时跳过新鲜度检查，总是重新拉取。
// 商店侧不存在该应用时返回 (nil, nil)。
func (mc *MetadataCache) Get(ctx context.Context, appID uint, force bool) (*AppMetadata, error) {
	var cached *AppMetadata
	var row AppMetadata
	err := mc.db.First(&row, appID).Error
	switch {
	case err == nil:
		cached = &row
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 缓存未命中，继续穿透
	default:
		return nil, fmt.Errorf("读取元数据缓存失败: %w", err)
	}

	// 1. 缓存命中且仍然新鲜
	if cached != nil && !force && !cached.Stale(time.Now()) {
		return cached, nil
	}

	// 2. 穿透到商店
	details, err := mc.fetcher.GetAppDetails(ctx, appID)
	if err != nil {
		// 拉取失败时退回过期的缓存行（有总比没有好）
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	if details == nil {
		// 商店侧不存在：保留已有缓存，否则如实返回"没有"
		return cached, nil
	}

	// 3. 回写缓存（upsert）
	fresh := AppMetadata{
		AppID:            appID,
		Name:             details.Name,
		HeaderImage:      details.HeaderImage,
		ShortDescription: details.ShortDescription,
		Developers:       strings.Join(details.Developers, ", "),
		Publishers:       strings.Join(details.Publishers, ", "),
		Genres:           strings.Join(details.Genres, ", "),
		ReleaseDate:      details.ReleaseDate,
		Price:            details.Price,
		Metacritic:       details.MetacriticScore,
		RefreshedAt:      time.Now(),
	}
	err = mc.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "app_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "header_image", "short_description", "developers",
			"publishers", "genres", "release_date", "price", "metacritic",
			"refreshed_at", "updated_at",
		}),
	}).Create(&fresh).Error
	if err != nil {
		return nil, fmt.Errorf("写入元数据缓存失败: %w", err)
	}
	return &fresh, nil
}
