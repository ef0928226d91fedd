package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/gametracker-backend/pkg/pagination"
	"gorm.io/gorm"
)

// ErrNotFound 表示目标用户不存在。
var ErrNotFound = errors.New("用户不存在")

// Repository 封装了user模块的全部数据库访问。
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建一个用户仓库。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB 暴露底层连接，供需要跨模块联表的查询使用。
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Create 插入一个新用户。
func (r *Repository) Create(u *User) error {
	return r.db.Create(u).Error
}

// Save 保存对用户的修改。
func (r *Repository) Save(u *User) error {
	return r.db.Save(u).Error
}

// FindByID 按主键查找用户。
func (r *Repository) FindByID(id uint) (*User, error) {
	var u User
	if err := r.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// FindByEmail 按邮箱查找用户。
func (r *Repository) FindByEmail(email string) (*User, error) {
	var u User
	if err := r.db.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// FindByUsername 按用户名查找用户。
func (r *Repository) FindByUsername(username string) (*User, error) {
	var u User
	if err := r.db.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// FindBySteamID 查找绑定了给定SteamID的用户。
func (r *Repository) FindBySteamID(steamID string) (*User, error) {
	var u User
	if err := r.db.Where("steam_id = ?", steamID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// SearchPublic 在公开账号中按用户名模糊搜索，返回一页结果和总数。
func (r *Repository) SearchPublic(query string, p pagination.Params) ([]User, int64, error) {
	base := r.db.Model(&User{}).Where("is_public = ?", true)
	if query != "" {
		base = base.Where("username LIKE ?", "%"+query+"%")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计用户总数失败: %w", err)
	}

	var users []User
	err := base.Order("username asc").Offset(p.Offset()).Limit(p.Limit).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("搜索用户失败: %w", err)
	}
	return users, total, nil
}

// --- 刷新令牌 ---

// ReplaceRefreshToken 删除用户的全部旧刷新令牌并写入新的一条。
// 登录和轮换共用这条路径，保证旧令牌立即失效。
func (r *Repository) ReplaceRefreshToken(userID uint, tokenStr string, expiresAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&RefreshToken{}).Error; err != nil {
			return fmt.Errorf("删除旧刷新令牌失败: %w", err)
		}
		rt := RefreshToken{UserID: userID, Token: tokenStr, ExpiresAt: expiresAt}
		if err := tx.Create(&rt).Error; err != nil {
			return fmt.Errorf("写入新刷新令牌失败: %w", err)
		}
		return nil
	})
}

// FindRefreshToken 查找一条持久化的刷新令牌。
func (r *Repository) FindRefreshToken(tokenStr string) (*RefreshToken, error) {
	var rt RefreshToken
	if err := r.db.Where("token = ?", tokenStr).First(&rt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询刷新令牌失败: %w", err)
	}
	return &rt, nil
}

// DeleteRefreshTokens 删除用户的全部刷新令牌（登出）。
func (r *Repository) DeleteRefreshTokens(userID uint) error {
	return r.db.Unscoped().Where("user_id = ?", userID).Delete(&RefreshToken{}).Error
}
