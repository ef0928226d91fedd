package user

import (
	"time"

	"gorm.io/gorm"
)

// User 定义了用户账号在数据库中的持久化模型。
type User struct {
	gorm.Model

	// Email 是登录凭证，全局唯一
	Email string `gorm:"uniqueIndex;not null;type:varchar(255)"`

	// Username 是展示名，全局唯一
	Username string `gorm:"uniqueIndex;not null;type:varchar(64)"`

	// PasswordHash 是bcrypt散列后的密码
	PasswordHash string `gorm:"not null"`

	// IsPublic 控制该账号的游戏库是否对外公开
	IsPublic bool `gorm:"default:false;index"`

	// --- Steam账号绑定字段，由 link/unlink 流程填充和清空 ---

	// SteamID 是绑定的SteamID64；未绑定时为NULL。
	// 唯一索引保证同一个Steam账号只能绑定到一个用户。
	SteamID *string `gorm:"uniqueIndex;type:varchar(32)"`

	// SteamPersonaName 是绑定时抓取的Steam昵称
	SteamPersonaName string `gorm:"type:varchar(255)"`

	// SteamAvatarURL 是绑定时抓取的头像地址
	SteamAvatarURL string `gorm:"type:varchar(512)"`

	// SteamLinkedAt 记录绑定完成的时间
	SteamLinkedAt *time.Time

	// SteamSyncEnabled 控制是否允许对该账号执行库同步
	SteamSyncEnabled bool `gorm:"default:true"`

	// LastSyncAt 是最近一次成功同步的时间
	LastSyncAt *time.Time
}

// RefreshToken 定义了持久化的刷新令牌。
// 每次登录或轮换都会删除该用户的旧记录，数据库中始终只保留最新的一条。
type RefreshToken struct {
	gorm.Model

	UserID uint `gorm:"index;not null"`

	// Token 是签名后的JWT刷新令牌原文
	Token string `gorm:"uniqueIndex;not null;type:varchar(512)"`

	// ExpiresAt 与令牌内部的过期时间一致，便于直接按时间清理
	ExpiresAt time.Time `gorm:"not null"`
}
