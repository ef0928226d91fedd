package game

import (
	"time"

	"gorm.io/gorm"
)

// Status 是库条目的生命周期状态。
type Status string

const (
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusDropped   Status = "dropped"
	StatusBacklog   Status = "backlog"
)

// ValidStatus 判断给定的状态值是否合法。
func ValidStatus(s Status) bool {
	switch s {
	case StatusPlaying, StatusCompleted, StatusDropped, StatusBacklog:
		return true
	}
	return false
}

// Source 标记条目的来源。
type Source string

const (
	SourceManual Source = "manual"
	SourceSteam  Source = "steam"
)

// Game 定义了用户游戏库中的一个条目。
// gorm.Model 的 DeletedAt 提供软删除语义：删除只打标记，
// 默认查询自动排除已删除的行。
type Game struct {
	gorm.Model

	// UserID 标识条目所属的账号
	UserID uint `gorm:"not null;index;index:idx_games_user_app,priority:1"`

	Title string `gorm:"not null;type:varchar(255);index"`

	// Rating 是0到5之间、步长0.5的评分；未评分时为NULL
	Rating *float64

	// HoursPlayed 是用户可编辑的游玩时长（小时）
	HoursPlayed float64

	Status Status `gorm:"type:varchar(16);index;default:backlog"`

	// CoverURL 是封面图地址，可以来自上传或Steam CDN
	CoverURL string `gorm:"type:varchar(512)"`

	// Notes 是用户的自由备注
	Notes string `gorm:"type:text"`

	// Source 标记条目是手动添加还是从Steam导入
	Source Source `gorm:"type:varchar(16);default:manual"`

	// --- Steam导入来源字段，与用户可编辑字段分开保存 ---

	// SteamAppID 是导入来源的Steam应用ID；手动条目为NULL。
	// 同一账号下同一应用最多只有一条未删除的记录（由同步逻辑保证）。
	SteamAppID *uint `gorm:"index:idx_games_user_app,priority:2"`

	// SteamPlaytimeMinutes 是Steam报告的累计游玩分钟数
	SteamPlaytimeMinutes int

	// SteamLastPlayed 是Steam报告的最后游玩时间
	SteamLastPlayed *time.Time

	// SteamImageURL 是Steam侧的封面地址，和用户上传的CoverURL分开保存
	SteamImageURL string `gorm:"type:varchar(512)"`
}
