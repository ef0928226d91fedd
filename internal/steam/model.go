package steam

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RunStatus 是一次同步的状态。
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// SyncRun 记录一次库同步的审计信息。
// 表是只追加的：除了落终态（success/error）和计数之外，行不会被修改。
type SyncRun struct {
	gorm.Model

	UserID uint `gorm:"not null;index"`

	Status RunStatus `gorm:"type:varchar(16);index;default:pending"`

	// 各结果的条目计数
	Processed int
	Imported  int
	Updated   int
	Skipped   int

	// Error 是失败时的说明文本
	Error string `gorm:"type:text"`

	StartedAt   time.Time `gorm:"not null;index"`
	CompletedAt *time.Time
}

// MarkStrandedRuns 把仍处于pending的运行标记为error。
// 在启动时和优雅停机的最后一步调用，保证审计记录不会滞留在中间状态。
func MarkStrandedRuns(db *gorm.DB, reason string) (int64, error) {
	now := time.Now()
	result := db.Model(&SyncRun{}).
		Where("status = ?", RunPending).
		Updates(map[string]interface{}{
			"status":       RunError,
			"error":        reason,
			"completed_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("清理滞留的同步记录失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}
