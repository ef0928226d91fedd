package steam

import (
	"fmt"

	"github.com/SlpAus/gametracker-backend/internal/platform/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PrimeDB 迁移steam模块的表结构，并清理上次停机时滞留的同步记录。
func PrimeDB(db *gorm.DB) error {
	// 1. 迁移表结构
	if err := db.AutoMigrate(&SyncRun{}, &AppMetadata{}); err != nil {
		return fmt.Errorf("无法迁移steam模块的表: %w", err)
	}

	// 2. 上次进程非正常退出时，pending的运行会滞留，启动时补记终态
	stranded, err := MarkStrandedRuns(db, "服务重启，同步中断")
	if err != nil {
		return err
	}
	if stranded > 0 {
		logger.L().Warn("启动时清理了滞留的同步记录", zap.Int64("count", stranded))
	}
	return nil
}
