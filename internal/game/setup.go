package game

import (
	"fmt"

	"gorm.io/gorm"
)

// PrimeDB 负责迁移game模块的数据库表结构。
func PrimeDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&Game{}); err != nil {
		return fmt.Errorf("无法迁移game表: %w", err)
	}
	fmt.Println("Game数据库表迁移成功。")
	return nil
}
