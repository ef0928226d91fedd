package user

import (
	"fmt"

	"gorm.io/gorm"
)

// PrimeDB 负责迁移user模块的数据库表结构。
func PrimeDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &RefreshToken{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	fmt.Println("User数据库表迁移成功。")
	return nil
}
