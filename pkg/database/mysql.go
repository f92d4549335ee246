package database

import (
	"fmt"
	"time"

	"assistant-console-go/internal/model"
	"assistant-console-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenMySQL 建立 MySQL 连接、配置连接池，并迁移助手表结构。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	if err := db.AutoMigrate(&model.Assistant{}); err != nil {
		return nil, fmt.Errorf("failed to migrate assistants table: %w", err)
	}

	log.Info("MySQL database connected successfully")
	return db, nil
}
