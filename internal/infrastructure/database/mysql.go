package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"loyaltyledger/internal/config"
	"loyaltyledger/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// name 字段要求区分大小写，MySQL 建表统一使用 utf8mb4_bin
const mysqlTableOptions = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin"

// InitMySQL 初始化 MySQL 连接
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(ParseLogLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("连接 MySQL 失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("获取底层 DB 失败: %v", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db.Set("gorm:table_options", mysqlTableOptions)); err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	log.Println("MySQL 连接成功")
	return db
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Account{},
		&model.PointTransaction{},
		&model.Reward{},
		&model.Redemption{},
		&model.OutboxMessage{},
	)
}

// SeedCatalog 写入初始奖励目录，已存在的奖励保持不变
func SeedCatalog(ctx context.Context, db *gorm.DB, rewards []model.Reward) error {
	if len(rewards) == 0 {
		return nil
	}
	items := make([]model.Reward, len(rewards))
	copy(items, rewards)

	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&items)
	if result.Error != nil {
		return result.Error
	}
	log.Printf("[Catalog] 奖励目录初始化完成: 新增 %d 项", result.RowsAffected)
	return nil
}

// ParseLogLevel 将配置中的日志级别转换为 gorm 日志级别
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
