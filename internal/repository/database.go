package repository

import (
	"context"
	"fmt"

	"github.com/ceyewan/minichat/internal/clog"
	"github.com/ceyewan/minichat/internal/config"
	"github.com/ceyewan/minichat/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database 数据库管理器
type Database struct {
	db     *gorm.DB
	logger clog.Logger
}

// NewDatabase 创建数据库管理器
func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	log := clog.Module("database")

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
		// SQLite 使用单连接，避免并发写锁冲突
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Error("创建数据库连接失败", clog.Err(err))
		return nil, fmt.Errorf("创建数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接池失败: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	log.Info("数据库连接创建成功", clog.String("driver", cfg.Driver))
	return &Database{db: db, logger: log}, nil
}

// GetDB 获取数据库连接
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Migrate 执行数据库迁移
func (d *Database) Migrate(ctx context.Context) error {
	d.logger.Info("开始执行数据库迁移...")

	err := d.db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.Group{},
		&model.GroupMember{},
		&model.Message{},
	)
	if err != nil {
		d.logger.Error("数据库迁移失败", clog.Err(err))
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	d.logger.Info("数据库迁移完成")
	return nil
}

// Transaction 执行事务
func (d *Database) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(fn)
}

// Ping 检查数据库连接
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	d.logger.Info("关闭数据库连接")
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
