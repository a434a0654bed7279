package model

import (
	"errors"
	"fmt"
	"genstudio/internal/config"
	"genstudio/internal/entity"
	"genstudio/internal/model/sql"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DBTypeMySQL    = "mysql"
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
)

// RepositoryFactory 根据数据库类型创建对应的仓库实现
type RepositoryFactory struct{}

// NewRepositoryFactory 创建新的仓库工厂
func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

// InitRepository 初始化仓库的辅助函数
func InitRepository(cfg *config.Config) (Repository, error) {
	if cfg == nil || strings.TrimSpace(cfg.DBType) == "" {
		return nil, errors.New("database type is not configured")
	}
	return NewRepositoryFactory().CreateRepository(cfg)
}

// CreateRepository 根据配置创建对应的仓库实现
func (f *RepositoryFactory) CreateRepository(cfg *config.Config) (Repository, error) {
	var (
		dialector gorm.Dialector
		err       error
	)
	switch strings.ToLower(cfg.DBType) {
	case DBTypeMySQL:
		dialector = mysql.Open(mysqlDSN(cfg))
	case DBTypeSQLite:
		dialector, err = sqliteDialector(cfg)
	case DBTypePostgres:
		dialector = postgres.Open(postgresDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
	if err != nil {
		return nil, err
	}

	db, err := f.openGormDB(dialector, strings.EqualFold(cfg.DBType, DBTypeSQLite))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBType, err)
	}

	// 自动迁移数据库表结构
	if err := MigrateSchema(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return sql.NewGormRepository(db), nil
}

func mysqlDSN(cfg *config.Config) string {
	if cfg.DSNURL != "" {
		return cfg.DSNURL
	}
	// 从各个配置项构建 DSN
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBAddr, cfg.DBPort, cfg.DBName)
}

func postgresDSN(cfg *config.Config) string {
	if cfg.DSNURL != "" {
		return cfg.DSNURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBAddr, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
}

func sqliteDialector(cfg *config.Config) (gorm.Dialector, error) {
	filePath := cfg.DBPath
	if filePath == "" {
		filePath = "datas/genstudio.db"
	}

	// SQLite 会自动创建 .db 文件，但目录必须已存在
	if dir := filepath.Dir(filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	// 扣费事务需要等待写锁而不是立即失败
	if !strings.Contains(filePath, "?") {
		filePath += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	return sqlite.Open(filePath), nil
}

func (f *RepositoryFactory) openGormDB(dialector gorm.Dialector, singleWriter bool) (*gorm.DB, error) {
	// GORM 日志输出到 logrus
	gormLogger := logger.New(
		log.New(logrus.StandardLogger().WriterLevel(logrus.WarnLevel), "", 0),
		logger.Config{
			SlowThreshold:             time.Second * 5,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gormLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true, // 使用单数表名
		},
	})
	if err != nil {
		return nil, err
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if singleWriter {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// MigrateSchema 创建或更新账户与生成结果表
func MigrateSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.DbUser{},
		&entity.DbArtifact{},
	)
}
