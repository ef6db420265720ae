package model

import (
	"cleancycle/internal/config"
	"cleancycle/internal/entity"
	"cleancycle/internal/model/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
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

const defaultSQLitePath = "datas/cleancycle.db"

// InitRepository 打开 DBType 对应的数据库并迁移 kv_entry 表
func InitRepository(cfg *config.Config) (Repository, error) {
	dialector, maxOpenConns, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := openGormDB(dialector, maxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBType, err)
	}
	if err := db.AutoMigrate(&entity.DbKVEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv_entry: %w", err)
	}

	logrus.WithField("db_type", cfg.DBType).Info("key-value table ready")
	return sql.NewGormRepository(db), nil
}

// dialectorFor 返回方言与连接池上限，SQLite 同一时间只允许一个写入者
func dialectorFor(cfg *config.Config) (gorm.Dialector, int, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case "":
		return nil, 0, errors.New("database type is empty")
	case DBTypeSQLite:
		path, err := sqlitePath(cfg.DBPath)
		if err != nil {
			return nil, 0, err
		}
		return sqlite.Open(path), 1, nil
	case DBTypeMySQL:
		return mysql.Open(mysqlDSN(cfg)), 25, nil
	case DBTypePostgres:
		return postgres.Open(postgresDSN(cfg)), 25, nil
	default:
		return nil, 0, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
}

// sqlitePath 确保数据库文件所在目录存在
func sqlitePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}
	return path, nil
}

func mysqlDSN(cfg *config.Config) string {
	if dsn := strings.TrimSpace(cfg.DSNURL); dsn != "" {
		return dsn
	}
	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.DBUser
	dsn.Passwd = cfg.DBPassword
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.DBAddr, cfg.DBPort)
	dsn.DBName = cfg.DBName
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

func postgresDSN(cfg *config.Config) string {
	if dsn := strings.TrimSpace(cfg.DSNURL); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + cfg.DBAddr,
		"user=" + cfg.DBUser,
		"password=" + cfg.DBPassword,
		"dbname=" + cfg.DBName,
		"port=" + cfg.DBPort,
		"sslmode=disable",
		"TimeZone=UTC",
	}
	return strings.Join(parts, " ")
}

func openGormDB(dialector gorm.Dialector, maxOpenConns int) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(min(maxOpenConns, 5))
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
