package storage

import (
	"cleancycle/internal/config"
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// TypeLocal 表示本地文件系统存储。
	TypeLocal = "local"
	// TypeMemory 表示进程内存储，进程退出即丢失。
	TypeMemory = "memory"
	// TypeS3 表示 Amazon S3 或兼容的存储后端。
	TypeS3 = "s3"
	// TypeOSS 表示阿里云 OSS 存储。
	TypeOSS = "oss"
	// TypeCOS 表示腾讯云 COS 存储。
	TypeCOS = "cos"
	// TypeR2 表示 Cloudflare R2 存储。
	TypeR2 = "r2"
	// TypeMongo 表示 MongoDB 集合存储。
	TypeMongo = "mongo"
	// TypeDB 表示 SQL 数据库存储，由 model 包实现。
	TypeDB = "db"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = errors.New("storage: key not found")

// Storage 是以字符串为值的键值持久化抽象，对应前端的 localStorage。
//
// Get 在键不存在时返回 ErrNotFound；Delete 删除不存在的键不视为错误。
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Closer 由持有外部连接的存储驱动实现。
type Closer interface {
	Close(ctx context.Context) error
}

// NewStorage 根据配置实例化存储后端（db 类型除外，见 model.InitRepository）。
func NewStorage(ctx context.Context, cfg config.Config) (Storage, error) {
	typeName := strings.ToLower(strings.TrimSpace(cfg.StorageType))
	switch typeName {
	case "", TypeLocal:
		return NewLocalStorage(cfg.StorageLocalDir)
	case TypeMemory:
		return NewMemoryStorage(), nil
	case TypeS3:
		return NewS3Storage(cfg)
	case TypeOSS:
		return NewOSSStorage(cfg)
	case TypeCOS:
		return NewCOSStorage(cfg)
	case TypeR2:
		return NewR2Storage(cfg)
	case TypeMongo:
		return NewMongoStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: empty key")
	}
	return nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
