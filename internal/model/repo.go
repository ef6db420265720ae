package model

import (
	"context"
)

// Repository 定义 SQL 键值存储操作接口，与 storage.Storage 方法集一致
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
