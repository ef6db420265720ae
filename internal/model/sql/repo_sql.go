package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cleancycle/internal/entity"
	"cleancycle/internal/storage"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository 基于 GORM 的键值存储实现
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new repository instance
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Get(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage key is empty")
	}

	var entry entity.DbKVEntry
	err := r.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("query kv entry %s: %w", key, err)
	}
	return entry.Value, nil
}

func (r *GormRepository) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("storage key is empty")
	}

	now := time.Now()
	entry := entity.DbKVEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert kv entry %s: %w", key, err)
	}
	return nil
}

// Delete 删除键，不存在时不报错
func (r *GormRepository) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("storage key is empty")
	}

	if err := r.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&entity.DbKVEntry{}).Error; err != nil {
		return fmt.Errorf("delete kv entry %s: %w", key, err)
	}
	return nil
}

func (r *GormRepository) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
