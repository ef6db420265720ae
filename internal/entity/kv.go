package entity

import "time"

// DbKVEntry 是 SQL 后端中的一条键值记录。
type DbKVEntry struct {
	Key       string    `gorm:"column:entry_key;type:varchar(191);primaryKey" json:"key"`
	Value     string    `gorm:"column:value;type:text;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名。
func (DbKVEntry) TableName() string {
	return "kv_entry"
}
