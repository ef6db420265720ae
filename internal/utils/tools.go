package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NormalizeEmail 去掉首尾空白，大小写保持原样
func NormalizeEmail(value string) string {
	return strings.TrimSpace(value)
}

// ContainsFold 不区分大小写的子串匹配，空关键字视为命中
func ContainsFold(value, keyword string) bool {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(keyword))
}

func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateUniqueID 生成不在 exists 中的新 ID
func GenerateUniqueID(exists func(string) bool) string {
	for {
		id := GenerateUUID()
		if exists == nil || !exists(id) {
			return id
		}
	}
}
