package storage

import (
	"path"
	"strings"
)

const objectExtension = "json"

func sanitizePathSegment(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(len(value))
	for i := 0; i < len(value); i++ {
		ch := value[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			builder.WriteByte(ch)
		case ch >= 'A' && ch <= 'Z':
			builder.WriteByte(ch + 32)
		case ch == '-', ch == '_', ch == '.':
			builder.WriteByte(ch)
		}
	}
	return strings.Trim(builder.String(), ".")
}

// objectName 将存储键映射为文件名，例如 cleancycle_all_users.json
func objectName(key string) string {
	return sanitizePathSegment(key) + "." + objectExtension
}

// objectKey 返回带前缀的对象存储键
func objectKey(prefix, key string) string {
	return joinPrefix(prefix, objectName(key))
}

func joinPrefix(prefix, key string) string {
	cleanPrefix := trimPrefix(prefix)
	if cleanPrefix == "" {
		return strings.TrimLeft(key, "/")
	}
	return path.Join(cleanPrefix, strings.TrimLeft(key, "/"))
}

func trimPrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}
