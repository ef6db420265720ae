package entity

// Re-export common types from the common package.

import (
	"cleancycle/internal/entity/common"
)

// Type aliases for common types
type StringArray = common.StringArray
type Meta = common.Meta
type BaseParams = common.BaseParams
