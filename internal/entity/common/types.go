package common

// StringArray 是无重复语义由调用方维护的字符串集合（如 readBy、targetUsers）。
type StringArray []string

// ToSlice 返回底层切片的副本。
func (a StringArray) ToSlice() []string {
	if len(a) == 0 {
		return []string{}
	}
	out := make([]string, len(a))
	copy(out, a)
	return out
}

// Contains 检查数组是否包含给定的字符串。
func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}

// With 返回追加 s 后的新数组；已包含时原样返回副本。
func (a StringArray) With(s string) StringArray {
	out := StringArray(a.ToSlice())
	if out.Contains(s) {
		return out
	}
	return append(out, s)
}

// Meta 包含分页元数据。
type Meta struct {
	Page     int64 `json:"page"`
	PageSize int64 `json:"page_size"`
	Total    int64 `json:"total"`
}

// BaseParams 包含通用的分页参数。
type BaseParams struct {
	PageSize int64 `json:"page_size" form:"page_size" query:"page_size"`
	Page     int64 `json:"page" form:"page" query:"page"`
}

// Normalize 填充默认分页参数并限制最大页大小。
func (p *BaseParams) Normalize() {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// Window 返回 total 条记录在当前分页下的 [start, end) 区间。
func (p BaseParams) Window(total int) (int, int) {
	start := int((p.Page - 1) * p.PageSize)
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + int(p.PageSize)
	if end > total {
		end = total
	}
	return start, end
}
