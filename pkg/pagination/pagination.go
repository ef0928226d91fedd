// Package pagination 提供分页参数的归一化和分页元信息的计算。
package pagination

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params 是经过钳制的分页参数。
// 页码从1开始；limit被限制在 [1, MaxLimit] 之内。
type Params struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// Normalize 将任意输入钳制为合法的分页参数。
// 零值（未传参）会得到默认值。
func Normalize(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}
}

// Offset 返回SQL查询使用的偏移量。
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta 是随列表响应一起返回的分页元信息。
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewMeta 根据总数计算分页元信息。
// totalPages = ceil(total/limit)；hasNext/hasPrev与页边界保持一致。
func NewMeta(p Params, total int64) Meta {
	totalPages := 0
	if total > 0 {
		limit := int64(p.Limit)
		pages := total / limit
		if total%limit != 0 {
			pages++
		}
		totalPages = int(pages)
	}
	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1 && total > 0,
	}
}
