package pagination

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

type Pagination struct {
	Limit  int `form:"limit,default=50" binding:"gte=1,lte=100"`
	Offset int `form:"offset,default=0" binding:"gte=0"`
}

type PageInfo struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	NextOffset *int `json:"next_offset,omitempty"`
	HasMore    bool `json:"has_more"`
}

// Normalize clamps limit and offset into the accepted window.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// BuildOffsetPageInfo expects data to have been fetched with limit+1 rows and
// trims it to limit.
func BuildOffsetPageInfo[T any](data []T, p Pagination) ([]T, PageInfo) {
	info := PageInfo{Limit: p.Limit, Offset: p.Offset}
	if len(data) > p.Limit {
		data = data[:p.Limit]
		next := p.Offset + p.Limit
		info.HasMore = true
		info.NextOffset = &next
	}
	return data, info
}
