package domain

// Pagination request
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (p *PageRequest) Offset() int {
	if p.Page < 1 {
		p.Page = 1
	}
	return (p.Page - 1) * p.Limit()
}

func (p *PageRequest) Limit() int {
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	if p.PageSize > 500 {
		p.PageSize = 500
	}
	return p.PageSize
}

// Pagination response
type PageResponse struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func NewPageResponse(page, pageSize, totalItems int) *PageResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = totalItems / pageSize
		if totalItems%pageSize > 0 {
			totalPages++
		}
	}
	return &PageResponse{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// Paginate returns the window of items selected by req.
func Paginate[T any](items []T, req *PageRequest) []T {
	offset, limit := req.Offset(), req.Limit()
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
