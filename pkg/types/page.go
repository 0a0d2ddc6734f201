package types

import "fmt"

const (
	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"

	defaultPageSize = 10
	maxPageSize     = 200
)

// PageRequest is the paging and filtering input of admin list endpoints.
type PageRequest struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

// Normalize clamps paging values and checks filters and sort column against allowed.
func (p *PageRequest) Normalize(allowed map[string]bool) error {
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	if p.From < 0 {
		p.From = 0
	}
	for _, f := range p.Filters {
		if err := f.Validate(allowed); err != nil {
			return err
		}
	}
	if p.SortBy != "" && !allowed[p.SortBy] {
		return fmt.Errorf("sort by field %q is not allowed", p.SortBy)
	}
	if p.SortOrder != "" && p.SortOrder != SortOrderAsc && p.SortOrder != SortOrderDesc {
		return fmt.Errorf("unsupported sort order %q", p.SortOrder)
	}
	return nil
}
