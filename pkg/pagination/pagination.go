package pagination

import (
	"net/http"
	"strconv"
)

// Params holds the listing parameters read from the query string.
type Params struct {
	Page       int `json:"page"`
	CategoryID int `json:"category_id"`
}

// DefaultParams returns the first page across all categories.
func DefaultParams() Params {
	return Params{Page: 1}
}

// FromRequest reads ?page= and ?category= from the request. Invalid or
// non-positive values fall back to the defaults.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if page := q.Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = v
		}
	}

	if cat := q.Get("category"); cat != "" {
		if v, err := strconv.Atoi(cat); err == nil && v > 0 {
			p.CategoryID = v
		}
	}

	return p
}

// Window describes where the current page sits among totalPages.
type Window struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

// NewWindow builds a Window. The page is reported as given even when it
// lies beyond totalPages.
func NewWindow(page, totalPages int) Window {
	return Window{
		CurrentPage: page,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}
}
