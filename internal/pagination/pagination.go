// Package pagination splits listings into pages.
package pagination

import (
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Pager describes one page of a listing. CurrentPage is reported as
// requested, so a page past the end is an empty page, not the last one.
type Pager struct {
	TotalItems  int `json:"totalItems"`
	CurrentPage int `json:"page"`
	PageSize    int `json:"pageSize"`
	TotalPages  int `json:"totalPages"`
}

// ParseParams reads page and page size query values, falling back to page 1
// and DefaultPageSize and capping the size at MaxPageSize.
func ParseParams(page, size string) (int, int) {
	p, err := strconv.Atoi(strings.TrimSpace(page))
	if err != nil || p < 1 {
		p = 1
	}
	s, err := strconv.Atoi(strings.TrimSpace(size))
	if err != nil || s < 1 {
		s = DefaultPageSize
	}
	if s > MaxPageSize {
		s = MaxPageSize
	}
	return p, s
}

func NewPager(totalItems, currentPage, pageSize int) Pager {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if currentPage < 1 {
		currentPage = 1
	}
	if totalItems < 0 {
		totalItems = 0
	}
	return Pager{
		TotalItems:  totalItems,
		CurrentPage: currentPage,
		PageSize:    pageSize,
		TotalPages:  (totalItems + pageSize - 1) / pageSize,
	}
}

// Offset is the number of items before the current page.
func (p Pager) Offset() int {
	return (p.CurrentPage - 1) * p.PageSize
}

// HasNext reports whether a page follows the current one.
func (p Pager) HasNext() bool {
	return p.CurrentPage < p.TotalPages
}
