// Package paging defines page requests and the two page shapes the REST
// contract uses.
package paging

import (
	"net/http"

	"github.com/platinummonkey/crmgate/pkg/httputil"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 200
	// MaxPage keeps (Page-1)*PageSize far from overflowing
	MaxPage = 1_000_000
)

// Params is a 1-based page request
type Params struct {
	Page     int
	PageSize int
}

// Normalize clamps the request to valid bounds
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset is the number of rows to skip
func (p Params) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// Limit is the number of rows to fetch
func (p Params) Limit() int {
	return p.Normalize().PageSize
}

// FromRequest reads ?page and ?pageSize
func FromRequest(r *http.Request) (Params, error) {
	page, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil {
		return Params{}, err
	}
	size, err := httputil.ParseQueryInt(r, "pageSize", DefaultPageSize)
	if err != nil {
		return Params{}, err
	}
	return Params{Page: page, PageSize: size}.Normalize(), nil
}

// Page is the normalized page shape
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// NewPage builds a page from one slice of rows and the filtered total
func NewPage[T any](items []T, total int, p Params) Page[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		TotalCount: total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: totalPages(total, p.PageSize),
	}
}

// Empty is a page with no rows
func Empty[T any](p Params) Page[T] {
	return NewPage[T](nil, 0, p)
}

func totalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// PagedResult is the paginated wire shape served under /api
type PagedResult[T any] struct {
	Results     []T `json:"results"`
	CurrentPage int `json:"currentPage"`
	PageCount   int `json:"pageCount"`
	PageSize    int `json:"pageSize"`
	RowCount    int `json:"rowCount"`
}

// ToResult converts a page to the wire shape
func (p Page[T]) ToResult() PagedResult[T] {
	return PagedResult[T]{
		Results:     p.Items,
		CurrentPage: p.Page,
		PageCount:   p.TotalPages,
		PageSize:    p.PageSize,
		RowCount:    p.TotalCount,
	}
}

// ToPage converts the wire shape back to a page
func (r PagedResult[T]) ToPage() Page[T] {
	items := r.Results
	if items == nil {
		items = []T{}
	}
	pages := r.PageCount
	if pages == 0 {
		pages = totalPages(r.RowCount, r.PageSize)
	}
	return Page[T]{
		Items:      items,
		TotalCount: r.RowCount,
		Page:       r.CurrentPage,
		PageSize:   r.PageSize,
		TotalPages: pages,
	}
}

// FromSlice wraps a bare array as a single page
func FromSlice[T any](items []T) Page[T] {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	pages := 0
	if n > 0 {
		pages = 1
	}
	return Page[T]{
		Items:      items,
		TotalCount: n,
		Page:       1,
		PageSize:   n,
		TotalPages: pages,
	}
}
