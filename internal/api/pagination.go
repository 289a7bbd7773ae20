package api

import "net/http"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parsePagination(r *http.Request, defaultPerPage, maxPerPage int) (page, perPage int) {
	page = parsePositiveInt(r.URL.Query().Get("page"), 1)
	perPage = parsePositiveInt(r.URL.Query().Get("per_page"), defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	var n int
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return fallback
		}
		n = n*10 + int(ch-'0')
		if n > 1_000_000 {
			return fallback
		}
	}
	if n <= 0 {
		return fallback
	}
	return n
}

type pageResponse[T any] struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Items   []T `json:"items"`
}

func newPage[T any](items []T, page, perPage int) pageResponse[T] {
	if items == nil {
		items = []T{}
	}
	return pageResponse[T]{Page: page, PerPage: perPage, Items: items}
}
