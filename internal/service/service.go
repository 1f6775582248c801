// Package service contains the business logic layer of the application.
//
//	Handler / GraphQL resolver → parses requests, writes responses
//	Service                    → validates, enforces rules, owns transactions
//	Repository                 → reads/writes the database
//
// Services take the repository.Store interface, never *sqlite.DB, and the
// caller's identity as an explicit *auth.Identity argument. Nothing here
// reads request-scoped globals.
package service

import (
	"unicode/utf8"

	"github.com/sakif/support-desk/internal/repository"
)

// Paging defaults shared by paged listings.
const (
	DefaultPage     = 1
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// Page is one page of a listing plus the total number of matches.
type Page[T any] struct {
	Items []T
	Total int
}

// pageOptions clamps page and size into a repository.ListOptions.
func pageOptions(page, size int) repository.ListOptions {
	if page < 1 {
		page = DefaultPage
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return repository.ListOptions{Limit: size, Offset: (page - 1) * size}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
