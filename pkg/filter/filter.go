// Package filter narrows in-memory book and member lists for display.
package filter

import "strings"

// Field selects which attributes a query is matched against.
type Field string

const (
	FieldTitle  Field = "title"
	FieldAuthor Field = "author"
	FieldAny    Field = "any"
)

// ParseField maps user input to a Field. Unknown input means FieldAny.
func ParseField(s string) Field {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "title", "name":
		return FieldTitle
	case "author":
		return FieldAuthor
	default:
		return FieldAny
	}
}

// Record is anything the engine can search.
type Record interface {
	SearchFields() []string
}

// Titled records expose a primary label (book title, member name).
type Titled interface {
	Record
	SearchTitle() string
}

// Authored records expose an author.
type Authored interface {
	Record
	SearchAuthor() string
}

type Query struct {
	Text  string
	Field Field
}

// Empty reports whether the query matches everything.
func (q Query) Empty() bool { return strings.TrimSpace(q.Text) == "" }

// Apply returns the records matching q, in source order. The source slice is not modified.
// An empty query returns every record.
func Apply[T Record](items []T, q Query) []T {
	out := make([]T, 0, len(items))
	if q.Empty() {
		return append(out, items...)
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	for _, item := range items {
		if Match(item, needle, q.Field) {
			out = append(out, item)
		}
	}
	return out
}

// Match reports whether item contains the lowercased needle in the targeted field(s).
// A record without the targeted field never matches.
func Match(item Record, needle string, field Field) bool {
	switch field {
	case FieldTitle:
		t, ok := item.(Titled)
		return ok && contains(t.SearchTitle(), needle)
	case FieldAuthor:
		a, ok := item.(Authored)
		return ok && contains(a.SearchAuthor(), needle)
	}
	for _, v := range item.SearchFields() {
		if contains(v, needle) {
			return true
		}
	}
	return false
}

func contains(value, needle string) bool {
	return strings.Contains(strings.ToLower(value), needle)
}

// Page returns at most limit items starting at offset. limit <= 0 means no limit.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}
