package query

import (
	"context"
)

// Status is the outcome of a search
type Status int

const (
	// StatusEmpty is a successful search without matches.
	StatusEmpty Status = iota
	// StatusComplete returns every match in the requested window.
	StatusComplete
	// StatusPartial returns fewer matches than exist because the result was
	// truncated to the configured maximum.
	StatusPartial
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusComplete:
		return "COMPLETE"
	case StatusPartial:
		return "PARTIAL"
	}
	return "UNKNOWN"
}

// Page is the window requested by the caller.
type Page struct {
	// MaxResults bounds the matches of one response; 0 means unbounded.
	MaxResults int
	Offset     int
	// Limit is the requested number of matches; 0 or less means all.
	Limit   int
	OrderBy []Order
}

// Paginate applies page to a built session and executes it. It counts the
// matches only when MaxResults may truncate the response, and never executes
// a query whose offset is past the last match.
func Paginate(ctx context.Context, s *Session, page Page) (Status, error) {
	limit := max(page.Limit, 0)
	offset := max(page.Offset, 0)

	partial := false
	if page.MaxResults > 0 && (limit == 0 || limit > page.MaxResults) {
		count, err := s.Count(ctx)
		if err != nil {
			return StatusEmpty, err
		}
		remaining := count - int64(offset)
		if remaining <= 0 {
			return StatusEmpty, nil
		}
		if remaining > int64(page.MaxResults) {
			limit = page.MaxResults
			partial = true
		}
	}

	if err := s.Offset(offset); err != nil {
		return StatusEmpty, err
	}
	if err := s.Limit(limit); err != nil {
		return StatusEmpty, err
	}
	if err := s.OrderBy(page.OrderBy...); err != nil {
		return StatusEmpty, err
	}
	if err := s.Execute(ctx); err != nil {
		return StatusEmpty, err
	}
	if !s.HasMoreMatches() {
		return StatusEmpty, nil
	}
	if partial {
		return StatusPartial, nil
	}
	return StatusComplete, nil
}
