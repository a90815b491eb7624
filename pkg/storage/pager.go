package storage

import (
	"context"
	"io"
)

// Pager yields listing entries lazily, one backend page at a time. Next
// returns io.EOF once the listing is exhausted; a pager is single-use
// and cannot be restarted — call List again for a fresh one.
//
// Entries within one page preserve the backend's native order. Ordering
// across pages is whatever the backend's cursor protocol provides; the
// pager never re-sorts.
type Pager interface {
	Next(ctx context.Context) ([]Entry, error)
}

// PageFunc fetches one backend page. token is the opaque continuation
// cursor from the previous page ("" for the first); the returned next
// token is "" when the backend has no more pages. The cursor never
// escapes to callers.
type PageFunc func(ctx context.Context, token string) (entries []Entry, next string, err error)

// NewTokenPager builds a Pager that drives fetch until exhaustion. A
// positive limit caps the total number of entries yielded, truncating
// across page boundaries regardless of the backend's natural page size.
func NewTokenPager(fetch PageFunc, limit int) Pager {
	return &tokenPager{fetch: fetch, remaining: limit, limited: limit > 0}
}

type tokenPager struct {
	fetch     PageFunc
	token     string
	remaining int
	limited   bool
	done      bool
}

func (p *tokenPager) Next(ctx context.Context) ([]Entry, error) {
	if p.done {
		return nil, io.EOF
	}
	for {
		entries, next, err := p.fetch(ctx, p.token)
		if err != nil {
			p.done = true
			return nil, err
		}
		p.token = next
		if next == "" {
			p.done = true
		}
		if p.limited {
			if len(entries) > p.remaining {
				entries = entries[:p.remaining]
			}
			p.remaining -= len(entries)
			if p.remaining == 0 {
				p.done = true
			}
		}
		if len(entries) > 0 {
			return entries, nil
		}
		// Backends may return empty pages mid-listing; keep driving
		// the cursor so callers only ever see entries or io.EOF.
		if p.done {
			return nil, io.EOF
		}
	}
}

// ListAll drains a pager into memory. Convenience for callers and
// tests; large listings should drive the pager directly.
func ListAll(ctx context.Context, p Pager) ([]Entry, error) {
	var all []Entry
	for {
		page, err := p.Next(ctx)
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
	}
}
