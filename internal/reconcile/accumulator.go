// Package reconcile merges paginated remote list responses into client-held
// state and joins alert maps onto base lists.
package reconcile

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrStale is returned for a response whose ticket was superseded by a
	// filter change or a later page.
	ErrStale = errors.New("stale page response")
)

// Filters are the list filters a page was fetched for
type Filters map[string]string

// Fingerprint is a canonical form of the filters
func (f Filters) Fingerprint() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(f[k])
	}
	return b.String()
}

func (f Filters) clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Query is the request handed to a Fetcher
type Query struct {
	Filters  Filters
	Page     int
	PageSize int
}

// Result is one page as returned by the remote list API
type Result[T any] struct {
	Items     []T `json:"items"`
	TotalPage int `json:"total_page"`
	TotalItem int `json:"total_item"`
}

// Fetcher reads one page of a remote list
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q Query) (Result[T], error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc[T any] func(ctx context.Context, q Query) (Result[T], error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, q Query) (Result[T], error) {
	return f(ctx, q)
}

// ListPage is the accumulated state of a paginated list
type ListPage[T any] struct {
	Page       int  `json:"page"`
	Items      []T  `json:"items"`
	HasMore    bool `json:"has_more"`
	TotalPages int  `json:"total_pages"`
	TotalItems int  `json:"total_items"`
}

// Ticket identifies an issued fetch. Responses are only merged while the
// ticket is still current.
type Ticket struct {
	Query
	fingerprint string
	generation  uint64
}

// Accumulator collects the pages of one list. Fetches happen outside the
// accumulator; Begin and Apply bracket them.
type Accumulator[T any] struct {
	mu          sync.Mutex
	idOf        func(T) string
	pageSize    int
	filters     Filters
	fingerprint string
	generation  uint64
	state       ListPage[T]
	logger      zerolog.Logger
}

// NewAccumulator creates an accumulator with no filters
func NewAccumulator[T any](idOf func(T) string, pageSize int, logger zerolog.Logger) *Accumulator[T] {
	a := &Accumulator[T]{
		idOf:     idOf,
		pageSize: pageSize,
		logger:   logger,
	}
	a.Reset(nil)
	return a
}

// Reset switches to new filters. Accumulated items are dropped and any fetch
// still in flight becomes stale.
func (a *Accumulator[T]) Reset(filters Filters) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.filters = filters.clone()
	a.fingerprint = a.filters.Fingerprint()
	a.generation++
	a.state = ListPage[T]{Items: []T{}, HasMore: true}
}

// Filters returns the current filters
func (a *Accumulator[T]) Filters() Filters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filters.clone()
}

// Begin issues a ticket for the next page. ok is false when every page has
// been loaded.
func (a *Accumulator[T]) Begin() (Ticket, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.HasMore {
		return Ticket{}, false
	}
	return Ticket{
		Query: Query{
			Filters:  a.filters.clone(),
			Page:     a.state.Page + 1,
			PageSize: a.pageSize,
		},
		fingerprint: a.fingerprint,
		generation:  a.generation,
	}, true
}

// Apply merges a fetched page. It returns false when the ticket is stale and
// the response was discarded.
func (a *Accumulator[T]) Apply(t Ticket, res Result[T]) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.current(t) {
		a.logger.Debug().
			Str("filters", t.fingerprint).
			Int("page", t.Page).
			Msg("discarding stale page response")
		return false
	}

	if t.Page == 1 {
		a.state.Items = append([]T{}, res.Items...)
	} else {
		seen := make(map[string]struct{}, len(a.state.Items))
		for _, item := range a.state.Items {
			seen[a.idOf(item)] = struct{}{}
		}
		for _, item := range res.Items {
			id := a.idOf(item)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			a.state.Items = append(a.state.Items, item)
		}
	}

	a.state.Page = t.Page
	a.state.TotalPages = res.TotalPage
	a.state.TotalItems = res.TotalItem
	a.state.HasMore = t.Page < res.TotalPage && len(res.Items) > 0
	return true
}

// Fail records a failed fetch. Accumulated pages are kept. ErrStale is
// returned when the failure belongs to a superseded ticket.
func (a *Accumulator[T]) Fail(t Ticket, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.current(t) {
		return ErrStale
	}
	return errors.Wrapf(err, "failed to fetch page %d", t.Page)
}

// Snapshot returns a copy of the accumulated state
func (a *Accumulator[T]) Snapshot() ListPage[T] {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.state
	out.Items = append([]T{}, a.state.Items...)
	return out
}

// Load fetches and merges the next page. A stale response leaves the state
// untouched and is not an error.
func (a *Accumulator[T]) Load(ctx context.Context, f Fetcher[T]) (ListPage[T], error) {
	t, ok := a.Begin()
	if !ok {
		return a.Snapshot(), nil
	}

	res, err := f.Fetch(ctx, t.Query)
	if err != nil {
		if ferr := a.Fail(t, err); !errors.Is(ferr, ErrStale) {
			return a.Snapshot(), ferr
		}
		return a.Snapshot(), nil
	}

	a.Apply(t, res)
	return a.Snapshot(), nil
}

// current reports whether a ticket still matches the filters and is the
// next page in sequence. Callers hold the lock.
func (a *Accumulator[T]) current(t Ticket) bool {
	return t.generation == a.generation &&
		t.fingerprint == a.fingerprint &&
		t.Page == a.state.Page+1
}
