package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type material struct {
	ID   int
	Name string
}

func materialID(m material) string { return strconv.Itoa(m.ID) }

func materials(from, n int) []material {
	out := make([]material, n)
	for i := range out {
		out[i] = material{ID: from + i, Name: fmt.Sprintf("m-%d", from+i)}
	}
	return out
}

// pagedFetcher serves fixed page sizes and records the queries it saw
type pagedFetcher struct {
	sizes   []int
	queries []Query
}

func (f *pagedFetcher) Fetch(_ context.Context, q Query) (Result[material], error) {
	f.queries = append(f.queries, q)
	from := 1
	for i := 0; i < q.Page-1; i++ {
		from += f.sizes[i]
	}
	return Result[material]{
		Items:     materials(from, f.sizes[q.Page-1]),
		TotalPage: len(f.sizes),
		TotalItem: 24,
	}, nil
}

func newAccumulator() *Accumulator[material] {
	return NewAccumulator(materialID, 10, zerolog.Nop())
}

func TestPaginationAccumulation(t *testing.T) {
	ctx := context.Background()
	acc := newAccumulator()
	fetcher := &pagedFetcher{sizes: []int{10, 10, 4}}

	var hasMore []bool
	for i := 0; i < 3; i++ {
		page, err := acc.Load(ctx, fetcher)
		require.NoError(t, err)
		hasMore = append(hasMore, page.HasMore)
	}

	assert.Equal(t, []bool{true, true, false}, hasMore)
	state := acc.Snapshot()
	require.Len(t, state.Items, 24)
	for i, m := range state.Items {
		assert.Equal(t, i+1, m.ID, "fetch order must be kept")
	}
	assert.Equal(t, 3, state.Page)
	assert.Equal(t, 24, state.TotalItems)

	// Nothing left: no further fetch is issued.
	_, err := acc.Load(ctx, fetcher)
	require.NoError(t, err)
	assert.Len(t, fetcher.queries, 3)
}

func TestFilterChangeResetsToFirstPage(t *testing.T) {
	ctx := context.Background()
	acc := newAccumulator()
	fetcher := &pagedFetcher{sizes: []int{10, 10, 4}}

	_, err := acc.Load(ctx, fetcher)
	require.NoError(t, err)
	_, err = acc.Load(ctx, fetcher)
	require.NoError(t, err)

	acc.Reset(Filters{"type": "vaccine"})
	assert.Empty(t, acc.Snapshot().Items)

	page, err := acc.Load(ctx, fetcher)
	require.NoError(t, err)
	assert.Equal(t, materials(1, 10), page.Items)
	assert.Equal(t, 1, page.Page)

	last := fetcher.queries[len(fetcher.queries)-1]
	assert.Equal(t, 1, last.Page)
	assert.Equal(t, Filters{"type": "vaccine"}, last.Filters)
}

func TestStaleResponseDiscarded(t *testing.T) {
	acc := newAccumulator()
	acc.Reset(Filters{"q": "bcg"})

	f1, ok := acc.Begin()
	require.True(t, ok)

	acc.Reset(Filters{"q": "polio"})
	f2, ok := acc.Begin()
	require.True(t, ok)

	assert.True(t, acc.Apply(f2, Result[material]{Items: materials(100, 2), TotalPage: 1}))
	assert.False(t, acc.Apply(f1, Result[material]{Items: materials(1, 10), TotalPage: 3}))

	state := acc.Snapshot()
	assert.Equal(t, materials(100, 2), state.Items)
	assert.False(t, state.HasMore)
}

func TestStaleFailureIsSwallowed(t *testing.T) {
	acc := newAccumulator()
	ticket, _ := acc.Begin()
	acc.Reset(Filters{"q": "x"})

	assert.ErrorIs(t, acc.Fail(ticket, errors.New("timeout")), ErrStale)
}

func TestLoadIgnoresResponseSupersededInFlight(t *testing.T) {
	acc := newAccumulator()
	fetcher := FetcherFunc[material](func(_ context.Context, q Query) (Result[material], error) {
		// The user changes the filter while this request is outstanding.
		acc.Reset(Filters{"q": "new"})
		return Result[material]{Items: materials(1, 10), TotalPage: 2}, nil
	})

	page, err := acc.Load(context.Background(), fetcher)

	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.True(t, page.HasMore)
}

func TestFetchFailureKeepsAccumulatedPages(t *testing.T) {
	ctx := context.Background()
	acc := newAccumulator()
	_, err := acc.Load(ctx, &pagedFetcher{sizes: []int{10, 10, 4}})
	require.NoError(t, err)

	failing := FetcherFunc[material](func(context.Context, Query) (Result[material], error) {
		return Result[material]{}, errors.New("502 bad gateway")
	})
	page, err := acc.Load(ctx, failing)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch page 2")
	assert.Len(t, page.Items, 10)
	assert.True(t, page.HasMore)
}

func TestLaterPagesAreDeduplicated(t *testing.T) {
	acc := newAccumulator()

	t1, _ := acc.Begin()
	acc.Apply(t1, Result[material]{Items: materials(1, 3), TotalPage: 2})
	t2, _ := acc.Begin()
	acc.Apply(t2, Result[material]{Items: materials(3, 3), TotalPage: 2})

	ids := []int{}
	for _, m := range acc.Snapshot().Items {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids)
}

func TestEmptyPageStopsPagination(t *testing.T) {
	acc := newAccumulator()
	ticket, _ := acc.Begin()

	acc.Apply(ticket, Result[material]{TotalPage: 5})

	assert.False(t, acc.Snapshot().HasMore)
	_, ok := acc.Begin()
	assert.False(t, ok)
}

func TestFiltersFingerprint(t *testing.T) {
	a := Filters{"b": "2", "a": "1"}
	b := Filters{"a": "1", "b": "2"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "a=1&b=2", a.Fingerprint())
	assert.Empty(t, Filters(nil).Fingerprint())
}
