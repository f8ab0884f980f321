package services

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/reconcile"
	"example.com/backstage/services/drafts/internal/repositories"
	"example.com/backstage/services/drafts/internal/search"
)

type MockAlertSource struct {
	mock.Mock
}

func (m *MockAlertSource) OpenByTarget(ctx context.Context, programID int64, scope string) (map[string]repositories.AlertSummary, error) {
	args := m.Called(ctx, programID, scope)
	alerts, _ := args.Get(0).(map[string]repositories.AlertSummary)
	return alerts, args.Error(1)
}

// catalogFetcher serves pages of three materials; ids are offset by the
// "offset" filter so different filters yield different lists
func catalogFetcher(queries *[]reconcile.Query) reconcile.FetcherFunc[search.Material] {
	return func(_ context.Context, q reconcile.Query) (reconcile.Result[search.Material], error) {
		*queries = append(*queries, q)
		base := int64(0)
		if q.Filters["category"] == "diluent" {
			base = 1000
		}
		items := make([]search.Material, 0, 3)
		for i := 0; i < 3; i++ {
			items = append(items, search.Material{ID: base + int64((q.Page-1)*3+i+1)})
		}
		return reconcile.Result[search.Material]{Items: items, TotalPage: 2, TotalItem: 6}, nil
	}
}

func TestCatalogServiceAccumulatesAndOverlays(t *testing.T) {
	ctx := context.Background()
	var queries []reconcile.Query
	alerts := new(MockAlertSource)
	alerts.On("OpenByTarget", mock.Anything, program, models.AlertScopeMaterial).
		Return(map[string]repositories.AlertSummary{"2": {Open: 1}, "5": {Open: 2, Critical: 1}}, nil)

	svc := NewCatalogService(catalogFetcher(&queries), alerts, 3, metrics.NewMetrics(), zerolog.Nop())

	page, err := svc.Next(ctx, "sess", "materials", program, nil)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 3)

	page, err = svc.Next(ctx, "sess", "materials", program, nil)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, page.Items, 6)

	assert.True(t, page.Items[1].HasAlert)
	assert.Equal(t, 1, page.Items[1].Alert.Open)
	assert.True(t, page.Items[4].HasAlert)
	assert.Equal(t, 1, page.Items[4].Alert.Critical)
	assert.False(t, page.Items[0].HasAlert)

	assert.Equal(t, 2, queries[1].Page)
	assert.Equal(t, 3, queries[1].PageSize)
}

func TestCatalogServiceFilterChangeRestarts(t *testing.T) {
	ctx := context.Background()
	var queries []reconcile.Query
	svc := NewCatalogService(catalogFetcher(&queries), nil, 3, metrics.NewMetrics(), zerolog.Nop())

	_, err := svc.Next(ctx, "sess", "materials", program, nil)
	require.NoError(t, err)

	page, err := svc.Next(ctx, "sess", "materials", program, reconcile.Filters{"category": "diluent"})
	require.NoError(t, err)

	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Items, 3)
	assert.Equal(t, int64(1001), page.Items[0].Item.ID)
	assert.Equal(t, 1, queries[len(queries)-1].Page)
}

func TestCatalogServiceSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	var queries []reconcile.Query
	svc := NewCatalogService(catalogFetcher(&queries), nil, 3, metrics.NewMetrics(), zerolog.Nop())

	_, err := svc.Next(ctx, "a", "materials", program, nil)
	require.NoError(t, err)
	page, err := svc.Next(ctx, "b", "materials", program, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)

	svc.Forget("a")
	page, err = svc.Next(ctx, "a", "materials", program, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page, "a forgotten session starts over")

	svc.Refresh("b", "materials")
	page, err = svc.Next(ctx, "b", "materials", program, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Items, 3)
}

func TestCatalogServiceAlertFailureIsNotFatal(t *testing.T) {
	var queries []reconcile.Query
	alerts := new(MockAlertSource)
	alerts.On("OpenByTarget", mock.Anything, program, models.AlertScopeMaterial).Return(nil, errors.New("replica lag"))
	svc := NewCatalogService(catalogFetcher(&queries), alerts, 3, metrics.NewMetrics(), zerolog.Nop())

	page, err := svc.Next(context.Background(), "sess", "materials", program, nil)

	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	for _, item := range page.Items {
		assert.False(t, item.HasAlert)
	}
}

func TestCatalogServiceFetchFailure(t *testing.T) {
	failing := reconcile.FetcherFunc[search.Material](func(context.Context, reconcile.Query) (reconcile.Result[search.Material], error) {
		return reconcile.Result[search.Material]{}, errors.New("cluster red")
	})
	svc := NewCatalogService(failing, nil, 3, metrics.NewMetrics(), zerolog.Nop())

	page, err := svc.Next(context.Background(), "sess", "materials", program, nil)

	assert.ErrorContains(t, err, "cluster red")
	assert.Empty(t, page.Items)
}
