package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/reconcile"
	"example.com/backstage/services/drafts/internal/repositories"
	"example.com/backstage/services/drafts/internal/search"
)

// AlertSource counts open alerts per target
type AlertSource interface {
	OpenByTarget(ctx context.Context, programID int64, scope string) (map[string]repositories.AlertSummary, error)
}

// MaterialEntry is a catalog material with its open alerts
type MaterialEntry = reconcile.Annotated[search.Material, repositories.AlertSummary]

// CatalogPage is the accumulated material list of a browse session
type CatalogPage = reconcile.ListPage[MaterialEntry]

// CatalogService accumulates paginated material lists per browse session
type CatalogService struct {
	mu       sync.Mutex
	lists    map[string]*reconcile.Accumulator[search.Material]
	fetcher  reconcile.Fetcher[search.Material]
	alerts   AlertSource
	pageSize int
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	fetcher reconcile.Fetcher[search.Material],
	alerts AlertSource,
	pageSize int,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *CatalogService {
	return &CatalogService{
		lists:    make(map[string]*reconcile.Accumulator[search.Material]),
		fetcher:  fetcher,
		alerts:   alerts,
		pageSize: pageSize,
		metrics:  metricsCollector,
		logger:   logger.With().Str("component", "catalog").Logger(),
	}
}

// Next loads the next page of a list. Passing filters that differ from the
// previous call restarts the list at page 1.
func (s *CatalogService) Next(ctx context.Context, session, list string, programID int64, filters reconcile.Filters) (CatalogPage, error) {
	start := time.Now()
	acc := s.accumulator(session, list)

	if filters.Fingerprint() != acc.Filters().Fingerprint() {
		acc.Reset(filters)
	}

	page, err := acc.Load(ctx, s.fetcher)
	s.metrics.Observe(metrics.OpCatalogPage, start, err)

	out := CatalogPage{
		Page:       page.Page,
		HasMore:    page.HasMore,
		TotalPages: page.TotalPages,
		TotalItems: page.TotalItems,
		Items:      reconcile.Overlay(page.Items, search.MaterialID, s.openAlerts(ctx, programID)),
	}
	return out, err
}

// Refresh restarts a list with its current filters
func (s *CatalogService) Refresh(session, list string) {
	acc := s.accumulator(session, list)
	acc.Reset(acc.Filters())
}

// Forget drops every list of a session
func (s *CatalogService) Forget(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := session + "/"
	for k := range s.lists {
		if strings.HasPrefix(k, prefix) {
			delete(s.lists, k)
		}
	}
}

func (s *CatalogService) accumulator(session, list string) *reconcile.Accumulator[search.Material] {
	k := session + "/" + list

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.lists[k]
	if !ok {
		acc = reconcile.NewAccumulator(search.MaterialID, s.pageSize, s.logger.With().Str("list", k).Logger())
		s.lists[k] = acc
	}
	return acc
}

// openAlerts is best effort: the list is still useful without alert counts
func (s *CatalogService) openAlerts(ctx context.Context, programID int64) map[string]repositories.AlertSummary {
	if s.alerts == nil {
		return nil
	}
	alerts, err := s.alerts.OpenByTarget(ctx, programID, models.AlertScopeMaterial)
	if err != nil {
		s.logger.Warn().Err(err).Int64("program_id", programID).Msg("continuing without alert counts")
		return nil
	}
	return alerts
}
