package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCountersAndOutcomes(t *testing.T) {
	m := NewMetrics()

	m.IncrementCounter(OpConflict)
	m.IncrementCounter(OpConflict)
	m.Observe(OpSubmit, time.Now(), nil)
	m.Observe(OpSubmit, time.Now(), errors.New("boom"))
	m.SetGauge("open_drafts", 3)

	out := scrape(t, m)
	assert.Contains(t, out, `drafts_events_total{name="context_conflict"} 2`)
	assert.Contains(t, out, `drafts_operations_total{name="submit",result="success"} 1`)
	assert.Contains(t, out, `drafts_operations_total{name="submit",result="error"} 1`)
	assert.Contains(t, out, `drafts_operation_duration_seconds_count{name="submit"} 2`)
	assert.Contains(t, out, `drafts_gauge{name="open_drafts"} 3`)
}

func TestHealth(t *testing.T) {
	m := NewMetrics()
	assert.True(t, m.Healthy())

	m.SetHealth("redis", true)
	m.SetHealth("elasticsearch", false)

	assert.False(t, m.Healthy())
	assert.Equal(t, map[string]bool{"redis": true, "elasticsearch": false}, m.GetHealthChecks())
	assert.Contains(t, scrape(t, m), `drafts_component_up{component="elasticsearch"} 0`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.IncrementCounter(OpSelect)

	assert.NotContains(t, scrape(t, b), `drafts_events_total{name="select"}`)
}
