package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())

	m.ObserveQuery("point_check", "busy", 20*time.Millisecond)
	m.ObserveQuery("point_check", "busy", 10*time.Millisecond)
	m.ObserveQuery("slot_search", "unknown", time.Millisecond)
	m.ProviderFailure("work", errors.New("boom"))
	m.Refresh(nil)
	m.Refresh(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queries.WithLabelValues("busy", "point_check")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("unknown", "slot_search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerFailures.WithLabelValues("work")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues("error")))
}

func TestMetrics_Handler(t *testing.T) {
	m := MustNew(nil)
	m.ObserveQuery("range_check", "free", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `freebusy_queries_total{availability="free",intent="range_check"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("x", "y", 0)
		m.ProviderFailure("a", nil)
		m.Refresh(nil)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
