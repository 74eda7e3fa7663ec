package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freebusy/internal/config"
	"freebusy/internal/ics"
	"freebusy/internal/metrics"
	"freebusy/internal/model"
)

type fakeProvider struct {
	mu    sync.Mutex
	busy  []model.BusyInterval
	err   error
	calls int
	spans []model.TimeWindow
}

func (f *fakeProvider) ListBusyIntervals(_ context.Context, start, end time.Time) ([]model.BusyInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.spans = append(f.spans, model.TimeWindow{Start: start, End: end})
	return f.busy, f.err
}

type statusProvider struct {
	fakeProvider
}

func (p *statusProvider) Status() []ics.SourceStatus {
	return []ics.SourceStatus{{ID: "work", URL: "https://cal.example.com/...(redacted)", EventCount: 3}}
}

type harness struct {
	loc      *time.Location
	cfg      *config.Config
	provider *fakeProvider
	handler  http.Handler
}

func newHarness(t *testing.T, mutate func(*config.Config)) harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "America/Chicago"
	cfg.RateLimit = config.RateLimitConfig{}
	if mutate != nil {
		mutate(cfg)
	}
	engine, err := cfg.Engine()
	require.NoError(t, err)

	loc := engine.Location
	provider := &fakeProvider{busy: []model.BusyInterval{{
		Title: "standup",
		Start: time.Date(2025, 11, 10, 3, 0, 0, 0, loc),
		End:   time.Date(2025, 11, 10, 4, 0, 0, 0, loc),
	}}}
	srv := NewServer(Options{
		Config:   cfg,
		Engine:   engine,
		Provider: provider,
		Metrics:  metrics.MustNew(prometheus.NewRegistry()),
		Version:  "test",
		Now:      func() time.Time { return time.Date(2025, 11, 9, 0, 0, 0, 0, loc) },
	})
	return harness{loc: loc, cfg: cfg, provider: provider, handler: srv.Handler()}
}

func (h harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestQuery_PointBusy(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/query", `{"query":"am I free tomorrow at 03:10?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decode(t, rec)
	assert.Equal(t, "busy", m["availability"])
	assert.Equal(t, "Conflicts with standup 03:00-04:00.", m["explanation"])
	conflicts := m["conflicts"].([]any)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "2025-11-10T03:00:00-06:00", conflicts[0].(map[string]any)["start"])
	assert.NotContains(t, m, "suggested_slots")

	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Equal(t, "notion,github", rec.Header().Get(unavailableHeader))

	require.Len(t, h.provider.spans, 1)
	span := h.provider.spans[0]
	assert.True(t, span.Start.Equal(time.Date(2025, 11, 10, 0, 0, 0, 0, h.loc)))
	assert.True(t, span.End.Equal(time.Date(2025, 11, 11, 0, 0, 0, 0, h.loc)))
}

func TestQuery_SlotSearch(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.busy = []model.BusyInterval{{
		Title: "planning",
		Start: time.Date(2025, 11, 10, 9, 0, 0, 0, h.loc),
		End:   time.Date(2025, 11, 10, 10, 0, 0, 0, h.loc),
	}}
	rec := h.do(t, http.MethodPost, "/query", `{"query":"any slot tomorrow morning for 45 min","sources":["calendar"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decode(t, rec)
	assert.Equal(t, "busy", m["availability"])
	slots := m["suggested_slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, "2025-11-10T10:00:00-06:00", slots[0].(map[string]any)["start"])
	assert.Empty(t, rec.Header().Get(unavailableHeader))
}

func TestQuery_CalendarNotSelected(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/query", `{"query":"am I free tomorrow at 03:10?","sources":["notion"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", decode(t, rec)["availability"])
	assert.Equal(t, 0, h.provider.calls)
	assert.Equal(t, "notion", rec.Header().Get(unavailableHeader))
}

func TestQuery_Unresolved(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/query", `{"query":"what about the weather"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown", decode(t, rec)["availability"])
	assert.Equal(t, 0, h.provider.calls)
}

func TestQuery_ProviderFailureDegrades(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.busy = nil
	h.provider.err = errors.New("source down")
	rec := h.do(t, http.MethodPost, "/query", `{"query":"am I free tomorrow at 03:10?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", decode(t, rec)["availability"])
}

func TestQuery_BadRequests(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, `{"query":`, http.StatusBadRequest},
		{"empty query", http.MethodPost, `{"query":"   "}`, http.StatusBadRequest},
		{"max tokens low", http.MethodPost, `{"query":"free today?","max_tokens":10}`, http.StatusBadRequest},
		{"max tokens high", http.MethodPost, `{"query":"free today?","max_tokens":5000}`, http.StatusBadRequest},
		{"unknown source", http.MethodPost, `{"query":"free today?","sources":["jira"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, "/query", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestSelectSources(t *testing.T) {
	cal, unavailable, err := selectSources(nil)
	require.NoError(t, err)
	assert.True(t, cal)
	assert.Equal(t, []string{"notion", "github"}, unavailable)

	cal, unavailable, err = selectSources([]string{"github", "calendar", "github"})
	require.NoError(t, err)
	assert.True(t, cal)
	assert.Equal(t, []string{"github"}, unavailable)

	_, _, err = selectSources([]string{"slack"})
	assert.Error(t, err)
}

func TestBusyPreview(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/api/busy?days=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	m := decode(t, rec)
	assert.Equal(t, "America/Chicago", m["timezone"])
	assert.Equal(t, "2025-11-09T00:00:00-06:00", m["range_start"])
	assert.Equal(t, "2025-11-11T00:00:00-06:00", m["range_end"])
	assert.Len(t, m["intervals"], 1)

	rec = h.do(t, http.MethodGet, "/api/busy?days=9999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-12-09T00:00:00-06:00", decode(t, rec)["range_end"])
}

func TestDebugEndpoints(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.ICS = []config.ICSConfig{{ID: "work", URL: "https://cal.example.com/secret/token.ics"}}
	})

	rec := h.do(t, http.MethodGet, "/debug/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), "cal.example.com")

	rec = h.do(t, http.MethodGet, "/debug/providers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, "custom", m["calendar"])
	assert.Equal(t, "unavailable", m["notion"])

	rec = h.do(t, http.MethodGet, "/version", "")
	assert.Equal(t, "test", decode(t, rec)["version"])

	rec = h.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, true, decode(t, rec)["ok"])

	rec = h.do(t, http.MethodPost, "/query", `{"query":"am I free tomorrow at 03:10?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), `freebusy_queries_total{availability="busy",intent="point_check"} 1`)
}

func TestDebugProviders_Status(t *testing.T) {
	cfg := config.DefaultConfig()
	engine, err := cfg.Engine()
	require.NoError(t, err)
	srv := NewServer(Options{Config: cfg, Engine: engine, Provider: &statusProvider{}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/providers", nil))
	m := decode(t, rec)
	assert.Equal(t, "ics", m["calendar"])
	assert.Len(t, m["sources"], 1)
}

func TestBasicAuth(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "pw"}
	})

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/version", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.SetBasicAuth("me", "pw")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2}
	})
	body := `{"query":"free today?"}`
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/query", body).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/query", body).Code)
	rec := h.do(t, http.MethodPost, "/query", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", "").Code)
}

func TestRequestID_Echo(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestQuery_InclusiveEndTouchingEventFromFeed(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.ReplaceAll(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//freebusy//test//EN
BEGIN:VEVENT
UID:late-call
DTSTAMP:20251101T000000Z
DTSTART;TZID=America/Chicago:20251109T230000
DTEND;TZID=America/Chicago:20251110T000000
SUMMARY:Late call
END:VEVENT
END:VCALENDAR
`, "\n", "\r\n")))
	}))
	defer feed.Close()

	ask := func(t *testing.T, policy string) map[string]any {
		cfg := config.DefaultConfig()
		cfg.Timezone = "America/Chicago"
		cfg.EdgePolicy = policy
		cfg.RateLimit = config.RateLimitConfig{}
		engine, err := cfg.Engine()
		require.NoError(t, err)

		provider := ics.NewProvider(
			[]ics.Source{{ID: "work", URL: feed.URL + "/work.ics"}},
			ics.NewFetcher("", 1),
			ics.ProviderOptions{Location: engine.Location},
		)
		srv := NewServer(Options{
			Config:   cfg,
			Engine:   engine,
			Provider: provider,
			Now:      func() time.Time { return time.Date(2025, 11, 9, 0, 0, 0, 0, engine.Location) },
		})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"am I free tomorrow at 00:00?"}`))
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode(t, rec)
	}

	t.Run("inclusive end", func(t *testing.T) {
		m := ask(t, "inclusive_end")
		assert.Equal(t, "busy", m["availability"])
		conflicts := m["conflicts"].([]any)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "Late call", conflicts[0].(map[string]any)["title"])
	})

	t.Run("exclusive end", func(t *testing.T) {
		assert.Equal(t, "free", ask(t, "exclusive_end")["availability"])
	})
}
