package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"freebusy/internal/availability"
	"freebusy/internal/ics"
	appLog "freebusy/internal/log"
	"freebusy/internal/model"
	"freebusy/internal/query"
)

const (
	defaultMaxTokens = 512
	minMaxTokens     = 64
	maxMaxTokens     = 4096
	maxBodyBytes     = 64 << 10
)

// Source names accepted in a query request. Only the calendar is backed by a
// provider; the others are accepted and reported as unavailable.
const (
	sourceCalendar = "calendar"
	sourceNotion   = "notion"
	sourceGitHub   = "github"
	sourceAll      = "all"
)

const unavailableHeader = "X-Unavailable-Sources"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "freebusy",
		"version": s.version,
	})
}

// handleQuery answers a free-text availability question.
//
// POST /query {"query": "...", "sources": ["all"], "max_tokens": 512}
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()

	var req query.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	if maxTokens < minMaxTokens || maxTokens > maxMaxTokens {
		writeError(w, http.StatusBadRequest, "max_tokens must be between 64 and 4096")
		return
	}
	useCalendar, unavailable, err := selectSources(req.Sources)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	started := time.Now()
	now := s.now().In(s.engine.Loc())
	plan := query.NewPlan(req.Query, now, s.engine)

	var busy []model.BusyInterval
	if useCalendar {
		busy = s.busyFor(r, plan)
	}
	resp := plan.Answer(busy, s.engine, maxTokens)

	s.metrics.ObserveQuery(plan.Intent.Kind.String(), string(resp.Availability), time.Since(started))
	appLog.Info("query answered",
		"request_id", requestID(ctx),
		"intent", plan.Intent.Kind.String(),
		"rule", plan.Intent.Rule,
		"availability", resp.Availability,
		"conflicts", len(resp.Conflicts),
		"suggestions", len(resp.SuggestedSlots),
	)
	if plan.Err != nil {
		appLog.Debug("query unresolved", "request_id", requestID(ctx), "reason", plan.Err.Error())
	}

	if len(unavailable) > 0 {
		w.Header().Set(unavailableHeader, strings.Join(unavailable, ","))
	}
	writeJSON(w, http.StatusOK, resp)
}

// busyFor fetches the busy intervals the plan needs. Provider failures
// degrade to whatever intervals came back.
func (s *Server) busyFor(r *http.Request, plan query.Plan) []model.BusyInterval {
	span, ok := plan.Span()
	if !ok || s.provider == nil {
		return nil
	}
	busy, err := s.provider.ListBusyIntervals(r.Context(), span.Start, span.End)
	if err != nil {
		appLog.Warn("busy provider degraded",
			"request_id", requestID(r.Context()),
			"error", err.Error(),
			"intervals", len(busy),
		)
	}
	clean, dropped := availability.Sanitize(busy)
	if dropped > 0 {
		appLog.Warn("dropped malformed busy intervals", "request_id", requestID(r.Context()), "count", dropped)
	}
	return clean
}

// selectSources validates the requested source names. An empty list means
// "all".
func selectSources(requested []string) (calendar bool, unavailable []string, err error) {
	if len(requested) == 0 {
		requested = []string{sourceAll}
	}
	seen := make(map[string]bool, 2)
	mark := func(name string) {
		if !seen[name] {
			seen[name] = true
			unavailable = append(unavailable, name)
		}
	}
	for _, name := range requested {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case sourceCalendar:
			calendar = true
		case sourceNotion:
			mark(sourceNotion)
		case sourceGitHub:
			mark(sourceGitHub)
		case sourceAll:
			calendar = true
			mark(sourceNotion)
			mark(sourceGitHub)
		default:
			return false, nil, errors.Errorf("unknown source %q", name)
		}
	}
	return calendar, unavailable, nil
}

type busyResponse struct {
	RangeStart string         `json:"range_start"`
	RangeEnd   string         `json:"range_end"`
	Timezone   string         `json:"timezone"`
	Intervals  []busyInterval `json:"intervals"`
	Error      string         `json:"error,omitempty"`
}

type busyInterval struct {
	Title  string `json:"title"`
	Start  string `json:"start"`
	End    string `json:"end"`
	AllDay bool   `json:"all_day"`
}

// handleBusy previews the busy intervals the provider currently reports.
//
// GET /api/busy?days=7&backfill=0
//   - days:     days ahead of today, capped at the horizon (default 7)
//   - backfill: days before today to include (default 0)
func (s *Server) handleBusy(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	horizon := max(s.engine.HorizonDays, 1)
	days := clamp(parseIntDefault(q.Get("days"), 7), 1, horizon)
	backfill := clamp(parseIntDefault(q.Get("backfill"), 0), 0, horizon)

	loc := s.engine.Loc()
	today := model.Midnight(s.now(), loc)
	start := today.AddDate(0, 0, -backfill)
	end := today.AddDate(0, 0, days)

	resp := busyResponse{
		RangeStart: start.Format(time.RFC3339),
		RangeEnd:   end.Format(time.RFC3339),
		Timezone:   loc.String(),
		Intervals:  []busyInterval{},
	}
	if s.provider == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	busy, err := s.provider.ListBusyIntervals(r.Context(), start, end)
	if err != nil {
		resp.Error = err.Error()
	}
	clean, _ := availability.Sanitize(busy)
	for _, b := range clean {
		resp.Intervals = append(resp.Intervals, busyInterval{
			Title:  b.Title,
			Start:  b.Start.In(loc).Format(time.RFC3339),
			End:    b.End.In(loc).Format(time.RFC3339),
			AllDay: b.AllDay,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type providersResponse struct {
	Calendar string             `json:"calendar"`
	Notion   string             `json:"notion"`
	GitHub   string             `json:"github"`
	Sources  []ics.SourceStatus `json:"sources"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := providersResponse{
		Calendar: "none",
		Notion:   "unavailable",
		GitHub:   "unavailable",
		Sources:  []ics.SourceStatus{},
	}
	switch p := s.provider.(type) {
	case nil:
	case statusReporter:
		resp.Calendar = "ics"
		resp.Sources = p.Status()
	default:
		resp.Calendar = "custom"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Redacted(ics.RedactURL))
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func clamp(n, lo, hi int) int {
	return min(max(n, lo), hi)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
