package ics

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	appLog "freebusy/internal/log"
	"freebusy/internal/model"
)

// SourceStatus is the last known state of one source, for debug output.
type SourceStatus struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	URL         string    `json:"url"`
	LastFetch   time.Time `json:"last_fetch,omitzero"`
	FromCache   bool      `json:"from_cache"`
	EventCount  int       `json:"event_count"`
	LastError   string    `json:"last_error,omitempty"`
	CachedFeeds bool      `json:"cached"`
}

// ProviderOptions tunes a Provider. Zero values pick defaults.
type ProviderOptions struct {
	// Location anchors all-day events and floating times.
	Location *time.Location
	// TTL is how long a parsed feed is reused before it is fetched again.
	TTL time.Duration
	// MaxOccurrencesPerEvent caps recurrence expansion.
	MaxOccurrencesPerEvent int
	// OnFailure is called once per failed source fetch or parse.
	OnFailure func(sourceID string, err error)
}

// Provider lists busy intervals from a set of ICS sources. Parsed events are
// kept in an expiring LRU keyed by source ID so repeated queries within the
// TTL do not refetch.
type Provider struct {
	fetcher *Fetcher
	sources []Source
	opts    ProviderOptions
	cache   *expirable.LRU[string, []ParsedEvent]

	mu     sync.Mutex
	status map[string]SourceStatus
}

// NewProvider builds a provider over sources. A provider without sources is
// valid and always returns no intervals.
func NewProvider(sources []Source, fetcher *Fetcher, opts ProviderOptions) *Provider {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if fetcher == nil {
		fetcher = NewFetcher("", 1)
	}
	size := len(sources)
	if size == 0 {
		size = 1
	}
	p := &Provider{
		fetcher: fetcher,
		sources: sources,
		opts:    opts,
		cache:   expirable.NewLRU[string, []ParsedEvent](size, nil, opts.TTL),
		status:  make(map[string]SourceStatus, len(sources)),
	}
	for _, s := range sources {
		p.status[s.ID] = SourceStatus{ID: s.ID, Name: s.Name, URL: redactURL(s.URL)}
	}
	return p
}

// Sources returns the configured sources.
func (p *Provider) Sources() []Source {
	return p.sources
}

// Status reports per-source fetch state in configuration order.
func (p *Provider) Status() []SourceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SourceStatus, 0, len(p.sources))
	for _, s := range p.sources {
		st := p.status[s.ID]
		_, st.CachedFeeds = p.cache.Peek(s.ID)
		out = append(out, st)
	}
	return out
}

// Refresh fetches and parses every source, replacing cached feeds. Failed
// sources keep whatever is still cached. The returned error joins all
// per-source failures.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.load(ctx, p.sources)
}

// ListBusyIntervals returns the busy intervals overlapping [start, end) from
// all sources, sorted by start. Sources that fail are skipped; the error
// describes them while the intervals from healthy sources are still
// returned.
func (p *Provider) ListBusyIntervals(ctx context.Context, start, end time.Time) ([]model.BusyInterval, error) {
	if len(p.sources) == 0 {
		return []model.BusyInterval{}, nil
	}

	missing := make([]Source, 0)
	for _, s := range p.sources {
		if _, ok := p.cache.Get(s.ID); !ok {
			missing = append(missing, s)
		}
	}
	loadErr := p.load(ctx, missing)

	events := make([]ParsedEvent, 0)
	for _, s := range p.sources {
		if evs, ok := p.cache.Get(s.ID); ok {
			events = append(events, evs...)
		}
	}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation:        p.opts.Location,
		RangeStart:             start,
		RangeEnd:               end,
		MaxOccurrencesPerEvent: p.opts.MaxOccurrencesPerEvent,
	})
	if err != nil {
		return nil, errors.Wrap(err, "expand occurrences")
	}

	busy := make([]model.BusyInterval, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		busy = append(busy, occ.Busy())
	}
	appLog.Debug("ics busy intervals listed", "start", start, "end", end, "count", len(busy))
	return busy, loadErr
}

func (p *Provider) load(ctx context.Context, sources []Source) error {
	if len(sources) == 0 {
		return nil
	}
	results, fetchErrs := p.fetcher.FetchAll(ctx, sources)
	errs := append([]error(nil), fetchErrs...)

	now := time.Now()
	for _, ferr := range fetchErrs {
		var se *SourceError
		if !errors.As(ferr, &se) {
			continue
		}
		p.record(se.SourceID, func(st *SourceStatus) {
			st.LastFetch = now
			st.LastError = ferr.Error()
		})
		p.fail(se.SourceID, ferr)
	}

	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body, p.opts.Location)
		if err != nil {
			err = &SourceError{SourceID: res.Source.ID, Err: err}
			errs = append(errs, err)
			p.record(res.Source.ID, func(st *SourceStatus) {
				st.LastFetch = now
				st.LastError = err.Error()
			})
			p.fail(res.Source.ID, err)
			continue
		}
		p.cache.Add(res.Source.ID, events)
		p.record(res.Source.ID, func(st *SourceStatus) {
			st.LastFetch = now
			st.FromCache = res.FromCache
			st.EventCount = len(events)
			st.LastError = ""
		})
	}

	return stderrors.Join(errs...)
}

func (p *Provider) record(id string, fn func(*SourceStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status[id]
	fn(&st)
	p.status[id] = st
}

func (p *Provider) fail(id string, err error) {
	if p.opts.OnFailure != nil {
		p.opts.OnFailure(id, err)
	}
}
