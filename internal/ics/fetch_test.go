package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOne_ConditionalAndFallback(t *testing.T) {
	var failing atomic.Bool
	var conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(crlf(sampleCalendar))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), 2)
	src := Source{ID: "work", URL: srv.URL + "/cal.ics"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, crlf(sampleCalendar), first.Body)

	second, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(1), conditional.Load())

	failing.Store(true)
	third, err := f.FetchOne(ctx, src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, first.Body, third.Body)
}

func TestFetchOne_NoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher("", 1)
	_, err := f.FetchOne(context.Background(), Source{ID: "x", URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")

	_, err = f.FetchOne(context.Background(), Source{ID: "x"})
	assert.Error(t, err)
}

func TestFetchAll_PartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.ics" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write(crlf(sampleCalendar))
	}))
	defer srv.Close()

	sources := []Source{
		{ID: "a", URL: srv.URL + "/a.ics"},
		{ID: "bad", URL: srv.URL + "/bad.ics"},
		{ID: "b", URL: srv.URL + "/b.ics"},
	}
	results, errs := NewFetcher("", 3).FetchAll(context.Background(), sources)

	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Source.ID)
	assert.Equal(t, "b", results[1].Source.ID)

	require.Len(t, errs, 1)
	var se *SourceError
	require.ErrorAs(t, errs[0], &se)
	assert.Equal(t, "bad", se.SourceID)
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/private/abc.ics?token=1": "https://example.com/...(redacted)",
		"https://user:pw@cal.example.com/x.ics":      "https://cal.example.com/...(redacted)",
		"webcal://host?secret=1":                     "webcal://host/...(redacted)",
		"not a url":                                  "ics://...(redacted)",
	}
	for in, want := range tests {
		assert.Equal(t, want, RedactURL(in), in)
	}
}
