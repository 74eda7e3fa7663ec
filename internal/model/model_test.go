package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgePolicy_ContainsPoint(t *testing.T) {
	s := time.Date(2025, 11, 10, 3, 0, 0, 0, time.UTC)
	e := s.Add(time.Hour)

	tests := []struct {
		name   string
		policy EdgePolicy
		at     time.Time
		want   bool
	}{
		{"start exclusive", ExclusiveEnd, s, true},
		{"inside exclusive", ExclusiveEnd, s.Add(10 * time.Minute), true},
		{"end exclusive", ExclusiveEnd, e, false},
		{"end inclusive", InclusiveEnd, e, true},
		{"before start inclusive", InclusiveEnd, s.Add(-time.Minute), false},
		{"after end inclusive", InclusiveEnd, e.Add(time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ContainsPoint(s, e, tt.at))
		})
	}
}

func TestEdgePolicy_OverlapsTouching(t *testing.T) {
	a := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)
	c := b.Add(time.Hour)

	assert.False(t, ExclusiveEnd.Overlaps(a, b, b, c))
	assert.True(t, InclusiveEnd.Overlaps(a, b, b, c))
	assert.True(t, ExclusiveEnd.Overlaps(a, c, b, c))
}

func TestParseEdgePolicy(t *testing.T) {
	p, err := ParseEdgePolicy("inclusive")
	require.NoError(t, err)
	assert.Equal(t, InclusiveEnd, p)

	p, err = ParseEdgePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ExclusiveEnd, p)

	_, err = ParseEdgePolicy("sometimes")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	_, err = ParseClock("24:00")
	assert.NoError(t, err)

	for _, bad := range []string{"25:00", "9", "aa:bb", "12:60"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestAllDaySpan_DST(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 2025-11-02 is the fall-back day in America/Chicago: 25 hours long.
	span := AllDaySpan(2025, time.November, 2, 1, chicago)
	assert.Equal(t, 25*time.Hour, span.Duration())
	assert.Equal(t, 0, span.End.In(chicago).Hour())
	assert.Equal(t, 3, span.End.In(chicago).Day())

	// 2025-03-09 is the spring-forward day: 23 hours long.
	span = AllDaySpan(2025, time.March, 9, 1, chicago)
	assert.Equal(t, 23*time.Hour, span.Duration())

	span = AllDaySpan(2025, time.December, 31, 2, chicago)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, chicago), span.End)
}

func TestTimeWindow_Intersect(t *testing.T) {
	base := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: base.Add(9 * time.Hour), End: base.Add(12 * time.Hour)}
	o := TimeWindow{Start: base.Add(11 * time.Hour), End: base.Add(18 * time.Hour)}

	got := w.Intersect(o)
	assert.Equal(t, base.Add(11*time.Hour), got.Start)
	assert.Equal(t, base.Add(12*time.Hour), got.End)
	assert.Equal(t, time.Hour, got.Duration())

	far := TimeWindow{Start: base.Add(20 * time.Hour), End: base.Add(21 * time.Hour)}
	assert.True(t, w.Intersect(far).Empty())
}

func TestOccurrence_Busy(t *testing.T) {
	s := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	b := Occurrence{Start: s, End: s.Add(time.Hour)}.Busy()
	assert.Equal(t, "calendar event", b.Title)
	assert.True(t, b.Valid())

	assert.False(t, BusyInterval{Start: s, End: s}.Valid())
	assert.False(t, BusyInterval{End: s}.Valid())
}
