package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freebusy/internal/model"
)

var day = time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func busy(sh, sm, eh, em int) model.BusyInterval {
	return model.BusyInterval{Title: "busy", Start: at(sh, sm), End: at(eh, em)}
}

func window(sh, sm, eh, em int) model.TimeWindow {
	return model.TimeWindow{Start: at(sh, sm), End: at(eh, em)}
}

func TestMerge(t *testing.T) {
	in := []model.BusyInterval{
		busy(13, 0, 14, 0),
		busy(9, 0, 10, 0),
		busy(10, 0, 10, 30), // touching
		busy(9, 30, 9, 45),  // nested
		busy(15, 0, 14, 0),  // malformed
	}
	got := Merge(in, model.ExclusiveEnd)
	assert.Equal(t, []model.TimeWindow{window(9, 0, 10, 30), window(13, 0, 14, 0)}, got)
	assert.Equal(t, got, Merge(in, model.InclusiveEnd))
}

func TestFreeSegments(t *testing.T) {
	tests := []struct {
		name   string
		window model.TimeWindow
		busy   []model.BusyInterval
		want   []model.TimeWindow
	}{
		{
			name:   "no busy",
			window: window(9, 0, 12, 0),
			want:   []model.TimeWindow{window(9, 0, 12, 0)},
		},
		{
			name:   "busy at start",
			window: window(9, 0, 12, 0),
			busy:   []model.BusyInterval{busy(9, 0, 10, 0)},
			want:   []model.TimeWindow{window(10, 0, 12, 0)},
		},
		{
			name:   "busy straddles both edges",
			window: window(9, 0, 12, 0),
			busy:   []model.BusyInterval{busy(8, 0, 9, 30), busy(11, 0, 13, 0)},
			want:   []model.TimeWindow{window(9, 30, 11, 0)},
		},
		{
			name:   "fully covered",
			window: window(9, 0, 12, 0),
			busy:   []model.BusyInterval{busy(8, 0, 10, 0), busy(10, 0, 12, 30)},
			want:   []model.TimeWindow{},
		},
		{
			name:   "outside window ignored",
			window: window(9, 0, 12, 0),
			busy:   []model.BusyInterval{busy(6, 0, 7, 0), busy(14, 0, 15, 0)},
			want:   []model.TimeWindow{window(9, 0, 12, 0)},
		},
		{
			name:   "empty window",
			window: window(12, 0, 12, 0),
			want:   []model.TimeWindow{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FreeSegments(tt.window, tt.busy, model.ExclusiveEnd))
		})
	}
}

// Segments together with the clipped busy spans cover the window exactly,
// and no two segments touch.
func TestFreeSegments_CoverageAndMaximality(t *testing.T) {
	w := window(9, 0, 18, 0)
	in := []model.BusyInterval{
		busy(8, 30, 9, 15),
		busy(10, 0, 11, 0),
		busy(10, 30, 12, 0),
		busy(12, 0, 12, 30),
		busy(14, 0, 14, 15),
		busy(17, 45, 19, 0),
	}
	segs := FreeSegments(w, in, model.ExclusiveEnd)
	require.NotEmpty(t, segs)

	var free, blocked time.Duration
	for i, s := range segs {
		assert.False(t, s.Empty())
		free += s.Duration()
		if i > 0 {
			assert.True(t, segs[i-1].End.Before(s.Start), "segments %d and %d touch", i-1, i)
		}
	}
	for _, m := range Merge(in, model.ExclusiveEnd) {
		blocked += m.Intersect(w).Duration()
	}
	assert.Equal(t, w.Duration(), free+blocked)
}

func TestFind(t *testing.T) {
	in := []model.BusyInterval{busy(9, 0, 10, 0), busy(10, 30, 11, 0)}

	got := Find(window(9, 0, 12, 0), 45*time.Minute, in, model.ExclusiveEnd, 0)
	require.Len(t, got, 1)
	assert.Equal(t, at(11, 0), got[0].Start)
	assert.Equal(t, at(11, 45), got[0].End)
	assert.Equal(t, model.SlotReason, got[0].Reason)

	got = Find(window(9, 0, 12, 0), 30*time.Minute, in, model.ExclusiveEnd, 3)
	require.Len(t, got, 2)
	assert.Equal(t, at(10, 0), got[0].Start)
	assert.Equal(t, at(11, 0), got[1].Start)

	got = Find(window(9, 0, 10, 0), 30*time.Minute, in, model.ExclusiveEnd, 1)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, Find(window(9, 0, 12, 0), 0, nil, model.ExclusiveEnd, 1))
}

func TestFind_StaysInsideWindow(t *testing.T) {
	got := Find(window(17, 0, 18, 0), 2*time.Hour, nil, model.ExclusiveEnd, 1)
	assert.Empty(t, got)
}
