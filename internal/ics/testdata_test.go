package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//freebusy//test//EN
BEGIN:VEVENT
UID:standup
DTSTAMP:20251101T000000Z
DTSTART;TZID=America/Chicago:20251110T030000
DTEND;TZID=America/Chicago:20251110T040000
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTAMP:20251101T000000Z
DTSTART;VALUE=DATE:20251102
DTEND;VALUE=DATE:20251103
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:cancelled
DTSTAMP:20251101T000000Z
STATUS:CANCELLED
DTSTART:20251110T150000Z
DTEND:20251110T160000Z
SUMMARY:Dropped
END:VEVENT
BEGIN:VEVENT
UID:focus
DTSTAMP:20251101T000000Z
TRANSP:TRANSPARENT
DTSTART:20251110T170000Z
DURATION:PT1H
SUMMARY:Focus (free)
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20251101T000000Z
DTSTART;TZID=America/Chicago:20251027T100000
DURATION:PT30M
RRULE:FREQ=WEEKLY;COUNT=4
EXDATE;TZID=America/Chicago:20251103T100000
SUMMARY:Weekly sync
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20251101T000000Z
RECURRENCE-ID;TZID=America/Chicago:20251110T100000
DTSTART;TZID=America/Chicago:20251110T130000
DTEND;TZID=America/Chicago:20251110T133000
SUMMARY:Weekly sync (moved)
END:VEVENT
BEGIN:VEVENT
UID:weekly
DTSTAMP:20251101T000000Z
RECURRENCE-ID;TZID=America/Chicago:20251117T100000
STATUS:CANCELLED
DTSTART;TZID=America/Chicago:20251117T100000
DTEND;TZID=America/Chicago:20251117T103000
SUMMARY:Weekly sync
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}
