package translate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-ical"
)

func buildVEvent(uid string, dtstart time.Time, rrule string) *ical.Component {
	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	comp.Props.SetDateTime(ical.PropDateTimeStart, dtstart)
	if rrule != "" {
		comp.Props.SetText(ical.PropRecurrenceRule, rrule)
	}
	return comp
}

// TestVEventToEvent_SingleEvent covers a plain client PUT with both
// DTSTART and DTEND set: no RRULE, eventMode "single".
func TestVEventToEvent_SingleEvent(t *testing.T) {
	comp := buildVEvent("A1", time.Date(2026, 1, 13, 14, 0, 0, 0, time.UTC), "")
	comp.Props.SetDateTime(ical.PropDateTimeEnd, time.Date(2026, 1, 13, 15, 0, 0, 0, time.UTC))

	ev, err := VEventToEvent(comp, "owner-1", berlin(t))
	require.NoError(t, err)
	assert.Equal(t, "single", ev.EventMode)
	assert.Equal(t, "A1", ev.Key)
	assert.Equal(t, "owner-1", ev.OwnerKey)
}

// TestVEventToEvent_SerialMissingDTEndFallsBackTo86340 covers the
// DTEND-absent fallback: a recurring, timed client PUT with no DTEND must
// set occurrenceEndTime to 86340 (one minute before local midnight) rather
// than leaving it at its zero value.
func TestVEventToEvent_SerialMissingDTEndFallsBackTo86340(t *testing.T) {
	comp := buildVEvent("EV1", time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), "FREQ=DAILY")

	ev, err := VEventToEvent(comp, "owner-1", berlin(t))
	require.NoError(t, err)
	assert.Equal(t, "serial", ev.EventMode)
	assert.True(t, ev.OccurrenceEndTimeEnabled)
	assert.Equal(t, 86340, ev.OccurrenceEndTime)
}

// TestVEventToEvent_SerialWithDTEndUsesActualEnd covers the ordinary case
// where DTEND is present: the fallback must not override it.
func TestVEventToEvent_SerialWithDTEndUsesActualEnd(t *testing.T) {
	loc := berlin(t)
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, loc)
	comp := buildVEvent("EV2", start, "FREQ=DAILY")
	comp.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Hour))

	ev, err := VEventToEvent(comp, "owner-1", loc)
	require.NoError(t, err)
	assert.True(t, ev.OccurrenceEndTimeEnabled)
	assert.NotEqual(t, 86340, ev.OccurrenceEndTime)
}

// TestVEventToEvent_WholeDaySeriesHasNoOccurrenceTimes covers a whole-day
// recurring event: the DTEND fallback only applies to timed events, so a
// date-only DTSTART must leave occurrenceEndTime disabled.
func TestVEventToEvent_WholeDaySeriesHasNoOccurrenceTimes(t *testing.T) {
	comp := buildVEvent("EV3", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "FREQ=DAILY")
	comp.Props.Get(ical.PropDateTimeStart).Params.Set(ical.ParamValue, string(ical.ValueDate))
	comp.Props.Get(ical.PropDateTimeStart).Value = "20260105"

	ev, err := VEventToEvent(comp, "owner-1", berlin(t))
	require.NoError(t, err)
	assert.True(t, ev.WholeDayEvent)
	assert.False(t, ev.OccurrenceEndTimeEnabled)
}

// TestDecodeVEvent_RejectsMethod covers a calendar object carrying a
// METHOD property (a scheduling message): it must be rejected rather than
// silently accepted.
func TestDecodeVEvent_RejectsMethod(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nMETHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\nUID:A1\r\nDTSTART:20260113T140000Z\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR"
	_, err := DecodeVEvent(ics)
	require.Error(t, err)
}

// TestDecodeVEvent_RejectsMultipleEvents covers more than one
// event-bearing component in a single calendar object: rejected.
func TestDecodeVEvent_RejectsMultipleEvents(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\nUID:A1\r\nDTSTART:20260113T140000Z\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:A2\r\nDTSTART:20260114T140000Z\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR"
	_, err := DecodeVEvent(ics)
	require.Error(t, err)
}

// TestDecodeVEvent_RejectsNonEventComponent covers a calendar object whose
// only child isn't a VEVENT at all (e.g. a VTODO).
func TestDecodeVEvent_RejectsNonEventComponent(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
		"BEGIN:VTODO\r\nUID:A1\r\nEND:VTODO\r\n" +
		"END:VCALENDAR"
	_, err := DecodeVEvent(ics)
	require.Error(t, err)
}

// TestDecodeVEvent_SkipsVTimezone covers the VTIMEZONE definitions real
// clients attach alongside timed events: they must be tolerated, not
// rejected as a second component kind.
func TestDecodeVEvent_SkipsVTimezone(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
		"BEGIN:VTIMEZONE\r\nTZID:Europe/Berlin\r\nBEGIN:STANDARD\r\nDTSTART:19701025T030000\r\n" +
		"TZOFFSETFROM:+0200\r\nTZOFFSETTO:+0100\r\nEND:STANDARD\r\nEND:VTIMEZONE\r\n" +
		"BEGIN:VEVENT\r\nUID:A1\r\nDTSTART:20260113T140000Z\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR"
	comp, err := DecodeVEvent(ics)
	require.NoError(t, err)
	assert.Equal(t, "A1", comp.Props.Get(ical.PropUID).Value)
}

// TestDecodeVEvent_AcceptsPlainEvent is the control case: a single VEVENT,
// no METHOD, parses cleanly.
func TestDecodeVEvent_AcceptsPlainEvent(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\nUID:A1\r\nDTSTART:20260113T140000Z\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR"
	comp, err := DecodeVEvent(ics)
	require.NoError(t, err)
	assert.Equal(t, "A1", comp.Props.Get(ical.PropUID).Value)
}
