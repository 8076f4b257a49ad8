package translate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

// TestEventToVEvent_BusinessDaysFirstInstanceCorrection covers a series
// whose seriesStartDate is a Saturday but whose schema is
// daily/allBusinessDays: it must emit the following Monday as DTSTART,
// not the Saturday itself.
func TestEventToVEvent_BusinessDaysFirstInstanceCorrection(t *testing.T) {
	ev := &upstream.Event{
		Key:                 "EV1",
		EventMode:           "serial",
		SeriesStartDate:     "2026-01-10", // Saturday
		OccurrenceStartTime: 50400,        // 14:00 local
		OccurrenceEndTime:   54000,        // 15:00 local
		SeriesSchema: &upstream.SeriesSchema{
			SchemaType:      "daily",
			DailySchemaData: &upstream.DailySchemaData{Regularity: "allBusinessDays"},
		},
	}

	comp, err := EventToVEvent(ev, berlin(t))
	require.NoError(t, err)

	rrule := comp.Props.Get("RRULE")
	require.NotNil(t, rrule)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR", rrule.Value)

	dtstart, err := comp.Props.Get("DTSTART").DateTime(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 12, 13, 0, 0, 0, time.UTC), dtstart.UTC())
}

// TestEventToVEvent_DSTBoundaryDoesNotCrash covers a series anchored on a
// Europe/Berlin DST-transition date: it must produce a stable DTSTART and
// must not panic or error, regardless of which side of the wall-clock gap
// the zoneinfo resolution picks.
func TestEventToVEvent_DSTBoundaryDoesNotCrash(t *testing.T) {
	ev := &upstream.Event{
		Key:                 "EV2",
		EventMode:           "serial",
		SeriesStartDate:     "2026-03-29",
		OccurrenceStartTime: 7200, // 02:00 local, inside the spring-forward gap
		OccurrenceEndTime:   10800,
		SeriesSchema: &upstream.SeriesSchema{
			SchemaType:      "daily",
			DailySchemaData: &upstream.DailySchemaData{Regularity: "interval", DaysInterval: 1},
		},
	}

	comp, err := EventToVEvent(ev, berlin(t))
	require.NoError(t, err)

	dtstart, err := comp.Props.Get("DTSTART").DateTime(time.UTC)
	require.NoError(t, err)

	dtend, err := comp.Props.Get("DTEND").DateTime(time.UTC)
	require.NoError(t, err)
	assert.True(t, dtend.After(dtstart))

	// Re-running the same translation must be stable: ETag determinism
	// depends on the underlying translation being deterministic.
	comp2, err := EventToVEvent(ev, berlin(t))
	require.NoError(t, err)
	dtstart2, err := comp2.Props.Get("DTSTART").DateTime(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, dtstart, dtstart2)
}

// TestEventToVEvent_SingleEvent covers a plain, non-recurring event: no
// RRULE, DTSTART/DTEND taken directly from the upstream's UTC fields.
func TestEventToVEvent_SingleEvent(t *testing.T) {
	ev := &upstream.Event{
		Key:           "A1",
		EventMode:     "single",
		Subject:       "Test",
		StartDateTime: "2026-01-13T14:00:00Z",
		EndDateTime:   "2026-01-13T15:00:00Z",
	}

	comp, err := EventToVEvent(ev, berlin(t))
	require.NoError(t, err)
	assert.Nil(t, comp.Props.Get("RRULE"))
	assert.Equal(t, "A1", comp.Props.Get("UID").Value)
	assert.Equal(t, "Test", comp.Props.Get("SUMMARY").Value)
}

// TestOccurrenceToVEvent_UsesCompositeUID covers an occurrence-listing
// record: UID must be "<key>-<occurrenceId>" and no RRULE is emitted.
func TestOccurrenceToVEvent_UsesCompositeUID(t *testing.T) {
	occ := &upstream.Event{
		Key:           "EV1",
		OccurrenceID:  "3",
		StartDateTime: "2026-01-12T13:00:00Z",
		EndDateTime:   "2026-01-12T14:00:00Z",
	}
	comp, err := OccurrenceToVEvent(occ)
	require.NoError(t, err)
	assert.Equal(t, "EV1-3", comp.Props.Get("UID").Value)
	assert.Nil(t, comp.Props.Get("RRULE"))
}

// TestSeriesRoundTrip checks that inbound(outbound(E)) preserves eventMode,
// subject, wholeDayEvent and the seriesSchema's schemaType, across every
// non-arrhythmic schema variant. seriesStartDate is not compared: the
// outbound first-instance correction can move DTSTART past it (the
// monthly-specificDate case starts on the 15th, not the 5th).
func TestSeriesRoundTrip(t *testing.T) {
	loc := berlin(t)
	cases := []struct {
		name   string
		schema *upstream.SeriesSchema
	}{
		{"daily-interval", &upstream.SeriesSchema{SchemaType: "daily", DailySchemaData: &upstream.DailySchemaData{Regularity: "interval", DaysInterval: 2}}},
		{"daily-allBusinessDays", &upstream.SeriesSchema{SchemaType: "daily", DailySchemaData: &upstream.DailySchemaData{Regularity: "allBusinessDays"}}},
		{"weekly", &upstream.SeriesSchema{SchemaType: "weekly", WeeklySchemaData: &upstream.WeeklySchemaData{Weekdays: []string{"monday", "wednesday"}, WeeksInterval: 2}}},
		{"monthly-specificDate", &upstream.SeriesSchema{SchemaType: "monthly", MonthlySchemaData: &upstream.MonthlySchemaData{Regularity: "specificDate", DayOfMonth: 15, MonthsInterval: 1}}},
		{"monthly-specificDay", &upstream.SeriesSchema{SchemaType: "monthly", MonthlySchemaData: &upstream.MonthlySchemaData{Regularity: "specificDay", Weekday: "friday", WeekNumber: 2, MonthsInterval: 1}}},
		{"yearly-specificDate", &upstream.SeriesSchema{SchemaType: "yearly", YearlySchemaData: &upstream.YearlySchemaData{Regularity: "specificDate", MonthOfYear: 6, DayOfMonth: 1}}},
		{"yearly-specificDay", &upstream.SeriesSchema{SchemaType: "yearly", YearlySchemaData: &upstream.YearlySchemaData{Regularity: "specificDay", MonthOfYear: 11, Weekday: "thursday", WeekNumber: 4}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := &upstream.Event{
				Key:                 "EV-" + tc.name,
				EventMode:           "serial",
				Subject:             "Weekly Sync",
				SeriesStartDate:     "2026-01-05", // Monday
				OccurrenceStartTime: 36000,
				OccurrenceEndTime:   39600,
				SeriesSchema:        tc.schema,
			}

			comp, err := EventToVEvent(ev, loc)
			require.NoError(t, err)

			back, err := VEventToEvent(comp, "owner-1", loc)
			require.NoError(t, err)

			assert.Equal(t, ev.EventMode, back.EventMode)
			assert.Equal(t, ev.Subject, back.Subject)
			assert.Equal(t, ev.WholeDayEvent, back.WholeDayEvent)
			assert.Equal(t, ev.SeriesSchema.SchemaType, back.SeriesSchema.SchemaType)
		})
	}
}

// TestVCalendarInvariants checks that a re-parsed outbound translation has
// exactly one VEVENT, a non-empty UID, DTSTART, DTEND, and CLASS in
// {PUBLIC, PRIVATE}.
func TestVCalendarInvariants(t *testing.T) {
	ev := &upstream.Event{
		Key:           "A1",
		EventMode:     "single",
		Subject:       "Test",
		Private:       true,
		StartDateTime: "2026-01-13T14:00:00Z",
		EndDateTime:   "2026-01-13T15:00:00Z",
	}
	comp, err := EventToVEvent(ev, berlin(t))
	require.NoError(t, err)

	ics, err := EncodeVEvent(comp)
	require.NoError(t, err)

	reparsed, err := DecodeVEvent(ics)
	require.NoError(t, err)

	assert.NotEmpty(t, reparsed.Props.Get("UID").Value)
	assert.NotNil(t, reparsed.Props.Get("DTSTART"))
	assert.NotNil(t, reparsed.Props.Get("DTEND"))
	assert.Equal(t, "PRIVATE", reparsed.Props.Get("CLASS").Value)
}
