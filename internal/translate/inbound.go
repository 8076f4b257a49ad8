package translate

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

// VEventToEvent converts a client-supplied VEVENT into an upstream event
// record, the inverse of EventToVEvent. ownerKey is stamped onto the
// record; loc is the upstream's configured timezone,
// used to derive occurrenceStartTime/occurrenceEndTime from a recurring
// event's first instance.
func VEventToEvent(comp *ical.Component, ownerKey string, loc *time.Location) (*upstream.Event, error) {
	if comp.Name != ical.CompEvent {
		return nil, fmt.Errorf("translate: expected VEVENT, got %q", comp.Name)
	}

	ev := &upstream.Event{OwnerKey: ownerKey}
	setCommonScalarsInbound(comp, ev)

	dtStart := comp.Props.Get(ical.PropDateTimeStart)
	dtEnd := comp.Props.Get(ical.PropDateTimeEnd)
	if dtStart == nil {
		return nil, fmt.Errorf("translate: VEVENT missing DTSTART")
	}

	wholeDay := isDateOnly(dtStart)
	ev.WholeDayEvent = wholeDay

	rruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	if rruleProp == nil {
		ev.EventMode = "single"
		start, err := dtStart.DateTime(time.UTC)
		if err != nil {
			return nil, fmt.Errorf("translate: parse DTSTART: %w", err)
		}
		end := start
		if dtEnd != nil {
			end, err = dtEnd.DateTime(time.UTC)
			if err != nil {
				return nil, fmt.Errorf("translate: parse DTEND: %w", err)
			}
		}
		ev.StartDateTime = formatInformDateTime(start.UTC())
		ev.StartDateTimeEnabled = true
		ev.EndDateTime = formatInformDateTime(end.UTC())
		ev.EndDateTimeEnabled = true
		applyAlarmInbound(comp, ev)
		return ev, nil
	}

	ev.EventMode = "serial"
	schema, err := RRuleToSeriesSchema(rruleProp.Value)
	if err != nil {
		return nil, err
	}
	ev.SeriesSchema = schema

	start, err := dtStart.DateTime(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("translate: parse DTSTART: %w", err)
	}
	ev.SeriesStartDate = dateOnly(start).Format(informDateLayout)

	if !wholeDay {
		ev.OccurrenceStartTime = secondsFromLocalMidnight(start, loc)
		ev.OccurrenceStartTimeEnabled = true
		if dtEnd != nil {
			end, err := dtEnd.DateTime(time.UTC)
			if err != nil {
				return nil, fmt.Errorf("translate: parse DTEND: %w", err)
			}
			ev.OccurrenceEndTime = secondsFromLocalMidnight(end, loc)
			ev.OccurrenceEndTimeEnabled = true
		} else {
			// No DTEND on a recurring client PUT: fall back to one minute
			// before local midnight (86340s).
			ev.OccurrenceEndTime = 86340
			ev.OccurrenceEndTimeEnabled = true
		}
	}

	if until, ok := rruleParts(rruleProp.Value)["UNTIL"]; ok {
		if end, err := parseUntil(until); err == nil {
			ev.SeriesEndDate = end.Format(informDateLayout)
		}
	}

	applyAlarmInbound(comp, ev)
	return ev, nil
}

func isDateOnly(prop *ical.Prop) bool {
	return prop.Params.Get(ical.ParamValue) == string(ical.ValueDate)
}

func parseUntil(v string) (time.Time, error) {
	v = strings.TrimSuffix(v, "Z")
	for _, layout := range []string{"20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("translate: malformed UNTIL %q", v)
}

func setCommonScalarsInbound(comp *ical.Component, ev *upstream.Event) {
	if p := comp.Props.Get(ical.PropUID); p != nil {
		key, occurrenceID := splitUID(p.Value)
		ev.Key = key
		ev.OccurrenceID = occurrenceID
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		ev.Subject = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		ev.Content = p.Value
	}
	if p := comp.Props.Get(ical.PropLocation); p != nil {
		ev.Location = p.Value
	}
	if p := comp.Props.Get(ical.PropCategories); p != nil {
		ev.EventCategory = p.Value
	}
	if p := comp.Props.Get(ical.PropClass); p != nil {
		ev.Private = strings.EqualFold(p.Value, "PRIVATE") || strings.EqualFold(p.Value, "CONFIDENTIAL")
	}
}

// splitUID reverses the "key" / "key-occurrenceID" naming scheme.
// Only the upstream's own occurrence-id grammar
// (digits, optionally signed) is accepted as a suffix; anything else
// (notably a client-minted UUID, which itself contains hyphens) is left
// attached to key so it is never misparsed as an occurrence id.
func splitUID(uid string) (key, occurrenceID string) {
	idx := strings.LastIndex(uid, "-")
	if idx < 0 || idx == len(uid)-1 {
		return uid, ""
	}
	suffix := uid[idx+1:]
	if isOccurrenceIDGrammar(suffix) {
		return uid[:idx], suffix
	}
	return uid, ""
}

func isOccurrenceIDGrammar(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func applyAlarmInbound(comp *ical.Component, ev *upstream.Event) {
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		trigger := child.Props.Get(ical.PropTrigger)
		if trigger == nil {
			continue
		}
		seconds, ok := parseNegativeDurationSeconds(trigger.Value)
		if !ok {
			continue
		}
		ev.ReminderEnabled = true
		ev.RemindBeforeStart = seconds
		return
	}
}

// parseNegativeDurationSeconds parses a simple "-PT<n>S"/"-PT<n>M"/"-PT<n>H"
// style RFC 5545 DURATION value and returns the non-negative number of
// seconds it represents before the event start. Only triggers that fire
// before the start (a leading "-") map onto remindBeforeStart; anything
// else is not representable and is ignored.
func parseNegativeDurationSeconds(v string) (int, bool) {
	if !strings.HasPrefix(v, "-P") {
		return 0, false
	}
	v = strings.TrimPrefix(v, "-P")

	var days, weeks int
	timePart := ""
	if idx := strings.Index(v, "T"); idx >= 0 {
		datePart := v[:idx]
		timePart = v[idx+1:]
		if n, unit, ok := leadingNumber(datePart); ok {
			switch unit {
			case "W":
				weeks = n
			case "D":
				days = n
			}
		}
	} else {
		if n, unit, ok := leadingNumber(v); ok && unit == "W" {
			weeks = n
		} else if ok && unit == "D" {
			days = n
		}
	}

	seconds := (weeks*7 + days) * 86400
	rest := timePart
	for rest != "" {
		n, unit, ok := leadingNumber(rest)
		if !ok {
			break
		}
		switch unit {
		case "H":
			seconds += n * 3600
		case "M":
			seconds += n * 60
		case "S":
			seconds += n
		}
		idx := strings.Index(rest, unit)
		rest = rest[idx+1:]
	}
	return seconds, true
}

func leadingNumber(s string) (int, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return 0, "", false
	}
	n := 0
	for _, r := range s[:i] {
		n = n*10 + int(r-'0')
	}
	return n, string(s[i]), true
}
