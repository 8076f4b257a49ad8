package translate

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

// EventToVEvent converts an upstream event record (fetched from the
// full-event endpoint, carrying seriesSchema) to a VEVENT component. loc
// is the upstream's configured local timezone, used to interpret
// occurrenceStartTime/occurrenceEndTime.
func EventToVEvent(ev *upstream.Event, loc *time.Location) (*ical.Component, error) {
	if ev.EventMode == "serial" {
		return serialEventToVEvent(ev, loc)
	}
	return singleEventToVEvent(ev, ev.Key, "")
}

// OccurrenceToVEvent converts one record returned by the occurrences-listing
// endpoint to a standalone VEVENT. Listing records never carry seriesSchema
// and are always rendered as concrete, non-recurring instances.
func OccurrenceToVEvent(occ *upstream.Event) (*ical.Component, error) {
	return singleEventToVEvent(occ, occ.Key, occ.OccurrenceID)
}

func singleEventToVEvent(ev *upstream.Event, key, occurrenceID string) (*ical.Component, error) {
	uid := key
	if occurrenceID != "" {
		uid = key + "-" + occurrenceID
	}

	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, uid)
	setCommonScalars(comp, ev)

	start, err := parseInformDateTime(ev.StartDateTime)
	if err != nil {
		return nil, fmt.Errorf("translate: parse startDateTime: %w", err)
	}
	end, err := parseInformDateTime(ev.EndDateTime)
	if err != nil {
		return nil, fmt.Errorf("translate: parse endDateTime: %w", err)
	}

	if ev.WholeDayEvent {
		setDateOnly(comp, ical.PropDateTimeStart, start)
		setDateOnly(comp, ical.PropDateTimeEnd, end)
	} else {
		comp.Props.SetDateTime(ical.PropDateTimeStart, start)
		comp.Props.SetDateTime(ical.PropDateTimeEnd, end)
	}

	addAlarm(comp, ev)
	// DTSTAMP has no backing field on the upstream event (no last-modified
	// timestamp is exposed), so it is pinned to the instance start rather
	// than wall-clock time: the upstream has no last-modified timestamp to
	// reflect here, and time.Now() would make the ETag (a hash of this
	// encoded body) change on every read of an unchanged event.
	comp.Props.SetDateTime(ical.PropDateTimeStamp, start.UTC())
	return comp, nil
}

func serialEventToVEvent(ev *upstream.Event, loc *time.Location) (*ical.Component, error) {
	rruleStr, hasRRule, err := SeriesSchemaToRRule(ev.SeriesSchema)
	if err != nil {
		return nil, err
	}

	comp := ical.NewComponent(ical.CompEvent)
	comp.Props.SetText(ical.PropUID, ev.Key)
	setCommonScalars(comp, ev)

	seriesStart, err := parseInformDate(ev.SeriesStartDate)
	if err != nil {
		return nil, fmt.Errorf("translate: parse seriesStartDate: %w", err)
	}

	var dtstamp time.Time
	if ev.WholeDayEvent {
		first := dateOnly(seriesStart)
		if hasRRule {
			first = firstRRuleInstance(first, rruleStr)
		}
		setDateOnly(comp, ical.PropDateTimeStart, first)
		setDateOnly(comp, ical.PropDateTimeEnd, first)
		dtstamp = first
	} else {
		anchorStart := localMidnightPlusSeconds(seriesStart, ev.OccurrenceStartTime, loc)
		anchorEnd := localMidnightPlusSeconds(seriesStart, ev.OccurrenceEndTime, loc)
		duration := anchorEnd.Sub(anchorStart)

		first := anchorStart
		if hasRRule {
			first = firstRRuleInstance(anchorStart, rruleStr)
		}
		comp.Props.SetDateTime(ical.PropDateTimeStart, first)
		comp.Props.SetDateTime(ical.PropDateTimeEnd, first.Add(duration))
		dtstamp = first
	}

	if hasRRule {
		if ev.SeriesEndDate != "" && !ruleHasUntil(rruleStr) {
			seriesEnd, err := parseInformDate(ev.SeriesEndDate)
			if err == nil {
				rruleStr += ";UNTIL=" + seriesEnd.Format("20060102") + "T235959Z"
			}
		}
		rruleProp := ical.NewProp(ical.PropRecurrenceRule)
		rruleProp.Value = rruleStr
		comp.Props.Set(rruleProp)
	}

	addAlarm(comp, ev)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, dtstamp.UTC())
	return comp, nil
}

// firstRRuleInstance recomputes the first occurrence of rruleStr starting
// from a provisional anchor: seriesStartDate does not always satisfy the
// rule's own constraints (e.g. BYDAY).
func firstRRuleInstance(anchor time.Time, rruleStr string) time.Time {
	set, err := rrule.StrToRRuleSet(fmt.Sprintf("DTSTART:%s\nRRULE:%s", anchor.UTC().Format("20060102T150405Z"), rruleStr))
	if err != nil {
		return anchor
	}
	occurrences := set.Between(anchor, anchor.AddDate(5, 0, 0), true)
	if len(occurrences) == 0 {
		return anchor
	}
	return occurrences[0]
}

func ruleHasUntil(rruleStr string) bool {
	_, ok := rruleParts(rruleStr)["UNTIL"]
	return ok
}

func setCommonScalars(comp *ical.Component, ev *upstream.Event) {
	if ev.Subject != "" {
		comp.Props.SetText(ical.PropSummary, ev.Subject)
	}
	if ev.Content != "" {
		comp.Props.SetText(ical.PropDescription, ev.Content)
	}
	if ev.Location != "" {
		comp.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.EventCategory != "" {
		comp.Props.Set(&ical.Prop{Name: ical.PropCategories, Value: ev.EventCategory})
	}
	if ev.Private {
		comp.Props.SetText(ical.PropClass, "PRIVATE")
	} else {
		comp.Props.SetText(ical.PropClass, "PUBLIC")
	}
}

func addAlarm(comp *ical.Component, ev *upstream.Event) {
	if !ev.ReminderEnabled || ev.RemindBeforeStart <= 0 {
		return
	}
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	desc := ev.Subject
	if desc == "" {
		desc = "Reminder"
	}
	alarm.Props.SetText(ical.PropDescription, desc)
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = fmt.Sprintf("-PT%dS", ev.RemindBeforeStart)
	alarm.Props.Set(trigger)
	comp.Children = append(comp.Children, alarm)
}

func setDateOnly(comp *ical.Component, name string, t time.Time) {
	prop := ical.NewProp(name)
	prop.Params.Set(ical.ParamValue, string(ical.ValueDate))
	prop.Value = t.Format("20060102")
	comp.Props.Set(prop)
}
