// Package translate converts between the upstream's JSON event
// representation and iCalendar.
package translate

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// EncodeVEvent wraps a single VEVENT component in a minimal VCALENDAR and
// serializes it to an ICS string.
func EncodeVEvent(comp *ical.Component) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//INFORM Gateway//CalDAV Bridge//EN")

	if comp.Props.Get(ical.PropDateTimeStamp) == nil {
		comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now())
	}
	cal.Children = append(cal.Children, comp)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("translate: encode calendar: %w", err)
	}
	return buf.String(), nil
}

// EncodeVEvents wraps many VEVENT components in a single VCALENDAR, for the
// combined subscription feed: one PUBLISH calendar carrying every event
// rather than one VCALENDAR per object.
func EncodeVEvents(comps []*ical.Component) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//INFORM Gateway//CalDAV Bridge//EN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")
	cal.Props.SetText("CALSCALE", "GREGORIAN")

	for _, comp := range comps {
		if comp.Props.Get(ical.PropDateTimeStamp) == nil {
			comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now())
		}
		cal.Children = append(cal.Children, comp)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("translate: encode combined calendar: %w", err)
	}
	return buf.String(), nil
}

// DecodeVEvent parses an ICS string (with or without a VCALENDAR wrapper)
// and returns its single VEVENT component. A client PUT body is rejected
// if it names a METHOD (a scheduling message, not a plain object write),
// contains more than one event-bearing component, or carries VEVENTs with
// conflicting UIDs.
func DecodeVEvent(ics string) (*ical.Component, error) {
	if !strings.HasPrefix(strings.TrimSpace(ics), "BEGIN:VCALENDAR") {
		ics = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//INFORM Gateway//CalDAV Bridge//EN\r\n" + ics + "\r\nEND:VCALENDAR"
	}

	dec := ical.NewDecoder(strings.NewReader(ics))
	cal, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("translate: decode calendar: %w", err)
	}

	if m := cal.Props.Get(ical.PropMethod); m != nil {
		return nil, fmt.Errorf("translate: calendar object must not carry a METHOD property (got %q)", m.Value)
	}

	var vevents []*ical.Component
	for _, child := range cal.Children {
		switch child.Name {
		case ical.CompEvent:
			vevents = append(vevents, child)
		case ical.CompTimezone:
			// Clients attach VTIMEZONE definitions alongside timed events;
			// they carry no event data and are not a second component kind.
		default:
			return nil, fmt.Errorf("translate: calendar object must contain only VEVENT components, found %q", child.Name)
		}
	}
	if len(vevents) == 0 {
		return nil, fmt.Errorf("translate: no VEVENT component found")
	}
	if len(vevents) > 1 {
		return nil, fmt.Errorf("translate: calendar object must contain exactly one VEVENT, found %d", len(vevents))
	}

	uid := ""
	for _, v := range vevents {
		prop := v.Props.Get(ical.PropUID)
		if prop == nil {
			continue
		}
		if uid == "" {
			uid = prop.Value
		} else if prop.Value != uid {
			return nil, fmt.Errorf("translate: calendar object has conflicting UIDs (%q, %q)", uid, prop.Value)
		}
	}

	return vevents[0], nil
}
