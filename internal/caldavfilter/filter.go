// Package caldavfilter parses a calendar-query REPORT's <filter> element
// and evaluates it against a VEVENT, per RFC 4791 §7.8. Only the subset
// the REPORT handler needs is implemented: a VCALENDAR comp-filter
// containing a single VEVENT comp-filter with an optional time-range and
// prop-filters with text-match.
package caldavfilter

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// TimeRange is a [Start, End) window, either bound open-ended per
// RFC 4791 §9.9 (a missing attribute means unbounded on that side).
type TimeRange struct {
	Start *time.Time
	End   *time.Time
}

// TextMatch is a prop-filter's text-match child.
type TextMatch struct {
	Value     string
	Collation string
	Negate    bool
}

// PropFilter matches (or rejects, if IsNotDefined) a named property.
type PropFilter struct {
	Name         string
	IsNotDefined bool
	TextMatch    *TextMatch
}

// CompFilter is one comp-filter, recursively nested. Evaluation only ever
// descends into the VEVENT level.
type CompFilter struct {
	Name         string
	IsNotDefined bool
	TimeRange    *TimeRange
	PropFilters  []PropFilter
	Children     []CompFilter
}

// Filter is a parsed <filter> element's root comp-filter (always VCALENDAR).
type Filter struct {
	Root CompFilter
}

const timeRangeLayout = "20060102T150405Z"

// Parse parses a <filter> element from a REPORT request body.
func Parse(filterElem *etree.Element) (*Filter, error) {
	if filterElem == nil {
		return nil, nil
	}
	root := findChildIgnoreNS(filterElem, "comp-filter")
	if root == nil {
		return nil, nil
	}
	return &Filter{Root: parseCompFilter(root)}, nil
}

func parseCompFilter(elem *etree.Element) CompFilter {
	cf := CompFilter{Name: elem.SelectAttrValue("name", "")}

	if findChildIgnoreNS(elem, "is-not-defined") != nil {
		cf.IsNotDefined = true
		return cf
	}
	if tr := findChildIgnoreNS(elem, "time-range"); tr != nil {
		cf.TimeRange = parseTimeRange(tr)
	}
	for _, pf := range childrenIgnoreNS(elem, "prop-filter") {
		cf.PropFilters = append(cf.PropFilters, parsePropFilter(pf))
	}
	for _, child := range childrenIgnoreNS(elem, "comp-filter") {
		cf.Children = append(cf.Children, parseCompFilter(child))
	}
	return cf
}

func parsePropFilter(elem *etree.Element) PropFilter {
	pf := PropFilter{Name: elem.SelectAttrValue("name", "")}
	if findChildIgnoreNS(elem, "is-not-defined") != nil {
		pf.IsNotDefined = true
		return pf
	}
	if tm := findChildIgnoreNS(elem, "text-match"); tm != nil {
		pf.TextMatch = &TextMatch{
			Value:     tm.Text(),
			Collation: tm.SelectAttrValue("collation", "i;unicode-casemap"),
			Negate:    tm.SelectAttrValue("negate-condition", "no") == "yes",
		}
	}
	return pf
}

func parseTimeRange(elem *etree.Element) *TimeRange {
	tr := &TimeRange{}
	if s := elem.SelectAttrValue("start", ""); s != "" {
		if t, err := time.Parse(timeRangeLayout, s); err == nil {
			tr.Start = &t
		}
	}
	if e := elem.SelectAttrValue("end", ""); e != "" {
		if t, err := time.Parse(timeRangeLayout, e); err == nil {
			tr.End = &t
		}
	}
	return tr
}

func childrenIgnoreNS(parent *etree.Element, localName string) []*etree.Element {
	var out []*etree.Element
	for _, child := range parent.ChildElements() {
		if strings.EqualFold(localNameOf(child.Tag), localName) {
			out = append(out, child)
		}
	}
	return out
}

func findChildIgnoreNS(parent *etree.Element, localName string) *etree.Element {
	elems := childrenIgnoreNS(parent, localName)
	if len(elems) == 0 {
		return nil
	}
	return elems[0]
}

func localNameOf(tag string) string {
	if idx := strings.Index(tag, ":"); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}

// Matches reports whether comp (a VEVENT) satisfies the filter's VEVENT
// comp-filter: its time-range (expanding RRULE occurrences if present) and
// every prop-filter.
func (f *Filter) Matches(comp *ical.Component) bool {
	if f == nil {
		return true
	}
	vevent := findVEvent(f.Root)
	if vevent == nil {
		return true
	}
	return matchesComp(*vevent, comp)
}

func findVEvent(cf CompFilter) *CompFilter {
	if strings.EqualFold(cf.Name, "VEVENT") {
		return &cf
	}
	for _, child := range cf.Children {
		if found := findVEvent(child); found != nil {
			return found
		}
	}
	return nil
}

func matchesComp(cf CompFilter, comp *ical.Component) bool {
	if cf.IsNotDefined {
		return false
	}
	if cf.TimeRange != nil && !matchesTimeRange(cf.TimeRange, comp) {
		return false
	}
	for _, pf := range cf.PropFilters {
		if !matchesPropFilter(pf, comp) {
			return false
		}
	}
	return true
}

func matchesPropFilter(pf PropFilter, comp *ical.Component) bool {
	prop := comp.Props.Get(pf.Name)
	if pf.IsNotDefined {
		return prop == nil
	}
	if prop == nil {
		return false
	}
	if pf.TextMatch == nil {
		return true
	}
	contains := strings.Contains(strings.ToLower(prop.Value), strings.ToLower(pf.TextMatch.Value))
	if pf.TextMatch.Negate {
		return !contains
	}
	return contains
}

// matchesTimeRange reports whether comp has an occurrence overlapping tr,
// expanding its RRULE (if any) across the window rather than only
// inspecting DTSTART/DTEND of the master instance, per RFC 4791 §9.9.
func matchesTimeRange(tr *TimeRange, comp *ical.Component) bool {
	dtStart := comp.Props.Get(ical.PropDateTimeStart)
	if dtStart == nil {
		return true
	}
	start, err := dtStart.DateTime(time.UTC)
	if err != nil {
		return true
	}
	end := start
	if dtEnd := comp.Props.Get(ical.PropDateTimeEnd); dtEnd != nil {
		if e, err := dtEnd.DateTime(time.UTC); err == nil {
			end = e
		}
	}
	duration := end.Sub(start)

	rangeStart := time.Time{}
	if tr.Start != nil {
		rangeStart = *tr.Start
	}
	rangeEnd := start.AddDate(100, 0, 0)
	if tr.End != nil {
		rangeEnd = *tr.End
	}

	rruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	if rruleProp == nil {
		return overlaps(start, end, rangeStart, rangeEnd)
	}

	set, err := rrule.StrToRRuleSet(buildRRuleSetText(start, rruleProp.Value))
	if err != nil {
		return overlaps(start, end, rangeStart, rangeEnd)
	}
	// Widen the lower bound by the event's own duration so an occurrence
	// that starts before rangeStart but still overlaps it is not missed.
	occurrences := set.Between(rangeStart.Add(-duration), rangeEnd, false)
	return len(occurrences) > 0
}

func buildRRuleSetText(dtstart time.Time, rruleValue string) string {
	return "DTSTART:" + dtstart.UTC().Format("20060102T150405Z") + "\nRRULE:" + rruleValue
}

func overlaps(start, end, rangeStart, rangeEnd time.Time) bool {
	if !end.After(start) {
		end = start
	}
	return start.Before(rangeEnd) && end.After(rangeStart)
}
