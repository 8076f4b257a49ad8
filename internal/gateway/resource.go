package gateway

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ResourceType enumerates the kinds of path this gateway recognizes.
type ResourceType int

const (
	ResourceUnknown ResourceType = iota
	ResourcePrincipal
	ResourceCalendarHomeSet
	ResourceCalendar
	ResourceCalendarObject
	ResourceAddressbookHomeSet
	ResourceAddressbook
	ResourceAddressObject
)

// CalendarName is the single calendar collection this gateway serves.
const CalendarName = "calendar"

// Resource is a parsed request path.
type Resource struct {
	Type ResourceType

	// EventKey/OccurrenceID are populated for ResourceCalendarObject from
	// the static split heuristic in splitStem. Stem is the undivided path
	// segment the split came from; when OccurrenceID != "", the gateway
	// must still confirm the split against the upstream
	// (Handler.resolveCalendarObjectIdentity) before trusting it.
	EventKey     string
	OccurrenceID string
	Stem         string

	// AddressBookType/AddressKey are populated for Addressbook/AddressObject.
	AddressBookType string
	AddressKey      string
}

const (
	principalPath   = "/principal/"
	calendarHome    = "/calendars/"
	addressbookHome = "/addressbooks/"
)

// ParsePath decomposes a request path into a Resource. The whole principal
// subtree maps onto the single synthetic principal; calendar object stems
// are split speculatively by splitStem and must be confirmed against the
// upstream before the split is trusted.
func ParsePath(path string) Resource {
	path = strings.Trim(path, "/")
	switch {
	case path == "principal" || strings.HasPrefix(path, "principal/"):
		return Resource{Type: ResourcePrincipal}

	case path == "calendars":
		return Resource{Type: ResourceCalendarHomeSet}
	case strings.HasPrefix(path, "calendars/"):
		return parseCalendarPath(strings.TrimPrefix(path, "calendars/"))

	case path == "addressbooks":
		return Resource{Type: ResourceAddressbookHomeSet}
	case strings.HasPrefix(path, "addressbooks/"):
		return parseAddressbookPath(strings.TrimPrefix(path, "addressbooks/"))
	}

	return Resource{Type: ResourceUnknown}
}

func parseCalendarPath(rest string) Resource {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return Resource{Type: ResourceCalendarHomeSet}
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 || parts[1] == "" {
		return Resource{Type: ResourceCalendar}
	}
	stem := strings.TrimSuffix(parts[1], ".ics")
	key, occurrenceID := splitStem(stem)
	return Resource{Type: ResourceCalendarObject, EventKey: key, OccurrenceID: occurrenceID, Stem: stem}
}

func parseAddressbookPath(rest string) Resource {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return Resource{Type: ResourceAddressbookHomeSet}
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 || parts[1] == "" {
		return Resource{Type: ResourceAddressbook, AddressBookType: parts[0]}
	}
	key := strings.TrimSuffix(parts[1], ".vcf")
	return Resource{Type: ResourceAddressObject, AddressBookType: parts[0], AddressKey: key}
}

// splitStem proposes a candidate split on the last "-", when what follows
// matches the upstream's occurrence-id grammar (a decimal integer) AND the
// stem isn't itself a client-minted UUID. The digits check alone does not
// rule out UUIDs: a UUID's final 12-hex-digit group can consist solely of
// decimal digits (e.g. "...-426614174000"), so uuid.Parse is the guard
// that keeps such stems whole. This split is
// only a proposal and must be confirmed against the upstream before it is
// trusted (Handler.resolveCalendarObjectIdentity), since a client-chosen
// resource name that merely ends in "-<digits>" (e.g. "cid-1.ics") is
// syntactically indistinguishable from an occurrence path here.
func splitStem(stem string) (key, occurrenceID string) {
	if _, err := uuid.Parse(stem); err == nil {
		return stem, ""
	}
	idx := strings.LastIndex(stem, "-")
	if idx <= 0 || idx == len(stem)-1 {
		return stem, ""
	}
	suffix := stem[idx+1:]
	if !isDecimal(suffix) {
		return stem, ""
	}
	return stem[:idx], suffix
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// ObjectHref builds the href for a calendar object, mirroring ParsePath's
// inverse.
func ObjectHref(eventKey string) string {
	return calendarHome + CalendarName + "/" + eventKey + ".ics"
}

// CollectionHref is the calendar collection's own href.
func CollectionHref() string {
	return calendarHome + CalendarName + "/"
}

// PrincipalHref is the synthetic principal's href.
func PrincipalHref() string { return principalPath }

// CalendarHomeSetHref is the calendar-home-set href.
func CalendarHomeSetHref() string { return calendarHome }

// AddressbookHomeSetHref is the addressbook-home-set href.
func AddressbookHomeSetHref() string { return addressbookHome }

// AddressbookHref is one address book collection's href.
func AddressbookHref(addressType string) string {
	return addressbookHome + addressType + "/"
}

// AddressObjectHref is one address object's href.
func AddressObjectHref(addressType, key string) string {
	return addressbookHome + addressType + "/" + key + ".vcf"
}
