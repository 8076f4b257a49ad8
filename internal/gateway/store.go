package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/emersion/go-ical"

	"github.com/inform-gateway/caldav-bridge/internal/config"
	"github.com/inform-gateway/caldav-bridge/internal/gwerror"
	"github.com/inform-gateway/caldav-bridge/internal/translate"
	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

// Object is a resolved calendar object: its VEVENT-bearing iCalendar body
// plus the ETag computed from that body. Modified mirrors the body's own
// DTSTAMP so getlastmodified stays as deterministic as the ETag.
type Object struct {
	EventKey string
	ICS      string
	ETag     string
	Modified time.Time
}

// Store adapts the upstream client to the shape the dispatcher needs:
// list/get/put/delete of calendar objects, with listing-mode-aware
// post-processing.
type Store struct {
	upstream *upstream.Client
	cfg      *config.Config
	loc      *time.Location
}

// NewStore constructs a Store. loc is the upstream's configured timezone,
// already parsed once at startup.
func NewStore(client *upstream.Client, cfg *config.Config, loc *time.Location) *Store {
	return &Store{upstream: client, cfg: cfg, loc: loc}
}

// etagOf is md5(body): equal bodies get equal ETags, nothing else does.
func etagOf(ics string) string {
	sum := md5.Sum([]byte(ics))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func modifiedOf(comp *ical.Component) time.Time {
	p := comp.Props.Get(ical.PropDateTimeStamp)
	if p == nil {
		return time.Time{}
	}
	t, err := p.DateTime(time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// List enumerates calendar objects within the store's default sync window,
// applying the configured listing mode.
func (s *Store) List(ctx context.Context) ([]Object, error) {
	now := time.Now().UTC()
	occurrences, err := s.upstream.GetOccurrences(ctx, s.cfg.OwnerKey, now.Add(-s.cfg.SyncWindow), now.Add(s.cfg.SyncWindow), 0, 1000, nil)
	if err != nil {
		return nil, err
	}

	if s.cfg.ListingMode == config.ListingOccurrence {
		return s.listPerOccurrence(occurrences.CalendarEvents)
	}
	return s.listDedupeByKey(ctx, occurrences.CalendarEvents)
}

// listPerOccurrence renders each occurrence record as a standalone
// non-recurring VEVENT, dropping any series identity.
func (s *Store) listPerOccurrence(occs []upstream.Event) ([]Object, error) {
	objects := make([]Object, 0, len(occs))
	for i := range occs {
		comp, err := translate.OccurrenceToVEvent(&occs[i])
		if err != nil {
			return nil, gwerror.Wrap(gwerror.KindInternal, "translate occurrence", err)
		}
		ics, err := translate.EncodeVEvent(comp)
		if err != nil {
			return nil, gwerror.Wrap(gwerror.KindInternal, "encode occurrence", err)
		}
		key := occs[i].Key
		if occs[i].OccurrenceID != "" {
			key = occs[i].Key + "-" + occs[i].OccurrenceID
		}
		objects = append(objects, Object{EventKey: key, ICS: ics, ETag: etagOf(ics), Modified: modifiedOf(comp)})
	}
	return objects, nil
}

// listDedupeByKey collapses occurrence records onto distinct event keys,
// then fetches each distinct event's full record (carrying seriesSchema)
// to render the series once with its synthesized RRULE. This is the
// default listing mode.
func (s *Store) listDedupeByKey(ctx context.Context, occs []upstream.Event) ([]Object, error) {
	seen := map[string]bool{}
	var keys []string
	for _, occ := range occs {
		if seen[occ.Key] {
			continue
		}
		seen[occ.Key] = true
		keys = append(keys, occ.Key)
	}

	objects := make([]Object, 0, len(keys))
	for _, key := range keys {
		obj, err := s.Get(ctx, key)
		if err != nil {
			if gwerror.Is(err, gwerror.KindUpstreamNotFound) {
				continue
			}
			return nil, err
		}
		objects = append(objects, *obj)
	}
	return objects, nil
}

// Get fetches one event by key and renders it as a VEVENT.
func (s *Store) Get(ctx context.Context, eventKey string) (*Object, error) {
	ev, err := s.upstream.GetEvent(ctx, eventKey, nil)
	if err != nil {
		return nil, err
	}
	comp, err := translate.EventToVEvent(ev, s.loc)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindInternal, "translate event", err)
	}
	ics, err := translate.EncodeVEvent(comp)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindInternal, "encode event", err)
	}
	return &Object{EventKey: eventKey, ICS: ics, ETag: etagOf(ics), Modified: modifiedOf(comp)}, nil
}

// GetOccurrence fetches one materialized occurrence of a series and renders
// it as a standalone VEVENT with the composite "<key>-<occurrenceId>" UID.
// Reads are the only occurrence-level operation the CalDAV surface exposes;
// occurrence-level PUT/DELETE stay rejected at the dispatcher.
func (s *Store) GetOccurrence(ctx context.Context, eventKey, occurrenceID string) (*Object, error) {
	occ, err := s.upstream.GetEventOccurrence(ctx, eventKey, occurrenceID, nil)
	if err != nil {
		return nil, err
	}
	occ.Key = eventKey
	occ.OccurrenceID = occurrenceID
	comp, err := translate.OccurrenceToVEvent(occ)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindInternal, "translate occurrence", err)
	}
	ics, err := translate.EncodeVEvent(comp)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindInternal, "encode occurrence", err)
	}
	return &Object{EventKey: eventKey + "-" + occurrenceID, ICS: ics, ETag: etagOf(ics), Modified: modifiedOf(comp)}, nil
}

// Put creates or updates an event from a client-supplied iCalendar body.
// It reports whether a new event was created and returns the read-back
// object used to compute the response ETag; on create, that object's
// EventKey is the upstream-assigned key the resource is relocated to.
// Every write reads its own result back from the upstream rather than
// trusting the request body for the ETag.
func (s *Store) Put(ctx context.Context, eventKey string, ics string) (created bool, obj *Object, err error) {
	comp, err := translate.DecodeVEvent(ics)
	if err != nil {
		return false, nil, gwerror.Wrap(gwerror.KindValidation, "parse calendar object", err)
	}
	ev, err := translate.VEventToEvent(comp, s.cfg.OwnerKey, s.loc)
	if err != nil {
		return false, nil, gwerror.Wrap(gwerror.KindValidation, "translate calendar object", err)
	}
	// The upstream assigns the authoritative key on create, and the PATCH
	// URL carries it on update; the body's UID never selects the record.
	ev.Key = ""
	ev.OccurrenceID = ""

	existing, getErr := s.upstream.GetEvent(ctx, eventKey, nil)
	if getErr == nil && existing != nil {
		updated, err := s.upstream.UpdateEvent(ctx, eventKey, ev)
		if err != nil {
			return false, nil, err
		}
		readBack, err := s.Get(ctx, updated.Key)
		if err != nil {
			return false, nil, err
		}
		return false, readBack, nil
	}

	createdEvent, err := s.upstream.CreateEvent(ctx, ev)
	if err != nil {
		return false, nil, err
	}
	readBack, err := s.Get(ctx, createdEvent.Key)
	if err != nil {
		return false, nil, err
	}
	return true, readBack, nil
}

// Feed renders every deduplicated event for ownerKey as a single combined
// VCALENDAR: the occurrence window is re-fetched and deduplicated by key
// exactly as List's default listing mode does, then each event's VEVENT is
// decoded back out of its rendered ICS and encoded together rather than
// one-VCALENDAR-per-object.
func (s *Store) Feed(ctx context.Context, ownerKey string) (string, error) {
	now := time.Now().UTC()
	occurrences, err := s.upstream.GetOccurrences(ctx, ownerKey, now.Add(-s.cfg.SyncWindow), now.Add(s.cfg.SyncWindow), 0, 1000, nil)
	if err != nil {
		return "", err
	}

	objects, err := s.listDedupeByKey(ctx, occurrences.CalendarEvents)
	if err != nil {
		return "", err
	}

	comps := make([]*ical.Component, 0, len(objects))
	for i := range objects {
		comp, err := translate.DecodeVEvent(objects[i].ICS)
		if err != nil {
			return "", gwerror.Wrap(gwerror.KindInternal, "decode feed event", err)
		}
		comps = append(comps, comp)
	}

	return translate.EncodeVEvents(comps)
}

// Delete removes an event by key.
func (s *Store) Delete(ctx context.Context, eventKey string) error {
	return s.upstream.DeleteEvent(ctx, eventKey)
}
