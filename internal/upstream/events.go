package upstream

import (
	"context"
	"net/url"
	"time"
)

// GetOccurrences lists calendar event occurrences whose window overlaps
// [start, end]: the upstream filters on endDateTime.gte=start and
// startDateTime.lte=end, i.e. any occurrence that overlaps the requested
// range at all.
func (c *Client) GetOccurrences(ctx context.Context, ownerKey string, start, end time.Time, offset, limit int, fields []string) (*OccurrencesResponse, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	q := url.Values{}
	q.Set("ownerKey", ownerKey)
	q.Set("endDateTime.gte", start.UTC().Format(time.RFC3339))
	q.Set("startDateTime.lte", end.UTC().Format(time.RFC3339))
	q.Set("offset", intParam(offset))
	q.Set("limit", intParam(limit))
	if len(fields) > 0 {
		q.Set("fields", joinComma(fields))
	}

	var out OccurrencesResponse
	if err := c.doAuthenticated(ctx, "GET", "/calendarEventsOccurrences", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEvent fetches a single event by key, ignoring occurrence expansion.
func (c *Client) GetEvent(ctx context.Context, eventKey string, fields []string) (*Event, error) {
	q := url.Values{}
	if len(fields) > 0 {
		q.Set("fields", joinComma(fields))
	}
	var out Event
	if err := c.doAuthenticated(ctx, "GET", "/calendarEvents/"+url.PathEscape(eventKey), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEvent creates a new event. The upstream assigns the authoritative
// Key; callers must relocate the client-visible resource to that key
// rather than trusting any client-supplied identifier.
func (c *Client) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	var out Event
	if err := c.doAuthenticated(ctx, "POST", "/calendarEvents", nil, event, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEvent replaces an existing event's fields via PATCH.
func (c *Client) UpdateEvent(ctx context.Context, eventKey string, event *Event) (*Event, error) {
	var out Event
	if err := c.doAuthenticated(ctx, "PATCH", "/calendarEvents/"+url.PathEscape(eventKey), nil, event, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteEvent deletes an event and all of its occurrences.
func (c *Client) DeleteEvent(ctx context.Context, eventKey string) error {
	return c.doAuthenticated(ctx, "DELETE", "/calendarEvents/"+url.PathEscape(eventKey), nil, nil, nil)
}

// GetEventOccurrence fetches a single materialized occurrence of a
// recurring event. This is the only occurrence-level call the CalDAV
// surface reaches; UpdateEventOccurrence/DeleteEventOccurrence stay
// uncalled, since occurrence-level PUT/DELETE are rejected with 405.
func (c *Client) GetEventOccurrence(ctx context.Context, eventKey, occurrenceID string, fields []string) (*Event, error) {
	q := url.Values{}
	if len(fields) > 0 {
		q.Set("fields", joinComma(fields))
	}
	var out Event
	path := "/calendarEvents/" + url.PathEscape(eventKey) + "/occurrences/" + url.PathEscape(occurrenceID)
	if err := c.doAuthenticated(ctx, "GET", path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateEventOccurrence(ctx context.Context, eventKey, occurrenceID string, event *Event) (*Event, error) {
	var out Event
	path := "/calendarEvents/" + url.PathEscape(eventKey) + "/occurrences/" + url.PathEscape(occurrenceID)
	if err := c.doAuthenticated(ctx, "PATCH", path, nil, event, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEventOccurrence(ctx context.Context, eventKey, occurrenceID string) error {
	path := "/calendarEvents/" + url.PathEscape(eventKey) + "/occurrences/" + url.PathEscape(occurrenceID)
	return c.doAuthenticated(ctx, "DELETE", path, nil, nil, nil)
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
