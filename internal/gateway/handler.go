// Package gateway is the CalDAV dispatcher: it accepts an HTTP request,
// routes it by (path-prefix, method), and serializes a multistatus or
// single-status response, delegating resource identity to resource.go,
// upstream translation to Store, and XML construction to webdavxml.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/beevik/etree"

	"github.com/inform-gateway/caldav-bridge/internal/caldavfilter"
	"github.com/inform-gateway/caldav-bridge/internal/carddav"
	"github.com/inform-gateway/caldav-bridge/internal/gwerror"
	"github.com/inform-gateway/caldav-bridge/internal/translate"
	"github.com/inform-gateway/caldav-bridge/internal/webdavxml"
)

// Handler is the CalDAV/CardDAV dispatcher's http.Handler. It owns no
// upstream state directly; everything upstream-facing goes through Store
// and Directory.
type Handler struct {
	store         *Store
	directory     *carddav.Directory
	ownerKey      string
	enableCalDAV  bool
	enableCardDAV bool
	logger        *slog.Logger
}

// Options configures which surfaces New exposes. A surface is served only
// when its flag is set; the zero Options serves neither.
type Options struct {
	EnableCalDAV  bool
	EnableCardDAV bool
}

// New constructs a Handler. directory may be nil iff opts.EnableCardDAV is
// false.
func New(store *Store, directory *carddav.Directory, ownerKey string, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{
		store:         store,
		directory:     directory,
		ownerKey:      ownerKey,
		enableCalDAV:  opts.EnableCalDAV,
		enableCardDAV: opts.EnableCardDAV,
		logger:        logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	logger.Debug("request")

	if redirectWellKnown(w, r) {
		return
	}

	if r.URL.Path == "/feed.ics" {
		if err := h.handleFeed(w, r); err != nil {
			writeError(w, logger, err)
		}
		return
	}

	res := ParsePath(r.URL.Path)
	if res.Type == ResourceCalendarObject && h.enableCalDAV {
		res = h.resolveCalendarObjectIdentity(r.Context(), res)
	}

	var err error
	switch {
	case res.Type == ResourcePrincipal:
		err = h.handlePrincipal(w, r)
	case res.Type == ResourceCalendarHomeSet && h.enableCalDAV:
		err = h.handleCalendarHomeSet(w, r)
	case res.Type == ResourceCalendar && h.enableCalDAV:
		err = h.handleCalendar(w, r)
	case res.Type == ResourceCalendarObject && h.enableCalDAV:
		err = h.handleCalendarObject(w, r, res)
	case res.Type == ResourceAddressbookHomeSet && h.enableCardDAV:
		err = h.handleAddressbookHomeSet(w, r)
	case res.Type == ResourceAddressbook && h.enableCardDAV:
		err = h.handleAddressbook(w, r, res)
	case res.Type == ResourceAddressObject && h.enableCardDAV:
		err = h.handleAddressObject(w, r, res)
	default:
		http.NotFound(w, r)
		return
	}

	if err != nil {
		writeError(w, logger, err)
	}
}

func redirectWellKnown(w http.ResponseWriter, r *http.Request) bool {
	switch r.URL.Path {
	case "/.well-known/caldav", "/.well-known/carddav":
		w.Header().Set("Location", PrincipalHref())
		w.WriteHeader(http.StatusPermanentRedirect)
		return true
	}
	return false
}

// handleFeed answers GET /feed.ics?calendar=OWNER_KEY, the single-file
// subscription feed: a combined VCALENDAR containing every deduplicated
// event for the given owner, rather than one VCALENDAR per CalDAV object.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on feed")
	}
	ownerKey := r.URL.Query().Get("calendar")
	if ownerKey == "" {
		return gwerror.New(gwerror.KindValidation, "missing required 'calendar' parameter. Usage: /feed.ics?calendar=OWNER_KEY")
	}

	ics, err := h.store.Feed(r.Context(), ownerKey)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="calendar-%s.ics"`, ownerKey))
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write([]byte(ics))
	return nil
}

// resolveCalendarObjectIdentity confirms a speculative key/occurrence split
// against the upstream before trusting it: a
// client-minted resource name that merely ends in "-<digits>" (e.g.
// "cid-1.ics", "event-2.ics") must never be misread as an occurrence path.
// The split's key portion is only honored once it is confirmed to actually
// exist upstream; otherwise the whole stem is the event key, which is what
// lets a fresh PUT to such a path create a new single event instead of
// being rejected as a per-occurrence mutation.
func (h *Handler) resolveCalendarObjectIdentity(ctx context.Context, res Resource) Resource {
	if res.Type != ResourceCalendarObject || res.OccurrenceID == "" {
		return res
	}
	if _, err := h.store.Get(ctx, res.EventKey); err == nil {
		return res
	}
	return Resource{Type: ResourceCalendarObject, EventKey: res.Stem, Stem: res.Stem}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status >= 500 {
		logger.Error("request failed", "error", err, "status", status)
	} else {
		logger.Debug("request failed", "error", err, "status", status)
	}
	http.Error(w, msg, status)
}

// statusFor maps the internal error taxonomy to an HTTP status. This is
// the only place that performs that mapping; handlers and Store return
// *gwerror.Error and never call http.Error themselves.
func statusFor(err error) (int, string) {
	var gerr *gwerror.Error
	if !errors.As(err, &gerr) {
		return http.StatusInternalServerError, "internal error"
	}
	switch gerr.Kind {
	case gwerror.KindNotFound, gwerror.KindUpstreamNotFound:
		return http.StatusNotFound, "not found"
	case gwerror.KindForbidden:
		return http.StatusForbidden, gerr.Message
	case gwerror.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed, gerr.Message
	case gwerror.KindPreconditionFailed:
		return http.StatusPreconditionFailed, gerr.Message
	case gwerror.KindValidation:
		return http.StatusBadRequest, gerr.Message
	case gwerror.KindUpstreamBadRequest:
		return http.StatusUnprocessableEntity, gerr.Message
	case gwerror.KindProtocol:
		return http.StatusBadRequest, gerr.Message
	case gwerror.KindUpstreamAuth:
		return http.StatusInternalServerError, "internal error"
	case gwerror.KindUpstreamTimeout:
		return http.StatusGatewayTimeout, "upstream timeout"
	case gwerror.KindUpstreamServer:
		return http.StatusBadGateway, "upstream error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) handlePrincipal(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, REPORT")
		return nil
	case "PROPFIND":
		return h.propfind(w, r, principalResolvers, &propEnv{res: Resource{Type: ResourcePrincipal}})
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on principal")
	}
}

func writeOptions(w http.ResponseWriter, allow string) {
	w.Header().Set("DAV", "1, 3, calendar-access, addressbook")
	w.Header().Set("Allow", allow)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleCalendarHomeSet(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, REPORT")
		return nil
	case "PROPFIND":
		return h.propfind(w, r, homeSetResolvers, &propEnv{res: Resource{Type: ResourceCalendarHomeSet}})
	case http.MethodPut, http.MethodDelete, "MKCOL", "PROPPATCH", "COPY", "MOVE":
		return gwerror.New(gwerror.KindForbidden, "calendar home is read-only")
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on calendar home")
	}
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, REPORT")
		return nil
	case "PROPFIND":
		if r.Header.Get("Depth") == "1" {
			return h.propfindCalendarDepth1(w, r)
		}
		return h.propfind(w, r, calendarResolvers, &propEnv{res: Resource{Type: ResourceCalendar}})
	case "REPORT":
		return h.report(w, r)
	case http.MethodPut, http.MethodDelete, "MKCOL", "PROPPATCH", "COPY", "MOVE":
		return gwerror.New(gwerror.KindForbidden, "calendar collection is read-only")
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on calendar collection")
	}
}

func (h *Handler) handleCalendarObject(w http.ResponseWriter, r *http.Request, res Resource) error {
	if res.OccurrenceID != "" && (r.Method == http.MethodPut || r.Method == http.MethodDelete) {
		return gwerror.New(gwerror.KindMethodNotAllowed, "per-occurrence mutation not allowed")
	}

	switch r.Method {
	case http.MethodOptions:
		writeOptions(w, "OPTIONS, PROPFIND, GET, HEAD, PUT, DELETE")
		return nil
	case "PROPFIND":
		obj, err := h.getObject(r.Context(), res)
		if err != nil {
			return err
		}
		env := &propEnv{res: res, object: obj}
		return h.propfind(w, r, objectResolvers, env)
	case http.MethodGet, http.MethodHead:
		obj, err := h.getObject(r.Context(), res)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "text/calendar")
		w.Header().Set("ETag", obj.ETag)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return nil
		}
		_, _ = w.Write([]byte(obj.ICS))
		return nil
	case http.MethodPut:
		return h.put(w, r, res)
	case http.MethodDelete:
		return h.delete(w, r, res)
	case "PROPPATCH":
		return gwerror.New(gwerror.KindForbidden, "calendar object properties are read-only")
	default:
		return gwerror.New(gwerror.KindMethodNotAllowed, "method not allowed on calendar object")
	}
}

// getObject resolves res to a rendered calendar object. Occurrence-form
// paths read the concrete occurrence (composite UID, no RRULE); plain paths
// read the full event.
func (h *Handler) getObject(ctx context.Context, res Resource) (*Object, error) {
	if res.OccurrenceID != "" {
		return h.store.GetOccurrence(ctx, res.EventKey, res.OccurrenceID)
	}
	return h.store.Get(ctx, res.EventKey)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request, res Resource) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
	}

	ifNoneMatch := r.Header.Get("If-None-Match")
	ifMatch := r.Header.Get("If-Match")

	existing, getErr := h.store.Get(r.Context(), res.EventKey)
	exists := getErr == nil

	if ifNoneMatch == "*" && exists {
		return gwerror.New(gwerror.KindPreconditionFailed, "resource exists")
	}
	if ifMatch != "" {
		if !exists || stripQuotes(ifMatch) != stripQuotes(existing.ETag) {
			return gwerror.New(gwerror.KindPreconditionFailed, "etag mismatch")
		}
	}

	created, obj, err := h.store.Put(r.Context(), res.EventKey, string(body))
	if err != nil {
		return err
	}

	w.Header().Set("ETag", obj.ETag)
	w.Header().Set("Location", ObjectHref(obj.EventKey))
	if created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
	return nil
}

func stripQuotes(s string) string {
	return strings.Trim(s, `"`)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, res Resource) error {
	if err := h.store.Delete(r.Context(), res.EventKey); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// propfind answers a PROPFIND at Depth:0 for a single resource. Depth:1 on
// the calendar collection and on an address book is answered by
// propfindCalendarDepth1 and propfindAddressbookDepth1 instead.
func (h *Handler) propfind(w http.ResponseWriter, r *http.Request, table map[string]Resolver, env *propEnv) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
	}
	props, allProp, err := webdavxml.ParsePropNames(body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse PROPFIND body", err)
	}

	stats := resolve(table, env, props, allProp)
	ms := &webdavxml.Multistatus{Responses: []webdavxml.Response{
		{Href: hrefFor(env.res), PropStats: stats},
	}}
	return writeMultistatus(w, ms)
}

// propfindCalendarDepth1 additionally lists the calendar's objects,
// applying the store's configured listing mode.
func (h *Handler) propfindCalendarDepth1(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
	}
	props, allProp, err := webdavxml.ParsePropNames(body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse PROPFIND body", err)
	}

	selfEnv := &propEnv{res: Resource{Type: ResourceCalendar}}
	responses := []webdavxml.Response{
		{Href: CollectionHref(), PropStats: resolve(calendarResolvers, selfEnv, props, allProp)},
	}

	objects, err := h.store.List(r.Context())
	if err != nil {
		return err
	}
	for i := range objects {
		env := &propEnv{res: Resource{Type: ResourceCalendarObject, EventKey: objects[i].EventKey}, object: &objects[i]}
		responses = append(responses, webdavxml.Response{
			Href:      ObjectHref(objects[i].EventKey),
			PropStats: resolve(objectResolvers, env, props, allProp),
		})
	}

	return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
}

// report handles calendar-query and calendar-multiget, the two REPORT
// types this gateway supports.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "read request body", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse REPORT body", err)
	}
	root := doc.Root()
	if root == nil {
		return gwerror.New(gwerror.KindProtocol, "empty REPORT body")
	}

	props, allProp, err := webdavxml.ParsePropNames(body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse REPORT prop list", err)
	}

	switch localName(root.Tag) {
	case "calendar-multiget":
		return h.reportMultiget(w, r, body, props, allProp)
	case "calendar-query":
		return h.reportQuery(w, r, root, props, allProp)
	default:
		return gwerror.New(gwerror.KindProtocol, "unsupported REPORT type")
	}
}

func (h *Handler) reportMultiget(w http.ResponseWriter, r *http.Request, body []byte, props []webdavxml.Property, allProp bool) error {
	hrefs, err := webdavxml.ParseHrefs(body)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse hrefs", err)
	}

	var responses []webdavxml.Response
	for _, href := range hrefs {
		res := ParsePath(href)
		if res.Type != ResourceCalendarObject {
			continue
		}
		res = h.resolveCalendarObjectIdentity(r.Context(), res)
		obj, err := h.getObject(r.Context(), res)
		if err != nil {
			continue // RFC 4791 allows silent omission of missing hrefs.
		}
		env := &propEnv{res: res, object: obj}
		responses = append(responses, webdavxml.Response{
			Href:      ObjectHref(obj.EventKey),
			PropStats: resolve(objectResolvers, env, props, allProp),
		})
	}
	return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
}

func (h *Handler) reportQuery(w http.ResponseWriter, r *http.Request, root *etree.Element, props []webdavxml.Property, allProp bool) error {
	filterElem := findFilterElem(root)
	filter, err := caldavfilter.Parse(filterElem)
	if err != nil {
		return gwerror.Wrap(gwerror.KindProtocol, "parse filter", err)
	}

	objects, err := h.store.List(r.Context())
	if err != nil {
		return err
	}

	var responses []webdavxml.Response
	for i := range objects {
		comp, err := translate.DecodeVEvent(objects[i].ICS)
		if err != nil {
			continue
		}
		if !filter.Matches(comp) {
			continue
		}
		env := &propEnv{res: Resource{Type: ResourceCalendarObject, EventKey: objects[i].EventKey}, object: &objects[i]}
		responses = append(responses, webdavxml.Response{
			Href:      ObjectHref(objects[i].EventKey),
			PropStats: resolve(objectResolvers, env, props, allProp),
		})
	}
	return writeMultistatus(w, &webdavxml.Multistatus{Responses: responses})
}

func findFilterElem(root *etree.Element) *etree.Element {
	for _, child := range root.ChildElements() {
		if localName(child.Tag) == "filter" {
			return child
		}
	}
	return nil
}

func localName(tag string) string {
	if idx := strings.Index(tag, ":"); idx >= 0 {
		return tag[idx+1:]
	}
	return tag
}

func hrefFor(res Resource) string {
	switch res.Type {
	case ResourcePrincipal:
		return PrincipalHref()
	case ResourceCalendarHomeSet:
		return CalendarHomeSetHref()
	case ResourceCalendar:
		return CollectionHref()
	case ResourceCalendarObject:
		if res.OccurrenceID != "" {
			return ObjectHref(res.EventKey + "-" + res.OccurrenceID)
		}
		return ObjectHref(res.EventKey)
	case ResourceAddressbook:
		return AddressbookHref(res.AddressBookType)
	case ResourceAddressObject:
		return AddressObjectHref(res.AddressBookType, res.AddressKey)
	default:
		return ""
	}
}

func writeMultistatus(w http.ResponseWriter, ms *webdavxml.Multistatus) error {
	body, err := ms.Encode()
	if err != nil {
		return gwerror.Wrap(gwerror.KindInternal, "encode multistatus", err)
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, _ = w.Write(body)
	return nil
}
