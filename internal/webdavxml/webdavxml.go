// Package webdavxml builds and parses the multistatus XML bodies CalDAV
// and CardDAV exchange. Properties are modeled as a small Property element
// tree, and every helper is self-contained: construction goes through
// etree directly.
package webdavxml

import (
	"fmt"

	"github.com/beevik/etree"
)

// Namespace prefixes registered on every multistatus document this
// gateway emits.
const (
	NSDAV            = "DAV:"
	NSCalDAV         = "urn:ietf:params:xml:ns:caldav"
	NSCardDAV        = "urn:ietf:params:xml:ns:carddav"
	NSCalendarServer = "http://calendarserver.org/ns/"
	NSAppleICal      = "http://apple.com/ns/ical/"
)

var prefixByNamespace = map[string]string{
	NSDAV:            "d",
	NSCalDAV:         "cal",
	NSCardDAV:        "card",
	NSCalendarServer: "cs",
	NSAppleICal:      "ical",
}

// Property is one DAV property element: a namespaced tag with either text
// content, nested children, or both absent (for a bare property name, as
// used inside a PROPFIND request body).
type Property struct {
	Namespace string
	Name      string
	Text      string
	Attrs     map[string]string
	Children  []Property
}

func (p Property) toElement() *etree.Element {
	elem := etree.NewElement(qualify(p.Namespace, p.Name))
	for k, v := range p.Attrs {
		elem.CreateAttr(k, v)
	}
	if p.Text != "" {
		elem.SetText(p.Text)
	}
	for _, c := range p.Children {
		elem.AddChild(c.toElement())
	}
	return elem
}

func qualify(ns, name string) string {
	prefix, ok := prefixByNamespace[ns]
	if !ok || prefix == "" {
		return name
	}
	return prefix + ":" + name
}

// PropStat is one <propstat> block: the properties found for a resource at
// a given status, e.g. "200 OK" for resolved properties and "404 Not
// Found" for ones the resource doesn't carry.
type PropStat struct {
	Status string
	Props  []Property
}

// Response is one <response> block inside a multistatus document.
type Response struct {
	Href      string
	PropStats []PropStat
	// Status, when set, is used in place of PropStats for a whole-resource
	// status response (e.g. a REPORT href that errored outright).
	Status string
}

// Multistatus is the root of every PROPFIND/REPORT/PROPPATCH response body.
type Multistatus struct {
	Responses []Response
}

// Encode renders the multistatus document as an XML byte string with the
// standard declaration, suitable for an HTTP 207 response body.
func (m *Multistatus) Encode() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("d:multistatus")
	for ns, prefix := range prefixByNamespace {
		root.CreateAttr("xmlns:"+prefix, ns)
	}

	for _, resp := range m.Responses {
		respElem := root.CreateElement("d:response")
		respElem.CreateElement("d:href").SetText(resp.Href)

		if resp.Status != "" {
			respElem.CreateElement("d:status").SetText(resp.Status)
			continue
		}
		for _, ps := range resp.PropStats {
			psElem := respElem.CreateElement("d:propstat")
			propElem := psElem.CreateElement("d:prop")
			for _, p := range ps.Props {
				propElem.AddChild(p.toElement())
			}
			psElem.CreateElement("d:status").SetText(ps.Status)
		}
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// TextProp is a convenience constructor for a DAV: property with plain
// text content.
func TextProp(name, text string) Property {
	return Property{Namespace: NSDAV, Name: name, Text: text}
}

// StatusOK and StatusNotFound are the two propstat statuses this gateway
// ever emits: every requested property either resolves or doesn't exist on
// the resource. PROPPATCH is rejected before property evaluation, so
// 403-on-property-write propstats never arise.
const (
	StatusOK       = "HTTP/1.1 200 OK"
	StatusNotFound = "HTTP/1.1 404 Not Found"
)

// ParsePropNames parses a PROPFIND/REPORT request body's <prop> child names
// into a flat list of "namespace name" pairs recorded as Property values
// with only Namespace/Name set. A request body containing <allprop/> or no
// body at all (legal for PROPFIND, per RFC 4918 §9.1) is reported via
// allProp.
func ParsePropNames(body []byte) (props []Property, allProp bool, err error) {
	if len(body) == 0 {
		return nil, true, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, false, fmt.Errorf("webdavxml: parse request body: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, true, nil
	}

	if findChild(root, "allprop") != nil {
		return nil, true, nil
	}
	propElem := findChild(root, "prop")
	if propElem == nil {
		return nil, true, nil
	}
	for _, child := range propElem.ChildElements() {
		props = append(props, Property{Namespace: child.NamespaceURI(), Name: child.Tag})
	}
	return props, false, nil
}

func findChild(root *etree.Element, localName string) *etree.Element {
	for _, child := range root.ChildElements() {
		if child.Tag == localName {
			return child
		}
	}
	return nil
}

// ParseHrefs extracts every <href> text value from a calendar-multiget or
// addressbook-multiget request body.
func ParseHrefs(body []byte) ([]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("webdavxml: parse request body: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, nil
	}
	var hrefs []string
	for _, elem := range root.FindElements(".//href") {
		hrefs = append(hrefs, elem.Text())
	}
	return hrefs, nil
}
