package webdavxml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultistatusEncode_PropstatAndWholeResourceStatus(t *testing.T) {
	ms := &Multistatus{Responses: []Response{
		{
			Href: "/calendars/calendar/A1.ics",
			PropStats: []PropStat{
				{Status: StatusOK, Props: []Property{TextProp("getetag", `"abc"`)}},
				{Status: StatusNotFound, Props: []Property{{Namespace: NSCalDAV, Name: "calendar-data"}}},
			},
		},
		{Href: "/calendars/calendar/gone.ics", Status: "HTTP/1.1 404 Not Found"},
	}}

	body, err := ms.Encode()
	require.NoError(t, err)
	s := string(body)

	assert.Contains(t, s, `<d:multistatus`)
	assert.Contains(t, s, "/calendars/calendar/A1.ics")
	assert.Contains(t, s, "getetag")
	assert.Contains(t, s, "HTTP/1.1 200 OK")
	assert.Contains(t, s, "cal:calendar-data")
	assert.Contains(t, s, "/calendars/calendar/gone.ics")
	assert.Equal(t, 2, strings.Count(s, "<d:status>HTTP/1.1 404 Not Found</d:status>"))
}

func TestParsePropNames_AllPropAndNoBody(t *testing.T) {
	_, allProp, err := ParsePropNames(nil)
	require.NoError(t, err)
	assert.True(t, allProp)

	_, allProp, err = ParsePropNames([]byte(`<d:propfind xmlns:d="DAV:"><d:allprop/></d:propfind>`))
	require.NoError(t, err)
	assert.True(t, allProp)
}

func TestParsePropNames_NamedProps(t *testing.T) {
	body := []byte(`<d:propfind xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">
		<d:prop>
			<d:getetag/>
			<cal:calendar-data/>
		</d:prop>
	</d:propfind>`)

	props, allProp, err := ParsePropNames(body)
	require.NoError(t, err)
	assert.False(t, allProp)
	require.Len(t, props, 2)
	assert.Equal(t, "getetag", props[0].Name)
	assert.Equal(t, "calendar-data", props[1].Name)
}

func TestParseHrefs(t *testing.T) {
	body := []byte(`<c:calendar-multiget xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
		<d:href>/calendars/calendar/A1.ics</d:href>
		<d:href>/calendars/calendar/A2.ics</d:href>
	</c:calendar-multiget>`)

	hrefs, err := ParseHrefs(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"/calendars/calendar/A1.ics", "/calendars/calendar/A2.ics"}, hrefs)
}
