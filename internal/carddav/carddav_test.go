package carddav

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

func newTestDirectory(t *testing.T, handler http.HandlerFunc) *Directory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := upstream.New(upstream.Config{
		BaseURL:      srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		License:      "lic",
		Username:     "user",
		Password:     "pass",
		Timeout:      5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return NewDirectory(client, "acme")
}

func TestResolveCompany_UsesFirstCompany(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "tok", "refreshToken": "ref", "tokenType": "bearer"})
		case "/companies":
			json.NewEncoder(w).Encode(map[string]any{"companies": []map[string]string{{"companyName": "acme"}, {"companyName": "other"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := upstream.New(upstream.Config{
		BaseURL: srv.URL, ClientID: "cid", ClientSecret: "secret", License: "lic",
		Username: "user", Password: "pass", Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)

	name, err := ResolveCompany(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "acme", name)
}

func TestResolveCompany_NoCompaniesIsUpstreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "tok", "refreshToken": "ref", "tokenType": "bearer"})
		case "/companies":
			json.NewEncoder(w).Encode(map[string]any{"companies": []map[string]string{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := upstream.New(upstream.Config{
		BaseURL: srv.URL, ClientID: "cid", ClientSecret: "secret", License: "lic",
		Username: "user", Password: "pass", Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)

	_, err = ResolveCompany(context.Background(), client)
	assert.Error(t, err)
}

// TestList_RendersEachAddressAsVCard covers the customer address book's
// listing path end to end, including the PostAddresses[0] field mapping.
func TestList_RendersEachAddressAsVCard(t *testing.T) {
	dir := newTestDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "tok", "refreshToken": "ref", "tokenType": "bearer"})
		case strings.HasSuffix(r.URL.Path, "/addresses"):
			assert.Equal(t, "customer", r.URL.Query().Get("addressType"))
			json.NewEncoder(w).Encode(upstream.AddressesResponse{
				Addresses: []upstream.Address{
					{
						Key:         "C1",
						AddressType: "customer",
						Note:        "VIP",
						PostAddresses: []upstream.PostAddressWrapper{
							{PostAddress: upstream.PostAddress{Line1: "Acme GmbH", Street: "Main St 1", ZipCodeAndCity: "12345 Berlin", Email: "info@acme.example"}},
						},
					},
					{Key: "", AddressType: "customer"}, // must be skipped, no key
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	cards, err := dir.List(context.Background(), "customer")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "C1", cards[0].Key)
	assert.Contains(t, cards[0].VCF, "FN:Acme GmbH")
	assert.Contains(t, cards[0].VCF, "EMAIL")
	assert.NotEmpty(t, cards[0].ETag)
}

func TestList_UnknownAddressBookIsNotFound(t *testing.T) {
	dir := newTestDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := dir.List(context.Background(), "bogus")
	assert.Error(t, err)
}

// TestGet_AddressTypeMismatchIsNotFound covers the directory's own
// cross-check: a card fetched under the wrong collection 404s even though
// the upstream key resolves.
func TestGet_AddressTypeMismatchIsNotFound(t *testing.T) {
	dir := newTestDirectory(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			json.NewEncoder(w).Encode(map[string]any{"accessToken": "tok", "refreshToken": "ref", "tokenType": "bearer"})
		case strings.Contains(r.URL.Path, "/addresses/"):
			json.NewEncoder(w).Encode(upstream.Address{Key: "C1", AddressType: "supplier"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	_, err := dir.Get(context.Background(), "customer", "C1")
	assert.Error(t, err)
}

// TestEtagOf_IsDeterministicAndContentSensitive checks ETag determinism:
// identical vCard bodies hash identically, distinct bodies hash differently.
func TestEtagOf_IsDeterministicAndContentSensitive(t *testing.T) {
	a := etagOf("BEGIN:VCARD\r\nFN:A\r\nEND:VCARD\r\n")
	b := etagOf("BEGIN:VCARD\r\nFN:A\r\nEND:VCARD\r\n")
	c := etagOf("BEGIN:VCARD\r\nFN:B\r\nEND:VCARD\r\n")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAddressBookTypes_FixedOrder(t *testing.T) {
	assert.Equal(t, []string{"customer", "supplier", "employee", "other"}, AddressBookTypes())
}

func TestSplitZipCity(t *testing.T) {
	cases := []struct {
		in, city, zip string
	}{
		{"12345 Berlin", "Berlin", "12345"},
		{"", "", ""},
		{"justcity", "justcity", ""},
	}
	for _, tc := range cases {
		city, zip := splitZipCity(tc.in)
		assert.Equal(t, tc.city, city)
		assert.Equal(t, tc.zip, zip)
	}
}
