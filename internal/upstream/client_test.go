package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inform-gateway/caldav-bridge/internal/gwerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:      srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		License:      "lic",
		Username:     "user",
		Password:     "pass",
		Timeout:      5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c, srv
}

func TestAccessToken_PasswordGrantOnFirstCall(t *testing.T) {
	var gotGrant string
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotGrant = body["grantType"]
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok1", RefreshToken: "ref1", TokenType: "bearer"})
	})

	tok, err := c.tokens.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, "password", gotGrant)
}

func TestAccessToken_RefreshesExpiredToken(t *testing.T) {
	calls := 0
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["grantType"] == "refreshToken" {
			assert.Equal(t, "ref1", body["refreshToken"])
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok2", RefreshToken: "ref2", TokenType: "bearer"})
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok1", RefreshToken: "ref1", TokenType: "bearer"})
	})

	c.tokens.tokens = &tokenSet{
		AccessToken:  "stale",
		RefreshToken: "ref1",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}

	tok, err := c.tokens.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", tok)
	assert.Equal(t, 1, calls)
}

func TestAccessToken_FallsBackToPasswordWhenRefreshFails(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["grantType"] == "refreshToken" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "fresh", RefreshToken: "ref-new", TokenType: "bearer"})
	})

	c.tokens.tokens = &tokenSet{
		AccessToken:  "stale",
		RefreshToken: "dead",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}

	tok, err := c.tokens.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestGetEvent_MapsNotFoundStatus(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", TokenType: "bearer"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such event"))
	})

	_, err := c.GetEvent(context.Background(), "ev-1", nil)
	require.Error(t, err)
	assert.True(t, gwerror.Is(err, gwerror.KindUpstreamNotFound))
}

func TestGetOccurrences_SetsExpectedQueryParams(t *testing.T) {
	var gotQuery map[string][]string
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", TokenType: "bearer"})
			return
		}
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(OccurrencesResponse{})
	})

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.GetOccurrences(context.Background(), "owner-1", start, end, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner-1"}, gotQuery["ownerKey"])
	assert.Equal(t, []string{"1000"}, gotQuery["limit"])
	require.Contains(t, gotQuery, "endDateTime.gte")
	require.Contains(t, gotQuery, "startDateTime.lte")
}

// TestAccessToken_ConcurrentRefreshCoalesces covers two concurrent callers
// observing an expired token: they must trigger exactly one refresh_grant
// call, with both callers then observing the fresh token. The token mutex
// is what gives this guarantee.
func TestAccessToken_ConcurrentRefreshCoalesces(t *testing.T) {
	var refreshCalls int32
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["grantType"] == "refreshToken" {
			atomic.AddInt32(&refreshCalls, 1)
			json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-fresh", RefreshToken: "ref-fresh", TokenType: "bearer"})
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-stale", RefreshToken: "ref-stale", TokenType: "bearer"})
	})

	c.tokens.tokens = &tokenSet{
		AccessToken:  "stale",
		RefreshToken: "ref-stale",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.tokens.accessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-fresh", results[i])
	}
	assert.EqualValues(t, 1, refreshCalls, "exactly one refresh_grant call should be issued")
}
