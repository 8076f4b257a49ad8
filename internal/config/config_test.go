package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"UPSTREAM_CLIENT_ID":     "cid",
		"UPSTREAM_CLIENT_SECRET": "secret",
		"UPSTREAM_LICENSE":       "lic",
		"UPSTREAM_USER":          "alice",
		"UPSTREAM_PASSWORD":      "hunter2",
		"UPSTREAM_BASE_URL":      "https://inform.example/api",
	} {
		t.Setenv(k, v)
	}
}

func TestLoad_DefaultsAndOwnerKeyFallback(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "Europe/Berlin", cfg.UpstreamTimezone)
	assert.Equal(t, "alice", cfg.OwnerKey, "OwnerKey must default to UpstreamUser when unset")
	assert.True(t, cfg.EnableCalDAV)
	assert.True(t, cfg.EnableCardDAV)
	assert.False(t, cfg.Debug)
	assert.Equal(t, ListingDedupe, cfg.ListingMode)
	assert.Equal(t, 336*time.Hour, cfg.SyncWindow)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
}

func TestLoad_OwnerKeyExplicit(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OWNER_KEY", "service-account")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "service-account", cfg.OwnerKey)
}

func TestLoad_MissingRequiredFieldErrors(t *testing.T) {
	t.Setenv("UPSTREAM_CLIENT_ID", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownListingMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LISTING_MODE", "bogus")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_AcceptsOccurrenceListingMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LISTING_MODE", "occurrence")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ListingOccurrence, cfg.ListingMode)
}
