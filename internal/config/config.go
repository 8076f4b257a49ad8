// Package config loads the gateway's process-wide configuration from the
// environment once at startup and hands components an explicit value,
// rather than letting each package read os.Getenv for itself.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ListingMode selects how the calendar-home listing (Depth:1 PROPFIND and
// calendar-query REPORT) renders recurring series.
type ListingMode string

const (
	// ListingDedupe emits one object per event key, with a synthesized
	// RRULE for series. This is the default.
	ListingDedupe ListingMode = "dedupe"
	// ListingOccurrence emits one standalone object per occurrence, each
	// with a composite "<key>-<occurrenceId>" UID and no RRULE.
	ListingOccurrence ListingMode = "occurrence"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	UpstreamClientID     string `env:"UPSTREAM_CLIENT_ID,required"`
	UpstreamClientSecret string `env:"UPSTREAM_CLIENT_SECRET,required"`
	UpstreamLicense      string `env:"UPSTREAM_LICENSE,required"`
	UpstreamUser         string `env:"UPSTREAM_USER,required"`
	UpstreamPassword     string `env:"UPSTREAM_PASSWORD,required"`
	UpstreamBaseURL      string `env:"UPSTREAM_BASE_URL,required"`

	// UpstreamTimezone is the IANA zone occurrenceStartTime/occurrenceEndTime
	// are expressed in.
	UpstreamTimezone string `env:"UPSTREAM_TIMEZONE" envDefault:"Europe/Berlin"`

	// OwnerKey is the upstream principal whose calendar is served. Defaults
	// to UpstreamUser when unset.
	OwnerKey string `env:"OWNER_KEY"`

	EnableCalDAV  bool `env:"ENABLE_CALDAV" envDefault:"true"`
	EnableCardDAV bool `env:"ENABLE_CARDDAV" envDefault:"true"`
	Debug         bool `env:"DEBUG" envDefault:"false"`

	ListingMode ListingMode `env:"LISTING_MODE" envDefault:"dedupe"`

	// SyncWindow bounds how far around "now" the calendar-home listing
	// queries the upstream occurrences endpoint.
	SyncWindow time.Duration `env:"SYNC_WINDOW" envDefault:"336h"` // ±2 weeks

	// UpstreamTimeout bounds every individual outbound upstream call.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
}

// Load reads Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.OwnerKey == "" {
		cfg.OwnerKey = cfg.UpstreamUser
	}
	if cfg.ListingMode != ListingDedupe && cfg.ListingMode != ListingOccurrence {
		return nil, fmt.Errorf("config: LISTING_MODE must be %q or %q, got %q", ListingDedupe, ListingOccurrence, cfg.ListingMode)
	}
	return cfg, nil
}
