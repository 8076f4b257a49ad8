// Command caldav-bridge runs the CalDAV/CardDAV gateway: it serves
// RFC 4791/6352 requests by translating them to and from the INFORM
// upstream REST API.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/inform-gateway/caldav-bridge/internal/carddav"
	"github.com/inform-gateway/caldav-bridge/internal/config"
	"github.com/inform-gateway/caldav-bridge/internal/gateway"
	"github.com/inform-gateway/caldav-bridge/internal/upstream"
)

var debugFlag = flag.Bool("debug", false, "override DEBUG env var and enable verbose logging")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("caldav-bridge: %v", err)
	}
	if *debugFlag {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	loc, err := time.LoadLocation(cfg.UpstreamTimezone)
	if err != nil {
		logger.Error("invalid UPSTREAM_TIMEZONE", "timezone", cfg.UpstreamTimezone, "error", err)
		os.Exit(1)
	}

	client, err := upstream.New(upstream.Config{
		BaseURL:      cfg.UpstreamBaseURL,
		ClientID:     cfg.UpstreamClientID,
		ClientSecret: cfg.UpstreamClientSecret,
		License:      cfg.UpstreamLicense,
		Username:     cfg.UpstreamUser,
		Password:     cfg.UpstreamPassword,
		Timeout:      cfg.UpstreamTimeout,
	}, logger)
	if err != nil {
		logger.Error("construct upstream client", "error", err)
		os.Exit(1)
	}

	store := gateway.NewStore(client, cfg, loc)

	var directory *carddav.Directory
	if cfg.EnableCardDAV {
		company, err := carddav.ResolveCompany(context.Background(), client)
		if err != nil {
			logger.Error("resolve upstream company", "error", err)
			os.Exit(1)
		}
		directory = carddav.NewDirectory(client, company)
	}

	handler := gateway.New(store, directory, cfg.OwnerKey, gateway.Options{
		EnableCalDAV:  cfg.EnableCalDAV,
		EnableCardDAV: cfg.EnableCardDAV,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	logger.Info("starting caldav-bridge", "addr", cfg.ListenAddr, "listing_mode", cfg.ListingMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
