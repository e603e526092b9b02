package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/shadowsync/internal/cloudapi"
	"github.com/tonimelisma/shadowsync/internal/config"
	"github.com/tonimelisma/shadowsync/internal/localstore"
	"github.com/tonimelisma/shadowsync/internal/retry"
	"github.com/tonimelisma/shadowsync/internal/shadow"
)

// parseDirection maps a config.SyncConfig.Direction string to a
// shadow.Direction. Validate already rejects anything else.
func parseDirection(s string) shadow.Direction {
	switch s {
	case "device_to_cloud":
		return shadow.DeviceToCloud
	case "cloud_to_device":
		return shadow.CloudToDevice
	default:
		return shadow.BetweenDeviceAndCloud
	}
}

// syncedKeys translates the configured shadow references into shadow.Key
// values.
func syncedKeys(cfg *config.Config) []shadow.Key {
	keys := make([]shadow.Key, 0, len(cfg.Sync.Shadows))
	for _, ref := range cfg.Sync.Shadows {
		keys = append(keys, shadow.Key{Thing: ref.Thing, Name: ref.Name})
	}

	return keys
}

// openStore opens the local shadow store named by cfg.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*localstore.Store, error) {
	store, err := localstore.Open(ctx, cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	return store, nil
}

// newCloudClient builds the cloud data-plane client from cfg. Only
// data_timeout is read; it becomes the single http.Client timeout:
// shadowsyncd makes no streaming requests, so one deadline per request
// covers both dialing and body transfer. cloud.connect_timeout is not
// applied to the client. It also returns the
// token source backing the client, so newPushListener can reuse the same
// credentials for the WebSocket handshake.
func newCloudClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cloudapi.Client, oauth2.TokenSource, error) {
	dataTimeout, err := time.ParseDuration(cfg.Cloud.DataTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing cloud.data_timeout: %w", err)
	}

	httpClient := &http.Client{Timeout: dataTimeout}
	ts := cloudapi.NewTokenSource(ctx, cfg.Cloud.ClientID, cfg.Cloud.ClientSecret, cfg.Cloud.TokenURL)

	return cloudapi.NewClient(cfg.Cloud.BaseURL, httpClient, ts, logger), ts, nil
}

// newPushListener builds the WebSocket push listener for handler, reusing
// the cloud client's token source and base URL.
func newPushListener(cfg *config.Config, ts oauth2.TokenSource, handler *shadow.Handler, logger *slog.Logger) *cloudapi.PushListener {
	return cloudapi.NewPushListener(cfg.Cloud.BaseURL, ts, handler, logger)
}

// buildHandler wires store, cloud client, and direction/synced-keys into a
// ready (but not yet started) shadow.Handler.
func buildHandler(cfg *config.Config, store shadow.Store, cloud shadow.CloudClient, logger *slog.Logger) *shadow.Handler {
	return shadow.NewHandler(store, cloud, logger, cfg.Sync.QueueCapacity, parseDirection(cfg.Sync.Direction), syncedKeys(cfg))
}

// buildStrategy constructs the configured drain strategy (realtime or
// periodic) over handler's queue and sync context.
func buildStrategy(cfg *config.Config, handler *shadow.Handler, logger *slog.Logger) (shadow.Strategy, error) {
	retryCfg := retry.DefaultConfig()

	switch cfg.Sync.Strategy {
	case "periodic":
		interval, err := time.ParseDuration(cfg.Sync.PeriodicInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing sync.periodic_interval: %w", err)
		}

		return shadow.NewPeriodicStrategy(handler.Queue(), handler.Context(), logger, retryCfg, interval), nil
	default:
		return shadow.NewRealtimeStrategy(handler.Queue(), handler.Context(), logger, retryCfg), nil
	}
}
