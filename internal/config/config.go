// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for shadowsyncd.
package config

// Config is the top-level configuration structure, decoded directly from
// the TOML config file (spec.md §9's "Config hot-reload" source).
type Config struct {
	Sync    SyncConfig    `toml:"sync"`
	Cloud   CloudConfig   `toml:"cloud"`
	Store   StoreConfig   `toml:"store"`
	Logging LoggingConfig `toml:"logging"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// ShadowRef names one shadow in the active sync configuration.
type ShadowRef struct {
	Thing string `toml:"thing"`
	Name  string `toml:"name"`
}

// SyncConfig controls the sync engine: direction, drain strategy, and the
// set of shadows kept synced (data-model.md §3 "Direction"; spec.md §4.6
// "Strategy").
type SyncConfig struct {
	// Direction is one of "between", "device_to_cloud", "cloud_to_device".
	Direction string `toml:"direction"`
	// Strategy is one of "realtime" or "periodic".
	Strategy string `toml:"strategy"`
	// Parallelism is the Realtime strategy's worker count (spec.md §4.5).
	Parallelism int `toml:"parallelism"`
	// PeriodicInterval is the Periodic strategy's tick interval, parsed
	// with time.ParseDuration (e.g. "5m").
	PeriodicInterval string `toml:"periodic_interval"`
	// QueueCapacity bounds the Merging Blocking Queue (spec.md §4.3).
	QueueCapacity int `toml:"queue_capacity"`
	// Shadows lists every (thing, name) pair kept in the active sync
	// configuration (invariant I1).
	Shadows []ShadowRef `toml:"shadows"`
}

// CloudConfig configures the cloud data-plane client (internal/cloudapi).
type CloudConfig struct {
	BaseURL        string `toml:"base_url"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	TokenURL       string `toml:"token_url"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
}

// StoreConfig configures the local shadow document store
// (internal/localstore).
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `toml:"path"`
	// WatchRoot is the directory internal/localwatch watches for local
	// shadow file writes, one JSON file per shadow at
	// <WatchRoot>/<thing>/<name-or-classic>.json.
	WatchRoot string `toml:"watch_root"`
}

// LoggingConfig controls log/slog output.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
	File   string `toml:"file"`   // empty means stderr
}

// DaemonConfig controls process-lifecycle behavior.
type DaemonConfig struct {
	// ShutdownTimeout bounds how long Stop waits for in-flight executors
	// (spec.md §4.6's shutdown_timeout, default 5s).
	ShutdownTimeout string `toml:"shutdown_timeout"`
	PIDFile         string `toml:"pid_file"`
}
