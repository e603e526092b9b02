package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and are chosen to be safe, reasonable
// starting points that work without any config file at all.
const (
	defaultDirection        = "between"
	defaultStrategy         = "realtime"
	defaultParallelism      = 4
	defaultPeriodicInterval = "5m"
	defaultQueueCapacity    = 1024
	defaultStorePath        = "shadows.db"
	defaultWatchRoot        = "shadows"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
	defaultShutdownTimeout  = "5s"
)

// DefaultConfig returns a Config populated with all default values. It is
// used both as the starting point for TOML decoding (so unset fields
// retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync:    defaultSyncConfig(),
		Cloud:   defaultCloudConfig(),
		Store:   defaultStoreConfig(),
		Logging: defaultLoggingConfig(),
		Daemon:  defaultDaemonConfig(),
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		Direction:        defaultDirection,
		Strategy:         defaultStrategy,
		Parallelism:      defaultParallelism,
		PeriodicInterval: defaultPeriodicInterval,
		QueueCapacity:    defaultQueueCapacity,
	}
}

func defaultCloudConfig() CloudConfig {
	return CloudConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Path:      defaultStorePath,
		WatchRoot: defaultWatchRoot,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  defaultLogLevel,
		Format: defaultLogFormat,
	}
}

func defaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
