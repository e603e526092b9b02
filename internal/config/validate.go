package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minParallelism     = 1
	maxParallelism     = 64
	minQueueCapacity   = 1
	minShutdownTimeout = 1 * time.Second
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 1 * time.Second
	minPeriodicTick    = time.Second
)

var validDirections = map[string]bool{
	"between":         true,
	"device_to_cloud": true,
	"cloud_to_device": true,
}

var validStrategies = map[string]bool{
	"realtime": true,
	"periodic": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateCloud(&cfg.Cloud)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateDaemon(&cfg.Daemon)...)

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if !validDirections[s.Direction] {
		errs = append(errs, fmt.Errorf("sync.direction: must be one of between, device_to_cloud, cloud_to_device; got %q", s.Direction))
	}

	if !validStrategies[s.Strategy] {
		errs = append(errs, fmt.Errorf("sync.strategy: must be one of realtime, periodic; got %q", s.Strategy))
	}

	if s.Strategy == "realtime" && (s.Parallelism < minParallelism || s.Parallelism > maxParallelism) {
		errs = append(errs, fmt.Errorf("sync.parallelism: must be between %d and %d, got %d", minParallelism, maxParallelism, s.Parallelism))
	}

	if s.Strategy == "periodic" {
		errs = append(errs, validateDurationMin("sync.periodic_interval", s.PeriodicInterval, minPeriodicTick)...)
	}

	if s.QueueCapacity < minQueueCapacity {
		errs = append(errs, fmt.Errorf("sync.queue_capacity: must be >= %d, got %d", minQueueCapacity, s.QueueCapacity))
	}

	seen := make(map[ShadowRef]bool, len(s.Shadows))

	for _, ref := range s.Shadows {
		if ref.Thing == "" {
			errs = append(errs, errors.New("sync.shadows: thing must not be empty"))
		}

		if seen[ref] {
			errs = append(errs, fmt.Errorf("sync.shadows: duplicate entry (thing=%q, name=%q)", ref.Thing, ref.Name))
		}

		seen[ref] = true
	}

	return errs
}

// validateCloud does not require base_url/client_id to be set: a freshly
// generated config file (or DefaultConfig with no file at all) must still
// pass validation so "shadowsyncd config show" works before cloud
// credentials exist. The daemon's start command checks those separately.
func validateCloud(c *CloudConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("cloud.connect_timeout", c.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("cloud.data_timeout", c.DataTimeout, minDataTimeout)...)

	return errs
}

// validateStore leaves WatchRoot unchecked beyond its type: empty disables
// internal/localwatch entirely, which is a valid configuration for a
// cloud-to-device-only or CLI-driven-only deployment.
func validateStore(s *StoreConfig) []error {
	if s.Path == "" {
		return []error{errors.New("store.path: must not be empty")}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("logging.level: must be one of debug, info, warn, error; got %q", l.Level))
	}

	if !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("logging.format: must be one of text, json; got %q", l.Format))
	}

	return errs
}

func validateDaemon(d *DaemonConfig) []error {
	return validateDurationMin("daemon.shutdown_timeout", d.ShutdownTimeout, minShutdownTimeout)
}

// validateDurationMin checks that a duration string parses and meets a
// minimum value.
func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
