package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override
// layers (defaults -> file -> env -> CLI) have been applied.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	renderSyncSection(ew, &cfg.Sync)
	renderCloudSection(ew, &cfg.Cloud)
	renderStoreSection(ew, &cfg.Store)
	renderLoggingSection(ew, &cfg.Logging)
	renderDaemonSection(ew, &cfg.Daemon)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain printf
// calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderSyncSection(ew *errWriter, s *SyncConfig) {
	ew.printf("[sync]\n")
	ew.printf("  direction         = %q\n", s.Direction)
	ew.printf("  strategy          = %q\n", s.Strategy)
	ew.printf("  parallelism       = %d\n", s.Parallelism)
	ew.printf("  periodic_interval = %q\n", s.PeriodicInterval)
	ew.printf("  queue_capacity    = %d\n", s.QueueCapacity)

	for _, ref := range s.Shadows {
		ew.printf("  shadow            = {thing = %q, name = %q}\n", ref.Thing, ref.Name)
	}

	ew.printf("\n")
}

// renderCloudSection omits client_secret; config show must never print it.
func renderCloudSection(ew *errWriter, c *CloudConfig) {
	ew.printf("[cloud]\n")
	ew.printf("  base_url        = %q\n", c.BaseURL)
	ew.printf("  client_id       = %q\n", c.ClientID)
	ew.printf("  connect_timeout = %q\n", c.ConnectTimeout)
	ew.printf("  data_timeout    = %q\n", c.DataTimeout)
	ew.printf("\n")
}

func renderStoreSection(ew *errWriter, s *StoreConfig) {
	ew.printf("[store]\n")
	ew.printf("  path = %q\n", s.Path)

	if s.WatchRoot != "" {
		ew.printf("  watch_root = %q\n", s.WatchRoot)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  level  = %q\n", l.Level)
	ew.printf("  format = %q\n", l.Format)

	if l.File != "" {
		ew.printf("  file   = %q\n", l.File)
	}

	ew.printf("\n")
}

func renderDaemonSection(ew *errWriter, d *DaemonConfig) {
	ew.printf("[daemon]\n")
	ew.printf("  shutdown_timeout = %q\n", d.ShutdownTimeout)

	if d.PIDFile != "" {
		ew.printf("  pid_file         = %q\n", d.PIDFile)
	}
}
