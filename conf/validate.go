package conf

import (
	"time"

	"github.com/gitvan/gitvan/errors"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Daemon.Workers < 1 {
		return errors.Newf("daemon.workers must be >= 1, got %d", c.Daemon.Workers)
	}
	if c.Daemon.QueueSize < 1 {
		return errors.Newf("daemon.queue_size must be >= 1, got %d", c.Daemon.QueueSize)
	}
	if c.Daemon.PollIntervalSeconds < 1 {
		return errors.Newf("daemon.poll_interval_seconds must be >= 1, got %d", c.Daemon.PollIntervalSeconds)
	}
	if _, err := time.LoadLocation(c.Daemon.Timezone); err != nil {
		return errors.Wrapf(err, "daemon.timezone %q", c.Daemon.Timezone)
	}
	if c.Cache.MemoryMaxEntries < 1 {
		return errors.Newf("cache.memory_max_entries must be >= 1, got %d", c.Cache.MemoryMaxEntries)
	}
	if c.Forge.CloneDepth < 1 {
		return errors.Newf("forge.clone_depth must be >= 1, got %d", c.Forge.CloneDepth)
	}
	if c.Registry.URL == "" {
		return errors.New("registry.url must not be empty")
	}
	if c.Template.MaxTemplateBytes <= 0 || c.Template.MaxOutputBytes <= 0 {
		return errors.New("template size limits must be positive")
	}
	return nil
}

// Location returns the cron evaluation time zone. Validate guarantees the
// zone parses, so errors here are ignored.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Daemon.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
