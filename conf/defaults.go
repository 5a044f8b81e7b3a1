package conf

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Daemon defaults
	v.SetDefault("daemon.workers", 4)
	v.SetDefault("daemon.queue_size", 256)
	v.SetDefault("daemon.poll_interval_seconds", 5)
	v.SetDefault("daemon.job_timeout_seconds", 300)
	v.SetDefault("daemon.grace_seconds", 30)
	v.SetDefault("daemon.timezone", "UTC")
	v.SetDefault("daemon.jobs_dir", "jobs")
	v.SetDefault("daemon.events_dir", "events")

	// Cache defaults
	v.SetDefault("cache.dir", defaultCacheDir())
	v.SetDefault("cache.memory_max_bytes", int64(64<<20))
	v.SetDefault("cache.memory_max_entries", 1024)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.negative_ttl_seconds", 120)
	v.SetDefault("cache.compress_threshold", int64(16<<10))

	// Forge defaults
	v.SetDefault("forge.default_provider", "github")
	v.SetDefault("forge.token_env", "FORGE_TOKEN")
	v.SetDefault("forge.clone_depth", 1)
	v.SetDefault("forge.rate_per_minute", 30)
	v.SetDefault("forge.rate_burst", 10)

	// Registry defaults
	v.SetDefault("registry.url", "https://registry.gitvan.dev")
	v.SetDefault("registry.timeout_seconds", 30)
	v.SetDefault("registry.max_retries", 3)

	// Template sandbox defaults
	v.SetDefault("template.max_template_bytes", int64(1<<20))
	v.SetDefault("template.max_output_bytes", int64(8<<20))
	v.SetDefault("template.timeout_seconds", 5)

	// Pack discovery defaults
	v.SetDefault("packs.local_dir", "packs")
	v.SetDefault("packs.builtin_dir", filepath.Join("packs", "builtin"))
}

// defaultsOnly builds a Config from defaults without touching disk or the
// environment. Used by TestRuntime.
func defaultsOnly() *Config {
	v := viper.New()
	SetDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// defaultCacheDir returns the user-global pack cache directory.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gitvan", "cache")
	}
	return filepath.Join(home, ".gitvan", "packs")
}
