// Package conf loads and validates the GitVan configuration.
//
// Configuration is read from .gitvan/config.toml in the target repository
// (or the file given with --config), with GITVAN_ environment overrides.
// A Runtime value bundles the loaded configuration with the process-wide
// collaborators (logger, environment lookup) and is threaded through
// constructors; tests build a fresh Runtime for isolation.
package conf

// Config represents the core GitVan configuration.
type Config struct {
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Forge    ForgeConfig    `mapstructure:"forge"`
	Registry RegistryConfig `mapstructure:"registry"`
	Template TemplateConfig `mapstructure:"template"`
	Packs    PacksConfig    `mapstructure:"packs"`
}

// DaemonConfig configures the automation daemon.
type DaemonConfig struct {
	Workers              int    `mapstructure:"workers"`                 // concurrent job workers (default: 4)
	QueueSize            int    `mapstructure:"queue_size"`              // bounded pending queue (default: 256)
	PollIntervalSeconds  int    `mapstructure:"poll_interval_seconds"`   // git HEAD polling cadence (default: 5)
	JobTimeoutSeconds    int    `mapstructure:"job_timeout_seconds"`     // per-job deadline (default: 300)
	GraceSeconds         int    `mapstructure:"grace_seconds"`           // shutdown drain deadline (default: 30)
	Timezone             string `mapstructure:"timezone"`                // cron evaluation zone (default: UTC)
	JobsDir              string `mapstructure:"jobs_dir"`                // job discovery root (default: jobs)
	EventsDir            string `mapstructure:"events_dir"`              // event binding root (default: events)
}

// CacheConfig configures the two-tier pack cache.
type CacheConfig struct {
	Dir                string `mapstructure:"dir"`                  // on-disk store (default: ~/.gitvan/packs)
	MemoryMaxBytes     int64  `mapstructure:"memory_max_bytes"`     // in-memory tier capacity (default: 64 MiB)
	MemoryMaxEntries   int    `mapstructure:"memory_max_entries"`   // entry cap for the LRU (default: 1024)
	TTLSeconds         int    `mapstructure:"ttl_seconds"`          // default entry TTL (default: 3600)
	NegativeTTLSeconds int    `mapstructure:"negative_ttl_seconds"` // cached misses (default: 120)
	CompressThreshold  int64  `mapstructure:"compress_threshold"`   // gzip entries above this size (default: 16 KiB)
}

// ForgeConfig configures remote forge fetching.
type ForgeConfig struct {
	DefaultProvider string `mapstructure:"default_provider"` // github unless prefixed (default: github)
	TokenEnv        string `mapstructure:"token_env"`        // env var holding the auth token (default: FORGE_TOKEN)
	CloneDepth      int    `mapstructure:"clone_depth"`      // shallow clone depth (default: 1)
	RatePerMinute   int    `mapstructure:"rate_per_minute"`  // API bucket refill (default: 30)
	RateBurst       int    `mapstructure:"rate_burst"`       // API bucket burst (default: 10)
}

// RegistryConfig configures the HTTPS pack registry.
type RegistryConfig struct {
	URL            string `mapstructure:"url"`             // default: https://registry.gitvan.dev
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // per-request (default: 30)
	MaxRetries     int    `mapstructure:"max_retries"`     // transient fetch retries (default: 3)
}

// TemplateConfig bounds the sandboxed renderer.
type TemplateConfig struct {
	MaxTemplateBytes int64 `mapstructure:"max_template_bytes"` // reject larger inputs (default: 1 MiB)
	MaxOutputBytes   int64 `mapstructure:"max_output_bytes"`   // cap rendered output (default: 8 MiB)
	TimeoutSeconds   int   `mapstructure:"timeout_seconds"`    // wall-clock render limit (default: 5)
}

// PacksConfig configures pack discovery on the target repository.
type PacksConfig struct {
	LocalDir   string `mapstructure:"local_dir"`   // user packs (default: packs)
	BuiltinDir string `mapstructure:"builtin_dir"` // seeded builtins (default: packs/builtin)
}
