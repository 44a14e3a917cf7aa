package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel        = "info"
	DefaultJSONLog         = false
	DefaultUserAgent       = "Mozilla/5.0 (compatible; plancrawl/1.0; +https://github.com/law-makers/plancrawl)"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultRateLimitRPS    = 2.0
	DefaultRateLimitBurst  = 4
	DefaultRetryAttempts   = 3
	DefaultMinIDGoal       = 150
	DefaultCursorDB        = "plancrawl.db"
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 512
	DefaultConcurrency     = 4
	DefaultMaxConcurrency  = 64
	DefaultRenderWait      = 500 * time.Millisecond
	DefaultConfigFile      = "plancrawl.json"
	DefaultListenAddr      = ":8080"

	// EnvPrefix prefixes every environment override, e.g. PLANCRAWL_TIMEOUT.
	EnvPrefix = "PLANCRAWL_"
)
