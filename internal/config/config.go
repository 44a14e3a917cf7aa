package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/utils/headers"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP
	HTTPTimeout    time.Duration
	UserAgent      string
	Headers        map[string]string
	Proxies        []string
	RateLimitRPS   float64
	RateLimitBurst int
	RetryAttempts  int

	// Gathering
	MinIDGoal   int
	Concurrency int
	CursorDB    string
	SitesDir    string

	// Detail page cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Rendering
	ChromePath string
	RenderWait time.Duration

	// Serving
	ListenAddr string

	// ConfigFile is the file the defaults block was read from, if any.
	ConfigFile string
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel:        DefaultLogLevel,
		JSONLog:         DefaultJSONLog,
		HTTPTimeout:     DefaultHTTPTimeout,
		UserAgent:       DefaultUserAgent,
		RateLimitRPS:    DefaultRateLimitRPS,
		RateLimitBurst:  DefaultRateLimitBurst,
		RetryAttempts:   DefaultRetryAttempts,
		MinIDGoal:       DefaultMinIDGoal,
		Concurrency:     DefaultConcurrency,
		CursorDB:        DefaultCursorDB,
		CacheTTL:        DefaultCacheTTL,
		CacheMaxEntries: DefaultCacheMaxEntries,
		RenderWait:      DefaultRenderWait,
		ListenAddr:      DefaultListenAddr,
	}
}

// Load builds a Config by combining defaults, an optional config file, environment variables, and CLI flags.
// Caller should pass the root *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Default()

	path := DefaultConfigFile
	explicit := false
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
			explicit = true
		}
	}
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" && !explicit {
		path = v
		explicit = true
	}

	values, err := ReadFile(path)
	switch {
	case err == nil:
		cfg.ConfigFile = path
		if err := cfg.ApplyMap(values); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}
	if err := cfg.applyEnv(os.Environ()); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if cmd != nil {
		if err := cfg.applyFlags(cmd); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyMap applies a decoded defaults block. Unknown keys are logged and ignored.
func (c *Config) ApplyMap(values map[string]any) error {
	for key, value := range values {
		if err := c.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Set assigns one tunable by its config-file key. Values may be typed
// (from JSON) or strings (from the environment).
func (c *Config) Set(key string, value any) error {
	var err error
	switch strings.ToLower(key) {
	case "log_level":
		c.LogLevel, err = asString(value)
	case "json_log":
		c.JSONLog, err = asBool(value)
	case "timeout", "http_timeout":
		c.HTTPTimeout, err = asDuration(value)
	case "user_agent":
		c.UserAgent, err = asString(value)
	case "header", "headers":
		var hs []string
		if hs, err = asStrings(value); err == nil {
			c.Headers = headers.ParseHeaders(hs)
		}
	case "proxy", "proxies":
		c.Proxies, err = asStrings(value)
	case "rate_limit_rps":
		c.RateLimitRPS, err = asFloat(value)
	case "rate_limit_burst":
		c.RateLimitBurst, err = asInt(value)
	case "retry_attempts":
		c.RetryAttempts, err = asInt(value)
	case "min_id_goal":
		c.MinIDGoal, err = asInt(value)
	case "concurrency":
		c.Concurrency, err = asInt(value)
	case "cursor_db":
		c.CursorDB, err = asString(value)
	case "sites_dir":
		c.SitesDir, err = asString(value)
	case "cache_ttl":
		c.CacheTTL, err = asDuration(value)
	case "cache_max_entries":
		c.CacheMaxEntries, err = asInt(value)
	case "chrome_path":
		c.ChromePath, err = asString(value)
	case "render_wait":
		c.RenderWait, err = asDuration(value)
	case "listen", "listen_addr":
		c.ListenAddr, err = asString(value)
	case "config":
	default:
		log.Debug().Str("key", key).Msg("Ignoring unknown config key")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (c *Config) applyEnv(environ []string) error {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) || value == "" {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		if err := c.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyFlags(cmd *cobra.Command) error {
	changed := func(name string) (string, bool) {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			return "", false
		}
		return f.Value.String(), true
	}

	if s, ok := changed("user-agent"); ok && s != "" {
		c.UserAgent = s
	}
	if _, ok := changed("header"); ok {
		hs, err := cmd.Flags().GetStringArray("header")
		if err != nil {
			return fmt.Errorf("--header: %w", err)
		}
		c.Headers = headers.Merge(c.Headers, headers.ParseHeaders(hs))
	}
	if s, ok := changed("proxy"); ok && s != "" {
		c.Proxies, _ = asStrings(s)
	}
	if s, ok := changed("timeout"); ok {
		d, err := asDuration(s)
		if err != nil {
			return fmt.Errorf("--timeout: %w", err)
		}
		c.HTTPTimeout = d
	}
	if s, ok := changed("json"); ok && s == "true" {
		c.JSONLog = true
	}
	if s, ok := changed("quiet"); ok && s == "true" {
		c.LogLevel = "error"
	}
	if s, ok := changed("verbose"); ok && s == "true" {
		c.LogLevel = "debug"
	}
	if s, ok := changed("cursor-db"); ok {
		c.CursorDB = s
	}
	if s, ok := changed("sites-dir"); ok {
		c.SitesDir = s
	}
	if s, ok := changed("min-id-goal"); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("--min-id-goal: %w", err)
		}
		c.MinIDGoal = n
	}
	if s, ok := changed("rate-limit"); ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("--rate-limit: %w", err)
		}
		c.RateLimitRPS = f
	}
	return nil
}

func asString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64, int, bool:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("expected bool, got %T", v)
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		return strconv.Atoi(t)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

// asDuration accepts Go duration strings or a bare number of seconds.
func asDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case int:
		return time.Duration(t) * time.Second, nil
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
		return time.ParseDuration(t)
	}
	return 0, fmt.Errorf("expected duration, got %T", v)
}

func asStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		var out []string
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := asString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return t, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", v)
}
