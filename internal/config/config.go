package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"freebusy/internal/model"
	"freebusy/internal/refresh"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// HoursConfig is a daily "HH:MM" range.
type HoursConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// RateLimitConfig bounds /query traffic. Zero RequestsPerMinute disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" json:"burst"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone all dates and times are resolved in
	// (e.g. "America/Chicago").
	Timezone string `yaml:"timezone" json:"timezone"`

	WorkHours HoursConfig `yaml:"work_hours" json:"work_hours"`

	// DayParts overrides the morning/afternoon/evening boundaries. Missing
	// names keep their defaults.
	DayParts map[string]HoursConfig `yaml:"dayparts,omitempty" json:"dayparts,omitempty"`

	// EdgePolicy is "exclusive_end" (default) or "inclusive_end".
	EdgePolicy string `yaml:"edge_policy" json:"edge_policy"`

	// HorizonDays bounds how far from today a query may reach.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	DefaultSlotMinutes int `yaml:"default_slot_minutes" json:"default_slot_minutes"`
	MaxSuggestions     int `yaml:"max_suggestions" json:"max_suggestions"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to re-fetch the ICS sources in the background.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheTTLSeconds is how long parsed feeds are reused before a fetch.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// CacheDir holds the conditional-GET body cache. Empty disables it.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	FetchConcurrency int `yaml:"fetch_concurrency" json:"fetch_concurrency"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// ErrInvalidConfig reports the first field that failed validation.
type ErrInvalidConfig struct {
	Field string
	Value any
}

func (e ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config field '%s': %v", e.Field, e.Value)
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Timezone:           "UTC",
		WorkHours:          HoursConfig{Start: "09:00", End: "18:00"},
		EdgePolicy:         model.ExclusiveEnd.String(),
		HorizonDays:        30,
		DefaultSlotMinutes: 30,
		MaxSuggestions:     1,
		RefreshCron:        "*/15 * * * *",
		CacheTTLSeconds:    300,
		CacheDir:           "",
		FetchConcurrency:   4,
		ICS:                []ICSConfig{},
		BasicAuth:          nil,
		RateLimit:          RateLimitConfig{RequestsPerMinute: 120, Burst: 20},
		LogLevel:           "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.WorkHours.Start == "" {
		c.WorkHours.Start = def.WorkHours.Start
	}
	if c.WorkHours.End == "" {
		c.WorkHours.End = def.WorkHours.End
	}
	if c.EdgePolicy == "" {
		c.EdgePolicy = def.EdgePolicy
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.DefaultSlotMinutes <= 0 {
		c.DefaultSlotMinutes = def.DefaultSlotMinutes
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = def.MaxSuggestions
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = def.CacheTTLSeconds
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = def.FetchConcurrency
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate checks every field Engine depends on plus the source list.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return ErrInvalidConfig{Field: "timezone", Value: c.Timezone}
	}
	if _, err := c.workHours(); err != nil {
		return err
	}
	for name, h := range c.DayParts {
		if _, ok := model.DefaultDayParts()[model.DayPart(name)]; !ok {
			return ErrInvalidConfig{Field: "dayparts", Value: name}
		}
		if _, err := parseHours("dayparts."+name, h); err != nil {
			return err
		}
	}
	if _, err := model.ParseEdgePolicy(c.EdgePolicy); err != nil {
		return ErrInvalidConfig{Field: "edge_policy", Value: c.EdgePolicy}
	}
	if c.HorizonDays < 1 || c.HorizonDays > 366 {
		return ErrInvalidConfig{Field: "horizon_days", Value: c.HorizonDays}
	}
	if c.DefaultSlotMinutes < 1 || c.DefaultSlotMinutes > 24*60 {
		return ErrInvalidConfig{Field: "default_slot_minutes", Value: c.DefaultSlotMinutes}
	}
	if c.MaxSuggestions < 1 || c.MaxSuggestions > 20 {
		return ErrInvalidConfig{Field: "max_suggestions", Value: c.MaxSuggestions}
	}
	if _, err := refresh.ParseSpec(c.RefreshCron); err != nil {
		return ErrInvalidConfig{Field: "refresh", Value: c.RefreshCron}
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return ErrInvalidConfig{Field: "rate_limit.requests_per_minute", Value: c.RateLimit.RequestsPerMinute}
	}
	seen := make(map[string]bool, len(c.ICS))
	for i, src := range c.ICS {
		if src.URL == "" {
			return ErrInvalidConfig{Field: fmt.Sprintf("ics[%d].url", i), Value: src.URL}
		}
		id := src.ID
		if id == "" {
			id = src.URL
		}
		if seen[id] {
			return ErrInvalidConfig{Field: fmt.Sprintf("ics[%d].id", i), Value: src.ID}
		}
		seen[id] = true
	}
	return nil
}

// Engine builds the explicit engine configuration handed to every query.
func (c *Config) Engine() (model.Config, error) {
	if err := c.Validate(); err != nil {
		return model.Config{}, err
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return model.Config{}, errors.Wrapf(err, "load timezone %q", c.Timezone)
	}
	work, err := c.workHours()
	if err != nil {
		return model.Config{}, err
	}
	parts := model.DefaultDayParts()
	for name, h := range c.DayParts {
		hours, err := parseHours("dayparts."+name, h)
		if err != nil {
			return model.Config{}, err
		}
		parts[model.DayPart(name)] = hours
	}
	policy, err := model.ParseEdgePolicy(c.EdgePolicy)
	if err != nil {
		return model.Config{}, errors.Wrap(err, "edge_policy")
	}
	return model.Config{
		Location:           loc,
		WorkHours:          work,
		DayParts:           parts,
		EdgePolicy:         policy,
		HorizonDays:        c.HorizonDays,
		DefaultSlotMinutes: c.DefaultSlotMinutes,
		MaxSuggestions:     c.MaxSuggestions,
	}, nil
}

func (c *Config) workHours() (model.Hours, error) {
	return parseHours("work_hours", c.WorkHours)
}

func parseHours(field string, h HoursConfig) (model.Hours, error) {
	start, err := model.ParseClock(h.Start)
	if err != nil {
		return model.Hours{}, ErrInvalidConfig{Field: field + ".start", Value: h.Start}
	}
	end, err := model.ParseClock(h.End)
	if err != nil {
		return model.Hours{}, ErrInvalidConfig{Field: field + ".end", Value: h.End}
	}
	if !start.Before(end) {
		return model.Hours{}, ErrInvalidConfig{Field: field, Value: h.Start + "-" + h.End}
	}
	return model.Hours{Start: start, End: end}, nil
}

// Override applies every key set in v (flags or FREEBUSY_* environment
// variables) on top of the file values.
func (c *Config) Override(v *viper.Viper) {
	if v == nil {
		return
	}
	str := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) && v.GetInt(key) != 0 {
			*dst = v.GetInt(key)
		}
	}
	str("listen", &c.Listen)
	str("timezone", &c.Timezone)
	str("work_hours.start", &c.WorkHours.Start)
	str("work_hours.end", &c.WorkHours.End)
	str("edge_policy", &c.EdgePolicy)
	str("refresh", &c.RefreshCron)
	str("cache_dir", &c.CacheDir)
	str("log_level", &c.LogLevel)
	num("horizon_days", &c.HorizonDays)
	num("default_slot_minutes", &c.DefaultSlotMinutes)
	num("max_suggestions", &c.MaxSuggestions)
	num("cache_ttl_seconds", &c.CacheTTLSeconds)
	num("fetch_concurrency", &c.FetchConcurrency)
	num("rate_limit.requests_per_minute", &c.RateLimit.RequestsPerMinute)
	num("rate_limit.burst", &c.RateLimit.Burst)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".freebusy-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Redacted returns a copy safe to expose on debug endpoints: credentials are
// masked and source URLs reduced to scheme and host.
func (c *Config) Redacted(redactURL func(string) string) Config {
	out := *c
	if c.BasicAuth != nil {
		out.BasicAuth = &BasicAuthConfig{Username: c.BasicAuth.Username, Password: "********"}
	}
	out.ICS = make([]ICSConfig, len(c.ICS))
	for i, src := range c.ICS {
		src.URL = redactURL(src.URL)
		out.ICS[i] = src
	}
	return out
}
