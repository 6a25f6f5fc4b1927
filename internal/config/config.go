package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/VilotStar/StableHorder/internal/horde"
	"github.com/VilotStar/StableHorder/internal/model"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the worker configuration
type Config struct {
	Payload       model.PopPayload `yaml:"payload" toml:"payload"`               // capability descriptor sent on every pop
	RecInfo       model.ApiInfo    `yaml:"rec_info" toml:"rec_info"`             // reception role: pops jobs
	GenInfo       model.ApiInfo    `yaml:"gen_info" toml:"gen_info"`             // generation role: submits and polls
	BridgeVersion int              `yaml:"bridge_version" toml:"bridge_version"` // reported in Client-Agent
	BridgeAgent   string           `yaml:"bridge_agent" toml:"bridge_agent"`     // reported in Client-Agent
	HordeURL      string           `yaml:"horde_url" toml:"horde_url"`           // e.g. https://aihorde.net

	Poll struct {
		Interval        Duration `yaml:"interval" toml:"interval"`                   // first delay between checks (default: 1s)
		MaxInterval     Duration `yaml:"max_interval" toml:"max_interval"`           // back-off cap (default: 10s)
		Timeout         Duration `yaml:"timeout" toml:"timeout"`                     // give up on a generation after (default: 10m)
		MaxAttempts     int      `yaml:"max_attempts" toml:"max_attempts"`           // checks per generation, 0 for unlimited
		MaxCheckRetries int      `yaml:"max_check_retries" toml:"max_check_retries"` // consecutive transient check failures tolerated (default: 3)
	} `yaml:"poll" toml:"poll"`

	Loop struct {
		IdleDelay     Duration `yaml:"idle_delay" toml:"idle_delay"`           // wait after an empty pop (default: 5s)
		PopErrorDelay Duration `yaml:"pop_error_delay" toml:"pop_error_delay"` // wait after a failed pop (default: 30s)
	} `yaml:"loop" toml:"loop"`

	Database struct {
		Path string `yaml:"path" toml:"path"` // SQLite cycle log path (default: ./data/worker.db)
	} `yaml:"database" toml:"database"`

	Dashboard struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"` // Whether to enable the dashboard (default: false)
		Address string `yaml:"address" toml:"address"` // Dashboard server address (default: :8090)
	} `yaml:"dashboard" toml:"dashboard"`
}

// Load reads the configuration from a YAML file, or TOML when the path ends
// in .toml. Secrets and URLs may be overridden from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %v", horde.ErrConfig, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Identity().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", horde.ErrConfig, err)
	}
	return cfg, nil
}

// Parse decodes raw configuration. ext selects the format (".toml" or YAML).
func Parse(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse toml config: %v", horde.ErrConfig, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse yaml config: %v", horde.ErrConfig, err)
		}
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.RecInfo.Key = envOr("HORDE_RECEPTION_KEY", c.RecInfo.Key)
	c.GenInfo.Key = envOr("HORDE_GENERATION_KEY", c.GenInfo.Key)
	c.RecInfo.Proxy = envOr("HORDE_RECEPTION_PROXY", c.RecInfo.Proxy)
	c.GenInfo.Proxy = envOr("HORDE_GENERATION_PROXY", c.GenInfo.Proxy)
	c.HordeURL = envOr("HORDE_URL", c.HordeURL)
}

func (c *Config) applyDefaults() {
	setDuration(&c.Poll.Interval, horde.DefaultPollInterval)
	setDuration(&c.Poll.MaxInterval, horde.DefaultMaxPollInterval)
	setDuration(&c.Poll.Timeout, horde.DefaultPollTimeout)
	if c.Poll.MaxCheckRetries == 0 {
		c.Poll.MaxCheckRetries = horde.DefaultMaxCheckRetries
	}
	setDuration(&c.Loop.IdleDelay, 5*time.Second)
	setDuration(&c.Loop.PopErrorDelay, 30*time.Second)
	if c.Database.Path == "" {
		c.Database.Path = "./data/worker.db"
	}
	if c.Dashboard.Address == "" {
		c.Dashboard.Address = ":8090"
	}
}

// Identity builds the immutable worker identity. Slices are copied so the
// identity does not share memory with the config.
func (c *Config) Identity() *model.WorkerIdentity {
	payload := c.Payload
	payload.PriorityUsernames = append([]string(nil), c.Payload.PriorityUsernames...)
	payload.Blacklist = append([]string(nil), c.Payload.Blacklist...)
	payload.Models = append([]string(nil), c.Payload.Models...)

	return &model.WorkerIdentity{
		Payload:       payload,
		Reception:     c.RecInfo,
		Generation:    c.GenInfo,
		BridgeVersion: c.BridgeVersion,
		BridgeAgent:   c.BridgeAgent,
		HordeURL:      c.HordeURL,
	}
}

// Poller returns the poll policy described by the config.
func (c *Config) Poller() horde.Poller {
	return horde.Poller{
		Interval:        c.Poll.Interval.Std(),
		MaxInterval:     c.Poll.MaxInterval.Std(),
		Timeout:         c.Poll.Timeout.Std(),
		MaxAttempts:     c.Poll.MaxAttempts,
		MaxCheckRetries: c.Poll.MaxCheckRetries,
	}
}

func setDuration(d *Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = Duration(fallback)
	}
}

// ─── helpers ───

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
