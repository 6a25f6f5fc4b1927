package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/VilotStar/StableHorder/internal/horde"
)

const yamlConfig = `
horde_url: https://aihorde.net
bridge_agent: StableHorder
bridge_version: 2
payload:
  name: bridge-01
  max_pixels: 1048576
  models: [stable_diffusion, Deliberate]
  nsfw: true
  threads: 2
  allow_post_processing: true
rec_info:
  key: rec-key
  proxy: http://rec-proxy:3128
gen_info:
  key: gen-key
  proxy: socks5://gen-proxy:1080
poll:
  interval: 2s
  timeout: 5m
  max_attempts: 100
dashboard:
  enabled: true
`

const tomlConfig = `
horde_url = "https://aihorde.net"
bridge_agent = "StableHorder"
bridge_version = 2

[payload]
name = "bridge-01"
max_pixels = 1048576
priority_usernames = []
nsfw = true
blacklist = []
models = ["stable_diffusion"]
allow_img2img = false
allow_inpainting = false
allow_unsafe_ip = true
threads = 1
allow_post_processing = true
allow_controlnet = false
require_upfront_kudos = false

[gen_info]
key = "gen-key"
proxy = ""

[rec_info]
key = "rec-key"
proxy = ""

[loop]
idle_delay = "1s"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	id := cfg.Identity()
	if id.Reception.Key != "rec-key" || id.Generation.Key != "gen-key" {
		t.Errorf("keys = %q / %q", id.Reception.Key, id.Generation.Key)
	}
	if id.Reception.Proxy != "http://rec-proxy:3128" || id.Generation.Proxy != "socks5://gen-proxy:1080" {
		t.Errorf("proxies = %q / %q", id.Reception.Proxy, id.Generation.Proxy)
	}
	if id.Payload.Threads != 2 || len(id.Payload.Models) != 2 {
		t.Errorf("payload = %+v", id.Payload)
	}

	p := cfg.Poller()
	if p.Interval != 2*time.Second || p.Timeout != 5*time.Minute || p.MaxAttempts != 100 {
		t.Errorf("poller = %+v", p)
	}
	if p.MaxInterval != horde.DefaultMaxPollInterval || p.MaxCheckRetries != horde.DefaultMaxCheckRetries {
		t.Errorf("poller defaults not applied: %+v", p)
	}
	if cfg.Database.Path != "./data/worker.db" || cfg.Dashboard.Address != ":8090" || !cfg.Dashboard.Enabled {
		t.Errorf("defaults = %+v %+v", cfg.Database, cfg.Dashboard)
	}
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "Worker.toml", tomlConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Payload.Name != "bridge-01" || !cfg.Payload.AllowUnsafeIP {
		t.Errorf("payload = %+v", cfg.Payload)
	}
	if cfg.Loop.IdleDelay.Std() != time.Second {
		t.Errorf("idle delay = %v", cfg.Loop.IdleDelay)
	}
	if cfg.Loop.PopErrorDelay.Std() != 30*time.Second {
		t.Errorf("pop error delay = %v", cfg.Loop.PopErrorDelay)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HORDE_GENERATION_KEY", "env-gen-key")
	t.Setenv("HORDE_URL", "https://stablehorde.net")

	cfg, err := Load(writeConfig(t, "config.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GenInfo.Key != "env-gen-key" || cfg.RecInfo.Key != "rec-key" {
		t.Errorf("keys = %q / %q", cfg.RecInfo.Key, cfg.GenInfo.Key)
	}
	if cfg.HordeURL != "https://stablehorde.net" {
		t.Errorf("horde url = %q", cfg.HordeURL)
	}
}

func TestLoad_MissingFields(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "horde_url: https://aihorde.net\n"))
	if !errors.Is(err, horde.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestLoad_Unparseable(t *testing.T) {
	for name, content := range map[string]string{
		"config.yaml": "payload: [unterminated",
		"config.toml": "horde_url = ",
		"bad.yaml":    "poll:\n  interval: soon\n",
	} {
		if _, err := Load(writeConfig(t, name, content)); !errors.Is(err, horde.ErrConfig) {
			t.Errorf("%s: expected ErrConfig, got %v", name, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, horde.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestIdentity_DoesNotAliasConfig(t *testing.T) {
	cfg, err := Parse([]byte(yamlConfig), ".yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	id := cfg.Identity()
	cfg.Payload.Models[0] = "changed"
	if id.Payload.Models[0] != "stable_diffusion" {
		t.Fatal("identity shares the models slice with config")
	}
}

func TestLoadMock(t *testing.T) {
	t.Setenv("MOCKHORDE_API_KEYS", "a, b,,c")
	t.Setenv("MOCKHORDE_CHECKS_TO_COMPLETE", "7")
	t.Setenv("MOCKHORDE_GENERATION_TTL", "not-a-duration")

	cfg := LoadMock()
	if len(cfg.APIKeys) != 3 || cfg.APIKeys[1] != "b" {
		t.Errorf("api keys = %v", cfg.APIKeys)
	}
	if cfg.ChecksToComplete != 7 {
		t.Errorf("checks = %d", cfg.ChecksToComplete)
	}
	if cfg.GenerationTTL != 10*time.Minute {
		t.Errorf("ttl fallback = %v", cfg.GenerationTTL)
	}
}
