// Package config loads and validates harness configuration: the YAML file
// describing the test environment, and the persistent entity definitions
// staged into Home Assistant before startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Lifecycle policies for the time override. The engine itself only provides
// Reset; when it runs is an orchestration decision.
const (
	// LifecycleSession keeps the logical clock alive across tests and
	// resets once at the end of the session.
	LifecycleSession = "session"

	// LifecycleTest resets the clock after every test.
	LifecycleTest = "test"
)

// Environment variables overriding configuration root discovery.
const (
	EnvHAConfigRoot        = "HOME_ASSISTANT_CONFIG_ROOT"
	EnvAppDaemonConfigRoot = "APPDAEMON_CONFIG_ROOT"
)

// Duration wraps time.Duration for YAML encoding as "90s"-style strings.
type Duration time.Duration

// Harness is the root configuration for the test environment.
type Harness struct {
	HomeAssistant Service `yaml:"homeAssistant"`
	AppDaemon     Service `yaml:"appDaemon"`

	// StartTimeout bounds the wait for both containers to become healthy.
	StartTimeout Duration `yaml:"startTimeout"`

	// Lifecycle selects when the time override is reset: "session" or
	// "test".
	Lifecycle string `yaml:"lifecycle"`

	// PersistentEntitiesPath points at a YAML mapping to register as a
	// homeassistant package before startup. Optional.
	PersistentEntitiesPath string `yaml:"persistentEntitiesPath"`

	// RefreshToken is the long-lived Home Assistant refresh token used to
	// mint access tokens.
	RefreshToken string `yaml:"refreshToken"`
}

// Service describes one container in the environment.
type Service struct {
	Image string `yaml:"image"`

	// ConfigRoot is the host directory bind-mounted as the service's
	// configuration. Empty means discover (see DiscoverRoots).
	ConfigRoot string `yaml:"configRoot"`

	// Port is the service's container port; the host port is always
	// ephemeral so parallel runs do not collide.
	Port int `yaml:"port"`
}

// Load reads harness configuration from a file path. A missing file yields
// the defaults.
func Load(path string) (*Harness, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Harness{}
			cfg.Defaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses harness configuration from YAML bytes and applies defaults.
func Parse(data []byte) (*Harness, error) {
	var cfg Harness
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode harness config: %w", err)
	}
	cfg.Defaults()
	return &cfg, nil
}

// Defaults applies default values to the configuration.
func (c *Harness) Defaults() {
	if c.HomeAssistant.Image == "" {
		c.HomeAssistant.Image = "ghcr.io/home-assistant/home-assistant:stable"
	}
	if c.HomeAssistant.Port == 0 {
		c.HomeAssistant.Port = 8123
	}
	if c.AppDaemon.Image == "" {
		c.AppDaemon.Image = "acockburn/appdaemon:latest"
	}
	if c.AppDaemon.Port == 0 {
		c.AppDaemon.Port = 5050
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = Duration(2 * time.Minute)
	}
	if c.Lifecycle == "" {
		c.Lifecycle = LifecycleSession
	}
}

// Validate checks the configuration for errors.
func (c *Harness) Validate() error {
	if c.Lifecycle != LifecycleSession && c.Lifecycle != LifecycleTest {
		return fmt.Errorf("invalid lifecycle %q (want %q or %q)", c.Lifecycle, LifecycleSession, LifecycleTest)
	}
	if c.HomeAssistant.Port <= 0 || c.HomeAssistant.Port > 65535 {
		return fmt.Errorf("homeAssistant.port %d out of range", c.HomeAssistant.Port)
	}
	if c.AppDaemon.Port <= 0 || c.AppDaemon.Port > 65535 {
		return fmt.Errorf("appDaemon.port %d out of range", c.AppDaemon.Port)
	}
	if c.StartTimeout < 0 {
		return fmt.Errorf("startTimeout must be >= 0")
	}
	return nil
}

// DiscoverRoots fills in empty configuration roots. The Home Assistant root
// comes from HOME_ASSISTANT_CONFIG_ROOT or ./home_assistant and must contain
// configuration.yaml; the AppDaemon root comes from APPDAEMON_CONFIG_ROOT or
// ./appdaemon and is not required to exist.
func (c *Harness) DiscoverRoots() error {
	if c.HomeAssistant.ConfigRoot == "" {
		if env := os.Getenv(EnvHAConfigRoot); env != "" {
			c.HomeAssistant.ConfigRoot = env
		} else {
			c.HomeAssistant.ConfigRoot = "home_assistant"
		}
	}
	configFile := filepath.Join(c.HomeAssistant.ConfigRoot, "configuration.yaml")
	if _, err := os.Stat(configFile); err != nil {
		return fmt.Errorf("configuration.yaml not found at %s: run from a directory containing a home_assistant subdirectory, or set %s", configFile, EnvHAConfigRoot)
	}

	if c.AppDaemon.ConfigRoot == "" {
		if env := os.Getenv(EnvAppDaemonConfigRoot); env != "" {
			c.AppDaemon.ConfigRoot = env
		} else {
			c.AppDaemon.ConfigRoot = "appdaemon"
		}
	}
	return nil
}

// UnmarshalYAML implements custom YAML unmarshaling for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements custom YAML marshaling for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}
