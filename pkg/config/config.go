package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

// Duration wraps time.Duration so YAML values like "30s" parse directly
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level Greenlight configuration
type Config struct {
	DataDir    string `yaml:"data_dir" validate:"required"`
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	Log          LogConfig                                   `yaml:"log"`
	Deployer     DeployerConfig                              `yaml:"deployer" validate:"required"`
	Router       RouterConfig                                `yaml:"router" validate:"required"`
	Gate         GateConfig                                  `yaml:"gate"`
	Environments map[types.EnvironmentName]EnvironmentTarget `yaml:"environments" validate:"required,len=2,dive"`
	Checks       []CheckConfig                               `yaml:"checks" validate:"required,min=1,dive"`
}

// LogConfig controls structured logging output
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// DeployerConfig points at the external deployment mechanism
type DeployerConfig struct {
	Endpoint string   `yaml:"endpoint" validate:"required,url"`
	Timeout  Duration `yaml:"timeout"`
}

// RouterConfig points at the ingress routing control endpoint
type RouterConfig struct {
	Endpoint string   `yaml:"endpoint" validate:"required,url"`
	Timeout  Duration `yaml:"timeout"`
}

// GateConfig bounds the health gate as a whole
type GateConfig struct {
	// TimeoutBudget is the aggregate deadline for all checks of one gate run
	TimeoutBudget Duration `yaml:"timeout_budget"`

	// RetryBackoff is the fixed delay between retries of a single check
	RetryBackoff Duration `yaml:"retry_backoff"`

	// PostSwitchBudget bounds the verification re-check after traffic moves
	PostSwitchBudget Duration `yaml:"post_switch_budget"`
}

// EnvironmentTarget describes how to reach one slot's probe surfaces
type EnvironmentTarget struct {
	// BaseURL is the slot's HTTP root (liveness, readiness, stats paths
	// are resolved against it)
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// DatastoreAddr is the slot's backing datastore host:port for the
	// connectivity round-trip check
	DatastoreAddr string `yaml:"datastore_addr" validate:"required,hostname_port"`
}

// CheckType selects a probe implementation
type CheckType string

const (
	CheckHTTP      CheckType = "http"
	CheckTCP       CheckType = "tcp"
	CheckReadiness CheckType = "readiness"
	CheckLatency   CheckType = "latency"
	CheckResource  CheckType = "resource"
)

// CheckConfig describes one probe in the gate battery
type CheckConfig struct {
	Name      string    `yaml:"name" validate:"required"`
	Type      CheckType `yaml:"type" validate:"required,oneof=http tcp readiness latency resource"`
	Path      string    `yaml:"path"`
	Mandatory bool      `yaml:"mandatory"`
	Timeout   Duration  `yaml:"timeout"`
	Retries   int       `yaml:"retries" validate:"min=0,max=2"`

	// HTTP / readiness thresholds
	StatusMin       int      `yaml:"status_min"`
	StatusMax       int      `yaml:"status_max"`
	ExpectedModules []string `yaml:"expected_modules"`

	// Latency sampling
	Samples        int `yaml:"samples"`
	P95ThresholdMs int `yaml:"p95_threshold_ms"`

	// Resource headroom ceilings (percent)
	CPUCeiling    float64 `yaml:"cpu_ceiling"`
	MemoryCeiling float64 `yaml:"memory_ceiling"`
}

// Default returns a Config with sensible defaults applied
func Default() *Config {
	return &Config{
		DataDir:    "./greenlight-data",
		ListenAddr: "127.0.0.1:8080",
		Log:        LogConfig{Level: "info"},
		Gate: GateConfig{
			TimeoutBudget:    Duration(30 * time.Second),
			RetryBackoff:     Duration(2 * time.Second),
			PostSwitchBudget: Duration(15 * time.Second),
		},
		Deployer: DeployerConfig{Timeout: Duration(5 * time.Minute)},
		Router:   RouterConfig{Timeout: Duration(10 * time.Second)},
	}
}

// Load reads, expands, and validates a YAML config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	dataStr := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(dataStr), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gate.TimeoutBudget == 0 {
		c.Gate.TimeoutBudget = Duration(30 * time.Second)
	}
	if c.Gate.RetryBackoff == 0 {
		c.Gate.RetryBackoff = Duration(2 * time.Second)
	}
	if c.Gate.PostSwitchBudget == 0 {
		c.Gate.PostSwitchBudget = Duration(15 * time.Second)
	}
	if c.Deployer.Timeout == 0 {
		c.Deployer.Timeout = Duration(5 * time.Minute)
	}
	if c.Router.Timeout == 0 {
		c.Router.Timeout = Duration(10 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	for i := range c.Checks {
		check := &c.Checks[i]
		if check.Timeout == 0 {
			check.Timeout = Duration(10 * time.Second)
		}
		if check.StatusMin == 0 {
			check.StatusMin = 200
		}
		if check.StatusMax == 0 {
			check.StatusMax = 299
		}
		if check.Type == CheckLatency && check.Samples == 0 {
			check.Samples = 10
		}
	}
}

// Validate checks the config against its struct validation rules
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid config: %s", verrs[0].Error())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for name := range c.Environments {
		if !name.Valid() {
			return fmt.Errorf("invalid config: unknown environment %q (must be blue or green)", name)
		}
	}

	seen := make(map[string]bool)
	for _, check := range c.Checks {
		if seen[check.Name] {
			return fmt.Errorf("invalid config: duplicate check name %q", check.Name)
		}
		seen[check.Name] = true
	}

	return nil
}
