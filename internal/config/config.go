package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models loomline.yml.
type Config struct {
	Factory struct {
		Machines    int `yaml:"machines" json:"machines"`
		HoursPerDay int `yaml:"hours_per_day" json:"hours_per_day"`
		DaysPerWeek int `yaml:"days_per_week" json:"days_per_week"`
	} `yaml:"factory" json:"factory"`
	Scoring struct {
		CostScaleMax float64 `yaml:"cost_scale_max" json:"cost_scale_max"`
	} `yaml:"scoring" json:"scoring"`
	Alerts struct {
		DeadlineHorizonDays int `yaml:"deadline_horizon_days" json:"deadline_horizon_days"`
	} `yaml:"alerts" json:"alerts"`
	Auth struct {
		SessionTTLHours int    `yaml:"session_ttl_hours" json:"session_ttl_hours"`
		Users           []User `yaml:"users" json:"users"`
	} `yaml:"auth" json:"auth"`
	Catalog struct {
		Seed []SeedProduct `yaml:"seed" json:"seed"`
	} `yaml:"catalog" json:"catalog"`
}

// User is a credential-store entry. Passwords are stored in the clear, as in
// the original single-operator deployment; hardening is out of scope.
type User struct {
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"password"`
	AccessUntil string `yaml:"access_until" json:"access_until"`
}

type SeedProduct struct {
	Name          string  `yaml:"name" json:"name"`
	StandardHours float64 `yaml:"standard_hours" json:"standard_hours"`
}

// WeeklyCapacity is derived, never stored.
func (c *Config) WeeklyCapacity() float64 {
	return float64(c.Factory.Machines * c.Factory.HoursPerDay * c.Factory.DaysPerWeek)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with lm config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Factory.Machines <= 0 {
		return fmt.Errorf("config.factory.machines must be positive")
	}
	if c.Factory.HoursPerDay <= 0 || c.Factory.HoursPerDay > 24 {
		return fmt.Errorf("config.factory.hours_per_day must be in 1..24")
	}
	if c.Factory.DaysPerWeek <= 0 || c.Factory.DaysPerWeek > 7 {
		return fmt.Errorf("config.factory.days_per_week must be in 1..7")
	}
	if c.Scoring.CostScaleMax <= 0 {
		return fmt.Errorf("config.scoring.cost_scale_max must be positive")
	}
	if c.Alerts.DeadlineHorizonDays < 0 {
		return fmt.Errorf("config.alerts.deadline_horizon_days must not be negative")
	}
	if c.Auth.SessionTTLHours <= 0 {
		return fmt.Errorf("config.auth.session_ttl_hours must be positive")
	}
	seen := map[string]bool{}
	for _, u := range c.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("config.auth.users contains empty username")
		}
		if seen[u.Username] {
			return fmt.Errorf("config.auth.users has duplicate username %s", u.Username)
		}
		seen[u.Username] = true
		if u.Password == "" {
			return fmt.Errorf("user %s has empty password", u.Username)
		}
		if u.AccessUntil != "" {
			if _, err := time.Parse("2006-01-02", u.AccessUntil); err != nil {
				return fmt.Errorf("user %s has invalid access_until %q: want YYYY-MM-DD", u.Username, u.AccessUntil)
			}
		}
	}
	names := map[string]bool{}
	for _, p := range c.Catalog.Seed {
		if p.Name == "" {
			return fmt.Errorf("config.catalog.seed contains empty product name")
		}
		if names[p.Name] {
			return fmt.Errorf("config.catalog.seed has duplicate product %s", p.Name)
		}
		names[p.Name] = true
		if p.StandardHours <= 0 {
			return fmt.Errorf("seed product %s must have positive standard_hours", p.Name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "loomline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `factory:
  machines: 5
  hours_per_day: 8
  days_per_week: 5

scoring:
  cost_scale_max: 10

alerts:
  deadline_horizon_days: 3

auth:
  session_ttl_hours: 12
  users:
    - username: admin
      password: "1234"
      access_until: 2026-12-31
    - username: planner
      password: "abcd"
      access_until: 2026-11-30

catalog:
  seed:
    - name: Knit Tee
      standard_hours: 2
    - name: UV Tee
      standard_hours: 3
    - name: Knit Shorts
      standard_hours: 2
    - name: Knit Pants
      standard_hours: 4
`
