package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models capeline.yml.
type Config struct {
	Game struct {
		CivilianName string `yaml:"civilian_name"`
		SuperName    string `yaml:"super_name"`
		Model        string `yaml:"model"`
	} `yaml:"game"`
	Economy  Economy        `yaml:"economy"`
	Checks   Checks         `yaml:"checks"`
	Training Training       `yaml:"training"`
	Work     []WorkActivity `yaml:"work"`
	Gateway  Gateway        `yaml:"gateway"`
	Server   Server         `yaml:"server"`
}

type Economy struct {
	WeeklyRent          int `yaml:"weekly_rent"`
	DowntimeTokens      int `yaml:"downtime_tokens"`
	StartingMoney       int `yaml:"starting_money"`
	StatXPPerPoint      int `yaml:"stat_xp_per_point"`
	PowerXPPerLevel     int `yaml:"power_xp_per_level"`
	PowerUpgradeCost    int `yaml:"power_upgrade_cost"`
	MaxDifficulty       int `yaml:"max_difficulty"`
	EventTaskDifficulty int `yaml:"event_task_difficulty"`
	EventTaskReward     struct {
		Money int `yaml:"money"`
		Fame  int `yaml:"fame"`
	} `yaml:"event_task_reward"`
}

type Checks struct {
	BaseTarget     int `yaml:"base_target"`
	DifficultyStep int `yaml:"difficulty_step"`
	DieSides       int `yaml:"die_sides"`
}

type Training struct {
	AttributeXP int                `yaml:"attribute_xp"`
	PowerXP     int                `yaml:"power_xp"`
	Activities  []TrainingActivity `yaml:"activities"`
}

type TrainingActivity struct {
	ID     string `yaml:"id"`
	Target string `yaml:"target"`
	Power  bool   `yaml:"power"`
	BaseXP int    `yaml:"base_xp"`
}

type WorkActivity struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	BaseMoney int    `yaml:"base_money"`
}

type Gateway struct {
	Provider         string  `yaml:"provider"`
	Model            string  `yaml:"model"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	BaseURL          string  `yaml:"base_url"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	MaxTokens        int     `yaml:"max_tokens"`
	DailyBudgetUSD   float64 `yaml:"daily_budget_usd"`
	MonthlyBudgetUSD float64 `yaml:"monthly_budget_usd"`
}

// Timeout is the per-call deadline for generation requests.
func (g Gateway) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type Server struct {
	JWTSecretEnv string          `yaml:"jwt_secret_env"`
	Webhooks     []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cape init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or the defaults when no file exists.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Economy.WeeklyRent < 0 {
		return fmt.Errorf("config.economy.weekly_rent must not be negative")
	}
	if c.Economy.DowntimeTokens < 0 {
		return fmt.Errorf("config.economy.downtime_tokens must not be negative")
	}
	if c.Economy.StatXPPerPoint <= 0 {
		return fmt.Errorf("config.economy.stat_xp_per_point must be positive")
	}
	if c.Economy.PowerXPPerLevel <= 0 {
		return fmt.Errorf("config.economy.power_xp_per_level must be positive")
	}
	if c.Economy.MaxDifficulty <= 0 {
		return fmt.Errorf("config.economy.max_difficulty must be positive")
	}
	if c.Checks.DieSides < 2 {
		return fmt.Errorf("config.checks.die_sides must be at least 2")
	}
	seen := map[string]struct{}{}
	for _, a := range c.Training.Activities {
		if a.ID == "" || a.Target == "" {
			return fmt.Errorf("training activity requires id and target")
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate training activity %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	seen = map[string]struct{}{}
	for _, w := range c.Work {
		if w.ID == "" {
			return fmt.Errorf("work activity requires id")
		}
		if _, dup := seen[w.ID]; dup {
			return fmt.Errorf("duplicate work activity %s", w.ID)
		}
		seen[w.ID] = struct{}{}
	}
	switch strings.ToLower(c.Gateway.Provider) {
	case "", "none", "anthropic", "openai":
	default:
		return fmt.Errorf("config.gateway.provider must be none, anthropic or openai")
	}
	for i, hook := range c.Server.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.server.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// TrainingActivity looks up a training option by id.
func (c *Config) TrainingActivity(id string) (TrainingActivity, bool) {
	for _, a := range c.Training.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return TrainingActivity{}, false
}

// WorkActivity looks up a work option by id.
func (c *Config) WorkActivity(id string) (WorkActivity, bool) {
	for _, w := range c.Work {
		if w.ID == id {
			return w, true
		}
	}
	return WorkActivity{}, false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "capeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `game:
  civilian_name: Alex Reyes
  super_name: Nightjar
  model: ""

economy:
  weekly_rent: 150
  downtime_tokens: 3
  starting_money: 300
  stat_xp_per_point: 100
  power_xp_per_level: 100
  power_upgrade_cost: 1
  max_difficulty: 10
  # generic tasks synthesized from calendar events
  event_task_difficulty: 2
  event_task_reward:
    money: 25
    fame: 1

checks:
  base_target: 8
  difficulty_step: 2
  die_sides: 20

training:
  attribute_xp: 20
  power_xp: 30
  activities:
    - id: weights
      target: strength
    - id: parkour
      target: agility
    - id: library
      target: intellect
    - id: networking
      target: charisma

work:
  - id: shift
    name: Diner shift
    base_money: 40
  - id: freelance
    name: Freelance photography
    base_money: 60

gateway:
  provider: none
  model: ""
  api_key_env: ""
  base_url: ""
  timeout_seconds: 60
  max_tokens: 2048
  daily_budget_usd: 2
  monthly_budget_usd: 20

server:
  jwt_secret_env: CAPELINE_JWT_SECRET
  webhooks: []
`
