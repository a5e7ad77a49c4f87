package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tatianab/devil-deal/internal/models"
	"gopkg.in/yaml.v3"
)

// Provider names.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai_compatible"
	ProviderProxy   = "local_proxy"
	ProviderOffline = "offline"
)

// Config holds the application configuration.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Game       GameConfig       `yaml:"game"`
	Generation GenerationConfig `yaml:"generation"`
	Log        LogConfig        `yaml:"log"`
}

// ProviderConfig identifies the generator endpoint and its credential.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// GameConfig holds the rules of a run.
type GameConfig struct {
	Seed              int64            `yaml:"seed"`
	RoundMax          int              `yaml:"round_max"`
	NegotiationBudget int              `yaml:"negotiation_budget"`
	MinAcceptSoulCost int              `yaml:"min_accept_soul_cost"`
	FatalSpawnChance  float64          `yaml:"fatal_spawn_chance"`
	MaxPenalty        int              `yaml:"max_penalty"`
	Initial           models.Resources `yaml:"initial"`
	Devil             models.Devil     `yaml:"devil"`
}

// GenerationConfig tunes the generation attempt loop.
type GenerationConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	RepairDelay time.Duration `yaml:"repair_delay"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{Name: ProviderGemini},
		Game: GameConfig{
			Seed:              20260206,
			RoundMax:          1,
			NegotiationBudget: 2,
			MinAcceptSoulCost: 10,
			FatalSpawnChance:  0.3,
			MaxPenalty:        100,
			Initial:           models.Resources{Gold: 0, Happiness: 60, Soul: 100},
			Devil:             models.Devil{Tier: "small", Name: "Grim Littlehorn"},
		},
		Generation: GenerationConfig{
			MaxAttempts: 3,
			BackoffBase: 3 * time.Second,
			RetryDelay:  time.Second,
			RepairDelay: 500 * time.Millisecond,
			CallTimeout: 60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig builds the configuration from the defaults, an optional YAML
// file at path, the settings store at settingsPath and the environment, in
// that order. A missing settings file is not an error.
func LoadConfig(path, settingsPath string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if settingsPath != "" {
		s, err := LoadSettings(settingsPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			cfg.Provider = cfg.Provider.Merge(s)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Provider = cfg.Provider.WithDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DEVIL_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("DEVIL_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("DEVIL_MODEL"); v != "" {
		c.Provider.Model = v
	}
	switch c.Provider.Name {
	case ProviderGemini:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			c.Provider.APIKey = v
		}
	case ProviderOpenAI:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.Provider.APIKey = v
		}
	}
	if v := os.Getenv("DEVIL_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("DEVIL_SEED: %w", err)
		}
		c.Game.Seed = seed
	}
	return nil
}

// Validate rejects values the game cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider.Name {
	case ProviderGemini, ProviderOpenAI, ProviderProxy, ProviderOffline, "":
	default:
		errs = append(errs, fmt.Errorf("provider.name: unknown provider %q", c.Provider.Name))
	}
	g := c.Game
	if g.RoundMax < 1 {
		errs = append(errs, fmt.Errorf("game.round_max: must be at least 1 (got %d)", g.RoundMax))
	}
	if g.NegotiationBudget < 0 {
		errs = append(errs, fmt.Errorf("game.negotiation_budget: must not be negative (got %d)", g.NegotiationBudget))
	}
	if g.MinAcceptSoulCost < 0 {
		errs = append(errs, fmt.Errorf("game.min_accept_soul_cost: must not be negative (got %d)", g.MinAcceptSoulCost))
	}
	if g.FatalSpawnChance < 0 || g.FatalSpawnChance > 1 {
		errs = append(errs, fmt.Errorf("game.fatal_spawn_chance: must be in [0,1] (got %v)", g.FatalSpawnChance))
	}
	if g.MaxPenalty < 0 {
		errs = append(errs, fmt.Errorf("game.max_penalty: must not be negative (got %d)", g.MaxPenalty))
	}
	if g.Initial.Soul <= 0 {
		errs = append(errs, fmt.Errorf("game.initial.soul: must be positive (got %d)", g.Initial.Soul))
	}
	if c.Generation.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("generation.max_attempts: must be at least 1 (got %d)", c.Generation.MaxAttempts))
	}
	for name, d := range map[string]time.Duration{
		"backoff_base": c.Generation.BackoffBase,
		"retry_delay":  c.Generation.RetryDelay,
		"repair_delay": c.Generation.RepairDelay,
		"call_timeout": c.Generation.CallTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("generation.%s: must not be negative (got %s)", name, d))
		}
	}
	return errors.Join(errs...)
}

// Merge returns p with every non-empty field of o applied.
func (p ProviderConfig) Merge(o ProviderConfig) ProviderConfig {
	if o.Name != "" {
		p.Name = o.Name
	}
	if o.BaseURL != "" {
		p.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.APIKey != "" {
		p.APIKey = o.APIKey
	}
	return p
}

// WithDefaults fills an empty endpoint or model from the provider's defaults.
func (p ProviderConfig) WithDefaults() ProviderConfig {
	if p.Name == "" {
		p.Name = ProviderOffline
	}
	base, model := "", ""
	switch p.Name {
	case ProviderGemini:
		base, model = "https://generativelanguage.googleapis.com/v1beta", "gemini-2.0-flash"
	case ProviderOpenAI:
		base, model = "https://api.openai.com/v1", "gpt-4o-mini"
	case ProviderProxy:
		base, model = "http://127.0.0.1:8787", "gemini-2.0-flash"
	}
	if p.BaseURL == "" {
		p.BaseURL = base
	}
	if p.Model == "" {
		p.Model = model
	}
	return p
}

// Configured reports whether p can reach a generator at all. The local proxy
// holds its own credential; every other provider needs a key.
func (p ProviderConfig) Configured() bool {
	switch p.Name {
	case ProviderProxy:
		return p.BaseURL != "" && p.Model != ""
	case ProviderGemini, ProviderOpenAI:
		return strings.TrimSpace(p.APIKey) != "" && p.Model != ""
	default:
		return false
	}
}

// MaskedKey returns the credential with all but its last four characters
// hidden.
func (p ProviderConfig) MaskedKey() string {
	key := strings.TrimSpace(p.APIKey)
	switch {
	case key == "":
		return "(none)"
	case len(key) <= 4:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}

func (p ProviderConfig) String() string {
	return fmt.Sprintf("provider=%s base=%s model=%s key=%s", p.Name, p.BaseURL, p.Model, p.MaskedKey())
}
