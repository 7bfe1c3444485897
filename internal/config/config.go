// Package config loads service settings from defaults, an optional YAML file,
// the environment and bound command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix       = "DEVGENIE"
	DefaultFileName = "devgenie"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Google GoogleConfig `mapstructure:"google"`
	Scorer ScorerConfig `mapstructure:"scorer"`
	Chain  ChainConfig  `mapstructure:"chain"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Store  StoreConfig  `mapstructure:"store"`
	Dump   DumpConfig   `mapstructure:"dump"`
	Limits LimitsConfig `mapstructure:"limits"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// Addr is the listen address for the configured port on all interfaces.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type ScorerConfig struct {
	Model string `mapstructure:"model"`
}

type ChainConfig struct {
	Scoring     bool   `mapstructure:"scoring"`
	RubricHints bool   `mapstructure:"rubric_hints"`
	StepBonus   bool   `mapstructure:"step_bonus"`
	PresetsFile string `mapstructure:"presets_file"`
	DefaultMode string `mapstructure:"default_mode"`
}

type LLMConfig struct {
	// Timeout bounds each model call; zero leaves it to the transport.
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type DumpConfig struct {
	Dir string `mapstructure:"dir"`
}

type LimitsConfig struct {
	FinalOutput int `mapstructure:"final_output"`
	StepOutput  int `mapstructure:"step_output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every known key so that environment overrides are
// picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("google.api_key", "")
	v.SetDefault("scorer.model", "gemini-2.5-flash")
	v.SetDefault("chain.scoring", true)
	v.SetDefault("chain.rubric_hints", true)
	v.SetDefault("chain.step_bonus", false)
	v.SetDefault("chain.presets_file", "")
	v.SetDefault("chain.default_mode", "")
	v.SetDefault("llm.timeout", time.Duration(0))
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "./data/devgenie.db")
	v.SetDefault("dump.dir", "")
	v.SetDefault("limits.final_output", 8000)
	v.SetDefault("limits.step_output", 4000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration into v and decodes it. An explicit path must
// exist; without one, ./devgenie.yaml is used when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(DefaultFileName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by hosting platforms and the Gemini tooling.
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("google.api_key", EnvPrefix+"_GOOGLE_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Scorer.Model == "" {
		return errors.New("scorer model must not be empty")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("invalid llm timeout %s", c.LLM.Timeout)
	}
	if c.Limits.FinalOutput < 0 || c.Limits.StepOutput < 0 {
		return errors.New("output limits must not be negative")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return errors.New("store path is required when the store is enabled")
	}
	return nil
}
