// Package config provides configuration management for cortexanim
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds all application configuration
type Config struct {
	Animation AnimationConfig `mapstructure:"animation"`
	Idle      IdleConfig      `mapstructure:"idle"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Ingress   IngressConfig   `mapstructure:"ingress"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Log       LogConfig       `mapstructure:"log"`
}

// AnimationConfig configures blending and request handling
type AnimationConfig struct {
	CrossFade     time.Duration `mapstructure:"cross_fade"`
	ClampOnFinish bool          `mapstructure:"clamp_on_finish"`
	ReturnHold    time.Duration `mapstructure:"return_hold"` // default hold for start_loop
}

// IdleConfig configures idle cycling
type IdleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Jitter   time.Duration `mapstructure:"jitter"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Variant  string        `mapstructure:"variant"` // M, F or empty for both
	Seed     uint64        `mapstructure:"seed"`    // 0 picks a random seed
}

// AssetsConfig locates clips and the character model
type AssetsConfig struct {
	Manifest    string `mapstructure:"manifest"`
	Character   string `mapstructure:"character"` // overrides the manifest's character
	Concurrency int    `mapstructure:"concurrency"`
	Watch       bool   `mapstructure:"watch"`
}

// IngressConfig configures the dialogue service connection
type IngressConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// LoopConfig configures the frame loop
type LoopConfig struct {
	FPS int `mapstructure:"fps"`
}

// LogConfig configures logging
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	MaxHistory int    `mapstructure:"max_history"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	dir, _ := Dir()
	return &Config{
		Animation: AnimationConfig{
			CrossFade:     400 * time.Millisecond,
			ClampOnFinish: true,
			ReturnHold:    5 * time.Second,
		},
		Idle: IdleConfig{
			Interval: 12 * time.Second,
			Jitter:   4 * time.Second,
			Cooldown: 3 * time.Second,
		},
		Assets: AssetsConfig{
			Manifest:    "animations.yaml",
			Concurrency: 4,
		},
		Ingress: IngressConfig{
			URL: "ws://localhost:8080/api/v1/avatar/animation/ws",
		},
		Loop: LoopConfig{
			FPS: 60,
		},
		Log: LogConfig{
			Dir:        filepath.Join(dir, "logs"),
			Level:      "info",
			Console:    true,
			MaxHistory: 1000,
		},
	}
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cortexanim"), nil
}

func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CORTEXANIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setAll(cfg, v.SetDefault)
	return v
}

func setAll(cfg *Config, set func(string, any)) {
	set("animation.cross_fade", cfg.Animation.CrossFade)
	set("animation.clamp_on_finish", cfg.Animation.ClampOnFinish)
	set("animation.return_hold", cfg.Animation.ReturnHold)
	set("idle.interval", cfg.Idle.Interval)
	set("idle.jitter", cfg.Idle.Jitter)
	set("idle.cooldown", cfg.Idle.Cooldown)
	set("idle.variant", cfg.Idle.Variant)
	set("idle.seed", cfg.Idle.Seed)
	set("assets.manifest", cfg.Assets.Manifest)
	set("assets.character", cfg.Assets.Character)
	set("assets.concurrency", cfg.Assets.Concurrency)
	set("assets.watch", cfg.Assets.Watch)
	set("ingress.url", cfg.Ingress.URL)
	set("ingress.enabled", cfg.Ingress.Enabled)
	set("loop.fps", cfg.Loop.FPS)
	set("log.dir", cfg.Log.Dir)
	set("log.level", cfg.Log.Level)
	set("log.console", cfg.Log.Console)
	set("log.max_history", cfg.Log.MaxHistory)
}

// Load reads configuration from file and environment. With an empty file
// it looks for config.yaml in the configuration directory and the working
// directory, falling back to defaults when neither exists.
func Load(file string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML to path, creating its directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	v := viper.New()
	setAll(cfg, func(key string, val any) {
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		v.Set(key, val)
	})
	return v.WriteConfigAs(path)
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Loop.FPS <= 0 || c.Loop.FPS > 1000 {
		errs = append(errs, fmt.Errorf("loop.fps must be in 1..1000, got %d", c.Loop.FPS))
	}
	if c.Animation.CrossFade < 0 {
		errs = append(errs, errors.New("animation.cross_fade must not be negative"))
	}
	if c.Assets.Concurrency < 0 {
		errs = append(errs, errors.New("assets.concurrency must not be negative"))
	}
	switch strings.ToUpper(c.Idle.Variant) {
	case "", "M", "F":
		c.Idle.Variant = strings.ToUpper(c.Idle.Variant)
	default:
		errs = append(errs, fmt.Errorf("idle.variant must be M, F or empty, got %q", c.Idle.Variant))
	}
	if c.Ingress.Enabled && c.Ingress.URL == "" {
		errs = append(errs, errors.New("ingress.url is required when ingress is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// FrameInterval is the duration of one frame of the loop.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Loop.FPS)
}
