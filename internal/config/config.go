// Package config provides configuration management for rigavatar
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/blink"
	"github.com/normanking/rigavatar/internal/logging"
	"github.com/normanking/rigavatar/internal/mapper"
)

// Config holds all application configuration
type Config struct {
	Avatar    AvatarConfig        `mapstructure:"avatar"`
	Mapping   mapper.Coefficients `mapstructure:"mapping"`
	Blink     BlinkConfig         `mapstructure:"blink"`
	Assets    AssetsConfig        `mapstructure:"assets"`
	Window    WindowConfig        `mapstructure:"window"`
	Server    ServerConfig        `mapstructure:"server"`
	Logging   logging.Config      `mapstructure:"logging"`
	HotReload HotReloadConfig     `mapstructure:"hot_reload"`
}

// AvatarConfig places the model and toggles its autonomous layers.
type AvatarConfig struct {
	AutoBlink bool    `mapstructure:"auto_blink"`
	Breath    bool    `mapstructure:"breath"`
	X         float32 `mapstructure:"x"`
	Y         float32 `mapstructure:"y"`
	Scale     float32 `mapstructure:"scale"`
}

type BlinkConfig struct {
	EnableWink  bool          `mapstructure:"enable_wink"`
	MaxRotation float32       `mapstructure:"max_rotation"`
	MinGap      time.Duration `mapstructure:"min_gap"`
	MaxGap      time.Duration `mapstructure:"max_gap"`
}

func (b BlinkConfig) Options() blink.Options {
	return blink.Options{EnableWink: b.EnableWink, MaxRotation: b.MaxRotation}
}

// AssetsConfig locates the avatar assets. URL wins over Dir when both are set.
type AssetsConfig struct {
	Dir           string        `mapstructure:"dir"`
	URL           string        `mapstructure:"url"`
	Settings      string        `mapstructure:"settings"`
	TexturePolicy string        `mapstructure:"texture_policy"`
	Naming        string        `mapstructure:"naming"` // auto, legacy or modern
	Seed          int64         `mapstructure:"seed"`
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type WindowConfig struct {
	Title       string `mapstructure:"title"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	VSync       bool   `mapstructure:"vsync"`
	MSAA        int    `mapstructure:"msaa"`
	Transparent bool   `mapstructure:"transparent"`
	ShaderDir   string `mapstructure:"shader_dir"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type HotReloadConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Avatar: AvatarConfig{
			AutoBlink: true,
			Breath:    true,
			Scale:     1,
		},
		Mapping: mapper.DefaultCoefficients(),
		Blink: BlinkConfig{
			EnableWink:  true,
			MaxRotation: 0.5,
			MinGap:      2 * time.Second,
			MaxGap:      6 * time.Second,
		},
		Assets: AssetsConfig{
			Dir:           "assets",
			Settings:      "model.model3.json",
			TexturePolicy: "skip",
			Naming:        "auto",
			Concurrency:   8,
			Timeout:       30 * time.Second,
		},
		Window: WindowConfig{
			Title:       "Rig Avatar",
			Width:       1280,
			Height:      720,
			VSync:       true,
			MSAA:        4,
			Transparent: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8765",
		},
		Logging: logging.Config{
			Dir:        filepath.Join(home, ".rigavatar", "logs"),
			Level:      logging.LevelInfo,
			MaxHistory: 1000,
			Console:    true,
		},
		HotReload: HotReloadConfig{
			Enabled:  true,
			Debounce: 250 * time.Millisecond,
		},
	}
}

// Validate reports the first setting no component could run with.
func (c *Config) Validate() error {
	if c.Avatar.Scale <= 0 {
		return fmt.Errorf("avatar.scale must be positive, got %v", c.Avatar.Scale)
	}
	if err := c.Mapping.Validate(); err != nil {
		return err
	}
	if _, err := assets.ParseTexturePolicy(c.Assets.TexturePolicy); err != nil {
		return fmt.Errorf("assets.texture_policy: %w", err)
	}
	switch c.Assets.Naming {
	case "", "auto", "legacy", "modern":
	default:
		return fmt.Errorf("assets.naming: unknown generation %q", c.Assets.Naming)
	}
	if c.Blink.MaxGap < c.Blink.MinGap {
		return errors.New("blink.max_gap is shorter than blink.min_gap")
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	return nil
}

// values flattens cfg to viper keys. Durations are written as strings so the
// file stays readable.
func values(cfg *Config) map[string]any {
	return map[string]any{
		"avatar.auto_blink": cfg.Avatar.AutoBlink,
		"avatar.breath":     cfg.Avatar.Breath,
		"avatar.x":          cfg.Avatar.X,
		"avatar.y":          cfg.Avatar.Y,
		"avatar.scale":      cfg.Avatar.Scale,

		"mapping.head_lerp":       cfg.Mapping.HeadLerp,
		"mapping.eye_lerp":        cfg.Mapping.EyeLerp,
		"mapping.mouth_lerp":      cfg.Mapping.MouthLerp,
		"mapping.body_damping":    cfg.Mapping.BodyDamping,
		"mapping.mouth_form_bias": cfg.Mapping.MouthFormBias,

		"blink.enable_wink":  cfg.Blink.EnableWink,
		"blink.max_rotation": cfg.Blink.MaxRotation,
		"blink.min_gap":      cfg.Blink.MinGap.String(),
		"blink.max_gap":      cfg.Blink.MaxGap.String(),

		"assets.dir":            cfg.Assets.Dir,
		"assets.url":            cfg.Assets.URL,
		"assets.settings":       cfg.Assets.Settings,
		"assets.texture_policy": cfg.Assets.TexturePolicy,
		"assets.naming":         cfg.Assets.Naming,
		"assets.seed":           cfg.Assets.Seed,
		"assets.concurrency":    cfg.Assets.Concurrency,
		"assets.timeout":        cfg.Assets.Timeout.String(),

		"window.title":       cfg.Window.Title,
		"window.width":       cfg.Window.Width,
		"window.height":      cfg.Window.Height,
		"window.vsync":       cfg.Window.VSync,
		"window.msaa":        cfg.Window.MSAA,
		"window.transparent": cfg.Window.Transparent,
		"window.shader_dir":  cfg.Window.ShaderDir,

		"server.enabled": cfg.Server.Enabled,
		"server.addr":    cfg.Server.Addr,

		"logging.dir":         cfg.Logging.Dir,
		"logging.level":       string(cfg.Logging.Level),
		"logging.max_history": cfg.Logging.MaxHistory,
		"logging.console":     cfg.Logging.Console,

		"hot_reload.enabled":  cfg.HotReload.Enabled,
		"hot_reload.debounce": cfg.HotReload.Debounce.String(),
	}
}

// Loader reads config.yaml from one directory, with RIGAVATAR_ environment
// overrides, and watches it for changes.
type Loader struct {
	mu  sync.Mutex
	v   *viper.Viper
	dir string
}

func NewLoader(dir string) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")

	v.SetEnvPrefix("RIGAVATAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range values(DefaultConfig()) {
		v.SetDefault(k, val)
	}
	return &Loader{v: v, dir: dir}
}

// Load reads the config file, writing the defaults first when none exists.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := l.save(DefaultConfig()); err != nil {
			return nil, err
		}
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) Save(cfg *Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(cfg)
}

// save writes through a scratch viper so the written values never shadow
// later edits to the file.
func (l *Loader) save(cfg *Config) error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return err
	}
	w := viper.New()
	for k, val := range values(cfg) {
		w.Set(k, val)
	}
	if err := w.WriteConfigAs(filepath.Join(l.dir, "config.yaml")); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Watch calls fn with the re-read configuration each time the file changes.
// A file that no longer validates is reported through err and the previous
// configuration stays in effect.
func (l *Loader) Watch(fn func(cfg *Config, err error)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		fn(cfg, err)
	})
	l.v.WatchConfig()
}

// Dir returns the default configuration directory, ~/.rigavatar.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".rigavatar"), nil
}

// Load reads the configuration from the default directory.
func Load() (*Config, *Loader, error) {
	dir, err := Dir()
	if err != nil {
		return DefaultConfig(), nil, err
	}
	l := NewLoader(dir)
	cfg, err := l.Load()
	return cfg, l, err
}
