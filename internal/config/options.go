package config

import (
	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/avatar"
	"github.com/normanking/rigavatar/internal/driver"
	"github.com/normanking/rigavatar/internal/renderer"
)

// Source returns the HTTP source when URL is set, the directory source
// otherwise.
func (a AssetsConfig) Source() (assets.Source, error) {
	if a.URL != "" {
		return assets.NewHTTPSource(a.URL, a.Timeout)
	}
	return assets.DirSource{Root: a.Dir}, nil
}

func (a AssetsConfig) LoadOptions(log zerolog.Logger) (assets.Options, error) {
	policy, err := assets.ParseTexturePolicy(a.TexturePolicy)
	if err != nil {
		return assets.Options{}, err
	}
	opts := assets.DefaultOptions()
	if a.Settings != "" {
		opts.Settings = a.Settings
	}
	if a.Concurrency > 0 {
		opts.Concurrency = a.Concurrency
	}
	opts.TexturePolicy = policy
	opts.Naming = a.Naming
	opts.Logger = log
	return opts, nil
}

func (c *Config) AvatarOptions(log zerolog.Logger) avatar.Options {
	opts := avatar.DefaultOptions()
	opts.AutoBlink = c.Avatar.AutoBlink
	opts.Breath = c.Avatar.Breath
	opts.BlinkMinGap = c.Blink.MinGap
	opts.BlinkMaxGap = c.Blink.MaxGap
	opts.Seed = c.Assets.Seed
	opts.Logger = log
	return opts
}

func (c *Config) PipelineOptions(log zerolog.Logger) renderer.Options {
	opts := renderer.DefaultOptions()
	opts.X = c.Avatar.X
	opts.Y = c.Avatar.Y
	opts.Scale = c.Avatar.Scale
	opts.Logger = log
	return opts
}

func (c *Config) DriverOptions(log zerolog.Logger) driver.Options {
	opts := driver.DefaultOptions()
	opts.Mapping = c.Mapping
	opts.Blink = c.Blink.Options()
	opts.Logger = log
	return opts
}

func (w WindowConfig) Renderer() renderer.WindowConfig {
	return renderer.WindowConfig{
		Width:       w.Width,
		Height:      w.Height,
		Title:       w.Title,
		VSync:       w.VSync,
		MSAA:        w.MSAA,
		Transparent: w.Transparent,
		ShaderDir:   w.ShaderDir,
	}
}
