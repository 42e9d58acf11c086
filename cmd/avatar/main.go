package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/avatar"
	"github.com/normanking/rigavatar/internal/bus"
	"github.com/normanking/rigavatar/internal/config"
	"github.com/normanking/rigavatar/internal/driver"
	"github.com/normanking/rigavatar/internal/hotreload"
	"github.com/normanking/rigavatar/internal/logging"
	"github.com/normanking/rigavatar/internal/motion"
	"github.com/normanking/rigavatar/internal/renderer"
	"github.com/normanking/rigavatar/internal/rig"
	"github.com/normanking/rigavatar/internal/server"
)

func init() {
	// GL calls must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	configDir := flag.String("config", "", "configuration directory (default ~/.rigavatar)")
	showFPS := flag.Bool("fps", false, "log frame rate every second")
	flag.Parse()

	if err := run(*configDir, *showFPS); err != nil {
		fmt.Fprintln(os.Stderr, "avatar:", err)
		os.Exit(1)
	}
}

func run(configDir string, showFPS bool) error {
	if configDir == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		configDir = dir
	}
	loader := config.NewLoader(configDir)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus()
	feed := rig.NewFeed()

	var current atomic.Pointer[config.Config]
	current.Store(cfg)
	var motions atomic.Pointer[motion.Set]

	reload := make(chan struct{}, 1)
	requestReload := func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	}

	loader.Watch(func(next *config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("config change rejected")
			return
		}
		current.Store(next)
		events.Publish(bus.Event{Type: bus.EventConfigChanged})
		requestReload()
	})

	var motionRequests <-chan string
	lipSync := func() float32 { return 0 }
	if cfg.Server.Enabled {
		srv := server.New(feed, server.Options{
			Logger:  logger.Component("server"),
			Bus:     events,
			History: logger.GetHistory,
			Config:  func() any { return current.Load() },
			HasMotion: func(name string) bool {
				set := motions.Load()
				if set == nil {
					return false
				}
				_, ok := set.Get(name)
				return ok
			},
		})
		motionRequests = srv.Motions()
		lipSync = srv.LipSync
		logger.SetOnLog(srv.PublishLog)
		go func() {
			if err := srv.Listen(cfg.Server.Addr); err != nil {
				log.Error().Err(err).Msg("ingest server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.HotReload.Enabled && cfg.Assets.URL == "" {
		w, err := hotreload.New(cfg.Assets.Dir, cfg.HotReload.Debounce, logger.Component("hotreload"))
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.Assets.Dir).Msg("asset hot reload disabled")
		} else {
			defer w.Close()
			go w.Run(ctx)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case files := <-w.Changes():
						events.Publish(bus.Event{Type: bus.EventAssetsChanged, Data: map[string]any{"files": files}})
						requestReload()
					}
				}
			}()
		}
	}

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	defer glfw.Terminate()

	win, err := renderer.NewWindow(cfg.Window.Renderer(), logger.Component("renderer"))
	if err != nil {
		return err
	}
	defer win.Destroy()

	// The pipeline exists before any asset work so a missing context fails
	// fast.
	pipeline, err := renderer.NewPipeline(win, cfg.PipelineOptions(logger.Component("renderer")))
	if err != nil {
		return err
	}
	bundle, err := loadBundle(ctx, cfg, logger.Component("assets"))
	if err != nil {
		return err
	}
	av, err := avatar.New(pipeline, bundle, cfg.AvatarOptions(logger.Component("avatar")))
	if err != nil {
		return err
	}
	defer func() { av.Release() }()
	motions.Store(bundle.Motions)

	d := driver.New(av, cfg.DriverOptions(logger.Component("driver")))
	win.OnResize(func(w, h int) { av.Resize() })

	bundles := make(chan *assets.Bundle, 1)
	loading, again := false, false

	frames := 0
	fpsTimer := time.Now()

	log.Info().Str("assets", assetLocation(cfg)).Msg("render loop started")
	for !win.ShouldClose() {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
			return nil

		case <-reload:
			if loading {
				again = true
				break
			}
			loading = true
			go func(c *config.Config) {
				b, err := loadBundle(ctx, c, logger.Component("assets"))
				if err != nil {
					log.Error().Err(err).Msg("asset reload failed")
					events.Publish(bus.Event{Type: bus.EventAssetsFailed, Data: map[string]any{"error": err.Error()}})
				}
				bundles <- b
			}(current.Load())

		case b := <-bundles:
			loading = false
			if b != nil {
				if next, err := rebuild(win, b, current.Load(), logger); err != nil {
					log.Error().Err(err).Msg("avatar rebuild failed")
				} else {
					av.Release()
					av = next
					d = driver.New(av, current.Load().DriverOptions(logger.Component("driver")))
					motions.Store(b.Motions)
					events.Publish(bus.Event{Type: bus.EventAssetsReloaded, Data: map[string]any{"motions": b.Motions.Len()}})
					log.Info().Msg("avatar reloaded")
				}
			}
			if again {
				again = false
				requestReload()
			}

		case name := <-motionRequests:
			if err := av.StartMotion(name); err != nil {
				log.Warn().Err(err).Msg("motion request ignored")
			}

		default:
		}

		av.SetLipSync(lipSync())
		av.Clear()
		if err := d.Frame(feed.Take()); err != nil {
			log.Error().Err(err).Msg("frame failed")
		}
		win.Present()

		frames++
		if showFPS && time.Since(fpsTimer) >= time.Second {
			received, dropped := feed.Stats()
			log.Info().
				Int("fps", frames).
				Uint64("samples", received).
				Uint64("dropped", dropped).
				Str("motion", av.Motion()).
				Msg("frame stats")
			frames = 0
			fpsTimer = time.Now()
		}
	}

	log.Info().Msg("render loop ended")
	return nil
}

func loadBundle(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*assets.Bundle, error) {
	src, err := cfg.Assets.Source()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Assets.LoadOptions(log)
	if err != nil {
		return nil, err
	}
	if cfg.Assets.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Assets.Timeout)
		defer cancel()
	}
	return assets.Load(ctx, src, opts)
}

func rebuild(win *renderer.Window, b *assets.Bundle, cfg *config.Config, logger *logging.Logger) (*avatar.Instance, error) {
	pipeline, err := renderer.NewPipeline(win, cfg.PipelineOptions(logger.Component("renderer")))
	if err != nil {
		return nil, err
	}
	return avatar.New(pipeline, b, cfg.AvatarOptions(logger.Component("avatar")))
}

func assetLocation(cfg *config.Config) string {
	if cfg.Assets.URL != "" {
		return cfg.Assets.URL
	}
	return cfg.Assets.Dir
}
