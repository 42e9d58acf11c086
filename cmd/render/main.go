// Command render plays a rig capture through an avatar offscreen and writes
// every frame as an image.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/avatar"
	"github.com/normanking/rigavatar/internal/config"
	"github.com/normanking/rigavatar/internal/driver"
	"github.com/normanking/rigavatar/internal/renderer"
	"github.com/normanking/rigavatar/internal/rig"
)

type options struct {
	configDir string
	capture   string
	assets    string
	settings  string
	out       string
	format    string
	width     int
	height    int
	fps       float64
	seed      int64
}

func main() {
	var o options
	flag.StringVar(&o.configDir, "config", "", "configuration directory; defaults are used when empty")
	flag.StringVar(&o.capture, "capture", "", "rig capture file (JSON lines)")
	flag.StringVar(&o.assets, "assets", "", "asset directory, overrides the configuration")
	flag.StringVar(&o.settings, "settings", "", "model settings file name, overrides the configuration")
	flag.StringVar(&o.out, "out", "frames", "output directory")
	flag.StringVar(&o.format, "format", "webp", "frame format: webp or png")
	flag.IntVar(&o.width, "width", 512, "frame width")
	flag.IntVar(&o.height, "height", 512, "frame height")
	flag.Float64Var(&o.fps, "fps", 30, "frames per second of capture time")
	flag.Int64Var(&o.seed, "seed", 1, "motion and blink seed")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("app", "rigavatar-render").Logger()

	if err := run(o, log); err != nil {
		log.Error().Err(err).Msg("render failed")
		os.Exit(1)
	}
}

func run(o options, log zerolog.Logger) error {
	if o.capture == "" {
		return fmt.Errorf("-capture is required")
	}
	encode, ext, err := encoder(o.format)
	if err != nil {
		return err
	}
	if o.fps <= 0 {
		return fmt.Errorf("fps must be positive")
	}

	cfg := config.DefaultConfig()
	if o.configDir != "" {
		if cfg, err = config.NewLoader(o.configDir).Load(); err != nil {
			return err
		}
	}
	if o.assets != "" {
		cfg.Assets.Dir = o.assets
		cfg.Assets.URL = ""
	}
	if o.settings != "" {
		cfg.Assets.Settings = o.settings
	}
	cfg.Assets.Seed = o.seed

	f, err := os.Open(o.capture)
	if err != nil {
		return err
	}
	samples, err := rig.ReadCapture(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("capture %s is empty", o.capture)
	}

	canvas := renderer.NewCanvas(o.width, o.height)
	pipeline, err := renderer.NewPipeline(canvas, cfg.PipelineOptions(log))
	if err != nil {
		return err
	}

	src, err := cfg.Assets.Source()
	if err != nil {
		return err
	}
	loadOpts, err := cfg.Assets.LoadOptions(log)
	if err != nil {
		return err
	}
	bundle, err := assets.Load(context.Background(), src, loadOpts)
	if err != nil {
		return err
	}

	av, err := avatar.New(pipeline, bundle, cfg.AvatarOptions(log))
	if err != nil {
		return err
	}
	defer av.Release()

	if err := os.MkdirAll(o.out, 0o755); err != nil {
		return err
	}

	r := newReplay(samples, o.fps)
	dOpts := cfg.DriverOptions(log)
	dOpts.Clock = r.now
	d := driver.New(av, dOpts)

	for i := 0; r.more(); i++ {
		state := r.next()
		av.Clear()
		if err := d.Frame(state); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		path := filepath.Join(o.out, fmt.Sprintf("frame_%05d.%s", i, ext))
		if err := writeFrame(path, canvas.Image(), encode); err != nil {
			return err
		}
	}

	frames, misses := d.Stats()
	log.Info().
		Uint64("frames", frames).
		Uint64("withoutState", misses).
		Str("out", o.out).
		Msg("capture rendered")
	return nil
}

type encodeFunc func(w io.Writer, img image.Image) error

func encoder(format string) (encodeFunc, string, error) {
	switch format {
	case "webp":
		return func(w io.Writer, img image.Image) error {
			return nativewebp.Encode(w, img, nil)
		}, "webp", nil
	case "png":
		return png.Encode, "png", nil
	}
	return nil, "", fmt.Errorf("unknown frame format %q", format)
}

func writeFrame(path string, img image.Image, encode encodeFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// replay steps capture time at a fixed frame rate. Each frame takes the last
// sample recorded since the previous frame, or nil when there was none.
type replay struct {
	samples []rig.Sample
	pos     int
	step    time.Duration
	t       time.Duration
	end     time.Duration
	epoch   time.Time
}

func newReplay(samples []rig.Sample, fps float64) *replay {
	return &replay{
		samples: samples,
		step:    time.Duration(float64(time.Second) / fps),
		end:     samples[len(samples)-1].At,
		epoch:   time.Unix(0, 0),
		t:       -1,
	}
}

func (r *replay) now() time.Time {
	return r.epoch.Add(r.t)
}

func (r *replay) more() bool {
	return r.t < r.end
}

func (r *replay) next() *rig.State {
	if r.t < 0 {
		r.t = 0
	} else {
		r.t += r.step
	}
	var st *rig.State
	for r.pos < len(r.samples) && r.samples[r.pos].At <= r.t {
		st = r.samples[r.pos].State
		r.pos++
	}
	return st
}
