// Package driver runs one animation frame per rig sample: map, stabilize,
// store, update, schedule, draw.
package driver

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/blink"
	"github.com/normanking/rigavatar/internal/mapper"
	"github.com/normanking/rigavatar/internal/params"
	"github.com/normanking/rigavatar/internal/rig"
)

// Target is the avatar a driver animates. *avatar.Instance implements it.
type Target interface {
	Store() *params.Store
	Update(dt float32)
	ScheduleMotion()
	DrawModel() error
}

// StabilizeFunc compensates blended eye values for head pitch.
type StabilizeFunc func(eyes blink.Pair, headY float32, opts blink.Options) blink.Pair

// Options configure the per-frame mapping. Clock is injectable for tests.
type Options struct {
	Mapping   mapper.Coefficients
	Blink     blink.Options
	Stabilize StabilizeFunc
	Clock     func() time.Time
	Logger    zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Mapping:   mapper.DefaultCoefficients(),
		Blink:     blink.DefaultOptions(),
		Stabilize: blink.Stabilize,
		Clock:     time.Now,
		Logger:    zerolog.Nop(),
	}
}

// Driver carries nothing between frames except the time of the last one.
type Driver struct {
	target Target
	opts   Options
	log    zerolog.Logger

	lastUpdate time.Time
	frames     uint64
	misses     uint64
}

// New returns a driver for target. Nil Stabilize and Clock take defaults.
func New(target Target, opts Options) *Driver {
	if opts.Stabilize == nil {
		opts.Stabilize = blink.Stabilize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Driver{
		target: target,
		opts:   opts,
		log:    opts.Logger,
	}
}

// Frame advances the avatar by the wall time since the previous frame. A nil
// state leaves the tracked parameters as they were; motion and physics still
// advance.
func (d *Driver) Frame(state *rig.State) error {
	now := d.opts.Clock()
	var dt float32
	if !d.lastUpdate.IsZero() {
		dt = float32(now.Sub(d.lastUpdate).Seconds())
	}
	d.lastUpdate = now
	d.frames++

	if state != nil {
		d.apply(state)
	} else {
		d.misses++
		d.log.Debug().Uint64("frame", d.frames).Msg("no rig state")
	}

	d.target.Update(dt)
	d.target.ScheduleMotion()
	return d.target.DrawModel()
}

func (d *Driver) apply(state *rig.State) {
	store := d.target.Store()
	// The previous frame's saved values, without the layers drawn on top.
	next := mapper.Map(*state, store.Saved(), d.opts.Mapping)

	eyes := d.opts.Stabilize(blink.Pair{
		L: next[params.EyeLOpen],
		R: next[params.EyeROpen],
	}, state.Head.Y, d.opts.Blink)
	next[params.EyeLOpen] = eyes.L
	next[params.EyeROpen] = eyes.R

	store.SetValues(next)
	store.Save()
}

// Stats reports frames run and how many of them had no rig state.
func (d *Driver) Stats() (frames, misses uint64) {
	return d.frames, d.misses
}
