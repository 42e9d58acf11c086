// Package avatar binds a loaded asset bundle to one render pipeline and
// advances it frame by frame.
package avatar

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/blink"
	"github.com/normanking/rigavatar/internal/model"
	"github.com/normanking/rigavatar/internal/motion"
	"github.com/normanking/rigavatar/internal/params"
	"github.com/normanking/rigavatar/internal/physics"
	"github.com/normanking/rigavatar/internal/renderer"
)

// lipSyncWeight is the weight the lip-sync value is added at.
const lipSyncWeight = 0.8

// Options select the idle layers. Blinks fire at a uniform random gap in
// [BlinkMinGap, BlinkMaxGap).
type Options struct {
	AutoBlink   bool
	Breath      bool
	BlinkMinGap time.Duration
	BlinkMaxGap time.Duration
	// Seed fixes motion selection and blink timing; zero seeds from the clock.
	Seed   int64
	Logger zerolog.Logger
}

// DefaultOptions enables blinking every 2 to 6 seconds and breathing.
func DefaultOptions() Options {
	return Options{
		AutoBlink:   true,
		Breath:      true,
		BlinkMinGap: 2 * time.Second,
		BlinkMaxGap: 6 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

// Instance is one drivable avatar. It exists only after its pipeline has
// been set up with the bundle's model and textures.
type Instance struct {
	log  zerolog.Logger
	opts Options

	model   *model.Model
	table   *params.Table
	store   *params.Store
	physics *physics.Rig
	motions *motion.Set

	player    *motion.Player
	scheduler *motion.Scheduler
	blinker   *blink.AutoBlinker
	breath    *Breath
	pipeline  *renderer.Pipeline

	eyeBlink []int
	lipSync  []int
	lipValue float32

	released bool
}

// New sets up pipeline for the bundle and takes ownership of it.
func New(pipeline *renderer.Pipeline, b *assets.Bundle, opts Options) (*Instance, error) {
	if pipeline == nil {
		return nil, renderer.ErrNoContext
	}
	if err := pipeline.Setup(b.Model, b.Textures); err != nil {
		return nil, fmt.Errorf("pipeline setup: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	table := b.Model.Parameters()
	store, missing := params.Bind(table, b.Generation)

	inst := &Instance{
		log:       opts.Logger,
		opts:      opts,
		model:     b.Model,
		table:     table,
		store:     store,
		physics:   b.Physics,
		motions:   b.Motions,
		player:    motion.NewPlayer(table, b.EyeBlink, b.LipSync),
		scheduler: motion.NewScheduler(rand.New(rand.NewSource(seed))),
		blinker:   blink.NewAutoBlinker(opts.BlinkMinGap, opts.BlinkMaxGap, rand.New(rand.NewSource(seed+1))),
		breath:    NewBreath(table, b.Generation),
		pipeline:  pipeline,
		eyeBlink:  b.EyeBlink,
		lipSync:   b.LipSync,
	}
	inst.breath.SetEnabled(opts.Breath)
	table.Save()

	if len(missing) > 0 {
		inst.log.Warn().Strs("channels", channelNames(missing)).Msg("model lacks tracked channels")
	}
	inst.log.Info().
		Int("motions", b.Motions.Len()).
		Int("eyeBlink", len(b.EyeBlink)).
		Int("lipSync", len(b.LipSync)).
		Bool("autoBlink", opts.AutoBlink).
		Msg("avatar ready")
	return inst, nil
}

func channelNames(cs []params.Channel) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

// Store is the channel view the frame driver writes tracked values into.
func (i *Instance) Store() *params.Store { return i.store }

func (i *Instance) Model() *model.Model { return i.model }

// Motion returns the name of the motion last started.
func (i *Instance) Motion() string { return i.player.Current() }

// MotionState reports whether a motion is playing.
func (i *Instance) MotionState() motion.State { return i.scheduler.State() }

func (i *Instance) Motions() *motion.Set { return i.motions }

func (i *Instance) Blinker() *blink.AutoBlinker { return i.blinker }

func (i *Instance) Breath() *Breath { return i.breath }

// SetLipSync sets the mouth value added to the lip-sync parameters each
// frame, in [0, 1].
func (i *Instance) SetLipSync(v float32) {
	i.lipValue = min(max(v, 0), 1)
}

// Update advances the avatar by dt seconds. Motion output is layered onto
// the saved parameters and saved again; blink, breath, lip sync and physics
// apply on top without being saved. The model is deformed last.
func (i *Instance) Update(dt float32) {
	if i.released {
		return
	}

	i.table.Load()
	updated := i.player.Update(dt)
	i.table.Save()

	if i.opts.AutoBlink && !updated {
		open := i.blinker.Update(dt)
		for _, idx := range i.eyeBlink {
			i.table.Multiply(idx, open, 1)
		}
	}

	i.breath.Update(dt, i.table)

	if i.lipValue != 0 {
		for _, idx := range i.lipSync {
			i.table.Add(idx, i.lipValue, lipSyncWeight)
		}
	}

	i.physics.Evaluate(dt)
	i.model.SetOpacity(i.player.Opacity())
	i.model.Update()
}

// ScheduleMotion starts a random motion when the current one has finished.
// It does nothing for an empty motion set.
func (i *Instance) ScheduleMotion() {
	idx, start := i.scheduler.Step(i.player.Finished(), i.motions.Len())
	if !start {
		return
	}
	clip, ok := i.motions.At(idx)
	if !ok {
		return
	}
	i.player.Start(clip)
	i.log.Debug().Str("motion", clip.Name).Msg("motion started")
}

// StartMotion starts the named motion, replacing the current one.
func (i *Instance) StartMotion(name string) error {
	clip, ok := i.motions.Get(name)
	if !ok {
		return fmt.Errorf("motion %q not found", name)
	}
	i.player.Start(clip)
	return nil
}

func (i *Instance) DrawModel() error {
	if i.released {
		return nil
	}
	return i.pipeline.DrawModel(i.model)
}

// Clear clears the pipeline's framebuffer.
func (i *Instance) Clear() {
	if !i.released {
		i.pipeline.Clear()
	}
}

// Resize recomputes the projection after a surface size change.
func (i *Instance) Resize() {
	if !i.released {
		i.pipeline.Resize()
	}
}

// Release frees GPU resources. Later calls are no-ops.
func (i *Instance) Release() {
	if i.released {
		return
	}
	i.released = true
	i.pipeline.Release()
	i.log.Debug().Msg("avatar released")
}
