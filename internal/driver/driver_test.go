package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/rigavatar/internal/assets"
	"github.com/normanking/rigavatar/internal/assets/assetstest"
	"github.com/normanking/rigavatar/internal/avatar"
	"github.com/normanking/rigavatar/internal/blink"
	"github.com/normanking/rigavatar/internal/mapper"
	"github.com/normanking/rigavatar/internal/model/modeltest"
	"github.com/normanking/rigavatar/internal/params"
	"github.com/normanking/rigavatar/internal/renderer"
	"github.com/normanking/rigavatar/internal/rig"
)

type recorder struct {
	store   *params.Store
	calls   []string
	dts     []float32
	drawErr error
	// layer runs inside Update after the parameters are saved.
	layer func(table *params.Table)
}

func (r *recorder) Store() *params.Store { return r.store }

func (r *recorder) Update(dt float32) {
	r.calls = append(r.calls, "update")
	r.dts = append(r.dts, dt)
	table := r.store.Table()
	table.Load()
	table.Save()
	if r.layer != nil {
		r.layer(table)
	}
}

func (r *recorder) ScheduleMotion() { r.calls = append(r.calls, "schedule") }

func (r *recorder) DrawModel() error {
	r.calls = append(r.calls, "draw")
	return r.drawErr
}

func newRecorder(t *testing.T) *recorder {
	t.Helper()
	defs := make([]params.Definition, 0)
	for _, p := range modeltest.Rig() {
		defs = append(defs, params.Definition{ID: p.ID, Min: p.Min, Max: p.Max, Default: p.Default})
	}
	table, err := params.NewTable(defs)
	require.NoError(t, err)
	store, missing := params.Bind(table, params.Modern)
	require.Empty(t, missing)
	return &recorder{store: store}
}

// clock returns a clock starting at a fixed instant and a func advancing it.
func clock() (func() time.Time, func(time.Duration)) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestFrame_Order(t *testing.T) {
	r := newRecorder(t)
	now, advance := clock()
	opts := DefaultOptions()
	opts.Clock = now
	d := New(r, opts)

	require.NoError(t, d.Frame(nil))
	advance(50 * time.Millisecond)
	require.NoError(t, d.Frame(&rig.State{}))

	assert.Equal(t, []string{"update", "schedule", "draw", "update", "schedule", "draw"}, r.calls)
	require.Len(t, r.dts, 2)
	assert.Zero(t, r.dts[0])
	assert.InDelta(t, 0.05, r.dts[1], 1e-6)

	frames, misses := d.Stats()
	assert.Equal(t, uint64(2), frames)
	assert.Equal(t, uint64(1), misses)
}

func TestFrame_DrawError(t *testing.T) {
	r := newRecorder(t)
	r.drawErr = errors.New("lost context")
	d := New(r, DefaultOptions())
	assert.ErrorIs(t, d.Frame(nil), r.drawErr)
}

func TestFrame_StabilizerGetsBlendedEyes(t *testing.T) {
	r := newRecorder(t)

	var got blink.Pair
	var gotHeadY float32
	opts := DefaultOptions()
	opts.Stabilize = func(eyes blink.Pair, headY float32, _ blink.Options) blink.Pair {
		got, gotHeadY = eyes, headY
		return blink.Pair{L: 0.1, R: 0.2}
	}
	d := New(r, opts)

	// Eyes default to 1 and the sample reports them shut.
	require.NoError(t, d.Frame(&rig.State{Head: rig.Head{Y: 0.3}}))

	want := mapper.Lerp(0, 1, mapper.DefaultEyeLerp)
	assert.InDelta(t, want, got.L, 1e-6)
	assert.InDelta(t, want, got.R, 1e-6)
	assert.Equal(t, float32(0.3), gotHeadY)

	assert.InDelta(t, 0.1, r.store.Get(params.EyeLOpen), 1e-6)
	assert.InDelta(t, 0.2, r.store.Get(params.EyeROpen), 1e-6)
}

func TestFrame_WritesAndSavesChannels(t *testing.T) {
	r := newRecorder(t)
	d := New(r, DefaultOptions())

	state := &rig.State{
		Head:  rig.Head{Degrees: rig.Vec3{X: 10, Y: 20, Z: -10}},
		Eye:   rig.Eyes{L: 1, R: 1},
		Mouth: rig.Vec2{Y: 1},
	}
	require.NoError(t, d.Frame(state))

	assert.InDelta(t, 20*0.3, r.store.Get(params.AngleX), 1e-5)
	assert.InDelta(t, 10*0.3, r.store.Get(params.AngleY), 1e-5)
	assert.InDelta(t, 20*0.3*0.3, r.store.Get(params.BodyAngleX), 1e-5)
	assert.InDelta(t, 0.7, r.store.Get(params.MouthOpenY), 1e-5)

	// The snapshot holds the written values.
	table := r.store.Table()
	table.SetValue(r.store.Index(params.AngleX), 0)
	table.Load()
	assert.InDelta(t, 20*0.3, r.store.Get(params.AngleX), 1e-5)
}

func TestFrame_IgnoresUnsavedLayers(t *testing.T) {
	r := newRecorder(t)
	r.layer = func(table *params.Table) {
		table.Multiply(r.store.Index(params.EyeLOpen), 0, 1)
		table.Multiply(r.store.Index(params.EyeROpen), 0, 1)
		table.Add(r.store.Index(params.AngleX), 20, 1)
	}
	d := New(r, DefaultOptions())

	state := &rig.State{Eye: rig.Eyes{L: 1, R: 1}}
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Frame(state))
	}

	saved := r.store.Saved()
	assert.InDelta(t, 1, saved[params.EyeLOpen], 1e-6)
	assert.InDelta(t, 1, saved[params.EyeROpen], 1e-6)
	assert.InDelta(t, 0, saved[params.AngleX], 1e-6)

	live := r.store.Values()
	assert.Zero(t, live[params.EyeLOpen])
	assert.InDelta(t, 20, live[params.AngleX], 1e-6)
}

func newAvatar(t *testing.T, opts avatar.Options) *avatar.Instance {
	t.Helper()
	aOpts := assets.DefaultOptions()
	aOpts.Settings = assetstest.Settings
	b, err := assets.Load(context.Background(), assetstest.Source(), aOpts)
	require.NoError(t, err)

	p, err := renderer.NewPipeline(renderer.NewCanvas(32, 32), renderer.DefaultOptions())
	require.NoError(t, err)
	inst, err := avatar.New(p, b, opts)
	require.NoError(t, err)
	return inst
}

func TestFrame_ConvergesWithIdleLayers(t *testing.T) {
	opts := avatar.DefaultOptions()
	opts.Seed = 1
	inst := newAvatar(t, opts)

	now, advance := clock()
	dOpts := DefaultOptions()
	dOpts.Clock = now
	d := New(inst, dOpts)

	state := &rig.State{Head: rig.Head{Degrees: rig.Vec3{Y: 10}}, Eye: rig.Eyes{L: 1, R: 1}}
	var prev, layered float32
	for i := 0; i < 300; i++ {
		require.NoError(t, d.Frame(state))
		advance(time.Second / 30)

		got := inst.Store().Saved()[params.AngleX]
		require.GreaterOrEqual(t, got, prev-1e-6, "frame %d", i)
		require.LessOrEqual(t, got, float32(10+1e-4), "frame %d", i)
		prev = got

		diff := inst.Store().Values()[params.AngleX] - got
		layered = max(layered, diff, -diff)
	}

	assert.InDelta(t, 10, prev, 1e-3)
	// Breath sways the drawn value without moving the tracked one.
	assert.Greater(t, layered, float32(0.5))
}

func TestFrame_NilStateKeepsTrackedValues(t *testing.T) {
	avOpts := avatar.DefaultOptions()
	avOpts.AutoBlink = false
	avOpts.Breath = false
	avOpts.Seed = 1
	inst := newAvatar(t, avOpts)
	require.NoError(t, inst.StartMotion("Idle_0"))

	inst.Store().Set(params.AngleX, 30)
	inst.Store().Save()
	before := inst.Store().Values()

	now, advance := clock()
	dOpts := DefaultOptions()
	dOpts.Clock = now
	d := New(inst, dOpts)

	require.NoError(t, d.Frame(nil))
	advance(time.Second / 30)
	require.NoError(t, d.Frame(nil))

	assert.Equal(t, before, inst.Store().Values())

	table := inst.Model().Parameters()
	assert.InDelta(t, 1.0/30, table.Value(table.Index("ParamBreath")), 1e-4)
	assert.Greater(t, table.Value(table.Index("ParamHairFront")), float32(0))
	assert.Equal(t, "Idle_0", inst.Motion())
}
