package mapper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/rigavatar/internal/params"
	"github.com/normanking/rigavatar/internal/rig"
)

func TestLerp(t *testing.T) {
	tests := []struct {
		name           string
		target, prev   float32
		amount, expect float32
	}{
		{"amount zero takes target", 10, 0, 0, 10},
		{"amount one keeps previous", 10, 4, 1, 4},
		{"head blend", 10, 0, 0.7, 3},
		{"mouth blend", 1, 0, 0.3, 0.7},
		{"negative", -20, 10, 0.5, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expect, Lerp(tt.target, tt.prev, tt.amount), 1e-5)
		})
	}
}

func TestLerp_ConvergesWithoutOvershoot(t *testing.T) {
	for _, amount := range []float32{DefaultHeadLerp, DefaultMouthLerp} {
		target, p := float32(25), float32(-5)
		for i := 0; i < 60 && target-p > 1e-3; i++ {
			next := Lerp(target, p, amount)
			assert.Less(t, math.Abs(float64(next-target)), math.Abs(float64(p-target)))
			assert.LessOrEqual(t, next, target)
			p = next
		}
		assert.InDelta(t, target, p, 0.01)
	}
}

func TestMap_AxisSwap(t *testing.T) {
	s := rig.State{Head: rig.Head{Degrees: rig.Vec3{X: 10, Y: 20, Z: 30}}}
	out := Map(s, params.Values{}, DefaultCoefficients())

	assert.InDelta(t, 20*0.3, out[params.AngleX], 1e-5)
	assert.InDelta(t, 10*0.3, out[params.AngleY], 1e-5)
	assert.InDelta(t, 30*0.3, out[params.AngleZ], 1e-5)
}

func TestMap_BodySwayUsesDampedTarget(t *testing.T) {
	s := rig.State{Head: rig.Head{Degrees: rig.Vec3{X: -10, Y: 20, Z: 5}}}
	var prev params.Values
	prev[params.BodyAngleX] = 2
	prev[params.BodyAngleY] = 1
	prev[params.BodyAngleZ] = -1

	out := Map(s, prev, DefaultCoefficients())

	assert.InDelta(t, Lerp(20*0.3, 2, 0.7), out[params.BodyAngleX], 1e-5)
	assert.InDelta(t, Lerp(-10*0.3, 1, 0.7), out[params.BodyAngleY], 1e-5)
	assert.InDelta(t, Lerp(5*0.3, -1, 0.7), out[params.BodyAngleZ], 1e-5)
	assert.NotEqual(t, Lerp(20, 2, 0.7), out[params.BodyAngleX])
}

func TestMap_MouthAndEyes(t *testing.T) {
	s := rig.State{
		Eye:   rig.Eyes{L: 1, R: 0},
		Mouth: rig.Vec2{X: 0.5, Y: 1},
		Pupil: rig.Vec2{X: 0.2, Y: -0.4},
	}
	var prev params.Values
	prev[params.EyeLOpen] = 0
	prev[params.EyeROpen] = 1
	prev[params.MouthForm] = 0.1

	out := Map(s, prev, DefaultCoefficients())

	assert.InDelta(t, 0.3, out[params.EyeLOpen], 1e-5)
	assert.InDelta(t, 0.7, out[params.EyeROpen], 1e-5)
	assert.InDelta(t, 0.7, out[params.MouthOpenY], 1e-5)
	assert.InDelta(t, 0.3+0.5*0.7+0.1*0.3, out[params.MouthForm], 1e-5)
	assert.InDelta(t, 0.2*0.3, out[params.EyeBallX], 1e-5)
	assert.InDelta(t, -0.4*0.3, out[params.EyeBallY], 1e-5)
}

func TestMap_CustomCoefficients(t *testing.T) {
	c := Coefficients{HeadLerp: 0, EyeLerp: 0, MouthLerp: 0, BodyDamping: 1}
	s := rig.State{Head: rig.Head{Degrees: rig.Vec3{Y: 12}}}
	out := Map(s, params.Values{}, c)
	assert.Equal(t, float32(12), out[params.AngleX])
	assert.Equal(t, float32(12), out[params.BodyAngleX])
}

func TestMap_MouthFormSettlesAboveTarget(t *testing.T) {
	tests := []struct {
		name string
		c    Coefficients
		want float32
	}{
		// p = bias + x(1-a) + p*a settles at x + bias/(1-a).
		{"default bias", DefaultCoefficients(), 0.2 + DefaultMouthFormBias/(1-DefaultMouthLerp)},
		{"no bias", Coefficients{MouthLerp: DefaultMouthLerp}, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := rig.State{Mouth: rig.Vec2{X: 0.2}}
			var v params.Values
			for i := 0; i < 100; i++ {
				v = Map(state, v, tt.c)
			}
			assert.InDelta(t, tt.want, v[params.MouthForm], 1e-4)
		})
	}
}

func TestCoefficients_Validate(t *testing.T) {
	assert.NoError(t, DefaultCoefficients().Validate())
	assert.NoError(t, Coefficients{HeadLerp: 1, EyeLerp: 0, MouthLerp: 1}.Validate())

	c := DefaultCoefficients()
	c.EyeLerp = 1.01
	assert.ErrorContains(t, c.Validate(), "eye_lerp")

	c = DefaultCoefficients()
	c.HeadLerp = float32(math.NaN())
	assert.ErrorContains(t, c.Validate(), "head_lerp")
}
