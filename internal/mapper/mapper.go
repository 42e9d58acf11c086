// Package mapper turns a rig state into blended parameter values.
package mapper

import (
	"fmt"

	"github.com/normanking/rigavatar/internal/params"
	"github.com/normanking/rigavatar/internal/rig"
)

// Coefficients are the per-call-site blend amounts. They were tuned for one
// rig and are configurable for others. The lerp amounts must lie in [0, 1].
//
// MouthFormBias is added after blending, so a constant mouth form x settles
// at x + MouthFormBias/(1-MouthLerp) rather than at x.
type Coefficients struct {
	HeadLerp      float32 `mapstructure:"head_lerp"`
	EyeLerp       float32 `mapstructure:"eye_lerp"`
	MouthLerp     float32 `mapstructure:"mouth_lerp"`
	BodyDamping   float32 `mapstructure:"body_damping"`
	MouthFormBias float32 `mapstructure:"mouth_form_bias"`
}

const (
	DefaultHeadLerp      = 0.7
	DefaultEyeLerp       = 0.7
	DefaultMouthLerp     = 0.3
	DefaultBodyDamping   = 0.3
	DefaultMouthFormBias = 0.3
)

// DefaultCoefficients returns the tuned blend amounts.
func DefaultCoefficients() Coefficients {
	return Coefficients{
		HeadLerp:      DefaultHeadLerp,
		EyeLerp:       DefaultEyeLerp,
		MouthLerp:     DefaultMouthLerp,
		BodyDamping:   DefaultBodyDamping,
		MouthFormBias: DefaultMouthFormBias,
	}
}

// Lerp blends target toward previous: amount 0 returns target, 1 returns
// previous.
func Lerp(target, previous, amount float32) float32 {
	return target*(1-amount) + previous*amount
}

// Map computes the next value of every channel from s and the previous
// values. The eye channels hold the blended but unstabilized openness; the
// caller stabilizes them before writing.
func Map(s rig.State, prev params.Values, c Coefficients) params.Values {
	var next params.Values
	deg := s.Head.Degrees

	next[params.AngleX] = Lerp(deg.Y, prev[params.AngleX], c.HeadLerp)
	next[params.AngleY] = Lerp(deg.X, prev[params.AngleY], c.HeadLerp)
	next[params.AngleZ] = Lerp(deg.Z, prev[params.AngleZ], c.HeadLerp)

	next[params.EyeBallX] = Lerp(s.Pupil.X, prev[params.EyeBallX], c.HeadLerp)
	next[params.EyeBallY] = Lerp(s.Pupil.Y, prev[params.EyeBallY], c.HeadLerp)

	next[params.BodyAngleX] = Lerp(deg.Y*c.BodyDamping, prev[params.BodyAngleX], c.HeadLerp)
	next[params.BodyAngleY] = Lerp(deg.X*c.BodyDamping, prev[params.BodyAngleY], c.HeadLerp)
	next[params.BodyAngleZ] = Lerp(deg.Z*c.BodyDamping, prev[params.BodyAngleZ], c.HeadLerp)

	next[params.EyeLOpen] = Lerp(s.Eye.L, prev[params.EyeLOpen], c.EyeLerp)
	next[params.EyeROpen] = Lerp(s.Eye.R, prev[params.EyeROpen], c.EyeLerp)

	next[params.MouthOpenY] = Lerp(s.Mouth.Y, prev[params.MouthOpenY], c.MouthLerp)
	next[params.MouthForm] = c.MouthFormBias + Lerp(s.Mouth.X, prev[params.MouthForm], c.MouthLerp)

	return next
}

// Validate rejects lerp amounts outside [0, 1], which would overshoot.
func (c Coefficients) Validate() error {
	amounts := []struct {
		name string
		v    float32
	}{
		{"head_lerp", c.HeadLerp},
		{"eye_lerp", c.EyeLerp},
		{"mouth_lerp", c.MouthLerp},
	}
	for _, a := range amounts {
		if !(a.v >= 0 && a.v <= 1) {
			return fmt.Errorf("mapping.%s must be in [0, 1], got %v", a.name, a.v)
		}
	}
	return nil
}
