// Package rig defines the solved face rig consumed by the animation core.
package rig

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

type Vec2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type Head struct {
	Degrees Vec3 `json:"degrees"`
	// Y is the head pitch in radians, used for blink stabilization.
	Y float32 `json:"y"`
}

type Eyes struct {
	L float32 `json:"l"`
	R float32 `json:"r"`
}

// State is one solver output sample. Mouth.Y is openness, Mouth.X is form.
type State struct {
	Head  Head `json:"head"`
	Pupil Vec2 `json:"pupil"`
	Eye   Eyes `json:"eye"`
	Mouth Vec2 `json:"mouth"`
}

func (s *State) Validate() error {
	fields := []struct {
		name string
		v    float32
	}{
		{"head.degrees.x", s.Head.Degrees.X},
		{"head.degrees.y", s.Head.Degrees.Y},
		{"head.degrees.z", s.Head.Degrees.Z},
		{"head.y", s.Head.Y},
		{"pupil.x", s.Pupil.X},
		{"pupil.y", s.Pupil.Y},
		{"eye.l", s.Eye.L},
		{"eye.r", s.Eye.R},
		{"mouth.x", s.Mouth.X},
		{"mouth.y", s.Mouth.Y},
	}
	for _, f := range fields {
		if math.IsNaN(float64(f.v)) || math.IsInf(float64(f.v), 0) {
			return fmt.Errorf("rig state: %s is not finite", f.name)
		}
	}
	return nil
}
