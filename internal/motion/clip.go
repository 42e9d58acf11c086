// Package motion decodes and plays embedded idle motions and schedules which
// one runs next.
package motion

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyCurve     = errors.New("motion curve has no points")
	ErrBadSegment     = errors.New("motion curve segment is malformed")
	ErrUnknownSegment = errors.New("unknown motion segment type")
)

type SegmentType int

const (
	SegmentLinear SegmentType = iota
	SegmentBezier
	SegmentStepped
	SegmentInverseStepped
)

type Point struct {
	Time  float32
	Value float32
}

type Segment struct {
	Type SegmentType
	// Points holds the segment's start point followed by its control and end
	// points: 2 for linear and stepped kinds, 4 for bezier.
	Points []Point
}

type TargetKind string

const (
	TargetParameter   TargetKind = "Parameter"
	TargetModel       TargetKind = "Model"
	TargetPartOpacity TargetKind = "PartOpacity"
)

// Model-level curve ids.
const (
	ModelEyeBlink = "EyeBlink"
	ModelLipSync  = "LipSync"
	ModelOpacity  = "Opacity"
)

type Curve struct {
	Target   TargetKind
	ID       string
	Segments []Segment
}

type Clip struct {
	Name     string
	Duration float32
	FadeIn   float32
	FadeOut  float32
	Curves   []Curve
}

type wireClip struct {
	Version int `json:"Version"`
	Meta    struct {
		Duration    float32  `json:"Duration"`
		FadeInTime  *float32 `json:"FadeInTime"`
		FadeOutTime *float32 `json:"FadeOutTime"`
	} `json:"Meta"`
	Curves []struct {
		Target   string    `json:"Target"`
		ID       string    `json:"Id"`
		Segments []float32 `json:"Segments"`
	} `json:"Curves"`
}

const defaultFade = 1.0

// Decode parses a motion in motion3.json layout.
func Decode(name string, data []byte) (*Clip, error) {
	var w wireClip
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("motion %s: %w", name, err)
	}

	c := &Clip{
		Name:     name,
		Duration: w.Meta.Duration,
		FadeIn:   defaultFade,
		FadeOut:  defaultFade,
	}
	if w.Meta.FadeInTime != nil && *w.Meta.FadeInTime >= 0 {
		c.FadeIn = *w.Meta.FadeInTime
	}
	if w.Meta.FadeOutTime != nil && *w.Meta.FadeOutTime >= 0 {
		c.FadeOut = *w.Meta.FadeOutTime
	}

	for _, wc := range w.Curves {
		segs, err := parseSegments(wc.Segments)
		if err != nil {
			return nil, fmt.Errorf("motion %s curve %s: %w", name, wc.ID, err)
		}
		target := TargetKind(wc.Target)
		if target == "" {
			target = TargetParameter
		}
		c.Curves = append(c.Curves, Curve{Target: target, ID: wc.ID, Segments: segs})
	}
	return c, nil
}

func parseSegments(raw []float32) ([]Segment, error) {
	if len(raw) < 2 {
		return nil, ErrEmptyCurve
	}
	last := Point{Time: raw[0], Value: raw[1]}
	var segs []Segment
	for i := 2; i < len(raw); {
		kind := SegmentType(raw[i])
		i++
		n := 1
		switch kind {
		case SegmentLinear, SegmentStepped, SegmentInverseStepped:
		case SegmentBezier:
			n = 3
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnknownSegment, kind)
		}
		if i+2*n > len(raw) {
			return nil, ErrBadSegment
		}
		pts := []Point{last}
		for k := 0; k < n; k++ {
			pts = append(pts, Point{Time: raw[i], Value: raw[i+1]})
			i += 2
		}
		segs = append(segs, Segment{Type: kind, Points: pts})
		last = pts[len(pts)-1]
	}
	if len(segs) == 0 {
		segs = append(segs, Segment{Type: SegmentStepped, Points: []Point{last, last}})
	}
	return segs, nil
}

// Evaluate returns the curve value at time t (seconds since motion start).
func (c *Curve) Evaluate(t float32) float32 {
	segs := c.Segments
	if t <= segs[0].Points[0].Time {
		return segs[0].Points[0].Value
	}
	for _, s := range segs {
		end := s.Points[len(s.Points)-1]
		if t <= end.Time {
			return s.evaluate(t)
		}
	}
	last := segs[len(segs)-1].Points
	return last[len(last)-1].Value
}

func (s *Segment) evaluate(t float32) float32 {
	p := s.Points
	switch s.Type {
	case SegmentStepped:
		return p[0].Value
	case SegmentInverseStepped:
		return p[1].Value
	case SegmentBezier:
		return bezier(p[0], p[1], p[2], p[3], t)
	}
	span := p[1].Time - p[0].Time
	if span <= 0 {
		return p[1].Value
	}
	k := (t - p[0].Time) / span
	return p[0].Value + (p[1].Value-p[0].Value)*k
}

// bezier evaluates the cubic by de Casteljau with the curve parameter taken
// linearly from time.
func bezier(p0, p1, p2, p3 Point, t float32) float32 {
	span := p3.Time - p0.Time
	if span <= 0 {
		return p3.Value
	}
	k := (t - p0.Time) / span
	if k < 0 {
		k = 0
	}
	a := lerpPoint(p0, p1, k)
	b := lerpPoint(p1, p2, k)
	c := lerpPoint(p2, p3, k)
	d := lerpPoint(a, b, k)
	e := lerpPoint(b, c, k)
	return lerpPoint(d, e, k).Value
}

func lerpPoint(a, b Point, k float32) Point {
	return Point{
		Time:  a.Time + (b.Time-a.Time)*k,
		Value: a.Value + (b.Value-a.Value)*k,
	}
}
