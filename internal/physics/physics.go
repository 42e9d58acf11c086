// Package physics steps the pendulum chains that make hair and accessories
// swing after the head moves. Settings use the physics3.json layout.
package physics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/rigavatar/internal/params"
)

var ErrNoSettings = errors.New("physics buffer has no settings")

const (
	maxWeight         = 100
	airResistance     = 5
	movementThreshold = 0.001
	// Particle delays are authored against a 30 fps step.
	authoredFPS = 30
)

type SourceType string

const (
	SourceX     SourceType = "X"
	SourceY     SourceType = "Y"
	SourceAngle SourceType = "Angle"
)

type vec struct {
	X float32 `json:"X"`
	Y float32 `json:"Y"`
}

type target struct {
	Target string `json:"Target"`
	ID     string `json:"Id"`
}

type input struct {
	Source  target     `json:"Source"`
	Weight  float32    `json:"Weight"`
	Type    SourceType `json:"Type"`
	Reflect bool       `json:"Reflect"`
}

type output struct {
	Destination target     `json:"Destination"`
	VertexIndex int        `json:"VertexIndex"`
	Scale       float32    `json:"Scale"`
	Weight      float32    `json:"Weight"`
	Type        SourceType `json:"Type"`
	Reflect     bool       `json:"Reflect"`
}

type vertex struct {
	Position     vec     `json:"Position"`
	Mobility     float32 `json:"Mobility"`
	Delay        float32 `json:"Delay"`
	Acceleration float32 `json:"Acceleration"`
	Radius       float32 `json:"Radius"`
}

type normRange struct {
	Minimum float32 `json:"Minimum"`
	Default float32 `json:"Default"`
	Maximum float32 `json:"Maximum"`
}

type setting struct {
	ID            string   `json:"Id"`
	Input         []input  `json:"Input"`
	Output        []output `json:"Output"`
	Vertices      []vertex `json:"Vertices"`
	Normalization struct {
		Position normRange `json:"Position"`
		Angle    normRange `json:"Angle"`
	} `json:"Normalization"`
}

type wireRig struct {
	Meta struct {
		EffectiveForces struct {
			Gravity vec `json:"Gravity"`
			Wind    vec `json:"Wind"`
		} `json:"EffectiveForces"`
	} `json:"Meta"`
	PhysicsSettings []setting `json:"PhysicsSettings"`
}

type particle struct {
	pos         mgl32.Vec2
	lastPos     mgl32.Vec2
	velocity    mgl32.Vec2
	lastGravity mgl32.Vec2
	mobility    float32
	delay       float32
	accel       float32
	radius      float32
}

type boundInput struct {
	input
	index int
}

type boundOutput struct {
	output
	index int
}

type strand struct {
	id        string
	inputs    []boundInput
	outputs   []boundOutput
	particles []particle
	position  normRange
	angle     normRange
}

// Rig holds every strand of a model, bound to its parameter table.
type Rig struct {
	table   *params.Table
	strands []*strand
	gravity mgl32.Vec2
	wind    mgl32.Vec2
}

// Decode parses data and binds the inputs and outputs to table. Inputs and
// outputs naming parameters the table does not have are ignored.
func Decode(data []byte, table *params.Table) (*Rig, error) {
	if len(data) == 0 {
		return nil, ErrNoSettings
	}
	var w wireRig
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode physics: %w", err)
	}
	if len(w.PhysicsSettings) == 0 {
		return nil, ErrNoSettings
	}

	g := mgl32.Vec2{w.Meta.EffectiveForces.Gravity.X, -w.Meta.EffectiveForces.Gravity.Y}
	if g.Len() == 0 {
		g = mgl32.Vec2{0, 1}
	}
	r := &Rig{
		table:   table,
		gravity: g.Normalize(),
		wind:    mgl32.Vec2{w.Meta.EffectiveForces.Wind.X, w.Meta.EffectiveForces.Wind.Y},
	}

	for _, s := range w.PhysicsSettings {
		if len(s.Vertices) < 2 {
			return nil, fmt.Errorf("physics setting %s: need at least 2 vertices, got %d", s.ID, len(s.Vertices))
		}
		st := &strand{
			id:       s.ID,
			position: s.Normalization.Position,
			angle:    s.Normalization.Angle,
		}
		for _, in := range s.Input {
			if idx := table.Index(in.Source.ID); idx >= 0 {
				st.inputs = append(st.inputs, boundInput{input: in, index: idx})
			}
		}
		for _, out := range s.Output {
			if out.VertexIndex < 1 || out.VertexIndex >= len(s.Vertices) {
				return nil, fmt.Errorf("physics setting %s: output vertex %d out of range", s.ID, out.VertexIndex)
			}
			if idx := table.Index(out.Destination.ID); idx >= 0 {
				st.outputs = append(st.outputs, boundOutput{output: out, index: idx})
			}
		}
		for _, v := range s.Vertices {
			st.particles = append(st.particles, particle{
				mobility: v.Mobility,
				delay:    v.Delay,
				accel:    v.Acceleration,
				radius:   v.Radius,
			})
		}
		st.reset(r.gravity)
		r.strands = append(r.strands, st)
	}
	return r, nil
}

// Strands returns the number of decoded settings.
func (r *Rig) Strands() int {
	return len(r.strands)
}

// Reset puts every particle back at rest.
func (r *Rig) Reset() {
	for _, s := range r.strands {
		s.reset(r.gravity)
	}
}

// Evaluate reads the input parameters, advances every strand by dt seconds
// and writes the outputs back to the table.
func (r *Rig) Evaluate(dt float32) {
	if dt <= 0 {
		return
	}
	for _, s := range r.strands {
		s.step(r.table, r.gravity, r.wind, dt)
	}
}

func (s *strand) reset(gravity mgl32.Vec2) {
	var prev mgl32.Vec2
	for i := range s.particles {
		p := &s.particles[i]
		if i > 0 {
			prev = prev.Add(mgl32.Vec2{0, p.radius})
		}
		p.pos = prev
		p.lastPos = prev
		p.velocity = mgl32.Vec2{}
		p.lastGravity = gravity
	}
}

func (s *strand) step(table *params.Table, gravity, wind mgl32.Vec2, dt float32) {
	var translation mgl32.Vec2
	var angle float32
	for _, in := range s.inputs {
		w := in.Weight / maxWeight
		n := table.Normalized(in.index)
		if in.Reflect {
			n = -n
		}
		switch in.Type {
		case SourceX:
			translation[0] += denormalize(n, s.position) * w
		case SourceY:
			translation[1] += denormalize(n, s.position) * w
		case SourceAngle:
			angle += denormalize(n, s.angle) * w
		}
	}

	rad := mgl32.DegToRad(-angle)
	translation = rotate(translation, rad)

	current := turn(gravity, mgl32.DegToRad(angle))
	ps := s.particles
	ps[0].pos = translation

	for i := 1; i < len(ps); i++ {
		p := &ps[i]
		parent := ps[i-1].pos
		force := current.Mul(p.accel).Add(wind)
		p.lastPos = p.pos
		delay := p.delay * dt * authoredFPS

		dir := p.pos.Sub(parent)
		dir = rotate(dir, angleBetween(p.lastGravity, current)/airResistance)
		p.pos = parent.Add(dir)
		p.pos = p.pos.Add(p.velocity.Mul(delay)).Add(force.Mul(delay * delay))

		nd := p.pos.Sub(parent)
		if nd.Len() > 0 {
			nd = nd.Normalize()
		}
		p.pos = parent.Add(nd.Mul(p.radius))
		if abs(p.pos[0]) < movementThreshold {
			p.pos[0] = 0
		}
		if delay != 0 {
			p.velocity = p.pos.Sub(p.lastPos).Mul(p.mobility / delay)
		}
		p.lastGravity = current
	}

	for _, out := range s.outputs {
		vi := out.VertexIndex
		seg := ps[vi].pos.Sub(ps[vi-1].pos)
		var v float32
		switch out.Type {
		case SourceX:
			v = seg[0]
		case SourceY:
			v = seg[1]
		case SourceAngle:
			parent := gravity
			if vi >= 2 {
				parent = ps[vi-1].pos.Sub(ps[vi-2].pos)
			}
			v = angleBetween(parent, seg)
		}
		if out.Reflect {
			v = -v
		}
		v *= out.Scale
		table.Blend(out.index, v, out.Weight/maxWeight)
	}
}

// denormalize maps n in [-1, 1] onto r around its default.
func denormalize(n float32, r normRange) float32 {
	if n >= 0 {
		return r.Default + n*(r.Maximum-r.Default)
	}
	return r.Default + n*(r.Default-r.Minimum)
}

func rotate(v mgl32.Vec2, rad float32) mgl32.Vec2 {
	c, s := cos(rad), sin(rad)
	return mgl32.Vec2{c*v[0] - s*v[1], s*v[0] + c*v[1]}
}

// turn tilts the rest gravity direction by rad, clockwise for positive
// head angles.
func turn(g mgl32.Vec2, rad float32) mgl32.Vec2 {
	c, s := cos(rad), sin(rad)
	return mgl32.Vec2{g[0]*c + g[1]*s, -g[0]*s + g[1]*c}
}

// angleBetween returns the signed angle from a to b in [-pi, pi].
func angleBetween(a, b mgl32.Vec2) float32 {
	r := math.Atan2(float64(b[1]), float64(b[0])) - math.Atan2(float64(a[1]), float64(a[0]))
	for r < -math.Pi {
		r += 2 * math.Pi
	}
	for r > math.Pi {
		r -= 2 * math.Pi
	}
	return float32(r)
}

func cos(r float32) float32 { return float32(math.Cos(float64(r))) }
func sin(r float32) float32 { return float32(math.Sin(float64(r))) }

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
