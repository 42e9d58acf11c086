// Package model holds the parametric 2D model: textured drawables whose
// vertices move with keyforms bound to engine parameters.
//
// Positions are in model units with y up. The canvas spans Width by Height
// model units and is centered on the origin horizontally.
package model

import (
	"errors"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/rigavatar/internal/params"
)

var ErrNoDrawables = errors.New("model has no drawables")

// Keyform moves a drawable's vertices in proportion to one parameter. At
// Key the full Deltas apply; at the parameter's default none do.
type Keyform struct {
	Param  int
	Key    float32
	Deltas []mgl32.Vec2
}

func (k *Keyform) weight(v float32) float32 {
	if k.Key == 0 {
		return 0
	}
	w := v / k.Key
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

type Drawable struct {
	ID      string
	Order   int
	Texture int // -1 when untextured
	Opacity float32

	UVs     []mgl32.Vec2
	Indices []uint32

	base      []mgl32.Vec2
	positions []mgl32.Vec2
	keyforms  []Keyform
}

// Positions returns the deformed vertex positions as of the last Update.
func (d *Drawable) Positions() []mgl32.Vec2 {
	return d.positions
}

func (d *Drawable) Keyforms() []Keyform {
	return d.keyforms
}

type Model struct {
	table     *params.Table
	drawables []*Drawable
	width     float32
	height    float32
	opacity   float32
	images    [][]byte
}

// Parameters is the model's engine parameter table.
func (m *Model) Parameters() *params.Table {
	return m.table
}

// Drawables returns the drawables in render order.
func (m *Model) Drawables() []*Drawable {
	return m.drawables
}

func (m *Model) CanvasWidth() float32  { return m.width }
func (m *Model) CanvasHeight() float32 { return m.height }

func (m *Model) Opacity() float32 { return m.opacity }

func (m *Model) SetOpacity(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	m.opacity = v
}

// EmbeddedImage returns the encoded bytes of image i when the geometry
// buffer carries it inline.
func (m *Model) EmbeddedImage(i int) ([]byte, bool) {
	if i < 0 || i >= len(m.images) || m.images[i] == nil {
		return nil, false
	}
	return m.images[i], true
}

// EmbeddedImages reports how many image slots the geometry buffer declares.
func (m *Model) EmbeddedImages() int {
	return len(m.images)
}

// Update deforms every drawable from the current parameter values.
func (m *Model) Update() {
	values := m.table.Snapshot()
	for _, d := range m.drawables {
		copy(d.positions, d.base)
		for ki := range d.keyforms {
			k := &d.keyforms[ki]
			w := k.weight(values[k.Param])
			if w < 0.001 {
				continue
			}
			for vi, delta := range k.Deltas {
				if vi < len(d.positions) {
					d.positions[vi] = d.positions[vi].Add(delta.Mul(w))
				}
			}
		}
	}
}

// Visible reports whether d contributes to the frame.
func (m *Model) Visible(d *Drawable) bool {
	return d.Opacity*m.opacity > 0 && len(d.positions) > 0
}

func (m *Model) sortDrawables() {
	sort.SliceStable(m.drawables, func(i, j int) bool {
		return m.drawables[i].Order < m.drawables[j].Order
	})
}
