package avatar

import (
	"math"
	"sync"

	"github.com/normanking/rigavatar/internal/params"
)

// BreathParameter is one sinusoidal layer: Offset + Peak*sin(2πt/Cycle),
// added at Weight.
type BreathParameter struct {
	Index  int
	Offset float32
	Peak   float32
	Cycle  float32
	Weight float32
}

var breathID = [params.GenerationCount]string{"PARAM_BREATH", "ParamBreath"}

// Breath adds slow idle sway on top of tracked values. It is applied after
// the parameter save, so tracking smoothing never reads it back.
type Breath struct {
	mu sync.Mutex

	enabled   bool
	intensity float32
	time      float32
	params    []BreathParameter
}

// NewBreath builds the default layer set for the naming generation g.
// Parameters the table does not define are dropped.
func NewBreath(table *params.Table, g params.Generation) *Breath {
	defaults := []struct {
		id                          string
		offset, peak, cycle, weight float32
	}{
		{params.AngleX.Name(g), 0, 15, 6.5345, 0.5},
		{params.AngleY.Name(g), 0, 8, 3.5345, 0.5},
		{params.AngleZ.Name(g), 0, 10, 5.5345, 0.5},
		{params.BodyAngleX.Name(g), 0, 4, 15.5345, 0.5},
		{breathID[g], 0.5, 0.5, 3.2345, 0.5},
	}

	b := &Breath{enabled: true, intensity: 1}
	for _, d := range defaults {
		i := table.Index(d.id)
		if i < 0 {
			continue
		}
		b.params = append(b.params, BreathParameter{
			Index:  i,
			Offset: d.offset,
			Peak:   d.peak,
			Cycle:  d.cycle,
			Weight: d.weight,
		})
	}
	return b
}

func (b *Breath) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

func (b *Breath) SetIntensity(intensity float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intensity = min(max(intensity, 0), 1)
}

func (b *Breath) Parameters() []BreathParameter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BreathParameter(nil), b.params...)
}

func (b *Breath) Update(dt float32, table *params.Table) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled || b.intensity <= 0 {
		return
	}

	b.time += dt
	phase := float64(b.time) * 2 * math.Pi
	for _, p := range b.params {
		if p.Cycle <= 0 {
			continue
		}
		v := p.Offset + p.Peak*float32(math.Sin(phase/float64(p.Cycle)))
		table.Add(p.Index, v*b.intensity, p.Weight)
	}
}

func (b *Breath) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.time = 0
}
