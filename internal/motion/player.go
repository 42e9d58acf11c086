package motion

import (
	"math"
	"sync"

	"github.com/normanking/rigavatar/internal/params"
)

// Player advances at most one clip and layers it onto a parameter table.
// Before anything is started it reports Finished, so the scheduler treats a
// fresh instance the same as one whose motion just ended.
type Player struct {
	mu sync.Mutex

	table    *params.Table
	eyeBlink []int
	lipSync  []int

	clip     *Clip
	curveIdx []int
	elapsed  float32
	finished bool
	opacity  float32
}

func NewPlayer(table *params.Table, eyeBlink, lipSync []int) *Player {
	return &Player{
		table:    table,
		eyeBlink: eyeBlink,
		lipSync:  lipSync,
		finished: true,
		opacity:  1,
	}
}

func (p *Player) Start(c *Clip) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clip = c
	p.elapsed = 0
	p.finished = c == nil
	p.curveIdx = make([]int, 0)
	if c == nil {
		return
	}
	for _, curve := range c.Curves {
		idx := -1
		if curve.Target == TargetParameter {
			idx = p.table.Index(curve.ID)
		}
		p.curveIdx = append(p.curveIdx, idx)
	}
}

func (p *Player) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Current returns the name of the clip last started, or "".
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clip == nil {
		return ""
	}
	return p.clip.Name
}

// Opacity is the model opacity requested by the playing clip.
func (p *Player) Opacity() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opacity
}

// Update advances the clip by dt seconds and applies it. It reports whether
// any parameter was written.
func (p *Player) Update(dt float32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clip == nil || p.finished {
		return false
	}
	c := p.clip
	p.elapsed += dt

	weight := float32(1)
	if c.FadeIn > 0 {
		weight *= easeSine(p.elapsed / c.FadeIn)
	}
	if c.FadeOut > 0 && c.Duration > 0 {
		weight *= easeSine((c.Duration - p.elapsed) / c.FadeOut)
	}

	t := p.elapsed
	if t > c.Duration {
		t = c.Duration
	}

	for i, curve := range c.Curves {
		v := curve.Evaluate(t)
		switch curve.Target {
		case TargetParameter:
			p.table.Blend(p.curveIdx[i], v, weight)
		case TargetModel:
			switch curve.ID {
			case ModelEyeBlink:
				for _, idx := range p.eyeBlink {
					p.table.Multiply(idx, v, weight)
				}
			case ModelLipSync:
				for _, idx := range p.lipSync {
					p.table.Add(idx, v, weight)
				}
			case ModelOpacity:
				p.opacity = v
			}
		}
	}

	if p.elapsed >= c.Duration {
		p.finished = true
	}
	return true
}

func easeSine(v float32) float32 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return float32(0.5 - 0.5*math.Cos(float64(v)*math.Pi))
}
