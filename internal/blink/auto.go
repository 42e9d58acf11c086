package blink

import (
	"math/rand"
	"sync"
	"time"
)

type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
	StateOpening
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	}
	return "unknown"
}

// AutoBlinker produces an autonomous blink cycle on simulation time. Its
// output is an openness factor applied on top of whatever the eyes are
// already doing.
type AutoBlinker struct {
	mu sync.Mutex

	state     State
	progress  float32
	duration  float32
	untilNext float32

	minGap time.Duration
	maxGap time.Duration
	rng    *rand.Rand
}

func NewAutoBlinker(minGap, maxGap time.Duration, rng *rand.Rand) *AutoBlinker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxGap < minGap {
		maxGap = minGap
	}
	b := &AutoBlinker{
		duration: 0.15,
		minGap:   minGap,
		maxGap:   maxGap,
		rng:      rng,
	}
	b.untilNext = b.nextGap()
	return b
}

func (b *AutoBlinker) SetBlinkRate(minGap, maxGap time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minGap = minGap
	b.maxGap = maxGap
}

func (b *AutoBlinker) Trigger() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.state = StateClosing
		b.progress = 0
	}
}

// Update advances the cycle by dt seconds and returns the eye openness
// factor: 1 fully open, 0 fully closed.
func (b *AutoBlinker) Update(dt float32) float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		b.untilNext -= dt
		if b.untilNext <= 0 {
			b.state = StateClosing
			b.progress = 0
		}

	case StateClosing:
		b.progress += dt / (b.duration * 0.4)
		if b.progress >= 1.0 {
			b.progress = 1.0
			b.state = StateClosed
		}

	case StateClosed:
		b.progress += dt / (b.duration * 0.1)
		if b.progress >= 1.1 {
			b.state = StateOpening
			b.progress = 1.0
		}

	case StateOpening:
		b.progress -= dt / (b.duration * 0.5)
		if b.progress <= 0 {
			b.progress = 0
			b.state = StateOpen
			b.untilNext = b.nextGap()
		}
	}

	return 1 - b.closedAmount()
}

func (b *AutoBlinker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *AutoBlinker) closedAmount() float32 {
	switch b.state {
	case StateClosing:
		return easeOutQuad(b.progress)
	case StateClosed:
		return 1.0
	case StateOpening:
		return easeInQuad(b.progress)
	}
	return 0
}

func (b *AutoBlinker) nextGap() float32 {
	gap := b.minGap + time.Duration(b.rng.Float64()*float64(b.maxGap-b.minGap))
	return float32(gap.Seconds())
}

func easeOutQuad(t float32) float32 {
	return t * (2 - t)
}

func easeInQuad(t float32) float32 {
	return t * t
}
