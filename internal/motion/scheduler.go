package motion

import (
	"math/rand"
	"sync"
	"time"
)

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	}
	return "unknown"
}

// Transition is the scheduler's step function. pick must return an index in
// [0, count). It returns the new state and the motion to start, or -1 when
// nothing should start.
func Transition(s State, finished bool, count int, pick func(n int) int) (State, int) {
	if count <= 0 {
		return Idle, -1
	}
	if !finished {
		return s, -1
	}
	return Playing, pick(count)
}

// Scheduler picks idle motions uniformly at random, repeats allowed.
type Scheduler struct {
	mu    sync.Mutex
	state State
	rng   *rand.Rand
}

// NewScheduler returns an idle scheduler. A nil rng is seeded from the clock.
func NewScheduler(rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{rng: rng}
}

// Step advances the scheduler given whether the current motion finished
// and how many idle motions exist. It returns the motion to start, if any.
func (s *Scheduler) Step(finished bool, count int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idx int
	s.state, idx = Transition(s.state, finished, count, s.rng.Intn)
	return idx, idx >= 0
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
