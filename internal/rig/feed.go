package rig

import (
	"sync"
	"time"
)

// Feed is the hand-off point between a producer goroutine and the render
// loop. It keeps only the latest sample; Take hands it out once.
type Feed struct {
	mu sync.Mutex

	latest   *State
	received time.Time
	count    uint64
	dropped  uint64
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Push(s State) {
	f.mu.Lock()
	if f.latest != nil {
		f.dropped++
	}
	f.latest = &s
	f.received = time.Now()
	f.count++
	f.mu.Unlock()
}

// Take returns the pending sample and clears it, or nil if none arrived since
// the last call.
func (f *Feed) Take() *State {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.latest
	f.latest = nil
	return s
}

func (f *Feed) LastReceived() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

// Stats reports samples received and samples overwritten before being taken.
func (f *Feed) Stats() (received, dropped uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.dropped
}
