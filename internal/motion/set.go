package motion

import (
	"fmt"

	"github.com/samber/lo"
)

// Set is the immutable, ordered list of motions embedded in an asset.
type Set struct {
	clips []*Clip
	index map[string]int
}

func NewSet(clips []*Clip) (*Set, error) {
	s := &Set{index: make(map[string]int, len(clips))}
	for _, c := range clips {
		if c == nil {
			continue
		}
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate motion %q", c.Name)
		}
		s.index[c.Name] = len(s.clips)
		s.clips = append(s.clips, c)
	}
	return s, nil
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.clips)
}

func (s *Set) At(i int) (*Clip, bool) {
	if s == nil || i < 0 || i >= len(s.clips) {
		return nil, false
	}
	return s.clips[i], true
}

func (s *Set) Get(name string) (*Clip, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.clips[i], true
}

func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return lo.Map(s.clips, func(c *Clip, _ int) string { return c.Name })
}
