package params

import (
	"fmt"
	"sync"
)

// Definition describes one engine parameter.
type Definition struct {
	ID      string  `json:"id"`
	Min     float32 `json:"min"`
	Max     float32 `json:"max"`
	Default float32 `json:"default"`
}

// Table is the engine-side parameter vector. Parameters are addressed by
// index; ids are resolved once through Index.
type Table struct {
	mu sync.RWMutex

	defs   []Definition
	index  map[string]int
	values []float32
	saved  []float32
}

func NewTable(defs []Definition) (*Table, error) {
	t := &Table{
		defs:   make([]Definition, len(defs)),
		index:  make(map[string]int, len(defs)),
		values: make([]float32, len(defs)),
		saved:  make([]float32, len(defs)),
	}
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("parameter %d has no id", i)
		}
		if _, dup := t.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", d.ID)
		}
		if d.Min > d.Max {
			d.Min, d.Max = d.Max, d.Min
		}
		d.Default = clamp(d.Default, d.Min, d.Max)
		t.defs[i] = d
		t.index[d.ID] = i
		t.values[i] = d.Default
		t.saved[i] = d.Default
	}
	return t, nil
}

func (t *Table) Len() int {
	return len(t.defs)
}

// Index returns the engine index for id, or -1.
func (t *Table) Index(id string) int {
	if i, ok := t.index[id]; ok {
		return i
	}
	return -1
}

func (t *Table) Definition(i int) Definition {
	return t.defs[i]
}

func (t *Table) IDs() []string {
	ids := make([]string, len(t.defs))
	for i, d := range t.defs {
		ids[i] = d.ID
	}
	return ids
}

func (t *Table) Value(i int) float32 {
	if i < 0 || i >= len(t.values) {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[i]
}

// SavedValue returns parameter i as of the last Save.
func (t *Table) SavedValue(i int) float32 {
	if i < 0 || i >= len(t.saved) {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.saved[i]
}

// SetValue writes v clamped to the parameter's range.
func (t *Table) SetValue(i int, v float32) {
	if i < 0 || i >= len(t.values) {
		return
	}
	t.mu.Lock()
	t.values[i] = clamp(v, t.defs[i].Min, t.defs[i].Max)
	t.mu.Unlock()
}

// Blend moves parameter i toward v by weight.
func (t *Table) Blend(i int, v, weight float32) {
	if i < 0 || i >= len(t.values) {
		return
	}
	t.mu.Lock()
	cur := t.values[i]
	t.values[i] = clamp(cur+(v-cur)*weight, t.defs[i].Min, t.defs[i].Max)
	t.mu.Unlock()
}

func (t *Table) Add(i int, v, weight float32) {
	if i < 0 || i >= len(t.values) {
		return
	}
	t.mu.Lock()
	t.values[i] = clamp(t.values[i]+v*weight, t.defs[i].Min, t.defs[i].Max)
	t.mu.Unlock()
}

func (t *Table) Multiply(i int, v, weight float32) {
	if i < 0 || i >= len(t.values) {
		return
	}
	t.mu.Lock()
	t.values[i] = clamp(t.values[i]*(1+(v-1)*weight), t.defs[i].Min, t.defs[i].Max)
	t.mu.Unlock()
}

// Save commits the current values as the snapshot restored by Load.
func (t *Table) Save() {
	t.mu.Lock()
	copy(t.saved, t.values)
	t.mu.Unlock()
}

func (t *Table) Load() {
	t.mu.Lock()
	copy(t.values, t.saved)
	t.mu.Unlock()
}

// Snapshot copies the current values.
func (t *Table) Snapshot() []float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]float32, len(t.values))
	copy(out, t.values)
	return out
}

// Normalized maps parameter i onto [-1, 1] around its default.
func (t *Table) Normalized(i int) float32 {
	d := t.defs[i]
	v := t.Value(i)
	switch {
	case v > d.Default && d.Max > d.Default:
		return (v - d.Default) / (d.Max - d.Default)
	case v < d.Default && d.Min < d.Default:
		return -(d.Default - v) / (d.Default - d.Min)
	}
	return 0
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
