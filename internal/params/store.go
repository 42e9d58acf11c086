package params

// Store is the channel-level view of a Table. Channel names are resolved to
// engine indices once, in Bind; Get and Set never look up strings.
//
// A channel the model does not define is kept in a local shadow slot so that
// the read-modify-write cycle still converges for it.
type Store struct {
	table      *Table
	generation Generation
	index      [ChannelCount]int
	shadow     Values
}

func Bind(table *Table, g Generation) (*Store, []Channel) {
	s := &Store{table: table, generation: g}
	var missing []Channel
	for c := Channel(0); c < ChannelCount; c++ {
		s.index[c] = table.Index(c.Name(g))
		if s.index[c] < 0 {
			missing = append(missing, c)
		}
	}
	return s, missing
}

// DetectGeneration picks the naming scheme with the most matches in table.
// Ties go to Modern.
func DetectGeneration(table *Table) Generation {
	var hits [GenerationCount]int
	for c := Channel(0); c < ChannelCount; c++ {
		for g := Generation(0); g < GenerationCount; g++ {
			if table.Index(c.Name(g)) >= 0 {
				hits[g]++
			}
		}
	}
	if hits[Legacy] > hits[Modern] {
		return Legacy
	}
	return Modern
}

func (s *Store) Generation() Generation {
	return s.generation
}

func (s *Store) Table() *Table {
	return s.table
}

// Index returns the engine index bound to c, or -1.
func (s *Store) Index(c Channel) int {
	if c < 0 || c >= ChannelCount {
		return -1
	}
	return s.index[c]
}

// Get returns the current value of c, including any unsaved layers.
func (s *Store) Get(c Channel) float32 {
	if c < 0 || c >= ChannelCount {
		return 0
	}
	if i := s.index[c]; i >= 0 {
		return s.table.Value(i)
	}
	return s.shadow[c]
}

// Set writes c. The value is lost on the next Table.Load unless saved.
func (s *Store) Set(c Channel, v float32) {
	if c < 0 || c >= ChannelCount {
		return
	}
	if i := s.index[c]; i >= 0 {
		s.table.SetValue(i, v)
		return
	}
	s.shadow[c] = v
}

// Values reads every channel as Get does.
func (s *Store) Values() Values {
	var v Values
	for c := Channel(0); c < ChannelCount; c++ {
		v[c] = s.Get(c)
	}
	return v
}

// Saved reads every channel as of the last Save. Layers applied after the
// save (breath, blink, lip sync, physics) are not part of it.
func (s *Store) Saved() Values {
	var v Values
	for c := Channel(0); c < ChannelCount; c++ {
		if i := s.index[c]; i >= 0 {
			v[c] = s.table.SavedValue(i)
		} else {
			v[c] = s.shadow[c]
		}
	}
	return v
}

func (s *Store) SetValues(v Values) {
	for c := Channel(0); c < ChannelCount; c++ {
		s.Set(c, v[c])
	}
}

// Save commits the parameter snapshot that the next model update starts from.
func (s *Store) Save() {
	s.table.Save()
}
