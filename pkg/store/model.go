package store

// Model is the in-memory, format-agnostic collection of entries for one
// container. It is immutable once built.
type Model struct {
	entries []Entry
}

// New builds a Model from entries. The slice is copied.
func New(entries []Entry) *Model {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Model{entries: cp}
}

// Entries returns a copy of the entries in parse order.
func (m *Model) Entries() []Entry {
	if m == nil {
		return nil
	}
	cp := make([]Entry, len(m.entries))
	copy(cp, m.entries)
	return cp
}

// Len returns the number of entries.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Changed returns the entries whose rewrite would store a new secret.
func (m *Model) Changed() []Entry {
	var out []Entry
	for _, e := range m.Entries() {
		if e.Changed() {
			out = append(out, e)
		}
	}
	return out
}
