package dispatch

// Table is a keyed lookup with one designated default entry. It replaces
// branch-by-string-value switches (help topics, callback identifiers) with a
// structure that can be built and tested in isolation.
type Table[V any] struct {
	entries    map[string]V
	def        V
	hasDefault bool
}

// NewTable creates an empty table.
func NewTable[V any]() *Table[V] {
	return &Table[V]{entries: make(map[string]V)}
}

// Set maps key to value.
func (t *Table[V]) Set(key string, value V) *Table[V] {
	t.entries[key] = value
	return t
}

// Default sets the value returned for unknown or empty keys.
func (t *Table[V]) Default(value V) *Table[V] {
	t.def = value
	t.hasDefault = true
	return t
}

// Lookup returns the value for key and whether it was an exact hit. Unknown
// keys fall back to the default entry when one is set.
func (t *Table[V]) Lookup(key string) (V, bool) {
	if v, ok := t.entries[key]; ok {
		return v, true
	}
	return t.def, false
}

// Keys returns the table's known keys, excluding the default.
func (t *Table[V]) Keys() []string {
	out := make([]string, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	return out
}
