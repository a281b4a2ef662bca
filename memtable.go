package lsmkv

// MemTable is the ordered in-memory write buffer preceding the first
// on-disk level. Concurrency is the caller's responsibility: per spec,
// the Storage façade serializes access with a single RWMutex, so
// MemTable itself holds no lock of its own.
type MemTable struct {
	entries  *skipList
	maxCount int
}

// NewMemTable creates an empty MemTable that signals need_flush once it
// holds maxCount unique keys.
func NewMemTable(maxCount int) *MemTable {
	return &MemTable{
		entries:  newSkipList(),
		maxCount: maxCount,
	}
}

// Append inserts or overwrites entry by key; the most recently appended
// value for a key wins. current_size grows by one only when the key was
// not already present.
func (m *MemTable) Append(e Entry) {
	m.entries.upsert(e.Key, e.Value)
}

// Get returns the current value for key, and whether it was found.
func (m *MemTable) Get(key Field) (Field, bool) {
	n := m.entries.search(key)
	if n == nil {
		return nil, false
	}
	return n.value, true
}

// Len returns the number of unique keys currently held.
func (m *MemTable) Len() int {
	return m.entries.size
}

// NeedFlush reports whether the table has reached its configured capacity.
func (m *MemTable) NeedFlush() bool {
	return m.entries.size >= m.maxCount
}

// Iter yields entries in ascending key order, stopping early if fn
// returns false. Consistent with the set's key order at call time.
func (m *MemTable) Iter(fn func(Entry) bool) {
	m.entries.ascend(func(key, value Field) bool {
		return fn(Entry{Key: key, Value: value})
	})
}

// Clear empties the table and resets size to 0.
func (m *MemTable) Clear() {
	m.entries.clear()
}
