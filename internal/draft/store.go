package draft

// Store holds draft items addressable by key, independent of tree position.
// Iteration follows insertion order so list rendering stays stable.
//
// Store is not safe for concurrent use; it is owned by a single Draft.
type Store struct {
	items map[Key]Item
	order []Key
	dirty bool
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{items: make(map[Key]Item)}
}

// Upsert inserts or replaces an entry. A replaced entry keeps its position.
func (s *Store) Upsert(item Item) {
	if _, exists := s.items[item.Key]; !exists {
		s.order = append(s.order, item.Key)
	}
	s.items[item.Key] = item
	s.dirty = true
}

// Remove deletes one entry and reports whether it existed
func (s *Store) Remove(key Key) bool {
	if _, exists := s.items[key]; !exists {
		return false
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.dirty = true
	return true
}

// RemoveAllByParent deletes every entry whose parent material matches and
// returns how many were removed.
func (s *Store) RemoveAllByParent(parentMaterialID int64) int {
	if parentMaterialID == 0 {
		return 0
	}

	kept := s.order[:0]
	removed := 0
	for _, k := range s.order {
		if s.items[k].ParentMaterialID == parentMaterialID {
			delete(s.items, k)
			removed++
			continue
		}
		kept = append(kept, k)
	}
	s.order = kept

	if removed > 0 {
		s.dirty = true
	}
	return removed
}

// Clear empties the store
func (s *Store) Clear() {
	s.items = make(map[Key]Item)
	s.order = nil
	s.dirty = true
}

// Get returns the entry stored under key
func (s *Store) Get(key Key) (Item, bool) {
	item, ok := s.items[key]
	return item, ok
}

// All returns a copy of every entry in insertion order
func (s *Store) All() []Item {
	out := make([]Item, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Len returns the number of entries
func (s *Store) Len() int {
	return len(s.order)
}

// Dirty reports whether the store changed since the last MarkClean
func (s *Store) Dirty() bool {
	return s.dirty
}

// MarkClean resets the dirty flag, typically after a successful save
func (s *Store) MarkClean() {
	s.dirty = false
}

// replace swaps the whole content, used when rehydrating from a snapshot
func (s *Store) replace(items []Item) {
	s.items = make(map[Key]Item, len(items))
	s.order = make([]Key, 0, len(items))
	for _, item := range items {
		if _, dup := s.items[item.Key]; !dup {
			s.order = append(s.order, item.Key)
		}
		s.items[item.Key] = item
	}
	s.dirty = false
}
