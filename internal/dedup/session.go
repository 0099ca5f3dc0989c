package dedup

import "sort"

// SessionSet holds identities captured since a session started. It is not
// safe for concurrent use; the owning session serializes access.
type SessionSet struct {
	keys map[string]struct{}
}

// NewSessionSet returns an empty set.
func NewSessionSet() *SessionSet {
	return &SessionSet{keys: make(map[string]struct{})}
}

// Contains implements Lookup.
func (s *SessionSet) Contains(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Add inserts key and reports whether it was absent.
func (s *SessionSet) Add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// Remove deletes key.
func (s *SessionSet) Remove(key string) { delete(s.keys, key) }

// Len returns the number of identities.
func (s *SessionSet) Len() int { return len(s.keys) }

// Clear empties the set.
func (s *SessionSet) Clear() { clear(s.keys) }

// Keys returns the identities in sorted order.
func (s *SessionSet) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
