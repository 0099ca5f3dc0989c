package store

import (
	"sort"
	"sync"
)

// Index is the set of identities already captured in an output location.
// It is safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewIndex returns an index holding keys.
func NewIndex(keys ...string) *Index {
	idx := &Index{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k != "" {
			idx.keys[k] = struct{}{}
		}
	}
	return idx
}

// Contains reports whether key is recorded.
func (i *Index) Contains(key string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.keys[key]
	return ok
}

// Add records key and reports whether it was new.
func (i *Index) Add(key string) bool {
	if key == "" {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.keys[key]; ok {
		return false
	}
	i.keys[key] = struct{}{}
	return true
}

// Remove forgets key.
func (i *Index) Remove(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, key)
}

// replace swaps in the contents of other. The receiver stays the same
// pointer, so holders of Store.Index see the reloaded set.
func (i *Index) replace(other *Index) {
	other.mu.RLock()
	keys := make(map[string]struct{}, len(other.keys))
	for k := range other.keys {
		keys[k] = struct{}{}
	}
	other.mu.RUnlock()

	i.mu.Lock()
	i.keys = keys
	i.mu.Unlock()
}

// Len returns the number of recorded identities.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}

// Keys returns the identities sorted.
func (i *Index) Keys() []string {
	i.mu.RLock()
	out := make([]string, 0, len(i.keys))
	for k := range i.keys {
		out = append(out, k)
	}
	i.mu.RUnlock()
	sort.Strings(out)
	return out
}
