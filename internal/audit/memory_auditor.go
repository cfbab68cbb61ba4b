package audit

import (
	"sync"
)

var _ Auditor = (*InMemoryAuditor)(nil)

// InMemoryAuditor is an auditor that stores audit logs in memory.
type InMemoryAuditor struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

func NewInMemoryAuditor() *InMemoryAuditor {
	return &InMemoryAuditor{
		entries: make([]Entry, 0),
	}
}

// NewBoundedInMemoryAuditor keeps only the latest capacity entries.
func NewBoundedInMemoryAuditor(capacity int) *InMemoryAuditor {
	a := NewInMemoryAuditor()
	a.capacity = capacity
	return a
}

func (i *InMemoryAuditor) Log(entry Entry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	if i.capacity > 0 && len(i.entries) > i.capacity {
		i.entries = append(i.entries[:0:0], i.entries[len(i.entries)-i.capacity:]...)
	}
	return nil
}

// GetRecent returns up to limit entries, oldest first.
func (i *InMemoryAuditor) GetRecent(limit int) []Entry {
	i.mu.Lock()
	defer i.mu.Unlock()

	limit = min(max(limit, 0), len(i.entries))
	entries := make([]Entry, limit)
	copy(entries, i.entries[len(i.entries)-limit:])
	return entries
}

// Find returns the latest limit entries matching filter.
func (i *InMemoryAuditor) Find(filter func(entry Entry) bool, limit int) []Entry {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []Entry
	for _, entry := range i.entries {
		if filter(entry) {
			matches = append(matches, entry)
		}
	}
	if len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches
}

func (i *InMemoryAuditor) Close() error {
	return nil
}
