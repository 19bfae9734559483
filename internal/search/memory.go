package search

import (
	"sort"
	"sync"

	"chronicle/internal/chronicle"
	"chronicle/internal/model"
)

type entityKey struct {
	kind model.Kind
	id   string
}

// MemoryIndex is an in-memory implementation of the WordIndex interface,
// for tests and stores that do not want a database file.
type MemoryIndex struct {
	mu          sync.RWMutex
	words       map[string]map[entityKey]string // word -> entity -> conversation id
	byEntity    map[entityKey][]string
	collections map[string]string // message id -> collection id
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		words:       make(map[string]map[entityKey]string),
		byEntity:    make(map[entityKey][]string),
		collections: make(map[string]string),
	}
}

func (m *MemoryIndex) Add(kind model.Kind, id, conversationID string, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityKey{kind: kind, id: id}
	m.removeLocked(key)
	for _, w := range words {
		if m.words[w] == nil {
			m.words[w] = make(map[entityKey]string)
		}
		m.words[w][key] = conversationID
	}
	m.byEntity[key] = append([]string(nil), words...)
	return nil
}

func (m *MemoryIndex) Remove(kind model.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(entityKey{kind: kind, id: id})
	return nil
}

func (m *MemoryIndex) removeLocked(key entityKey) {
	for _, w := range m.byEntity[key] {
		delete(m.words[w], key)
		if len(m.words[w]) == 0 {
			delete(m.words, w)
		}
	}
	delete(m.byEntity, key)
}

func (m *MemoryIndex) Lookup(words []string) ([]chronicle.IndexHit, error) {
	if len(words) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[entityKey]int)
	convIDs := make(map[entityKey]string)
	for _, w := range words {
		for key, convID := range m.words[w] {
			counts[key]++
			convIDs[key] = convID
		}
	}
	var hits []chronicle.IndexHit
	for key, n := range counts {
		if n == len(words) {
			hits = append(hits, chronicle.IndexHit{Kind: key.kind, ID: key.id, ConversationID: convIDs[key]})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Kind != hits[j].Kind {
			return hits[i].Kind < hits[j].Kind
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

func (m *MemoryIndex) SetCollectionFor(messageID, collectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[messageID] = collectionID
	return nil
}

func (m *MemoryIndex) CollectionFor(messageID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collections[messageID], nil
}

func (m *MemoryIndex) RemoveCollectionFor(messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, messageID)
	return nil
}

func (m *MemoryIndex) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words = make(map[string]map[entityKey]string)
	m.byEntity = make(map[entityKey][]string)
	m.collections = make(map[string]string)
	return nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

// Compile-time check that MemoryIndex implements chronicle.WordIndex
var _ chronicle.WordIndex = (*MemoryIndex)(nil)
