package chronicle

import (
	"strings"
	"unicode"

	"chronicle/internal/model"
)

// IndexHit is one entity matched by a word-index lookup.
type IndexHit struct {
	Kind           model.Kind
	ID             string
	ConversationID string
}

// WordIndex is the optional persisted inverted index used to accelerate
// search, plus the message-id to snapshot-collection-id mapping. The index
// is never a source of truth: when it is missing or failing, search falls
// back to a linear scan and the mapping to a directory sweep.
type WordIndex interface {
	// Add replaces the indexed words for an entity.
	Add(kind model.Kind, id, conversationID string, words []string) error

	// Remove drops all index entries for an entity.
	Remove(kind model.Kind, id string) error

	// Lookup returns entities containing every given word.
	Lookup(words []string) ([]IndexHit, error)

	// SetCollectionFor records which snapshot collection belongs to a message.
	SetCollectionFor(messageID, collectionID string) error

	// CollectionFor returns the collection id for a message, or "" if none.
	CollectionFor(messageID string) (string, error)

	// RemoveCollectionFor drops the mapping for a message.
	RemoveCollectionFor(messageID string) error

	// Clear drops every entry, before a rebuild or after a restore.
	Clear() error

	// Close releases the index's resources.
	Close() error
}

// Tokenize lowercases text and splits it into unique letter/digit words.
// It is the single tokenization used for both indexing and lookup.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, w := range fields {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
