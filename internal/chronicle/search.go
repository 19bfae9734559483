package chronicle

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"chronicle/internal/model"
)

// SearchOptions tunes a search.
type SearchOptions struct {
	// Regex interprets the query as a regular expression instead of a
	// case-insensitive substring.
	Regex bool
	// Limit caps the number of results; zero means no cap.
	Limit int
}

// SearchResult is one match.
type SearchResult struct {
	ConversationID string
	// MessageID is empty when the match is in the conversation title or tags.
	MessageID string
	Snippet   string
}

// Search finds conversations and messages whose text matches the query.
// Plain word queries go through the word index when one is configured;
// regex queries and stores without an index fall back to a linear scan.
func (e *Engine) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if !opts.Regex && e.index != nil {
		results, err := e.searchIndexed(query, opts)
		if err == nil {
			return results, nil
		}
		e.log.Warn("index search failed, falling back to scan", "error", err)
	}
	return e.searchScan(query, opts)
}

func (e *Engine) searchIndexed(query string, opts SearchOptions) ([]SearchResult, error) {
	words := Tokenize(query)
	if len(words) == 0 {
		return nil, nil
	}
	hits, err := e.index.Lookup(words)
	if err != nil {
		return nil, err
	}
	var results []SearchResult
	for _, hit := range hits {
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
		switch hit.Kind {
		case model.KindConversation:
			c, err := e.GetConversation(hit.ID)
			if err != nil || c == nil {
				continue
			}
			results = append(results, SearchResult{ConversationID: c.ID, Snippet: snippet(c.Title, words[0])})
		case model.KindMessage:
			m, err := e.GetMessage(hit.ID)
			if err != nil || m == nil {
				continue
			}
			results = append(results, SearchResult{ConversationID: m.ConversationID, MessageID: m.ID, Snippet: snippet(m.Content, words[0])})
		}
	}
	return results, nil
}

func (e *Engine) searchScan(query string, opts SearchOptions) ([]SearchResult, error) {
	match, err := matcherFor(query, opts.Regex)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	add := func(r SearchResult) bool {
		results = append(results, r)
		return opts.Limit > 0 && len(results) >= opts.Limit
	}

	convs, err := e.ListConversations()
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		text := c.Title + " " + strings.Join(c.Metadata.Tags, " ")
		if match(text) {
			if add(SearchResult{ConversationID: c.ID, Snippet: snippet(c.Title, query)}) {
				return results, nil
			}
		}
	}

	msgIDs, err := e.listIDs(model.KindMessage)
	if err != nil {
		return nil, err
	}
	for _, mid := range msgIDs {
		m, err := e.GetMessage(mid)
		if err != nil || m == nil {
			continue
		}
		if match(m.Content) {
			if add(SearchResult{ConversationID: m.ConversationID, MessageID: m.ID, Snippet: snippet(m.Content, query)}) {
				return results, nil
			}
		}
	}
	return results, nil
}

func matcherFor(query string, regex bool) (func(string) bool, error) {
	if regex {
		re, err := regexp.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("invalid search pattern: %w", err)
		}
		return re.MatchString, nil
	}
	needle := strings.ToLower(query)
	return func(text string) bool {
		return strings.Contains(strings.ToLower(text), needle)
	}, nil
}

// snippet returns a short window of text around the first occurrence of
// needle, or the head of the text when the needle is not found literally.
func snippet(text, needle string) string {
	const window = 60
	idx := strings.Index(strings.ToLower(text), strings.ToLower(needle))
	if idx < 0 {
		idx = 0
	}
	start := idx - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(text) {
		end = len(text)
	}
	// Slicing by byte offset can land mid-rune; pull both edges back to
	// rune boundaries so the window is always valid UTF-8.
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	s := text[start:end]
	if start > 0 {
		s = "..." + s
	}
	if end < len(text) {
		s += "..."
	}
	return s
}

// RebuildIndex drops and repopulates the word index from the committed
// store. A no-op when no index is configured.
func (e *Engine) RebuildIndex() error {
	if e.index == nil {
		return nil
	}
	if err := e.index.Clear(); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	convs, err := e.ListConversations()
	if err != nil {
		return err
	}
	for _, c := range convs {
		e.indexConversation(c)
	}

	msgIDs, err := e.listIDs(model.KindMessage)
	if err != nil {
		return err
	}
	for _, mid := range msgIDs {
		m, err := e.GetMessage(mid)
		if err != nil || m == nil {
			continue
		}
		if err := e.index.Add(model.KindMessage, m.ID, m.ConversationID, Tokenize(m.Content)); err != nil {
			e.log.Warn("index update failed", "kind", model.KindMessage, "id", m.ID, "error", err)
		}
	}

	collIDs, err := e.listIDs(model.KindSnapshotCollection)
	if err != nil {
		return err
	}
	for _, cid := range collIDs {
		sc, err := e.GetSnapshotCollection(cid)
		if err != nil || sc == nil {
			continue
		}
		if err := e.index.SetCollectionFor(sc.MessageID, sc.ID); err != nil {
			e.log.Warn("index update failed", "kind", model.KindSnapshotCollection, "id", sc.ID, "error", err)
		}
	}
	e.log.Info("index rebuilt", "conversations", len(convs), "messages", len(msgIDs), "snapshots", len(collIDs))
	return nil
}
