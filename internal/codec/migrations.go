package codec

import (
	"encoding/json"
	"fmt"

	"chronicle/internal/model"
	"chronicle/internal/validate"
)

// A migration upgrades a payload from schema version From to From+1. Each
// step works on the loosely-parsed JSON object so it can tolerate the old
// shape, fills newly-required fields with computed or default values, and
// never deletes user content.
type migration struct {
	From  int
	Apply func(kind model.Kind, payload map[string]any) error
}

// migrations is the ordered chain of historical upgrades. Entry i must have
// From == i so a v0 file replays the whole chain.
var migrations = []migration{
	{From: 0, Apply: migrateV0V1},
	{From: 1, Apply: migrateV1V2},
}

// Migrate upgrades a payload from the given version to the current schema
// version by applying each step in sequence.
func Migrate(kind model.Kind, fromVersion int, payload json.RawMessage) (json.RawMessage, error) {
	if fromVersion < 0 {
		return nil, fmt.Errorf("codec: invalid schema version %d", fromVersion)
	}
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, fmt.Errorf("codec: unparsable v%d %s payload: %w", fromVersion, kind, err)
	}
	for _, step := range migrations {
		if step.From < fromVersion {
			continue
		}
		if err := step.Apply(kind, obj); err != nil {
			return nil, fmt.Errorf("codec: migrating %s from v%d: %w", kind, step.From, err)
		}
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("codec: re-encoding migrated %s payload: %w", kind, err)
	}
	return out, nil
}

// migrateV0V1: v0 conversations carried their message ids under "messages"
// and had no metadata block; v0 messages had no codeChanges/snapshots
// arrays. v1 introduced conversation metadata (messageCount derived from
// the id list, lastActivityAt from createdAt, empty tag set) and made the
// embedded arrays required.
func migrateV0V1(kind model.Kind, obj map[string]any) error {
	switch kind {
	case model.KindConversation:
		if ids, ok := obj["messages"]; ok {
			if _, renamed := obj["messageIds"]; !renamed {
				obj["messageIds"] = ids
			}
			delete(obj, "messages")
		}
		if _, ok := obj["messageIds"]; !ok {
			obj["messageIds"] = []any{}
		}
		if _, ok := obj["metadata"]; !ok {
			count := 0
			if ids, ok := obj["messageIds"].([]any); ok {
				count = len(ids)
			}
			obj["metadata"] = map[string]any{
				"messageCount":   count,
				"lastActivityAt": obj["createdAt"],
			}
		}
		if _, ok := obj["status"]; !ok {
			obj["status"] = string(model.StatusActive)
		}
	case model.KindMessage:
		if _, ok := obj["codeChanges"]; !ok {
			obj["codeChanges"] = []any{}
		}
		if _, ok := obj["snapshots"]; !ok {
			obj["snapshots"] = []any{}
		}
	case model.KindSnapshotCollection:
		if _, ok := obj["snapshots"]; !ok {
			obj["snapshots"] = []any{}
		}
	}
	return nil
}

// migrateV1V2: v2 added per-snapshot metadata and required checksums for
// non-empty content. Sizes are computed from the content, the encoding
// defaults to utf-8, and missing checksums are filled in.
func migrateV1V2(kind model.Kind, obj map[string]any) error {
	upgrade := func(raw any) {
		snaps, ok := raw.([]any)
		if !ok {
			return
		}
		for _, s := range snaps {
			snap, ok := s.(map[string]any)
			if !ok {
				continue
			}
			content, _ := snap["content"].(string)
			if _, ok := snap["metadata"]; !ok {
				snap["metadata"] = map[string]any{
					"size":     len(content),
					"encoding": "utf-8",
					"existed":  true,
				}
			}
			if sum, _ := snap["checksum"].(string); sum == "" && len(content) > 0 {
				snap["checksum"] = validate.Checksum([]byte(content))
			}
		}
	}
	switch kind {
	case model.KindMessage, model.KindSnapshotCollection:
		upgrade(obj["snapshots"])
	}
	return nil
}
