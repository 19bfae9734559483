// Package codec converts entities to and from the versioned envelope that
// is the only unit ever written to or read from a storage file. Reads of
// older envelopes are routed through the migration chain.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chronicle/internal/model"
)

// CurrentSchemaVersion is the envelope version this build writes.
const CurrentSchemaVersion = 2

// ErrVersionAhead means an envelope was written by a newer build. Forward
// compatibility is not supported; the caller must upgrade.
var ErrVersionAhead = errors.New("codec: envelope schema version is newer than this build supports")

// Options controls deserialization behavior.
type Options struct {
	// Validate runs structural validation on the decoded entity and fails
	// on any defect.
	Validate bool
	// AutoMigrate upgrades payloads from older schema versions to the
	// current one before decoding.
	AutoMigrate bool
}

// Serialize wraps an entity in an envelope stamped with the current schema
// version and the write timestamp.
func Serialize(kind model.Kind, entity any, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("codec: marshaling %s payload: %w", kind, err)
	}
	env := model.Envelope{
		SchemaVersion: CurrentSchemaVersion,
		Data:          payload,
		SerializedAt:  now.UnixMilli(),
		Metadata:      map[string]string{"kind": string(kind)},
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("codec: marshaling %s envelope: %w", kind, err)
	}
	return data, nil
}

// ParseEnvelope decodes the outer envelope without touching the payload.
func ParseEnvelope(data []byte) (*model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("codec: unparsable envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return nil, errors.New("codec: envelope has no payload")
	}
	return &env, nil
}

// payloadAtCurrentVersion checks version bounds and, when permitted, walks
// the migration chain until the payload is at the current schema version.
func payloadAtCurrentVersion(kind model.Kind, env *model.Envelope, opts Options) (json.RawMessage, error) {
	switch {
	case env.SchemaVersion > CurrentSchemaVersion:
		return nil, fmt.Errorf("%w: file version %d, supported %d", ErrVersionAhead, env.SchemaVersion, CurrentSchemaVersion)
	case env.SchemaVersion == CurrentSchemaVersion:
		return env.Data, nil
	}
	if !opts.AutoMigrate {
		return nil, fmt.Errorf("codec: envelope at schema version %d requires migration", env.SchemaVersion)
	}
	return Migrate(kind, env.SchemaVersion, env.Data)
}

// DeserializeConversation decodes a conversation envelope.
func DeserializeConversation(data []byte, opts Options) (*model.Conversation, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	payload, err := payloadAtCurrentVersion(model.KindConversation, env, opts)
	if err != nil {
		return nil, err
	}
	var c model.Conversation
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("codec: decoding conversation: %w", err)
	}
	if opts.Validate {
		if res := model.ValidateConversation(&c); !res.Valid {
			return nil, fmt.Errorf("codec: conversation %q failed validation: %s", c.ID, res.Errors[0].Error())
		}
	}
	return &c, nil
}

// DeserializeMessage decodes a message envelope.
func DeserializeMessage(data []byte, opts Options) (*model.Message, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	payload, err := payloadAtCurrentVersion(model.KindMessage, env, opts)
	if err != nil {
		return nil, err
	}
	var m model.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("codec: decoding message: %w", err)
	}
	if opts.Validate {
		if res := model.ValidateMessage(&m); !res.Valid {
			return nil, fmt.Errorf("codec: message %q failed validation: %s", m.ID, res.Errors[0].Error())
		}
	}
	return &m, nil
}

// DeserializeSnapshotCollection decodes a snapshot collection envelope.
func DeserializeSnapshotCollection(data []byte, opts Options) (*model.SnapshotCollection, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	payload, err := payloadAtCurrentVersion(model.KindSnapshotCollection, env, opts)
	if err != nil {
		return nil, err
	}
	var sc model.SnapshotCollection
	if err := json.Unmarshal(payload, &sc); err != nil {
		return nil, fmt.Errorf("codec: decoding snapshot collection: %w", err)
	}
	if opts.Validate {
		if res := model.ValidateSnapshotCollection(&sc); !res.Valid {
			return nil, fmt.Errorf("codec: snapshot collection %q failed validation: %s", sc.ID, res.Errors[0].Error())
		}
	}
	return &sc, nil
}

// VerifyFunc returns a round-trip check for the given kind, used by the
// atomic writer to confirm scratch files are well formed before rename.
func VerifyFunc(kind model.Kind) func([]byte) error {
	return func(data []byte) error {
		var err error
		switch kind {
		case model.KindConversation:
			_, err = DeserializeConversation(data, Options{Validate: true})
		case model.KindMessage:
			_, err = DeserializeMessage(data, Options{Validate: true})
		case model.KindSnapshotCollection:
			_, err = DeserializeSnapshotCollection(data, Options{Validate: true})
		default:
			err = fmt.Errorf("codec: unknown kind %q", kind)
		}
		return err
	}
}
