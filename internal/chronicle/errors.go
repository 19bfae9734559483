package chronicle

import (
	"fmt"

	"chronicle/internal/model"
	"chronicle/internal/validate"
)

// StorageError reports an I/O or serialization failure: a read, write or
// rename failed, or an envelope was fundamentally unparsable.
type StorageError struct {
	Op   string // "read", "write", "rename", "delete", "serialize", ...
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DataIntegrityError reports that an entity failed validation, consistency
// or checksum checks. Fields carries the structured list of offending
// fields for the caller to surface.
type DataIntegrityError struct {
	Kind   model.Kind
	ID     string
	Reason string
	Fields []validate.FieldError
}

func (e *DataIntegrityError) Error() string {
	msg := fmt.Sprintf("integrity: %s %q: %s", e.Kind, e.ID, e.Reason)
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s (%d field error(s), first: %s)", msg, len(e.Fields), e.Fields[0].Error())
	}
	return msg
}

// SnapshotError reports that a specific file snapshot failed checksum
// verification.
type SnapshotError struct {
	FilePath string
	Checksum string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot: checksum mismatch for %s", e.FilePath)
}
