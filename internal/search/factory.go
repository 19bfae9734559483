package search

import (
	"fmt"

	"chronicle/internal/chronicle"
	"chronicle/internal/config"
)

// NewIndexFromConfig creates a WordIndex implementation based on the index
// config type. A "none" type yields a nil index; the engine treats that as
// no index configured.
func NewIndexFromConfig(cfg config.IndexConfig) (chronicle.WordIndex, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryIndex(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite index requires path to be set")
		}
		return NewSQLiteIndex(cfg.Path)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}
}
