package state

import (
	"context"
	"fmt"
)

// BackendConfig selects and configures a store implementation.
type BackendConfig struct {
	Type   string            `json:"type"` // "dir", "s3"
	Config map[string]string `json:"config"`
}

// NewStore creates a state store from configuration.
func NewStore(ctx context.Context, cfg *BackendConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "dir", "":
		dir := cfg.Config["dir"]
		if dir == "" {
			return nil, fmt.Errorf("dir store requires 'dir' configuration")
		}
		return NewDirStore(dir), nil
	case "s3":
		return NewS3Store(ctx, cfg.Config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
