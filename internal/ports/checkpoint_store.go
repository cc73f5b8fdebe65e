package ports

import (
	"context"

	"github.com/deskbridge/deskbridge/internal/state"
)

// CheckpointStore handles progress persistence for crash recovery.
// Implementations persist checkpoints to disk (or other storage) atomically.
type CheckpointStore interface {
	// Load retrieves the last saved checkpoint.
	// Returns a zero checkpoint and nil error if none exists.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (state.Checkpoint, error)

	// Save persists the checkpoint atomically, only after the batch it
	// describes has been fully applied.
	Save(ctx context.Context, cp state.Checkpoint) error
}
