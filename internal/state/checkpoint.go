// Package state persists migration progress for crash recovery. A checkpoint
// is written only after a batch has been fully applied, so an interrupted
// run resumes at the last durable cursor and re-applies at most one batch.
package state

import "time"

// Checkpoint is the durable progress marker of one migration.
type Checkpoint struct {
	// Cursor is the source offset the next fetch starts at.
	Cursor int `json:"cursor"`

	// Processed is the total number of records successfully applied across
	// all runs. It can trail Cursor when records were skipped.
	Processed int `json:"processed_count"`

	// SavedAt is when the checkpoint was written.
	SavedAt time.Time `json:"saved_at"`
}

// IsZero reports whether no checkpoint has been saved yet.
func (c Checkpoint) IsZero() bool {
	return c.Cursor == 0 && c.Processed == 0 && c.SavedAt.IsZero()
}

// Advanced returns the checkpoint as it stands after one batch of fetched
// records of which applied succeeded. Skipped records advance the cursor
// like applied ones, so a bad record is never re-fetched forever.
func (c Checkpoint) Advanced(fetched, applied int, at time.Time) Checkpoint {
	return Checkpoint{
		Cursor:    c.Cursor + fetched,
		Processed: c.Processed + applied,
		SavedAt:   at,
	}
}
