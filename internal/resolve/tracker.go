package resolve

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/deskbridge/deskbridge/internal/domain"
)

// Tracker accumulates source identities that have no account on the target.
// Entries are deduplicated by login and come back in first-seen order, so
// the report reads as a timeline of discoveries rather than a re-sorted
// dump. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	order   []string
	entries map[string]string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]string)}
}

// Record notes one unresolved identity. Empty logins are ignored, and a
// login already recorded changes nothing, including its display name. An
// empty display name falls back to the login itself.
func (t *Tracker) Record(login, displayName string) {
	if login == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.entries[login]; seen {
		return
	}
	if displayName == "" {
		displayName = login
	}
	t.entries[login] = displayName
	t.order = append(t.order, login)
}

// Len returns the number of unique identities recorded so far.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entities returns the recorded identities in first-seen order.
func (t *Tracker) Entities() []domain.MissingEntity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.MissingEntity, 0, len(t.order))
	for _, login := range t.order {
		out = append(out, domain.MissingEntity{Login: login, DisplayName: t.entries[login]})
	}
	return out
}

// WriteReport writes the tab-separated report: a header line, then one
// identity per line in first-seen order.
func (t *Tracker) WriteReport(w io.Writer) error {
	if _, err := io.WriteString(w, "Login Name\tFull Name\n"); err != nil {
		return err
	}
	for _, e := range t.Entities() {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", e.Login, e.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport writes the report to path, creating parent directories as
// needed. When nothing was recorded, no file is written and any report
// from an earlier run is left in place.
func (t *Tracker) SaveReport(path string) error {
	if t.Len() == 0 {
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save missing report: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save missing report: %w", err)
	}
	if err := t.WriteReport(f); err != nil {
		f.Close()
		return fmt.Errorf("save missing report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save missing report: %w", err)
	}
	return nil
}
