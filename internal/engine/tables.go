package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/deskbridge/deskbridge/internal/config"
)

// tables holds the per-run name→identifier lookups the transform stage
// consults. Every key is folded to lower case once, at build time, so the
// per-record lookups never care how a name was capitalized on either side.
type tables struct {
	status   map[string]int
	types    map[string]int
	priority map[string]config.PriorityRef

	classLocation map[string]string
	classItem     map[string]config.ItemRef

	defaultStatus   int
	defaultType     int
	defaultPriority config.PriorityRef

	// solved and closed identify the terminal statuses whose value must be
	// re-asserted after followups are added; 0 when the table has no such
	// status.
	solved int
	closed int
}

// buildTables assembles the run's lookup tables: the target's own status and
// type tables as a base, with the configured mappings layered on top. The
// configured default status and type must resolve or the run cannot start.
func (e *Engine) buildTables(ctx context.Context) (*tables, error) {
	statuses, err := e.target.StatusNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load status table: %w", err)
	}
	types, err := e.target.TypeNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load type table: %w", err)
	}

	t := &tables{
		status:        lowered(statuses),
		types:         lowered(types),
		priority:      lowered(e.cfg.Mappings.Priority),
		classLocation: lowered(e.cfg.Mappings.ClassificationLocation),
		classItem:     lowered(e.cfg.Mappings.ClassificationItem),
	}
	for name, id := range e.cfg.Mappings.Status {
		t.status[strings.ToLower(name)] = id
	}
	for name, id := range e.cfg.Mappings.Type {
		t.types[strings.ToLower(name)] = id
	}

	var ok bool
	if t.defaultStatus, ok = t.status[strings.ToLower(e.cfg.Defaults.Status)]; !ok {
		return nil, fmt.Errorf("default status %q not in status table", e.cfg.Defaults.Status)
	}
	if t.defaultType, ok = t.types[strings.ToLower(e.cfg.Defaults.Type)]; !ok {
		return nil, fmt.Errorf("default type %q not in type table", e.cfg.Defaults.Type)
	}
	t.defaultPriority = config.PriorityRef{
		Urgency: e.cfg.Defaults.Urgency,
		Impact:  e.cfg.Defaults.Impact,
	}
	t.solved = t.status["solved"]
	t.closed = t.status["closed"]

	e.warnUnmappedStatuses(ctx, t)
	return t, nil
}

// warnUnmappedStatuses lists the source project's workflow statuses and
// flags the ones the run will silently default, so an operator learns about
// a mapping gap from the startup log instead of from the migrated data.
// The listing is best effort.
func (e *Engine) warnUnmappedStatuses(ctx context.Context, t *tables) {
	if e.cfg.Source.Project == "" {
		return
	}
	names, err := e.source.ProjectStatuses(ctx, e.cfg.Source.Project)
	if err != nil {
		e.log.Warn().Err(err).Msg("list source statuses")
		return
	}
	for _, name := range names {
		if _, ok := t.status[strings.ToLower(name)]; !ok {
			e.log.Warn().Str("status", name).Msg("source status unmapped, default applies")
		}
	}
}

// statusFor maps a source status name to a target status identifier. The
// second return reports whether the name was actually mapped rather than
// defaulted.
func (t *tables) statusFor(name string) (int, bool) {
	if id, ok := t.status[strings.ToLower(name)]; ok {
		return id, true
	}
	return t.defaultStatus, false
}

// typeFor maps a source type name to a target type identifier.
func (t *tables) typeFor(name string) (int, bool) {
	if id, ok := t.types[strings.ToLower(name)]; ok {
		return id, true
	}
	return t.defaultType, false
}

// priorityFor maps a source priority name to an urgency/impact pair.
func (t *tables) priorityFor(name string) (config.PriorityRef, bool) {
	if ref, ok := t.priority[strings.ToLower(name)]; ok {
		return ref, true
	}
	return t.defaultPriority, false
}

// terminal reports whether a status identifier is solved or closed.
func (t *tables) terminal(id int) bool {
	return (t.solved != 0 && id == t.solved) || (t.closed != 0 && id == t.closed)
}

// lowered copies a table with its keys folded to lower case.
func lowered[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[strings.ToLower(k)] = v
	}
	return dst
}
