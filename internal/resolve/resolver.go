// Package resolve maps source-side identities and reference names to target
// identifiers. Resolution is lookup-only against the target's loaded
// reference caches: a miss is a business outcome answered with a configured
// fallback, never an error, so one unknown login can't sink a batch.
package resolve

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/domain"
	"github.com/deskbridge/deskbridge/internal/ports"
)

// Resolver answers name→ID questions during transform. Unresolved logins
// are recorded on the tracker for the end-of-run report; category and
// location misses are only logged.
type Resolver struct {
	dir      ports.ReferenceDirectory
	tracker  *Tracker
	defaults config.DefaultsConfig
	log      zerolog.Logger
}

// NewResolver returns a resolver reading from dir and reporting identity
// misses to tracker.
func NewResolver(dir ports.ReferenceDirectory, tracker *Tracker, defaults config.DefaultsConfig, log zerolog.Logger) *Resolver {
	return &Resolver{
		dir:      dir,
		tracker:  tracker,
		defaults: defaults,
		log:      log.With().Str("component", "resolve").Logger(),
	}
}

// User resolves a source actor to a target user ID. A cache hit returns
// (id, false). A miss or an empty login returns the configured fallback
// user's ID and true; misses with a login are recorded on the tracker. An
// unconfigured fallback yields 0, which callers treat as "leave the field
// unset".
func (r *Resolver) User(actor domain.Actor) (int, bool) {
	if actor.Login != "" {
		if id, ok := r.dir.ResolveByName(domain.KindUser, actor.Login); ok {
			return id, false
		}
		r.tracker.Record(actor.Login, actor.DisplayName)
		r.log.Debug().
			Str("login", actor.Login).
			Str("display", actor.DisplayName).
			Msg("user not found on target")
	}
	return r.fallback(domain.KindUser, r.defaults.User), true
}

// Category resolves a category name to a target ID, falling back to the
// configured default category.
func (r *Resolver) Category(name string) (int, bool) {
	return r.lookup(domain.KindCategory, name, r.defaults.Category)
}

// Location resolves a location name to a target ID, falling back to the
// configured default location.
func (r *Resolver) Location(name string) (int, bool) {
	return r.lookup(domain.KindLocation, name, r.defaults.Location)
}

// lookup is the shared non-identity path: hit → (id, false); miss or empty
// name → (fallback id, true). Misses are logged but not tracked, because
// the missing report is about people.
func (r *Resolver) lookup(kind domain.ReferenceKind, name, fallbackName string) (int, bool) {
	if name != "" {
		if id, ok := r.dir.ResolveByName(kind, name); ok {
			return id, false
		}
		r.log.Debug().
			Str("kind", string(kind)).
			Str("name", name).
			Msg("reference not found on target")
	}
	return r.fallback(kind, fallbackName), true
}

// fallback resolves a configured fallback name; unconfigured or unknown
// names yield 0.
func (r *Resolver) fallback(kind domain.ReferenceKind, name string) int {
	if name == "" {
		return 0
	}
	id, _ := r.dir.ResolveByName(kind, name)
	return id
}

// CheckFallbacks verifies every configured fallback name against the loaded
// caches. It runs once after the caches are loaded so a typo in the config
// fails the run up front instead of silently zeroing a field on every
// record.
func (r *Resolver) CheckFallbacks() error {
	checks := []struct {
		key  string
		kind domain.ReferenceKind
		name string
	}{
		{"defaults.user", domain.KindUser, r.defaults.User},
		{"defaults.category", domain.KindCategory, r.defaults.Category},
		{"defaults.location", domain.KindLocation, r.defaults.Location},
	}

	var bad []string
	for _, c := range checks {
		if c.name == "" {
			continue
		}
		if _, ok := r.dir.ResolveByName(c.kind, c.name); !ok {
			bad = append(bad, fmt.Sprintf("%s %q", c.key, c.name))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("fallbacks not found on target: %s", strings.Join(bad, ", "))
	}
	return nil
}
