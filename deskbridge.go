// Package deskbridge migrates service-desk tickets from a Jira-style
// issue tracker into a GLPI-style helpdesk in resumable batches.
//
// Example usage:
//
//	cfg := deskbridge.DefaultConfig()
//	cfg.Source.URL = "https://issues.example.com"
//	cfg.Source.Token = "api-token"
//	cfg.Source.Project = "SUP"
//	cfg.Target.URL = "https://desk.example.com/apirest.php"
//	cfg.Target.AppToken = "app-token"
//	cfg.Target.UserToken = "user-token"
//	sum, err := deskbridge.Run(context.Background(), cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("migrated %d of %d records\n", sum.Created, sum.Total)
//
// Progress is checkpointed after every fully applied batch, so a killed run
// restarted with the same state file picks up where it stopped.
package deskbridge

import (
	"context"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/deskbridge/deskbridge/internal/adapters/glpi"
	"github.com/deskbridge/deskbridge/internal/adapters/jira"
	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/domain"
	"github.com/deskbridge/deskbridge/internal/engine"
	"github.com/deskbridge/deskbridge/internal/ports"
	"github.com/deskbridge/deskbridge/internal/state"
	"github.com/deskbridge/deskbridge/internal/transport"
)

// Config is the fully resolved runtime configuration for one migration run.
// Use DefaultConfig() to get a Config with sensible defaults, or
// config.Load to resolve documents, environment and flags.
type Config = config.Config

// Summary aggregates the outcome of one migration run.
type Summary = domain.Summary

// State is the phase a running migration is in.
type State = engine.State

// MissingEntity is a source identity with no account on the target system.
type MissingEntity = domain.MissingEntity

// DefaultConfig returns a Config with default values. At minimum the source
// and target URLs and credentials must be set before calling Run.
func DefaultConfig() Config {
	return config.Default()
}

// Option adjusts how Run assembles the migration.
type Option func(*options)

type options struct {
	log    zerolog.Logger
	logSet bool
	clock  clock.Clock
	source ports.Source
	target ports.Target
	store  ports.CheckpointStore
	notify func(State)
}

// WithLogger routes the migration's log output through log. Without it the
// migration runs silently.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
		o.logSet = true
	}
}

// WithClock substitutes the clock used for retry backoff, batch pacing and
// timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSourceClient replaces the built-in source client.
func WithSourceClient(s ports.Source) Option {
	return func(o *options) { o.source = s }
}

// WithTargetClient replaces the built-in target client.
func WithTargetClient(t ports.Target) Option {
	return func(o *options) { o.target = t }
}

// WithCheckpointStore replaces the on-disk checkpoint store.
func WithCheckpointStore(s ports.CheckpointStore) Option {
	return func(o *options) { o.store = s }
}

// WithStateNotify registers fn to be called synchronously on every phase
// change of the run.
func WithStateNotify(fn func(State)) Option {
	return func(o *options) { o.notify = fn }
}

// Run executes one migration run and blocks until it finishes. The returned
// summary is valid even when the error is not nil.
func Run(ctx context.Context, cfg Config, opts ...Option) (*Summary, error) {
	e, err := NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

// NewEngine assembles a migration engine without starting it, for callers
// that want to watch its state or control when Run happens.
func NewEngine(cfg Config, opts ...Option) (*engine.Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if !o.logSet {
		log = zerolog.Nop()
	}

	source := o.source
	if source == nil {
		httpClient, err := transport.NewHTTPClient(cfg.Source.TLS, cfg.Source.Timeout)
		if err != nil {
			return nil, err
		}
		source = jira.NewClient(jira.Config{
			BaseURL:             cfg.Source.URL,
			Token:               cfg.Source.Token,
			RequestTypeField:    cfg.Fields.RequestType,
			ClassificationField: cfg.Fields.Classification,
			ParticipantsField:   cfg.Fields.Participants,
		}, httpClient, &transport.Caller{Clock: o.clock, Log: log}, log)
	}

	target := o.target
	if target == nil {
		httpClient, err := transport.NewHTTPClient(cfg.Target.TLS, cfg.Target.Timeout)
		if err != nil {
			return nil, err
		}
		target = glpi.NewClient(glpi.Config{
			BaseURL:   cfg.Target.URL,
			AppToken:  cfg.Target.AppToken,
			UserToken: cfg.Target.UserToken,
			Username:  cfg.Target.Username,
			Password:  cfg.Target.Password,
		}, httpClient, &transport.Caller{Clock: o.clock, Log: log}, log)
	}

	store := o.store
	if store == nil {
		store = state.NewFileStore(cfg.Migration.StateFile)
	}

	return engine.New(engine.Params{
		Config: cfg,
		Source: source,
		Target: target,
		Store:  store,
		Clock:  o.clock,
		Log:    log,
		Notify: o.notify,
	})
}
