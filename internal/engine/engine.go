// Package engine drives the batch migration: fetch a page of records from
// the source, transform each record, apply it to the target, checkpoint,
// repeat. The loop is resumable; after a crash the next run picks up at the
// cursor of the last fully applied batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/dates"
	"github.com/deskbridge/deskbridge/internal/domain"
	"github.com/deskbridge/deskbridge/internal/ports"
	"github.com/deskbridge/deskbridge/internal/resolve"
	"github.com/deskbridge/deskbridge/internal/state"
)

// referenceKinds are the target caches loaded before the first batch.
var referenceKinds = []domain.ReferenceKind{
	domain.KindUser,
	domain.KindGroup,
	domain.KindCategory,
	domain.KindLocation,
}

// Params carries the engine's collaborators. Config, Source, Target and
// Store are required; the rest default sensibly.
type Params struct {
	Config  config.Config
	Source  ports.Source
	Target  ports.Target
	Store   ports.CheckpointStore
	Tracker *resolve.Tracker
	Clock   clock.Clock
	Log     zerolog.Logger

	// Notify, when set, is called synchronously on every state change.
	Notify func(State)
}

// Engine owns one migration pipeline. It is safe for concurrent use in the
// sense that a second Run while one is underway fails fast with
// ErrAlreadyRunning.
type Engine struct {
	cfg      config.Config
	source   ports.Source
	target   ports.Target
	store    ports.CheckpointStore
	tracker  *resolve.Tracker
	resolver *resolve.Resolver
	dates    *dates.Converter
	clock    clock.Clock
	log      zerolog.Logger

	states  stateTracker
	running atomic.Bool

	tables *tables
}

// New builds an engine from its collaborators.
func New(p Params) (*Engine, error) {
	if p.Source == nil || p.Target == nil || p.Store == nil {
		return nil, errors.New("engine: source, target and store are required")
	}
	if p.Config.Migration.BatchSize <= 0 {
		return nil, errors.New("engine: batch size must be positive")
	}
	conv, err := dates.NewConverter(p.Config.Migration.Timezone)
	if err != nil {
		return nil, err
	}
	if p.Tracker == nil {
		p.Tracker = resolve.NewTracker()
	}
	if p.Clock == nil {
		p.Clock = clock.WallClock
	}

	e := &Engine{
		cfg:      p.Config,
		source:   p.Source,
		target:   p.Target,
		store:    p.Store,
		tracker:  p.Tracker,
		resolver: resolve.NewResolver(p.Target, p.Tracker, p.Config.Defaults, p.Log),
		dates:    conv,
		clock:    p.Clock,
		log:      p.Log.With().Str("component", "engine").Logger(),
	}
	e.states.notify = p.Notify
	return e, nil
}

// State reports the phase the engine is currently in.
func (e *Engine) State() State {
	return e.states.State()
}

// Run executes one migration to completion. It resumes from the saved
// checkpoint; a fatal error leaves the checkpoint describing the last fully
// applied batch, so the next Run picks up there. The returned summary is
// valid even when the error is not nil.
func (e *Engine) Run(ctx context.Context) (*domain.Summary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, domain.ErrAlreadyRunning
	}
	defer e.running.Store(false)

	sum := &domain.Summary{
		RunID:   uuid.NewString(),
		Started: e.clock.Now(),
	}
	defer func() {
		sum.Finished = e.clock.Now()
		sum.Missing = e.tracker.Len()
	}()

	e.states.set(StateResuming)

	if err := e.target.OpenSession(ctx); err != nil {
		return e.fail(sum, fmt.Errorf("open session: %w", err))
	}
	defer e.closeSession()
	defer e.saveReport()

	for _, kind := range referenceKinds {
		if err := e.target.LoadReferenceCache(ctx, kind); err != nil {
			return e.fail(sum, fmt.Errorf("load %s cache: %w", kind, err))
		}
	}
	if err := e.resolver.CheckFallbacks(); err != nil {
		return e.fail(sum, err)
	}
	tbl, err := e.buildTables(ctx)
	if err != nil {
		return e.fail(sum, err)
	}
	e.tables = tbl

	var cp state.Checkpoint
	single := e.cfg.Migration.OnlyRecord != ""
	if !single {
		if cp, err = e.store.Load(ctx); err != nil {
			return e.fail(sum, err)
		}
	}
	sum.StartCursor = cp.Cursor
	sum.FinalCursor = cp.Cursor

	if cp.Cursor == 0 && !single && !e.cfg.Migration.DryRun {
		e.syncSecurityCategories(ctx)
	}

	query := e.cfg.Source.Query()
	if single {
		query = fmt.Sprintf("key = %s", e.cfg.Migration.OnlyRecord)
	}
	e.log.Info().
		Str("run", sum.RunID).
		Str("query", query).
		Int("cursor", cp.Cursor).
		Bool("dry_run", e.cfg.Migration.DryRun).
		Msg("migration starting")

	for {
		limit := e.cfg.Migration.BatchSize
		if max := e.cfg.Migration.MaxRecords; max > 0 {
			remaining := max - sum.Fetched
			if remaining <= 0 {
				break
			}
			if remaining < limit {
				limit = remaining
			}
		}

		e.states.set(StateFetching)
		issues, total, err := e.source.Search(ctx, query, cp.Cursor, limit)
		if err != nil {
			return e.fail(sum, fmt.Errorf("search at %d: %w", cp.Cursor, err))
		}
		sum.Total = total
		if len(issues) == 0 {
			break
		}

		batch := domain.NewBatch(cp.Cursor)
		for _, iss := range issues {
			batch.Add(iss)
		}
		if err := e.processBatch(ctx, batch); err != nil {
			return e.fail(sum, err)
		}

		sum.Fetched += batch.Size()
		sum.Created += batch.Created()
		sum.Skipped += batch.SkippedCount()

		e.states.set(StateCheckpointing)
		cp = cp.Advanced(batch.Advance(), batch.Created(), e.clock.Now())
		if !single && !e.cfg.Migration.DryRun {
			if err := e.store.Save(ctx, cp); err != nil {
				return e.fail(sum, fmt.Errorf("save checkpoint: %w", err))
			}
		}
		sum.FinalCursor = cp.Cursor

		e.log.Info().
			Int("cursor", cp.Cursor).
			Int("total", total).
			Int("created", batch.Created()).
			Int("skipped", batch.SkippedCount()).
			Msg("batch applied")

		if single || cp.Cursor >= total {
			break
		}
		if err := e.pause(ctx); err != nil {
			return e.fail(sum, err)
		}
	}

	e.states.set(StateDone)
	e.log.Info().
		Int("fetched", sum.Fetched).
		Int("created", sum.Created).
		Int("skipped", sum.Skipped).
		Int("missing", e.tracker.Len()).
		Msg("migration finished")
	return sum, nil
}

// processBatch transforms then applies every record in the batch. A record
// failure is recorded as a skip; only context cancellation surfaces as an
// error, so a batch is never half-counted.
func (e *Engine) processBatch(ctx context.Context, batch *domain.Batch) error {
	e.states.set(StateTransforming)
	payloads := make([]*payload, batch.Size())
	errs := make([]error, batch.Size())
	for i, iss := range batch.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := e.transform(ctx, iss)
		if err != nil {
			errs[i] = &domain.RecordError{Key: iss.Key, Stage: "transform", Err: err}
			continue
		}
		payloads[i] = p
	}

	e.states.set(StateApplying)
	for i, iss := range batch.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs[i] != nil {
			e.log.Warn().Err(errs[i]).Msg("record skipped")
			batch.Finish(domain.RecordOutcome{Key: iss.Key, Err: errs[i]})
			continue
		}
		if e.cfg.Migration.DryRun {
			e.log.Info().Str("key", iss.Key).Msg("dry run, record not applied")
			batch.Finish(domain.RecordOutcome{Key: iss.Key})
			continue
		}
		id, err := e.apply(ctx, payloads[i])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rerr := &domain.RecordError{Key: iss.Key, Stage: "apply", Err: err}
			e.log.Warn().Err(rerr).Msg("record skipped")
			batch.Finish(domain.RecordOutcome{Key: iss.Key, Err: rerr})
			continue
		}
		e.log.Info().Str("key", iss.Key).Int("ticket", id).Msg("record migrated")
		batch.Finish(domain.RecordOutcome{Key: iss.Key, TargetID: id})
	}
	return nil
}

// apply writes one transformed record to the target. Only the ticket
// creation itself can fail the record; the trimmings are each tried once
// and logged when they fall off.
func (e *Engine) apply(ctx context.Context, p *payload) (int, error) {
	id, err := e.target.CreateTicket(ctx, p.fields)
	if err != nil {
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	log := e.log.With().Str("key", p.key).Int("ticket", id).Logger()

	for _, it := range p.items {
		if err := e.target.LinkItem(ctx, id, it.itemType, it.id); err != nil {
			log.Warn().Err(err).Str("itemtype", it.itemType).Msg("link item")
		}
	}
	for _, att := range p.attachments {
		if err := e.applyAttachment(ctx, id, att); err != nil {
			log.Warn().Err(err).Str("filename", att.Filename).Msg("migrate attachment")
		}
	}
	added := 0
	for _, f := range p.followups {
		if err := e.target.AddFollowup(ctx, id, f.authorID, f.content, f.date); err != nil {
			log.Warn().Err(err).Msg("add followup")
			continue
		}
		added++
	}
	// Stock business rules reopen a ticket when a followup lands on it, so
	// terminal statuses are written again once the followups are in.
	if p.closing != nil && added > 0 {
		if err := e.target.UpdateTicket(ctx, id, p.closing); err != nil {
			log.Warn().Err(err).Msg("reassert status")
		}
	}
	return id, nil
}

// applyAttachment moves one attachment: download from the source, upload to
// the target, link to the ticket.
func (e *Engine) applyAttachment(ctx context.Context, ticketID int, att domain.Attachment) error {
	data, err := e.source.AttachmentContent(ctx, att.ContentURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	docID, err := e.target.UploadDocument(ctx, att.Filename, data)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if err := e.target.LinkDocument(ctx, docID, ticketID); err != nil {
		return fmt.Errorf("link document %d: %w", docID, err)
	}
	return nil
}

// syncSecurityCategories makes sure every source security level has a
// matching target category before the first record is written. It only runs
// on a fresh start; a failure costs category resolution later, not the run.
func (e *Engine) syncSecurityCategories(ctx context.Context) {
	levels, err := e.source.SecurityLevels(ctx, e.cfg.Source.Project)
	if err != nil {
		e.log.Warn().Err(err).Msg("list security levels")
		return
	}
	for _, level := range levels {
		if level == "" || level == "None" {
			continue
		}
		if _, err := e.target.EnsureCategory(ctx, level); err != nil {
			e.log.Warn().Err(err).Str("level", level).Msg("ensure category")
		}
	}
}

// pause waits the configured delay between batches, so a long run does not
// hammer either service.
func (e *Engine) pause(ctx context.Context) error {
	d := e.cfg.Migration.BatchPause
	if d <= 0 {
		return nil
	}
	select {
	case <-e.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeSession ends the target session on a fresh context, so teardown
// still happens when the run context is already canceled.
func (e *Engine) closeSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.target.CloseSession(ctx); err != nil {
		e.log.Warn().Err(err).Msg("close session")
	}
}

// saveReport writes the missing-identity report collected during the run.
func (e *Engine) saveReport() {
	if e.cfg.Migration.MissingReport == "" {
		return
	}
	if err := e.tracker.SaveReport(e.cfg.Migration.MissingReport); err != nil {
		e.log.Error().Err(err).Msg("write missing report")
	}
}

func (e *Engine) fail(sum *domain.Summary, err error) (*domain.Summary, error) {
	e.states.set(StateFailed)
	e.log.Error().Err(err).Msg("migration failed")
	return sum, err
}
