// Package engine implements the fetch orchestration state machine: it
// drives a resolved source adapter through the rate limiter and retry
// policy, persists progress after every chapter, and emits the assembled
// book model on completion.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bindery/internal/book"
	"bindery/internal/metrics"
	"bindery/internal/progress"
	"bindery/internal/ratelimit"
	"bindery/internal/retry"
	"bindery/internal/source"
)

// State is the lifecycle state of a job run.
type State string

// Job states. Failed is reachable from any state; Paused only from
// chapter fetching, via cooperative cancellation at chapter boundaries.
const (
	StateResolving        State = "resolving"
	StateFetchingCatalog  State = "fetching_catalog"
	StateFetchingChapters State = "fetching_chapters"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StatePaused           State = "paused"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Assembler consumes the completed model and produces the final artifact.
// How the model is rendered is not the engine's concern.
type Assembler interface {
	Assemble(ctx context.Context, b *book.Book) (string, error)
}

// RunOptions are the per-run knobs.
type RunOptions struct {
	// ContinueOnError records a permanent gap instead of failing the job
	// when a chapter fetch fails terminally.
	ContinueOnError bool

	// Refresh forces re-fetching of chapters already recorded complete.
	Refresh bool

	// Offset skips the first N chapters of the catalog.
	Offset int

	// Limit bounds how many chapters this run processes; 0 means all.
	Limit int
}

// Result summarizes a run. The Book is populated only when the run
// completed; Gaps are always enumerated, never silent.
type Result struct {
	RunID         string
	JobKey        string
	Identifier    string
	Source        string
	State         State
	Completed     []int
	Gaps          map[int]string
	Drift         []string
	LastCompleted int
	Book          *book.Book
	OutputPath    string
}

// Engine coordinates one or more job runs. It owns no per-job state;
// distinct jobs may run concurrently and share only the rate limiter and
// the progress store, both of which serialize internally.
type Engine struct {
	registry  *source.Registry
	limiter   *ratelimit.Limiter
	policy    *retry.Policy
	store     progress.Store
	assembler Assembler
	clock     Clock
	logger    *zap.Logger
}

// New constructs an Engine. The assembler may be nil, in which case the
// completed model is returned on the Result without producing an artifact.
func New(
	registry *source.Registry,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	store progress.Store,
	assembler Assembler,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry:  registry,
		limiter:   limiter,
		policy:    policy,
		store:     store,
		assembler: assembler,
		clock:     clock,
		logger:    logger,
	}
}

// Run executes one job over identifier. A non-nil error always means the
// run did not complete; the returned Result carries the terminal state
// and whatever progress survives for the next run.
func (e *Engine) Run(ctx context.Context, identifier string, opts RunOptions) (Result, error) {
	res := Result{
		RunID:         uuid.NewString(),
		Identifier:    identifier,
		State:         StateResolving,
		LastCompleted: -1,
	}
	log := e.logger.With(zap.String("run_id", res.RunID), zap.String("identifier", identifier))

	adapter, err := e.registry.Resolve(identifier)
	if err != nil {
		// Resolution failures create no progress state.
		res.State = StateFailed
		return res, fmt.Errorf("resolve source: %w", err)
	}
	res.Source = adapter.Name()
	res.JobKey = progress.JobKey(identifier)
	log = log.With(zap.String("source", res.Source), zap.String("job_key", res.JobKey))

	res.State = StateFetchingCatalog
	rec, err := e.fetchCatalog(ctx, adapter, identifier, &res, log)
	if err != nil {
		res.State = StateFailed
		return res, err
	}

	res.State = StateFetchingChapters
	rec, err = e.fetchChapters(ctx, adapter, rec, opts, &res, log)
	if err != nil {
		res.fill(rec)
		return res, err
	}
	if res.State == StatePaused {
		res.fill(rec)
		log.Info("run paused", zap.Ints("completed", res.Completed))
		return res, nil
	}

	b, err := e.assemble(ctx, rec, opts)
	if err != nil {
		res.State = StateFailed
		res.fill(rec)
		return res, err
	}

	res.State = StateCompleted
	res.Book = b
	res.fill(rec)

	if e.assembler != nil {
		path, err := e.assembler.Assemble(ctx, b)
		if err != nil {
			res.State = StateFailed
			return res, fmt.Errorf("assemble output: %w", err)
		}
		res.OutputPath = path
	}
	log.Info("run completed",
		zap.Int("chapters", b.ChapterCount()),
		zap.Ints("gaps", b.GapIndices()),
	)
	return res, nil
}

// fetchCatalog fetches and reconciles the catalog, then persists the
// merged record. The prior record, if any, is never shrunk.
func (e *Engine) fetchCatalog(
	ctx context.Context,
	adapter source.Adapter,
	identifier string,
	res *Result,
	log *zap.Logger,
) (progress.Record, error) {
	prior, err := e.store.Load(ctx, res.JobKey)
	hasPrior := err == nil
	if err != nil && !errors.Is(err, progress.ErrNotFound) {
		return progress.Record{}, fmt.Errorf("load progress: %w", err)
	}

	if err := e.limiter.Wait(ctx, adapter.Name()); err != nil {
		return progress.Record{}, err
	}

	var fresh source.Catalog
	err = e.policy.Do(ctx, adapter.Name(), func(ctx context.Context) error {
		c, ferr := adapter.FetchCatalog(ctx, identifier)
		if ferr != nil {
			return ferr
		}
		fresh = c
		return nil
	})
	if err != nil {
		metrics.FetchFailures.WithLabelValues(adapter.Name(), source.KindOf(err).String()).Inc()
		return progress.Record{}, fmt.Errorf("fetch catalog: %w", err)
	}
	if err := validateCatalog(fresh); err != nil {
		return progress.Record{}, err
	}

	rec := progress.Record{
		JobKey:     res.JobKey,
		Identifier: identifier,
		Source:     adapter.Name(),
		Catalog:    fresh,
		Completed:  make(map[int]progress.Entry),
	}
	if hasPrior {
		rec.Completed = prior.Completed
		rec.Gaps = prior.Gaps
		var drift []string
		rec.Catalog, drift = reconcile(prior, fresh)
		for _, warning := range drift {
			log.Warn("catalog drift", zap.String("detail", warning))
			metrics.CatalogDrift.WithLabelValues(adapter.Name()).Inc()
		}
		res.Drift = drift
	}
	if rec.Completed == nil {
		rec.Completed = make(map[int]progress.Entry)
	}
	rec.UpdatedAt = e.clock.Now()

	if err := e.store.Save(ctx, rec); err != nil {
		return progress.Record{}, fmt.Errorf("save progress: %w", err)
	}
	return rec, nil
}

// fetchChapters walks the chapter window in strictly ascending index
// order, skipping indices already completed or gapped, and persists after
// every success. Cancellation is honored between chapters only.
func (e *Engine) fetchChapters(
	ctx context.Context,
	adapter source.Adapter,
	rec progress.Record,
	opts RunOptions,
	res *Result,
	log *zap.Logger,
) (progress.Record, error) {
	for _, ref := range window(rec.Catalog.Chapters, opts) {
		if ctx.Err() != nil {
			res.State = StatePaused
			return rec, nil
		}
		if rec.Done(ref.Index) && !opts.Refresh {
			continue
		}

		if err := e.limiter.Wait(ctx, adapter.Name()); err != nil {
			if ctx.Err() != nil {
				res.State = StatePaused
				return rec, nil
			}
			res.State = StateFailed
			return rec, err
		}

		var content source.ChapterContent
		err := e.policy.Do(ctx, adapter.Name(), func(ctx context.Context) error {
			c, ferr := adapter.FetchChapter(ctx, ref)
			if ferr != nil {
				return ferr
			}
			content = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				res.State = StatePaused
				return rec, nil
			}
			metrics.FetchFailures.WithLabelValues(adapter.Name(), source.KindOf(err).String()).Inc()
			if !opts.ContinueOnError {
				res.State = StateFailed
				return rec, fmt.Errorf("fetch chapter %d: %w", ref.Index, err)
			}

			reason := err.Error()
			if serr := e.store.RecordGap(ctx, res.JobKey, ref.Index, reason); serr != nil {
				res.State = StateFailed
				return rec, fmt.Errorf("record gap %d: %w", ref.Index, serr)
			}
			if rec.Gaps == nil {
				rec.Gaps = make(map[int]string)
			}
			rec.Gaps[ref.Index] = reason
			metrics.ChapterGaps.WithLabelValues(adapter.Name()).Inc()
			log.Warn("chapter recorded as gap", zap.Int("index", ref.Index), zap.Error(err))
			continue
		}

		if content.FetchedAt.IsZero() {
			content.FetchedAt = e.clock.Now()
		}
		if err := e.store.AppendChapter(ctx, res.JobKey, ref, content); err != nil {
			res.State = StateFailed
			return rec, fmt.Errorf("persist chapter %d: %w", ref.Index, err)
		}
		rec.Completed[ref.Index] = progress.Entry{
			Index:     ref.Index,
			Title:     ref.Title,
			Location:  ref.Locator,
			FetchedAt: content.FetchedAt,
		}
		// A refreshed fetch heals a previously gapped index; the store
		// cleared its marker as part of the append.
		delete(rec.Gaps, ref.Index)
		metrics.ChaptersFetched.WithLabelValues(adapter.Name()).Inc()
		log.Debug("chapter fetched", zap.Int("index", ref.Index), zap.String("title", ref.Title))
	}
	return rec, nil
}

// assemble builds the completed model from the store so a resumed run
// emits previously fetched bodies too.
func (e *Engine) assemble(ctx context.Context, rec progress.Record, opts RunOptions) (*book.Book, error) {
	refs := window(rec.Catalog.Chapters, opts)
	items := make([]book.Item, 0, len(refs))
	for _, ref := range refs {
		// Completed content wins over a stale gap marker.
		if _, done := rec.Completed[ref.Index]; !done {
			if reason, ok := rec.Gaps[ref.Index]; ok {
				items = append(items, book.Item{Ref: ref, GapReason: reason})
				continue
			}
		}
		content, err := e.store.Chapter(ctx, rec.JobKey, ref.Index)
		if err != nil {
			return nil, fmt.Errorf("read back chapter %d: %w", ref.Index, err)
		}
		items = append(items, book.Item{Ref: ref, Content: &content})
	}
	return &book.Book{
		Identifier: rec.Identifier,
		Source:     rec.Source,
		Catalog:    rec.Catalog,
		Items:      items,
	}, nil
}

func (r *Result) fill(rec progress.Record) {
	r.Completed = rec.CompletedIndices()
	r.Gaps = rec.Gaps
	if n := len(r.Completed); n > 0 {
		r.LastCompleted = r.Completed[n-1]
	}
}

// window applies offset/limit to the catalog's chapter list.
func window(refs []source.ChapterRef, opts RunOptions) []source.ChapterRef {
	if opts.Offset >= len(refs) {
		return nil
	}
	out := refs
	if opts.Offset > 0 {
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out
}

// validateCatalog enforces the contiguous 0-based index invariant on
// adapter output.
func validateCatalog(c source.Catalog) error {
	for i, ref := range c.Chapters {
		if ref.Index != i {
			return source.NewError(
				source.KindContent,
				"validate catalog",
				c.Title,
				fmt.Errorf("chapter at position %d has index %d", i, ref.Index),
			)
		}
	}
	return nil
}

// reconcile merges a freshly fetched catalog against the prior record.
// Completed chapters keep the refs they were fetched under: a shrunken
// list or a changed locator produces a drift warning, never a rewrite of
// completed state.
func reconcile(prior progress.Record, fresh source.Catalog) (source.Catalog, []string) {
	merged := fresh
	merged.Chapters = append([]source.ChapterRef(nil), fresh.Chapters...)
	var drift []string

	if len(fresh.Chapters) < len(prior.Catalog.Chapters) {
		drift = append(drift, fmt.Sprintf(
			"chapter count shrank from %d to %d; keeping prior tail",
			len(prior.Catalog.Chapters), len(fresh.Chapters),
		))
		merged.Chapters = append(merged.Chapters, prior.Catalog.Chapters[len(fresh.Chapters):]...)
	}

	for _, idx := range prior.CompletedIndices() {
		entry := prior.Completed[idx]
		if idx >= len(merged.Chapters) {
			// Completed beyond every known ref; resurrect from the entry.
			drift = append(drift, fmt.Sprintf("completed chapter %d missing from catalog", idx))
			for len(merged.Chapters) <= idx {
				merged.Chapters = append(merged.Chapters, source.ChapterRef{Index: len(merged.Chapters)})
			}
			merged.Chapters[idx] = source.ChapterRef{Index: idx, Locator: entry.Location, Title: entry.Title}
			continue
		}
		if merged.Chapters[idx].Locator != entry.Location {
			drift = append(drift, fmt.Sprintf(
				"locator changed for completed chapter %d (%s -> %s)",
				idx, entry.Location, merged.Chapters[idx].Locator,
			))
			merged.Chapters[idx] = source.ChapterRef{Index: idx, Locator: entry.Location, Title: entry.Title}
		}
	}
	return merged, drift
}
