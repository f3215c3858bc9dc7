// Package replay drives historical transactions through the sandbox. Each
// replay runs up to four attempts, every attempt adding hydration on top
// of the previous one, until local effects match the chain or the failure
// is classified as unrecoverable.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/progress"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/telemetry"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/reconstruct"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"go.uber.org/atomic"
)

var ErrNoTransactionSource = errors.New("no transaction source configured")

const (
	MaxAttempts = 4

	DefaultGasBudgetMultiplier = 10
)

// Level is the hydration an attempt runs with
type Level int

const (
	LevelInputs Level = iota + 1
	LevelChildFetcher
	LevelEagerPrefetch
	LevelPredictivePrefetch
)

func (l Level) String() string {
	switch l {
	case LevelInputs:
		return "inputs"
	case LevelChildFetcher:
		return "child-fetcher"
	case LevelEagerPrefetch:
		return "eager-prefetch"
	case LevelPredictivePrefetch:
		return "predictive-prefetch"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

type Config struct {
	// MaxAttempts bounds the attempts of one replay, at most four
	MaxAttempts int
	// DynamicFieldPrefetch enables child enumeration from the third attempt
	DynamicFieldPrefetch bool
	// PredictivePrefetch enables bytecode analysis on the fourth attempt
	PredictivePrefetch bool
	PrefetchDepth      int
	PrefetchLimit      int
	AnalysisDepth      int
	// VersionPatch lets a VersionMismatch turn on the version-lock patcher
	VersionPatch bool
	// GasBudgetMultiplier raises the budget after a GasExhaustion
	GasBudgetMultiplier uint64
	Reconstruct         reconstruct.Options
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:          MaxAttempts,
		DynamicFieldPrefetch: true,
		PredictivePrefetch:   true,
		PrefetchDepth:        DefaultPrefetchDepth,
		PrefetchLimit:        DefaultPrefetchLimit,
		AnalysisDepth:        DefaultAnalysisDepth,
		VersionPatch:         false,
		GasBudgetMultiplier:  DefaultGasBudgetMultiplier,
		Reconstruct:          reconstruct.Options{Parallelism: reconstruct.DefaultParallelism},
	}
}

// Attempt records one pass of a replay
type Attempt struct {
	Number       int           `json:"number"`
	Level        Level         `json:"level"`
	Class        Class         `json:"class,omitempty"`
	Hint         string        `json:"hint,omitempty"`
	LocalSuccess bool          `json:"local_success"`
	Prefetched   int           `json:"prefetched,omitempty"`
	Patched      int           `json:"patched,omitempty"`
	GasBudget    uint64        `json:"gas_budget"`
	Duration     time.Duration `json:"duration_ns"`
}

// Outcome is the result of a replay. State, Result and Comparison belong
// to the last attempt.
type Outcome struct {
	RunID       string
	Digest      types.Digest
	Attempts    []Attempt
	Class       Class
	State       *types.ReplayState
	Diagnostics *reconstruct.Diagnostics
	Result      *ptb.Result
	Comparison  *ComparisonResult
	// Err is the execution error of the last attempt, if it did not run
	Err error
	// Hints collects non-fatal problems seen along the way
	Hints []string
}

// Success reports whether the last attempt needed no further hydration
func (o *Outcome) Success() bool {
	return o.Class == ClassNone && o.Result != nil
}

// Option configures an Engine
type Option func(*Engine)

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = NewDummyMetrics(m)
	}
}

func WithTracer(t telemetry.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithVersionIndex lets the child fetcher resolve versions from a cache
func WithVersionIndex(idx VersionIndex) Option {
	return func(e *Engine) {
		e.index = idx
	}
}

// Stats counts the replays of an engine
type Stats struct {
	Replays   uint64
	Succeeded uint64
	Attempts  uint64
}

type Engine struct {
	logger  hclog.Logger
	sources source.Bundle
	cfg     Config
	index   VersionIndex
	metrics *Metrics
	tracer  telemetry.Tracer
	series  *progress.ProgressionWrapper

	replays   atomic.Uint64
	succeeded atomic.Uint64
	attempts  atomic.Uint64
}

func NewEngine(logger hclog.Logger, sources source.Bundle, cfg Config, opts ...Option) *Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if cfg.MaxAttempts <= 0 || cfg.MaxAttempts > MaxAttempts {
		cfg.MaxAttempts = MaxAttempts
	}

	if cfg.GasBudgetMultiplier <= 1 {
		cfg.GasBudgetMultiplier = DefaultGasBudgetMultiplier
	}

	e := &Engine{
		logger:  logger.Named("replay"),
		sources: sources,
		cfg:     cfg,
		metrics: NilMetrics(),
		tracer:  telemetry.NewNilTracerProvider(context.Background()).NewTracer("replay"),
		series:  progress.NewProgressionWrapper(progress.SyncSeries),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) Stats() Stats {
	return Stats{
		Replays:   e.replays.Load(),
		Succeeded: e.succeeded.Load(),
		Attempts:  e.attempts.Load(),
	}
}

// Replay fetches the transaction with digest and replays it
func (e *Engine) Replay(ctx context.Context, digest types.Digest) (*Outcome, error) {
	if e.sources.Transactions == nil {
		return nil, ErrNoTransactionSource
	}

	tx, err := e.sources.Transactions.FetchTransaction(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("fetch transaction %s: %w", digest, err)
	}

	return e.ReplayTransaction(ctx, tx, nil)
}

// ReplayState replays the transaction of a portable replay state. Its
// objects and packages seed every attempt.
func (e *Engine) ReplayState(ctx context.Context, st *types.ReplayState) (*Outcome, error) {
	tx := st.Transaction

	return e.ReplayTransaction(ctx, &tx, st)
}

// ReplayTransaction runs the attempt state machine over tx. base seeds the
// state and may be nil. Only infrastructure failures are returned as
// errors; replay failures are described by the outcome.
func (e *Engine) ReplayTransaction(
	ctx context.Context,
	tx *types.FetchedTransaction,
	base *types.ReplayState,
) (*Outcome, error) {
	start := time.Now()

	span := e.tracer.StartWithContext(ctx, "replay")
	defer span.End()

	ctx = span.Context()

	out := &Outcome{RunID: uuid.NewString(), Digest: tx.Digest}

	span.SetAttributes(map[string]interface{}{
		"run_id": out.RunID,
		"digest": tx.Digest.String(),
	})

	e.replays.Inc()
	e.metrics.replaysInc()

	r := &run{
		Engine: e,
		tx:     tx,
		out:    out,
		opts:   e.cfg.Reconstruct,
		budget: tx.Gas.Budget,
		pf: newPrefetcher(
			e.logger,
			e.sources.Transactions,
			e.sources.DynamicFields,
			e.index,
			tx.Checkpoint,
			e.cfg.PrefetchLimit,
		),
	}

	working := base

	for n := 1; n <= e.cfg.MaxAttempts; n++ {
		st, err := r.attempt(ctx, n, working)
		if err != nil {
			span.Fail(err)

			return nil, err
		}

		if out.Class == ClassNone || !out.Class.Recoverable() {
			break
		}

		r.escalate(out.Class)

		working = st
	}

	if out.Success() {
		e.succeeded.Inc()
		span.SetStatus(telemetry.Ok, "")
	} else {
		span.SetStatus(telemetry.Error, out.Class.label())
	}

	e.metrics.outcomeInc(out.Class)
	e.metrics.replayObserve(time.Since(start))

	e.logger.Info("replay finished",
		"run", out.RunID,
		"digest", tx.Digest,
		"attempts", len(out.Attempts),
		"outcome", out.Class.label(),
	)

	return out, nil
}

// run is the state of one replay across attempts
type run struct {
	*Engine

	tx     *types.FetchedTransaction
	out    *Outcome
	opts   reconstruct.Options
	budget uint64
	pf     *prefetcher
}

// escalate adjusts the next attempt to the failure class
func (r *run) escalate(class Class) {
	switch class {
	case ClassVersionMismatch:
		if r.cfg.VersionPatch && !r.opts.PatchVersions {
			r.opts.PatchVersions = true
			r.hint("enabling the version-lock patcher")
		}
	case ClassGasExhaustion:
		r.budget *= r.cfg.GasBudgetMultiplier
		r.hint(fmt.Sprintf("raising the gas budget to %d", r.budget))
	}
}

func (r *run) hint(h string) {
	r.out.Hints = append(r.out.Hints, h)
}

func levelFor(attempt int) Level {
	if attempt > int(LevelPredictivePrefetch) {
		return LevelPredictivePrefetch
	}

	return Level(attempt)
}

// attempt runs one pass and records it in the outcome. It returns the
// state the pass ran with.
func (r *run) attempt(ctx context.Context, n int, base *types.ReplayState) (*types.ReplayState, error) {
	start := time.Now()
	level := levelFor(n)

	span := r.tracer.StartWithContext(ctx, "attempt")
	defer span.End()

	ctx = span.Context()

	span.SetAttributes(map[string]interface{}{
		"attempt": n,
		"level":   level.String(),
	})

	r.attempts.Inc()
	r.metrics.attemptsInc()

	rec := reconstruct.New(r.logger, r.sources.Transactions, r.sources.Packages, r.opts)

	st, diag, err := rec.Build(ctx, r.tx, base)
	if err != nil {
		return nil, fmt.Errorf("attempt %d: %w", n, err)
	}

	record := Attempt{
		Number:    n,
		Level:     level,
		Patched:   len(diag.Patched),
		GasBudget: r.budget,
	}

	record.Prefetched += r.pf.merge(st)

	if level >= LevelEagerPrefetch && r.cfg.DynamicFieldPrefetch {
		added, err := r.pf.eager(ctx, st, r.cfg.PrefetchDepth)
		if err != nil {
			r.hint(fmt.Sprintf("eager prefetch: %v", err))
		}

		record.Prefetched += added
	}

	env, err := sandbox.FromReplayState(r.logger, st)
	if err != nil {
		return r.finish(span, st, diag, &record, nil, err, start), nil
	}

	if level >= LevelPredictivePrefetch && r.cfg.PredictivePrefetch {
		record.Prefetched += r.predict(ctx, env, st)
	}

	if level >= LevelChildFetcher {
		env.SetChildFetchers(r.pf.fetchers(ctx))
	}

	tx := r.tx
	if r.budget != tx.Gas.Budget {
		raised := *tx
		raised.Gas.Budget = r.budget
		tx = &raised
	}

	res, execErr := env.ExecuteTransaction(tx)

	return r.finish(span, st, diag, &record, res, execErr, start), nil
}

// predict analyzes the calls of the transaction and loads the children
// they may borrow into both st and env
func (r *run) predict(ctx context.Context, env *sandbox.Env, st *types.ReplayState) int {
	analyzer := NewAnalyzer(r.logger, env.Resolver(), r.cfg.AnalysisDepth)

	pred := analyzer.Predict(&r.tx.PTB, st.Objects)
	if pred.Empty() {
		return 0
	}

	before := make(map[types.ObjectID]struct{}, len(st.Objects))
	for id := range st.Objects {
		before[id] = struct{}{}
	}

	added, err := r.pf.predicted(ctx, st, pred)
	if err != nil {
		r.hint(fmt.Sprintf("predictive prefetch: %v", err))
	}

	for id, obj := range st.Objects {
		if _, ok := before[id]; !ok {
			env.PutObject(obj)
		}
	}

	r.logger.Debug("predictive prefetch",
		"sinks", len(pred.Sinks),
		"children", len(pred.Children),
		"parents", len(pred.Parents),
		"added", added,
	)

	return added
}

func (r *run) finish(
	span telemetry.Span,
	st *types.ReplayState,
	diag *reconstruct.Diagnostics,
	record *Attempt,
	res *ptb.Result,
	execErr error,
	start time.Time,
) *types.ReplayState {
	var cmp *ComparisonResult

	if res != nil && r.tx.Effects != nil {
		cmp = Compare(r.tx.Effects, res.Effects, GasTolerance(st.ProtocolVersion, r.tx.Gas.Price))
	}

	class, hint := classify(&attemptResult{diag: diag, result: res, err: execErr, comparison: cmp})

	record.Class = class
	record.Hint = hint
	record.LocalSuccess = res != nil && res.Effects.Success
	record.Duration = time.Since(start)

	r.out.Attempts = append(r.out.Attempts, *record)
	r.out.Class = class
	r.out.State = st
	r.out.Diagnostics = diag
	r.out.Result = res
	r.out.Comparison = cmp
	r.out.Err = execErr

	r.metrics.prefetchedAdd(record.Prefetched)
	r.metrics.attemptObserve(record.Duration)

	span.SetAttributes(map[string]interface{}{
		"class":         class.label(),
		"local_success": record.LocalSuccess,
		"prefetched":    record.Prefetched,
	})

	if execErr != nil {
		span.RecordError(execErr)
	}

	r.logger.Info("attempt finished",
		"run", r.out.RunID,
		"attempt", record.Number,
		"level", record.Level,
		"class", class.label(),
		"local_success", record.LocalSuccess,
		"prefetched", record.Prefetched,
	)

	return st
}
