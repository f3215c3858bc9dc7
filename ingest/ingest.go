// Package ingest copies checkpoint contents into the versioned cache. Runs
// are resumable: the last checkpoint of the contiguous completed prefix is
// saved as the progress state and the next run starts after it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/progress"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source/checkpoint"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
)

var (
	ErrNoCheckpointSource = errors.New("no checkpoint source configured")
	ErrInvalidRange       = errors.New("invalid checkpoint range")
)

const DefaultWorkers = 4

const (
	EventStart      = "start"
	EventCheckpoint = "checkpoint"
	EventFailed     = "failed"
	EventFinish     = "finish"
)

// Result summarizes one ingestion run
type Result struct {
	RunID        string        `json:"run_id"`
	From         uint64        `json:"from"`
	To           uint64        `json:"to"`
	Checkpoints  int           `json:"checkpoints"`
	Transactions int           `json:"transactions"`
	Objects      int           `json:"objects"`
	Packages     int           `json:"packages"`
	Failed       []uint64      `json:"failed,omitempty"`
	Resumed      bool          `json:"resumed"`
	Duration     time.Duration `json:"duration_ns"`
}

// Ingester walks checkpoints of a source into a cache store
type Ingester struct {
	logger   hclog.Logger
	src      source.CheckpointSource
	store    *cache.Store
	workers  int
	progress *progress.ProgressionWrapper
}

func New(logger hclog.Logger, src source.CheckpointSource, store *cache.Store, workers int) *Ingester {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Ingester{
		logger:   logger.Named("ingest"),
		src:      src,
		store:    store,
		workers:  workers,
		progress: progress.NewProgressionWrapper(progress.SyncIngest),
	}
}

// Progression reports the state of a running ingestion, nil when idle
func (in *Ingester) Progression() *progress.Progression {
	return in.progress.GetProgression()
}

// outcome is what ingesting one checkpoint produced
type outcome struct {
	done         bool
	transactions int
	objects      int
	packages     int
	err          error
}

// Run ingests checkpoints from through to, both inclusive. Checkpoints at
// or below the saved progress are skipped.
func (in *Ingester) Run(ctx context.Context, from, to uint64) (*Result, error) {
	if in.src == nil {
		return nil, ErrNoCheckpointSource
	}

	if to < from {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidRange, from, to)
	}

	state, err := in.store.LoadProgress()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{RunID: uuid.NewString(), From: from, To: to}

	if last := state.LastCheckpoint; last != nil && *last >= from {
		res.Resumed = true
		res.From = *last + 1
	}

	if res.From > to {
		in.logger.Info("nothing to ingest", "last_checkpoint", *state.LastCheckpoint, "to", to)

		return res, nil
	}

	if err := in.store.AppendEvent(cache.ProgressEvent{
		RunID:      res.RunID,
		Kind:       EventStart,
		Checkpoint: res.From,
	}); err != nil {
		return nil, err
	}

	outcomes := in.walk(ctx, res.RunID, res.From, to)

	var (
		errs       *multierror.Error
		contiguous = true
		last       *uint64
	)

	for i, o := range outcomes {
		seq := res.From + uint64(i)

		switch {
		case o.err != nil:
			res.Failed = append(res.Failed, seq)
			errs = multierror.Append(errs, fmt.Errorf("checkpoint %d: %w", seq, o.err))
			contiguous = false
		case !o.done:
			contiguous = false
		default:
			res.Checkpoints++
			res.Transactions += o.transactions
			res.Objects += o.objects
			res.Packages += o.packages

			if contiguous {
				s := seq
				last = &s
			}
		}
	}

	if last != nil {
		if err := in.store.SaveProgress(cache.ProgressState{
			LastCheckpoint: last,
			LastBlob:       checkpoint.BlobName(*last),
		}); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	res.Duration = time.Since(start)

	if err := in.store.AppendEvent(cache.ProgressEvent{
		RunID:        res.RunID,
		Kind:         EventFinish,
		Checkpoint:   to,
		Objects:      res.Objects,
		Packages:     res.Packages,
		Transactions: res.Transactions,
	}); err != nil {
		errs = multierror.Append(errs, err)
	}

	in.logger.Info("ingestion finished",
		"run", res.RunID,
		"from", res.From,
		"to", to,
		"checkpoints", res.Checkpoints,
		"objects", res.Objects,
		"failed", len(res.Failed),
		"elapsed", res.Duration,
	)

	if ctx.Err() != nil {
		errs = multierror.Append(errs, ctx.Err())
	}

	return res, errs.ErrorOrNil()
}

// walk ingests every checkpoint of the range on the worker pool. The
// outcomes are indexed by offset from from.
func (in *Ingester) walk(ctx context.Context, runID string, from, to uint64) []outcome {
	outcomes := make([]outcome, to-from+1)
	doneCh := make(chan uint64)

	in.progress.StartProgression(runID, from, to, doneCh)
	defer in.progress.StopProgression()

	var objects atomic.Int64

	pool := workerpool.New(in.workers)

	for seq := from; seq <= to; seq++ {
		if ctx.Err() != nil {
			break
		}

		seq := seq

		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}

			o := in.ingest(ctx, seq)
			outcomes[seq-from] = o

			ev := cache.ProgressEvent{
				RunID:        runID,
				Kind:         EventCheckpoint,
				Checkpoint:   seq,
				Objects:      o.objects,
				Packages:     o.packages,
				Transactions: o.transactions,
			}

			if o.err != nil {
				ev.Kind = EventFailed
				ev.Error = o.err.Error()
			}

			if err := in.store.AppendEvent(ev); err != nil {
				in.logger.Warn("progress event not recorded", "checkpoint", seq, "err", err)
			}

			objects.Add(int64(o.objects))
			doneCh <- seq
		})
	}

	pool.StopWait()
	close(doneCh)

	in.logger.Debug("walk finished", "from", from, "to", to, "objects", objects.Load())

	return outcomes
}

// ingest writes one checkpoint into the store
func (in *Ingester) ingest(ctx context.Context, seq uint64) outcome {
	blob, err := in.src.FetchCheckpoint(ctx, seq)
	if err != nil {
		return outcome{err: err}
	}

	data, err := checkpoint.Decode(blob)
	if err != nil {
		return outcome{err: err}
	}

	if data.Sequence != seq {
		return outcome{err: fmt.Errorf("%w: blob holds checkpoint %d", checkpoint.ErrInvalidCheckpoint, data.Sequence)}
	}

	o := outcome{done: true}

	var errs *multierror.Error

	for i := range data.Transactions {
		tx := &data.Transactions[i]

		if err := in.store.PutTxIndex(tx.Digest, seq); err != nil {
			errs = multierror.Append(errs, err)
		}

		n, err := putObjects(in.store, &seq, tx.InputObjects, tx.OutputObjects)
		if err != nil {
			errs = multierror.Append(errs, err)
		}

		o.objects += n

		n, err = putPackages(in.store, tx.Packages)
		if err != nil {
			errs = multierror.Append(errs, err)
		}

		o.packages += n

		o.transactions++
	}

	if err := errs.ErrorOrNil(); err != nil {
		return outcome{err: err}
	}

	return o
}
