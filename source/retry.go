package source

import (
	"context"
	"errors"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultRetryBase    = 200 * time.Millisecond
	DefaultRetryCap     = 5 * time.Second
	DefaultRetryTimes   = 4
	DefaultFetchTimeout = 30 * time.Second
)

// RetryConfig bounds the retries of an adapter call
type RetryConfig struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries uint64
	// Timeout applies to every single attempt; zero disables it
	Timeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Base:       DefaultRetryBase,
		Cap:        DefaultRetryCap,
		MaxRetries: DefaultRetryTimes,
		Timeout:    DefaultFetchTimeout,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.Base
	if base <= 0 {
		base = DefaultRetryBase
	}

	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(10, b)

	if c.Cap > 0 {
		b = retry.WithCappedDuration(c.Cap, b)
	}

	return retry.WithMaxRetries(c.MaxRetries, b)
}

// Retrying wraps an adapter and retries calls failing with
// ErrAdapterUnavailable or a deadline. Hydration errors are returned
// at once.
type Retrying struct {
	logger hclog.Logger
	cfg    RetryConfig
	bundle Bundle
}

// WithRetry wraps every member of b
func WithRetry(logger hclog.Logger, b Bundle, cfg RetryConfig) *Retrying {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Retrying{
		logger: logger.Named("retry"),
		cfg:    cfg,
		bundle: b,
	}
}

var (
	_ Full             = (*Retrying)(nil)
	_ CheckpointSource = (*Retrying)(nil)
)

func transient(err error) bool {
	return errors.Is(err, ErrAdapterUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Retrying) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0

	return retry.Do(ctx, r.cfg.backoff(), func(ctx context.Context) error {
		attempt++

		callCtx := ctx

		if r.cfg.Timeout > 0 {
			var cancel context.CancelFunc

			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err != nil && transient(err) && ctx.Err() == nil {
			r.logger.Debug("retrying adapter call", "op", op, "attempt", attempt, "err", err)

			return retry.RetryableError(err)
		}

		return err
	})
}

func (r *Retrying) FetchTransaction(ctx context.Context, digest types.Digest) (*types.FetchedTransaction, error) {
	if r.bundle.Transactions == nil {
		return nil, ErrTransactionMissing
	}

	var tx *types.FetchedTransaction

	err := r.do(ctx, "fetch_transaction", func(ctx context.Context) (err error) {
		tx, err = r.bundle.Transactions.FetchTransaction(ctx, digest)

		return err
	})

	return tx, err
}

func (r *Retrying) FetchObjectAtVersion(
	ctx context.Context,
	id types.ObjectID,
	version uint64,
) (*types.VersionedObject, error) {
	if r.bundle.Transactions == nil {
		return nil, ObjectMissingError(id, version)
	}

	var obj *types.VersionedObject

	err := r.do(ctx, "fetch_object", func(ctx context.Context) (err error) {
		obj, err = r.bundle.Transactions.FetchObjectAtVersion(ctx, id, version)

		return err
	})

	return obj, err
}

func (r *Retrying) FetchPackage(ctx context.Context, storageID types.Address) (*types.PackageData, error) {
	if r.bundle.Packages == nil {
		return nil, PackageMissingError(storageID)
	}

	var pkg *types.PackageData

	err := r.do(ctx, "fetch_package", func(ctx context.Context) (err error) {
		pkg, err = r.bundle.Packages.FetchPackage(ctx, storageID)

		return err
	})

	return pkg, err
}

func (r *Retrying) EnumerateChildren(
	ctx context.Context,
	parent types.ObjectID,
	atCheckpoint *uint64,
) ([]types.DynamicFieldInfo, error) {
	if r.bundle.DynamicFields == nil {
		return nil, nil
	}

	var out []types.DynamicFieldInfo

	err := r.do(ctx, "enumerate_children", func(ctx context.Context) (err error) {
		out, err = r.bundle.DynamicFields.EnumerateChildren(ctx, parent, atCheckpoint)

		return err
	})

	return out, err
}

func (r *Retrying) FetchCheckpoint(ctx context.Context, seq uint64) ([]byte, error) {
	if r.bundle.Checkpoints == nil {
		return nil, ErrCheckpointMissing
	}

	var blob []byte

	err := r.do(ctx, "fetch_checkpoint", func(ctx context.Context) (err error) {
		blob, err = r.bundle.Checkpoints.FetchCheckpoint(ctx, seq)

		return err
	})

	return blob, err
}
