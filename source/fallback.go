package source

import (
	"context"
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Fallback asks the primary adapter first and the secondary when the
// primary has nothing or is unavailable
type Fallback struct {
	logger    hclog.Logger
	primary   Bundle
	secondary Bundle
}

var (
	_ Full             = (*Fallback)(nil)
	_ CheckpointSource = (*Fallback)(nil)
)

func NewFallback(logger hclog.Logger, primary, secondary Bundle) *Fallback {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Fallback{
		logger:    logger.Named("fallback"),
		primary:   primary,
		secondary: secondary,
	}
}

// shouldFallback reports whether the secondary adapter is worth asking
func shouldFallback(err error) bool {
	return IsHydrationError(err) ||
		errors.Is(err, ErrAdapterUnavailable) ||
		errors.Is(err, ErrTransactionMissing) ||
		errors.Is(err, ErrCheckpointMissing)
}

func combine(first, second error) error {
	if second == nil {
		return first
	} else if first == nil {
		return second
	}

	// keep the secondary error first so errors.As finds its kind
	return multierror.Append(second, first)
}

func (f *Fallback) FetchTransaction(ctx context.Context, digest types.Digest) (*types.FetchedTransaction, error) {
	var first error

	if s := f.primary.Transactions; s != nil {
		tx, err := s.FetchTransaction(ctx, digest)
		if err == nil || !shouldFallback(err) {
			return tx, err
		}

		first = err
	}

	if s := f.secondary.Transactions; s != nil {
		f.logger.Debug("transaction from secondary", "digest", digest, "primary_err", first)

		tx, err := s.FetchTransaction(ctx, digest)
		if err == nil {
			return tx, nil
		}

		return nil, combine(first, err)
	}

	if first == nil {
		first = ErrTransactionMissing
	}

	return nil, first
}

func (f *Fallback) FetchObjectAtVersion(
	ctx context.Context,
	id types.ObjectID,
	version uint64,
) (*types.VersionedObject, error) {
	var first error

	if s := f.primary.Transactions; s != nil {
		obj, err := s.FetchObjectAtVersion(ctx, id, version)
		if err == nil || !shouldFallback(err) {
			return obj, err
		}

		first = err
	}

	if s := f.secondary.Transactions; s != nil {
		obj, err := s.FetchObjectAtVersion(ctx, id, version)
		if err == nil {
			return obj, nil
		}

		return nil, combine(first, err)
	}

	if first == nil {
		first = ObjectMissingError(id, version)
	}

	return nil, first
}

func (f *Fallback) FetchPackage(ctx context.Context, storageID types.Address) (*types.PackageData, error) {
	var first error

	if s := f.primary.Packages; s != nil {
		pkg, err := s.FetchPackage(ctx, storageID)
		if err == nil || !shouldFallback(err) {
			return pkg, err
		}

		first = err
	}

	if s := f.secondary.Packages; s != nil {
		pkg, err := s.FetchPackage(ctx, storageID)
		if err == nil {
			return pkg, nil
		}

		return nil, combine(first, err)
	}

	if first == nil {
		first = PackageMissingError(storageID)
	}

	return nil, first
}

// EnumerateChildren returns the primary's children, or the secondary's
// when the primary reports none
func (f *Fallback) EnumerateChildren(
	ctx context.Context,
	parent types.ObjectID,
	atCheckpoint *uint64,
) ([]types.DynamicFieldInfo, error) {
	var first error

	if s := f.primary.DynamicFields; s != nil {
		out, err := s.EnumerateChildren(ctx, parent, atCheckpoint)
		if err == nil && len(out) > 0 {
			return out, nil
		}

		if err != nil && !shouldFallback(err) {
			return nil, err
		}

		first = err
	}

	if s := f.secondary.DynamicFields; s != nil {
		out, err := s.EnumerateChildren(ctx, parent, atCheckpoint)
		if err == nil {
			return out, nil
		}

		return nil, combine(first, err)
	}

	return nil, first
}

func (f *Fallback) FetchCheckpoint(ctx context.Context, seq uint64) ([]byte, error) {
	var first error

	if s := f.primary.Checkpoints; s != nil {
		blob, err := s.FetchCheckpoint(ctx, seq)
		if err == nil || !shouldFallback(err) {
			return blob, err
		}

		first = err
	}

	if s := f.secondary.Checkpoints; s != nil {
		blob, err := s.FetchCheckpoint(ctx, seq)
		if err == nil {
			return blob, nil
		}

		return nil, combine(first, err)
	}

	if first == nil {
		first = ErrCheckpointMissing
	}

	return nil, first
}
