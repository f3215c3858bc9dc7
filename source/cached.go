package source

import (
	"context"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
)

// Cached answers object, package and child lookups from the versioned
// cache and stores whatever the upstream adapters return
type Cached struct {
	logger   hclog.Logger
	store    *cache.Store
	upstream Bundle
	// Offline disables the upstream adapters
	Offline bool
}

var _ Full = (*Cached)(nil)

func NewCached(logger hclog.Logger, store *cache.Store, upstream Bundle) *Cached {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Cached{
		logger:   logger.Named("cached"),
		store:    store,
		upstream: upstream,
	}
}

func (c *Cached) Store() *cache.Store {
	return c.store
}

func (c *Cached) FetchTransaction(ctx context.Context, digest types.Digest) (*types.FetchedTransaction, error) {
	if c.Offline || c.upstream.Transactions == nil {
		return nil, ErrTransactionMissing
	}

	tx, err := c.upstream.Transactions.FetchTransaction(ctx, digest)
	if err != nil {
		return nil, err
	}

	if tx.Checkpoint != nil {
		if err := c.store.PutTxIndex(tx.Digest, *tx.Checkpoint); err != nil {
			c.logger.Warn("tx index write failed", "digest", tx.Digest, "err", err)
		}
	}

	return tx, nil
}

func (c *Cached) FetchObjectAtVersion(
	ctx context.Context,
	id types.ObjectID,
	version uint64,
) (*types.VersionedObject, error) {
	obj, ok, err := c.store.GetVersionedObject(id, version)
	if err != nil {
		return nil, err
	} else if ok {
		return obj, nil
	}

	if c.Offline || c.upstream.Transactions == nil {
		return nil, ObjectMissingError(id, version)
	}

	obj, err = c.upstream.Transactions.FetchObjectAtVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}

	if err := c.store.PutVersionedObject(obj, nil); err != nil {
		return nil, err
	}

	return obj, nil
}

func (c *Cached) FetchPackage(ctx context.Context, storageID types.Address) (*types.PackageData, error) {
	pkg, ok, err := c.store.GetPackage(storageID)
	if err != nil {
		return nil, err
	} else if ok {
		return pkg, nil
	}

	if c.Offline || c.upstream.Packages == nil {
		return nil, PackageMissingError(storageID)
	}

	pkg, err = c.upstream.Packages.FetchPackage(ctx, storageID)
	if err != nil {
		return nil, err
	}

	if err := c.store.PutPackage(pkg); err != nil {
		return nil, err
	}

	return pkg, nil
}

// EnumerateChildren asks upstream first so new children are recorded, and
// answers from the child log when upstream has none
func (c *Cached) EnumerateChildren(
	ctx context.Context,
	parent types.ObjectID,
	atCheckpoint *uint64,
) ([]types.DynamicFieldInfo, error) {
	if !c.Offline && c.upstream.DynamicFields != nil {
		out, err := c.upstream.DynamicFields.EnumerateChildren(ctx, parent, atCheckpoint)
		if err != nil && !shouldFallback(err) {
			return nil, err
		}

		if len(out) > 0 {
			if err := c.store.AppendChildren(parent, out); err != nil {
				return nil, err
			}

			return out, nil
		}
	}

	return c.store.Children(parent, atCheckpoint)
}
