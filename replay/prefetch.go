package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	DefaultPrefetchDepth = 2
	DefaultPrefetchLimit = 200
)

// VersionIndex answers which cached version of an object is the newest
// not above a bound. cache.Store implements it.
type VersionIndex interface {
	LatestVersion(id types.ObjectID, maxVersion uint64) (uint64, bool, error)
}

// prefetcher loads dynamic field children for one replay. Every child it
// loads is remembered so later attempts start with it.
type prefetcher struct {
	logger     hclog.Logger
	objects    source.TransactionSource
	fields     source.DynamicFieldSource
	index      VersionIndex
	checkpoint *uint64
	limit      int

	lock    sync.Mutex
	fetched map[types.ObjectID]*types.VersionedObject
}

func newPrefetcher(
	logger hclog.Logger,
	objects source.TransactionSource,
	fields source.DynamicFieldSource,
	index VersionIndex,
	checkpoint *uint64,
	limit int,
) *prefetcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if limit <= 0 {
		limit = DefaultPrefetchLimit
	}

	return &prefetcher{
		logger:     logger,
		objects:    objects,
		fields:     fields,
		index:      index,
		checkpoint: checkpoint,
		limit:      limit,
		fetched:    map[types.ObjectID]*types.VersionedObject{},
	}
}

func (p *prefetcher) remember(obj *types.VersionedObject) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if prev, ok := p.fetched[obj.ID]; !ok || prev.Version < obj.Version {
		p.fetched[obj.ID] = obj
	}
}

// merge adds every remembered child missing from st
func (p *prefetcher) merge(st *types.ReplayState) int {
	p.lock.Lock()
	defer p.lock.Unlock()

	n := 0

	for id, obj := range p.fetched {
		if _, ok := st.Objects[id]; !ok {
			st.Objects[id] = obj
			n++
		}
	}

	return n
}

func (p *prefetcher) children(ctx context.Context, parent types.ObjectID) ([]types.DynamicFieldInfo, error) {
	if p.fields == nil {
		return nil, nil
	}

	return p.fields.EnumerateChildren(ctx, parent, p.checkpoint)
}

func (p *prefetcher) fetch(ctx context.Context, id types.ObjectID, version uint64) (*types.VersionedObject, error) {
	if p.objects == nil {
		return nil, source.ObjectMissingError(id, version)
	}

	obj, err := p.objects.FetchObjectAtVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}

	p.remember(obj)

	return obj, nil
}

// find fetches the enumerated child of parent matching match
func (p *prefetcher) find(
	ctx context.Context,
	parent types.ObjectID,
	match func(types.DynamicFieldInfo) bool,
) (*types.VersionedObject, error) {
	infos, err := p.children(ctx, parent)
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		if match(info) {
			return p.fetch(ctx, info.ChildID, info.Version)
		}
	}

	return nil, nil
}

// fetchers binds the runtime child fetchers to the sources
func (p *prefetcher) fetchers(ctx context.Context) state.ChildFetchers {
	return state.ChildFetchers{
		ByKey: func(key state.ChildKey) (*types.VersionedObject, error) {
			return p.find(ctx, key.Parent, func(info types.DynamicFieldInfo) bool {
				return info.ChildID == key.Child
			})
		},
		ByVersion: func(parent, child types.ObjectID, maxVersion uint64) (*types.VersionedObject, error) {
			if p.index != nil {
				v, ok, err := p.index.LatestVersion(child, maxVersion)
				if err != nil {
					return nil, err
				}

				if ok {
					return p.fetch(ctx, child, v)
				}
			}

			return p.find(ctx, parent, func(info types.DynamicFieldInfo) bool {
				return info.ChildID == child && info.Version <= maxVersion
			})
		},
		ByName: func(parent types.ObjectID, name string) (*types.VersionedObject, error) {
			return p.find(ctx, parent, func(info types.DynamicFieldInfo) bool {
				keyType, ok := info.KeyType()
				if !ok {
					return false
				}

				display, ok := state.KeyName(keyType, info.KeyBytes)

				return ok && display == name
			})
		},
	}
}

// load fetches the enumerated children of parent into st, up to the
// limit. It returns the ids added.
func (p *prefetcher) load(
	ctx context.Context,
	st *types.ReplayState,
	parent types.ObjectID,
	want func(types.DynamicFieldInfo) bool,
) ([]types.ObjectID, error) {
	infos, err := p.children(ctx, parent)
	if err != nil {
		return nil, err
	}

	var (
		added []types.ObjectID
		errs  *multierror.Error
	)

	for _, info := range infos {
		if len(added) >= p.limit {
			p.logger.Debug("prefetch limit reached", "parent", parent, "limit", p.limit)

			break
		}

		if want != nil && !want(info) {
			continue
		}

		if have, ok := st.Objects[info.ChildID]; ok && have.Version >= info.Version {
			continue
		}

		obj, err := p.fetch(ctx, info.ChildID, info.Version)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("child %s of %s: %w", info.ChildID, parent, err))

			continue
		}

		st.Objects[obj.ID] = obj
		added = append(added, obj.ID)
	}

	return added, errs.ErrorOrNil()
}

// eager enumerates the children of every object in st, then of the
// children found, down to depth levels
func (p *prefetcher) eager(ctx context.Context, st *types.ReplayState, depth int) (int, error) {
	if depth <= 0 {
		depth = DefaultPrefetchDepth
	}

	var (
		errs     *multierror.Error
		total    int
		frontier []types.ObjectID
	)

	for _, obj := range st.SortedObjects() {
		frontier = append(frontier, obj.ID)
	}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []types.ObjectID

		for _, parent := range frontier {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			added, err := p.load(ctx, st, parent, nil)
			if err != nil {
				errs = multierror.Append(errs, err)
			}

			total += len(added)
			next = append(next, added...)
		}

		frontier = next
	}

	return total, errs.ErrorOrNil()
}

// predicted loads the children named by a prediction
func (p *prefetcher) predicted(ctx context.Context, st *types.ReplayState, pred *Prediction) (int, error) {
	var (
		errs  *multierror.Error
		total int
	)

	byParent := map[types.ObjectID]map[types.ObjectID]struct{}{}

	for _, hint := range pred.Children {
		if _, ok := st.Objects[hint.Child]; ok {
			continue
		}

		if byParent[hint.Parent] == nil {
			byParent[hint.Parent] = map[types.ObjectID]struct{}{}
		}

		byParent[hint.Parent][hint.Child] = struct{}{}
	}

	for _, hint := range pred.Children {
		wanted, ok := byParent[hint.Parent]
		if !ok {
			continue
		}

		delete(byParent, hint.Parent)

		added, err := p.load(ctx, st, hint.Parent, func(info types.DynamicFieldInfo) bool {
			_, ok := wanted[info.ChildID]

			return ok
		})
		if err != nil {
			errs = multierror.Append(errs, err)
		}

		total += len(added)
	}

	for _, parent := range pred.Parents {
		added, err := p.load(ctx, st, parent, nil)
		if err != nil {
			errs = multierror.Append(errs, err)
		}

		total += len(added)
	}

	return total, errs.ErrorOrNil()
}
