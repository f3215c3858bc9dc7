package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
)

// Locator maps a transaction digest to the checkpoint that carries it
type Locator interface {
	TxCheckpoint(digest types.Digest) (uint64, bool, error)
}

type txRef struct {
	data  *Data
	index int
}

// Index serves transactions, objects, packages and dynamic-field children
// out of the checkpoints it has loaded. Transactions of checkpoints not
// loaded yet are found through the locator.
type Index struct {
	logger  hclog.Logger
	src     source.CheckpointSource
	locator Locator

	lock     sync.RWMutex
	loaded   map[uint64]*Data
	txs      map[types.Digest]txRef
	objects  map[types.ObjectVersion]*types.VersionedObject
	packages map[types.Address]*types.PackageData
	children map[types.ObjectID]map[types.ObjectVersion]types.DynamicFieldInfo
}

var _ source.Full = (*Index)(nil)

func NewIndex(logger hclog.Logger, src source.CheckpointSource, locator Locator) *Index {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Index{
		logger:   logger.Named("checkpoint"),
		src:      src,
		locator:  locator,
		loaded:   map[uint64]*Data{},
		txs:      map[types.Digest]txRef{},
		objects:  map[types.ObjectVersion]*types.VersionedObject{},
		packages: map[types.Address]*types.PackageData{},
		children: map[types.ObjectID]map[types.ObjectVersion]types.DynamicFieldInfo{},
	}
}

// Load fetches and indexes checkpoint seq. Loading twice is a no-op.
func (x *Index) Load(ctx context.Context, seq uint64) (*Data, error) {
	x.lock.RLock()
	d, ok := x.loaded[seq]
	x.lock.RUnlock()

	if ok {
		return d, nil
	}

	blob, err := x.src.FetchCheckpoint(ctx, seq)
	if err != nil {
		return nil, err
	}

	if d, err = Decode(blob); err != nil {
		return nil, err
	}

	if d.Sequence != seq {
		return nil, fmt.Errorf("%w: blob for %d carries checkpoint %d", ErrInvalidCheckpoint, seq, d.Sequence)
	}

	x.Add(d)

	x.logger.Debug("checkpoint loaded", "seq", seq, "transactions", len(d.Transactions))

	return d, nil
}

// Add indexes an already decoded checkpoint
func (x *Index) Add(d *Data) {
	x.lock.Lock()
	defer x.lock.Unlock()

	if _, ok := x.loaded[d.Sequence]; ok {
		return
	}

	x.loaded[d.Sequence] = d

	for i := range d.Transactions {
		tx := &d.Transactions[i]
		x.txs[tx.Digest] = txRef{data: d, index: i}

		for _, list := range [][]*types.VersionedObject{tx.InputObjects, tx.OutputObjects} {
			for _, o := range list {
				x.addObject(o, d.Sequence)
			}
		}

		for _, p := range tx.Packages {
			x.packages[p.Address] = p
		}
	}
}

func (x *Index) addObject(o *types.VersionedObject, seq uint64) {
	x.objects[types.ObjectVersion{ID: o.ID, Version: o.Version}] = o

	info, ok := ChildInfo(o, seq)
	if !ok {
		return
	}

	parent := o.EffectiveOwner().Address

	m, ok := x.children[parent]
	if !ok {
		m = map[types.ObjectVersion]types.DynamicFieldInfo{}
		x.children[parent] = m
	}

	m[types.ObjectVersion{ID: o.ID, Version: o.Version}] = info
}

// ChildInfo describes o as a dynamic field child seen in checkpoint seq.
// It reports false when o is not owned by another object.
func ChildInfo(o *types.VersionedObject, seq uint64) (types.DynamicFieldInfo, bool) {
	if o.EffectiveOwner().Kind != types.OwnerObject {
		return types.DynamicFieldInfo{}, false
	}

	info := types.DynamicFieldInfo{
		ChildID:    o.ID,
		Version:    o.Version,
		ChildType:  o.Type,
		Checkpoint: &seq,
	}

	if keyType, ok := info.KeyType(); ok {
		info.KeyBytes = fieldKeyBytes(o.BCS, keyType)
	}

	return info, true
}

// fieldKeyBytes extracts the name of a Field<K, V> whose key has a
// self-delimiting primitive encoding. It returns nil for other keys.
func fieldKeyBytes(contents []byte, keyType types.TypeTag) []byte {
	if len(contents) < types.AddressLength {
		return nil
	}

	rest := contents[types.AddressLength:]

	if size, ok := fixedSize(keyType); ok {
		if len(rest) < size {
			return nil
		}

		return types.CopyBytes(rest[:size])
	}

	if lengthPrefixed(keyType) {
		d := bcs.NewDecoder(rest)

		n, err := d.ReadLength()
		if err != nil {
			return nil
		}

		end := d.Offset() + n
		if end > len(rest) {
			return nil
		}

		return types.CopyBytes(rest[:end])
	}

	return nil
}

func lengthPrefixed(t types.TypeTag) bool {
	switch t.Kind {
	case types.TypeVector:
		return t.Elem != nil && t.Elem.Kind == types.TypeU8
	case types.TypeStruct:
		return t.Struct != nil && (t.Struct.Is(types.StdlibAddress, "string", "String") ||
			t.Struct.Is(types.StdlibAddress, "ascii", "String"))
	}

	return false
}

func fixedSize(t types.TypeTag) (int, bool) {
	switch t.Kind {
	case types.TypeBool, types.TypeU8:
		return 1, true
	case types.TypeU16:
		return 2, true
	case types.TypeU32:
		return 4, true
	case types.TypeU64:
		return 8, true
	case types.TypeU128:
		return 16, true
	case types.TypeU256, types.TypeAddress:
		return 32, true
	}

	return 0, false
}

func (x *Index) lookupTx(digest types.Digest) (txRef, bool) {
	x.lock.RLock()
	defer x.lock.RUnlock()

	ref, ok := x.txs[digest]

	return ref, ok
}

func (x *Index) FetchTransaction(ctx context.Context, digest types.Digest) (*types.FetchedTransaction, error) {
	ref, ok := x.lookupTx(digest)

	if !ok && x.locator != nil {
		seq, found, err := x.locator.TxCheckpoint(digest)
		if err != nil {
			return nil, err
		}

		if found {
			if _, err := x.Load(ctx, seq); err != nil {
				return nil, err
			}

			ref, ok = x.lookupTx(digest)
		}
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrTransactionMissing, digest)
	}

	return ref.data.Fetched(&ref.data.Transactions[ref.index]), nil
}

func (x *Index) FetchObjectAtVersion(
	_ context.Context,
	id types.ObjectID,
	version uint64,
) (*types.VersionedObject, error) {
	x.lock.RLock()
	defer x.lock.RUnlock()

	if o, ok := x.objects[types.ObjectVersion{ID: id, Version: version}]; ok {
		return o.Clone(), nil
	}

	return nil, source.ObjectMissingError(id, version)
}

func (x *Index) FetchPackage(_ context.Context, storageID types.Address) (*types.PackageData, error) {
	x.lock.RLock()
	defer x.lock.RUnlock()

	if p, ok := x.packages[storageID]; ok {
		return p.Clone(), nil
	}

	return nil, source.PackageMissingError(storageID)
}

// EnumerateChildren reports each known child of parent at its newest
// version seen at or before atCheckpoint
func (x *Index) EnumerateChildren(
	_ context.Context,
	parent types.ObjectID,
	atCheckpoint *uint64,
) ([]types.DynamicFieldInfo, error) {
	x.lock.RLock()
	defer x.lock.RUnlock()

	latest := map[types.ObjectID]types.DynamicFieldInfo{}

	for _, info := range x.children[parent] {
		if atCheckpoint != nil && info.Checkpoint != nil && *info.Checkpoint > *atCheckpoint {
			continue
		}

		if prev, ok := latest[info.ChildID]; !ok || info.Version > prev.Version {
			latest[info.ChildID] = info
		}
	}

	out := make([]types.DynamicFieldInfo, 0, len(latest))
	for _, info := range latest {
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ChildID.Less(out[j].ChildID)
	})

	return out, nil
}

// Loaded lists the sequences indexed so far, ascending
func (x *Index) Loaded() []uint64 {
	x.lock.RLock()
	defer x.lock.RUnlock()

	out := make([]uint64, 0, len(x.loaded))
	for seq := range x.loaded {
		out = append(out, seq)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// IsMissing reports whether err means the checkpoint is not available
func IsMissing(err error) bool {
	return errors.Is(err, source.ErrCheckpointMissing)
}
