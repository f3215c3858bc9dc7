// Package statefile serves transactions, objects and packages out of
// replay-state files.
package statefile

import (
	"context"
	"fmt"
	"sort"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/archive"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
)

// Source holds the states of one or more replay-state files
type Source struct {
	states   []*types.ReplayState
	byDigest map[types.Digest]*types.ReplayState
	objects  map[types.ObjectVersion]*types.VersionedObject
	packages map[types.Address]*types.PackageData
}

var _ source.Full = (*Source)(nil)

// Load reads every file in paths, compressed or not
func Load(logger hclog.Logger, paths ...string) (*Source, error) {
	var all []*types.ReplayState

	for _, p := range paths {
		states, err := archive.ReadReplayStates(logger, p)
		if err != nil {
			return nil, fmt.Errorf("state file %s: %w", p, err)
		}

		all = append(all, states...)
	}

	return New(all...), nil
}

func New(states ...*types.ReplayState) *Source {
	s := &Source{
		byDigest: map[types.Digest]*types.ReplayState{},
		objects:  map[types.ObjectVersion]*types.VersionedObject{},
		packages: map[types.Address]*types.PackageData{},
	}

	for _, st := range states {
		s.states = append(s.states, st)
		s.byDigest[st.Transaction.Digest] = st

		for _, o := range st.Objects {
			s.objects[types.ObjectVersion{ID: o.ID, Version: o.Version}] = o
		}

		for addr, p := range st.Packages {
			s.packages[addr] = p
		}
	}

	return s
}

// States returns the loaded states in file order
func (s *Source) States() []*types.ReplayState {
	return s.states
}

// State returns the state recorded for digest
func (s *Source) State(digest types.Digest) (*types.ReplayState, bool) {
	st, ok := s.byDigest[digest]

	return st, ok
}

func (s *Source) FetchTransaction(_ context.Context, digest types.Digest) (*types.FetchedTransaction, error) {
	st, ok := s.byDigest[digest]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrTransactionMissing, digest)
	}

	tx := st.Transaction
	if tx.Checkpoint == nil {
		tx.Checkpoint = st.Checkpoint
	}

	return &tx, nil
}

func (s *Source) FetchObjectAtVersion(
	_ context.Context,
	id types.ObjectID,
	version uint64,
) (*types.VersionedObject, error) {
	if o, ok := s.objects[types.ObjectVersion{ID: id, Version: version}]; ok {
		return o.Clone(), nil
	}

	return nil, source.ObjectMissingError(id, version)
}

func (s *Source) FetchPackage(_ context.Context, storageID types.Address) (*types.PackageData, error) {
	if p, ok := s.packages[storageID]; ok {
		return p.Clone(), nil
	}

	return nil, source.PackageMissingError(storageID)
}

// EnumerateChildren lists the recorded objects owned by parent. States
// carry no checkpoint per object, so atCheckpoint only skips states
// recorded after it.
func (s *Source) EnumerateChildren(
	_ context.Context,
	parent types.ObjectID,
	atCheckpoint *uint64,
) ([]types.DynamicFieldInfo, error) {
	latest := map[types.ObjectID]types.DynamicFieldInfo{}

	for _, st := range s.states {
		if atCheckpoint != nil && st.Checkpoint != nil && *st.Checkpoint > *atCheckpoint {
			continue
		}

		for _, o := range st.Objects {
			owner := o.EffectiveOwner()
			if owner.Kind != types.OwnerObject || owner.Address != parent {
				continue
			}

			if prev, ok := latest[o.ID]; ok && prev.Version >= o.Version {
				continue
			}

			latest[o.ID] = types.DynamicFieldInfo{
				ChildID:    o.ID,
				Version:    o.Version,
				ChildType:  o.Type,
				Checkpoint: st.Checkpoint,
			}
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
