// Package reconstruct rebuilds the state a historical transaction read:
// object versions, the package closure with its linkage, synthesized
// system objects and optional version-lock patches.
package reconstruct

import (
	"sort"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// VersionSource names where an aggregated version came from
type VersionSource string

const (
	FromLoadedRuntime VersionSource = "unchanged_loaded_runtime_objects"
	FromChanged       VersionSource = "changed_objects"
	FromConsensus     VersionSource = "unchanged_consensus_objects"
	FromInput         VersionSource = "inputs"
)

// VersionMap is the pre-transaction version of every object the
// transaction read
type VersionMap struct {
	Versions map[types.ObjectID]uint64
	Sources  map[types.ObjectID]VersionSource
}

func (m *VersionMap) add(id types.ObjectID, version uint64, src VersionSource) {
	if prev, ok := m.Versions[id]; ok && prev <= version {
		return
	}

	m.Versions[id] = version
	m.Sources[id] = src
}

// Len is the number of objects in the map
func (m *VersionMap) Len() int {
	return len(m.Versions)
}

// Sorted returns the entries ordered by id
func (m *VersionMap) Sorted() []types.ObjectVersion {
	out := make([]types.ObjectVersion, 0, len(m.Versions))
	for id, v := range m.Versions {
		out = append(out, types.ObjectVersion{ID: id, Version: v})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Less(out[j].ID)
	})

	return out
}

// AggregateVersions unions the versions named by the recorded effects
// with the versions the inputs declare. Among the effects lists the
// earliest version wins. Declared input versions fill the gaps, except
// that a shared input's initial version never replaces a version the
// effects recorded.
func AggregateVersions(tx *types.FetchedTransaction) *VersionMap {
	m := &VersionMap{
		Versions: map[types.ObjectID]uint64{},
		Sources:  map[types.ObjectID]VersionSource{},
	}

	if eff := tx.Effects; eff != nil {
		for _, ov := range eff.UnchangedLoadedRuntimeObjects {
			m.add(ov.ID, ov.Version, FromLoadedRuntime)
		}

		for _, c := range eff.ChangedObjects {
			// created and unwrapped objects have no input version
			if c.InputVersion == 0 {
				continue
			}

			m.add(c.ID, c.InputVersion, FromChanged)
		}

		for _, ov := range eff.UnchangedConsensusObjects {
			m.add(ov.ID, ov.Version, FromConsensus)
		}
	}

	for _, in := range tx.PTB.Inputs {
		switch in.Kind {
		case types.InputObject, types.InputReceiving:
			m.add(in.ID, in.Version, FromInput)
		case types.InputShared:
			if _, ok := m.Versions[in.ID]; !ok {
				m.add(in.ID, in.InitialSharedVersion, FromInput)
			}
		}
	}

	for _, ref := range tx.Gas.Payment {
		m.add(ref.ID, ref.Version, FromInput)
	}

	return m
}
