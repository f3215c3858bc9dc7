package reconstruct

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const (
	ClockInitialSharedVersion  = 1
	RandomInitialSharedVersion = 1
)

// RandomSeed derives the randomness seed of a replayed transaction
func RandomSeed(digest types.Digest, epoch uint64) []byte {
	seed := types.Blake2b256(digest[:], bcs.EncodeU64(epoch))

	return seed[:]
}

func referencesObject(tx *types.FetchedTransaction, versions *VersionMap, id types.ObjectID) bool {
	if versions != nil {
		if _, ok := versions.Versions[id]; ok {
			return true
		}
	}

	for _, in := range tx.PTB.Inputs {
		if in.Kind != types.InputPure && in.ID == id {
			return true
		}
	}

	return false
}

func systemVersion(versions *VersionMap, id types.ObjectID, initial uint64) uint64 {
	if versions != nil {
		if v, ok := versions.Versions[id]; ok {
			return v
		}
	}

	return initial
}

// SynthesizeSystemObjects adds the Clock and Random objects when the
// transaction references them and st does not hold them. It returns the
// ids it created.
func SynthesizeSystemObjects(st *types.ReplayState, versions *VersionMap) []types.ObjectID {
	tx := &st.Transaction

	var out []types.ObjectID

	if _, ok := st.Objects[types.ClockObjectID]; !ok && referencesObject(tx, versions, types.ClockObjectID) {
		st.Objects[types.ClockObjectID] = types.NewVersionedObject(
			types.ClockObjectID,
			systemVersion(versions, types.ClockObjectID, ClockInitialSharedVersion),
			types.TypeTag{Kind: types.TypeStruct, Struct: &framework.ClockTag},
			framework.ClockBytes(tx.TimestampMs),
			types.SharedOwner(ClockInitialSharedVersion),
		)

		out = append(out, types.ClockObjectID)
	}

	if _, ok := st.Objects[types.RandomObjectID]; !ok && referencesObject(tx, versions, types.RandomObjectID) {
		st.Objects[types.RandomObjectID] = types.NewVersionedObject(
			types.RandomObjectID,
			systemVersion(versions, types.RandomObjectID, RandomInitialSharedVersion),
			types.TypeTag{Kind: types.TypeStruct, Struct: &framework.RandomTag},
			framework.RandomBytes(RandomSeed(tx.Digest, st.Epoch)),
			types.SharedOwner(RandomInitialSharedVersion),
		)

		out = append(out, types.RandomObjectID)
	}

	return out
}
