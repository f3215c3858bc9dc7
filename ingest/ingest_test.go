package ingest

import (
	"context"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source/checkpoint"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender   = types.MustParseAddress("0xa11ce")
	parentID = types.MustParseAddress("0x22")
	pkgID    = types.MustParseAddress("0xfeed")
	coinType = types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
)

func coinAt(seq uint64) *types.VersionedObject {
	id := types.BytesToAddress(bcs.EncodeU64(seq + 0x100))

	return types.NewVersionedObject(id, seq+1, coinType, []byte{byte(seq)}, types.AddressOwner(sender))
}

func fieldObject(version uint64) *types.VersionedObject {
	fieldType := types.MustParseTypeTag("0x2::dynamic_field::Field<u64, u64>")
	keyBytes := bcs.EncodeU64(7)
	childID := types.DynamicFieldID(parentID, types.PrimitiveTag(types.TypeU64), keyBytes)

	e := bcs.NewEncoder()
	e.WriteFixedBytes(childID.Bytes())
	e.WriteFixedBytes(keyBytes)
	e.WriteU64(version)

	return types.NewVersionedObject(childID, version, fieldType, e.Bytes(), types.ObjectOwner(parentID))
}

func sampleCheckpoint(seq uint64) *checkpoint.Data {
	coin := coinAt(seq)

	tx := checkpoint.Transaction{
		Digest:    types.Digest(types.Blake2b256([]byte("ingest"), bcs.EncodeU64(seq))),
		Sender:    sender,
		GasBudget: 50_000_000,
		GasPrice:  1000,
		Effects: types.EffectsSummary{
			Success: true,
			ChangedObjects: []types.ChangedObject{
				{ID: coin.ID, InputVersion: coin.Version, OutputVersion: coin.Version + 1, Operation: types.OpMutated},
			},
		},
		InputObjects:  []*types.VersionedObject{coin, fieldObject(seq + 1)},
		OutputObjects: []*types.VersionedObject{},
	}

	if seq == 1 {
		tx.Packages = []*types.PackageData{{
			Address: pkgID,
			Version: 1,
			Modules: []types.ModuleBytes{{Name: "pool", Bytecode: []byte{0xa1, 0x1c, 0xeb, 0x0b}}},
		}}
	}

	return &checkpoint.Data{
		Sequence:        seq,
		Epoch:           3,
		ProtocolVersion: 42,
		Transactions:    []checkpoint.Transaction{tx},
	}
}

func newFixture(t *testing.T, seqs ...uint64) (*checkpoint.Dir, *cache.Store) {
	t.Helper()

	dir, err := checkpoint.NewDir(t.TempDir())
	require.NoError(t, err)

	for _, seq := range seqs {
		require.NoError(t, dir.Write(seq, checkpoint.Encode(sampleCheckpoint(seq))))
	}

	store, err := cache.Open(nil, t.TempDir(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	return dir, store
}

func TestIngest(t *testing.T) {
	t.Parallel()

	dir, store := newFixture(t, 1, 2, 3)

	res, err := New(nil, dir, store, 2).Run(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Resumed)
	assert.Equal(t, 3, res.Checkpoints)
	assert.Equal(t, 3, res.Transactions)
	assert.Equal(t, 6, res.Objects)
	assert.Equal(t, 1, res.Packages)

	for seq := uint64(1); seq <= 3; seq++ {
		coin := coinAt(seq)
		assert.True(t, store.HasObject(coin.ID, coin.Version))

		at, ok, err := store.TxCheckpoint(sampleCheckpoint(seq).Transactions[0].Digest)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, seq, at)
	}

	assert.True(t, store.HasPackage(pkgID))

	children, err := store.Children(parentID, nil)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, uint64(4), children[0].Version)
	assert.Equal(t, bcs.EncodeU64(7), children[0].KeyBytes)

	state, err := store.LoadProgress()
	require.NoError(t, err)
	require.NotNil(t, state.LastCheckpoint)
	assert.Equal(t, uint64(3), *state.LastCheckpoint)
	assert.Equal(t, checkpoint.BlobName(3), state.LastBlob)

	events, err := store.Events()
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, EventStart, events[0].Kind)
	assert.Equal(t, EventFinish, events[4].Kind)

	for _, ev := range events {
		assert.Equal(t, res.RunID, ev.RunID)
	}
}

func TestIngestResumes(t *testing.T) {
	t.Parallel()

	dir, store := newFixture(t, 1, 2, 3, 4)
	in := New(nil, dir, store, 1)

	_, err := in.Run(context.Background(), 1, 2)
	require.NoError(t, err)

	res, err := in.Run(context.Background(), 1, 4)
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Equal(t, uint64(3), res.From)
	assert.Equal(t, 2, res.Checkpoints)

	// everything already ingested
	res, err = in.Run(context.Background(), 1, 4)
	require.NoError(t, err)
	assert.Zero(t, res.Checkpoints)
	assert.Equal(t, uint64(5), res.From)
}

func TestIngestGap(t *testing.T) {
	t.Parallel()

	// checkpoint 2 is missing
	dir, store := newFixture(t, 1, 3)

	res, err := New(nil, dir, store, 2).Run(context.Background(), 1, 3)
	require.Error(t, err)

	assert.Equal(t, []uint64{2}, res.Failed)
	assert.Equal(t, 2, res.Checkpoints)

	// progress stops before the gap
	state, err := store.LoadProgress()
	require.NoError(t, err)
	require.NotNil(t, state.LastCheckpoint)
	assert.Equal(t, uint64(1), *state.LastCheckpoint)
}

func TestIngestInvalidRange(t *testing.T) {
	t.Parallel()

	dir, store := newFixture(t)

	_, err := New(nil, dir, store, 1).Run(context.Background(), 5, 4)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = New(nil, nil, store, 1).Run(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrNoCheckpointSource)
}
