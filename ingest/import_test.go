package ingest

import (
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImport(t *testing.T) {
	t.Parallel()

	store, err := cache.Open(nil, t.TempDir(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	seq := uint64(12)
	coin := coinAt(3)
	field := fieldObject(4)

	st := types.NewReplayState(types.FetchedTransaction{
		Digest: types.Digest(types.Blake2b256([]byte("import"))),
		Sender: sender,
	})
	st.Checkpoint = &seq
	st.Objects[coin.ID] = coin
	st.Objects[field.ID] = field
	st.Packages[pkgID] = &types.PackageData{
		Address: pkgID,
		Version: 1,
		Modules: []types.ModuleBytes{{Name: "pool", Bytecode: []byte{0xa1, 0x1c, 0xeb, 0x0b}}},
	}
	st.Packages[types.MustParseAddress("0x2")] = &types.PackageData{
		Address: types.MustParseAddress("0x2"),
		Version: 1,
	}

	loose := coinAt(9)

	res, err := Import(nil, store, []*types.ReplayState{st}, []*types.VersionedObject{loose}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.States)
	assert.Equal(t, 1, res.Transactions)
	assert.Equal(t, 3, res.Objects)
	assert.Equal(t, 1, res.Packages)
	assert.Equal(t, store.Root(), res.Root)

	assert.True(t, store.HasObject(coin.ID, coin.Version))
	assert.True(t, store.HasObject(loose.ID, loose.Version))
	assert.True(t, store.HasPackage(pkgID))
	assert.False(t, store.HasPackage(types.MustParseAddress("0x2")))

	at, ok, err := store.TxCheckpoint(st.Transaction.Digest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, seq, at)

	children, err := store.Children(parentID, nil)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, field.ID, children[0].ChildID)
}

func TestImportWithoutCheckpoint(t *testing.T) {
	t.Parallel()

	store, err := cache.Open(nil, t.TempDir(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })

	st := types.NewReplayState(types.FetchedTransaction{
		Digest: types.Digest(types.Blake2b256([]byte("no-checkpoint"))),
	})

	res, err := Import(nil, store, []*types.ReplayState{st}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.States)
	assert.Zero(t, res.Transactions)

	_, ok, err := store.TxCheckpoint(st.Transaction.Digest)
	require.NoError(t, err)
	assert.False(t, ok)
}
