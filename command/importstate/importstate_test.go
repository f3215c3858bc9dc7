package importstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestReadInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	owner := types.MustParseAddress("0xa11ce")
	coinType := types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")

	st := types.NewReplayState(types.FetchedTransaction{
		Digest: types.Digest(types.Blake2b256([]byte("import-command"))),
		Sender: owner,
	})

	obj := types.NewVersionedObject(types.MustParseAddress("0x51"), 4, coinType, []byte{1}, types.AddressOwner(owner))

	p := &importParams{
		statePath:   writeJSON(t, dir, "state.json", st),
		objectsPath: writeJSON(t, dir, "objects.json", []*types.VersionedObject{obj}),
	}

	states, objects, packages, err := readInputs(nil, p)
	require.NoError(t, err)

	require.Len(t, states, 1)
	assert.Equal(t, st.Transaction.Digest, states[0].Transaction.Digest)
	require.Len(t, objects, 1)
	assert.Equal(t, obj.ID, objects[0].ID)
	assert.Equal(t, uint64(4), objects[0].Version)
	assert.Empty(t, packages)
}

func TestReadInputsRejectsDocumentWithoutState(t *testing.T) {
	t.Parallel()

	p := &importParams{
		statePath: writeJSON(t, t.TempDir(), "state.json", map[string]int{"epoch": 3}),
	}

	_, _, _, err := readInputs(nil, p)
	assert.ErrorIs(t, err, types.ErrNoReplayState)
}
