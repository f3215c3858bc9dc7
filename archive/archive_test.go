package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(seed string) *types.ReplayState {
	sender := types.MustParseAddress("0xa11ce")
	state := types.NewReplayState(types.FetchedTransaction{
		Digest: types.Digest(types.Blake2b256([]byte(seed))),
		Sender: sender,
	})

	coinType := types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	obj := types.NewVersionedObject(types.MustParseAddress("0x11"), 10, coinType, []byte{1, 2, 3}, types.AddressOwner(sender))
	state.Objects[obj.ID] = obj
	state.ProtocolVersion = 68
	state.Epoch = 500

	return state
}

func TestReplayStatesRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cases := []struct {
		name   string
		file   string
		states []*types.ReplayState
	}{
		{"single plain", "one.json", []*types.ReplayState{testState("a")}},
		{"single compressed", "one.json.zst", []*types.ReplayState{testState("a")}},
		{"multi compressed", "many.json.zst", []*types.ReplayState{testState("a"), testState("b")}},
	}

	for _, c := range cases {
		path := filepath.Join(dir, c.file)

		require.NoError(t, WriteReplayStates(hclog.NewNullLogger(), path, c.states, OptionsFor(path, false)), c.name)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, OptionsFor(path, false).Compress, len(raw) > 4 && string(raw[:4]) == string(zstdMagic), c.name)

		got, err := ReadReplayStates(hclog.NewNullLogger(), path)
		require.NoError(t, err, c.name)
		require.Len(t, got, len(c.states), c.name)

		for i, s := range c.states {
			assert.Equal(t, s.Transaction.Digest, got[i].Transaction.Digest, c.name)
			assert.Equal(t, s.Objects[types.MustParseAddress("0x11")].BCS, got[i].Objects[types.MustParseAddress("0x11")].BCS, c.name)
			assert.Equal(t, uint64(68), got[i].ProtocolVersion, c.name)
		}
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")

	require.NoError(t, WriteJSON(nil, path, map[string]int{"a": 1}, OptionsFor(path, false)))
	assert.Error(t, WriteJSON(nil, path, map[string]int{"a": 2}, OptionsFor(path, false)))
	require.NoError(t, WriteJSON(nil, path, map[string]int{"a": 3}, OptionsFor(path, true)))

	var got map[string]int

	require.NoError(t, ReadJSON(nil, path, &got))
	assert.Equal(t, 3, got["a"])
}

func TestReadEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	data, err := ReadFile(nil, path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
