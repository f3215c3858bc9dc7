package ptb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tx.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestReadSpec(t *testing.T) {
	t.Parallel()

	path := writeSpec(t, `{
  "sender": "0xa11ce",
  "gas_budget": 5000000,
  "inputs": [],
  "commands": [
    {"SplitCoins": {"coin": "GasCoin", "amounts": []}}
  ]
}`)

	spec, err := ReadSpec(nil, path)
	require.NoError(t, err)

	require.NotNil(t, spec.Sender)
	assert.Equal(t, types.MustParseAddress("0xa11ce"), *spec.Sender)
	assert.Equal(t, uint64(5_000_000), spec.GasBudget)
	require.Len(t, spec.Commands, 1)
	assert.Equal(t, types.CmdSplitCoins, spec.Commands[0].Kind())
	assert.Equal(t, types.GasCoin(), spec.Commands[0].SplitCoins.Coin)
}

func TestReadSpecInvalidCommand(t *testing.T) {
	t.Parallel()

	path := writeSpec(t, `{"inputs": [], "commands": [{}]}`)

	_, err := ReadSpec(nil, path)
	assert.ErrorIs(t, err, types.ErrInvalidCommand)
}
