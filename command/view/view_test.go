package view

import (
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) *sandbox.Env {
	t.Helper()

	env, err := sandbox.New(nil, sandbox.DefaultConfig())
	require.NoError(t, err)

	coinType := types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	owner := types.MustParseAddress("0xa11ce")

	env.PutObject(types.NewVersionedObject(types.MustParseAddress("0xc1"), 2, coinType, []byte{1}, types.AddressOwner(owner)))
	env.PutObject(types.NewVersionedObject(types.ClockObjectID, 1, types.MustParseTypeTag("0x2::clock::Clock"), []byte{2}, types.SharedOwner(1)))

	return env
}

func TestModulesResult(t *testing.T) {
	t.Parallel()

	env := newEnv(t)

	assert.Empty(t, NewModulesResult(env, false).Modules)

	all := NewModulesResult(env, true)
	assert.NotEmpty(t, all.Modules)
	assert.Contains(t, all.GetOutput(), "::coin")
}

func TestObjectsResult(t *testing.T) {
	t.Parallel()

	env := newEnv(t)

	res := NewObjectsResult(env, "")
	require.Len(t, res.Objects, 2)

	coins := NewObjectsResult(env, "0x2::coin::")
	require.Len(t, coins.Objects, 1)
	assert.Equal(t, uint64(2), coins.Objects[0].Version)
	assert.Contains(t, coins.Objects[0].Owner, "AddressOwner")

	assert.Contains(t, NewObjectsResult(env, "0xdead").GetOutput(), "No objects found")
}

func TestStateResult(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	res := NewStateResult(env, t.TempDir())

	assert.Equal(t, 2, res.Objects)
	assert.Zero(t, res.Packages)
	assert.Zero(t, res.Modules)
	assert.Empty(t, res.Session)
	assert.Equal(t, sandbox.DefaultConfig().Sender, res.Config.Sender)
	assert.Contains(t, res.GetOutput(), "= none")
}
