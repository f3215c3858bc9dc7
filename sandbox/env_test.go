package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	recipient = types.MustParseAddress("0xb0b")
	coinID    = types.MustParseAddress("0x101")
	parcelID  = types.MustParseAddress("0x202")
)

func newEnv(t *testing.T) *Env {
	t.Helper()

	env, err := New(nil, DefaultConfig())
	require.NoError(t, err)

	return env
}

func coin(t *testing.T, id types.ObjectID, version, balance uint64, owner types.Owner) *types.VersionedObject {
	t.Helper()

	contents, err := vm.Serialize(framework.CoinValue(id, types.StructTypeTag(framework.SUITag), balance))
	require.NoError(t, err)

	return types.NewVersionedObject(id, version, framework.GasCoinType(), contents, owner)
}

// toyModule builds 0x0::toy with public fun noop() and public fun fail()
// aborting with 3
func toyModule(t *testing.T) []byte {
	t.Helper()

	b := bytecode.NewModuleBuilder(types.ZeroAddress, "toy")

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "noop",
		Visibility: bytecode.VisibilityPublic,
		Code:       []bytecode.Instruction{bytecode.Ins(bytecode.OpRet)},
	})
	b.AddFunction(bytecode.FunctionSpec{
		Name:       "fail",
		Visibility: bytecode.VisibilityPublic,
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpLdU64, 3),
			bytecode.Ins(bytecode.OpAbort),
		},
	})

	code, err := b.Bytes()
	require.NoError(t, err)

	return code
}

func transfer(id types.ObjectID, version uint64, to types.Address) *types.ProgrammableTransaction {
	return &types.ProgrammableTransaction{
		Inputs: []types.TransactionInput{
			types.ObjectInput(types.ObjectRef{ID: id, Version: version}),
			types.PureAddress(to),
		},
		Commands: []types.Command{{TransferObjects: &types.TransferObjects{
			Objects:   []types.Argument{types.Input(0)},
			Recipient: types.Input(1),
		}}},
	}
}

func TestExecuteAppliesWrites(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	sender := env.Config().Sender

	env.PutObject(coin(t, coinID, 10, 1000, types.AddressOwner(sender)))

	res, err := env.Execute(transfer(coinID, 10, recipient))
	require.NoError(t, err)
	require.True(t, res.Effects.Success, res.Effects.Error)

	obj, err := env.Object(coinID)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), obj.Version)
	assert.Equal(t, types.AddressOwner(recipient), obj.EffectiveOwner())

	// a second transfer of the stale version is a missing input
	_, err = env.Execute(transfer(coinID, 10, sender))
	assert.Error(t, err)

	_, err = env.Object(types.MustParseAddress("0x999"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDigestsDiffer(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	tx := &types.ProgrammableTransaction{}

	a := env.nextContext(tx, nil)
	b := env.nextContext(tx, nil)

	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestPublishAndCall(t *testing.T) {
	t.Parallel()

	env := newEnv(t)

	res, err := env.Publish([][]byte{toyModule(t)}, []types.Address{types.StdlibAddress, types.FrameworkAddress})
	require.NoError(t, err)
	require.True(t, res.Effects.Success, res.Effects.Error)
	require.Len(t, res.Packages, 1)

	pkgID := res.Packages[0].Address

	pkg, err := env.Package(pkgID)
	require.NoError(t, err)
	assert.Equal(t, []string{"toy"}, pkg.ModuleNames())
	assert.Len(t, env.Packages(), 1)

	call := func(function string) *types.TransactionEffects {
		res, err := env.Execute(&types.ProgrammableTransaction{
			Commands: []types.Command{{MoveCall: &types.MoveCall{
				Package:  pkgID,
				Module:   "toy",
				Function: function,
			}}},
		})
		require.NoError(t, err)

		return res.Effects
	}

	assert.True(t, call("noop").Success)

	failed := call("fail")
	assert.False(t, failed.Success)
	require.NotNil(t, failed.FailedCommandIndex)
	assert.Equal(t, 0, *failed.FailedCommandIndex)

	_, err = env.Package(types.MustParseAddress("0x999"))
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	sender := env.Config().Sender

	res, err := env.Publish([][]byte{toyModule(t)}, []types.Address{types.StdlibAddress, types.FrameworkAddress})
	require.NoError(t, err)
	require.True(t, res.Effects.Success, res.Effects.Error)

	env.PutObject(coin(t, coinID, 10, 1000, types.AddressOwner(sender)))
	env.PutObject(coin(t, parcelID, 4, 5, types.AddressOwner(coinID)))
	env.SetClock(9, 1234)

	assert.Equal(t, []types.ObjectRef{mustObject(t, env, parcelID).Ref()}, env.PendingReceives(coinID))

	ps := env.Snapshot()
	assert.Equal(t, SnapshotFormatVersion, ps.FormatVersion)
	require.Len(t, ps.PendingReceives, 1)
	assert.Equal(t, coinID, ps.PendingReceives[0].Parent)
	assert.Equal(t, []types.ModuleID{types.NewModuleID(res.Packages[0].Address, "toy")}, ps.Modules)

	home := t.TempDir()
	path := SessionPath(home, true)
	require.NoError(t, SaveSession(nil, path, env))

	found, ok := FindSession(home)
	require.True(t, ok)
	assert.Equal(t, path, found)

	restored, err := LoadSession(nil, home, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, env.Config(), restored.Config())
	assert.Equal(t, refs(env.Objects()), refs(restored.Objects()))
	require.Len(t, restored.Packages(), 1)
	assert.Equal(t, env.Packages()[0].Address, restored.Packages()[0].Address)
	assert.Equal(t, env.Packages()[0].Modules, restored.Packages()[0].Modules)
	assert.Equal(t, ps.Nonce, restored.Snapshot().Nonce)

	// the restored environment keeps executing
	out, err := restored.Execute(transfer(coinID, 10, recipient))
	require.NoError(t, err)
	assert.True(t, out.Effects.Success, out.Effects.Error)

	// the original is independent of the restored copy
	obj := mustObject(t, env, coinID)
	assert.Equal(t, uint64(10), obj.Version)
}

func refs(objs []*types.VersionedObject) []types.ObjectRef {
	out := make([]types.ObjectRef, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Ref())
	}

	return out
}

func mustObject(t *testing.T, env *Env, id types.ObjectID) *types.VersionedObject {
	t.Helper()

	obj, err := env.Object(id)
	require.NoError(t, err)

	return obj
}

func TestRestoreRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	env.PutObject(coin(t, coinID, 1, 1, types.AddressOwner(recipient)))

	err := env.Restore(&PersistentState{FormatVersion: 99})
	assert.ErrorIs(t, err, ErrSnapshotVersion)
	assert.Len(t, env.Objects(), 1)
}

func TestLoadSessionFresh(t *testing.T) {
	t.Parallel()

	home := t.TempDir()

	_, ok := FindSession(home)
	assert.False(t, ok)

	env, err := LoadSession(nil, home, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, env.Objects())

	require.NoError(t, os.WriteFile(filepath.Join(home, "session.json"), []byte("{"), 0o600))

	_, err = LoadSession(nil, home, DefaultConfig())
	assert.Error(t, err)
}

func TestFromReplayState(t *testing.T) {
	t.Parallel()

	sender := types.MustParseAddress("0xa11ce")
	st := types.NewReplayState(types.FetchedTransaction{
		Digest:      types.Digest(types.Blake2b256([]byte("replay"))),
		Sender:      sender,
		Gas:         types.GasData{Owner: sender, Price: 750, Budget: 1_000_000},
		TimestampMs: 42,
		PTB:         *transfer(coinID, 10, recipient),
	})
	st.Epoch = 5
	st.ProtocolVersion = 48

	st.Objects[coinID] = coin(t, coinID, 10, 1000, types.AddressOwner(sender))
	st.Packages[types.FrameworkAddress] = &types.PackageData{Address: types.FrameworkAddress, Version: 9}

	env, err := FromReplayState(nil, st)
	require.NoError(t, err)

	cfg := env.Config()
	assert.Equal(t, sender, cfg.Sender)
	assert.Equal(t, uint64(5), cfg.Epoch)
	assert.Equal(t, uint64(750), cfg.GasPrice)
	assert.Empty(t, env.Packages())

	res, err := env.ExecuteTransaction(&st.Transaction)
	require.NoError(t, err)
	require.True(t, res.Effects.Success, res.Effects.Error)
	assert.Equal(t, uint64(11), res.Effects.LamportVersion)
}
