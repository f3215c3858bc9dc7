package replay

import (
	"context"
	"sync"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/sandbox"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender  = types.MustParseAddress("0xa11ce")
	vaultID = types.MustParseAddress("0xd0")
	itemID  = types.MustParseAddress("0x1e")

	u64Tag  = types.PrimitiveTag(types.TypeU64)
	itemTag = types.StructTag{Address: vaultID, Module: "vault", Name: "Item"}
)

type mockSource struct {
	lock       sync.Mutex
	txs        map[types.Digest]*types.FetchedTransaction
	objects    map[types.ObjectVersion]*types.VersionedObject
	packages   map[types.Address]*types.PackageData
	children   map[types.ObjectID][]types.DynamicFieldInfo
	enumerated int
}

func newMockSource() *mockSource {
	return &mockSource{
		txs:      map[types.Digest]*types.FetchedTransaction{},
		objects:  map[types.ObjectVersion]*types.VersionedObject{},
		packages: map[types.Address]*types.PackageData{},
		children: map[types.ObjectID][]types.DynamicFieldInfo{},
	}
}

func (m *mockSource) addObject(o *types.VersionedObject) {
	m.objects[types.ObjectVersion{ID: o.ID, Version: o.Version}] = o
}

// addChild stores a dynamic field child and lists it under its parent
func (m *mockSource) addChild(parent types.ObjectID, o *types.VersionedObject, key []byte) {
	m.addObject(o)
	m.children[parent] = append(m.children[parent], types.DynamicFieldInfo{
		ChildID:   o.ID,
		Version:   o.Version,
		KeyBytes:  key,
		ChildType: o.Type,
	})
}

func (m *mockSource) FetchTransaction(_ context.Context, d types.Digest) (*types.FetchedTransaction, error) {
	if tx, ok := m.txs[d]; ok {
		return tx, nil
	}

	return nil, source.ErrTransactionMissing
}

func (m *mockSource) FetchObjectAtVersion(_ context.Context, id types.ObjectID, v uint64) (*types.VersionedObject, error) {
	if o, ok := m.objects[types.ObjectVersion{ID: id, Version: v}]; ok {
		return o, nil
	}

	return nil, source.ObjectMissingError(id, v)
}

func (m *mockSource) FetchPackage(_ context.Context, id types.Address) (*types.PackageData, error) {
	if p, ok := m.packages[id]; ok {
		return p, nil
	}

	return nil, source.PackageMissingError(id)
}

func (m *mockSource) EnumerateChildren(_ context.Context, parent types.ObjectID, _ *uint64) ([]types.DynamicFieldInfo, error) {
	m.lock.Lock()
	m.enumerated++
	m.lock.Unlock()

	return m.children[parent], nil
}

// vaultModule builds <self>::vault:
//
//	struct Item has key, store { id: UID, value: u64 }
//	public fun noop()
//	public fun field_value(item: &Item): u64 { *dynamic_field::borrow<u64, u64>(&item.id, 1) }
//	public fun field_at(item: &Item, key: u64): u64 { *dynamic_field::borrow<u64, u64>(&item.id, key) }
//	public fun outer(item: &Item): u64 { field_value(item) }
func vaultModule(t *testing.T, self types.Address) []byte {
	t.Helper()

	u64 := bytecode.Tok(bytecode.TokU64)
	b := bytecode.NewModuleBuilder(self, "vault")

	uid := bytecode.StructTok(b.StructHandle(types.FrameworkAddress, "object", "UID", bytecode.AbilityStore, nil))

	item := b.AddStruct("Item", bytecode.AbilityKey|bytecode.AbilityStore, nil, []bytecode.Field{
		{Name: "id", Type: uid},
		{Name: "value", Type: u64},
	})
	itemTok := bytecode.StructTok(b.StructDefHandle(item))

	borrow := b.ImportFunction(types.FrameworkAddress, "dynamic_field", "borrow",
		[]bytecode.SignatureToken{bytecode.RefTok(uid), bytecode.TypeParamTok(0)},
		[]bytecode.SignatureToken{bytecode.RefTok(bytecode.TypeParamTok(1))},
		[]bytecode.AbilitySet{bytecode.AbilityCopy | bytecode.AbilityDrop | bytecode.AbilityStore, bytecode.AbilityStore})
	borrowU64 := b.FunctionInstantiation(borrow, u64, u64)

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "noop",
		Visibility: bytecode.VisibilityPublic,
		Code:       []bytecode.Instruction{bytecode.Ins(bytecode.OpRet)},
	})

	fieldValue := b.AddFunction(bytecode.FunctionSpec{
		Name:       "field_value",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{bytecode.RefTok(itemTok)},
		Returns:    []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpImmBorrowField, uint64(b.FieldHandle(item, 0))),
			bytecode.Ins(bytecode.OpLdU64, 1),
			bytecode.Ins(bytecode.OpCallGeneric, uint64(borrowU64)),
			bytecode.Ins(bytecode.OpReadRef),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "field_at",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{bytecode.RefTok(itemTok), u64},
		Returns:    []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpImmBorrowField, uint64(b.FieldHandle(item, 0))),
			bytecode.Ins(bytecode.OpMoveLoc, 1),
			bytecode.Ins(bytecode.OpCallGeneric, uint64(borrowU64)),
			bytecode.Ins(bytecode.OpReadRef),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "outer",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{bytecode.RefTok(itemTok)},
		Returns:    []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpCall, uint64(fieldValue)),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	code, err := b.Bytes()
	require.NoError(t, err)

	return code
}

func vaultPackage(t *testing.T) *types.PackageData {
	t.Helper()

	return &types.PackageData{
		Address: vaultID,
		Version: 1,
		Modules: []types.ModuleBytes{{Name: "vault", Bytecode: vaultModule(t, vaultID)}},
	}
}

func itemObject(t *testing.T) *types.VersionedObject {
	t.Helper()

	contents, err := vm.Serialize(vm.StructValue(itemTag, framework.UIDValue(itemID), vm.U64(1)))
	require.NoError(t, err)

	return types.NewVersionedObject(itemID, 8, types.StructTypeTag(itemTag), contents, types.AddressOwner(sender))
}

func childKey() []byte {
	return bcs.EncodeU64(1)
}

func childID() types.ObjectID {
	return types.DynamicFieldID(itemID, u64Tag, childKey())
}

func fieldChild(t *testing.T) *types.VersionedObject {
	t.Helper()

	field := framework.FieldTag(u64Tag, u64Tag)

	contents, err := vm.Serialize(vm.StructValue(field, framework.UIDValue(childID()), vm.U64(1), vm.U64(9)))
	require.NoError(t, err)

	return types.NewVersionedObject(childID(), 6, types.StructTypeTag(field), contents, types.ObjectOwner(itemID))
}

func vaultTransaction(function string) *types.FetchedTransaction {
	return &types.FetchedTransaction{
		Digest: types.Digest(types.Blake2b256([]byte("replay"), []byte(function))),
		Sender: sender,
		Gas:    types.GasData{Owner: sender, Price: 1, Budget: 1_000_000},
		PTB: types.ProgrammableTransaction{
			Inputs: []types.TransactionInput{types.ObjectInput(types.ObjectRef{ID: itemID, Version: 8})},
			Commands: []types.Command{{MoveCall: &types.MoveCall{
				Package:   vaultID,
				Module:    "vault",
				Function:  function,
				Arguments: []types.Argument{types.Input(0)},
			}}},
		},
	}
}

// onChainEffects runs tx against a complete state and records the
// effects the way the chain would have reported them
func onChainEffects(t *testing.T, tx *types.FetchedTransaction) *types.EffectsSummary {
	t.Helper()

	st := types.NewReplayState(*tx)
	st.ProtocolVersion = 1
	st.Epoch = 3
	st.Objects[itemID] = itemObject(t)
	st.Objects[childID()] = fieldChild(t)
	st.Packages[vaultID] = vaultPackage(t)

	env, err := sandbox.FromReplayState(nil, st)
	require.NoError(t, err)

	res, err := env.ExecuteTransaction(tx)
	require.NoError(t, err)

	local := res.Effects
	summary := &types.EffectsSummary{
		Success:         local.Success,
		Error:           local.Error,
		Gas:             local.GasSummary,
		Epoch:           3,
		ProtocolVersion: 1,
	}

	transferred := map[types.ObjectID]bool{}
	for _, id := range local.Transferred {
		transferred[id] = true
	}

	for _, set := range []struct {
		ids []types.ObjectID
		op  types.ChangeOperation
	}{
		{local.Created, types.OpCreated},
		{local.Mutated, types.OpMutated},
		{local.Deleted, types.OpDeleted},
		{local.Wrapped, types.OpWrapped},
		{local.Unwrapped, types.OpUnwrapped},
	} {
		for _, id := range set.ids {
			summary.ChangedObjects = append(summary.ChangedObjects, types.ChangedObject{
				ID:          id,
				Operation:   set.op,
				Transferred: transferred[id],
			})
		}
	}

	return summary
}

func newVaultSource(t *testing.T, withChild bool) *mockSource {
	t.Helper()

	src := newMockSource()
	src.addObject(itemObject(t))
	src.packages[vaultID] = vaultPackage(t)

	if withChild {
		src.addChild(itemID, fieldChild(t), childKey())
	}

	return src
}

func TestReplayFirstAttempt(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)
	// the chain reported the child as loaded at runtime
	tx.Effects.UnchangedLoadedRuntimeObjects = []types.ObjectVersion{{ID: childID(), Version: 6}}

	src := newVaultSource(t, true)
	engine := NewEngine(nil, source.BundleOf(src), DefaultConfig())

	out, err := engine.ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	assert.True(t, out.Success())
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, LevelInputs, out.Attempts[0].Level)
	assert.True(t, out.Comparison.OK)
	assert.Equal(t, ReasonOK, out.Comparison.ReasonCode)
	assert.NotEmpty(t, out.RunID)
	assert.Zero(t, src.enumerated)
}

func TestReplayEscalatesToChildFetcher(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	src := newVaultSource(t, true)
	engine := NewEngine(nil, source.BundleOf(src), DefaultConfig())

	out, err := engine.ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	require.Len(t, out.Attempts, 2)
	assert.Equal(t, ClassMissingChildObject, out.Attempts[0].Class)
	assert.False(t, out.Attempts[0].LocalSuccess)
	assert.Equal(t, LevelChildFetcher, out.Attempts[1].Level)
	assert.Equal(t, ClassNone, out.Attempts[1].Class)
	assert.True(t, out.Success())
	assert.True(t, out.Comparison.OK)

	stats := engine.Stats()
	assert.Equal(t, uint64(1), stats.Replays)
	assert.Equal(t, uint64(1), stats.Succeeded)
	assert.Equal(t, uint64(2), stats.Attempts)
}

func TestReplayGivesUp(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	src := newVaultSource(t, false)
	engine := NewEngine(nil, source.BundleOf(src), DefaultConfig())

	out, err := engine.ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	require.Len(t, out.Attempts, MaxAttempts)

	for i, a := range out.Attempts {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, Level(i+1), a.Level)
		assert.Equal(t, ClassMissingChildObject, a.Class)
	}

	assert.False(t, out.Success())
	assert.Equal(t, ClassMissingChildObject, out.Class)
	assert.Positive(t, src.enumerated)
}

func TestReplayMaxAttempts(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	cfg := DefaultConfig()
	cfg.MaxAttempts = 1

	engine := NewEngine(nil, source.BundleOf(newVaultSource(t, true)), cfg)

	out, err := engine.ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	require.Len(t, out.Attempts, 1)
	assert.Equal(t, ClassMissingChildObject, out.Class)
}

func TestReplayUnrecoverable(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("noop")
	tx.PTB.Commands[0].MoveCall.Arguments = nil
	tx.Effects = onChainEffects(t, tx)
	// the chain says it failed, locally it cannot
	tx.Effects.Success = false

	engine := NewEngine(nil, source.BundleOf(newVaultSource(t, false)), DefaultConfig())

	out, err := engine.ReplayTransaction(context.Background(), tx, nil)
	require.NoError(t, err)

	require.Len(t, out.Attempts, 1)
	assert.Equal(t, ClassUnrecoverable, out.Class)
	assert.False(t, out.Success())
	assert.Equal(t, ReasonStatusMismatch, out.Comparison.ReasonCode)
}

func TestReplayState(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	st := types.NewReplayState(*tx)
	st.Objects[itemID] = itemObject(t)
	st.Objects[childID()] = fieldChild(t)
	st.Packages[vaultID] = vaultPackage(t)

	// no sources at all, the state is self-contained
	engine := NewEngine(nil, source.Bundle{}, DefaultConfig())

	out, err := engine.ReplayState(context.Background(), st)
	require.NoError(t, err)

	assert.True(t, out.Success())
	assert.Len(t, out.Attempts, 1)
}

func TestReplayByDigest(t *testing.T) {
	t.Parallel()

	tx := vaultTransaction("field_value")
	tx.Effects = onChainEffects(t, tx)

	src := newVaultSource(t, true)
	src.txs[tx.Digest] = tx

	engine := NewEngine(nil, source.BundleOf(src), DefaultConfig())

	out, err := engine.Replay(context.Background(), tx.Digest)
	require.NoError(t, err)
	assert.True(t, out.Success())
	assert.Equal(t, tx.Digest, out.Digest)

	_, err = engine.Replay(context.Background(), types.Digest(types.Blake2b256([]byte("unknown"))))
	assert.ErrorIs(t, err, source.ErrTransactionMissing)

	_, err = NewEngine(nil, source.Bundle{}, DefaultConfig()).Replay(context.Background(), tx.Digest)
	assert.ErrorIs(t, err, ErrNoTransactionSource)
}

func TestPrefetcherEager(t *testing.T) {
	t.Parallel()

	src := newVaultSource(t, true)
	pf := newPrefetcher(nil, src, src, nil, nil, 0)

	st := types.NewReplayState(*vaultTransaction("field_value"))
	st.Objects[itemID] = itemObject(t)

	added, err := pf.eager(context.Background(), st, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	assert.Contains(t, st.Objects, childID())

	// a later state starts with what was fetched
	next := types.NewReplayState(*vaultTransaction("field_value"))
	assert.Equal(t, 1, pf.merge(next))
	assert.Contains(t, next.Objects, childID())
}

func TestPrefetcherLimit(t *testing.T) {
	t.Parallel()

	src := newVaultSource(t, true)
	pf := newPrefetcher(nil, src, src, nil, nil, 0)
	pf.limit = 1

	// a second child beyond the limit
	other := fieldChild(t)
	otherKey := bcs.EncodeU64(2)
	other = types.NewVersionedObject(types.DynamicFieldID(itemID, u64Tag, otherKey), 6, other.Type, other.BCS, types.ObjectOwner(itemID))
	src.addChild(itemID, other, otherKey)

	st := types.NewReplayState(*vaultTransaction("field_value"))

	added, err := pf.load(context.Background(), st, itemID, nil)
	require.NoError(t, err)
	assert.Len(t, added, 1)
}

func TestChildFetchers(t *testing.T) {
	t.Parallel()

	src := newVaultSource(t, true)
	pf := newPrefetcher(nil, src, src, nil, nil, 0)
	f := pf.fetchers(context.Background())

	obj, err := f.ByVersion(itemID, childID(), 10)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, childID(), obj.ID)

	// version bound below the only enumerated version
	obj, err = f.ByVersion(itemID, childID(), 5)
	require.NoError(t, err)
	assert.Nil(t, obj)

	obj, err = f.ByName(itemID, "1")
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, childID(), obj.ID)
}

func TestVersionPatchIsOptIn(t *testing.T) {
	t.Parallel()

	assert.False(t, DefaultConfig().VersionPatch)

	cases := []struct {
		name    string
		allowed bool
	}{
		{"default", false},
		{"allowed", true},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.VersionPatch = c.allowed

			r := &run{Engine: NewEngine(nil, source.Bundle{}, cfg), out: &Outcome{}}
			r.escalate(ClassVersionMismatch)

			assert.Equal(t, c.allowed, r.opts.PatchVersions)
			assert.Equal(t, c.allowed, len(r.out.Hints) == 1)
		})
	}
}
