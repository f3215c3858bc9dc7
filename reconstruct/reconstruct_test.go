package reconstruct

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender   = types.MustParseAddress("0xa11ce")
	pkgA     = types.MustParseAddress("0xa0")
	pkgB     = types.MustParseAddress("0xb0")
	pkgBv2   = types.MustParseAddress("0xb2")
	ownedID  = types.MustParseAddress("0x101")
	sharedID = types.MustParseAddress("0x102")
	recvID   = types.MustParseAddress("0x103")
	childID  = types.MustParseAddress("0x104")
	gasID    = types.MustParseAddress("0x105")
)

type mockSource struct {
	lock     sync.Mutex
	objects  map[types.ObjectVersion]*types.VersionedObject
	packages map[types.Address]*types.PackageData
	fetched  []types.Address
}

func newMockSource() *mockSource {
	return &mockSource{
		objects:  map[types.ObjectVersion]*types.VersionedObject{},
		packages: map[types.Address]*types.PackageData{},
	}
}

func (m *mockSource) addObject(o *types.VersionedObject) {
	m.objects[types.ObjectVersion{ID: o.ID, Version: o.Version}] = o
}

func (m *mockSource) FetchTransaction(context.Context, types.Digest) (*types.FetchedTransaction, error) {
	return nil, source.ErrTransactionMissing
}

func (m *mockSource) FetchObjectAtVersion(_ context.Context, id types.ObjectID, v uint64) (*types.VersionedObject, error) {
	if o, ok := m.objects[types.ObjectVersion{ID: id, Version: v}]; ok {
		return o, nil
	}

	return nil, source.ObjectMissingError(id, v)
}

func (m *mockSource) FetchPackage(_ context.Context, id types.Address) (*types.PackageData, error) {
	m.lock.Lock()
	m.fetched = append(m.fetched, id)
	m.lock.Unlock()

	if p, ok := m.packages[id]; ok {
		return p, nil
	}

	return nil, source.PackageMissingError(id)
}

// configModule builds <self>::config with a versioned shared object, a
// plain object and a check function comparing against constant version
func configModule(t *testing.T, self types.Address, version uint64) []byte {
	t.Helper()

	u64 := bytecode.Tok(bytecode.TokU64)
	b := bytecode.NewModuleBuilder(self, "config")
	uid := bytecode.StructTok(b.StructHandle(types.FrameworkAddress, "object", "UID", bytecode.AbilityStore, nil))

	b.AddStruct("Config", bytecode.AbilityKey|bytecode.AbilityStore, nil, []bytecode.Field{
		{Name: "id", Type: uid},
		{Name: "package_version", Type: u64},
	})
	b.AddStruct("Plain", bytecode.AbilityKey|bytecode.AbilityStore, nil, []bytecode.Field{
		{Name: "id", Type: uid},
		{Name: "amount", Type: u64},
	})

	c := b.Constant(u64, binary.LittleEndian.AppendUint64(nil, version))
	big := b.Constant(u64, binary.LittleEndian.AppendUint64(nil, 5000))

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "check",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{u64},
		Returns:    []bytecode.SignatureToken{bytecode.Tok(bytecode.TokBool)},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpLdConst, uint64(c)),
			bytecode.Ins(bytecode.OpEq),
			bytecode.Ins(bytecode.OpRet),
		},
	})
	b.AddFunction(bytecode.FunctionSpec{
		Name:       "limit",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{u64},
		Returns:    []bytecode.SignatureToken{bytecode.Tok(bytecode.TokBool)},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpLdConst, uint64(big)),
			bytecode.Ins(bytecode.OpLt),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	code, err := b.Bytes()
	require.NoError(t, err)

	return code
}

func configPackage(t *testing.T, version uint64) *types.PackageData {
	t.Helper()

	return &types.PackageData{
		Address: pkgB,
		Version: 1,
		Modules: []types.ModuleBytes{{Name: "config", Bytecode: configModule(t, pkgB, version)}},
	}
}

func objectBytes(id types.ObjectID, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(id.Bytes(), value)
}

func configObject(id types.ObjectID, name string, value uint64) *types.VersionedObject {
	tag := types.MustParseTypeTag(pkgB.String() + "::config::" + name)

	return types.NewVersionedObject(id, 4, tag, objectBytes(id, value), types.SharedOwner(1))
}

func testTransaction() *types.FetchedTransaction {
	return &types.FetchedTransaction{
		Digest: types.Digest(types.Blake2b256([]byte("tx"))),
		Sender: sender,
		Gas: types.GasData{
			Payment: []types.ObjectRef{{ID: gasID, Version: 3}},
			Owner:   sender,
			Price:   1000,
			Budget:  50_000_000,
		},
		PTB: types.ProgrammableTransaction{
			Inputs: []types.TransactionInput{
				types.ObjectInput(types.ObjectRef{ID: ownedID, Version: 10}),
				types.SharedInput(sharedID, 2, true),
				types.ReceivingInput(types.ObjectRef{ID: recvID, Version: 7}),
				types.SharedInput(types.ClockObjectID, 1, false),
				types.PureU64(42),
			},
			Commands: []types.Command{{MoveCall: &types.MoveCall{
				Package:  pkgA,
				Module:   "entry",
				Function: "run",
			}}},
		},
		Effects: &types.EffectsSummary{
			Success: true,
			ChangedObjects: []types.ChangedObject{
				{ID: ownedID, InputVersion: 10, OutputVersion: 12, Operation: types.OpMutated},
				{ID: sharedID, InputVersion: 9, OutputVersion: 12, Operation: types.OpMutated},
				{ID: types.MustParseAddress("0x1ff"), OutputVersion: 12, Operation: types.OpCreated},
			},
			UnchangedLoadedRuntimeObjects: []types.ObjectVersion{{ID: childID, Version: 6}},
			UnchangedConsensusObjects:     []types.ObjectVersion{{ID: types.ClockObjectID, Version: 11}},
			Epoch:                         30,
			ProtocolVersion:               60,
		},
		TimestampMs: 1_700_000_000_000,
	}
}

func TestAggregateVersions(t *testing.T) {
	t.Parallel()

	tx := testTransaction()
	m := AggregateVersions(tx)

	assert.Equal(t, uint64(10), m.Versions[ownedID])
	assert.Equal(t, uint64(9), m.Versions[sharedID], "shared initial version must not replace the recorded one")
	assert.Equal(t, FromChanged, m.Sources[sharedID])
	assert.Equal(t, uint64(7), m.Versions[recvID])
	assert.Equal(t, uint64(6), m.Versions[childID])
	assert.Equal(t, uint64(11), m.Versions[types.ClockObjectID])
	assert.Equal(t, uint64(3), m.Versions[gasID])

	_, created := m.Versions[types.MustParseAddress("0x1ff")]
	assert.False(t, created)

	for _, in := range tx.PTB.Inputs {
		if in.IsObject() {
			assert.Contains(t, m.Versions, in.ID)
		}
	}

	sorted := m.Sorted()
	require.Len(t, sorted, m.Len())

	for i := 1; i < len(sorted); i++ {
		assert.True(t, sorted[i-1].ID.Less(sorted[i].ID))
	}
}

func TestAggregateEarliestWins(t *testing.T) {
	t.Parallel()

	tx := testTransaction()
	tx.Effects.UnchangedLoadedRuntimeObjects = append(tx.Effects.UnchangedLoadedRuntimeObjects,
		types.ObjectVersion{ID: ownedID, Version: 8})

	m := AggregateVersions(tx)
	assert.Equal(t, uint64(8), m.Versions[ownedID])
	assert.Equal(t, FromLoadedRuntime, m.Sources[ownedID])
}

func TestLinkageMap(t *testing.T) {
	t.Parallel()

	original := pkgB
	pkgs := map[types.Address]*types.PackageData{
		pkgA: {
			Address: pkgA,
			Version: 1,
			Linkage: []types.LinkageEntry{{OriginalID: pkgB, UpgradedID: pkgB, UpgradedVersion: 1}},
		},
		pkgBv2: {Address: pkgBv2, Version: 2, OriginalID: &original},
	}

	l := BuildLinkageMap(pkgs)

	assert.Equal(t, pkgBv2, l.StorageID(pkgB))
	assert.Equal(t, pkgB, l.RuntimeID(pkgBv2))
	assert.Equal(t, pkgA, l.StorageID(pkgA))

	unknown := types.MustParseAddress("0x999")
	assert.Equal(t, unknown, l.StorageID(unknown))
	assert.Equal(t, 2, l.Len())
}

func TestPackageClosure(t *testing.T) {
	t.Parallel()

	src := newMockSource()
	src.packages[pkgA] = &types.PackageData{
		Address: pkgA,
		Version: 1,
		Linkage: []types.LinkageEntry{
			{OriginalID: pkgB, UpgradedID: pkgBv2, UpgradedVersion: 2},
			{OriginalID: types.FrameworkAddress, UpgradedID: types.FrameworkAddress, UpgradedVersion: 1},
		},
	}

	c, err := PackageClosure(context.Background(), src, []types.Address{pkgA, types.FrameworkAddress}, nil, 2)
	require.NoError(t, err)

	assert.Contains(t, c.Packages, pkgA)
	assert.Equal(t, []types.Address{pkgBv2}, c.Missing)
	require.NotNil(t, c.Hydration)
	assert.True(t, source.IsHydrationError(c.Hydration.Errors[0], source.PackageMissing))
	assert.NotContains(t, src.fetched, types.FrameworkAddress)

	for _, pkg := range c.Packages {
		for _, l := range pkg.Linkage {
			if l.UpgradedID.IsFramework() {
				continue
			}

			_, held := c.Packages[l.UpgradedID]
			assert.True(t, held || contains(c.Missing, l.UpgradedID))
		}
	}
}

type failingPackages struct{}

func (failingPackages) FetchPackage(context.Context, types.Address) (*types.PackageData, error) {
	return nil, errors.New("disk on fire")
}

func TestPackageClosureInfrastructureError(t *testing.T) {
	t.Parallel()

	_, err := PackageClosure(context.Background(), failingPackages{}, []types.Address{pkgA}, nil, 1)
	assert.Error(t, err)
}

func contains(list []types.Address, a types.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}

	return false
}

func TestDetectVersion(t *testing.T) {
	t.Parallel()

	m, err := resolver.Compile(configModule(t, pkgB, 3))
	require.NoError(t, err)

	v, ok := DetectVersion(m, DefaultMinVersionConst, DefaultMaxVersionConst)
	require.True(t, ok)
	assert.Equal(t, uint64(3), v)

	_, ok = DetectVersion(m, 10, 20)
	assert.False(t, ok)
}

func patchFixture(t *testing.T, version uint64) (*Patcher, *resolver.View) {
	t.Helper()

	res, err := resolver.New(nil).WithFramework()
	require.NoError(t, err)

	pkg := configPackage(t, version)
	require.NoError(t, res.AddPackage(pkg))

	p := NewPatcher(nil, nil)
	p.Scan(pkg)

	view, err := res.View(types.ZeroAddress)
	require.NoError(t, err)

	return p, view
}

func TestPatchVersionField(t *testing.T) {
	t.Parallel()

	p, view := patchFixture(t, 3)

	detected, ok := p.Detected(pkgB)
	require.True(t, ok)
	assert.Equal(t, uint64(3), detected)

	obj := configObject(sharedID, "Config", 1)
	original := types.CopyBytes(obj.BCS)

	out, changed, err := p.Patch(obj, view)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, objectBytes(sharedID, 3), out.BCS)
	assert.Equal(t, types.ObjectDigest(out.BCS), out.Digest)
	assert.NotEqual(t, obj.Digest, out.Digest)
	assert.Equal(t, original, obj.BCS, "input object must not be modified")
	assert.Equal(t, obj.Version, out.Version)
}

func TestPatchLeavesBytesUnchanged(t *testing.T) {
	t.Parallel()

	p, view := patchFixture(t, 3)

	cases := []struct {
		name string
		obj  *types.VersionedObject
	}{
		{"no version field", configObject(sharedID, "Plain", 1)},
		{"already current", configObject(sharedID, "Config", 3)},
		{"newer than detected", configObject(sharedID, "Config", 9)},
		{
			"package without detected version",
			types.NewVersionedObject(ownedID, 1, types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>"),
				objectBytes(ownedID, 1), types.AddressOwner(sender)),
		},
	}

	for _, c := range cases {
		before := types.CopyBytes(c.obj.BCS)

		out, changed, err := p.Patch(c.obj, view)
		require.NoError(t, err, c.name)
		assert.False(t, changed, c.name)
		assert.Equal(t, before, out.BCS, c.name)
	}
}

func TestSetRule(t *testing.T) {
	t.Parallel()

	res, err := resolver.New(nil).WithFramework()
	require.NoError(t, err)

	pkg := configPackage(t, 3)
	require.NoError(t, res.AddPackage(pkg))

	p := NewPatcher(nil, []Rule{{Field: "amount", Action: Set, Value: 77, Condition: Always}})
	p.Scan(pkg)

	view, err := res.View(types.ZeroAddress)
	require.NoError(t, err)

	out, changed, err := p.Patch(configObject(sharedID, "Plain", 100), view)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, objectBytes(sharedID, 77), out.BCS)
}

func TestSynthesizeSystemObjects(t *testing.T) {
	t.Parallel()

	tx := testTransaction()
	st := types.NewReplayState(*tx)
	st.Epoch = 30

	created := SynthesizeSystemObjects(st, AggregateVersions(tx))
	assert.Equal(t, []types.ObjectID{types.ClockObjectID}, created)

	clock := st.Objects[types.ClockObjectID]
	require.NotNil(t, clock)
	assert.Equal(t, uint64(11), clock.Version)
	assert.True(t, clock.IsShared)
	assert.Equal(t, tx.TimestampMs, binary.LittleEndian.Uint64(clock.BCS[types.AddressLength:]))

	// present objects are never replaced
	assert.Empty(t, SynthesizeSystemObjects(st, AggregateVersions(tx)))

	tx.PTB.Inputs = append(tx.PTB.Inputs, types.SharedInput(types.RandomObjectID, 1, false))
	st.Transaction = *tx

	created = SynthesizeSystemObjects(st, nil)
	assert.Equal(t, []types.ObjectID{types.RandomObjectID}, created)
	assert.Equal(t, RandomSeed(tx.Digest, 30), st.Objects[types.RandomObjectID].BCS[types.AddressLength+1:])
	assert.NotEqual(t, RandomSeed(tx.Digest, 30), RandomSeed(tx.Digest, 31))
}

func TestBuild(t *testing.T) {
	t.Parallel()

	tx := testTransaction()
	src := newMockSource()

	coin := types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	src.addObject(types.NewVersionedObject(ownedID, 10, coin, objectBytes(ownedID, 5), types.AddressOwner(sender)))
	src.addObject(types.NewVersionedObject(sharedID, 9, types.MustParseTypeTag(pkgB.String()+"::config::Config"),
		objectBytes(sharedID, 1), types.SharedOwner(2)))
	src.addObject(types.NewVersionedObject(gasID, 3, coin, objectBytes(gasID, 9), types.AddressOwner(sender)))

	src.packages[pkgA] = &types.PackageData{
		Address: pkgA,
		Version: 1,
		Modules: []types.ModuleBytes{{Name: "config", Bytecode: configModule(t, pkgA, 1)}},
		Linkage: []types.LinkageEntry{{OriginalID: pkgB, UpgradedID: pkgB, UpgradedVersion: 1}},
	}
	src.packages[pkgB] = configPackage(t, 3)

	r := New(nil, src, src, Options{Parallelism: 2, PatchVersions: true})

	st, diag, err := r.Build(context.Background(), tx, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(30), st.Epoch)
	assert.Equal(t, uint64(60), st.ProtocolVersion)
	assert.Contains(t, st.Packages, pkgA)
	assert.Contains(t, st.Packages, pkgB)
	assert.Equal(t, []types.ObjectID{types.ClockObjectID}, diag.Synthesized)

	missing := map[types.ObjectID]bool{}
	for _, ov := range diag.MissingObjects {
		missing[ov.ID] = true
	}

	assert.True(t, missing[recvID])
	assert.True(t, missing[childID])
	assert.False(t, missing[types.ClockObjectID])
	assert.False(t, diag.Complete())
	assert.Error(t, diag.Err())

	assert.Equal(t, []types.ObjectID{sharedID}, diag.Patched)
	assert.Equal(t, objectBytes(sharedID, 3), st.Objects[sharedID].BCS)
}

func TestBuildReusesBase(t *testing.T) {
	t.Parallel()

	tx := testTransaction()
	tx.PTB.Commands = nil
	tx.Effects = nil

	base := types.NewReplayState(*tx)
	base.Epoch = 7

	coin := types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	for _, ref := range []types.ObjectRef{{ID: ownedID, Version: 10}, {ID: recvID, Version: 7}, {ID: gasID, Version: 3}} {
		base.Objects[ref.ID] = types.NewVersionedObject(ref.ID, ref.Version, coin, objectBytes(ref.ID, 1), types.AddressOwner(sender))
	}

	base.Objects[sharedID] = types.NewVersionedObject(sharedID, 2, coin, objectBytes(sharedID, 1), types.SharedOwner(2))

	st, diag, err := New(nil, nil, nil, Options{}).Build(context.Background(), tx, base)
	require.NoError(t, err)

	assert.True(t, diag.Complete())
	assert.NoError(t, diag.Err())
	assert.Equal(t, uint64(7), st.Epoch)
	assert.Len(t, st.Objects, 5)
}
