package framework

import (
	"errors"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loader map[types.ModuleID]*bytecode.CompiledModule

func (l loader) LoadModule(id types.ModuleID) (*bytecode.CompiledModule, error) {
	m, ok := l[id]
	if !ok {
		return nil, errors.New("missing " + id.String())
	}

	return m, nil
}

type fakeHost struct {
	created   []types.ObjectID
	deleted   []types.ObjectID
	owners    map[types.ObjectID]types.Owner
	events    []types.TypeTag
	children  map[types.ObjectID]*vm.Struct
	lastChild ChildRequest
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		owners:   map[types.ObjectID]types.Owner{},
		children: map[types.ObjectID]*vm.Struct{},
	}
}

func (h *fakeHost) CreateObject(id types.ObjectID) {
	h.created = append(h.created, id)
}

func (h *fakeHost) DeleteObject(id types.ObjectID) error {
	h.deleted = append(h.deleted, id)

	return nil
}

func (h *fakeHost) TransferObject(obj *vm.Struct, owner types.Owner) error {
	id, err := ObjectIDOf(obj)
	if err != nil {
		return err
	}

	h.owners[id] = owner

	return nil
}

func (h *fakeHost) EmitEvent(_ types.ModuleID, t types.TypeTag, _ []byte) error {
	h.events = append(h.events, t)

	return nil
}

func (h *fakeHost) AddChild(req ChildRequest, field *vm.Struct) error {
	if _, ok := h.children[req.Child]; ok {
		return ErrFieldExists
	}

	h.children[req.Child] = field

	return nil
}

func (h *fakeHost) BorrowChild(req ChildRequest, _ bool) (*vm.Struct, error) {
	h.lastChild = req

	field, ok := h.children[req.Child]
	if !ok {
		return nil, ErrFieldMissing
	}

	if ft := req.FieldType(); ft != nil && !ft.Equal(types.StructTypeTag(field.Type)) {
		return nil, ErrFieldTypeMismatch
	}

	return field, nil
}

func (h *fakeHost) RemoveChild(req ChildRequest) (*vm.Struct, error) {
	field, err := h.BorrowChild(req, true)
	if err != nil {
		return nil, err
	}

	delete(h.children, req.Child)

	return field, nil
}

func (h *fakeHost) ChildExists(req ChildRequest) (bool, error) {
	field, ok := h.children[req.Child]
	if !ok {
		return false, nil
	}

	if ft := req.FieldType(); ft != nil {
		return ft.Equal(types.StructTypeTag(field.Type)), nil
	}

	return true, nil
}

func (h *fakeHost) ReceiveObject(_, id types.ObjectID, _ uint64, t types.TypeTag) (*vm.Struct, error) {
	return vm.StructValue(*t.Struct, UIDValue(id)), nil
}

func newMachine(t *testing.T) (*vm.VM, *fakeHost) {
	t.Helper()

	mods, err := Modules()
	require.NoError(t, err)

	l := loader{}
	for _, m := range mods {
		l[m.Self()] = m
	}

	host := newFakeHost()

	return vm.New(l, Natives(host), nil), host
}

func refTo(v vm.Value) *vm.Ref {
	slot := v

	return vm.NewRef(true, func() vm.Value { return slot }, func(nv vm.Value) { slot = nv })
}

var (
	sender  = types.MustParseAddress("0xa11ce")
	digest  = types.Digest(types.Blake2b256([]byte("tx")))
	suiType = types.StructTypeTag(SUITag)

	coinModule  = types.NewModuleID(types.FrameworkAddress, "coin")
	fieldModule = types.NewModuleID(types.FrameworkAddress, "dynamic_field")
)

func TestModulesBundle(t *testing.T) {
	t.Parallel()

	mods, err := Modules()
	require.NoError(t, err)
	assert.Len(t, mods, len(builders))

	pkgs, err := Packages()
	require.NoError(t, err)
	require.Len(t, pkgs, 2)

	assert.Equal(t, types.StdlibAddress, pkgs[0].Address)
	assert.Equal(t, []string{"bcs"}, pkgs[0].ModuleNames())
	assert.Equal(t, types.FrameworkAddress, pkgs[1].Address)
	assert.Contains(t, pkgs[1].ModuleNames(), "dynamic_field")

	for _, pkg := range pkgs {
		for _, m := range pkg.Modules {
			decoded, err := bytecode.Deserialize(m.Bytecode)
			require.NoError(t, err, m.Name)
			assert.Equal(t, m.Name, decoded.Self().Name)
		}
	}

	// callers get copies
	pkgs[0].Modules = nil
	again, err := Packages()
	require.NoError(t, err)
	assert.Len(t, again[0].Modules, 1)
}

func TestCoinSplitAndJoin(t *testing.T) {
	t.Parallel()

	machine, host := newMachine(t)

	coinID := types.MustParseAddress("0xc0")
	coin := refTo(CoinValue(coinID, suiType, 1000))
	ctx := refTo(TxContextValue(sender, digest, 7, 0, 0))

	out, err := machine.Execute(coinModule, "split", []types.TypeTag{suiType},
		[]vm.Value{coin, vm.U64(300), ctx})
	require.NoError(t, err)
	require.Len(t, out, 1)

	newID := types.DeriveObjectID(digest, 0)
	assert.Equal(t, []types.ObjectID{newID}, host.created)

	left, err := CoinBalance(coin)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), left)

	split, err := CoinBalance(out[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(300), split)

	count, err := IDsCreated(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	_, err = machine.Execute(coinModule, "join", []types.TypeTag{suiType}, []vm.Value{coin, out[0]})
	require.NoError(t, err)

	total, err := CoinBalance(coin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), total)
	assert.Equal(t, []types.ObjectID{newID}, host.deleted)

	_, err = machine.Execute(coinModule, "split", []types.TypeTag{suiType},
		[]vm.Value{coin, vm.U64(1001), ctx})

	var ee *vm.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, vm.KindAbort, ee.Kind)
	assert.Equal(t, uint64(abortNotEnough), ee.AbortCode)
	assert.Equal(t, coinModule, ee.Location.Module)
}

func TestDynamicFields(t *testing.T) {
	t.Parallel()

	machine, host := newMachine(t)

	parent := types.MustParseAddress("0xf1")
	u64 := types.PrimitiveTag(types.TypeU64)
	tyArgs := []types.TypeTag{u64, u64}
	uid := refTo(UIDValue(parent))

	_, err := machine.Execute(fieldModule, "add", tyArgs, []vm.Value{uid, vm.U64(42), vm.U64(9)})
	require.NoError(t, err)

	_, err = machine.Execute(fieldModule, "add", tyArgs, []vm.Value{uid, vm.U64(42), vm.U64(9)})

	var ee *vm.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, uint64(abortFieldExists), ee.AbortCode)

	out, err := machine.Execute(fieldModule, "borrow_mut", tyArgs, []vm.Value{uid, vm.U64(42)})
	require.NoError(t, err)

	key := vm.U64(42)
	keyBytes, err := vm.Serialize(key)
	require.NoError(t, err)

	assert.Equal(t, parent, host.lastChild.Parent)
	assert.Equal(t, keyBytes, host.lastChild.KeyBytes)
	assert.Equal(t, types.DynamicFieldID(parent, u64, keyBytes), host.lastChild.Child)

	r, ok := out[0].(*vm.Ref)
	require.True(t, ok)
	r.Set(vm.U64(10))

	exists, err := machine.Execute(fieldModule, "exists_with_type", tyArgs, []vm.Value{uid, vm.U64(42)})
	require.NoError(t, err)
	assert.Equal(t, vm.Bool(true), exists[0])

	wrongType := []types.TypeTag{u64, types.PrimitiveTag(types.TypeBool)}
	_, err = machine.Execute(fieldModule, "borrow", wrongType, []vm.Value{uid, vm.U64(42)})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, uint64(abortFieldType), ee.AbortCode)

	removed, err := machine.Execute(fieldModule, "remove", tyArgs, []vm.Value{uid, vm.U64(42)})
	require.NoError(t, err)
	assert.True(t, vm.Equal(vm.U64(10), removed[0]))

	exists, err = machine.Execute(fieldModule, "exists_", tyArgs[:1], []vm.Value{uid, vm.U64(42)})
	require.NoError(t, err)
	assert.Equal(t, vm.Bool(false), exists[0])
}

func TestTransferVisibility(t *testing.T) {
	t.Parallel()

	machine, host := newMachine(t)

	transferModule := types.NewModuleID(types.FrameworkAddress, "transfer")
	coinID := types.MustParseAddress("0xc1")
	coinType := GasCoinType()
	recipient := types.MustParseAddress("0xb0b")

	_, err := machine.Execute(transferModule, "transfer", []types.TypeTag{coinType},
		[]vm.Value{CoinValue(coinID, suiType, 5), vm.Address(recipient)})

	var ee *vm.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, vm.KindTypeError, ee.Kind)

	_, err = machine.Execute(transferModule, "public_transfer", []types.TypeTag{coinType},
		[]vm.Value{CoinValue(coinID, suiType, 5), vm.Address(recipient)})
	require.NoError(t, err)
	assert.Equal(t, types.AddressOwner(recipient), host.owners[coinID])

	_, err = machine.Execute(transferModule, "public_share_object", []types.TypeTag{coinType},
		[]vm.Value{CoinValue(coinID, suiType, 5)})
	require.NoError(t, err)
	assert.Equal(t, types.OwnerShared, host.owners[coinID].Kind)
}

func TestUpgradeCapFlow(t *testing.T) {
	t.Parallel()

	machine, _ := newMachine(t)

	pkgModule := types.NewModuleID(types.FrameworkAddress, "package")
	capID := types.MustParseAddress("0xca9")
	oldPkg := types.MustParseAddress("0x1234")
	newPkg := types.MustParseAddress("0x5678")
	upgradeCap := refTo(UpgradeCapValue(capID, oldPkg, 1, PolicyCompatible))

	out, err := machine.Execute(pkgModule, "authorize_upgrade", nil,
		[]vm.Value{upgradeCap, vm.U8(PolicyCompatible), vm.BytesVector([]byte{1, 2})})
	require.NoError(t, err)

	ticketCap, ticketPkg, policy, _, err := ParseUpgradeTicket(out[0])
	require.NoError(t, err)
	assert.Equal(t, capID, ticketCap)
	assert.Equal(t, oldPkg, ticketPkg)
	assert.Equal(t, PolicyCompatible, policy)

	// a second ticket while one is outstanding aborts
	_, err = machine.Execute(pkgModule, "authorize_upgrade", nil,
		[]vm.Value{upgradeCap, vm.U8(PolicyCompatible), vm.BytesVector(nil)})

	var ee *vm.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, uint64(abortAlreadyAuthorize), ee.AbortCode)

	_, err = machine.Execute(pkgModule, "commit_upgrade", nil,
		[]vm.Value{upgradeCap, UpgradeReceiptValue(capID, newPkg)})
	require.NoError(t, err)

	version, err := machine.Execute(pkgModule, "version", nil, []vm.Value{upgradeCap})
	require.NoError(t, err)
	assert.True(t, vm.Equal(vm.U64(2), version[0]))

	pkg, err := machine.Execute(pkgModule, "upgrade_package", nil, []vm.Value{upgradeCap})
	require.NoError(t, err)

	id, err := ObjectIDOf(pkg[0])
	require.NoError(t, err)
	assert.Equal(t, newPkg, id)

	_, err = machine.Execute(pkgModule, "only_dep_upgrades", nil, []vm.Value{upgradeCap})
	require.NoError(t, err)

	_, err = machine.Execute(pkgModule, "only_additive_upgrades", nil, []vm.Value{upgradeCap})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, uint64(abortTooPermissive), ee.AbortCode)
}

func TestRandomIsDeterministic(t *testing.T) {
	t.Parallel()

	randomModule := types.NewModuleID(types.FrameworkAddress, "random")

	draw := func() []uint64 {
		machine, _ := newMachine(t)
		ctx := refTo(TxContextValue(sender, digest, 1, 0, 0))

		gen, err := machine.Execute(randomModule, "new_generator", nil,
			[]vm.Value{refTo(RandomValue([]byte("seed"))), ctx})
		require.NoError(t, err)

		genRef := refTo(gen[0])

		var out []uint64

		for i := 0; i < 6; i++ {
			v, err := machine.Execute(randomModule, "generate_u64_in_range", nil,
				[]vm.Value{genRef, vm.U64(10), vm.U64(20)})
			require.NoError(t, err)

			n, err := vm.AsU64(v[0])
			require.NoError(t, err)
			assert.True(t, n >= 10 && n <= 20)

			out = append(out, n)
		}

		return out
	}

	assert.Equal(t, draw(), draw())
}

func TestEventsAndHashes(t *testing.T) {
	t.Parallel()

	machine, host := newMachine(t)

	_, err := machine.Execute(types.NewModuleID(types.FrameworkAddress, "event"), "emit",
		[]types.TypeTag{suiType}, []vm.Value{vm.StructValue(SUITag, vm.Bool(false))})
	require.NoError(t, err)
	assert.Equal(t, []types.TypeTag{suiType}, host.events)

	out, err := machine.Execute(types.NewModuleID(types.FrameworkAddress, "hash"), "blake2b256",
		nil, []vm.Value{refTo(vm.BytesVector([]byte("abc")))})
	require.NoError(t, err)

	sum, err := vm.AsBytes(out[0])
	require.NoError(t, err)

	expected := types.Blake2b256([]byte("abc"))
	assert.Equal(t, expected[:], sum)

	encoded, err := machine.Execute(types.NewModuleID(types.StdlibAddress, "bcs"), "to_bytes",
		[]types.TypeTag{types.PrimitiveTag(types.TypeU64)}, []vm.Value{refTo(vm.U64(1))})
	require.NoError(t, err)

	raw, err := vm.AsBytes(encoded[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, raw)
}

func TestObjectLayouts(t *testing.T) {
	t.Parallel()

	machine, _ := newMachine(t)

	raw := ClockBytes(1700)

	v, err := machine.Deserialize(types.StructTypeTag(ClockTag), raw)
	require.NoError(t, err)

	id, err := ObjectIDOf(v)
	require.NoError(t, err)
	assert.Equal(t, types.ClockObjectID, id)

	encoded, err := vm.Serialize(ClockValue(1700))
	require.NoError(t, err)
	assert.Equal(t, raw, encoded)

	randomEncoded, err := vm.Serialize(RandomValue([]byte{9, 9}))
	require.NoError(t, err)
	assert.Equal(t, RandomBytes([]byte{9, 9}), randomEncoded)

	a, err := machine.Abilities(GasCoinType())
	require.NoError(t, err)
	assert.True(t, a.Has(bytecode.AbilityKey|bytecode.AbilityStore))
}
