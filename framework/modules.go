package framework

import (
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const (
	abCopy  = bytecode.AbilityCopy
	abDrop  = bytecode.AbilityDrop
	abStore = bytecode.AbilityStore
	abKey   = bytecode.AbilityKey

	abValue = abCopy | abDrop | abStore
)

var (
	tBool  = bytecode.Tok(bytecode.TokBool)
	tU8    = bytecode.Tok(bytecode.TokU8)
	tU16   = bytecode.Tok(bytecode.TokU16)
	tU64   = bytecode.Tok(bytecode.TokU64)
	tAddr  = bytecode.Tok(bytecode.TokAddress)
	tBytes = bytecode.VectorTok(tU8)
	tT     = bytecode.TypeParamTok(0)
	tV     = bytecode.TypeParamTok(1)
)

var phantom = []bytecode.StructTypeParameter{{IsPhantom: true}}

type moduleWriter struct {
	b *bytecode.ModuleBuilder
}

func newModule(addr types.Address, name string) *moduleWriter {
	return &moduleWriter{b: bytecode.NewModuleBuilder(addr, name)}
}

func (w *moduleWriter) native(name string, tps []bytecode.AbilitySet, params, returns []bytecode.SignatureToken) {
	w.b.AddFunction(bytecode.FunctionSpec{
		Name:       name,
		Visibility: bytecode.VisibilityPublic,
		Native:     true,
		TypeParams: tps,
		Params:     params,
		Returns:    returns,
	})
}

func (w *moduleWriter) structDef(
	name string,
	abilities bytecode.AbilitySet,
	tps []bytecode.StructTypeParameter,
	fields ...bytecode.Field,
) bytecode.SignatureToken {
	def := w.b.AddStruct(name, abilities, tps, fields)
	handle := w.b.StructDefHandle(def)

	if len(tps) == 0 {
		return bytecode.StructTok(handle)
	}

	args := make([]bytecode.SignatureToken, len(tps))
	for i := range tps {
		args[i] = bytecode.TypeParamTok(uint16(i))
	}

	return bytecode.StructTok(handle, args...)
}

func (w *moduleWriter) imported(
	module, name string,
	abilities bytecode.AbilitySet,
	tps []bytecode.StructTypeParameter,
	args ...bytecode.SignatureToken,
) bytecode.SignatureToken {
	return bytecode.StructTok(w.b.StructHandle(types.FrameworkAddress, module, name, abilities, tps), args...)
}

func (w *moduleWriter) uid() bytecode.SignatureToken {
	return w.imported("object", "UID", abStore, nil)
}

func (w *moduleWriter) id() bytecode.SignatureToken {
	return w.imported("object", "ID", abValue, nil)
}

func (w *moduleWriter) txContext() bytecode.SignatureToken {
	return w.imported("tx_context", "TxContext", abDrop, nil)
}

func (w *moduleWriter) balance(t bytecode.SignatureToken) bytecode.SignatureToken {
	return w.imported("balance", "Balance", abStore, phantom, t)
}

func ref(t bytecode.SignatureToken) bytecode.SignatureToken {
	return bytecode.RefTok(t)
}

func mut(t bytecode.SignatureToken) bytecode.SignatureToken {
	return bytecode.MutRefTok(t)
}

func toks(t ...bytecode.SignatureToken) []bytecode.SignatureToken {
	return t
}

func tps(a ...bytecode.AbilitySet) []bytecode.AbilitySet {
	return a
}

func buildBCS() *moduleWriter {
	w := newModule(types.StdlibAddress, "bcs")
	w.native("to_bytes", tps(0), toks(ref(tT)), toks(tBytes))

	return w
}

func buildObject() *moduleWriter {
	w := newModule(types.FrameworkAddress, "object")
	id := w.structDef("ID", abValue, nil, bytecode.Field{Name: "bytes", Type: tAddr})
	uid := w.structDef("UID", abStore, nil, bytecode.Field{Name: "id", Type: id})
	ctx := w.txContext()

	w.native("new", nil, toks(mut(ctx)), toks(uid))
	w.native("delete", nil, toks(uid), nil)
	w.native("uid_to_address", nil, toks(ref(uid)), toks(tAddr))
	w.native("uid_to_inner", nil, toks(ref(uid)), toks(id))
	w.native("uid_as_inner", nil, toks(ref(uid)), toks(ref(id)))
	w.native("id_to_address", nil, toks(ref(id)), toks(tAddr))
	w.native("id_from_address", nil, toks(tAddr), toks(id))
	w.native("id", tps(abKey), toks(ref(tT)), toks(id))
	w.native("id_address", tps(abKey), toks(ref(tT)), toks(tAddr))

	return w
}

func buildTxContext() *moduleWriter {
	w := newModule(types.FrameworkAddress, "tx_context")
	ctx := w.structDef("TxContext", abDrop, nil,
		bytecode.Field{Name: "sender", Type: tAddr},
		bytecode.Field{Name: "tx_hash", Type: tBytes},
		bytecode.Field{Name: "epoch", Type: tU64},
		bytecode.Field{Name: "epoch_timestamp_ms", Type: tU64},
		bytecode.Field{Name: "ids_created", Type: tU64},
	)

	w.native("sender", nil, toks(ref(ctx)), toks(tAddr))
	w.native("digest", nil, toks(ref(ctx)), toks(ref(tBytes)))
	w.native("epoch", nil, toks(ref(ctx)), toks(tU64))
	w.native("epoch_timestamp_ms", nil, toks(ref(ctx)), toks(tU64))
	w.native("ids_created", nil, toks(ref(ctx)), toks(tU64))
	w.native("fresh_object_address", nil, toks(mut(ctx)), toks(tAddr))

	return w
}

func buildTransfer() *moduleWriter {
	w := newModule(types.FrameworkAddress, "transfer")
	receiving := w.structDef("Receiving", abDrop,
		[]bytecode.StructTypeParameter{{Constraints: abKey, IsPhantom: true}},
		bytecode.Field{Name: "id", Type: w.id()},
		bytecode.Field{Name: "version", Type: tU64},
	)

	for _, pair := range []struct {
		name string
		tp   bytecode.AbilitySet
	}{{"", abKey}, {"public_", abKey | abStore}} {
		w.native(pair.name+"transfer", tps(pair.tp), toks(tT, tAddr), nil)
		w.native(pair.name+"share_object", tps(pair.tp), toks(tT), nil)
		w.native(pair.name+"freeze_object", tps(pair.tp), toks(tT), nil)
		w.native(pair.name+"receive", tps(pair.tp), toks(mut(w.uid()), receiving), toks(tT))
	}

	w.native("receiving_object_id", tps(abKey), toks(ref(receiving)), toks(w.id()))

	return w
}

func buildDynamicField() *moduleWriter {
	w := newModule(types.FrameworkAddress, "dynamic_field")
	w.structDef("Field", abKey,
		[]bytecode.StructTypeParameter{{Constraints: abValue}, {Constraints: abStore}},
		bytecode.Field{Name: "id", Type: w.uid()},
		bytecode.Field{Name: "name", Type: tT},
		bytecode.Field{Name: "value", Type: tV},
	)

	uid := w.uid()
	nv := tps(abValue, abStore)

	w.native("add", nv, toks(mut(uid), tT, tV), nil)
	w.native("borrow", nv, toks(ref(uid), tT), toks(ref(tV)))
	w.native("borrow_mut", nv, toks(mut(uid), tT), toks(mut(tV)))
	w.native("remove", nv, toks(mut(uid), tT), toks(tV))
	w.native("exists_", tps(abValue), toks(ref(uid), tT), toks(tBool))
	w.native("exists_with_type", nv, toks(ref(uid), tT), toks(tBool))

	return w
}

func buildEvent() *moduleWriter {
	w := newModule(types.FrameworkAddress, "event")
	w.native("emit", tps(abCopy|abDrop), toks(tT), nil)

	return w
}

func buildBalance() *moduleWriter {
	w := newModule(types.FrameworkAddress, "balance")
	supply := w.structDef("Supply", abStore, phantom, bytecode.Field{Name: "value", Type: tU64})
	balance := w.structDef("Balance", abStore, phantom, bytecode.Field{Name: "value", Type: tU64})

	w.native("value", tps(0), toks(ref(balance)), toks(tU64))
	w.native("supply_value", tps(0), toks(ref(supply)), toks(tU64))
	w.native("create_supply", tps(abDrop), toks(tT), toks(supply))
	w.native("increase_supply", tps(0), toks(mut(supply), tU64), toks(balance))
	w.native("decrease_supply", tps(0), toks(mut(supply), balance), toks(tU64))
	w.native("zero", tps(0), nil, toks(balance))
	w.native("join", tps(0), toks(mut(balance), balance), toks(tU64))
	w.native("split", tps(0), toks(mut(balance), tU64), toks(balance))
	w.native("withdraw_all", tps(0), toks(mut(balance)), toks(balance))
	w.native("destroy_zero", tps(0), toks(balance), nil)

	return w
}

func buildCoin() *moduleWriter {
	w := newModule(types.FrameworkAddress, "coin")
	balance := w.balance(tT)
	coin := w.structDef("Coin", abKey|abStore, phantom,
		bytecode.Field{Name: "id", Type: w.uid()},
		bytecode.Field{Name: "balance", Type: balance},
	)
	ctx := w.txContext()

	w.native("value", tps(0), toks(ref(coin)), toks(tU64))
	w.native("balance", tps(0), toks(ref(coin)), toks(ref(balance)))
	w.native("balance_mut", tps(0), toks(mut(coin)), toks(mut(balance)))
	w.native("from_balance", tps(0), toks(balance, mut(ctx)), toks(coin))
	w.native("into_balance", tps(0), toks(coin), toks(balance))
	w.native("take", tps(0), toks(mut(balance), tU64, mut(ctx)), toks(coin))
	w.native("put", tps(0), toks(mut(balance), coin), nil)
	w.native("join", tps(0), toks(mut(coin), coin), nil)
	w.native("split", tps(0), toks(mut(coin), tU64, mut(ctx)), toks(coin))
	w.native("zero", tps(0), toks(mut(ctx)), toks(coin))
	w.native("destroy_zero", tps(0), toks(coin), nil)

	return w
}

func buildSUI() *moduleWriter {
	w := newModule(types.FrameworkAddress, "sui")
	w.structDef("SUI", abDrop, nil, bytecode.Field{Name: "dummy_field", Type: tBool})

	return w
}

func buildClock() *moduleWriter {
	w := newModule(types.FrameworkAddress, "clock")
	clock := w.structDef("Clock", abKey, nil,
		bytecode.Field{Name: "id", Type: w.uid()},
		bytecode.Field{Name: "timestamp_ms", Type: tU64},
	)

	w.native("timestamp_ms", nil, toks(ref(clock)), toks(tU64))

	return w
}

func buildRandom() *moduleWriter {
	w := newModule(types.FrameworkAddress, "random")
	random := w.structDef("Random", abKey, nil,
		bytecode.Field{Name: "id", Type: w.uid()},
		bytecode.Field{Name: "seed", Type: tBytes},
	)
	gen := w.structDef("RandomGenerator", abDrop, nil,
		bytecode.Field{Name: "seed", Type: tBytes},
		bytecode.Field{Name: "counter", Type: tU16},
		bytecode.Field{Name: "buffer", Type: tBytes},
	)

	w.native("new_generator", nil, toks(ref(random), mut(w.txContext())), toks(gen))
	w.native("generate_u64", nil, toks(mut(gen)), toks(tU64))
	w.native("generate_u64_in_range", nil, toks(mut(gen), tU64, tU64), toks(tU64))
	w.native("generate_bool", nil, toks(mut(gen)), toks(tBool))
	w.native("generate_bytes", nil, toks(mut(gen), tU16), toks(tBytes))

	return w
}

func buildPackage() *moduleWriter {
	w := newModule(types.FrameworkAddress, "package")
	id := w.id()
	upgradeCap := w.structDef("UpgradeCap", abKey|abStore, nil,
		bytecode.Field{Name: "id", Type: w.uid()},
		bytecode.Field{Name: "package", Type: id},
		bytecode.Field{Name: "version", Type: tU64},
		bytecode.Field{Name: "policy", Type: tU8},
	)
	ticket := w.structDef("UpgradeTicket", 0, nil,
		bytecode.Field{Name: "cap", Type: id},
		bytecode.Field{Name: "package", Type: id},
		bytecode.Field{Name: "policy", Type: tU8},
		bytecode.Field{Name: "digest", Type: tBytes},
	)
	receipt := w.structDef("UpgradeReceipt", 0, nil,
		bytecode.Field{Name: "cap", Type: id},
		bytecode.Field{Name: "package", Type: id},
	)

	w.native("upgrade_package", nil, toks(ref(upgradeCap)), toks(id))
	w.native("version", nil, toks(ref(upgradeCap)), toks(tU64))
	w.native("upgrade_policy", nil, toks(ref(upgradeCap)), toks(tU8))
	w.native("ticket_package", nil, toks(ref(ticket)), toks(id))
	w.native("ticket_policy", nil, toks(ref(ticket)), toks(tU8))
	w.native("receipt_cap", nil, toks(ref(receipt)), toks(id))
	w.native("receipt_package", nil, toks(ref(receipt)), toks(id))
	w.native("authorize_upgrade", nil, toks(mut(upgradeCap), tU8, tBytes), toks(ticket))
	w.native("commit_upgrade", nil, toks(mut(upgradeCap), receipt), nil)
	w.native("make_immutable", nil, toks(upgradeCap), nil)
	w.native("only_additive_upgrades", nil, toks(mut(upgradeCap)), nil)
	w.native("only_dep_upgrades", nil, toks(mut(upgradeCap)), nil)

	return w
}

func buildHash() *moduleWriter {
	w := newModule(types.FrameworkAddress, "hash")
	w.native("blake2b256", nil, toks(ref(tBytes)), toks(tBytes))
	w.native("keccak256", nil, toks(ref(tBytes)), toks(tBytes))

	return w
}

var builders = []func() *moduleWriter{
	buildBCS,
	buildObject,
	buildTxContext,
	buildTransfer,
	buildDynamicField,
	buildEvent,
	buildBalance,
	buildCoin,
	buildSUI,
	buildClock,
	buildRandom,
	buildPackage,
	buildHash,
}

var bundle struct {
	once     sync.Once
	modules  []*bytecode.CompiledModule
	packages []*types.PackageData
	err      error
}

func load() {
	byAddr := map[types.Address]*types.PackageData{}

	for _, build := range builders {
		w := build()

		m, err := w.b.Build()
		if err != nil {
			bundle.err = err

			return
		}

		raw, err := bytecode.Serialize(m)
		if err != nil {
			bundle.err = err

			return
		}

		self := m.Self()

		pkg, ok := byAddr[self.Address]
		if !ok {
			pkg = &types.PackageData{Address: self.Address, Version: 1}
			byAddr[self.Address] = pkg
			bundle.packages = append(bundle.packages, pkg)
		}

		pkg.Modules = append(pkg.Modules, types.ModuleBytes{Name: self.Name, Bytecode: raw})
		bundle.modules = append(bundle.modules, m)
	}

	for _, p := range bundle.packages {
		p.Normalize()
	}
}

// Modules returns the compiled framework modules. The result is shared and
// must not be modified.
func Modules() ([]*bytecode.CompiledModule, error) {
	bundle.once.Do(load)

	return bundle.modules, bundle.err
}

// Packages returns the framework packages (0x1 and 0x2) with serialized
// bytecode
func Packages() ([]*types.PackageData, error) {
	bundle.once.Do(load)

	if bundle.err != nil {
		return nil, bundle.err
	}

	out := make([]*types.PackageData, len(bundle.packages))
	for i, p := range bundle.packages {
		out[i] = p.Clone()
	}

	return out, nil
}
