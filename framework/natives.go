package framework

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"golang.org/x/crypto/sha3"
)

var (
	ErrFieldExists       = errors.New("dynamic field already exists")
	ErrFieldMissing      = errors.New("dynamic field does not exist")
	ErrFieldTypeMismatch = errors.New("dynamic field has a different value type")
)

// Abort codes raised by framework natives
const (
	abortNonZero          = 0
	abortOverflow         = 1
	abortNotEnough        = 2
	abortTooPermissive    = 1
	abortAlreadyAuthorize = 2
	abortWrongUpgradeCap  = 3
	abortFieldExists      = 0
	abortFieldMissing     = 1
	abortFieldType        = 2
	abortRandomRange      = 1
)

// ChildRequest identifies a dynamic field of a parent object
type ChildRequest struct {
	Parent    types.ObjectID
	Child     types.ObjectID
	KeyType   types.TypeTag
	KeyBytes  []byte
	ValueType *types.TypeTag
}

// FieldType is the Field<Name, Value> type of the child, or nil when the
// value type is unknown
func (r ChildRequest) FieldType() *types.TypeTag {
	if r.ValueType == nil {
		return nil
	}

	t := types.StructTypeTag(FieldTag(r.KeyType, *r.ValueType))

	return &t
}

// Host is the object runtime as seen by natives
type Host interface {
	CreateObject(id types.ObjectID)
	DeleteObject(id types.ObjectID) error
	TransferObject(obj *vm.Struct, owner types.Owner) error
	EmitEvent(module types.ModuleID, t types.TypeTag, contents []byte) error

	// AddChild attaches a Field object under its parent
	AddChild(req ChildRequest, field *vm.Struct) error
	// BorrowChild returns the live Field object, loading it on a miss
	BorrowChild(req ChildRequest, mutable bool) (*vm.Struct, error)
	RemoveChild(req ChildRequest) (*vm.Struct, error)
	ChildExists(req ChildRequest) (bool, error)

	ReceiveObject(parent, id types.ObjectID, version uint64, t types.TypeTag) (*vm.Struct, error)
}

type natives struct {
	host Host
}

// Natives binds every framework native to host
func Natives(host Host) vm.NativeTable {
	n := &natives{host: host}
	t := vm.NativeTable{}

	t.Add(types.StdlibAddress, "bcs", "to_bytes", n.bcsToBytes)

	std := map[string]map[string]vm.NativeFunc{
		"object": {
			"new":             n.objectNew,
			"delete":          n.objectDelete,
			"uid_to_address":  objectAddress,
			"uid_to_inner":    objectInner,
			"uid_as_inner":    objectAsInner,
			"id_to_address":   objectAddress,
			"id_from_address": objectFromAddress,
			"id":              objectInner,
			"id_address":      objectAddress,
		},
		"tx_context": {
			"sender":               structField(ctxSender),
			"digest":               ctxDigest,
			"epoch":                structField(ctxEpoch),
			"epoch_timestamp_ms":   structField(ctxTimestamp),
			"ids_created":          structField(ctxIDsCreated),
			"fresh_object_address": n.ctxFreshAddress,
		},
		"transfer": {
			"transfer":             n.transferTo(true),
			"public_transfer":      n.transferTo(false),
			"share_object":         n.changeOwner(true, types.SharedOwner(0)),
			"public_share_object":  n.changeOwner(false, types.SharedOwner(0)),
			"freeze_object":        n.changeOwner(true, types.ImmutableOwner()),
			"public_freeze_object": n.changeOwner(false, types.ImmutableOwner()),
			"receive":              n.receive(true),
			"public_receive":       n.receive(false),
			"receiving_object_id":  receivingID,
		},
		"dynamic_field": {
			"add":              n.fieldAdd,
			"borrow":           n.fieldBorrow(false),
			"borrow_mut":       n.fieldBorrow(true),
			"remove":           n.fieldRemove,
			"exists_":          n.fieldExists(false),
			"exists_with_type": n.fieldExists(true),
		},
		"event": {
			"emit": n.eventEmit,
		},
		"balance": {
			"value":           balanceValue,
			"supply_value":    balanceValue,
			"create_supply":   balanceCreateSupply,
			"increase_supply": balanceIncreaseSupply,
			"decrease_supply": balanceDecreaseSupply,
			"zero":            balanceZero,
			"join":            balanceJoin,
			"split":           balanceSplit,
			"withdraw_all":    balanceWithdrawAll,
			"destroy_zero":    balanceDestroyZero,
		},
		"coin": {
			"value":        coinValue,
			"balance":      coinBalanceRef,
			"balance_mut":  coinBalanceRef,
			"from_balance": n.coinFromBalance,
			"into_balance": n.coinIntoBalance,
			"take":         n.coinTake,
			"put":          n.coinPut,
			"join":         n.coinJoin,
			"split":        n.coinSplit,
			"zero":         n.coinZero,
			"destroy_zero": n.coinDestroyZero,
		},
		"clock": {
			"timestamp_ms": structField(1),
		},
		"random": {
			"new_generator":         n.randomNewGenerator,
			"generate_u64":          randomU64,
			"generate_u64_in_range": randomU64InRange,
			"generate_bool":         randomBool,
			"generate_bytes":        randomBytes,
		},
		"package": {
			"upgrade_package":        structField(1),
			"version":                structField(2),
			"upgrade_policy":         structField(3),
			"ticket_package":         structField(1),
			"ticket_policy":          structField(2),
			"receipt_cap":            structField(0),
			"receipt_package":        structField(1),
			"authorize_upgrade":      packageAuthorize,
			"commit_upgrade":         packageCommit,
			"make_immutable":         n.packageMakeImmutable,
			"only_additive_upgrades": packageRestrict(PolicyAdditive),
			"only_dep_upgrades":      packageRestrict(PolicyDepOnly),
		},
		"hash": {
			"blake2b256": hashBlake2b,
			"keccak256":  hashKeccak,
		},
	}

	for module, fns := range std {
		for name, fn := range fns {
			t.Add(types.FrameworkAddress, module, name, fn)
		}
	}

	return t
}

func one(v vm.Value) []vm.Value {
	return []vm.Value{v}
}

func abort(code uint64, format string, args ...interface{}) error {
	e := vm.AbortError(code)
	e.Message = fmt.Sprintf(format, args...)

	return e
}

func (n *natives) bcsToBytes(ctx *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	b, err := ctx.Serialize(args[0])
	if err != nil {
		return nil, err
	}

	if err := ctx.Charge(uint64(len(b))); err != nil {
		return nil, err
	}

	return one(vm.BytesVector(b)), nil
}

func (n *natives) objectNew(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	id, err := NextObjectID(args[0])
	if err != nil {
		return nil, err
	}

	n.host.CreateObject(id)

	return one(UIDValue(id)), nil
}

func (n *natives) objectDelete(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	id, err := ObjectIDOf(args[0])
	if err != nil {
		return nil, err
	}

	return nil, n.host.DeleteObject(id)
}

func objectAddress(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	id, err := ObjectIDOf(args[0])
	if err != nil {
		return nil, err
	}

	return one(vm.Address(id)), nil
}

func objectInner(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	id, err := ObjectIDOf(args[0])
	if err != nil {
		return nil, err
	}

	return one(IDValue(id)), nil
}

func objectAsInner(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	r, ok := args[0].(*vm.Ref)
	if !ok {
		return nil, vm.NewError(vm.KindTypeError, "uid_as_inner expects a reference")
	}

	inner, err := vm.FieldRef(r, 0)
	if err != nil {
		return nil, err
	}

	return one(inner), nil
}

func objectFromAddress(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	a, err := vm.AsAddress(args[0])
	if err != nil {
		return nil, err
	}

	return one(IDValue(a)), nil
}

// structField reads field i of a struct argument by copy
func structField(i int) vm.NativeFunc {
	return func(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		s, err := vm.AsStruct(args[0])
		if err != nil {
			return nil, err
		}

		if i >= len(s.Fields) {
			return nil, vm.NewError(vm.KindTypeError, "%s has no field %d", s.Type, i)
		}

		return one(vm.Copy(s.Fields[i])), nil
	}
}

func ctxDigest(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	r, ok := args[0].(*vm.Ref)
	if !ok {
		return nil, vm.NewError(vm.KindTypeError, "digest expects a reference")
	}

	digest, err := vm.FieldRef(r.Freeze(), ctxTxHash)
	if err != nil {
		return nil, err
	}

	return one(digest), nil
}

func (n *natives) ctxFreshAddress(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	id, err := NextObjectID(args[0])
	if err != nil {
		return nil, err
	}

	return one(vm.Address(id)), nil
}

// checkPrivate enforces that private transfer functions are only called by
// the module declaring the object type
func checkPrivate(ctx *vm.NativeContext, t types.TypeTag) error {
	if t.Kind != types.TypeStruct || ctx.Caller() != t.Struct.ModuleID() {
		return vm.NewError(vm.KindTypeError, "%s::%s on %s from %s requires a public variant",
			ctx.Module(), ctx.Function(), t, ctx.Caller())
	}

	return nil
}

func (n *natives) transferTo(private bool) vm.NativeFunc {
	return func(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		if private {
			if err := checkPrivate(ctx, tyArgs[0]); err != nil {
				return nil, err
			}
		}

		obj, err := vm.AsStruct(args[0])
		if err != nil {
			return nil, err
		}

		recipient, err := vm.AsAddress(args[1])
		if err != nil {
			return nil, err
		}

		return nil, n.host.TransferObject(obj, types.AddressOwner(recipient))
	}
}

func (n *natives) changeOwner(private bool, owner types.Owner) vm.NativeFunc {
	return func(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		if private {
			if err := checkPrivate(ctx, tyArgs[0]); err != nil {
				return nil, err
			}
		}

		obj, err := vm.AsStruct(args[0])
		if err != nil {
			return nil, err
		}

		return nil, n.host.TransferObject(obj, owner)
	}
}

func (n *natives) receive(private bool) vm.NativeFunc {
	return func(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		if private {
			if err := checkPrivate(ctx, tyArgs[0]); err != nil {
				return nil, err
			}
		}

		parent, err := ObjectIDOf(args[0])
		if err != nil {
			return nil, err
		}

		receiving, err := vm.AsStruct(args[1])
		if err != nil {
			return nil, err
		}

		id, err := ObjectIDOf(receiving.Fields[0])
		if err != nil {
			return nil, err
		}

		version, err := vm.AsU64(receiving.Fields[1])
		if err != nil {
			return nil, err
		}

		obj, err := n.host.ReceiveObject(parent, id, version, tyArgs[0])
		if err != nil {
			return nil, err
		}

		return one(obj), nil
	}
}

func receivingID(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	s, err := vm.AsStruct(args[0])
	if err != nil {
		return nil, err
	}

	return one(vm.Copy(s.Fields[0])), nil
}

func fieldRequest(ctx *vm.NativeContext, tyArgs []types.TypeTag, uid, key vm.Value) (ChildRequest, error) {
	parent, err := ObjectIDOf(uid)
	if err != nil {
		return ChildRequest{}, err
	}

	keyBytes, err := ctx.Serialize(key)
	if err != nil {
		return ChildRequest{}, err
	}

	if err := ctx.Charge(uint64(len(keyBytes))); err != nil {
		return ChildRequest{}, err
	}

	req := ChildRequest{
		Parent:   parent,
		Child:    types.DynamicFieldID(parent, tyArgs[0], keyBytes),
		KeyType:  tyArgs[0],
		KeyBytes: keyBytes,
	}

	if len(tyArgs) > 1 {
		v := tyArgs[1]
		req.ValueType = &v
	}

	return req, nil
}

func fieldError(err error) error {
	switch {
	case errors.Is(err, ErrFieldExists):
		return abort(abortFieldExists, "%v", err)
	case errors.Is(err, ErrFieldMissing):
		return abort(abortFieldMissing, "%v", err)
	case errors.Is(err, ErrFieldTypeMismatch):
		return abort(abortFieldType, "%v", err)
	default:
		return err
	}
}

func (n *natives) fieldAdd(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	req, err := fieldRequest(ctx, tyArgs, args[0], args[1])
	if err != nil {
		return nil, err
	}

	field := vm.StructValue(FieldTag(tyArgs[0], tyArgs[1]), UIDValue(req.Child), args[1], args[2])

	if err := n.host.AddChild(req, field); err != nil {
		return nil, fieldError(err)
	}

	return nil, nil
}

func (n *natives) fieldBorrow(mutable bool) vm.NativeFunc {
	return func(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		req, err := fieldRequest(ctx, tyArgs, args[0], args[1])
		if err != nil {
			return nil, err
		}

		field, err := n.host.BorrowChild(req, mutable)
		if err != nil {
			return nil, fieldError(err)
		}

		return one(vm.NewRef(mutable,
			func() vm.Value { return field.Fields[2] },
			func(v vm.Value) { field.Fields[2] = v },
		)), nil
	}
}

func (n *natives) fieldRemove(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	req, err := fieldRequest(ctx, tyArgs, args[0], args[1])
	if err != nil {
		return nil, err
	}

	field, err := n.host.RemoveChild(req)
	if err != nil {
		return nil, fieldError(err)
	}

	return one(field.Fields[2]), nil
}

func (n *natives) fieldExists(typed bool) vm.NativeFunc {
	return func(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		if !typed {
			tyArgs = tyArgs[:1]
		}

		req, err := fieldRequest(ctx, tyArgs, args[0], args[1])
		if err != nil {
			return nil, err
		}

		ok, err := n.host.ChildExists(req)
		if err != nil {
			return nil, err
		}

		return one(vm.Bool(ok)), nil
	}
}

func (n *natives) eventEmit(ctx *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	b, err := ctx.Serialize(args[0])
	if err != nil {
		return nil, err
	}

	if err := ctx.Charge(uint64(len(b))); err != nil {
		return nil, err
	}

	return nil, n.host.EmitEvent(ctx.Caller(), tyArgs[0], b)
}

func balanceOf(v vm.Value) (*vm.Struct, uint64, error) {
	s, err := vm.AsStruct(v)
	if err != nil {
		return nil, 0, err
	}

	amount, err := vm.AsU64(s.Fields[0])

	return s, amount, err
}

func balanceValue(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	_, amount, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	return one(vm.U64(amount)), nil
}

func balanceCreateSupply(_ *vm.NativeContext, tyArgs []types.TypeTag, _ []vm.Value) ([]vm.Value, error) {
	return one(vm.StructValue(frameworkTag("balance", "Supply", tyArgs[0]), vm.U64(0))), nil
}

func balanceIncreaseSupply(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	supply, total, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	amount, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	if amount > math.MaxUint64-total {
		return nil, abort(abortOverflow, "supply overflow")
	}

	supply.Fields[0] = vm.U64(total + amount)

	return one(BalanceValue(tyArgs[0], amount)), nil
}

func balanceDecreaseSupply(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	supply, total, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	_, amount, err := balanceOf(args[1])
	if err != nil {
		return nil, err
	}

	if amount > total {
		return nil, abort(abortOverflow, "supply underflow")
	}

	supply.Fields[0] = vm.U64(total - amount)

	return one(vm.U64(amount)), nil
}

func balanceZero(_ *vm.NativeContext, tyArgs []types.TypeTag, _ []vm.Value) ([]vm.Value, error) {
	return one(BalanceValue(tyArgs[0], 0)), nil
}

func joinAmounts(dst *vm.Struct, have, add uint64) (uint64, error) {
	if add > math.MaxUint64-have {
		return 0, abort(abortOverflow, "balance overflow")
	}

	dst.Fields[0] = vm.U64(have + add)

	return have + add, nil
}

func balanceJoin(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	dst, have, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	_, add, err := balanceOf(args[1])
	if err != nil {
		return nil, err
	}

	total, err := joinAmounts(dst, have, add)
	if err != nil {
		return nil, err
	}

	return one(vm.U64(total)), nil
}

func splitAmount(src *vm.Struct, have, amount uint64) error {
	if amount > have {
		return abort(abortNotEnough, "balance %d below %d", have, amount)
	}

	src.Fields[0] = vm.U64(have - amount)

	return nil
}

func balanceSplit(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	src, have, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	amount, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	if err := splitAmount(src, have, amount); err != nil {
		return nil, err
	}

	return one(BalanceValue(tyArgs[0], amount)), nil
}

func balanceWithdrawAll(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	src, have, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	src.Fields[0] = vm.U64(0)

	return one(BalanceValue(tyArgs[0], have)), nil
}

func balanceDestroyZero(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	_, have, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	if have != 0 {
		return nil, abort(abortNonZero, "balance is %d", have)
	}

	return nil, nil
}

func coinValue(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	amount, err := CoinBalance(args[0])
	if err != nil {
		return nil, err
	}

	return one(vm.U64(amount)), nil
}

func coinBalanceRef(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	r, ok := args[0].(*vm.Ref)
	if !ok {
		return nil, vm.NewError(vm.KindTypeError, "balance expects a reference")
	}

	b, err := vm.FieldRef(r, 1)
	if err != nil {
		return nil, err
	}

	return one(b), nil
}

func (n *natives) newCoin(ctxValue vm.Value, coinType types.TypeTag, amount uint64) (*vm.Struct, error) {
	id, err := NextObjectID(ctxValue)
	if err != nil {
		return nil, err
	}

	n.host.CreateObject(id)

	return CoinValue(id, coinType, amount), nil
}

// burnCoin deletes the coin's id and returns its balance
func (n *natives) burnCoin(coin vm.Value) (uint64, error) {
	amount, err := CoinBalance(coin)
	if err != nil {
		return 0, err
	}

	id, err := ObjectIDOf(coin)
	if err != nil {
		return 0, err
	}

	return amount, n.host.DeleteObject(id)
}

func (n *natives) coinFromBalance(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	_, amount, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	coin, err := n.newCoin(args[1], tyArgs[0], amount)
	if err != nil {
		return nil, err
	}

	return one(coin), nil
}

func (n *natives) coinIntoBalance(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	amount, err := n.burnCoin(args[0])
	if err != nil {
		return nil, err
	}

	return one(BalanceValue(tyArgs[0], amount)), nil
}

func (n *natives) coinTake(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	src, have, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	amount, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	if err := splitAmount(src, have, amount); err != nil {
		return nil, err
	}

	coin, err := n.newCoin(args[2], tyArgs[0], amount)
	if err != nil {
		return nil, err
	}

	return one(coin), nil
}

func (n *natives) coinPut(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	dst, have, err := balanceOf(args[0])
	if err != nil {
		return nil, err
	}

	amount, err := n.burnCoin(args[1])
	if err != nil {
		return nil, err
	}

	_, err = joinAmounts(dst, have, amount)

	return nil, err
}

func (n *natives) coinJoin(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	have, err := CoinBalance(args[0])
	if err != nil {
		return nil, err
	}

	amount, err := n.burnCoin(args[1])
	if err != nil {
		return nil, err
	}

	if amount > math.MaxUint64-have {
		return nil, abort(abortOverflow, "balance overflow")
	}

	return nil, SetCoinBalance(args[0], have+amount)
}

func (n *natives) coinSplit(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	have, err := CoinBalance(args[0])
	if err != nil {
		return nil, err
	}

	amount, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	if amount > have {
		return nil, abort(abortNotEnough, "coin balance %d below %d", have, amount)
	}

	if err := SetCoinBalance(args[0], have-amount); err != nil {
		return nil, err
	}

	coin, err := n.newCoin(args[2], tyArgs[0], amount)
	if err != nil {
		return nil, err
	}

	return one(coin), nil
}

func (n *natives) coinZero(_ *vm.NativeContext, tyArgs []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	coin, err := n.newCoin(args[0], tyArgs[0], 0)
	if err != nil {
		return nil, err
	}

	return one(coin), nil
}

func (n *natives) coinDestroyZero(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	have, err := CoinBalance(args[0])
	if err != nil {
		return nil, err
	}

	if have != 0 {
		return nil, abort(abortNonZero, "coin balance is %d", have)
	}

	_, err = n.burnCoin(args[0])

	return nil, err
}

// RandomGenerator field positions
const (
	genSeed = iota
	genCounter
	genBuffer
)

func (n *natives) randomNewGenerator(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	random, err := vm.AsStruct(args[0])
	if err != nil {
		return nil, err
	}

	seed, err := vm.AsBytes(random.Fields[1])
	if err != nil {
		return nil, err
	}

	fresh, err := NextObjectID(args[1])
	if err != nil {
		return nil, err
	}

	genSeedBytes := types.Blake2b256(seed, fresh[:])

	return one(vm.StructValue(frameworkTag("random", "RandomGenerator"),
		vm.BytesVector(genSeedBytes[:]),
		vm.U16(0),
		vm.BytesVector(nil),
	)), nil
}

// drawBytes takes n bytes from the generator, refilling its buffer from
// blake2b(seed || counter) blocks
func drawBytes(v vm.Value, n int) ([]byte, error) {
	gen, err := vm.AsStruct(v)
	if err != nil {
		return nil, err
	}

	seed, err := vm.AsBytes(gen.Fields[genSeed])
	if err != nil {
		return nil, err
	}

	buffer, err := vm.AsBytes(gen.Fields[genBuffer])
	if err != nil {
		return nil, err
	}

	c64, err := vm.AsU64(gen.Fields[genCounter])
	if err != nil {
		return nil, err
	}

	counter := uint16(c64)

	for len(buffer) < n {
		var c [2]byte

		binary.LittleEndian.PutUint16(c[:], counter)
		block := types.Blake2b256(seed, c[:])
		buffer = append(buffer, block[:]...)
		counter++
	}

	gen.Fields[genCounter] = vm.U16(counter)
	gen.Fields[genBuffer] = vm.BytesVector(buffer[n:])

	return buffer[:n], nil
}

func randomU64(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	b, err := drawBytes(args[0], 8)
	if err != nil {
		return nil, err
	}

	return one(vm.U64(binary.LittleEndian.Uint64(b))), nil
}

func randomU64InRange(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	lo, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	hi, err := vm.AsU64(args[2])
	if err != nil {
		return nil, err
	}

	if lo > hi {
		return nil, abort(abortRandomRange, "empty range [%d, %d]", lo, hi)
	}

	b, err := drawBytes(args[0], 8)
	if err != nil {
		return nil, err
	}

	v := binary.LittleEndian.Uint64(b)
	if span := hi - lo + 1; span != 0 {
		v = lo + v%span
	}

	return one(vm.U64(v)), nil
}

func randomBool(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	b, err := drawBytes(args[0], 1)
	if err != nil {
		return nil, err
	}

	return one(vm.Bool(b[0]&1 == 1)), nil
}

func randomBytes(ctx *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	n, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	if err := ctx.Charge(n); err != nil {
		return nil, err
	}

	b, err := drawBytes(args[0], int(n))
	if err != nil {
		return nil, err
	}

	return one(vm.BytesVector(b)), nil
}

// UpgradeCap field positions
const (
	capID = iota
	capPackage
	capVersion
	capPolicy
)

func packageAuthorize(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	upgradeCap, err := vm.AsStruct(args[0])
	if err != nil {
		return nil, err
	}

	pkg, err := ObjectIDOf(upgradeCap.Fields[capPackage])
	if err != nil {
		return nil, err
	}

	if pkg.IsZero() {
		return nil, abort(abortAlreadyAuthorize, "upgrade already authorized")
	}

	policy, err := vm.AsU64(upgradeCap.Fields[capPolicy])
	if err != nil {
		return nil, err
	}

	requested, err := vm.AsU64(args[1])
	if err != nil {
		return nil, err
	}

	if requested < policy {
		return nil, abort(abortTooPermissive, "policy %d is more permissive than %d", requested, policy)
	}

	capObj, err := ObjectIDOf(upgradeCap)
	if err != nil {
		return nil, err
	}

	upgradeCap.Fields[capPackage] = IDValue(types.ZeroAddress)

	return one(vm.StructValue(UpgradeTicketTag,
		IDValue(capObj),
		IDValue(pkg),
		vm.U8(uint8(requested)),
		vm.Copy(args[2]),
	)), nil
}

func packageCommit(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	upgradeCap, err := vm.AsStruct(args[0])
	if err != nil {
		return nil, err
	}

	receipt, err := vm.AsStruct(args[1])
	if err != nil {
		return nil, err
	}

	capObj, err := ObjectIDOf(upgradeCap)
	if err != nil {
		return nil, err
	}

	receiptCap, err := ObjectIDOf(receipt.Fields[0])
	if err != nil {
		return nil, err
	}

	if capObj != receiptCap {
		return nil, abort(abortWrongUpgradeCap, "receipt belongs to cap %s", receiptCap)
	}

	version, err := vm.AsU64(upgradeCap.Fields[capVersion])
	if err != nil {
		return nil, err
	}

	upgradeCap.Fields[capPackage] = vm.Copy(receipt.Fields[1])
	upgradeCap.Fields[capVersion] = vm.U64(version + 1)

	return nil, nil
}

func (n *natives) packageMakeImmutable(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	id, err := ObjectIDOf(args[0])
	if err != nil {
		return nil, err
	}

	return nil, n.host.DeleteObject(id)
}

func packageRestrict(policy uint8) vm.NativeFunc {
	return func(_ *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
		upgradeCap, err := vm.AsStruct(args[0])
		if err != nil {
			return nil, err
		}

		current, err := vm.AsU64(upgradeCap.Fields[capPolicy])
		if err != nil {
			return nil, err
		}

		if current > uint64(policy) {
			return nil, abort(abortTooPermissive, "policy %d is more permissive than %d", policy, current)
		}

		upgradeCap.Fields[capPolicy] = vm.U8(policy)

		return nil, nil
	}
}

func hashBlake2b(ctx *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	data, err := vm.AsBytes(args[0])
	if err != nil {
		return nil, err
	}

	if err := ctx.Charge(uint64(len(data))); err != nil {
		return nil, err
	}

	sum := types.Blake2b256(data)

	return one(vm.BytesVector(sum[:])), nil
}

func hashKeccak(ctx *vm.NativeContext, _ []types.TypeTag, args []vm.Value) ([]vm.Value, error) {
	data, err := vm.AsBytes(args[0])
	if err != nil {
		return nil, err
	}

	if err := ctx.Charge(uint64(len(data))); err != nil {
		return nil, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(data)

	return one(vm.BytesVector(h.Sum(nil))), nil
}
