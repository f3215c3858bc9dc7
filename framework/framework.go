// Package framework bundles the 0x1 and 0x2 Move modules the sandbox
// executes against and binds their native functions to the object runtime.
package framework

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

// Upgrade policies carried by UpgradeCap
const (
	PolicyCompatible uint8 = 0
	PolicyAdditive   uint8 = 128
	PolicyDepOnly    uint8 = 192
)

func frameworkTag(module, name string, params ...types.TypeTag) types.StructTag {
	return types.StructTag{Address: types.FrameworkAddress, Module: module, Name: name, TypeParams: params}
}

var (
	UIDTag            = frameworkTag("object", "UID")
	IDTag             = frameworkTag("object", "ID")
	TxContextTag      = frameworkTag("tx_context", "TxContext")
	SUITag            = frameworkTag("sui", "SUI")
	ClockTag          = frameworkTag("clock", "Clock")
	RandomTag         = frameworkTag("random", "Random")
	UpgradeCapTag     = frameworkTag("package", "UpgradeCap")
	UpgradeTicketTag  = frameworkTag("package", "UpgradeTicket")
	UpgradeReceiptTag = frameworkTag("package", "UpgradeReceipt")
)

func CoinTag(t types.TypeTag) types.StructTag {
	return frameworkTag("coin", "Coin", t)
}

func BalanceTag(t types.TypeTag) types.StructTag {
	return frameworkTag("balance", "Balance", t)
}

// FieldTag is the type of the object backing a dynamic field
func FieldTag(name, value types.TypeTag) types.StructTag {
	return frameworkTag("dynamic_field", "Field", name, value)
}

func ReceivingTag(t types.TypeTag) types.StructTag {
	return frameworkTag("transfer", "Receiving", t)
}

// GasCoinType is Coin<SUI>
func GasCoinType() types.TypeTag {
	return types.StructTypeTag(CoinTag(types.StructTypeTag(SUITag)))
}

// CoinType returns T when t is Coin<T>
func CoinType(t types.TypeTag) (types.TypeTag, bool) {
	if t.Kind != types.TypeStruct || !t.Struct.Is(types.FrameworkAddress, "coin", "Coin") ||
		len(t.Struct.TypeParams) != 1 {
		return types.TypeTag{}, false
	}

	return t.Struct.TypeParams[0], true
}

func IDValue(id types.ObjectID) *vm.Struct {
	return vm.StructValue(IDTag, vm.Address(id))
}

func UIDValue(id types.ObjectID) *vm.Struct {
	return vm.StructValue(UIDTag, IDValue(id))
}

// ObjectIDOf extracts the id of an object, UID or ID value
func ObjectIDOf(v vm.Value) (types.ObjectID, error) {
	for depth := 0; depth < 3; depth++ {
		s, err := vm.AsStruct(v)
		if err != nil {
			return types.ObjectID{}, err
		}

		if len(s.Fields) == 0 {
			return types.ObjectID{}, fmt.Errorf("%s has no id field", s.Type)
		}

		if s.Type.Is(types.FrameworkAddress, "object", "ID") {
			return vm.AsAddress(s.Fields[0])
		}

		v = s.Fields[0]
	}

	return types.ObjectID{}, fmt.Errorf("no object id in %s", v)
}

// TxContextValue builds the TxContext passed to entry functions
func TxContextValue(sender types.Address, digest types.Digest, epoch, timestampMs, idsCreated uint64) *vm.Struct {
	return vm.StructValue(TxContextTag,
		vm.Address(sender),
		vm.BytesVector(digest[:]),
		vm.U64(epoch),
		vm.U64(timestampMs),
		vm.U64(idsCreated),
	)
}

// TxContext field positions
const (
	ctxSender = iota
	ctxTxHash
	ctxEpoch
	ctxTimestamp
	ctxIDsCreated
)

// NextObjectID derives the next fresh id from a TxContext and advances its
// counter
func NextObjectID(ctx vm.Value) (types.ObjectID, error) {
	s, err := vm.AsStruct(ctx)
	if err != nil {
		return types.ObjectID{}, err
	}

	hash, err := vm.AsBytes(s.Fields[ctxTxHash])
	if err != nil {
		return types.ObjectID{}, err
	}

	count, err := vm.AsU64(s.Fields[ctxIDsCreated])
	if err != nil {
		return types.ObjectID{}, err
	}

	var digest types.Digest

	copy(digest[:], hash)
	s.Fields[ctxIDsCreated] = vm.U64(count + 1)

	return types.DeriveObjectID(digest, count), nil
}

// IDsCreated reads the fresh id counter of a TxContext
func IDsCreated(ctx vm.Value) (uint64, error) {
	s, err := vm.AsStruct(ctx)
	if err != nil {
		return 0, err
	}

	return vm.AsU64(s.Fields[ctxIDsCreated])
}

func BalanceValue(coinType types.TypeTag, amount uint64) *vm.Struct {
	return vm.StructValue(BalanceTag(coinType), vm.U64(amount))
}

// CoinValue builds a Coin<coinType> holding amount
func CoinValue(id types.ObjectID, coinType types.TypeTag, amount uint64) *vm.Struct {
	return vm.StructValue(CoinTag(coinType), UIDValue(id), BalanceValue(coinType, amount))
}

// CoinBalance reads the balance of a Coin value
func CoinBalance(coin vm.Value) (uint64, error) {
	s, err := vm.AsStruct(coin)
	if err != nil {
		return 0, err
	}

	if len(s.Fields) != 2 {
		return 0, fmt.Errorf("%s is not a coin", s.Type)
	}

	b, err := vm.AsStruct(s.Fields[1])
	if err != nil {
		return 0, err
	}

	return vm.AsU64(b.Fields[0])
}

// SetCoinBalance overwrites the balance of a Coin value in place
func SetCoinBalance(coin vm.Value, amount uint64) error {
	s, err := vm.AsStruct(coin)
	if err != nil {
		return err
	}

	if len(s.Fields) != 2 {
		return fmt.Errorf("%s is not a coin", s.Type)
	}

	b, err := vm.AsStruct(s.Fields[1])
	if err != nil {
		return err
	}

	b.Fields[0] = vm.U64(amount)

	return nil
}

func UpgradeCapValue(id types.ObjectID, pkg types.Address, version uint64, policy uint8) *vm.Struct {
	return vm.StructValue(UpgradeCapTag, UIDValue(id), IDValue(pkg), vm.U64(version), vm.U8(policy))
}

func ClockValue(timestampMs uint64) *vm.Struct {
	return vm.StructValue(ClockTag, UIDValue(types.ClockObjectID), vm.U64(timestampMs))
}

func RandomValue(seed []byte) *vm.Struct {
	return vm.StructValue(RandomTag, UIDValue(types.RandomObjectID), vm.BytesVector(seed))
}

// ClockBytes is the BCS encoding of the shared Clock object
func ClockBytes(timestampMs uint64) []byte {
	e := bcs.NewEncoder()
	e.WriteFixedBytes(types.ClockObjectID.Bytes())
	e.WriteU64(timestampMs)

	return e.Bytes()
}

// RandomBytes is the BCS encoding of the shared Random object
func RandomBytes(seed []byte) []byte {
	e := bcs.NewEncoder()
	e.WriteFixedBytes(types.RandomObjectID.Bytes())
	e.WriteBytes(seed)

	return e.Bytes()
}

func UpgradeReceiptValue(upgradeCap types.ObjectID, pkg types.Address) *vm.Struct {
	return vm.StructValue(UpgradeReceiptTag, IDValue(upgradeCap), IDValue(pkg))
}

// ParseUpgradeTicket unpacks an UpgradeTicket value
func ParseUpgradeTicket(v vm.Value) (upgradeCap types.ObjectID, pkg types.Address, policy uint8, digest []byte, err error) {
	s, err := vm.AsStruct(v)
	if err != nil {
		return
	}

	if !s.Type.Is(types.FrameworkAddress, "package", "UpgradeTicket") {
		err = fmt.Errorf("%s is not an upgrade ticket", s.Type)

		return
	}

	if upgradeCap, err = ObjectIDOf(s.Fields[0]); err != nil {
		return
	}

	if pkg, err = ObjectIDOf(s.Fields[1]); err != nil {
		return
	}

	p, err := vm.AsU64(s.Fields[2])
	if err != nil {
		return
	}

	policy = uint8(p)
	digest, err = vm.AsBytes(s.Fields[3])

	return
}
