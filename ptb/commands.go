package ptb

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

var u64Type = types.PrimitiveTag(types.TypeU64)

func (r *run) command(index int, cmd types.Command) error {
	if err := r.charger.Meter().Charge(r.charger.Config().CommandBaseCost); err != nil {
		return err
	}

	var (
		results []*argSlot
		err     error
	)

	switch {
	case cmd.MoveCall != nil:
		results, err = r.moveCall(cmd.MoveCall)
	case cmd.SplitCoins != nil:
		results, err = r.splitCoins(cmd.SplitCoins)
	case cmd.MergeCoins != nil:
		err = r.mergeCoins(cmd.MergeCoins)
	case cmd.TransferObjects != nil:
		err = r.transferObjects(cmd.TransferObjects)
	case cmd.Publish != nil:
		results, err = r.publish(cmd.Publish)
	case cmd.Upgrade != nil:
		results, err = r.upgrade(cmd.Upgrade)
	case cmd.MakeMoveVec != nil:
		results, err = r.makeMoveVec(cmd.MakeMoveVec)
	}

	if err != nil {
		return err
	}

	values := make([]types.TypedValue, 0, len(results))

	for _, s := range results {
		b, err := vm.Serialize(s.value)
		if err != nil {
			return err
		}

		values = append(values, types.TypedValue{Type: s.typ.Clone(), BCS: b})
	}

	r.results = append(r.results, results)
	r.returnValues = append(r.returnValues, values)

	r.logger.Trace("command done", "index", index, "kind", cmd.Kind(), "results", len(results))

	return nil
}

func isTxContext(p vm.ParamType) bool {
	return p.Ref != vm.NotRef && p.Type.Kind == types.TypeStruct &&
		p.Type.Struct.Is(types.FrameworkAddress, "tx_context", "TxContext")
}

func (r *run) txContextRef(mutable bool) *vm.Ref {
	return vm.NewRef(mutable, func() vm.Value { return r.txCtx }, func(v vm.Value) {
		if s, ok := v.(*vm.Struct); ok {
			r.txCtx = s
		}
	})
}

// call runs a resolved function with the caller's arguments followed by
// the TxContext when the function takes one
func (r *run) call(
	view vm.Loader,
	module types.ModuleID,
	function string,
	tyArgs []types.TypeTag,
	bind func(params []vm.ParamType) ([]vm.Value, error),
) ([]vm.Value, *vm.FunctionInfo, error) {
	machine := vm.New(view, r.natives, r.charger.Meter())

	r.current = machine
	defer func() { r.current = nil }()

	info, err := machine.Function(module, function, tyArgs)
	if err != nil {
		return nil, nil, err
	}

	params := info.Params
	withCtx := len(params) > 0 && isTxContext(params[len(params)-1])

	if withCtx {
		params = params[:len(params)-1]
	}

	args, err := bind(params)
	if err != nil {
		return nil, nil, err
	}

	if withCtx {
		args = append(args, r.txContextRef(info.Params[len(info.Params)-1].Ref == vm.MutRef))
	}

	out, err := machine.Execute(module, function, tyArgs, args)
	if err != nil {
		return nil, nil, err
	}

	return out, info, nil
}

func (r *run) moveCall(c *types.MoveCall) ([]*argSlot, error) {
	target, err := r.resolver.ResolveCall(c.Package, c.Module, c.Function)
	if err != nil {
		return nil, err
	}

	out, info, err := r.call(target.View, target.Module, c.Function, c.TypeArguments,
		func(params []vm.ParamType) ([]vm.Value, error) {
			if len(c.Arguments) != len(params) {
				return nil, vm.NewError(vm.KindArityMismatch, "%s::%s expects %d arguments, got %d",
					target.Module, c.Function, len(params), len(c.Arguments))
			}

			args := make([]vm.Value, 0, len(params))

			for i, a := range c.Arguments {
				v, err := r.argument(a, params[i], false)
				if err != nil {
					return nil, argumentError(err, i)
				}

				args = append(args, v)
			}

			return args, nil
		})
	if err != nil {
		return nil, err
	}

	results := make([]*argSlot, 0, len(out))

	for i, v := range out {
		ret := info.Returns[i]
		if ret.Ref != vm.NotRef {
			return nil, vm.NewError(vm.KindTypeError, "%s::%s returns a reference", target.Module, c.Function)
		}

		results = append(results, resultSlot(v, ret.Type))
	}

	return results, nil
}

func argumentError(err error, index int) error {
	if isFatal(err) {
		return err
	}

	ee := executionError(err)
	ee.Message = fmt.Sprintf("argument %d: %s", index, ee.Message)

	return ee
}

func (r *run) checkMutable(s *argSlot) error {
	if s.object != nil && s.input >= 0 && !s.mutable {
		return vm.NewError(vm.KindTypeError, "object %s is not mutable", s.object)
	}

	return nil
}

func (r *run) coinSlot(arg types.Argument) (*argSlot, types.TypeTag, error) {
	s, err := r.typed(arg)
	if err != nil {
		return nil, types.TypeTag{}, err
	}

	coinType, ok := framework.CoinType(*s.typ)
	if !ok {
		return nil, types.TypeTag{}, vm.NewError(vm.KindTypeError, "%s is %s, not a coin", arg, s.typ)
	}

	if err := r.checkMutable(s); err != nil {
		return nil, types.TypeTag{}, err
	}

	return s, coinType, nil
}

// splitCoins takes each amount from the coin into a fresh coin. The
// amounts may add up to the whole balance.
func (r *run) splitCoins(c *types.SplitCoins) ([]*argSlot, error) {
	coin, coinType, err := r.coinSlot(c.Coin)
	if err != nil {
		return nil, err
	}

	balance, err := framework.CoinBalance(coin.value)
	if err != nil {
		return nil, err
	}

	amounts := make([]uint64, 0, len(c.Amounts))

	var total uint64

	for i, a := range c.Amounts {
		v, err := r.argument(a, vm.ParamType{Type: u64Type}, false)
		if err != nil {
			return nil, argumentError(err, i+1)
		}

		n, err := vm.AsU64(v)
		if err != nil {
			return nil, err
		}

		if total+n < total || total+n > balance {
			return nil, &vm.ExecutionError{
				Kind:    vm.KindInsufficientCoinBalance,
				Message: fmt.Sprintf("splitting %d more from a coin of %d after %d", n, balance, total),
			}
		}

		total += n
		amounts = append(amounts, n)
	}

	if err := framework.SetCoinBalance(coin.value, balance-total); err != nil {
		return nil, err
	}

	coin.dirty = true

	results := make([]*argSlot, 0, len(amounts))

	for _, n := range amounts {
		id, err := framework.NextObjectID(r.txCtx)
		if err != nil {
			return nil, err
		}

		r.CreateObject(id)
		results = append(results, resultSlot(framework.CoinValue(id, coinType, n), coin.typ.Clone()))
	}

	return results, nil
}

// mergeCoins adds every source into the target and deletes the sources.
// An empty source list is a no-op.
func (r *run) mergeCoins(c *types.MergeCoins) error {
	target, _, err := r.coinSlot(c.Target)
	if err != nil {
		return err
	}

	balance, err := framework.CoinBalance(target.value)
	if err != nil {
		return err
	}

	for i, src := range c.Sources {
		s, err := r.typed(src)
		if err != nil {
			return argumentError(err, i+1)
		}

		if s == target {
			return vm.NewError(vm.KindTypeError, "cannot merge %s into itself", src)
		}

		if !s.typ.Equal(*target.typ) {
			return vm.NewError(vm.KindTypeError, "cannot merge %s into %s", s.typ, target.typ)
		}

		v, err := r.take(s, false)
		if err != nil {
			return argumentError(err, i+1)
		}

		amount, err := framework.CoinBalance(v)
		if err != nil {
			return err
		}

		if balance+amount < balance {
			return vm.NewError(vm.KindArithmeticError, "coin balance overflow")
		}

		balance += amount

		id, err := framework.ObjectIDOf(v)
		if err != nil {
			return err
		}

		if err := r.DeleteObject(id); err != nil {
			return err
		}
	}

	target.dirty = true

	return framework.SetCoinBalance(target.value, balance)
}

// transferObjects sends objects with store to an address
func (r *run) transferObjects(c *types.TransferObjects) error {
	v, err := r.argument(c.Recipient, vm.ParamType{Type: types.PrimitiveTag(types.TypeAddress)}, false)
	if err != nil {
		return argumentError(err, len(c.Objects))
	}

	recipient, err := vm.AsAddress(v)
	if err != nil {
		return err
	}

	for i, o := range c.Objects {
		s, err := r.typed(o)
		if err != nil {
			return argumentError(err, i)
		}

		abilities, err := r.vm().Abilities(*s.typ)
		if err != nil {
			return err
		}

		if !abilities.Has(bytecode.AbilityKey | bytecode.AbilityStore) {
			return vm.NewError(vm.KindTypeError, "%s of type %s cannot be transferred", o, s.typ)
		}

		value, err := r.take(s, true)
		if err != nil {
			return argumentError(err, i)
		}

		obj, err := vm.AsStruct(value)
		if err != nil {
			return err
		}

		if err := r.transferValue(obj, types.AddressOwner(recipient)); err != nil {
			return err
		}
	}

	return nil
}

// makeMoveVec collects values of one type into a vector. The element type
// may be omitted when there is at least one element.
func (r *run) makeMoveVec(c *types.MakeMoveVec) ([]*argSlot, error) {
	var elem types.TypeTag

	switch {
	case c.Type != nil:
		elem = c.Type.Clone()
	case len(c.Elements) == 0:
		return nil, vm.NewError(vm.KindTypeError, "empty MakeMoveVec needs a type")
	default:
		s, err := r.typed(c.Elements[0])
		if err != nil {
			return nil, argumentError(err, 0)
		}

		elem = s.typ.Clone()
	}

	items := make([]vm.Value, 0, len(c.Elements))

	for i, a := range c.Elements {
		v, err := r.argument(a, vm.ParamType{Type: elem}, false)
		if err != nil {
			return nil, argumentError(err, i)
		}

		items = append(items, v)
	}

	return []*argSlot{resultSlot(&vm.Vector{Elem: elem, Items: items}, types.VectorTag(elem))}, nil
}
