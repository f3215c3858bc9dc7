package ptb

import (
	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

// argSlot holds one value a command can reference: an input, a command
// result or the gas coin
type argSlot struct {
	// input is the input index, or -1 for results
	input int

	// pure inputs keep their bytes and are decoded at the type of each use
	pure []byte

	value vm.Value
	typ   *types.TypeTag

	object    *types.ObjectID
	receiving *types.ObjectRef

	// mutable objects may be borrowed mutably; owned ones taken by value
	mutable bool
	owned   bool
	gas     bool

	moved bool
	dirty bool
}

func resultSlot(v vm.Value, t types.TypeTag) *argSlot {
	return &argSlot{input: -1, value: v, typ: &t}
}

func (r *run) slot(arg types.Argument) (*argSlot, error) {
	switch arg.Kind {
	case types.ArgGasCoin:
		return r.gasCoin, nil
	case types.ArgInput:
		if int(arg.Index) >= len(r.inputs) {
			return nil, vm.NewError(vm.KindTypeError, "%s out of range, %d inputs", arg, len(r.inputs))
		}

		return r.inputs[arg.Index], nil
	case types.ArgResult:
		if int(arg.Index) >= len(r.results) {
			return nil, vm.NewError(vm.KindTypeError, "%s refers to a command that has not run", arg)
		}

		// a command with several results is addressed by its first one
		res := r.results[arg.Index]
		if len(res) == 0 {
			return nil, vm.NewError(vm.KindTypeError, "%s has no values", arg)
		}

		return res[0], nil
	case types.ArgNestedResult:
		if int(arg.Index) >= len(r.results) {
			return nil, vm.NewError(vm.KindTypeError, "%s refers to a command that has not run", arg)
		}

		res := r.results[arg.Index]
		if int(arg.SubIndex) >= len(res) {
			return nil, vm.NewError(vm.KindTypeError, "%s out of range, %d values", arg, len(res))
		}

		return res[arg.SubIndex], nil
	default:
		return nil, vm.NewError(vm.KindTypeError, "unknown argument kind %d", arg.Kind)
	}
}

// materialize ensures the slot holds a value of type t
func (r *run) materialize(s *argSlot, t types.TypeTag) error {
	switch {
	case s.receiving != nil:
		if t.Kind != types.TypeStruct || !t.Struct.Is(types.FrameworkAddress, "transfer", "Receiving") {
			return vm.NewError(vm.KindTypeError, "receiving input used as %s", t)
		}

		if s.value == nil {
			s.value = vm.StructValue(*t.Struct, framework.IDValue(s.receiving.ID), vm.U64(s.receiving.Version))
			s.typ = &t
		}
	case s.pure != nil && !s.dirty:
		if s.typ != nil && s.typ.Equal(t) {
			return nil
		}

		if r.vm().IsObjectType(t) {
			return vm.NewError(vm.KindTypeError, "pure input used as object type %s", t)
		}

		v, err := r.vm().Deserialize(t, s.pure)
		if err != nil {
			return &vm.ExecutionError{Kind: vm.KindTypeError, Message: "pure input does not decode as " + t.String(), Err: err}
		}

		s.value, s.typ = v, &t

		return nil
	case s.value == nil && s.object != nil:
		slot, ok := r.txn.Get(*s.object)
		if !ok {
			return vm.NewError(vm.KindMissingObject, "%s", s.object)
		}

		v, err := r.vm().Deserialize(slot.Type, slot.Contents)
		if err != nil {
			return err
		}

		s.value = v
	}

	if s.typ == nil || !s.typ.Equal(t) {
		have := "untyped pure value"
		if s.typ != nil {
			have = s.typ.String()
		}

		return vm.NewError(vm.KindTypeError, "expected %s, found %s", t, have)
	}

	return nil
}

// typed returns the slot materialized at its own type, for commands that
// do not dictate one
func (r *run) typed(arg types.Argument) (*argSlot, error) {
	s, err := r.slot(arg)
	if err != nil {
		return nil, err
	}

	if s.moved {
		return nil, vm.NewError(vm.KindTypeError, "%s was moved", arg)
	}

	if s.typ == nil {
		return nil, vm.NewError(vm.KindTypeError, "%s has no type", arg)
	}

	if err := r.materialize(s, *s.typ); err != nil {
		return nil, err
	}

	return s, nil
}

// argument binds arg to a Move parameter
func (r *run) argument(arg types.Argument, p vm.ParamType, allowGasByValue bool) (vm.Value, error) {
	s, err := r.slot(arg)
	if err != nil {
		return nil, err
	}

	if s.moved {
		return nil, vm.NewError(vm.KindTypeError, "%s was moved", arg)
	}

	if err := r.materialize(s, p.Type); err != nil {
		return nil, err
	}

	switch p.Ref {
	case vm.ImmRef:
		return r.borrow(s, false)
	case vm.MutRef:
		return r.borrow(s, true)
	default:
		return r.take(s, allowGasByValue)
	}
}

func (r *run) borrow(s *argSlot, mutable bool) (*vm.Ref, error) {
	if mutable {
		if s.object != nil && s.input >= 0 && !s.mutable {
			return nil, vm.NewError(vm.KindTypeError, "object %s is not mutable", s.object)
		}

		s.dirty = true
	}

	return vm.NewRef(mutable, func() vm.Value { return s.value }, func(v vm.Value) { s.value = v }), nil
}

// take moves the value out of the slot unless its type has copy
func (r *run) take(s *argSlot, allowGas bool) (vm.Value, error) {
	abilities, err := r.vm().Abilities(*s.typ)
	if err != nil {
		return nil, err
	}

	if abilities.Has(bytecode.AbilityCopy) {
		return vm.Copy(s.value), nil
	}

	if s.gas && !allowGas {
		return nil, vm.NewError(vm.KindTypeError, "gas coin can only be taken by TransferObjects")
	}

	if s.object != nil && s.input >= 0 && s.receiving == nil && !s.owned && !s.mutable {
		return nil, vm.NewError(vm.KindTypeError, "object %s cannot be taken by value", s.object)
	}

	s.moved = true

	if abilities.Has(bytecode.AbilityKey) {
		if id, err := framework.ObjectIDOf(s.value); err == nil {
			r.moved[id] = struct{}{}
		}
	}

	return s.value, nil
}
