// Package vm is a Move bytecode interpreter for object-model chains.
//
// Execution is single threaded and metered: every instruction and native
// call is charged through a GasMeter before it runs.
package vm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// MaxCallDepth bounds nested Move calls
const MaxCallDepth = 1024

// Loader resolves runtime module ids to compiled modules
type Loader interface {
	LoadModule(id types.ModuleID) (*bytecode.CompiledModule, error)
}

type VM struct {
	loader  Loader
	natives NativeTable
	meter   GasMeter

	layouts map[string][]FieldLayout

	// Instructions counts executed instructions across calls
	Instructions uint64
}

func New(loader Loader, natives NativeTable, meter GasMeter) *VM {
	if natives == nil {
		natives = NativeTable{}
	}

	if meter == nil {
		meter = UnmeteredGasMeter{}
	}

	return &VM{
		loader:  loader,
		natives: natives,
		meter:   meter,
		layouts: map[string][]FieldLayout{},
	}
}

// SetMeter swaps the gas meter for subsequent calls
func (vm *VM) SetMeter(meter GasMeter) {
	vm.meter = meter
}

type frame struct {
	module *bytecode.CompiledModule
	def    *bytecode.FunctionDef
	name   string
	tyArgs []types.TypeTag
	locals []Value
	pc     int
}

func (f *frame) location() *Location {
	offset := f.pc - 1
	if offset < 0 {
		offset = 0
	}

	return &Location{Module: f.module.Self(), Function: f.name, Offset: offset}
}

// Execute runs id::name with the given type arguments and arguments and
// returns its results
func (vm *VM) Execute(id types.ModuleID, name string, tyArgs []types.TypeTag, args []Value) ([]Value, error) {
	m, def, err := vm.findFunction(id, name)
	if err != nil {
		return nil, err
	}

	h := m.FunctionHandles[def.Handle]
	params, returns := m.FunctionSignature(def.Handle)

	if len(args) != len(params) {
		return nil, NewError(KindArityMismatch, "%s::%s expects %d arguments, got %d", id, name, len(params), len(args))
	}

	if len(tyArgs) != len(h.TypeParameters) {
		return nil, NewError(KindArityMismatch, "%s::%s expects %d type arguments, got %d",
			id, name, len(h.TypeParameters), len(tyArgs))
	}

	if def.IsNative() {
		return vm.callNative(m, def, tyArgs, args, id)
	}

	root, err := vm.newFrame(m, def, tyArgs, args)
	if err != nil {
		return nil, err
	}

	stack, err := vm.run(root)
	if err != nil {
		return nil, err
	}

	if len(stack) != len(returns) {
		return nil, NewError(KindTypeError, "%s::%s left %d values, expected %d", id, name, len(stack), len(returns))
	}

	return stack, nil
}

func (vm *VM) newFrame(
	m *bytecode.CompiledModule,
	def *bytecode.FunctionDef,
	tyArgs []types.TypeTag,
	args []Value,
) (*frame, error) {
	nlocals := len(args) + len(m.Signatures[def.Code.Locals])
	locals := make([]Value, nlocals)
	copy(locals, args)

	return &frame{
		module: m,
		def:    def,
		name:   m.FunctionName(def.Handle),
		tyArgs: tyArgs,
		locals: locals,
	}, nil
}

func (vm *VM) callNative(
	m *bytecode.CompiledModule,
	def *bytecode.FunctionDef,
	tyArgs []types.TypeTag,
	args []Value,
	caller types.ModuleID,
) ([]Value, error) {
	self := m.Self()
	name := m.FunctionName(def.Handle)
	key := NativeKey(self.Address, self.Name, name)

	fn, ok := vm.natives[key]
	if !ok {
		return nil, &ExecutionError{
			Kind:     KindUnsupported,
			Location: &Location{Module: self, Function: name},
			Err:      fmt.Errorf("%w: %s", ErrNativeNotFound, key),
		}
	}

	if err := vm.meter.ChargeNative(key, uint64(len(args))); err != nil {
		return nil, &ExecutionError{Kind: KindGasExhaustion, Location: &Location{Module: self, Function: name}, Err: err}
	}

	ctx := &NativeContext{vm: vm, module: self, function: name, caller: caller}

	out, err := fn(ctx, tyArgs, args)
	if err != nil {
		var ee *ExecutionError
		if errors.As(err, &ee) && ee.Location == nil {
			ee.Location = &Location{Module: self, Function: name}
		}

		return nil, err
	}

	return out, nil
}

type operandStack []Value

func (s *operandStack) push(v Value) {
	*s = append(*s, v)
}

func (s *operandStack) pop() (Value, error) {
	n := len(*s)
	if n == 0 {
		return nil, ErrStackUnderflow
	}

	v := (*s)[n-1]
	(*s)[n-1] = nil
	*s = (*s)[:n-1]

	return v, nil
}

func (s *operandStack) popN(n int) ([]Value, error) {
	if len(*s) < n {
		return nil, ErrStackUnderflow
	}

	out := make([]Value, n)
	copy(out, (*s)[len(*s)-n:])
	*s = (*s)[:len(*s)-n]

	return out, nil
}

func (s *operandStack) popInt() (Int, error) {
	v, err := s.pop()
	if err != nil {
		return Int{}, err
	}

	i, ok := v.(Int)
	if !ok {
		return Int{}, NewError(KindTypeError, "expected integer, got %s", v)
	}

	return i, nil
}

func (s *operandStack) popBool() (bool, error) {
	v, err := s.pop()
	if err != nil {
		return false, err
	}

	b, ok := v.(Bool)
	if !ok {
		return false, NewError(KindTypeError, "expected bool, got %s", v)
	}

	return bool(b), nil
}

func (s *operandStack) popRef() (*Ref, error) {
	v, err := s.pop()
	if err != nil {
		return nil, err
	}

	r, ok := v.(*Ref)
	if !ok {
		return nil, NewError(KindTypeError, "expected reference, got %s", v)
	}

	return r, nil
}

// run interprets frames until the root frame returns
func (vm *VM) run(root *frame) ([]Value, error) {
	var stack operandStack

	frames := []*frame{root}

	for len(frames) > 0 {
		f := frames[len(frames)-1]

		callee, done, err := vm.step(f, &stack)
		if err != nil {
			return nil, locate(err, f)
		}

		switch {
		case done:
			frames = frames[:len(frames)-1]
		case callee != nil:
			if len(frames) >= MaxCallDepth {
				return nil, locate(NewError(KindCallDepthExceeded, "depth %d", len(frames)), f)
			}

			frames = append(frames, callee)
		}
	}

	return stack, nil
}

func locate(err error, f *frame) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		if ee.Location == nil {
			ee.Location = f.location()
		}

		return err
	}

	if errors.Is(err, ErrOutOfGas) {
		return &ExecutionError{Kind: KindGasExhaustion, Location: f.location(), Err: err}
	}

	if errors.Is(err, ErrStackUnderflow) {
		return &ExecutionError{Kind: KindTypeError, Location: f.location(), Err: err}
	}

	return err
}

// step executes one instruction. It returns a new frame to push on calls
// and done when f returned.
//
//nolint:gocognit,gocyclo,maintidx
func (vm *VM) step(f *frame, stack *operandStack) (*frame, bool, error) {
	code := f.def.Code.Code
	if f.pc >= len(code) {
		return nil, false, NewError(KindTypeError, "fell off the end of %s", f.name)
	}

	ins := code[f.pc]

	if err := vm.meter.ChargeInstruction(ins.Op); err != nil {
		return nil, false, err
	}

	vm.Instructions++
	f.pc++

	m := f.module

	switch ins.Op {
	case bytecode.OpNop:
	case bytecode.OpPop:
		if _, err := stack.pop(); err != nil {
			return nil, false, err
		}
	case bytecode.OpRet:
		return nil, true, nil
	case bytecode.OpBrTrue, bytecode.OpBrFalse:
		cond, err := stack.popBool()
		if err != nil {
			return nil, false, err
		}

		if cond == (ins.Op == bytecode.OpBrTrue) {
			f.pc = int(ins.Arg)
		}
	case bytecode.OpBranch:
		f.pc = int(ins.Arg)
	case bytecode.OpLdU8:
		stack.push(U8(uint8(ins.Arg)))
	case bytecode.OpLdU16:
		stack.push(U16(uint16(ins.Arg)))
	case bytecode.OpLdU32:
		stack.push(U32(uint32(ins.Arg)))
	case bytecode.OpLdU64:
		stack.push(U64(ins.Arg))
	case bytecode.OpLdU128:
		stack.push(U128(ins.Big))
	case bytecode.OpLdU256:
		stack.push(U256(ins.Big))
	case bytecode.OpLdTrue:
		stack.push(Bool(true))
	case bytecode.OpLdFalse:
		stack.push(Bool(false))
	case bytecode.OpLdConst:
		c := m.ConstantPool[ins.Arg]

		t, err := vm.tokenType(m, c.Type, nil)
		if err != nil {
			return nil, false, err
		}

		v, err := vm.Deserialize(t, c.Data)
		if err != nil {
			return nil, false, err
		}

		stack.push(v)
	case bytecode.OpCopyLoc, bytecode.OpMoveLoc:
		idx := int(ins.Arg)
		if idx >= len(f.locals) || f.locals[idx] == nil {
			return nil, false, NewError(KindTypeError, "local %d is unavailable", idx)
		}

		if ins.Op == bytecode.OpCopyLoc {
			stack.push(Copy(f.locals[idx]))
		} else {
			stack.push(f.locals[idx])
			f.locals[idx] = nil
		}
	case bytecode.OpStLoc:
		v, err := stack.pop()
		if err != nil {
			return nil, false, err
		}

		if int(ins.Arg) >= len(f.locals) {
			return nil, false, NewError(KindTypeError, "local %d out of range", ins.Arg)
		}

		f.locals[ins.Arg] = v
	case bytecode.OpMutBorrowLoc, bytecode.OpImmBorrowLoc:
		idx := int(ins.Arg)
		if idx >= len(f.locals) || f.locals[idx] == nil {
			return nil, false, NewError(KindTypeError, "borrow of unavailable local %d", idx)
		}

		locals := f.locals
		stack.push(&Ref{
			Mutable: ins.Op == bytecode.OpMutBorrowLoc,
			get:     func() Value { return locals[idx] },
			set:     func(v Value) { locals[idx] = v },
		})
	case bytecode.OpMutBorrowField, bytecode.OpImmBorrowField,
		bytecode.OpMutBorrowFieldGeneric, bytecode.OpImmBorrowFieldGeneric:
		handle := uint16(ins.Arg)
		if ins.Op == bytecode.OpMutBorrowFieldGeneric || ins.Op == bytecode.OpImmBorrowFieldGeneric {
			handle = m.FieldInsts[ins.Arg].Handle
		}

		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		fr, err := FieldRef(r, int(m.FieldHandles[handle].Field))
		if err != nil {
			return nil, false, err
		}

		fr.Mutable = ins.Op == bytecode.OpMutBorrowField || ins.Op == bytecode.OpMutBorrowFieldGeneric
		stack.push(fr)
	case bytecode.OpReadRef:
		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		stack.push(Copy(r.get()))
	case bytecode.OpWriteRef:
		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		v, err := stack.pop()
		if err != nil {
			return nil, false, err
		}

		if !r.Mutable {
			return nil, false, NewError(KindTypeError, "write through immutable reference")
		}

		r.set(v)
	case bytecode.OpFreezeRef:
		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		stack.push(r.Freeze())
	case bytecode.OpCall, bytecode.OpCallGeneric:
		return vm.call(f, stack, ins)
	case bytecode.OpPack, bytecode.OpPackGeneric:
		def, tyArgs, err := vm.structOperand(f, ins)
		if err != nil {
			return nil, false, err
		}

		sd := m.StructDefs[def]

		fields, err := stack.popN(len(sd.Fields))
		if err != nil {
			return nil, false, err
		}

		stack.push(&Struct{Type: vm.structTag(m, sd.Handle, tyArgs), Fields: fields})
	case bytecode.OpUnpack, bytecode.OpUnpackGeneric:
		v, err := stack.pop()
		if err != nil {
			return nil, false, err
		}

		s, ok := v.(*Struct)
		if !ok {
			return nil, false, NewError(KindTypeError, "unpack of non-struct %s", v)
		}

		for _, fv := range s.Fields {
			stack.push(fv)
		}
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpMod, bytecode.OpDiv,
		bytecode.OpBitOr, bytecode.OpBitAnd, bytecode.OpXor, bytecode.OpShl, bytecode.OpShr,
		bytecode.OpLt, bytecode.OpGt, bytecode.OpLe, bytecode.OpGe:
		b, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		a, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		v, err := binaryOp(ins.Op, a, b)
		if err != nil {
			return nil, false, err
		}

		stack.push(v)
	case bytecode.OpOr, bytecode.OpAnd:
		b, err := stack.popBool()
		if err != nil {
			return nil, false, err
		}

		a, err := stack.popBool()
		if err != nil {
			return nil, false, err
		}

		if ins.Op == bytecode.OpOr {
			stack.push(Bool(a || b))
		} else {
			stack.push(Bool(a && b))
		}
	case bytecode.OpNot:
		a, err := stack.popBool()
		if err != nil {
			return nil, false, err
		}

		stack.push(Bool(!a))
	case bytecode.OpEq, bytecode.OpNeq:
		vals, err := stack.popN(2)
		if err != nil {
			return nil, false, err
		}

		eq := Equal(vals[0], vals[1])
		stack.push(Bool(eq == (ins.Op == bytecode.OpEq)))
	case bytecode.OpAbort:
		code, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		return nil, false, &ExecutionError{Kind: KindAbort, AbortCode: code.Uint64(), Location: f.location()}
	case bytecode.OpCastU8, bytecode.OpCastU16, bytecode.OpCastU32,
		bytecode.OpCastU64, bytecode.OpCastU128, bytecode.OpCastU256:
		a, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		v, err := NewInt(castWidths[ins.Op], a.V)
		if err != nil {
			return nil, false, err
		}

		stack.push(v)
	case bytecode.OpVecPack:
		elem, err := vm.vectorElem(f, ins.Arg)
		if err != nil {
			return nil, false, err
		}

		items, err := stack.popN(int(ins.Count))
		if err != nil {
			return nil, false, err
		}

		stack.push(&Vector{Elem: elem, Items: items})
	case bytecode.OpVecLen:
		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		vec, ok := r.get().(*Vector)
		if !ok {
			return nil, false, NewError(KindTypeError, "length of non-vector")
		}

		stack.push(U64(uint64(len(vec.Items))))
	case bytecode.OpVecImmBorrow, bytecode.OpVecMutBorrow:
		idx, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		er, err := vectorElemRef(r, idx.Uint64())
		if err != nil {
			return nil, false, err
		}

		er.Mutable = ins.Op == bytecode.OpVecMutBorrow
		stack.push(er)
	case bytecode.OpVecPushBack:
		v, err := stack.pop()
		if err != nil {
			return nil, false, err
		}

		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		vec, ok := r.get().(*Vector)
		if !ok {
			return nil, false, NewError(KindTypeError, "push to non-vector")
		}

		vec.Items = append(vec.Items, v)
	case bytecode.OpVecPopBack:
		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		vec, ok := r.get().(*Vector)
		if !ok {
			return nil, false, NewError(KindTypeError, "pop from non-vector")
		}

		if len(vec.Items) == 0 {
			return nil, false, NewError(KindVectorError, "pop from empty vector")
		}

		last := vec.Items[len(vec.Items)-1]
		vec.Items = vec.Items[:len(vec.Items)-1]
		stack.push(last)
	case bytecode.OpVecUnpack:
		v, err := stack.pop()
		if err != nil {
			return nil, false, err
		}

		vec, ok := v.(*Vector)
		if !ok {
			return nil, false, NewError(KindTypeError, "unpack of non-vector")
		}

		if uint64(len(vec.Items)) != ins.Count {
			return nil, false, NewError(KindVectorError, "unpack expects %d elements, got %d", ins.Count, len(vec.Items))
		}

		for _, it := range vec.Items {
			stack.push(it)
		}
	case bytecode.OpVecSwap:
		j, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		i, err := stack.popInt()
		if err != nil {
			return nil, false, err
		}

		r, err := stack.popRef()
		if err != nil {
			return nil, false, err
		}

		vec, ok := r.get().(*Vector)
		if !ok {
			return nil, false, NewError(KindTypeError, "swap in non-vector")
		}

		n := uint64(len(vec.Items))
		if i.Uint64() >= n || j.Uint64() >= n {
			return nil, false, NewError(KindVectorError, "swap index out of bounds")
		}

		vec.Items[i.Uint64()], vec.Items[j.Uint64()] = vec.Items[j.Uint64()], vec.Items[i.Uint64()]
	default:
		if ins.Op.IsGlobalStorage() {
			return nil, false, NewError(KindUnsupported, "%s: global storage is not available", ins.Op)
		}

		return nil, false, NewError(KindUnsupported, "opcode %s", ins.Op)
	}

	return nil, false, nil
}

func (vm *VM) call(f *frame, stack *operandStack, ins bytecode.Instruction) (*frame, bool, error) {
	m := f.module
	handle := uint16(ins.Arg)

	var tyArgs []types.TypeTag

	if ins.Op == bytecode.OpCallGeneric {
		inst := m.FunctionInsts[ins.Arg]
		handle = inst.Handle

		var err error
		if tyArgs, err = vm.signatureTypes(m, inst.TypeParameters, f.tyArgs); err != nil {
			return nil, false, err
		}
	}

	params, _ := m.FunctionSignature(handle)

	args, err := stack.popN(len(params))
	if err != nil {
		return nil, false, err
	}

	id := m.FunctionModule(handle)
	name := m.FunctionName(handle)

	cm, def, err := vm.findFunction(id, name)
	if err != nil {
		return nil, false, err
	}

	if def.IsNative() {
		out, err := vm.callNative(cm, def, tyArgs, args, m.Self())
		if err != nil {
			return nil, false, err
		}

		for _, v := range out {
			stack.push(v)
		}

		return nil, false, nil
	}

	callee, err := vm.newFrame(cm, def, tyArgs, args)

	return callee, false, err
}

func (vm *VM) structOperand(f *frame, ins bytecode.Instruction) (uint16, []types.TypeTag, error) {
	if ins.Op != bytecode.OpPackGeneric && ins.Op != bytecode.OpUnpackGeneric {
		return uint16(ins.Arg), nil, nil
	}

	inst := f.module.StructDefInsts[ins.Arg]

	tyArgs, err := vm.signatureTypes(f.module, inst.TypeParameters, f.tyArgs)

	return inst.Def, tyArgs, err
}

func (vm *VM) vectorElem(f *frame, sig uint64) (types.TypeTag, error) {
	toks := f.module.Signatures[sig]
	if len(toks) != 1 {
		return types.TypeTag{}, NewError(KindTypeError, "vector signature must have one type")
	}

	return vm.tokenType(f.module, toks[0], f.tyArgs)
}

var castWidths = map[bytecode.Opcode]uint16{
	bytecode.OpCastU8:   8,
	bytecode.OpCastU16:  16,
	bytecode.OpCastU32:  32,
	bytecode.OpCastU64:  64,
	bytecode.OpCastU128: 128,
	bytecode.OpCastU256: 256,
}

//nolint:gocyclo
func binaryOp(op bytecode.Opcode, a, b Int) (Value, error) {
	if op == bytecode.OpShl || op == bytecode.OpShr {
		if b.Width != 8 {
			return nil, NewError(KindTypeError, "shift amount must be u8")
		}

		if b.Uint64() >= uint64(a.Width) {
			return nil, NewError(KindArithmeticError, "shift by %d overflows u%d", b.Uint64(), a.Width)
		}

		if op == bytecode.OpShr {
			return Int{Width: a.Width, V: new(big.Int).Rsh(a.V, uint(b.Uint64()))}, nil
		}

		shifted := new(big.Int).Lsh(a.V, uint(b.Uint64()))

		return Int{Width: a.Width, V: shifted.And(shifted, widthMax(a.Width))}, nil
	}

	if a.Width != b.Width {
		return nil, NewError(KindTypeError, "operands u%d and u%d differ", a.Width, b.Width)
	}

	switch op {
	case bytecode.OpLt:
		return Bool(a.V.Cmp(b.V) < 0), nil
	case bytecode.OpGt:
		return Bool(a.V.Cmp(b.V) > 0), nil
	case bytecode.OpLe:
		return Bool(a.V.Cmp(b.V) <= 0), nil
	case bytecode.OpGe:
		return Bool(a.V.Cmp(b.V) >= 0), nil
	}

	r := new(big.Int)

	switch op {
	case bytecode.OpAdd:
		r.Add(a.V, b.V)
	case bytecode.OpSub:
		if a.V.Cmp(b.V) < 0 {
			return nil, NewError(KindArithmeticError, "subtraction underflow")
		}

		r.Sub(a.V, b.V)
	case bytecode.OpMul:
		r.Mul(a.V, b.V)
	case bytecode.OpDiv, bytecode.OpMod:
		if b.V.Sign() == 0 {
			return nil, NewError(KindArithmeticError, "division by zero")
		}

		if op == bytecode.OpDiv {
			r.Quo(a.V, b.V)
		} else {
			r.Rem(a.V, b.V)
		}
	case bytecode.OpBitOr:
		r.Or(a.V, b.V)
	case bytecode.OpBitAnd:
		r.And(a.V, b.V)
	case bytecode.OpXor:
		r.Xor(a.V, b.V)
	}

	return NewInt(a.Width, r)
}
