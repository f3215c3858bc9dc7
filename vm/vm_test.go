package vm

import (
	"errors"
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pkg = types.MustParseAddress("0xbeef")

type mapLoader map[types.ModuleID]*bytecode.CompiledModule

func (l mapLoader) LoadModule(id types.ModuleID) (*bytecode.CompiledModule, error) {
	m, ok := l[id]
	if !ok {
		return nil, errors.New("module not found: " + id.String())
	}

	return m, nil
}

func (l mapLoader) add(t *testing.T, b *bytecode.ModuleBuilder) {
	t.Helper()

	m, err := b.Build()
	require.NoError(t, err)

	l[m.Self()] = m
}

// buildMath declares:
//
//	struct Pair has copy, drop { a: u64, b: u64 }
//	public fun add(x: u64, y: u64): u64
//	public fun fail(code: u64)
//	public fun sum(p: Pair): u64
//	public fun bump(p: &mut Pair)
//	public fun twice(x: u64): u64 { add(x, x) }
//	public native fun hash(v: u64): u64
func buildMath(t *testing.T, l mapLoader) {
	t.Helper()

	u64 := bytecode.Tok(bytecode.TokU64)
	b := bytecode.NewModuleBuilder(pkg, "math")

	pair := b.AddStruct("Pair", bytecode.AbilityCopy|bytecode.AbilityDrop, nil, []bytecode.Field{
		{Name: "a", Type: u64},
		{Name: "b", Type: u64},
	})
	pairTok := bytecode.StructTok(b.StructDefHandle(pair))

	add := b.AddFunction(bytecode.FunctionSpec{
		Name:       "add",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{u64, u64},
		Returns:    []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpMoveLoc, 1),
			bytecode.Ins(bytecode.OpAdd),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "fail",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpAbort),
		},
	})

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "sum",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{pairTok},
		Returns:    []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpUnpack, uint64(pair)),
			bytecode.Ins(bytecode.OpAdd),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	fieldA := b.FieldHandle(pair, 0)

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "bump",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{bytecode.MutRefTok(pairTok)},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpCopyLoc, 0),
			bytecode.Ins(bytecode.OpImmBorrowField, uint64(fieldA)),
			bytecode.Ins(bytecode.OpReadRef),
			bytecode.Ins(bytecode.OpLdU64, 1),
			bytecode.Ins(bytecode.OpAdd),
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpMutBorrowField, uint64(fieldA)),
			bytecode.Ins(bytecode.OpWriteRef),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "twice",
		Visibility: bytecode.VisibilityPublic,
		Params:     []bytecode.SignatureToken{u64},
		Returns:    []bytecode.SignatureToken{u64},
		Code: []bytecode.Instruction{
			bytecode.Ins(bytecode.OpCopyLoc, 0),
			bytecode.Ins(bytecode.OpMoveLoc, 0),
			bytecode.Ins(bytecode.OpCall, uint64(add)),
			bytecode.Ins(bytecode.OpRet),
		},
	})

	b.AddFunction(bytecode.FunctionSpec{
		Name:       "hash",
		Visibility: bytecode.VisibilityPublic,
		Native:     true,
		Params:     []bytecode.SignatureToken{u64},
		Returns:    []bytecode.SignatureToken{u64},
	})

	l.add(t, b)
}

var mathID = types.NewModuleID(pkg, "math")

func TestExecuteArithmetic(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	machine := New(l, nil, nil)

	out, err := machine.Execute(mathID, "twice", nil, []Value{U64(21)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, Equal(U64(42), out[0]))

	_, err = machine.Execute(mathID, "add", nil, []Value{U64(^uint64(0)), U64(1)})

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindArithmeticError, ee.Kind)
	assert.Equal(t, "add", ee.Location.Function)
}

func TestExecuteAbort(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	_, err := New(l, nil, nil).Execute(mathID, "fail", nil, []Value{U64(77)})

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindAbort, ee.Kind)
	assert.Equal(t, uint64(77), ee.AbortCode)
	assert.Equal(t, mathID, ee.Location.Module)
	assert.Equal(t, 1, ee.Location.Offset)
}

func TestExecuteArity(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	_, err := New(l, nil, nil).Execute(mathID, "add", nil, []Value{U64(1)})

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindArityMismatch, ee.Kind)
}

func TestStructsAndReferences(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	machine := New(l, nil, nil)
	pairTag := types.StructTag{Address: pkg, Module: "math", Name: "Pair"}

	// decode Pair{a: 5, b: 6} from BCS
	raw := append(u64Bytes(5), u64Bytes(6)...)

	v, err := machine.Deserialize(types.StructTypeTag(pairTag), raw)
	require.NoError(t, err)

	out, err := machine.Execute(mathID, "sum", nil, []Value{Copy(v)})
	require.NoError(t, err)
	assert.True(t, Equal(U64(11), out[0]))

	slot := v
	ref := NewRef(true, func() Value { return slot }, func(nv Value) { slot = nv })

	_, err = machine.Execute(mathID, "bump", nil, []Value{ref})
	require.NoError(t, err)

	encoded, err := Serialize(slot)
	require.NoError(t, err)
	assert.Equal(t, append(u64Bytes(6), u64Bytes(6)...), encoded)
}

func TestNatives(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	natives := NativeTable{}
	natives.Add(pkg, "math", "hash", func(_ *NativeContext, _ []types.TypeTag, args []Value) ([]Value, error) {
		n, err := AsU64(args[0])
		if err != nil {
			return nil, err
		}

		if n == 0 {
			return nil, AbortError(3)
		}

		return []Value{U64(n * 31)}, nil
	})

	machine := New(l, natives, nil)

	out, err := machine.Execute(mathID, "hash", nil, []Value{U64(2)})
	require.NoError(t, err)
	assert.True(t, Equal(U64(62), out[0]))

	_, err = machine.Execute(mathID, "hash", nil, []Value{U64(0)})

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, uint64(3), ee.AbortCode)
	assert.Equal(t, "hash", ee.Location.Function)

	_, err = New(l, nil, nil).Execute(mathID, "hash", nil, []Value{U64(2)})
	assert.ErrorIs(t, err, ErrNativeNotFound)
}

type countingMeter struct {
	budget uint64
}

func (m *countingMeter) ChargeInstruction(bytecode.Opcode) error {
	if m.budget == 0 {
		return ErrOutOfGas
	}

	m.budget--

	return nil
}

func (m *countingMeter) ChargeNative(string, uint64) error {
	return nil
}

func TestGasExhaustion(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	machine := New(l, nil, &countingMeter{budget: 3})

	_, err := machine.Execute(mathID, "twice", nil, []Value{U64(1)})

	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindGasExhaustion, ee.Kind)
	assert.Equal(t, uint64(3), machine.Instructions)
}

func TestAbilities(t *testing.T) {
	t.Parallel()

	l := mapLoader{}
	buildMath(t, l)

	machine := New(l, nil, nil)

	a, err := machine.Abilities(types.MustParseTypeTag("0xbeef::math::Pair"))
	require.NoError(t, err)
	assert.True(t, a.Has(bytecode.AbilityCopy|bytecode.AbilityDrop))
	assert.False(t, a.Has(bytecode.AbilityKey))

	a, err = machine.Abilities(types.MustParseTypeTag("vector<signer>"))
	require.NoError(t, err)
	assert.Equal(t, bytecode.AbilityDrop, a)
}

func TestBinaryOp(t *testing.T) {
	t.Parallel()

	v, err := binaryOp(bytecode.OpShl, U8(0x81), U8(1))
	require.NoError(t, err)
	assert.True(t, Equal(U8(0x02), v))

	_, err = binaryOp(bytecode.OpShr, U8(1), U8(8))
	assert.Error(t, err)

	_, err = binaryOp(bytecode.OpSub, U64(1), U64(2))
	assert.Error(t, err)

	_, err = binaryOp(bytecode.OpAdd, U64(1), U8(2))
	assert.Error(t, err)

	v, err = binaryOp(bytecode.OpLe, U64(2), U64(2))
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)
}

func u64Bytes(v uint64) []byte {
	b, _ := Serialize(U64(v))

	return b
}
