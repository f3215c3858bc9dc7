package bytecode

import (
	"fmt"
	"reflect"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// Field names a struct field and its type
type Field struct {
	Name string
	Type SignatureToken
}

// FunctionSpec describes a function added with ModuleBuilder.AddFunction.
// A nil Code with Native set produces a native function.
type FunctionSpec struct {
	Name       string
	Visibility Visibility
	Entry      bool
	Native     bool
	TypeParams []AbilitySet
	Params     []SignatureToken
	Returns    []SignatureToken
	Locals     []SignatureToken
	Code       []Instruction
}

// ModuleBuilder assembles a CompiledModule, interning identifiers,
// addresses, signatures and handles as they are referenced
type ModuleBuilder struct {
	m *CompiledModule

	identifiers map[string]uint16
	addresses   map[types.Address]uint16
	modules     map[types.ModuleID]uint16
	structs     map[string]uint16
	functions   map[string]uint16
}

func NewModuleBuilder(addr types.Address, name string) *ModuleBuilder {
	b := &ModuleBuilder{
		m:           &CompiledModule{Version: DefaultVersion},
		identifiers: map[string]uint16{},
		addresses:   map[types.Address]uint16{},
		modules:     map[types.ModuleID]uint16{},
		structs:     map[string]uint16{},
		functions:   map[string]uint16{},
	}

	b.m.SelfHandle = b.ModuleHandle(addr, name)

	return b
}

func (b *ModuleBuilder) Identifier(s string) uint16 {
	if idx, ok := b.identifiers[s]; ok {
		return idx
	}

	idx := uint16(len(b.m.Identifiers))
	b.m.Identifiers = append(b.m.Identifiers, s)
	b.identifiers[s] = idx

	return idx
}

func (b *ModuleBuilder) Address(a types.Address) uint16 {
	if idx, ok := b.addresses[a]; ok {
		return idx
	}

	idx := uint16(len(b.m.AddressIdentifiers))
	b.m.AddressIdentifiers = append(b.m.AddressIdentifiers, a)
	b.addresses[a] = idx

	return idx
}

func (b *ModuleBuilder) ModuleHandle(addr types.Address, name string) uint16 {
	id := types.NewModuleID(addr, name)
	if idx, ok := b.modules[id]; ok {
		return idx
	}

	idx := uint16(len(b.m.ModuleHandles))
	b.m.ModuleHandles = append(b.m.ModuleHandles, ModuleHandle{
		Address: b.Address(addr),
		Name:    b.Identifier(name),
	})
	b.modules[id] = idx

	return idx
}

// StructHandle returns a handle to a struct declared in any module
func (b *ModuleBuilder) StructHandle(
	addr types.Address,
	module, name string,
	abilities AbilitySet,
	typeParams []StructTypeParameter,
) uint16 {
	key := types.NewModuleID(addr, module).String() + "::" + name
	if idx, ok := b.structs[key]; ok {
		return idx
	}

	idx := uint16(len(b.m.StructHandles))
	b.m.StructHandles = append(b.m.StructHandles, StructHandle{
		Module:         b.ModuleHandle(addr, module),
		Name:           b.Identifier(name),
		Abilities:      abilities,
		TypeParameters: typeParams,
	})
	b.structs[key] = idx

	return idx
}

func (b *ModuleBuilder) Signature(toks ...SignatureToken) uint16 {
	sig := Signature(toks)
	if sig == nil {
		sig = Signature{}
	}

	for i, existing := range b.m.Signatures {
		if reflect.DeepEqual(existing, sig) {
			return uint16(i)
		}
	}

	b.m.Signatures = append(b.m.Signatures, sig)

	return uint16(len(b.m.Signatures) - 1)
}

func (b *ModuleBuilder) Constant(tok SignatureToken, data []byte) uint16 {
	b.m.ConstantPool = append(b.m.ConstantPool, Constant{Type: tok, Data: data})

	return uint16(len(b.m.ConstantPool) - 1)
}

// AddStruct declares a struct in this module and returns its definition index
func (b *ModuleBuilder) AddStruct(
	name string,
	abilities AbilitySet,
	typeParams []StructTypeParameter,
	fields []Field,
) uint16 {
	self := b.m.Self()
	handle := b.StructHandle(self.Address, self.Name, name, abilities, typeParams)

	def := StructDef{Handle: handle}
	for _, f := range fields {
		def.Fields = append(def.Fields, FieldDef{Name: b.Identifier(f.Name), Type: f.Type})
	}

	b.m.StructDefs = append(b.m.StructDefs, def)

	return uint16(len(b.m.StructDefs) - 1)
}

// StructDefHandle returns the struct handle of a local definition
func (b *ModuleBuilder) StructDefHandle(def uint16) uint16 {
	return b.m.StructDefs[def].Handle
}

func (b *ModuleBuilder) functionHandle(
	addr types.Address,
	module, name string,
	params, returns []SignatureToken,
	typeParams []AbilitySet,
) uint16 {
	key := types.NewModuleID(addr, module).String() + "::" + name
	if idx, ok := b.functions[key]; ok {
		return idx
	}

	idx := uint16(len(b.m.FunctionHandles))
	b.m.FunctionHandles = append(b.m.FunctionHandles, FunctionHandle{
		Module:         b.ModuleHandle(addr, module),
		Name:           b.Identifier(name),
		Parameters:     b.Signature(params...),
		Return:         b.Signature(returns...),
		TypeParameters: typeParams,
	})
	b.functions[key] = idx

	return idx
}

// ImportFunction returns a handle to a function in another module
func (b *ModuleBuilder) ImportFunction(
	addr types.Address,
	module, name string,
	params, returns []SignatureToken,
	typeParams []AbilitySet,
) uint16 {
	return b.functionHandle(addr, module, name, params, returns, typeParams)
}

// AddFunction defines a function in this module and returns its handle
func (b *ModuleBuilder) AddFunction(spec FunctionSpec) uint16 {
	self := b.m.Self()
	handle := b.functionHandle(self.Address, self.Name, spec.Name, spec.Params, spec.Returns, spec.TypeParams)

	def := FunctionDef{
		Handle:     handle,
		Visibility: spec.Visibility,
		IsEntry:    spec.Entry,
	}

	if !spec.Native {
		def.Code = &CodeUnit{
			Locals: b.Signature(spec.Locals...),
			Code:   spec.Code,
		}
	}

	b.m.FunctionDefs = append(b.m.FunctionDefs, def)

	return handle
}

func (b *ModuleBuilder) FunctionInstantiation(handle uint16, typeArgs ...SignatureToken) uint16 {
	b.m.FunctionInsts = append(b.m.FunctionInsts, FunctionInstantiation{
		Handle:         handle,
		TypeParameters: b.Signature(typeArgs...),
	})

	return uint16(len(b.m.FunctionInsts) - 1)
}

func (b *ModuleBuilder) StructInstantiation(def uint16, typeArgs ...SignatureToken) uint16 {
	b.m.StructDefInsts = append(b.m.StructDefInsts, StructDefInstantiation{
		Def:            def,
		TypeParameters: b.Signature(typeArgs...),
	})

	return uint16(len(b.m.StructDefInsts) - 1)
}

func (b *ModuleBuilder) FieldHandle(def uint16, field uint16) uint16 {
	for i, h := range b.m.FieldHandles {
		if h.Owner == def && h.Field == field {
			return uint16(i)
		}
	}

	b.m.FieldHandles = append(b.m.FieldHandles, FieldHandle{Owner: def, Field: field})

	return uint16(len(b.m.FieldHandles) - 1)
}

func (b *ModuleBuilder) FieldInstantiation(handle uint16, typeArgs ...SignatureToken) uint16 {
	b.m.FieldInsts = append(b.m.FieldInsts, FieldInstantiation{
		Handle:         handle,
		TypeParameters: b.Signature(typeArgs...),
	})

	return uint16(len(b.m.FieldInsts) - 1)
}

func (b *ModuleBuilder) AddFriend(addr types.Address, name string) {
	b.m.FriendDecls = append(b.m.FriendDecls, ModuleHandle{
		Address: b.Address(addr),
		Name:    b.Identifier(name),
	})
}

// Build bounds-checks and returns the module
func (b *ModuleBuilder) Build() (*CompiledModule, error) {
	if err := b.m.CheckBounds(); err != nil {
		return nil, fmt.Errorf("module %s: %w", b.m.Self(), err)
	}

	return b.m, nil
}

// Bytes builds and serializes the module
func (b *ModuleBuilder) Bytes() ([]byte, error) {
	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	return Serialize(m)
}

// Ins is shorthand for an instruction with an optional operand
func Ins(op Opcode, arg ...uint64) Instruction {
	ins := Instruction{Op: op}
	if len(arg) > 0 {
		ins.Arg = arg[0]
	}

	if len(arg) > 1 {
		ins.Count = arg[1]
	}

	return ins
}
