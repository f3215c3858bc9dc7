package vm

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const maxTypeDepth = 128

type RefKind uint8

const (
	NotRef RefKind = iota
	ImmRef
	MutRef
)

// ParamType is a parameter or return type, possibly behind a reference
type ParamType struct {
	Ref  RefKind
	Type types.TypeTag
}

func (p ParamType) String() string {
	switch p.Ref {
	case ImmRef:
		return "&" + p.Type.String()
	case MutRef:
		return "&mut " + p.Type.String()
	default:
		return p.Type.String()
	}
}

// FunctionInfo is an instantiated function signature
type FunctionInfo struct {
	Module     types.ModuleID
	Name       string
	Visibility bytecode.Visibility
	IsEntry    bool
	TypeParams []bytecode.AbilitySet
	Params     []ParamType
	Returns    []ParamType
}

// FieldLayout is one field of an instantiated struct
type FieldLayout struct {
	Name string
	Type types.TypeTag
}

func (vm *VM) structTag(m *bytecode.CompiledModule, handle uint16, tyArgs []types.TypeTag) types.StructTag {
	h := m.StructHandles[handle]
	id := m.ModuleIDAt(h.Module)

	return types.StructTag{
		Address:    id.Address,
		Module:     id.Name,
		Name:       m.Identifier(h.Name),
		TypeParams: tyArgs,
	}
}

// TokenType instantiates a non-reference signature token of m
func (vm *VM) TokenType(m *bytecode.CompiledModule, tok bytecode.SignatureToken, tyArgs []types.TypeTag) (types.TypeTag, error) {
	return vm.tokenTypeDepth(m, tok, tyArgs, 0)
}

// tokenType instantiates a non-reference signature token
func (vm *VM) tokenType(m *bytecode.CompiledModule, tok bytecode.SignatureToken, tyArgs []types.TypeTag) (types.TypeTag, error) {
	return vm.tokenTypeDepth(m, tok, tyArgs, 0)
}

//nolint:gocyclo
func (vm *VM) tokenTypeDepth(
	m *bytecode.CompiledModule,
	tok bytecode.SignatureToken,
	tyArgs []types.TypeTag,
	depth int,
) (types.TypeTag, error) {
	if depth > maxTypeDepth {
		return types.TypeTag{}, NewError(KindTypeError, "type nesting too deep")
	}

	switch tok.Kind {
	case bytecode.TokBool:
		return types.PrimitiveTag(types.TypeBool), nil
	case bytecode.TokU8:
		return types.PrimitiveTag(types.TypeU8), nil
	case bytecode.TokU16:
		return types.PrimitiveTag(types.TypeU16), nil
	case bytecode.TokU32:
		return types.PrimitiveTag(types.TypeU32), nil
	case bytecode.TokU64:
		return types.PrimitiveTag(types.TypeU64), nil
	case bytecode.TokU128:
		return types.PrimitiveTag(types.TypeU128), nil
	case bytecode.TokU256:
		return types.PrimitiveTag(types.TypeU256), nil
	case bytecode.TokAddress:
		return types.PrimitiveTag(types.TypeAddress), nil
	case bytecode.TokSigner:
		return types.PrimitiveTag(types.TypeSigner), nil
	case bytecode.TokVector:
		elem, err := vm.tokenTypeDepth(m, *tok.Elem, tyArgs, depth+1)
		if err != nil {
			return types.TypeTag{}, err
		}

		return types.VectorTag(elem), nil
	case bytecode.TokTypeParam:
		if int(tok.Index) >= len(tyArgs) {
			return types.TypeTag{}, NewError(KindTypeError, "type parameter %d not instantiated", tok.Index)
		}

		return tyArgs[tok.Index].Clone(), nil
	case bytecode.TokStruct, bytecode.TokStructInst:
		var args []types.TypeTag

		for _, a := range tok.TypeArgs {
			t, err := vm.tokenTypeDepth(m, a, tyArgs, depth+1)
			if err != nil {
				return types.TypeTag{}, err
			}

			args = append(args, t)
		}

		return types.StructTypeTag(vm.structTag(m, tok.Handle, args)), nil
	default:
		return types.TypeTag{}, NewError(KindTypeError, "reference type %d in value position", tok.Kind)
	}
}

func (vm *VM) paramType(m *bytecode.CompiledModule, tok bytecode.SignatureToken, tyArgs []types.TypeTag) (ParamType, error) {
	switch tok.Kind {
	case bytecode.TokReference, bytecode.TokMutRef:
		inner, err := vm.tokenType(m, *tok.Elem, tyArgs)
		if err != nil {
			return ParamType{}, err
		}

		kind := ImmRef
		if tok.Kind == bytecode.TokMutRef {
			kind = MutRef
		}

		return ParamType{Ref: kind, Type: inner}, nil
	default:
		t, err := vm.tokenType(m, tok, tyArgs)

		return ParamType{Type: t}, err
	}
}

func (vm *VM) signatureTypes(m *bytecode.CompiledModule, idx uint16, tyArgs []types.TypeTag) ([]types.TypeTag, error) {
	var out []types.TypeTag

	for _, tok := range m.Signatures[idx] {
		t, err := vm.tokenType(m, tok, tyArgs)
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	return out, nil
}

func (vm *VM) findFunction(id types.ModuleID, name string) (*bytecode.CompiledModule, *bytecode.FunctionDef, error) {
	m, err := vm.loader.LoadModule(id)
	if err != nil {
		return nil, nil, err
	}

	def, err := m.FindFunction(name)
	if err != nil {
		return nil, nil, &ExecutionError{Kind: KindLinkerError, Message: fmt.Sprintf("function %s::%s", id, name), Err: err}
	}

	return m, def, nil
}

// Function returns the instantiated signature of id::name
func (vm *VM) Function(id types.ModuleID, name string, tyArgs []types.TypeTag) (*FunctionInfo, error) {
	m, def, err := vm.findFunction(id, name)
	if err != nil {
		return nil, err
	}

	h := m.FunctionHandles[def.Handle]
	if len(tyArgs) != len(h.TypeParameters) {
		return nil, NewError(KindArityMismatch, "%s::%s expects %d type arguments, got %d",
			id, name, len(h.TypeParameters), len(tyArgs))
	}

	info := &FunctionInfo{
		Module:     id,
		Name:       name,
		Visibility: def.Visibility,
		IsEntry:    def.IsEntry,
		TypeParams: h.TypeParameters,
	}

	params, returns := m.FunctionSignature(def.Handle)

	for _, tok := range params {
		p, err := vm.paramType(m, tok, tyArgs)
		if err != nil {
			return nil, err
		}

		info.Params = append(info.Params, p)
	}

	for _, tok := range returns {
		p, err := vm.paramType(m, tok, tyArgs)
		if err != nil {
			return nil, err
		}

		info.Returns = append(info.Returns, p)
	}

	return info, nil
}

func (vm *VM) structDef(tag types.StructTag) (*bytecode.CompiledModule, *bytecode.StructDef, error) {
	m, err := vm.loader.LoadModule(tag.ModuleID())
	if err != nil {
		return nil, nil, err
	}

	idx, err := m.FindStruct(tag.Name)
	if err != nil {
		return nil, nil, &ExecutionError{Kind: KindLinkerError, Message: tag.String(), Err: err}
	}

	return m, &m.StructDefs[idx], nil
}

// StructFields returns the instantiated field layout of a struct
func (vm *VM) StructFields(tag types.StructTag) ([]FieldLayout, error) {
	key := tag.String()
	if cached, ok := vm.layouts[key]; ok {
		return cached, nil
	}

	m, def, err := vm.structDef(tag)
	if err != nil {
		return nil, err
	}

	if def.Native {
		return nil, NewError(KindUnsupported, "native struct %s", tag)
	}

	fields := make([]FieldLayout, 0, len(def.Fields))

	for _, f := range def.Fields {
		t, err := vm.tokenType(m, f.Type, tag.TypeParams)
		if err != nil {
			return nil, err
		}

		fields = append(fields, FieldLayout{Name: m.Identifier(f.Name), Type: t})
	}

	vm.layouts[key] = fields

	return fields, nil
}

var requiredForAbility = map[bytecode.AbilitySet]bytecode.AbilitySet{
	bytecode.AbilityCopy:  bytecode.AbilityCopy,
	bytecode.AbilityDrop:  bytecode.AbilityDrop,
	bytecode.AbilityStore: bytecode.AbilityStore,
	bytecode.AbilityKey:   bytecode.AbilityStore,
}

// Abilities computes the abilities of an instantiated type
func (vm *VM) Abilities(t types.TypeTag) (bytecode.AbilitySet, error) {
	const primitive = bytecode.AbilityCopy | bytecode.AbilityDrop | bytecode.AbilityStore

	switch t.Kind {
	case types.TypeSigner:
		return bytecode.AbilityDrop, nil
	case types.TypeVector:
		elem, err := vm.Abilities(*t.Elem)

		return elem & primitive, err
	case types.TypeStruct:
		m, def, err := vm.structDef(*t.Struct)
		if err != nil {
			return 0, err
		}

		h := m.StructHandles[def.Handle]
		declared := h.Abilities

		for i, arg := range t.Struct.TypeParams {
			if i < len(h.TypeParameters) && h.TypeParameters[i].IsPhantom {
				continue
			}

			argAbilities, err := vm.Abilities(arg)
			if err != nil {
				return 0, err
			}

			for ability, required := range requiredForAbility {
				if declared.Has(ability) && !argAbilities.Has(required) {
					declared &^= ability
				}
			}
		}

		return declared, nil
	default:
		return primitive, nil
	}
}

// IsObjectType reports whether t is a struct with the key ability
func (vm *VM) IsObjectType(t types.TypeTag) bool {
	if t.Kind != types.TypeStruct {
		return false
	}

	a, err := vm.Abilities(t)

	return err == nil && a.Has(bytecode.AbilityKey)
}
