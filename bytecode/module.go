// Package bytecode reads and writes the Move binary module format.
package bytecode

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const (
	VersionMin = 5
	VersionMax = 7

	// versionMask strips the flavor byte some chains set in the version word
	versionMask = 0x00ffffff
)

var Magic = []byte{0xA1, 0x1C, 0xEB, 0x0B}

var (
	ErrBadMagic           = errors.New("bad module magic")
	ErrUnsupportedVersion = errors.New("unsupported bytecode version")
	ErrUnsupportedEnum    = errors.New("enum tables are not supported")
	ErrMalformedTable     = errors.New("malformed table layout")
	ErrUnknownTable       = errors.New("unknown table kind")
	ErrUnknownOpcode      = errors.New("unknown opcode")
	ErrBadSignatureToken  = errors.New("bad signature token")
	ErrIndexOutOfBounds   = errors.New("index out of bounds")
	ErrNotFound           = errors.New("not found in module")
)

type TableKind uint8

const (
	TableModuleHandles         TableKind = 0x1
	TableStructHandles         TableKind = 0x2
	TableFunctionHandles       TableKind = 0x3
	TableFunctionInst          TableKind = 0x4
	TableSignatures            TableKind = 0x5
	TableConstantPool          TableKind = 0x6
	TableIdentifiers           TableKind = 0x7
	TableAddressIdentifiers    TableKind = 0x8
	TableStructDefs            TableKind = 0xA
	TableStructDefInst         TableKind = 0xB
	TableFunctionDefs          TableKind = 0xC
	TableFieldHandles          TableKind = 0xD
	TableFieldInst             TableKind = 0xE
	TableFriendDecls           TableKind = 0xF
	TableMetadata              TableKind = 0x10
	TableEnumDefs              TableKind = 0x11
	TableEnumDefInst           TableKind = 0x12
	TableVariantHandles        TableKind = 0x13
	TableVariantInstantiations TableKind = 0x14
)

type AbilitySet uint8

const (
	AbilityCopy  AbilitySet = 0x1
	AbilityDrop  AbilitySet = 0x2
	AbilityStore AbilitySet = 0x4
	AbilityKey   AbilitySet = 0x8
)

func (a AbilitySet) Has(other AbilitySet) bool {
	return a&other == other
}

type Visibility uint8

const (
	VisibilityPrivate Visibility = 0
	VisibilityPublic  Visibility = 1
	VisibilityFriend  Visibility = 3
)

const (
	functionFlagNative = 0x2
	functionFlagEntry  = 0x4

	fieldInfoNative   = 0x1
	fieldInfoDeclared = 0x2
)

type ModuleHandle struct {
	Address uint16
	Name    uint16
}

type StructTypeParameter struct {
	Constraints AbilitySet
	IsPhantom   bool
}

type StructHandle struct {
	Module         uint16
	Name           uint16
	Abilities      AbilitySet
	TypeParameters []StructTypeParameter
}

type FunctionHandle struct {
	Module         uint16
	Name           uint16
	Parameters     uint16
	Return         uint16
	TypeParameters []AbilitySet
}

type FieldHandle struct {
	Owner uint16
	Field uint16
}

type StructDefInstantiation struct {
	Def            uint16
	TypeParameters uint16
}

type FunctionInstantiation struct {
	Handle         uint16
	TypeParameters uint16
}

type FieldInstantiation struct {
	Handle         uint16
	TypeParameters uint16
}

type TokenKind uint8

const (
	TokBool       TokenKind = 0x1
	TokU8         TokenKind = 0x2
	TokU64        TokenKind = 0x3
	TokU128       TokenKind = 0x4
	TokAddress    TokenKind = 0x5
	TokReference  TokenKind = 0x6
	TokMutRef     TokenKind = 0x7
	TokStruct     TokenKind = 0x8
	TokTypeParam  TokenKind = 0x9
	TokVector     TokenKind = 0xA
	TokStructInst TokenKind = 0xB
	TokSigner     TokenKind = 0xC
	TokU16        TokenKind = 0xD
	TokU32        TokenKind = 0xE
	TokU256       TokenKind = 0xF
)

// SignatureToken is one type in a signature. Elem is set for vectors and
// references, Handle and TypeArgs for structs, Index for type parameters.
type SignatureToken struct {
	Kind     TokenKind
	Elem     *SignatureToken
	Handle   uint16
	TypeArgs []SignatureToken
	Index    uint16
}

func Tok(kind TokenKind) SignatureToken {
	return SignatureToken{Kind: kind}
}

func VectorTok(elem SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokVector, Elem: &elem}
}

func RefTok(elem SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokReference, Elem: &elem}
}

func MutRefTok(elem SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokMutRef, Elem: &elem}
}

func StructTok(handle uint16, typeArgs ...SignatureToken) SignatureToken {
	if len(typeArgs) == 0 {
		return SignatureToken{Kind: TokStruct, Handle: handle}
	}

	return SignatureToken{Kind: TokStructInst, Handle: handle, TypeArgs: typeArgs}
}

func TypeParamTok(idx uint16) SignatureToken {
	return SignatureToken{Kind: TokTypeParam, Index: idx}
}

func (t SignatureToken) IsReference() bool {
	return t.Kind == TokReference || t.Kind == TokMutRef
}

type Signature []SignatureToken

type Constant struct {
	Type SignatureToken
	Data []byte
}

type FieldDef struct {
	Name uint16
	Type SignatureToken
}

type StructDef struct {
	Handle uint16
	Native bool
	Fields []FieldDef
}

// Instruction is one decoded bytecode instruction. Arg carries indices,
// branch targets, locals and immediates up to u64; Big carries u128/u256
// immediates; Count carries the element count of VecPack/VecUnpack.
type Instruction struct {
	Op    Opcode
	Arg   uint64
	Big   *big.Int
	Count uint64
}

type CodeUnit struct {
	Locals uint16
	Code   []Instruction
}

type FunctionDef struct {
	Handle     uint16
	Visibility Visibility
	IsEntry    bool
	Acquires   []uint16
	Code       *CodeUnit
}

func (f *FunctionDef) IsNative() bool {
	return f.Code == nil
}

type Metadata struct {
	Key   []byte
	Value []byte
}

// CompiledModule is a decoded module. Index fields refer into its tables.
type CompiledModule struct {
	Version            uint32
	SelfHandle         uint16
	ModuleHandles      []ModuleHandle
	StructHandles      []StructHandle
	FunctionHandles    []FunctionHandle
	FieldHandles       []FieldHandle
	FriendDecls        []ModuleHandle
	StructDefInsts     []StructDefInstantiation
	FunctionInsts      []FunctionInstantiation
	FieldInsts         []FieldInstantiation
	Signatures         []Signature
	Identifiers        []string
	AddressIdentifiers []types.Address
	ConstantPool       []Constant
	Metadata           []Metadata
	StructDefs         []StructDef
	FunctionDefs       []FunctionDef
}

func (m *CompiledModule) Identifier(idx uint16) string {
	if int(idx) >= len(m.Identifiers) {
		return fmt.Sprintf("<bad identifier %d>", idx)
	}

	return m.Identifiers[idx]
}

// ModuleIDAt returns the id named by a module handle
func (m *CompiledModule) ModuleIDAt(handle uint16) types.ModuleID {
	h := m.ModuleHandles[handle]

	return types.ModuleID{Address: m.AddressIdentifiers[h.Address], Name: m.Identifier(h.Name)}
}

// Self returns the id of this module
func (m *CompiledModule) Self() types.ModuleID {
	return m.ModuleIDAt(m.SelfHandle)
}

// Dependencies lists every module handle other than self
func (m *CompiledModule) Dependencies() []types.ModuleID {
	var out []types.ModuleID

	for i := range m.ModuleHandles {
		if uint16(i) != m.SelfHandle {
			out = append(out, m.ModuleIDAt(uint16(i)))
		}
	}

	return out
}

func (m *CompiledModule) StructName(handle uint16) string {
	return m.Identifier(m.StructHandles[handle].Name)
}

func (m *CompiledModule) FunctionName(handle uint16) string {
	return m.Identifier(m.FunctionHandles[handle].Name)
}

// FunctionModule returns the module a function handle points into
func (m *CompiledModule) FunctionModule(handle uint16) types.ModuleID {
	return m.ModuleIDAt(m.FunctionHandles[handle].Module)
}

// FindFunction returns the definition with the given name
func (m *CompiledModule) FindFunction(name string) (*FunctionDef, error) {
	for i := range m.FunctionDefs {
		if m.FunctionName(m.FunctionDefs[i].Handle) == name {
			return &m.FunctionDefs[i], nil
		}
	}

	return nil, fmt.Errorf("%w: function %s::%s", ErrNotFound, m.Self(), name)
}

// FindStruct returns the definition index of the struct with the given name
func (m *CompiledModule) FindStruct(name string) (uint16, error) {
	for i := range m.StructDefs {
		if m.StructName(m.StructDefs[i].Handle) == name {
			return uint16(i), nil
		}
	}

	return 0, fmt.Errorf("%w: struct %s::%s", ErrNotFound, m.Self(), name)
}

// FunctionSignature returns the parameter and return signatures of a handle
func (m *CompiledModule) FunctionSignature(handle uint16) (params, returns Signature) {
	h := m.FunctionHandles[handle]

	return m.Signatures[h.Parameters], m.Signatures[h.Return]
}

func (m *CompiledModule) FieldName(def uint16, field int) string {
	return m.Identifier(m.StructDefs[def].Fields[field].Name)
}

// SubstituteAddress rewrites every address identifier equal to from and
// reports whether any was found
func (m *CompiledModule) SubstituteAddress(from, to types.Address) bool {
	found := false

	for i, a := range m.AddressIdentifiers {
		if a == from {
			m.AddressIdentifiers[i] = to
			found = true
		}
	}

	return found
}
