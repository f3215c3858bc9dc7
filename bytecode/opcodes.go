package bytecode

import "fmt"

type Opcode uint8

const (
	OpPop                    Opcode = 0x01
	OpRet                    Opcode = 0x02
	OpBrTrue                 Opcode = 0x03
	OpBrFalse                Opcode = 0x04
	OpBranch                 Opcode = 0x05
	OpLdU64                  Opcode = 0x06
	OpLdConst                Opcode = 0x07
	OpLdTrue                 Opcode = 0x08
	OpLdFalse                Opcode = 0x09
	OpCopyLoc                Opcode = 0x0A
	OpMoveLoc                Opcode = 0x0B
	OpStLoc                  Opcode = 0x0C
	OpMutBorrowLoc           Opcode = 0x0D
	OpImmBorrowLoc           Opcode = 0x0E
	OpMutBorrowField         Opcode = 0x0F
	OpImmBorrowField         Opcode = 0x10
	OpCall                   Opcode = 0x11
	OpPack                   Opcode = 0x12
	OpUnpack                 Opcode = 0x13
	OpReadRef                Opcode = 0x14
	OpWriteRef               Opcode = 0x15
	OpAdd                    Opcode = 0x16
	OpSub                    Opcode = 0x17
	OpMul                    Opcode = 0x18
	OpMod                    Opcode = 0x19
	OpDiv                    Opcode = 0x1A
	OpBitOr                  Opcode = 0x1B
	OpBitAnd                 Opcode = 0x1C
	OpXor                    Opcode = 0x1D
	OpOr                     Opcode = 0x1E
	OpAnd                    Opcode = 0x1F
	OpNot                    Opcode = 0x20
	OpEq                     Opcode = 0x21
	OpNeq                    Opcode = 0x22
	OpLt                     Opcode = 0x23
	OpGt                     Opcode = 0x24
	OpLe                     Opcode = 0x25
	OpGe                     Opcode = 0x26
	OpAbort                  Opcode = 0x27
	OpNop                    Opcode = 0x28
	OpExists                 Opcode = 0x29
	OpMutBorrowGlobal        Opcode = 0x2A
	OpImmBorrowGlobal        Opcode = 0x2B
	OpMoveFrom               Opcode = 0x2C
	OpMoveTo                 Opcode = 0x2D
	OpFreezeRef              Opcode = 0x2E
	OpShl                    Opcode = 0x2F
	OpShr                    Opcode = 0x30
	OpLdU8                   Opcode = 0x31
	OpLdU128                 Opcode = 0x32
	OpCastU8                 Opcode = 0x33
	OpCastU64                Opcode = 0x34
	OpCastU128               Opcode = 0x35
	OpMutBorrowFieldGeneric  Opcode = 0x36
	OpImmBorrowFieldGeneric  Opcode = 0x37
	OpCallGeneric            Opcode = 0x38
	OpPackGeneric            Opcode = 0x39
	OpUnpackGeneric          Opcode = 0x3A
	OpExistsGeneric          Opcode = 0x3B
	OpMutBorrowGlobalGeneric Opcode = 0x3C
	OpImmBorrowGlobalGeneric Opcode = 0x3D
	OpMoveFromGeneric        Opcode = 0x3E
	OpMoveToGeneric          Opcode = 0x3F
	OpVecPack                Opcode = 0x40
	OpVecLen                 Opcode = 0x41
	OpVecImmBorrow           Opcode = 0x42
	OpVecMutBorrow           Opcode = 0x43
	OpVecPushBack            Opcode = 0x44
	OpVecPopBack             Opcode = 0x45
	OpVecUnpack              Opcode = 0x46
	OpVecSwap                Opcode = 0x47
	OpLdU16                  Opcode = 0x48
	OpLdU32                  Opcode = 0x49
	OpLdU256                 Opcode = 0x4A
	OpCastU16                Opcode = 0x4B
	OpCastU32                Opcode = 0x4C
	OpCastU256               Opcode = 0x4D
)

// operandKind describes how an instruction's operand is encoded
type operandKind uint8

const (
	operandNone    operandKind = iota
	operandIndex               // uleb128 pool or handle index
	operandOffset              // uleb128 code offset
	operandLocal               // raw u8
	operandU8                  // raw u8 immediate
	operandU16                 // little-endian u16 immediate
	operandU32                 // little-endian u32 immediate
	operandU64                 // little-endian u64 immediate
	operandU128                // little-endian u128 immediate
	operandU256                // little-endian u256 immediate
	operandIndexCount          // uleb128 signature index + u64 count
)

type opInfo struct {
	name    string
	operand operandKind
}

var opTable = map[Opcode]opInfo{
	OpPop:                    {"Pop", operandNone},
	OpRet:                    {"Ret", operandNone},
	OpBrTrue:                 {"BrTrue", operandOffset},
	OpBrFalse:                {"BrFalse", operandOffset},
	OpBranch:                 {"Branch", operandOffset},
	OpLdU64:                  {"LdU64", operandU64},
	OpLdConst:                {"LdConst", operandIndex},
	OpLdTrue:                 {"LdTrue", operandNone},
	OpLdFalse:                {"LdFalse", operandNone},
	OpCopyLoc:                {"CopyLoc", operandLocal},
	OpMoveLoc:                {"MoveLoc", operandLocal},
	OpStLoc:                  {"StLoc", operandLocal},
	OpMutBorrowLoc:           {"MutBorrowLoc", operandLocal},
	OpImmBorrowLoc:           {"ImmBorrowLoc", operandLocal},
	OpMutBorrowField:         {"MutBorrowField", operandIndex},
	OpImmBorrowField:         {"ImmBorrowField", operandIndex},
	OpCall:                   {"Call", operandIndex},
	OpPack:                   {"Pack", operandIndex},
	OpUnpack:                 {"Unpack", operandIndex},
	OpReadRef:                {"ReadRef", operandNone},
	OpWriteRef:               {"WriteRef", operandNone},
	OpAdd:                    {"Add", operandNone},
	OpSub:                    {"Sub", operandNone},
	OpMul:                    {"Mul", operandNone},
	OpMod:                    {"Mod", operandNone},
	OpDiv:                    {"Div", operandNone},
	OpBitOr:                  {"BitOr", operandNone},
	OpBitAnd:                 {"BitAnd", operandNone},
	OpXor:                    {"Xor", operandNone},
	OpOr:                     {"Or", operandNone},
	OpAnd:                    {"And", operandNone},
	OpNot:                    {"Not", operandNone},
	OpEq:                     {"Eq", operandNone},
	OpNeq:                    {"Neq", operandNone},
	OpLt:                     {"Lt", operandNone},
	OpGt:                     {"Gt", operandNone},
	OpLe:                     {"Le", operandNone},
	OpGe:                     {"Ge", operandNone},
	OpAbort:                  {"Abort", operandNone},
	OpNop:                    {"Nop", operandNone},
	OpExists:                 {"Exists", operandIndex},
	OpMutBorrowGlobal:        {"MutBorrowGlobal", operandIndex},
	OpImmBorrowGlobal:        {"ImmBorrowGlobal", operandIndex},
	OpMoveFrom:               {"MoveFrom", operandIndex},
	OpMoveTo:                 {"MoveTo", operandIndex},
	OpFreezeRef:              {"FreezeRef", operandNone},
	OpShl:                    {"Shl", operandNone},
	OpShr:                    {"Shr", operandNone},
	OpLdU8:                   {"LdU8", operandU8},
	OpLdU128:                 {"LdU128", operandU128},
	OpCastU8:                 {"CastU8", operandNone},
	OpCastU64:                {"CastU64", operandNone},
	OpCastU128:               {"CastU128", operandNone},
	OpMutBorrowFieldGeneric:  {"MutBorrowFieldGeneric", operandIndex},
	OpImmBorrowFieldGeneric:  {"ImmBorrowFieldGeneric", operandIndex},
	OpCallGeneric:            {"CallGeneric", operandIndex},
	OpPackGeneric:            {"PackGeneric", operandIndex},
	OpUnpackGeneric:          {"UnpackGeneric", operandIndex},
	OpExistsGeneric:          {"ExistsGeneric", operandIndex},
	OpMutBorrowGlobalGeneric: {"MutBorrowGlobalGeneric", operandIndex},
	OpImmBorrowGlobalGeneric: {"ImmBorrowGlobalGeneric", operandIndex},
	OpMoveFromGeneric:        {"MoveFromGeneric", operandIndex},
	OpMoveToGeneric:          {"MoveToGeneric", operandIndex},
	OpVecPack:                {"VecPack", operandIndexCount},
	OpVecLen:                 {"VecLen", operandIndex},
	OpVecImmBorrow:           {"VecImmBorrow", operandIndex},
	OpVecMutBorrow:           {"VecMutBorrow", operandIndex},
	OpVecPushBack:            {"VecPushBack", operandIndex},
	OpVecPopBack:             {"VecPopBack", operandIndex},
	OpVecUnpack:              {"VecUnpack", operandIndexCount},
	OpVecSwap:                {"VecSwap", operandIndex},
	OpLdU16:                  {"LdU16", operandU16},
	OpLdU32:                  {"LdU32", operandU32},
	OpLdU256:                 {"LdU256", operandU256},
	OpCastU16:                {"CastU16", operandNone},
	OpCastU32:                {"CastU32", operandNone},
	OpCastU256:               {"CastU256", operandNone},
}

func (op Opcode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}

	return fmt.Sprintf("Opcode(0x%02x)", uint8(op))
}

// IsBranch reports whether the instruction transfers control to Arg
func (op Opcode) IsBranch() bool {
	return op == OpBrTrue || op == OpBrFalse || op == OpBranch
}

// IsComparison reports whether the instruction compares two operands
func (op Opcode) IsComparison() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpGt, OpLe, OpGe:
		return true
	default:
		return false
	}
}

// IsGlobalStorage reports whether the instruction touches global storage,
// which object-model chains do not support
func (op Opcode) IsGlobalStorage() bool {
	switch op {
	case OpExists, OpMutBorrowGlobal, OpImmBorrowGlobal, OpMoveFrom, OpMoveTo,
		OpExistsGeneric, OpMutBorrowGlobalGeneric, OpImmBorrowGlobalGeneric,
		OpMoveFromGeneric, OpMoveToGeneric:
		return true
	default:
		return false
	}
}
