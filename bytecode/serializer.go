package bytecode

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
)

// DefaultVersion is written by Serialize when the module carries none
const DefaultVersion = 6

// Serialize encodes a module in the binary format Deserialize reads
func Serialize(m *CompiledModule) ([]byte, error) {
	type table struct {
		kind TableKind
		body []byte
	}

	var tables []table

	add := func(kind TableKind, n int, write func(e *bcs.Encoder, i int) error) error {
		if n == 0 {
			return nil
		}

		e := bcs.NewEncoder()

		for i := 0; i < n; i++ {
			if err := write(e, i); err != nil {
				return fmt.Errorf("table 0x%x: %w", uint8(kind), err)
			}
		}

		tables = append(tables, table{kind: kind, body: e.Bytes()})

		return nil
	}

	steps := []error{
		add(TableModuleHandles, len(m.ModuleHandles), func(e *bcs.Encoder, i int) error {
			writeModuleHandle(e, m.ModuleHandles[i])

			return nil
		}),
		add(TableStructHandles, len(m.StructHandles), func(e *bcs.Encoder, i int) error {
			writeStructHandle(e, m.StructHandles[i])

			return nil
		}),
		add(TableFunctionHandles, len(m.FunctionHandles), func(e *bcs.Encoder, i int) error {
			writeFunctionHandle(e, m.FunctionHandles[i])

			return nil
		}),
		add(TableFunctionInst, len(m.FunctionInsts), func(e *bcs.Encoder, i int) error {
			writeIndexPair(e, m.FunctionInsts[i].Handle, m.FunctionInsts[i].TypeParameters)

			return nil
		}),
		add(TableSignatures, len(m.Signatures), func(e *bcs.Encoder, i int) error {
			e.WriteULEB128(uint64(len(m.Signatures[i])))

			for _, tok := range m.Signatures[i] {
				writeToken(e, tok)
			}

			return nil
		}),
		add(TableConstantPool, len(m.ConstantPool), func(e *bcs.Encoder, i int) error {
			writeToken(e, m.ConstantPool[i].Type)
			e.WriteBytes(m.ConstantPool[i].Data)

			return nil
		}),
		add(TableIdentifiers, len(m.Identifiers), func(e *bcs.Encoder, i int) error {
			e.WriteString(m.Identifiers[i])

			return nil
		}),
		add(TableAddressIdentifiers, len(m.AddressIdentifiers), func(e *bcs.Encoder, i int) error {
			e.WriteFixedBytes(m.AddressIdentifiers[i].Bytes())

			return nil
		}),
		add(TableStructDefs, len(m.StructDefs), func(e *bcs.Encoder, i int) error {
			writeStructDef(e, m.StructDefs[i])

			return nil
		}),
		add(TableStructDefInst, len(m.StructDefInsts), func(e *bcs.Encoder, i int) error {
			writeIndexPair(e, m.StructDefInsts[i].Def, m.StructDefInsts[i].TypeParameters)

			return nil
		}),
		add(TableFunctionDefs, len(m.FunctionDefs), func(e *bcs.Encoder, i int) error {
			return writeFunctionDef(e, m.FunctionDefs[i])
		}),
		add(TableFieldHandles, len(m.FieldHandles), func(e *bcs.Encoder, i int) error {
			writeIndexPair(e, m.FieldHandles[i].Owner, m.FieldHandles[i].Field)

			return nil
		}),
		add(TableFieldInst, len(m.FieldInsts), func(e *bcs.Encoder, i int) error {
			writeIndexPair(e, m.FieldInsts[i].Handle, m.FieldInsts[i].TypeParameters)

			return nil
		}),
		add(TableFriendDecls, len(m.FriendDecls), func(e *bcs.Encoder, i int) error {
			writeModuleHandle(e, m.FriendDecls[i])

			return nil
		}),
		add(TableMetadata, len(m.Metadata), func(e *bcs.Encoder, i int) error {
			e.WriteBytes(m.Metadata[i].Key)
			e.WriteBytes(m.Metadata[i].Value)

			return nil
		}),
	}

	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}

	version := m.Version
	if version == 0 {
		version = DefaultVersion
	}

	out := bcs.NewEncoder()
	out.WriteFixedBytes(Magic)
	out.WriteU32(version)
	out.WriteULEB128(uint64(len(tables)))

	var offset uint64

	for _, t := range tables {
		out.WriteU8(uint8(t.kind))
		out.WriteULEB128(offset)
		out.WriteULEB128(uint64(len(t.body)))

		offset += uint64(len(t.body))
	}

	for _, t := range tables {
		out.WriteFixedBytes(t.body)
	}

	out.WriteULEB128(uint64(m.SelfHandle))

	return out.Bytes(), nil
}

func writeIndexPair(e *bcs.Encoder, a, b uint16) {
	e.WriteULEB128(uint64(a))
	e.WriteULEB128(uint64(b))
}

func writeModuleHandle(e *bcs.Encoder, h ModuleHandle) {
	writeIndexPair(e, h.Address, h.Name)
}

func writeStructHandle(e *bcs.Encoder, h StructHandle) {
	writeIndexPair(e, h.Module, h.Name)
	e.WriteU8(uint8(h.Abilities))
	e.WriteULEB128(uint64(len(h.TypeParameters)))

	for _, p := range h.TypeParameters {
		e.WriteU8(uint8(p.Constraints))
		e.WriteBool(p.IsPhantom)
	}
}

func writeFunctionHandle(e *bcs.Encoder, h FunctionHandle) {
	writeIndexPair(e, h.Module, h.Name)
	writeIndexPair(e, h.Parameters, h.Return)
	e.WriteULEB128(uint64(len(h.TypeParameters)))

	for _, a := range h.TypeParameters {
		e.WriteU8(uint8(a))
	}
}

func writeToken(e *bcs.Encoder, tok SignatureToken) {
	e.WriteU8(uint8(tok.Kind))

	switch tok.Kind {
	case TokVector, TokReference, TokMutRef:
		writeToken(e, *tok.Elem)
	case TokStruct:
		e.WriteULEB128(uint64(tok.Handle))
	case TokTypeParam:
		e.WriteULEB128(uint64(tok.Index))
	case TokStructInst:
		e.WriteULEB128(uint64(tok.Handle))
		e.WriteULEB128(uint64(len(tok.TypeArgs)))

		for _, arg := range tok.TypeArgs {
			writeToken(e, arg)
		}
	}
}

func writeStructDef(e *bcs.Encoder, def StructDef) {
	e.WriteULEB128(uint64(def.Handle))

	if def.Native {
		e.WriteU8(fieldInfoNative)

		return
	}

	e.WriteU8(fieldInfoDeclared)
	e.WriteULEB128(uint64(len(def.Fields)))

	for _, f := range def.Fields {
		e.WriteULEB128(uint64(f.Name))
		writeToken(e, f.Type)
	}
}

func writeFunctionDef(e *bcs.Encoder, def FunctionDef) error {
	e.WriteULEB128(uint64(def.Handle))
	e.WriteU8(uint8(def.Visibility))

	var flags uint8
	if def.IsEntry {
		flags |= functionFlagEntry
	}

	if def.IsNative() {
		flags |= functionFlagNative
	}

	e.WriteU8(flags)
	e.WriteULEB128(uint64(len(def.Acquires)))

	for _, a := range def.Acquires {
		e.WriteULEB128(uint64(a))
	}

	if def.IsNative() {
		return nil
	}

	e.WriteULEB128(uint64(def.Code.Locals))
	e.WriteULEB128(uint64(len(def.Code.Code)))

	for i, ins := range def.Code.Code {
		if err := writeInstruction(e, ins); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	return nil
}

func writeInstruction(e *bcs.Encoder, ins Instruction) error {
	info, ok := opTable[ins.Op]
	if !ok {
		return fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, uint8(ins.Op))
	}

	e.WriteU8(uint8(ins.Op))

	switch info.operand {
	case operandNone:
	case operandIndex, operandOffset:
		e.WriteULEB128(ins.Arg)
	case operandLocal, operandU8:
		e.WriteU8(uint8(ins.Arg))
	case operandU16:
		e.WriteU16(uint16(ins.Arg))
	case operandU32:
		e.WriteU32(uint32(ins.Arg))
	case operandU64:
		e.WriteU64(ins.Arg)
	case operandU128:
		return e.WriteBigUint(ins.Big, 16)
	case operandU256:
		return e.WriteBigUint(ins.Big, 32)
	case operandIndexCount:
		e.WriteULEB128(ins.Arg)
		e.WriteU64(ins.Count)
	}

	return nil
}
