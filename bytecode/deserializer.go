package bytecode

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const maxTokenDepth = 256

type tableHeader struct {
	kind   TableKind
	offset uint64
	length uint64
}

// Deserialize decodes and bounds-checks a module
func Deserialize(b []byte) (*CompiledModule, error) {
	if len(b) < 8 || string(b[:4]) != string(Magic) {
		return nil, ErrBadMagic
	}

	raw := binary.LittleEndian.Uint32(b[4:8])

	version := raw & versionMask
	if version < VersionMin || version > VersionMax {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	d := bcs.NewDecoder(b[8:])

	count, err := d.ReadULEB128()
	if err != nil {
		return nil, err
	}

	var headers []tableHeader
	seen := map[TableKind]bool{}

	for i := uint64(0); i < count; i++ {
		kind, err := d.ReadU8()
		if err != nil {
			return nil, err
		}

		offset, err := d.ReadULEB128()
		if err != nil {
			return nil, err
		}

		length, err := d.ReadULEB128()
		if err != nil {
			return nil, err
		}

		k := TableKind(kind)
		if seen[k] {
			return nil, fmt.Errorf("%w: duplicate table 0x%x", ErrMalformedTable, kind)
		}

		seen[k] = true
		headers = append(headers, tableHeader{kind: k, offset: offset, length: length})
	}

	sort.Slice(headers, func(i, j int) bool { return headers[i].offset < headers[j].offset })

	contentStart := uint64(8 + d.Offset())

	var next uint64

	for _, h := range headers {
		if h.offset != next {
			return nil, fmt.Errorf("%w: table 0x%x at %d, expected %d", ErrMalformedTable, h.kind, h.offset, next)
		}

		next += h.length
	}

	if contentStart+next > uint64(len(b)) {
		return nil, fmt.Errorf("%w: tables overrun module", ErrMalformedTable)
	}

	m := &CompiledModule{Version: raw}

	for _, h := range headers {
		body := b[contentStart+h.offset : contentStart+h.offset+h.length]
		if err := m.readTable(h.kind, bcs.NewDecoder(body)); err != nil {
			return nil, fmt.Errorf("table 0x%x: %w", uint8(h.kind), err)
		}
	}

	tail := bcs.NewDecoder(b[contentStart+next:])
	if m.SelfHandle, err = readIndex(tail); err != nil {
		return nil, fmt.Errorf("self module handle: %w", err)
	}

	if err := tail.Finish(); err != nil {
		return nil, err
	}

	if err := m.CheckBounds(); err != nil {
		return nil, err
	}

	return m, nil
}

func readIndex(d *bcs.Decoder) (uint16, error) {
	v, err := d.ReadULEB128()
	if err != nil {
		return 0, err
	}

	if v > 0xffff {
		return 0, fmt.Errorf("%w: index %d", ErrIndexOutOfBounds, v)
	}

	return uint16(v), nil
}

func readIndexPair(d *bcs.Decoder) (uint16, uint16, error) {
	a, err := readIndex(d)
	if err != nil {
		return 0, 0, err
	}

	b, err := readIndex(d)

	return a, b, err
}

//nolint:gocognit,gocyclo
func (m *CompiledModule) readTable(kind TableKind, d *bcs.Decoder) error {
	for d.Remaining() > 0 {
		switch kind {
		case TableModuleHandles, TableFriendDecls:
			addr, name, err := readIndexPair(d)
			if err != nil {
				return err
			}

			if kind == TableModuleHandles {
				m.ModuleHandles = append(m.ModuleHandles, ModuleHandle{Address: addr, Name: name})
			} else {
				m.FriendDecls = append(m.FriendDecls, ModuleHandle{Address: addr, Name: name})
			}
		case TableStructHandles:
			h, err := readStructHandle(d)
			if err != nil {
				return err
			}

			m.StructHandles = append(m.StructHandles, h)
		case TableFunctionHandles:
			h, err := readFunctionHandle(d)
			if err != nil {
				return err
			}

			m.FunctionHandles = append(m.FunctionHandles, h)
		case TableFunctionInst:
			h, sig, err := readIndexPair(d)
			if err != nil {
				return err
			}

			m.FunctionInsts = append(m.FunctionInsts, FunctionInstantiation{Handle: h, TypeParameters: sig})
		case TableStructDefInst:
			def, sig, err := readIndexPair(d)
			if err != nil {
				return err
			}

			m.StructDefInsts = append(m.StructDefInsts, StructDefInstantiation{Def: def, TypeParameters: sig})
		case TableFieldInst:
			h, sig, err := readIndexPair(d)
			if err != nil {
				return err
			}

			m.FieldInsts = append(m.FieldInsts, FieldInstantiation{Handle: h, TypeParameters: sig})
		case TableFieldHandles:
			owner, field, err := readIndexPair(d)
			if err != nil {
				return err
			}

			m.FieldHandles = append(m.FieldHandles, FieldHandle{Owner: owner, Field: field})
		case TableSignatures:
			sig, err := readSignature(d)
			if err != nil {
				return err
			}

			m.Signatures = append(m.Signatures, sig)
		case TableConstantPool:
			tok, err := readToken(d, 0)
			if err != nil {
				return err
			}

			data, err := d.ReadBytes()
			if err != nil {
				return err
			}

			m.ConstantPool = append(m.ConstantPool, Constant{Type: tok, Data: data})
		case TableIdentifiers:
			s, err := d.ReadString()
			if err != nil {
				return err
			}

			if !utf8.ValidString(s) || !types.IsValidIdentifier(s) && s != "<SELF>" {
				return fmt.Errorf("%w: identifier %q", types.ErrInvalidIdentifier, s)
			}

			m.Identifiers = append(m.Identifiers, s)
		case TableAddressIdentifiers:
			a, err := types.DecodeAddress(d)
			if err != nil {
				return err
			}

			m.AddressIdentifiers = append(m.AddressIdentifiers, a)
		case TableStructDefs:
			def, err := readStructDef(d)
			if err != nil {
				return err
			}

			m.StructDefs = append(m.StructDefs, def)
		case TableFunctionDefs:
			def, err := readFunctionDef(d)
			if err != nil {
				return err
			}

			m.FunctionDefs = append(m.FunctionDefs, def)
		case TableMetadata:
			key, err := d.ReadBytes()
			if err != nil {
				return err
			}

			value, err := d.ReadBytes()
			if err != nil {
				return err
			}

			m.Metadata = append(m.Metadata, Metadata{Key: key, Value: value})
		case TableEnumDefs, TableEnumDefInst, TableVariantHandles, TableVariantInstantiations:
			return ErrUnsupportedEnum
		default:
			return fmt.Errorf("%w: 0x%x", ErrUnknownTable, uint8(kind))
		}
	}

	return nil
}

func readStructHandle(d *bcs.Decoder) (StructHandle, error) {
	var h StructHandle

	module, name, err := readIndexPair(d)
	if err != nil {
		return h, err
	}

	abilities, err := d.ReadU8()
	if err != nil {
		return h, err
	}

	h = StructHandle{Module: module, Name: name, Abilities: AbilitySet(abilities)}

	n, err := d.ReadLength()
	if err != nil {
		return h, err
	}

	for i := 0; i < n; i++ {
		constraints, err := d.ReadU8()
		if err != nil {
			return h, err
		}

		phantom, err := d.ReadBool()
		if err != nil {
			return h, err
		}

		h.TypeParameters = append(h.TypeParameters, StructTypeParameter{
			Constraints: AbilitySet(constraints),
			IsPhantom:   phantom,
		})
	}

	return h, nil
}

func readFunctionHandle(d *bcs.Decoder) (FunctionHandle, error) {
	var (
		h   FunctionHandle
		err error
	)

	if h.Module, h.Name, err = readIndexPair(d); err != nil {
		return h, err
	}

	if h.Parameters, h.Return, err = readIndexPair(d); err != nil {
		return h, err
	}

	n, err := d.ReadLength()
	if err != nil {
		return h, err
	}

	for i := 0; i < n; i++ {
		a, err := d.ReadU8()
		if err != nil {
			return h, err
		}

		h.TypeParameters = append(h.TypeParameters, AbilitySet(a))
	}

	return h, nil
}

func readSignature(d *bcs.Decoder) (Signature, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	sig := Signature{}

	for i := 0; i < n; i++ {
		tok, err := readToken(d, 0)
		if err != nil {
			return nil, err
		}

		sig = append(sig, tok)
	}

	return sig, nil
}

func readToken(d *bcs.Decoder, depth int) (SignatureToken, error) {
	if depth > maxTokenDepth {
		return SignatureToken{}, fmt.Errorf("%w: nesting too deep", ErrBadSignatureToken)
	}

	tag, err := d.ReadU8()
	if err != nil {
		return SignatureToken{}, err
	}

	tok := SignatureToken{Kind: TokenKind(tag)}

	switch tok.Kind {
	case TokBool, TokU8, TokU16, TokU32, TokU64, TokU128, TokU256, TokAddress, TokSigner:
		return tok, nil
	case TokVector, TokReference, TokMutRef:
		elem, err := readToken(d, depth+1)
		if err != nil {
			return tok, err
		}

		tok.Elem = &elem

		return tok, nil
	case TokStruct:
		tok.Handle, err = readIndex(d)

		return tok, err
	case TokTypeParam:
		tok.Index, err = readIndex(d)

		return tok, err
	case TokStructInst:
		if tok.Handle, err = readIndex(d); err != nil {
			return tok, err
		}

		n, err := d.ReadLength()
		if err != nil {
			return tok, err
		}

		for i := 0; i < n; i++ {
			arg, err := readToken(d, depth+1)
			if err != nil {
				return tok, err
			}

			tok.TypeArgs = append(tok.TypeArgs, arg)
		}

		return tok, nil
	default:
		return tok, fmt.Errorf("%w: tag 0x%x", ErrBadSignatureToken, tag)
	}
}

func readStructDef(d *bcs.Decoder) (StructDef, error) {
	var def StructDef

	handle, err := readIndex(d)
	if err != nil {
		return def, err
	}

	def.Handle = handle

	info, err := d.ReadU8()
	if err != nil {
		return def, err
	}

	switch info {
	case fieldInfoNative:
		def.Native = true

		return def, nil
	case fieldInfoDeclared:
	default:
		return def, fmt.Errorf("%w: field info 0x%x", ErrMalformedTable, info)
	}

	n, err := d.ReadLength()
	if err != nil {
		return def, err
	}

	for i := 0; i < n; i++ {
		name, err := readIndex(d)
		if err != nil {
			return def, err
		}

		tok, err := readToken(d, 0)
		if err != nil {
			return def, err
		}

		def.Fields = append(def.Fields, FieldDef{Name: name, Type: tok})
	}

	return def, nil
}

func readFunctionDef(d *bcs.Decoder) (FunctionDef, error) {
	var def FunctionDef

	handle, err := readIndex(d)
	if err != nil {
		return def, err
	}

	visibility, err := d.ReadU8()
	if err != nil {
		return def, err
	}

	flags, err := d.ReadU8()
	if err != nil {
		return def, err
	}

	def = FunctionDef{
		Handle:     handle,
		Visibility: Visibility(visibility),
		IsEntry:    flags&functionFlagEntry != 0,
	}

	n, err := d.ReadLength()
	if err != nil {
		return def, err
	}

	for i := 0; i < n; i++ {
		idx, err := readIndex(d)
		if err != nil {
			return def, err
		}

		def.Acquires = append(def.Acquires, idx)
	}

	if flags&functionFlagNative != 0 {
		return def, nil
	}

	locals, err := readIndex(d)
	if err != nil {
		return def, err
	}

	code, err := readCode(d)
	if err != nil {
		return def, err
	}

	def.Code = &CodeUnit{Locals: locals, Code: code}

	return def, nil
}

func readCode(d *bcs.Decoder) ([]Instruction, error) {
	n, err := d.ReadLength()
	if err != nil {
		return nil, err
	}

	var code []Instruction

	for i := 0; i < n; i++ {
		ins, err := readInstruction(d)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}

		code = append(code, ins)
	}

	return code, nil
}

func readInstruction(d *bcs.Decoder) (Instruction, error) {
	b, err := d.ReadU8()
	if err != nil {
		return Instruction{}, err
	}

	op := Opcode(b)

	info, ok := opTable[op]
	if !ok {
		return Instruction{}, fmt.Errorf("%w: 0x%02x", ErrUnknownOpcode, b)
	}

	ins := Instruction{Op: op}

	switch info.operand {
	case operandNone:
	case operandIndex, operandOffset:
		v, err := readIndex(d)
		ins.Arg = uint64(v)

		return ins, err
	case operandLocal, operandU8:
		v, err := d.ReadU8()
		ins.Arg = uint64(v)

		return ins, err
	case operandU16:
		v, err := d.ReadU16()
		ins.Arg = uint64(v)

		return ins, err
	case operandU32:
		v, err := d.ReadU32()
		ins.Arg = uint64(v)

		return ins, err
	case operandU64:
		ins.Arg, err = d.ReadU64()

		return ins, err
	case operandU128:
		ins.Big, err = d.ReadBigUint(16)

		return ins, err
	case operandU256:
		ins.Big, err = d.ReadBigUint(32)

		return ins, err
	case operandIndexCount:
		v, err := readIndex(d)
		if err != nil {
			return ins, err
		}

		ins.Arg = uint64(v)
		ins.Count, err = d.ReadU64()

		return ins, err
	}

	return ins, nil
}
