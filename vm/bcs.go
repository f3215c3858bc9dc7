package vm

import (
	"fmt"
	"math/big"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// Serialize encodes a value in BCS. Values carry enough type information
// to encode themselves; references are encoded as their target.
func Serialize(v Value) ([]byte, error) {
	e := bcs.NewEncoder()

	if err := encodeValue(e, v); err != nil {
		return nil, err
	}

	return e.Bytes(), nil
}

func encodeValue(e *bcs.Encoder, v Value) error {
	switch x := v.(type) {
	case Bool:
		e.WriteBool(bool(x))
	case Int:
		switch x.Width {
		case 8:
			e.WriteU8(uint8(x.V.Uint64()))
		case 16:
			e.WriteU16(uint16(x.V.Uint64()))
		case 32:
			e.WriteU32(uint32(x.V.Uint64()))
		case 64:
			e.WriteU64(x.V.Uint64())
		default:
			return e.WriteBigUint(x.V, int(x.Width/8))
		}
	case Address:
		e.WriteFixedBytes(x[:])
	case Signer:
		e.WriteFixedBytes(x[:])
	case *Vector:
		e.WriteULEB128(uint64(len(x.Items)))

		for _, it := range x.Items {
			if err := encodeValue(e, it); err != nil {
				return err
			}
		}
	case *Struct:
		for _, f := range x.Fields {
			if err := encodeValue(e, f); err != nil {
				return err
			}
		}
	case *Ref:
		return encodeValue(e, x.get())
	default:
		return NewError(KindTypeError, "cannot serialize %T", v)
	}

	return nil
}

// Deserialize decodes BCS bytes as a value of type t, consuming every byte
func (vm *VM) Deserialize(t types.TypeTag, b []byte) (Value, error) {
	d := bcs.NewDecoder(b)

	v, err := vm.decodeValue(d, t, 0)
	if err != nil {
		return nil, &types.ContextError{TypeName: t.String(), ParamIndex: -1, Err: err}
	}

	if err := d.Finish(); err != nil {
		return nil, &types.ContextError{TypeName: t.String(), ParamIndex: -1, Err: err}
	}

	return v, nil
}

var intWidths = map[types.TypeTagKind]uint16{
	types.TypeU8:   8,
	types.TypeU16:  16,
	types.TypeU32:  32,
	types.TypeU64:  64,
	types.TypeU128: 128,
	types.TypeU256: 256,
}

//nolint:gocyclo
func (vm *VM) decodeValue(d *bcs.Decoder, t types.TypeTag, depth int) (Value, error) {
	if depth > maxTypeDepth {
		return nil, fmt.Errorf("value nesting too deep")
	}

	switch t.Kind {
	case types.TypeBool:
		b, err := d.ReadBool()

		return Bool(b), err
	case types.TypeU8:
		v, err := d.ReadU8()

		return U8(v), err
	case types.TypeU16:
		v, err := d.ReadU16()

		return U16(v), err
	case types.TypeU32:
		v, err := d.ReadU32()

		return U32(v), err
	case types.TypeU64:
		v, err := d.ReadU64()

		return U64(v), err
	case types.TypeU128, types.TypeU256:
		width := intWidths[t.Kind]

		v, err := d.ReadBigUint(int(width / 8))
		if err != nil {
			return nil, err
		}

		return Int{Width: width, V: v}, nil
	case types.TypeAddress, types.TypeSigner:
		a, err := types.DecodeAddress(d)
		if err != nil {
			return nil, err
		}

		if t.Kind == types.TypeSigner {
			return Signer(a), nil
		}

		return Address(a), nil
	case types.TypeVector:
		n, err := d.ReadLength()
		if err != nil {
			return nil, err
		}

		vec := &Vector{Elem: t.Elem.Clone()}

		for i := 0; i < n; i++ {
			it, err := vm.decodeValue(d, *t.Elem, depth+1)
			if err != nil {
				return nil, err
			}

			vec.Items = append(vec.Items, it)
		}

		return vec, nil
	case types.TypeStruct:
		fields, err := vm.StructFields(*t.Struct)
		if err != nil {
			return nil, err
		}

		s := &Struct{Type: t.Struct.Clone(), Fields: make([]Value, len(fields))}

		for i, f := range fields {
			if s.Fields[i], err = vm.decodeValue(d, f.Type, depth+1); err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
		}

		return s, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", types.ErrMalformedTypeTag, t.Kind)
	}
}

// DefaultValue builds the zero value of a type
func (vm *VM) DefaultValue(t types.TypeTag) (Value, error) {
	switch t.Kind {
	case types.TypeBool:
		return Bool(false), nil
	case types.TypeAddress:
		return Address{}, nil
	case types.TypeSigner:
		return Signer{}, nil
	case types.TypeVector:
		return &Vector{Elem: t.Elem.Clone()}, nil
	case types.TypeStruct:
		fields, err := vm.StructFields(*t.Struct)
		if err != nil {
			return nil, err
		}

		s := &Struct{Type: t.Struct.Clone()}

		for _, f := range fields {
			fv, err := vm.DefaultValue(f.Type)
			if err != nil {
				return nil, err
			}

			s.Fields = append(s.Fields, fv)
		}

		return s, nil
	default:
		return Int{Width: intWidths[t.Kind], V: new(big.Int)}, nil
	}
}
