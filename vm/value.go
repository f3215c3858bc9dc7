package vm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// Value is a runtime Move value
type Value interface {
	fmt.Stringer
	isValue()
}

type Bool bool

type Address types.Address

type Signer types.Address

// Int is an unsigned integer of Width bits. V is never mutated in place.
type Int struct {
	Width uint16
	V     *big.Int
}

// Struct is a packed struct. Containers are shared by references into
// them, so copies must go through Copy.
type Struct struct {
	Type   types.StructTag
	Fields []Value
}

type Vector struct {
	Elem  types.TypeTag
	Items []Value
}

// Ref is a reference to a location: a local, a field, a vector element or
// a slot owned by the caller of the VM
type Ref struct {
	Mutable bool
	get     func() Value
	set     func(Value)
}

func (Bool) isValue()    {}
func (Address) isValue() {}
func (Signer) isValue()  {}
func (Int) isValue()     {}
func (*Struct) isValue() {}
func (*Vector) isValue() {}
func (*Ref) isValue()    {}

func (b Bool) String() string {
	if b {
		return "true"
	}

	return "false"
}

func (a Address) String() string {
	return "@" + types.Address(a).ShortString()
}

func (s Signer) String() string {
	return "signer(" + types.Address(s).ShortString() + ")"
}

func (i Int) String() string {
	return fmt.Sprintf("%su%d", i.V.String(), i.Width)
}

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}

	return s.Type.Name + "{" + strings.Join(parts, ", ") + "}"
}

func (v *Vector) String() string {
	parts := make([]string, len(v.Items))
	for i, it := range v.Items {
		parts[i] = it.String()
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

func (r *Ref) String() string {
	if r.Mutable {
		return "&mut " + r.get().String()
	}

	return "&" + r.get().String()
}

// Get reads through the reference without copying
func (r *Ref) Get() Value {
	return r.get()
}

// Set writes through the reference
func (r *Ref) Set(v Value) {
	r.set(v)
}

// Freeze returns an immutable view of the same location
func (r *Ref) Freeze() *Ref {
	return &Ref{get: r.get, set: r.set}
}

// NewRef returns a reference over caller-owned storage
func NewRef(mutable bool, get func() Value, set func(Value)) *Ref {
	return &Ref{Mutable: mutable, get: get, set: set}
}

// FieldRef returns a reference to field i of the struct behind r
func FieldRef(r *Ref, i int) (*Ref, error) {
	s, ok := r.get().(*Struct)
	if !ok {
		return nil, NewError(KindTypeError, "borrow field of non-struct %s", r.get())
	}

	if i >= len(s.Fields) {
		return nil, NewError(KindTypeError, "field %d out of range for %s", i, s.Type.Name)
	}

	return &Ref{
		Mutable: r.Mutable,
		get:     func() Value { return s.Fields[i] },
		set:     func(v Value) { s.Fields[i] = v },
	}, nil
}

func vectorElemRef(r *Ref, i uint64) (*Ref, error) {
	vec, ok := r.get().(*Vector)
	if !ok {
		return nil, NewError(KindTypeError, "borrow element of non-vector %s", r.get())
	}

	if i >= uint64(len(vec.Items)) {
		return nil, NewError(KindVectorError, "index %d out of bounds for length %d", i, len(vec.Items))
	}

	return &Ref{
		Mutable: r.Mutable,
		get:     func() Value { return vec.Items[i] },
		set:     func(v Value) { vec.Items[i] = v },
	}, nil
}

func widthMax(width uint16) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(width)), big.NewInt(1))
}

// NewInt builds an integer, failing when v does not fit width
func NewInt(width uint16, v *big.Int) (Int, error) {
	if v.Sign() < 0 || v.Cmp(widthMax(width)) > 0 {
		return Int{}, NewError(KindArithmeticError, "%s does not fit u%d", v, width)
	}

	return Int{Width: width, V: v}, nil
}

func U8(v uint8) Int {
	return Int{Width: 8, V: new(big.Int).SetUint64(uint64(v))}
}

func U16(v uint16) Int {
	return Int{Width: 16, V: new(big.Int).SetUint64(uint64(v))}
}

func U32(v uint32) Int {
	return Int{Width: 32, V: new(big.Int).SetUint64(uint64(v))}
}

func U64(v uint64) Int {
	return Int{Width: 64, V: new(big.Int).SetUint64(v)}
}

func U128(v *big.Int) Int {
	return Int{Width: 128, V: new(big.Int).Set(v)}
}

func U256(v *big.Int) Int {
	return Int{Width: 256, V: new(big.Int).Set(v)}
}

// Uint64 returns the value of a u64 or narrower integer
func (i Int) Uint64() uint64 {
	return i.V.Uint64()
}

// AsU64 extracts a u64 from a value, dereferencing references
func AsU64(v Value) (uint64, error) {
	if r, ok := v.(*Ref); ok {
		v = r.get()
	}

	i, ok := v.(Int)
	if !ok || !i.V.IsUint64() {
		return 0, NewError(KindTypeError, "expected u64, got %s", v)
	}

	return i.V.Uint64(), nil
}

// AsStruct extracts a struct from a value, dereferencing references
func AsStruct(v Value) (*Struct, error) {
	if r, ok := v.(*Ref); ok {
		v = r.get()
	}

	s, ok := v.(*Struct)
	if !ok {
		return nil, NewError(KindTypeError, "expected struct, got %s", v)
	}

	return s, nil
}

// AsAddress extracts an address, dereferencing references
func AsAddress(v Value) (types.Address, error) {
	if r, ok := v.(*Ref); ok {
		v = r.get()
	}

	switch a := v.(type) {
	case Address:
		return types.Address(a), nil
	case Signer:
		return types.Address(a), nil
	default:
		return types.Address{}, NewError(KindTypeError, "expected address, got %s", v)
	}
}

// AsBytes extracts a vector<u8>, dereferencing references
func AsBytes(v Value) ([]byte, error) {
	if r, ok := v.(*Ref); ok {
		v = r.get()
	}

	vec, ok := v.(*Vector)
	if !ok || vec.Elem.Kind != types.TypeU8 {
		return nil, NewError(KindTypeError, "expected vector<u8>, got %s", v)
	}

	out := make([]byte, len(vec.Items))
	for i, it := range vec.Items {
		out[i] = byte(it.(Int).V.Uint64()) //nolint:forcetypeassert
	}

	return out, nil
}

// BytesVector builds a vector<u8>
func BytesVector(b []byte) *Vector {
	items := make([]Value, len(b))
	for i, c := range b {
		items[i] = U8(c)
	}

	return &Vector{Elem: types.PrimitiveTag(types.TypeU8), Items: items}
}

// Copy deep-copies a value. References are copied as references.
func Copy(v Value) Value {
	switch x := v.(type) {
	case *Struct:
		fields := make([]Value, len(x.Fields))
		for i, f := range x.Fields {
			fields[i] = Copy(f)
		}

		return &Struct{Type: x.Type.Clone(), Fields: fields}
	case *Vector:
		items := make([]Value, len(x.Items))
		for i, it := range x.Items {
			items[i] = Copy(it)
		}

		return &Vector{Elem: x.Elem.Clone(), Items: items}
	case *Ref:
		return &Ref{Mutable: x.Mutable, get: x.get, set: x.set}
	default:
		return v
	}
}

// Equal compares two values structurally, reading through references
func Equal(a, b Value) bool {
	if r, ok := a.(*Ref); ok {
		a = r.get()
	}

	if r, ok := b.(*Ref); ok {
		b = r.get()
	}

	switch x := a.(type) {
	case Bool, Address, Signer:
		return a == b
	case Int:
		y, ok := b.(Int)

		return ok && x.Width == y.Width && x.V.Cmp(y.V) == 0
	case *Struct:
		y, ok := b.(*Struct)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}

		for i := range x.Fields {
			if !Equal(x.Fields[i], y.Fields[i]) {
				return false
			}
		}

		return true
	case *Vector:
		y, ok := b.(*Vector)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}

		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}

		return true
	}

	return false
}

// StructValue builds a struct of the given type
func StructValue(tag types.StructTag, fields ...Value) *Struct {
	return &Struct{Type: tag, Fields: fields}
}
