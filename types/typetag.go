package types

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrUnknownPrimitive   = errors.New("unknown primitive type")
	ErrUnbalancedBrackets = errors.New("unbalanced angle brackets")
	ErrInvalidIdentifier  = errors.New("invalid move identifier")
	ErrMalformedTypeTag   = errors.New("malformed type tag")
)

// MaxTypeTagDepth bounds vector and struct nesting for both the BCS and
// the string forms of a type tag
const MaxTypeTagDepth = 128

type TypeTagKind uint8

const (
	TypeBool TypeTagKind = iota
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeU128
	TypeU256
	TypeAddress
	TypeSigner
	TypeVector
	TypeStruct
)

var primitiveNames = map[string]TypeTagKind{
	"bool":    TypeBool,
	"u8":      TypeU8,
	"u16":     TypeU16,
	"u32":     TypeU32,
	"u64":     TypeU64,
	"u128":    TypeU128,
	"u256":    TypeU256,
	"address": TypeAddress,
	"signer":  TypeSigner,
}

func (k TypeTagKind) String() string {
	for name, kind := range primitiveNames {
		if kind == k {
			return name
		}
	}

	switch k {
	case TypeVector:
		return "vector"
	case TypeStruct:
		return "struct"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TypeTag is a fully instantiated Move type
type TypeTag struct {
	Kind   TypeTagKind
	Elem   *TypeTag
	Struct *StructTag
}

// StructTag names a struct type with its instantiation
type StructTag struct {
	Address    Address
	Module     string
	Name       string
	TypeParams []TypeTag
}

func PrimitiveTag(kind TypeTagKind) TypeTag {
	return TypeTag{Kind: kind}
}

func VectorTag(elem TypeTag) TypeTag {
	return TypeTag{Kind: TypeVector, Elem: &elem}
}

func StructTypeTag(st StructTag) TypeTag {
	return TypeTag{Kind: TypeStruct, Struct: &st}
}

// parsedTags caches parse results keyed by the raw input
var parsedTags *lru.Cache

func init() {
	var err error

	if parsedTags, err = lru.New(4096); err != nil {
		panic(err)
	}
}

// ParseTypeTag parses primitives, vector<T> and fully qualified structs
func ParseTypeTag(s string) (TypeTag, error) {
	if cached, ok := parsedTags.Get(s); ok {
		//nolint:forcetypeassert
		return cached.(TypeTag).Clone(), nil
	}

	tag, err := parseTypeTag(strings.TrimSpace(s), 0)
	if err != nil {
		return TypeTag{}, err
	}

	parsedTags.Add(s, tag.Clone())

	return tag, nil
}

// MustParseTypeTag panics on malformed input. Intended for constants and tests.
func MustParseTypeTag(s string) TypeTag {
	tag, err := ParseTypeTag(s)
	if err != nil {
		panic(err)
	}

	return tag
}

// ParseStructTag parses a struct type and rejects everything else
func ParseStructTag(s string) (StructTag, error) {
	tag, err := ParseTypeTag(s)
	if err != nil {
		return StructTag{}, err
	}

	if tag.Kind != TypeStruct {
		return StructTag{}, fmt.Errorf("%w: %q is not a struct", ErrMalformedTypeTag, s)
	}

	return *tag.Struct, nil
}

func parseTypeTag(s string, depth int) (TypeTag, error) {
	if s == "" {
		return TypeTag{}, fmt.Errorf("%w: empty", ErrMalformedTypeTag)
	}

	if depth > MaxTypeTagDepth {
		return TypeTag{}, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedTypeTag, MaxTypeTagDepth)
	}

	if kind, ok := primitiveNames[s]; ok {
		return TypeTag{Kind: kind}, nil
	}

	if strings.HasPrefix(s, "vector<") {
		if !strings.HasSuffix(s, ">") {
			return TypeTag{}, fmt.Errorf("%w: %q", ErrUnbalancedBrackets, s)
		}

		params, err := SplitTypeParams(s[len("vector<") : len(s)-1])
		if err != nil {
			return TypeTag{}, err
		}

		if len(params) != 1 {
			return TypeTag{}, fmt.Errorf("%w: vector takes one parameter, got %d", ErrMalformedTypeTag, len(params))
		}

		elem, err := parseTypeTag(params[0], depth+1)
		if err != nil {
			return TypeTag{}, err
		}

		return VectorTag(elem), nil
	}

	if !strings.Contains(s, "::") {
		return TypeTag{}, fmt.Errorf("%w: %q", ErrUnknownPrimitive, s)
	}

	st, err := parseStructTag(s, depth)
	if err != nil {
		return TypeTag{}, err
	}

	return StructTypeTag(st), nil
}

func parseStructTag(s string, depth int) (StructTag, error) {
	head, paramsRaw := s, ""

	if idx := strings.IndexByte(s, '<'); idx >= 0 {
		if !strings.HasSuffix(s, ">") {
			return StructTag{}, fmt.Errorf("%w: %q", ErrUnbalancedBrackets, s)
		}

		head, paramsRaw = s[:idx], s[idx+1:len(s)-1]
	} else if strings.ContainsRune(s, '>') {
		return StructTag{}, fmt.Errorf("%w: %q", ErrUnbalancedBrackets, s)
	}

	parts := strings.Split(strings.TrimSpace(head), "::")
	if len(parts) != 3 {
		return StructTag{}, fmt.Errorf("%w: %q", ErrMalformedTypeTag, s)
	}

	addr, err := ParseAddress(parts[0])
	if err != nil {
		return StructTag{}, err
	}

	for _, ident := range parts[1:] {
		if !IsValidIdentifier(ident) {
			return StructTag{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, ident)
		}
	}

	st := StructTag{Address: addr, Module: parts[1], Name: parts[2]}

	if strings.IndexByte(s, '<') < 0 {
		return st, nil
	}

	params, err := SplitTypeParams(paramsRaw)
	if err != nil {
		return StructTag{}, err
	}

	if len(params) == 0 {
		return StructTag{}, fmt.Errorf("%w: empty type parameter list in %q", ErrMalformedTypeTag, s)
	}

	for _, p := range params {
		tag, err := parseTypeTag(p, depth+1)
		if err != nil {
			return StructTag{}, err
		}

		st.TypeParams = append(st.TypeParams, tag)
	}

	return st, nil
}

// SplitTypeParams splits a comma separated list at angle-bracket depth zero
func SplitTypeParams(s string) ([]string, error) {
	var (
		out   []string
		depth int
		start int
	)

	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: %q", ErrUnbalancedBrackets, s)
			}
		case ',':
			if depth == 0 {
				token := strings.TrimSpace(s[start:i])
				if token == "" {
					return nil, fmt.Errorf("%w: empty parameter in %q", ErrMalformedTypeTag, s)
				}

				out = append(out, token)
				start = i + 1
			}
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnbalancedBrackets, s)
	}

	token := strings.TrimSpace(s[start:])
	if token == "" {
		return nil, fmt.Errorf("%w: empty parameter in %q", ErrMalformedTypeTag, s)
	}

	return append(out, token), nil
}

// IsValidIdentifier applies the Move identifier rules
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	isAlnum := func(c byte) bool {
		return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}

	first := s[0]

	switch {
	case (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z'):
	case first == '_':
		if len(s) == 1 {
			return false
		}
	default:
		return false
	}

	for i := 1; i < len(s); i++ {
		if !isAlnum(s[i]) {
			return false
		}
	}

	return true
}

// String formats the tag canonically; ParseTypeTag accepts the output
func (t TypeTag) String() string {
	var sb strings.Builder

	t.write(&sb)

	return sb.String()
}

func (t TypeTag) write(sb *strings.Builder) {
	switch t.Kind {
	case TypeVector:
		sb.WriteString("vector<")
		t.Elem.write(sb)
		sb.WriteByte('>')
	case TypeStruct:
		t.Struct.write(sb)
	default:
		sb.WriteString(t.Kind.String())
	}
}

func (st StructTag) String() string {
	var sb strings.Builder

	st.write(&sb)

	return sb.String()
}

func (st *StructTag) write(sb *strings.Builder) {
	sb.WriteString(st.Address.String())
	sb.WriteString("::")
	sb.WriteString(st.Module)
	sb.WriteString("::")
	sb.WriteString(st.Name)

	if len(st.TypeParams) == 0 {
		return
	}

	sb.WriteByte('<')

	for i, p := range st.TypeParams {
		if i > 0 {
			sb.WriteString(", ")
		}

		p.write(sb)
	}

	sb.WriteByte('>')
}

// Clone returns a deep copy
func (t TypeTag) Clone() TypeTag {
	out := TypeTag{Kind: t.Kind}

	if t.Elem != nil {
		elem := t.Elem.Clone()
		out.Elem = &elem
	}

	if t.Struct != nil {
		st := t.Struct.Clone()
		out.Struct = &st
	}

	return out
}

func (st StructTag) Clone() StructTag {
	out := StructTag{Address: st.Address, Module: st.Module, Name: st.Name}

	for _, p := range st.TypeParams {
		out.TypeParams = append(out.TypeParams, p.Clone())
	}

	return out
}

func (t TypeTag) Equal(o TypeTag) bool {
	return t.String() == o.String()
}

// Is reports whether st names addr::module::name, ignoring type parameters
func (st StructTag) Is(addr Address, module, name string) bool {
	return st.Address == addr && st.Module == module && st.Name == name
}

// ModuleID returns the module that declares the struct
func (st StructTag) ModuleID() ModuleID {
	return ModuleID{Address: st.Address, Name: st.Module}
}

// Addresses collects every package address mentioned by the tag
func (t TypeTag) Addresses() []Address {
	var out []Address

	var walk func(TypeTag)

	walk = func(tt TypeTag) {
		switch tt.Kind {
		case TypeVector:
			walk(*tt.Elem)
		case TypeStruct:
			out = append(out, tt.Struct.Address)
			for _, p := range tt.Struct.TypeParams {
				walk(p)
			}
		}
	}

	walk(t)

	return out
}

func (t TypeTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TypeTag) UnmarshalText(text []byte) error {
	parsed, err := ParseTypeTag(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}
