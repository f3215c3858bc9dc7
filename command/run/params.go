package run

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

const (
	argsFlag     = "args"
	typeArgsFlag = "type-args"
)

var errInvalidTarget = errors.New("target must be <package>::<module>::<function>")

var (
	params = &runParams{}
)

type runParams struct {
	args        []string
	typeArgsRaw []string

	target   *types.MoveCall
	typeArgs []types.TypeTag
}

func (p *runParams) validateFlags(target string) error {
	call, err := parseTarget(target)
	if err != nil {
		return err
	}

	p.target = call
	p.typeArgs = p.typeArgs[:0]

	for _, raw := range p.typeArgsRaw {
		tag, err := types.ParseTypeTag(raw)
		if err != nil {
			return fmt.Errorf("type argument %q: %w", raw, err)
		}

		p.typeArgs = append(p.typeArgs, tag)
	}

	return nil
}

func parseTarget(s string) (*types.MoveCall, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidTarget, s)
	}

	pkg, err := types.ParseAddress(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidTarget, err)
	}

	return &types.MoveCall{Package: pkg, Module: parts[1], Function: parts[2]}, nil
}

// ObjectLookup finds live objects of the session
type ObjectLookup func(id types.ObjectID) (*types.VersionedObject, bool)

var intSuffixes = []struct {
	suffix string
	bits   int
}{
	{"u8", 8},
	{"u16", 16},
	{"u32", 32},
	{"u64", 64},
}

// parseInt reads a decimal with an optional u8/u16/u32/u64 suffix. The
// default width is u64.
func parseInt(raw string) ([]byte, bool) {
	digits, bits := raw, 64

	for _, s := range intSuffixes {
		if strings.HasSuffix(raw, s.suffix) {
			digits, bits = strings.TrimSuffix(raw, s.suffix), s.bits

			break
		}
	}

	v, err := strconv.ParseUint(digits, 10, bits)
	if err != nil {
		return nil, false
	}

	e := bcs.NewEncoder()

	switch bits {
	case 8:
		e.WriteU8(uint8(v))
	case 16:
		e.WriteU16(uint16(v))
	case 32:
		e.WriteU32(uint32(v))
	default:
		e.WriteU64(v)
	}

	return e.Bytes(), true
}

// ParseCallArg turns a command line argument into a transaction input.
// Ids of live objects become object inputs; @0x... forces an address.
// Anything that is not a number, bool or address is a string.
func ParseCallArg(raw string, lookup ObjectLookup) (types.TransactionInput, error) {
	switch {
	case raw == "true" || raw == "false":
		e := bcs.NewEncoder()
		e.WriteBool(raw == "true")

		return types.PureInput(e.Bytes()), nil
	case strings.HasPrefix(raw, "@"):
		addr, err := types.ParseAddress(raw[1:])
		if err != nil {
			return types.TransactionInput{}, err
		}

		return types.PureAddress(addr), nil
	case strings.HasPrefix(raw, "0x"):
		addr, err := types.ParseAddress(raw)
		if err != nil {
			return types.TransactionInput{}, err
		}

		obj, ok := lookup(addr)
		if !ok {
			return types.PureAddress(addr), nil
		}

		if owner := obj.EffectiveOwner(); owner.Kind == types.OwnerShared {
			return types.SharedInput(obj.ID, owner.InitialSharedVersion, true), nil
		}

		return types.ObjectInput(obj.Ref()), nil
	}

	if b, ok := parseInt(raw); ok {
		return types.PureInput(b), nil
	}

	e := bcs.NewEncoder()
	e.WriteString(raw)

	return types.PureInput(e.Bytes()), nil
}
