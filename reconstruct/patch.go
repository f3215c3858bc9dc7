package reconstruct

import (
	"encoding/binary"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/hashicorp/go-hclog"
)

const (
	DefaultMinVersionConst = 1
	DefaultMaxVersionConst = 100

	// comparisonWindow is how many instructions may separate a version
	// constant from the comparison consuming it
	comparisonWindow = 3
	maxLayoutDepth   = 4
)

type Action uint8

const (
	// Set writes Rule.Value
	Set Action = iota
	// SetToMax writes the highest version constant detected in the
	// object's package
	SetToMax
)

type Condition uint8

const (
	Always Condition = iota
	// IfLower rewrites only when the stored value is below the target
	IfLower
)

// Rule names a u64 field to rewrite
type Rule struct {
	Field     string
	Action    Action
	Value     uint64
	Condition Condition
}

func DefaultRules() []Rule {
	return []Rule{
		{Field: "package_version", Action: SetToMax, Condition: IfLower},
		{Field: "value", Action: SetToMax, Condition: IfLower},
	}
}

// Patcher rewrites version fields of historical objects so that current
// bytecode accepts them
type Patcher struct {
	logger   hclog.Logger
	min, max uint64
	rules    []Rule
	detected map[types.Address]uint64
}

func NewPatcher(logger hclog.Logger, rules []Rule) *Patcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if len(rules) == 0 {
		rules = DefaultRules()
	}

	return &Patcher{
		logger:   logger.Named("patcher"),
		min:      DefaultMinVersionConst,
		max:      DefaultMaxVersionConst,
		rules:    rules,
		detected: map[types.Address]uint64{},
	}
}

// SetRange changes the range of constants treated as versions
func (p *Patcher) SetRange(lo, hi uint64) {
	p.min, p.max = lo, hi
}

// Detected returns the version detected for a runtime id
func (p *Patcher) Detected(runtimeID types.Address) (uint64, bool) {
	v, ok := p.detected[runtimeID]

	return v, ok
}

// Scan records the highest version constant of pkg under its runtime id
func (p *Patcher) Scan(pkg *types.PackageData) {
	var best uint64

	for _, mb := range pkg.Modules {
		m, err := resolver.Compile(mb.Bytecode)
		if err != nil {
			continue
		}

		if v, ok := DetectVersion(m, p.min, p.max); ok && v > best {
			best = v
		}
	}

	if best == 0 {
		return
	}

	rt := pkg.RuntimeID()
	if best > p.detected[rt] {
		p.detected[rt] = best
		p.logger.Debug("version constant detected", "package", rt, "version", best)
	}
}

func (p *Patcher) versionConst(m *bytecode.CompiledModule, ins bytecode.Instruction) (uint64, bool) {
	var v uint64

	switch ins.Op {
	case bytecode.OpLdU64:
		v = ins.Arg
	case bytecode.OpLdConst:
		if int(ins.Arg) >= len(m.ConstantPool) {
			return 0, false
		}

		c := m.ConstantPool[ins.Arg]
		if c.Type.Kind != bytecode.TokU64 || len(c.Data) != 8 {
			return 0, false
		}

		v = binary.LittleEndian.Uint64(c.Data)
	default:
		return 0, false
	}

	return v, v >= p.min && v <= p.max
}

// DetectVersion returns the highest u64 constant within [lo, hi] that some
// function of m compares against
func DetectVersion(m *bytecode.CompiledModule, lo, hi uint64) (uint64, bool) {
	p := &Patcher{min: lo, max: hi}

	var (
		best  uint64
		found bool
	)

	for _, fn := range m.FunctionDefs {
		if fn.Code == nil {
			continue
		}

		code := fn.Code.Code

		for i, ins := range code {
			v, ok := p.versionConst(m, ins)
			if !ok {
				continue
			}

			for j := i + 1; j < len(code) && j <= i+comparisonWindow; j++ {
				if code[j].Op.IsComparison() {
					if !found || v > best {
						best, found = v, true
					}

					break
				}
			}
		}
	}

	return best, found
}

// fieldOffset finds the byte offset of a u64 field named name inside a
// value of type tag. Every field before it must have a fixed size.
func fieldOffset(machine *vm.VM, tag types.StructTag, name string, depth int) (int, bool, error) {
	if depth > maxLayoutDepth {
		return 0, false, nil
	}

	fields, err := machine.StructFields(tag)
	if err != nil {
		return 0, false, err
	}

	offset := 0

	for _, f := range fields {
		if f.Name == name && f.Type.Kind == types.TypeU64 {
			return offset, true, nil
		}

		if f.Type.Kind == types.TypeStruct && f.Type.Struct != nil {
			inner, ok, err := fieldOffset(machine, *f.Type.Struct, name, depth+1)
			if err != nil {
				return 0, false, err
			}

			if ok {
				return offset + inner, true, nil
			}
		}

		size, ok, err := fixedSize(machine, f.Type, depth)
		if err != nil || !ok {
			return 0, false, err
		}

		offset += size
	}

	return 0, false, nil
}

func fixedSize(machine *vm.VM, t types.TypeTag, depth int) (int, bool, error) {
	switch t.Kind {
	case types.TypeBool, types.TypeU8:
		return 1, true, nil
	case types.TypeU16:
		return 2, true, nil
	case types.TypeU32:
		return 4, true, nil
	case types.TypeU64:
		return 8, true, nil
	case types.TypeU128:
		return 16, true, nil
	case types.TypeU256, types.TypeAddress, types.TypeSigner:
		return 32, true, nil
	case types.TypeStruct:
		if depth > maxLayoutDepth || t.Struct == nil {
			return 0, false, nil
		}

		fields, err := machine.StructFields(*t.Struct)
		if err != nil {
			return 0, false, err
		}

		total := 0

		for _, f := range fields {
			size, ok, err := fixedSize(machine, f.Type, depth+1)
			if err != nil || !ok {
				return 0, false, err
			}

			total += size
		}

		return total, true, nil
	default:
		return 0, false, nil
	}
}

// Patch applies the first matching rule to obj. It returns obj unchanged
// and false when no version was detected for the object's package or no
// rule names a field at a stable offset.
func (p *Patcher) Patch(obj *types.VersionedObject, loader vm.Loader) (*types.VersionedObject, bool, error) {
	if obj.Type.Kind != types.TypeStruct || obj.Type.Struct == nil {
		return obj, false, nil
	}

	tag := *obj.Type.Struct

	detected, ok := p.detected[tag.Address]
	if !ok {
		return obj, false, nil
	}

	machine := vm.New(loader, nil, nil)

	for _, rule := range p.rules {
		offset, found, err := fieldOffset(machine, tag, rule.Field, 0)
		if err != nil {
			return obj, false, fmt.Errorf("layout of %s: %w", tag, err)
		}

		if !found || offset+8 > len(obj.BCS) {
			continue
		}

		target := rule.Value
		if rule.Action == SetToMax {
			target = detected
		}

		current := binary.LittleEndian.Uint64(obj.BCS[offset : offset+8])
		if current == target || (rule.Condition == IfLower && current > target) {
			return obj, false, nil
		}

		contents := types.CopyBytes(obj.BCS)
		binary.LittleEndian.PutUint64(contents[offset:offset+8], target)

		patched := types.NewVersionedObject(obj.ID, obj.Version, obj.Type, contents, obj.EffectiveOwner())

		p.logger.Info("object version field patched",
			"object", obj.ID, "field", rule.Field, "from", current, "to", target)

		return patched, true, nil
	}

	return obj, false, nil
}
