package ptb

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

var ErrIncompatibleUpgrade = errors.New("incompatible upgrade")

// preparePackage rewrites the self address of each module to addr and
// returns the package with its linkage
func (r *run) preparePackage(
	modules [][]byte,
	deps []types.Address,
	self, addr types.Address,
) (*types.PackageData, []*bytecode.CompiledModule, error) {
	if len(modules) == 0 {
		return nil, nil, vm.NewError(vm.KindTypeError, "package has no modules")
	}

	pkg := &types.PackageData{Address: addr, Version: 1}
	compiled := make([]*bytecode.CompiledModule, 0, len(modules))

	for _, raw := range modules {
		m, err := bytecode.Deserialize(raw)
		if err != nil {
			return nil, nil, &vm.ExecutionError{Kind: vm.KindTypeError, Message: "module does not deserialize", Err: err}
		}

		m.SubstituteAddress(types.ZeroAddress, self)

		if m.Self().Address != self {
			return nil, nil, vm.NewError(vm.KindTypeError, "module %s is not at the package address", m.Self())
		}

		b, err := bytecode.Serialize(m)
		if err != nil {
			return nil, nil, err
		}

		pkg.Modules = append(pkg.Modules, types.ModuleBytes{Name: m.Self().Name, Bytecode: b})
		compiled = append(compiled, m)
	}

	for _, dep := range deps {
		if dep.IsFramework() {
			continue
		}

		p, ok := r.resolver.Package(dep)
		if !ok {
			return nil, nil, &resolver.ResolutionError{
				Kind:   resolver.ModuleNotFound,
				Module: types.ModuleID{Address: dep},
				Err:    resolver.ErrPackageNotFound,
			}
		}

		pkg.Linkage = append(pkg.Linkage, types.LinkageEntry{
			OriginalID:      p.RuntimeID(),
			UpgradedID:      p.Address,
			UpgradedVersion: p.Version,
		})
	}

	pkg.Normalize()

	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].Self().Name < compiled[j].Self().Name
	})

	return pkg, compiled, nil
}

// publish stores a new package, runs its module initializers and returns
// its UpgradeCap
func (r *run) publish(c *types.Publish) ([]*argSlot, error) {
	id, err := framework.NextObjectID(r.txCtx)
	if err != nil {
		return nil, err
	}

	pkg, compiled, err := r.preparePackage(c.Modules, c.Dependencies, id, id)
	if err != nil {
		return nil, err
	}

	if err := r.resolver.AddPackage(pkg); err != nil {
		return nil, err
	}

	r.packages = append(r.packages, pkg)

	view, err := r.resolver.View(id)
	if err != nil {
		return nil, err
	}

	for _, m := range compiled {
		if err := r.runInit(view, m); err != nil {
			return nil, err
		}
	}

	capID, err := framework.NextObjectID(r.txCtx)
	if err != nil {
		return nil, err
	}

	r.CreateObject(capID)

	r.logger.Debug("package published", "package", id, "modules", len(pkg.Modules))

	upgradeCap := framework.UpgradeCapValue(capID, id, 1, framework.PolicyCompatible)

	return []*argSlot{resultSlot(upgradeCap, types.StructTypeTag(framework.UpgradeCapTag))}, nil
}

// runInit calls the private init function of a freshly published module,
// passing its one-time witness when the function takes one
func (r *run) runInit(view *resolver.View, m *bytecode.CompiledModule) error {
	def, err := m.FindFunction("init")
	if err != nil || def.Visibility != bytecode.VisibilityPrivate {
		return nil
	}

	self := m.Self()

	_, _, err = r.call(view, self, "init", nil, func(params []vm.ParamType) ([]vm.Value, error) {
		switch len(params) {
		case 0:
			return nil, nil
		case 1:
			witness := types.StructTag{Address: self.Address, Module: self.Name, Name: strings.ToUpper(self.Name)}
			if params[0].Ref != vm.NotRef || params[0].Type.Kind != types.TypeStruct ||
				params[0].Type.Struct.String() != witness.String() {
				return nil, vm.NewError(vm.KindTypeError, "%s::init takes %s, not a one-time witness", self, params[0])
			}

			return []vm.Value{vm.StructValue(witness, vm.Bool(true))}, nil
		default:
			return nil, vm.NewError(vm.KindArityMismatch, "%s::init takes %d arguments", self, len(params))
		}
	})

	return err
}

// upgrade stores a new version of a package authorized by an
// UpgradeTicket and returns the UpgradeReceipt
func (r *run) upgrade(c *types.Upgrade) ([]*argSlot, error) {
	s, err := r.typed(c.Ticket)
	if err != nil {
		return nil, err
	}

	ticket, err := r.take(s, false)
	if err != nil {
		return nil, err
	}

	capID, ticketPkg, policy, _, err := framework.ParseUpgradeTicket(ticket)
	if err != nil {
		return nil, &vm.ExecutionError{Kind: vm.KindTypeError, Err: err}
	}

	if ticketPkg != c.Package {
		return nil, vm.NewError(vm.KindTypeError, "ticket authorizes %s, not %s", ticketPkg, c.Package)
	}

	current, ok := r.resolver.Package(c.Package)
	if !ok {
		return nil, &resolver.ResolutionError{
			Kind:   resolver.ModuleNotFound,
			Module: types.ModuleID{Address: c.Package},
			Err:    resolver.ErrPackageNotFound,
		}
	}

	id, err := framework.NextObjectID(r.txCtx)
	if err != nil {
		return nil, err
	}

	origin := current.RuntimeID()

	pkg, compiled, err := r.preparePackage(c.Modules, c.Dependencies, origin, id)
	if err != nil {
		return nil, err
	}

	pkg.Version = current.Version + 1
	pkg.OriginalID = &origin

	previous := map[string]*bytecode.CompiledModule{}

	for _, name := range current.ModuleNames() {
		m, err := r.resolver.Compiled(types.NewModuleID(current.Address, name))
		if err != nil {
			return nil, err
		}

		previous[name] = m
	}

	if err := checkUpgrade(policy, previous, compiled); err != nil {
		return nil, &vm.ExecutionError{Kind: vm.KindTypeError, Err: err}
	}

	if err := r.resolver.AddPackage(pkg); err != nil {
		return nil, err
	}

	r.packages = append(r.packages, pkg)

	r.logger.Debug("package upgraded", "package", id, "original", origin, "version", pkg.Version)

	receipt := framework.UpgradeReceiptValue(capID, id)

	return []*argSlot{resultSlot(receipt, types.StructTypeTag(framework.UpgradeReceiptTag))}, nil
}

// checkUpgrade enforces an upgrade policy. Every policy keeps existing
// modules, structs and public function signatures; additive upgrades also
// keep existing function bodies and dependency-only upgrades change no
// code at all.
func checkUpgrade(policy uint8, previous map[string]*bytecode.CompiledModule, next []*bytecode.CompiledModule) error {
	byName := map[string]*bytecode.CompiledModule{}
	for _, m := range next {
		byName[m.Self().Name] = m
	}

	for name, old := range previous {
		m, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: module %s removed", ErrIncompatibleUpgrade, name)
		}

		if err := compatibleModule(policy, old, m); err != nil {
			return fmt.Errorf("%w: module %s: %s", ErrIncompatibleUpgrade, name, err.Error())
		}
	}

	if policy >= framework.PolicyDepOnly && len(next) != len(previous) {
		return fmt.Errorf("%w: dependency-only upgrade adds modules", ErrIncompatibleUpgrade)
	}

	return nil
}

func compatibleModule(policy uint8, old, next *bytecode.CompiledModule) error {
	for i := range old.StructDefs {
		def := &old.StructDefs[i]
		name := old.StructName(def.Handle)

		idx, err := next.FindStruct(name)
		if err != nil {
			return fmt.Errorf("struct %s removed", name)
		}

		nd := &next.StructDefs[idx]

		if old.StructHandles[def.Handle].Abilities != next.StructHandles[nd.Handle].Abilities {
			return fmt.Errorf("struct %s changed abilities", name)
		}

		if structLayout(old, def) != structLayout(next, nd) {
			return fmt.Errorf("struct %s changed layout", name)
		}
	}

	for i := range old.FunctionDefs {
		def := &old.FunctionDefs[i]
		name := old.FunctionName(def.Handle)

		nd, err := next.FindFunction(name)
		if err != nil {
			if def.Visibility == bytecode.VisibilityPublic || policy >= framework.PolicyAdditive {
				return fmt.Errorf("function %s removed", name)
			}

			continue
		}

		if def.Visibility == bytecode.VisibilityPublic {
			if nd.Visibility != bytecode.VisibilityPublic {
				return fmt.Errorf("function %s is no longer public", name)
			}

			if signature(old, def.Handle) != signature(next, nd.Handle) {
				return fmt.Errorf("function %s changed signature", name)
			}
		}

		if policy >= framework.PolicyAdditive && !sameCode(def, nd) {
			return fmt.Errorf("function %s changed code", name)
		}
	}

	if policy >= framework.PolicyDepOnly &&
		(len(old.FunctionDefs) != len(next.FunctionDefs) || len(old.StructDefs) != len(next.StructDefs)) {
		return errors.New("definitions added")
	}

	return nil
}

func sameCode(a, b *bytecode.FunctionDef) bool {
	if a.IsNative() || b.IsNative() {
		return a.IsNative() == b.IsNative()
	}

	if len(a.Code.Code) != len(b.Code.Code) {
		return false
	}

	for i := range a.Code.Code {
		if a.Code.Code[i].Op != b.Code.Code[i].Op {
			return false
		}
	}

	return true
}

func structLayout(m *bytecode.CompiledModule, def *bytecode.StructDef) string {
	var sb strings.Builder

	for _, f := range def.Fields {
		sb.WriteString(m.Identifier(f.Name))
		sb.WriteByte(':')
		sb.WriteString(tokenString(m, f.Type))
		sb.WriteByte(';')
	}

	return sb.String()
}

func signature(m *bytecode.CompiledModule, handle uint16) string {
	params, returns := m.FunctionSignature(handle)
	h := m.FunctionHandles[handle]

	parts := make([]string, 0, len(params)+len(returns)+1)
	parts = append(parts, fmt.Sprint(h.TypeParameters))

	for _, p := range params {
		parts = append(parts, tokenString(m, p))
	}

	parts = append(parts, "->")

	for _, ret := range returns {
		parts = append(parts, tokenString(m, ret))
	}

	return strings.Join(parts, ",")
}

// tokenString renders a signature token independently of handle indices
func tokenString(m *bytecode.CompiledModule, tok bytecode.SignatureToken) string {
	switch tok.Kind {
	case bytecode.TokVector, bytecode.TokReference, bytecode.TokMutRef:
		return fmt.Sprintf("%d<%s>", tok.Kind, tokenString(m, *tok.Elem))
	case bytecode.TokStruct, bytecode.TokStructInst:
		h := m.StructHandles[tok.Handle]
		name := m.ModuleIDAt(h.Module).String() + "::" + m.Identifier(h.Name)

		if len(tok.TypeArgs) == 0 {
			return name
		}

		args := make([]string, 0, len(tok.TypeArgs))
		for _, a := range tok.TypeArgs {
			args = append(args, tokenString(m, a))
		}

		return name + "<" + strings.Join(args, ",") + ">"
	case bytecode.TokTypeParam:
		return fmt.Sprintf("T%d", tok.Index)
	default:
		return fmt.Sprint(tok.Kind)
	}
}
