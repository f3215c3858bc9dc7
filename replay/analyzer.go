package replay

import (
	"fmt"
	"sort"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/hashicorp/go-hclog"
)

const (
	DefaultAnalysisDepth = 8

	dynamicFieldModule = "dynamic_field"
)

// childAccessors are the dynamic field functions that load a child
var childAccessors = map[string]bool{
	"borrow":     true,
	"borrow_mut": true,
	"remove":     true,
}

// CallSite is a dynamic field access found in bytecode. KeyType is nil
// when the key type depends on an uninstantiated type parameter; Key is
// nil when the key is not a constant.
type CallSite struct {
	Function string         `json:"function"`
	Offset   int            `json:"offset"`
	Accessor string         `json:"accessor"`
	KeyType  *types.TypeTag `json:"key_type,omitempty"`
	Key      []byte         `json:"key,omitempty"`
}

// Deducible reports whether the child id can be derived from a parent
func (s CallSite) Deducible() bool {
	return s.KeyType != nil && s.Key != nil
}

// Analysis lists the sinks reachable from one entry function: the
// functions whose callees transitively touch dynamic fields, and every
// access site below them
type Analysis struct {
	Sinks []string
	Sites []CallSite
}

// Touches reports whether the entry function reaches a dynamic field
func (a *Analysis) Touches() bool {
	return len(a.Sites) > 0
}

// Analyzer walks the call graph of transaction entry points
type Analyzer struct {
	logger   hclog.Logger
	resolver *resolver.Resolver
	maxDepth int
}

func NewAnalyzer(logger hclog.Logger, res *resolver.Resolver, maxDepth int) *Analyzer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if maxDepth <= 0 {
		maxDepth = DefaultAnalysisDepth
	}

	return &Analyzer{
		logger:   logger.Named("analyzer"),
		resolver: res,
		maxDepth: maxDepth,
	}
}

// walk is the state of one analysis
type walk struct {
	*Analyzer

	loader  vm.Loader
	machine *vm.VM

	// sinks memoizes visited functions; in-progress entries are false
	sinks map[string]bool
	sites []CallSite
}

// Analyze finds the dynamic field accesses reachable from
// pkg::module::function instantiated with tyArgs
func (a *Analyzer) Analyze(pkg types.Address, module, function string, tyArgs []types.TypeTag) (*Analysis, error) {
	target, err := a.resolver.ResolveCall(pkg, module, function)
	if err != nil {
		return nil, err
	}

	m, err := target.View.LoadModule(target.Module)
	if err != nil {
		return nil, err
	}

	w := &walk{
		Analyzer: a,
		loader:   target.View,
		machine:  vm.New(target.View, nil, nil),
		sinks:    map[string]bool{},
	}

	w.visit(m, target.Function, tyArgs, 0)

	res := &Analysis{Sites: w.sites}

	for name, sink := range w.sinks {
		if sink {
			res.Sinks = append(res.Sinks, name)
		}
	}

	sort.Strings(res.Sinks)

	return res, nil
}

func functionKey(m *bytecode.CompiledModule, def *bytecode.FunctionDef, tyArgs []types.TypeTag) string {
	key := fmt.Sprintf("%s::%s", m.Self(), m.FunctionName(def.Handle))

	if len(tyArgs) > 0 {
		key += "<"

		for i, t := range tyArgs {
			if i > 0 {
				key += ", "
			}

			key += t.String()
		}

		key += ">"
	}

	return key
}

// visit reports whether def is a sink
//
//nolint:gocyclo
func (w *walk) visit(m *bytecode.CompiledModule, def *bytecode.FunctionDef, tyArgs []types.TypeTag, depth int) bool {
	key := functionKey(m, def, tyArgs)
	if sink, ok := w.sinks[key]; ok {
		return sink
	}

	w.sinks[key] = false

	if def.Code == nil || depth > w.maxDepth {
		return false
	}

	sink := false
	code := def.Code.Code

	for i, ins := range code {
		var (
			handle   uint16
			callArgs []types.TypeTag
		)

		switch ins.Op {
		case bytecode.OpCall:
			handle = uint16(ins.Arg)
		case bytecode.OpCallGeneric:
			if int(ins.Arg) >= len(m.FunctionInsts) {
				continue
			}

			inst := m.FunctionInsts[ins.Arg]
			handle = inst.Handle
			callArgs = w.instantiate(m, inst.TypeParameters, tyArgs)
		default:
			continue
		}

		if int(handle) >= len(m.FunctionHandles) {
			continue
		}

		callee := m.FunctionModule(handle)
		name := m.FunctionName(handle)

		if callee.Address == types.FrameworkAddress && callee.Name == dynamicFieldModule {
			if childAccessors[name] {
				w.sites = append(w.sites, w.site(m, code, i, key, name, callArgs))
				sink = true
			}

			continue
		}

		// the rest of the framework never loads children
		if callee.Address.IsFramework() {
			continue
		}

		cm, err := w.loader.LoadModule(callee)
		if err != nil {
			w.logger.Debug("callee module not loaded", "module", callee, "err", err)

			continue
		}

		cdef, err := cm.FindFunction(name)
		if err != nil {
			continue
		}

		if w.visit(cm, cdef, callArgs, depth+1) {
			sink = true
		}
	}

	w.sinks[key] = sink

	return sink
}

// instantiate resolves the type arguments of a generic call. It returns
// nil when one of them depends on a parameter the walk does not know.
func (w *walk) instantiate(m *bytecode.CompiledModule, sig uint16, tyArgs []types.TypeTag) []types.TypeTag {
	if int(sig) >= len(m.Signatures) {
		return nil
	}

	out := make([]types.TypeTag, 0, len(m.Signatures[sig]))

	for _, tok := range m.Signatures[sig] {
		t, err := w.machine.TokenType(m, tok, tyArgs)
		if err != nil {
			return nil
		}

		out = append(out, t)
	}

	return out
}

func (w *walk) site(
	m *bytecode.CompiledModule,
	code []bytecode.Instruction,
	offset int,
	caller, accessor string,
	callArgs []types.TypeTag,
) CallSite {
	site := CallSite{Function: caller, Offset: offset, Accessor: accessor}

	if len(callArgs) == 0 {
		return site
	}

	keyType := callArgs[0]
	site.KeyType = &keyType

	// the key is the last argument pushed before the call
	if offset > 0 {
		site.Key = constantKey(m, code[offset-1], keyType)
	}

	return site
}

// constantKey returns the BCS bytes of a constant load matching keyType
func constantKey(m *bytecode.CompiledModule, ins bytecode.Instruction, keyType types.TypeTag) []byte {
	e := bcs.NewEncoder()

	switch {
	case ins.Op == bytecode.OpLdU8 && keyType.Kind == types.TypeU8:
		e.WriteU8(uint8(ins.Arg))
	case ins.Op == bytecode.OpLdU16 && keyType.Kind == types.TypeU16:
		e.WriteU16(uint16(ins.Arg))
	case ins.Op == bytecode.OpLdU32 && keyType.Kind == types.TypeU32:
		e.WriteU32(uint32(ins.Arg))
	case ins.Op == bytecode.OpLdU64 && keyType.Kind == types.TypeU64:
		e.WriteU64(ins.Arg)
	case (ins.Op == bytecode.OpLdTrue || ins.Op == bytecode.OpLdFalse) && keyType.Kind == types.TypeBool:
		e.WriteBool(ins.Op == bytecode.OpLdTrue)
	case ins.Op == bytecode.OpLdConst:
		if int(ins.Arg) >= len(m.ConstantPool) {
			return nil
		}

		// constants are stored BCS encoded
		return types.CopyBytes(m.ConstantPool[ins.Arg].Data)
	default:
		return nil
	}

	return e.Bytes()
}

// ChildHint is a child predicted from a parent and a constant key
type ChildHint struct {
	Parent  types.ObjectID
	Child   types.ObjectID
	KeyType types.TypeTag
	Key     []byte
}

// Prediction is the outcome of analyzing a transaction. Children are
// derived ids; Parents need full enumeration because some reachable key
// is not a constant.
type Prediction struct {
	Children []ChildHint
	Parents  []types.ObjectID
	Sinks    []string
}

// Empty reports whether nothing needs prefetching
func (p *Prediction) Empty() bool {
	return len(p.Children) == 0 && len(p.Parents) == 0
}

// Predict analyzes every MoveCall of tx. Candidate parents of a call are
// its object inputs and the loaded objects they own.
func (a *Analyzer) Predict(
	tx *types.ProgrammableTransaction,
	objects map[types.ObjectID]*types.VersionedObject,
) *Prediction {
	pred := &Prediction{}
	seenChild := map[types.ObjectID]struct{}{}
	seenParent := map[types.ObjectID]struct{}{}
	seenSink := map[string]struct{}{}

	for i, cmd := range tx.Commands {
		call := cmd.MoveCall
		if call == nil {
			continue
		}

		analysis, err := a.Analyze(call.Package, call.Module, call.Function, call.TypeArguments)
		if err != nil {
			a.logger.Debug("call not analyzed", "command", i, "err", err)

			continue
		}

		if !analysis.Touches() {
			continue
		}

		for _, s := range analysis.Sinks {
			if _, ok := seenSink[s]; !ok {
				seenSink[s] = struct{}{}
				pred.Sinks = append(pred.Sinks, s)
			}
		}

		parents := candidateParents(tx, call, objects)

		for _, site := range analysis.Sites {
			for _, parent := range parents {
				if !site.Deducible() {
					if _, ok := seenParent[parent]; !ok {
						seenParent[parent] = struct{}{}
						pred.Parents = append(pred.Parents, parent)
					}

					continue
				}

				child := types.DynamicFieldID(parent, *site.KeyType, site.Key)
				if _, ok := seenChild[child]; ok {
					continue
				}

				seenChild[child] = struct{}{}
				pred.Children = append(pred.Children, ChildHint{
					Parent:  parent,
					Child:   child,
					KeyType: *site.KeyType,
					Key:     site.Key,
				})
			}
		}
	}

	return pred
}

func candidateParents(
	tx *types.ProgrammableTransaction,
	call *types.MoveCall,
	objects map[types.ObjectID]*types.VersionedObject,
) []types.ObjectID {
	seen := map[types.ObjectID]struct{}{}

	var out []types.ObjectID

	add := func(id types.ObjectID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	for _, arg := range call.Arguments {
		if arg.Kind != types.ArgInput || int(arg.Index) >= len(tx.Inputs) {
			continue
		}

		if in := tx.Inputs[arg.Index]; in.IsObject() {
			add(in.ID)
		}
	}

	direct := len(out)

	for _, obj := range sortedObjects(objects) {
		owner := obj.EffectiveOwner()
		if owner.Kind != types.OwnerObject {
			continue
		}

		for _, parent := range out[:direct] {
			if owner.Address == parent {
				add(obj.ID)

				break
			}
		}
	}

	return out
}

func sortedObjects(m map[types.ObjectID]*types.VersionedObject) []*types.VersionedObject {
	out := make([]*types.VersionedObject, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })

	return out
}
