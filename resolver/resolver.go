// Package resolver holds module bytecode by storage id and serves the
// VM's module lookups through package linkage tables.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrEmptyPackage    = errors.New("package has no modules")
)

const compiledCacheSize = 2048

// compiled caches deserialized modules by the hash of their bytes. Modules
// in the cache are shared and must not be modified.
var (
	compiledOnce  sync.Once
	compiledCache *lru.Cache
)

func compiledModules() *lru.Cache {
	compiledOnce.Do(func() {
		c, err := lru.New(compiledCacheSize)
		if err != nil {
			panic(err)
		}

		compiledCache = c
	})

	return compiledCache
}

// Compile deserializes module bytecode through the shared cache
func Compile(code []byte) (*bytecode.CompiledModule, error) {
	key := types.Blake2b256(code)

	if cached, ok := compiledModules().Get(key); ok {
		if m, ok := cached.(*bytecode.CompiledModule); ok {
			return m, nil
		}
	}

	m, err := bytecode.Deserialize(code)
	if err != nil {
		return nil, err
	}

	compiledModules().Add(key, m)

	return m, nil
}

// Resolver maps storage module ids to bytecode
type Resolver struct {
	logger hclog.Logger

	modules   map[types.ModuleID][]byte
	byAddress map[types.Address][]types.ModuleID
	packages  map[types.Address]*types.PackageData

	// latest storage id known for each runtime id
	runtime map[types.Address]types.Address
}

func New(logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Resolver{
		logger:    logger.Named("resolver"),
		modules:   make(map[types.ModuleID][]byte),
		byAddress: make(map[types.Address][]types.ModuleID),
		packages:  make(map[types.Address]*types.PackageData),
		runtime:   make(map[types.Address]types.Address),
	}
}

// WithFramework loads the bundled 0x1 and 0x2 packages
func (r *Resolver) WithFramework() (*Resolver, error) {
	pkgs, err := framework.Packages()
	if err != nil {
		return nil, err
	}

	for _, pkg := range pkgs {
		if err := r.AddPackage(pkg); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// AddPackage registers every module of pkg under its storage id. Each
// module must deserialize.
func (r *Resolver) AddPackage(pkg *types.PackageData) error {
	if len(pkg.Modules) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPackage, pkg.Address)
	}

	for _, m := range pkg.Modules {
		if _, err := Compile(m.Bytecode); err != nil {
			ce := types.NewContextError(err)
			ce.Module = types.NewModuleID(pkg.Address, m.Name).String()

			return ce
		}
	}

	cp := pkg.Clone()
	cp.Normalize()

	r.removeModules(cp.Address)
	r.packages[cp.Address] = cp

	for _, m := range cp.Modules {
		r.addModule(types.NewModuleID(cp.Address, m.Name), m.Bytecode)
	}

	rt := cp.RuntimeID()
	if current, ok := r.runtime[rt]; !ok || r.packages[current] == nil || r.packages[current].Version <= cp.Version {
		r.runtime[rt] = cp.Address
	}

	r.logger.Debug("package added", "storage", cp.Address, "runtime", rt, "version", cp.Version, "modules", len(cp.Modules))

	return nil
}

// AddModules registers loose modules under a storage id
func (r *Resolver) AddModules(storageID types.Address, modules []types.ModuleBytes) error {
	pkg := &types.PackageData{Address: storageID, Version: 1, Modules: modules}
	if existing, ok := r.packages[storageID]; ok {
		pkg = existing.Clone()
		pkg.Modules = append(pkg.Modules, modules...)
	}

	return r.AddPackage(pkg)
}

func (r *Resolver) addModule(id types.ModuleID, code []byte) {
	if _, ok := r.modules[id]; !ok {
		r.byAddress[id.Address] = append(r.byAddress[id.Address], id)
	}

	r.modules[id] = code
}

func (r *Resolver) removeModules(addr types.Address) {
	for _, id := range r.byAddress[addr] {
		delete(r.modules, id)
	}

	delete(r.byAddress, addr)
}

// RemovePackage unregisters a package, pointing its runtime id back at the
// newest remaining version
func (r *Resolver) RemovePackage(storageID types.Address) {
	pkg, ok := r.packages[storageID]
	if !ok {
		return
	}

	r.removeModules(storageID)
	delete(r.packages, storageID)

	rt := pkg.RuntimeID()
	if r.runtime[rt] != storageID {
		return
	}

	delete(r.runtime, rt)

	for addr, p := range r.packages {
		if p.RuntimeID() != rt {
			continue
		}

		if current, ok := r.runtime[rt]; !ok || r.packages[current].Version < p.Version {
			r.runtime[rt] = addr
		}
	}

	r.logger.Debug("package removed", "storage", storageID, "runtime", rt)
}

func (r *Resolver) GetModule(id types.ModuleID) ([]byte, bool) {
	code, ok := r.modules[id]

	return code, ok
}

func (r *Resolver) HasModule(id types.ModuleID) bool {
	_, ok := r.modules[id]

	return ok
}

// Modules lists every registered module id in order
func (r *Resolver) Modules() []types.ModuleID {
	out := make([]types.ModuleID, 0, len(r.modules))
	for id := range r.modules {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})

	return out
}

// ModulesAt lists the modules stored at one address
func (r *Resolver) ModulesAt(addr types.Address) []types.ModuleID {
	return append([]types.ModuleID(nil), r.byAddress[addr]...)
}

func (r *Resolver) Package(storageID types.Address) (*types.PackageData, bool) {
	pkg, ok := r.packages[storageID]

	return pkg, ok
}

func (r *Resolver) HasPackage(storageID types.Address) bool {
	_, ok := r.packages[storageID]

	return ok
}

// Packages returns every registered package ordered by storage id
func (r *Resolver) Packages() []*types.PackageData {
	out := make([]*types.PackageData, 0, len(r.packages))
	for _, pkg := range r.packages {
		out = append(out, pkg)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Less(out[j].Address)
	})

	return out
}

// StorageID returns the newest storage id registered for a runtime id
func (r *Resolver) StorageID(runtimeID types.Address) (types.Address, bool) {
	addr, ok := r.runtime[runtimeID]

	return addr, ok
}

// Compiled returns the deserialized module stored at a storage module id
func (r *Resolver) Compiled(id types.ModuleID) (*bytecode.CompiledModule, error) {
	code, ok := r.modules[id]
	if !ok {
		return nil, &ResolutionError{Kind: ModuleNotFound, Module: id}
	}

	return Compile(code)
}

// View links module lookups through the linkage of root. A zero root
// links every runtime id to its newest storage id.
func (r *Resolver) View(root types.Address) (*View, error) {
	v := &View{r: r}

	if root.IsZero() {
		return v, nil
	}

	pkg, ok := r.packages[root]
	if !ok {
		return nil, &ResolutionError{
			Kind:   ModuleNotFound,
			Module: types.ModuleID{Address: root},
			Err:    ErrPackageNotFound,
		}
	}

	v.root = pkg

	return v, nil
}

// Target is a resolved call target
type Target struct {
	View     *View
	Module   types.ModuleID
	Function *bytecode.FunctionDef
}

// ResolveCall links pkg::module::function for a transaction call. Only
// public and entry functions are callable.
func (r *Resolver) ResolveCall(pkg types.Address, module, function string) (*Target, error) {
	view, err := r.View(pkg)
	if err != nil {
		return nil, err
	}

	storageID := types.NewModuleID(pkg, module)

	m, err := r.Compiled(storageID)
	if err != nil {
		return nil, err
	}

	def, err := m.FindFunction(function)
	if err != nil {
		return nil, &ResolutionError{Kind: FunctionNotFound, Module: storageID, Function: function, Err: err}
	}

	if def.Visibility != bytecode.VisibilityPublic && !def.IsEntry {
		return nil, &ResolutionError{Kind: NotCallable, Module: storageID, Function: function}
	}

	return &Target{View: view, Module: m.Self(), Function: def}, nil
}

func (r *Resolver) storageFor(root *types.PackageData, runtimeID types.Address) types.Address {
	if runtimeID.IsFramework() {
		return runtimeID
	}

	if root != nil {
		if addr, ok := root.StorageID(runtimeID); ok {
			return addr
		}
	}

	if addr, ok := r.runtime[runtimeID]; ok {
		return addr
	}

	return runtimeID
}

// MissingDependencies lists the runtime module ids referenced by
// registered modules, directly or transitively, that are not loaded
func (r *Resolver) MissingDependencies() []types.ModuleID {
	missing := map[types.ModuleID]struct{}{}

	for _, pkg := range r.packages {
		for _, mb := range pkg.Modules {
			m, err := Compile(mb.Bytecode)
			if err != nil {
				continue
			}

			for _, dep := range m.Dependencies() {
				storage := types.NewModuleID(r.storageFor(pkg, dep.Address), dep.Name)
				if !r.HasModule(storage) {
					missing[dep] = struct{}{}
				}
			}
		}
	}

	out := make([]types.ModuleID, 0, len(missing))
	for id := range missing {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Less(out[j])
	})

	return out
}

// MissingPackages lists the runtime addresses with missing modules
func (r *Resolver) MissingPackages() []types.Address {
	seen := map[types.Address]struct{}{}

	var out []types.Address

	for _, id := range r.MissingDependencies() {
		if _, ok := seen[id.Address]; !ok {
			seen[id.Address] = struct{}{}
			out = append(out, id.Address)
		}
	}

	return out
}

// View resolves runtime module ids through one package's linkage. It
// implements vm.Loader.
type View struct {
	r    *Resolver
	root *types.PackageData
}

func (v *View) LoadModule(id types.ModuleID) (*bytecode.CompiledModule, error) {
	storage := types.NewModuleID(v.r.storageFor(v.root, id.Address), id.Name)

	m, err := v.r.Compiled(storage)
	if err != nil {
		var re *ResolutionError
		if errors.As(err, &re) {
			re.Module = id
		}

		return nil, err
	}

	return m, nil
}
