package types

import (
	"sort"
)

// ModuleBytes is one named module of a package
type ModuleBytes struct {
	Name     string `json:"name"`
	Bytecode []byte `json:"bytecode_b64"`
}

// LinkageEntry maps a dependency's runtime id to the storage id it was
// upgraded to
type LinkageEntry struct {
	OriginalID      Address `json:"original_id"`
	UpgradedID      Address `json:"upgraded_id"`
	UpgradedVersion uint64  `json:"upgraded_version"`
}

// PackageData is one version of a package, stored under its storage id
type PackageData struct {
	Address    Address        `json:"address"`
	Version    uint64         `json:"version"`
	Modules    []ModuleBytes  `json:"modules"`
	Linkage    []LinkageEntry `json:"linkage"`
	OriginalID *Address       `json:"original_id,omitempty"`
}

// RuntimeID is the id types of this package are referenced by
func (p *PackageData) RuntimeID() Address {
	if p.OriginalID != nil && !p.OriginalID.IsZero() {
		return *p.OriginalID
	}

	return p.Address
}

// StorageID resolves a dependency runtime id through the linkage table.
// The package itself resolves to its own address.
func (p *PackageData) StorageID(runtimeID Address) (Address, bool) {
	if runtimeID == p.RuntimeID() {
		return p.Address, true
	}

	for _, l := range p.Linkage {
		if l.OriginalID == runtimeID {
			return l.UpgradedID, true
		}
	}

	return ZeroAddress, false
}

func (p *PackageData) Module(name string) ([]byte, bool) {
	for _, m := range p.Modules {
		if m.Name == name {
			return m.Bytecode, true
		}
	}

	return nil, false
}

func (p *PackageData) ModuleNames() []string {
	names := make([]string, 0, len(p.Modules))
	for _, m := range p.Modules {
		names = append(names, m.Name)
	}

	return names
}

// Normalize sorts modules by name and linkage by original id
func (p *PackageData) Normalize() {
	sort.Slice(p.Modules, func(i, j int) bool {
		return p.Modules[i].Name < p.Modules[j].Name
	})
	sort.Slice(p.Linkage, func(i, j int) bool {
		return p.Linkage[i].OriginalID.Less(p.Linkage[j].OriginalID)
	})
}

func (p *PackageData) Clone() *PackageData {
	cp := &PackageData{
		Address: p.Address,
		Version: p.Version,
		Modules: make([]ModuleBytes, len(p.Modules)),
		Linkage: append([]LinkageEntry(nil), p.Linkage...),
	}

	for i, m := range p.Modules {
		cp.Modules[i] = ModuleBytes{Name: m.Name, Bytecode: CopyBytes(m.Bytecode)}
	}

	if p.OriginalID != nil {
		orig := *p.OriginalID
		cp.OriginalID = &orig
	}

	return cp
}
