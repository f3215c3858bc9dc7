package reconstruct

import (
	"sort"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// LinkageMap relates runtime ids and storage ids across a set of packages
type LinkageMap struct {
	toStorage map[types.Address]types.Address
	versions  map[types.Address]uint64
	toRuntime map[types.Address]types.Address
}

func NewLinkageMap() *LinkageMap {
	return &LinkageMap{
		toStorage: map[types.Address]types.Address{},
		versions:  map[types.Address]uint64{},
		toRuntime: map[types.Address]types.Address{},
	}
}

func (l *LinkageMap) link(runtime, storage types.Address, version uint64) {
	l.toRuntime[storage] = runtime

	if v, ok := l.versions[runtime]; ok && v > version {
		return
	}

	l.toStorage[runtime] = storage
	l.versions[runtime] = version
}

// Add unions the linkage table and original id of pkg. The newest
// upgraded version of a runtime id wins.
func (l *LinkageMap) Add(pkg *types.PackageData) {
	l.link(pkg.RuntimeID(), pkg.Address, pkg.Version)

	for _, e := range pkg.Linkage {
		l.link(e.OriginalID, e.UpgradedID, e.UpgradedVersion)
	}
}

// BuildLinkageMap unions every package
func BuildLinkageMap(pkgs map[types.Address]*types.PackageData) *LinkageMap {
	l := NewLinkageMap()

	addrs := make([]types.Address, 0, len(pkgs))
	for a := range pkgs {
		addrs = append(addrs, a)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	for _, a := range addrs {
		l.Add(pkgs[a])
	}

	return l
}

// StorageID returns the storage id linked to runtime. Unknown runtime ids
// map to themselves.
func (l *LinkageMap) StorageID(runtime types.Address) types.Address {
	if s, ok := l.toStorage[runtime]; ok {
		return s
	}

	return runtime
}

// RuntimeID returns the runtime id of a storage id. Unknown storage ids
// map to themselves.
func (l *LinkageMap) RuntimeID(storage types.Address) types.Address {
	if r, ok := l.toRuntime[storage]; ok {
		return r
	}

	return storage
}

// Len is the number of runtime ids linked
func (l *LinkageMap) Len() int {
	return len(l.toStorage)
}
