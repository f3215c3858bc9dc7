package reconstruct

import (
	"context"
	"sort"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Closure is the set of packages a transaction can reach
type Closure struct {
	Packages map[types.Address]*types.PackageData
	Missing  []types.Address
	// Hydration aggregates the errors of packages that could not be fetched
	Hydration *multierror.Error
}

// references lists the storage ids pkg links to, stopping at framework
// addresses
func references(pkg *types.PackageData) []types.Address {
	seen := map[types.Address]struct{}{}

	var out []types.Address

	add := func(a types.Address) {
		if a.IsFramework() || a == pkg.Address {
			return
		}

		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}

	for _, l := range pkg.Linkage {
		add(l.UpgradedID)
	}

	for _, mb := range pkg.Modules {
		m, err := resolver.Compile(mb.Bytecode)
		if err != nil {
			continue
		}

		for _, dep := range m.Dependencies() {
			if dep.Address == pkg.RuntimeID() {
				continue
			}

			if storage, ok := pkg.StorageID(dep.Address); ok {
				add(storage)
			} else {
				add(dep.Address)
			}
		}
	}

	return out
}

// PackageClosure fetches roots and everything their linkage tables and
// module dependencies reach. Framework packages are never fetched. known
// supplies packages already held; it may be nil.
func PackageClosure(
	ctx context.Context,
	src source.PackageSource,
	roots []types.Address,
	known map[types.Address]*types.PackageData,
	parallelism int,
) (*Closure, error) {
	c := &Closure{Packages: map[types.Address]*types.PackageData{}}
	seen := map[types.Address]struct{}{}

	var frontier []types.Address

	enqueue := func(a types.Address) {
		if a.IsFramework() {
			return
		}

		if _, ok := seen[a]; ok {
			return
		}

		seen[a] = struct{}{}
		frontier = append(frontier, a)
	}

	for _, r := range roots {
		enqueue(r)
	}

	for len(frontier) > 0 {
		layer := frontier
		frontier = nil

		fetched, err := fetchLayer(ctx, src, layer, known, parallelism, c)
		if err != nil {
			return nil, err
		}

		for _, pkg := range fetched {
			c.Packages[pkg.Address] = pkg

			for _, ref := range references(pkg) {
				enqueue(ref)
			}
		}
	}

	sort.Slice(c.Missing, func(i, j int) bool { return c.Missing[i].Less(c.Missing[j]) })

	return c, nil
}

func fetchLayer(
	ctx context.Context,
	src source.PackageSource,
	layer []types.Address,
	known map[types.Address]*types.PackageData,
	parallelism int,
	c *Closure,
) ([]*types.PackageData, error) {
	var (
		lock    sync.Mutex
		fetched = make([]*types.PackageData, len(layer))
	)

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for i, addr := range layer {
		i, addr := i, addr

		if pkg, ok := known[addr]; ok {
			fetched[i] = pkg

			continue
		}

		if src == nil {
			lock.Lock()
			c.Missing = append(c.Missing, addr)
			c.Hydration = multierror.Append(c.Hydration, source.PackageMissingError(addr))
			lock.Unlock()

			continue
		}

		g.Go(func() error {
			pkg, err := src.FetchPackage(gctx, addr)
			if err != nil {
				if !source.IsHydrationError(err) {
					return err
				}

				lock.Lock()
				c.Missing = append(c.Missing, addr)
				c.Hydration = multierror.Append(c.Hydration, err)
				lock.Unlock()

				return nil
			}

			fetched[i] = pkg

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := fetched[:0]

	for _, pkg := range fetched {
		if pkg != nil {
			out = append(out, pkg)
		}
	}

	return out, nil
}
