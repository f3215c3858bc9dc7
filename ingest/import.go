package ingest

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source/checkpoint"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// ImportResult counts what an import wrote
type ImportResult struct {
	Root         string `json:"root"`
	States       int    `json:"states"`
	Transactions int    `json:"transactions"`
	Objects      int    `json:"objects"`
	Packages     int    `json:"packages"`
}

// putObjects writes object versions and records the dynamic field
// children among them. A nil checkpoint records children at checkpoint 0.
func putObjects(store *cache.Store, seq *uint64, lists ...[]*types.VersionedObject) (int, error) {
	var (
		errs     *multierror.Error
		written  int
		children = map[types.ObjectID][]types.DynamicFieldInfo{}
		at       uint64
	)

	if seq != nil {
		at = *seq
	}

	for _, list := range lists {
		for _, obj := range list {
			if err := store.PutVersionedObject(obj, seq); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("object %s@%d: %w", obj.ID, obj.Version, err))

				continue
			}

			written++

			if info, ok := checkpoint.ChildInfo(obj, at); ok {
				parent := obj.EffectiveOwner().Address
				children[parent] = append(children[parent], info)
			}
		}
	}

	for parent, infos := range children {
		if err := store.AppendChildren(parent, infos); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return written, errs.ErrorOrNil()
}

func putPackages(store *cache.Store, pkgs []*types.PackageData) (int, error) {
	var (
		errs    *multierror.Error
		written int
	)

	for _, pkg := range pkgs {
		if err := store.PutPackage(pkg); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("package %s: %w", pkg.Address, err))

			continue
		}

		written++
	}

	return written, errs.ErrorOrNil()
}

// Import writes replay states, plus loose objects and packages, into the
// store. Framework packages are skipped. States with a checkpoint also
// index their transaction digest.
func Import(
	logger hclog.Logger,
	store *cache.Store,
	states []*types.ReplayState,
	objects []*types.VersionedObject,
	packages []*types.PackageData,
) (*ImportResult, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var errs *multierror.Error

	res := &ImportResult{Root: store.Root()}

	add := func(objs []*types.VersionedObject, pkgs []*types.PackageData, seq *uint64) {
		n, err := putObjects(store, seq, objs)
		if err != nil {
			errs = multierror.Append(errs, err)
		}

		res.Objects += n

		var user []*types.PackageData

		for _, p := range pkgs {
			if !p.Address.IsFramework() {
				user = append(user, p)
			}
		}

		n, err = putPackages(store, user)
		if err != nil {
			errs = multierror.Append(errs, err)
		}

		res.Packages += n
	}

	for _, st := range states {
		add(st.SortedObjects(), st.SortedPackages(), st.Checkpoint)

		if st.Checkpoint != nil {
			if err := store.PutTxIndex(st.Transaction.Digest, *st.Checkpoint); err != nil {
				errs = multierror.Append(errs, err)
			} else {
				res.Transactions++
			}
		}

		res.States++
	}

	add(objects, packages, nil)

	logger.Named("import").Info("import finished",
		"root", res.Root,
		"states", res.States,
		"objects", res.Objects,
		"packages", res.Packages,
	)

	return res, errs.ErrorOrNil()
}
