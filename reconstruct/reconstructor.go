package reconstruct

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/source"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

const DefaultParallelism = 8

type Options struct {
	// Parallelism bounds concurrent fetches
	Parallelism int
	// PatchVersions enables the version-lock patcher
	PatchVersions bool
	PatchRules    []Rule
	// PatchObjects restricts patching to these ids. Empty means every
	// object is eligible.
	PatchObjects []types.ObjectID
}

// Diagnostics describes what a reconstruction could not provide and what
// it changed
type Diagnostics struct {
	MissingObjects  []types.ObjectVersion
	MissingPackages []types.Address
	Patched         []types.ObjectID
	Synthesized     []types.ObjectID
	// Hydration aggregates every recoverable fetch failure
	Hydration *multierror.Error
}

// Complete reports whether every object and package was found
func (d *Diagnostics) Complete() bool {
	return len(d.MissingObjects) == 0 && len(d.MissingPackages) == 0
}

// Err is the aggregated hydration error, nil when complete
func (d *Diagnostics) Err() error {
	return d.Hydration.ErrorOrNil()
}

type Reconstructor struct {
	logger   hclog.Logger
	objects  source.TransactionSource
	packages source.PackageSource
	opts     Options
}

func New(logger hclog.Logger, objects source.TransactionSource, packages source.PackageSource, opts Options) *Reconstructor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}

	return &Reconstructor{
		logger:   logger.Named("reconstruct"),
		objects:  objects,
		packages: packages,
		opts:     opts,
	}
}

// Build assembles the replay state of tx. Objects and packages already in
// base are reused; base may be nil. Missing objects and packages are
// reported in the diagnostics rather than failing the build. Only
// infrastructure errors are returned.
func (r *Reconstructor) Build(
	ctx context.Context,
	tx *types.FetchedTransaction,
	base *types.ReplayState,
) (*types.ReplayState, *Diagnostics, error) {
	st := types.NewReplayState(*tx)
	st.Checkpoint = tx.Checkpoint

	if tx.Effects != nil {
		st.Epoch = tx.Effects.Epoch
		st.ProtocolVersion = tx.Effects.ProtocolVersion
	}

	if base != nil {
		for id, o := range base.Objects {
			st.Objects[id] = o
		}

		for addr, p := range base.Packages {
			st.Packages[addr] = p
		}

		if st.ProtocolVersion == 0 {
			st.ProtocolVersion = base.ProtocolVersion
		}

		if st.Epoch == 0 {
			st.Epoch = base.Epoch
		}

		if st.Checkpoint == nil {
			st.Checkpoint = base.Checkpoint
		}
	}

	diag := &Diagnostics{}
	versions := AggregateVersions(tx)

	r.logger.Debug("versions aggregated", "digest", tx.Digest, "objects", versions.Len())

	if err := r.hydrateObjects(ctx, st, versions, diag); err != nil {
		return nil, nil, err
	}

	diag.Synthesized = SynthesizeSystemObjects(st, versions)

	closure, err := PackageClosure(ctx, r.packages, r.packageRoots(st), st.Packages, r.opts.Parallelism)
	if err != nil {
		return nil, nil, err
	}

	for addr, pkg := range closure.Packages {
		st.Packages[addr] = pkg
	}

	diag.MissingPackages = closure.Missing

	if closure.Hydration != nil {
		diag.Hydration = multierror.Append(diag.Hydration, closure.Hydration.Errors...)
	}

	if r.opts.PatchVersions {
		diag.Patched = r.patch(st)
	}

	r.logger.Info("state reconstructed",
		"digest", tx.Digest,
		"objects", len(st.Objects),
		"packages", len(st.Packages),
		"missing_objects", len(diag.MissingObjects),
		"missing_packages", len(diag.MissingPackages),
	)

	return st, diag, nil
}

// packageRoots lists the packages named by the commands and by the types
// of every loaded object
func (r *Reconstructor) packageRoots(st *types.ReplayState) []types.Address {
	seen := map[types.Address]struct{}{}

	var roots []types.Address

	add := func(a types.Address) {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			roots = append(roots, a)
		}
	}

	for _, a := range st.Transaction.PTB.Packages() {
		add(a)
	}

	linkage := BuildLinkageMap(st.Packages)

	for _, o := range st.SortedObjects() {
		for _, a := range o.Type.Addresses() {
			add(linkage.StorageID(a))
		}
	}

	return roots
}

func (r *Reconstructor) hydrateObjects(
	ctx context.Context,
	st *types.ReplayState,
	versions *VersionMap,
	diag *Diagnostics,
) error {
	var (
		lock    sync.Mutex
		pending []types.ObjectVersion
	)

	for _, ov := range versions.Sorted() {
		if o, ok := st.Objects[ov.ID]; ok && o.Version == ov.Version {
			continue
		}

		pending = append(pending, ov)
	}

	if len(pending) == 0 {
		return nil
	}

	if r.objects == nil {
		for _, ov := range pending {
			if ov.ID == types.ClockObjectID || ov.ID == types.RandomObjectID {
				continue
			}

			diag.MissingObjects = append(diag.MissingObjects, ov)
			diag.Hydration = multierror.Append(diag.Hydration, source.ObjectMissingError(ov.ID, ov.Version))
		}

		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)

	for _, ov := range pending {
		ov := ov

		g.Go(func() error {
			obj, err := r.objects.FetchObjectAtVersion(gctx, ov.ID, ov.Version)

			lock.Lock()
			defer lock.Unlock()

			if err != nil {
				if !source.IsHydrationError(err) {
					return fmt.Errorf("fetch %s@%d: %w", ov.ID, ov.Version, err)
				}

				// system objects are synthesized below
				if ov.ID == types.ClockObjectID || ov.ID == types.RandomObjectID {
					return nil
				}

				diag.MissingObjects = append(diag.MissingObjects, ov)
				diag.Hydration = multierror.Append(diag.Hydration, err)

				return nil
			}

			st.Objects[obj.ID] = obj

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(diag.MissingObjects, func(i, j int) bool {
		return diag.MissingObjects[i].ID.Less(diag.MissingObjects[j].ID)
	})

	return nil
}

func (r *Reconstructor) patch(st *types.ReplayState) []types.ObjectID {
	res, err := resolver.New(r.logger).WithFramework()
	if err != nil {
		r.logger.Warn("version patching skipped", "err", err)

		return nil
	}

	patcher := NewPatcher(r.logger, r.opts.PatchRules)

	for _, pkg := range st.SortedPackages() {
		if err := res.AddPackage(pkg); err != nil {
			r.logger.Warn("package not loadable for patching", "package", pkg.Address, "err", err)

			continue
		}

		patcher.Scan(pkg)
	}

	view, err := res.View(types.ZeroAddress)
	if err != nil {
		return nil
	}

	eligible := map[types.ObjectID]struct{}{}
	for _, id := range r.opts.PatchObjects {
		eligible[id] = struct{}{}
	}

	var patched []types.ObjectID

	for _, obj := range st.SortedObjects() {
		if len(eligible) > 0 {
			if _, ok := eligible[obj.ID]; !ok {
				continue
			}
		}

		out, changed, err := patcher.Patch(obj, view)
		if err != nil {
			r.logger.Debug("object not patched", "object", obj.ID, "err", err)

			continue
		}

		if changed {
			st.Objects[obj.ID] = out
			patched = append(patched, obj.ID)
		}
	}

	return patched
}
