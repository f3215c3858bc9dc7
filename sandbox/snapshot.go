package sandbox

import (
	"errors"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
)

const SnapshotFormatVersion = 1

var ErrSnapshotVersion = errors.New("unsupported snapshot format")

// PendingReceive lists objects waiting to be received by a parent object
type PendingReceive struct {
	Parent  types.ObjectID    `json:"parent"`
	Objects []types.ObjectRef `json:"objects"`
}

// PersistentState is the serializable form of an environment
type PersistentState struct {
	FormatVersion   int                      `json:"format_version"`
	Config          Config                   `json:"config"`
	Objects         []*types.VersionedObject `json:"objects"`
	Packages        []*types.PackageData     `json:"packages"`
	Modules         []types.ModuleID         `json:"modules"`
	PendingReceives []PendingReceive         `json:"pending_receives,omitempty"`
	Consensus       []state.ConsensusEntry   `json:"consensus,omitempty"`
	Nonce           uint64                   `json:"nonce"`
}

// Snapshot captures every live object, registered package, pending
// receive and consensus entry
func (e *Env) Snapshot() *PersistentState {
	e.lock.RLock()
	defer e.lock.RUnlock()

	ps := &PersistentState{
		FormatVersion: SnapshotFormatVersion,
		Config:        e.cfg,
		Consensus:     e.consensus.Entries(),
		Nonce:         e.nonce,
	}

	for _, o := range sortedObjects(e.objects) {
		ps.Objects = append(ps.Objects, o.Clone())
	}

	for _, p := range userPackages(e.resolver) {
		ps.Packages = append(ps.Packages, p.Clone())

		ps.Modules = append(ps.Modules, e.resolver.ModulesAt(p.Address)...)
	}

	pending := pendingReceives(e.objects)
	for _, o := range ps.Objects {
		if refs, ok := pending[o.ID]; ok {
			ps.PendingReceives = append(ps.PendingReceives, PendingReceive{Parent: o.ID, Objects: refs})
		}
	}

	return ps
}

// Restore replaces the environment state with ps. On error the
// environment is left unchanged.
func (e *Env) Restore(ps *PersistentState) error {
	if ps.FormatVersion != SnapshotFormatVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, ps.FormatVersion)
	}

	res, err := resolver.New(e.logger).WithFramework()
	if err != nil {
		return err
	}

	for _, p := range ps.Packages {
		if err := res.AddPackage(p); err != nil {
			return fmt.Errorf("restore package %s: %w", p.Address, err)
		}
	}

	objects := make(map[types.ObjectID]*types.VersionedObject, len(ps.Objects))
	for _, o := range ps.Objects {
		objects[o.ID] = o.Clone()
	}

	consensus := state.NewConsensusLog()
	for _, entry := range ps.Consensus {
		consensus.Record(entry)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.cfg = ps.Config
	e.resolver = res
	e.objects = objects
	e.consensus = consensus
	e.nonce = ps.Nonce

	e.logger.Debug("state restored", "objects", len(objects), "packages", len(ps.Packages))

	return nil
}

// Restored builds a new environment from ps
func Restored(logger hclog.Logger, ps *PersistentState) (*Env, error) {
	env, err := New(logger, ps.Config)
	if err != nil {
		return nil, err
	}

	if err := env.Restore(ps); err != nil {
		return nil, err
	}

	return env, nil
}
