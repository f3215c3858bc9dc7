// Package sandbox is the simulation environment: one resolver, one live
// object store, a sender, a clock and a consensus log behind an execute /
// snapshot / restore API.
package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/ptb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrPackageNotFound = errors.New("package not found")
)

const (
	DefaultGasPrice    = 1000
	DefaultGasBudget   = 50_000_000_000
	DefaultTimestampMs = 1_700_000_000_000
)

// Config is the identity and clock of an environment. A zero protocol
// version selects the newest gas schedule.
type Config struct {
	Sender          types.Address `json:"sender"`
	Epoch           uint64        `json:"epoch"`
	TimestampMs     uint64        `json:"timestamp_ms"`
	ProtocolVersion uint64        `json:"protocol_version"`
	GasPrice        uint64        `json:"gas_price"`
	GasBudget       uint64        `json:"gas_budget"`
}

func DefaultConfig() Config {
	return Config{
		Sender:      types.MustParseAddress("0x5a11ce"),
		TimestampMs: DefaultTimestampMs,
		GasPrice:    DefaultGasPrice,
		GasBudget:   DefaultGasBudget,
	}
}

// Env owns the state of a simulation. Its methods are safe for concurrent
// use; executions are serialized.
type Env struct {
	logger hclog.Logger
	lock   sync.RWMutex

	cfg       Config
	resolver  *resolver.Resolver
	objects   map[types.ObjectID]*types.VersionedObject
	consensus *state.ConsensusLog
	fetchers  state.ChildFetchers

	// nonce distinguishes digests of locally built transactions
	nonce uint64
}

// New builds an empty environment with the bundled framework loaded
func New(logger hclog.Logger, cfg Config) (*Env, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	res, err := resolver.New(logger).WithFramework()
	if err != nil {
		return nil, fmt.Errorf("load framework: %w", err)
	}

	if cfg.GasPrice == 0 {
		cfg.GasPrice = DefaultGasPrice
	}

	if cfg.GasBudget == 0 {
		cfg.GasBudget = DefaultGasBudget
	}

	return &Env{
		logger:    logger.Named("sandbox"),
		cfg:       cfg,
		resolver:  res,
		objects:   map[types.ObjectID]*types.VersionedObject{},
		consensus: state.NewConsensusLog(),
	}, nil
}

// FromReplayState builds an environment holding the objects and packages
// of st, clocked at the transaction's epoch and timestamp. Framework
// packages in st are served by the bundled framework instead.
func FromReplayState(logger hclog.Logger, st *types.ReplayState) (*Env, error) {
	tx := st.Transaction

	env, err := New(logger, Config{
		Sender:          tx.Sender,
		Epoch:           st.Epoch,
		TimestampMs:     tx.TimestampMs,
		ProtocolVersion: st.ProtocolVersion,
		GasPrice:        tx.Gas.Price,
		GasBudget:       tx.Gas.Budget,
	})
	if err != nil {
		return nil, err
	}

	for _, pkg := range st.SortedPackages() {
		if pkg.Address.IsFramework() {
			continue
		}

		if err := env.resolver.AddPackage(pkg); err != nil {
			return nil, fmt.Errorf("package %s: %w", pkg.Address, err)
		}
	}

	for _, obj := range st.SortedObjects() {
		env.objects[obj.ID] = obj
	}

	return env, nil
}

func (e *Env) Config() Config {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return e.cfg
}

// SetClock moves the environment clock
func (e *Env) SetClock(epoch, timestampMs uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.cfg.Epoch = epoch
	e.cfg.TimestampMs = timestampMs
}

func (e *Env) SetSender(sender types.Address) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.cfg.Sender = sender
}

// SetGasBudget sets the budget of locally built transactions
func (e *Env) SetGasBudget(budget uint64) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.cfg.GasBudget = budget
}

// SetChildFetchers installs the fallbacks consulted for dynamic field
// children missing from the store
func (e *Env) SetChildFetchers(f state.ChildFetchers) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.fetchers = f
}

func (e *Env) Resolver() *resolver.Resolver {
	return e.resolver
}

func (e *Env) ConsensusLog() *state.ConsensusLog {
	return e.consensus
}

// GetObject implements state.ObjectReader over the live store. It takes
// no lock; executions call it while holding the environment lock.
func (e *Env) GetObject(id types.ObjectID) (*types.VersionedObject, bool) {
	obj, ok := e.objects[id]

	return obj, ok
}

// Object returns a copy of a live object
func (e *Env) Object(id types.ObjectID) (*types.VersionedObject, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	obj, ok := e.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	return obj.Clone(), nil
}

// Objects returns the live objects ordered by id
func (e *Env) Objects() []*types.VersionedObject {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return sortedObjects(e.objects)
}

func sortedObjects(m map[types.ObjectID]*types.VersionedObject) []*types.VersionedObject {
	out := make([]*types.VersionedObject, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })

	return out
}

// PutObject places an object in the store, replacing any previous version
func (e *Env) PutObject(obj *types.VersionedObject) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.objects[obj.ID] = obj
}

func (e *Env) AddPackage(pkg *types.PackageData) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.resolver.AddPackage(pkg)
}

func (e *Env) Package(storageID types.Address) (*types.PackageData, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	pkg, ok := e.resolver.Package(storageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, storageID)
	}

	return pkg, nil
}

// Packages lists the registered packages without the bundled framework
func (e *Env) Packages() []*types.PackageData {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return userPackages(e.resolver)
}

func userPackages(res *resolver.Resolver) []*types.PackageData {
	var out []*types.PackageData

	for _, p := range res.Packages() {
		if !p.Address.IsFramework() {
			out = append(out, p)
		}
	}

	return out
}

// PendingReceives lists the objects sent to parent that it can receive
func (e *Env) PendingReceives(parent types.ObjectID) []types.ObjectRef {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return pendingReceives(e.objects)[parent]
}

// pendingReceives indexes objects owned by the address of another live
// object
func pendingReceives(objects map[types.ObjectID]*types.VersionedObject) map[types.ObjectID][]types.ObjectRef {
	out := map[types.ObjectID][]types.ObjectRef{}

	for _, o := range sortedObjects(objects) {
		owner := o.EffectiveOwner()
		if owner.Kind != types.OwnerAddress {
			continue
		}

		if _, ok := objects[owner.Address]; ok {
			out[owner.Address] = append(out[owner.Address], o.Ref())
		}
	}

	return out
}

// nextContext builds the execution context of a locally built transaction
func (e *Env) nextContext(tx *types.ProgrammableTransaction, gasPayment []types.ObjectRef) ptb.Context {
	e.nonce++

	return ptb.Context{
		Sender:          e.cfg.Sender,
		Digest:          types.ComputeTransactionDigest(e.cfg.Sender, e.cfg.Epoch, e.nonce, tx),
		Epoch:           e.cfg.Epoch,
		TimestampMs:     e.cfg.TimestampMs,
		ProtocolVersion: e.cfg.ProtocolVersion,
		Gas: types.GasData{
			Payment: gasPayment,
			Owner:   e.cfg.Sender,
			Price:   e.cfg.GasPrice,
			Budget:  e.cfg.GasBudget,
		},
	}
}

// Execute runs a command sequence as the environment sender. The gas coin
// is synthesized from the budget unless gasPayment names live coins.
func (e *Env) Execute(tx *types.ProgrammableTransaction, gasPayment ...types.ObjectRef) (*ptb.Result, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.execute(e.nextContext(tx, gasPayment), tx)
}

// ExecuteTransaction replays a historical transaction with its recorded
// sender, digest, clock and gas data
func (e *Env) ExecuteTransaction(tx *types.FetchedTransaction) (*ptb.Result, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	protocol := e.cfg.ProtocolVersion
	epoch := e.cfg.Epoch

	if tx.Effects != nil {
		if tx.Effects.ProtocolVersion != 0 {
			protocol = tx.Effects.ProtocolVersion
		}

		if tx.Effects.Epoch != 0 {
			epoch = tx.Effects.Epoch
		}
	}

	ctx := ptb.Context{
		Sender:          tx.Sender,
		Digest:          tx.Digest,
		Epoch:           epoch,
		TimestampMs:     tx.TimestampMs,
		ProtocolVersion: protocol,
		Gas:             tx.Gas,
	}

	return e.execute(ctx, &tx.PTB)
}

func (e *Env) execute(ctx ptb.Context, tx *types.ProgrammableTransaction) (*ptb.Result, error) {
	executor := ptb.NewExecutor(e.logger, e.resolver, e, e.fetchers, e.consensus)

	res, err := executor.Execute(ctx, tx)
	if err != nil {
		return nil, err
	}

	for _, id := range res.Deleted {
		delete(e.objects, id)
	}

	for _, obj := range res.Written {
		e.objects[obj.ID] = obj
	}

	e.logger.Debug("transaction applied",
		"digest", ctx.Digest,
		"success", res.Effects.Success,
		"written", len(res.Written),
		"deleted", len(res.Deleted),
		"gas_used", res.Effects.GasUsed,
	)

	return res, nil
}

// Publish publishes modules as a new package. The upgrade cap goes to the
// sender.
func (e *Env) Publish(modules [][]byte, deps []types.Address) (*ptb.Result, error) {
	return e.Execute(&types.ProgrammableTransaction{
		Commands: []types.Command{{Publish: &types.Publish{Modules: modules, Dependencies: deps}}},
	})
}
