// Package ptb executes programmable transaction blocks against the object
// runtime and produces their effects.
package ptb

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/gas"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/resolver"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
	"github.com/hashicorp/go-hclog"
)

var (
	ErrInsufficientGas = errors.New("gas coin balance below budget")
	ErrTooManyCommands = errors.New("too many commands")
)

// MaxCommands bounds the length of one command sequence
const MaxCommands = 1024

// Context is the environment a transaction executes in
type Context struct {
	Sender          types.Address
	Digest          types.Digest
	Epoch           uint64
	TimestampMs     uint64
	ProtocolVersion uint64
	Gas             types.GasData

	// ConsensusSequence orders the transaction among users of shared
	// objects. Nil takes the next sequence of the consensus log.
	ConsensusSequence *uint64
}

// Result is the outcome of one execution
type Result struct {
	Effects *types.TransactionEffects

	// Written holds every object at its output version
	Written []*types.VersionedObject
	Deleted []types.ObjectID

	// Packages published or upgraded by the transaction
	Packages []*types.PackageData

	// MissingChildren lists dynamic fields that could not be loaded
	MissingChildren []state.ChildKey

	// Err is the execution error recorded in the effects, if any
	Err *vm.ExecutionError
}

// Executor runs programmable transactions. It is safe to reuse across
// transactions but not for concurrent use.
type Executor struct {
	logger    hclog.Logger
	resolver  *resolver.Resolver
	reader    state.ObjectReader
	fetchers  state.ChildFetchers
	consensus *state.ConsensusLog
}

func NewExecutor(
	logger hclog.Logger,
	res *resolver.Resolver,
	reader state.ObjectReader,
	fetchers state.ChildFetchers,
	consensus *state.ConsensusLog,
) *Executor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Executor{
		logger:    logger.Named("ptb"),
		resolver:  res,
		reader:    reader,
		fetchers:  fetchers,
		consensus: consensus,
	}
}

// Execute runs tx. Failures of the transaction's code are reported in the
// effects; the returned error is reserved for problems that make the
// execution meaningless, such as unresolvable packages or missing inputs.
func (e *Executor) Execute(ctx Context, tx *types.ProgrammableTransaction) (*Result, error) {
	if len(tx.Commands) > MaxCommands {
		return nil, fmt.Errorf("%w: %d", ErrTooManyCommands, len(tx.Commands))
	}

	for i, cmd := range tx.Commands {
		if err := cmd.Validate(); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}

	charger, err := gas.NewCharger(gas.Config(ctx.ProtocolVersion), ctx.Gas.Price, ctx.Gas.Budget)
	if err != nil {
		return nil, err
	}

	r, err := e.newRun(ctx, tx, charger)
	if err != nil {
		return nil, err
	}

	res, err := r.execute()
	if err != nil {
		r.dropPackages()

		return nil, err
	}

	return res, nil
}

// run is the state of one execution
type run struct {
	*Executor

	ctx     Context
	tx      *types.ProgrammableTransaction
	txn     *state.Txn
	charger *gas.Charger
	natives vm.NativeTable

	// decoder resolves object layouts through the newest package versions
	decoder *vm.VM
	current *vm.VM
	txCtx   *vm.Struct

	inputs  []*argSlot
	gasCoin *argSlot
	results [][]*argSlot

	// synthetic is set when the gas coin was made up from the budget
	synthetic *types.ObjectID

	// created holds fresh ids not yet placed in the table
	created map[types.ObjectID]struct{}
	// moved holds object ids whose values were handed to Move by value
	moved            map[types.ObjectID]struct{}
	unwrappedDeleted []types.ObjectID
	children         map[types.ObjectID]*childValue
	sharedInputs     map[types.ObjectID]bool

	events          []types.Event
	returnValues    [][]types.TypedValue
	packages        []*types.PackageData
	missingChildren []state.ChildKey
}

func (e *Executor) newRun(ctx Context, tx *types.ProgrammableTransaction, charger *gas.Charger) (*run, error) {
	view, err := e.resolver.View(types.ZeroAddress)
	if err != nil {
		return nil, err
	}

	r := &run{
		Executor:     e,
		ctx:          ctx,
		tx:           tx,
		txn:          state.NewTxn(e.logger, e.reader, e.fetchers),
		charger:      charger,
		created:      map[types.ObjectID]struct{}{},
		moved:        map[types.ObjectID]struct{}{},
		children:     map[types.ObjectID]*childValue{},
		sharedInputs: map[types.ObjectID]bool{},
		txCtx:        framework.TxContextValue(ctx.Sender, ctx.Digest, ctx.Epoch, ctx.TimestampMs, 0),
	}

	r.natives = framework.Natives(r)
	r.decoder = vm.New(view, r.natives, charger.Meter())

	return r, nil
}

func (r *run) vm() *vm.VM {
	if r.current != nil {
		return r.current
	}

	return r.decoder
}

func (r *run) execute() (*Result, error) {
	if err := r.loadInputs(); err != nil {
		return nil, err
	}

	if err := r.loadGas(); err != nil {
		return nil, err
	}

	snapshot := r.txn.Snapshot()
	succeeded, failed := 0, -1

	var execErr *vm.ExecutionError

	if err := r.checkConsensus(); err != nil {
		execErr = executionError(err)
	}

	for i := 0; execErr == nil && i < len(r.tx.Commands); i++ {
		if err := r.command(i, r.tx.Commands[i]); err != nil {
			if isFatal(err) {
				return nil, err
			}

			execErr = executionError(err)
			execErr.Message = commandMessage(i, execErr.Message)
			failed = i

			r.logger.Debug("command failed", "index", i, "kind", execErr.Kind, "err", execErr)

			break
		}

		succeeded++
	}

	if execErr == nil {
		if err := r.finalize(); err != nil {
			if isFatal(err) {
				return nil, err
			}

			execErr = executionError(err)
		}
	}

	reads := r.txn.Slots()

	if execErr != nil {
		r.txn.RevertToSnapshot(snapshot)
		r.dropPackages()
		r.returnValues = nil
	}

	return r.conclude(reads, succeeded, failed, execErr)
}

func (r *run) dropPackages() {
	for _, p := range r.packages {
		r.resolver.RemovePackage(p.Address)
	}

	r.packages = nil
}

func commandMessage(index int, msg string) string {
	if msg == "" {
		return fmt.Sprintf("command %d", index)
	}

	return fmt.Sprintf("command %d: %s", index, msg)
}

// isFatal reports errors that invalidate the execution instead of being
// recorded as its outcome
func isFatal(err error) bool {
	var re *resolver.ResolutionError
	if errors.As(err, &re) {
		return true
	}

	return errors.Is(err, state.ErrObjectNotFound) && !errors.Is(err, state.ErrChildNotFound)
}

func (r *run) loadInputs() error {
	var versions []uint64

	for i, in := range r.tx.Inputs {
		slot := &argSlot{input: i}

		switch in.Kind {
		case types.InputPure:
			slot.pure = in.Bytes
		case types.InputReceiving:
			id := in.ID
			slot.object = &id
			slot.receiving = &types.ObjectRef{ID: in.ID, Version: in.Version, Digest: in.Digest}
		case types.InputObject, types.InputShared:
			id := in.ID
			version := in.Version
			mutable := true

			if in.Kind == types.InputShared {
				version = 0
				mutable = in.Mutable
			}

			loaded, err := r.txn.LoadInput(id, version, mutable)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}

			if in.Kind == types.InputShared {
				r.sharedInputs[id] = mutable
			}

			slot.object = &id
			slot.mutable = loaded.Mutable
			slot.owned = loaded.Owner.Kind == types.OwnerAddress
			slot.typ = &loaded.Type
			versions = append(versions, loaded.InputVersion)
		default:
			return fmt.Errorf("input %d: %w: kind %q", i, types.ErrInvalidInput, in.Kind)
		}

		r.inputs = append(r.inputs, slot)
	}

	r.txn.BeginLamport(versions...)

	return nil
}

// loadGas binds the GasCoin argument. Payment coins present in the store
// are smashed into the first one; without them a coin funded from the
// budget stands in.
func (r *run) loadGas() error {
	var payment []*state.Slot

	for _, ref := range r.ctx.Gas.Payment {
		if _, ok := r.reader.GetObject(ref.ID); !ok {
			continue
		}

		slot, err := r.txn.LoadInput(ref.ID, ref.Version, true)
		if err != nil {
			return fmt.Errorf("gas payment: %w", err)
		}

		payment = append(payment, slot)
	}

	if len(payment) == 0 {
		id := types.ObjectID(types.Blake2b256([]byte("gas_coin"), r.ctx.Digest[:]))
		coin := framework.CoinValue(id, types.StructTypeTag(framework.SUITag), r.ctx.Gas.Budget)

		contents, err := vm.Serialize(coin)
		if err != nil {
			return err
		}

		obj := types.NewVersionedObject(id, 0, framework.GasCoinType(), contents, types.AddressOwner(r.ctx.Sender))
		if _, err := r.txn.Track(obj, true); err != nil {
			return err
		}

		t := framework.GasCoinType()
		r.synthetic = &id
		r.gasCoin = &argSlot{object: &id, value: coin, typ: &t, mutable: true, owned: true, gas: true}

		return nil
	}

	primary := payment[0]

	value, err := r.vm().Deserialize(primary.Type, primary.Contents)
	if err != nil {
		return fmt.Errorf("gas coin %s: %w", primary.ID, err)
	}

	total, err := framework.CoinBalance(value)
	if err != nil {
		return err
	}

	for _, extra := range payment[1:] {
		v, err := r.vm().Deserialize(extra.Type, extra.Contents)
		if err != nil {
			return fmt.Errorf("gas coin %s: %w", extra.ID, err)
		}

		balance, err := framework.CoinBalance(v)
		if err != nil {
			return err
		}

		total += balance

		if err := r.txn.Delete(extra.ID); err != nil {
			return err
		}
	}

	if total < r.ctx.Gas.Budget {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientGas, total, r.ctx.Gas.Budget)
	}

	if len(payment) > 1 {
		if err := framework.SetCoinBalance(value, total); err != nil {
			return err
		}

		contents, err := vm.Serialize(value)
		if err != nil {
			return err
		}

		if err := r.txn.Mutate(primary.ID, contents); err != nil {
			return err
		}
	}

	id := primary.ID
	t := primary.Type
	r.gasCoin = &argSlot{object: &id, value: value, typ: &t, mutable: true, owned: true, gas: true}

	return nil
}

// checkConsensus validates shared inputs against transactions already
// recorded in the consensus log
func (r *run) checkConsensus() error {
	if r.consensus == nil || len(r.sharedInputs) == 0 {
		return nil
	}

	seq := r.sequence()

	for _, id := range r.sharedIDs() {
		slot, ok := r.txn.Get(id)
		if !ok {
			continue
		}

		if err := r.consensus.Check(seq, id, slot.InputVersion, r.sharedInputs[id]); err != nil {
			return &vm.ExecutionError{Kind: vm.KindSerializationConflict, Err: err}
		}
	}

	return nil
}

// sharedIDs returns the shared inputs in ascending id order
func (r *run) sharedIDs() []types.ObjectID {
	ids := make([]types.ObjectID, 0, len(r.sharedInputs))
	for id := range r.sharedInputs {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	return ids
}

func (r *run) sequence() uint64 {
	if r.ctx.ConsensusSequence != nil {
		return *r.ctx.ConsensusSequence
	}

	seq := r.consensus.NextSequence()
	r.ctx.ConsensusSequence = &seq

	return seq
}
