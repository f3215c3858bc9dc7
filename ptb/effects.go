package ptb

import (
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/bytecode"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

// executionError classifies an error raised while running commands
func executionError(err error) *vm.ExecutionError {
	var (
		ee       *vm.ExecutionError
		conflict *state.SerializationConflict
	)

	switch {
	case errors.As(err, &ee):
		return ee
	case errors.As(err, &conflict):
		return &vm.ExecutionError{Kind: vm.KindSerializationConflict, Err: err}
	case errors.Is(err, state.ErrInvalidTransition),
		errors.Is(err, state.ErrImmutableObject),
		errors.Is(err, state.ErrSharedOwnership),
		errors.Is(err, state.ErrObjectExists):
		return &vm.ExecutionError{Kind: vm.KindInvalidTransition, Err: err}
	default:
		return vm.AsExecutionError(err)
	}
}

// finalize writes back what the commands left behind: dirty inputs and
// children, unconsumed results and objects that vanished into other values
func (r *run) finalize() error {
	for _, s := range append([]*argSlot{r.gasCoin}, r.inputs...) {
		if s == nil || s.object == nil || s.receiving != nil || s.moved || !s.dirty {
			continue
		}

		contents, err := vm.Serialize(s.value)
		if err != nil {
			return err
		}

		if err := r.txn.Mutate(*s.object, contents); err != nil {
			return err
		}
	}

	for i, res := range r.results {
		for j, s := range res {
			if s.moved {
				continue
			}

			abilities, err := r.vm().Abilities(*s.typ)
			if err != nil {
				return err
			}

			switch {
			case abilities.Has(bytecode.AbilityDrop):
			case abilities.Has(bytecode.AbilityKey):
				obj, err := vm.AsStruct(s.value)
				if err != nil {
					return err
				}

				if err := r.returnToSender(obj); err != nil {
					return err
				}

				s.moved = true
			default:
				return vm.NewError(vm.KindUnusedValue, "value %d of command %d of type %s is unused", j, i, s.typ)
			}
		}
	}

	for id, c := range r.children {
		if !c.dirty {
			continue
		}

		contents, err := vm.Serialize(c.field)
		if err != nil {
			return err
		}

		if err := r.txn.Mutate(id, contents); err != nil {
			return err
		}
	}

	for id := range r.moved {
		switch r.txn.State(id) {
		case state.Loaded, state.Mutated, state.Received, state.Created, state.Unwrapped:
			if err := r.txn.Wrap(id); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *run) isSynthetic(id types.ObjectID) bool {
	return r.synthetic != nil && *r.synthetic == id
}

// chargeGasCoin takes the transaction cost out of the gas coin
func (r *run) chargeGasCoin(cost uint64) error {
	if r.synthetic != nil || r.gasCoin == nil {
		return nil
	}

	slot, ok := r.txn.Get(*r.gasCoin.object)
	if !ok || !slot.Written() {
		return nil
	}

	coin, err := r.decoder.Deserialize(slot.Type, slot.Contents)
	if err != nil {
		return err
	}

	balance, err := framework.CoinBalance(coin)
	if err != nil {
		return err
	}

	if cost > balance {
		cost = balance
	}

	if err := framework.SetCoinBalance(coin, balance-cost); err != nil {
		return err
	}

	contents, err := vm.Serialize(coin)
	if err != nil {
		return err
	}

	return r.txn.Overwrite(slot.ID, contents)
}

// trackStorage feeds the storage charges. Reads cover every object that
// existed, including ones loaded by commands later rolled back.
func (r *run) trackStorage(reads []*state.Slot) {
	tracker := r.charger.Tracker()

	for _, s := range reads {
		if s.Existed() && !r.isSynthetic(s.ID) {
			tracker.Read(s.ID, s.InputSize)
		}
	}

	for _, s := range r.txn.Slots() {
		if r.isSynthetic(s.ID) {
			continue
		}

		previous := 0
		if s.Existed() {
			previous = s.InputSize
		}

		switch {
		case (s.State == state.Deleted || s.State == state.Wrapped) && s.Existed():
			tracker.Delete(s.ID, previous)
		case s.Written():
			tracker.Write(s.ID, len(s.Contents), previous)
		}
	}
}

func (r *run) conclude(reads []*state.Slot, succeeded, failed int, execErr *vm.ExecutionError) (*Result, error) {
	r.trackStorage(reads)

	summary := r.charger.Summary()

	if err := r.chargeGasCoin(summary.Total); err != nil {
		return nil, err
	}

	written := r.txn.Commit()
	lamport := r.txn.Lamport()

	effects := &types.TransactionEffects{
		Success:           execErr == nil,
		GasUsed:           summary.Total,
		GasSummary:        summary,
		Events:            r.events,
		ReturnValues:      r.returnValues,
		CommandsSucceeded: succeeded,
		LamportVersion:    lamport,
	}

	if execErr != nil {
		effects.Error = execErr.Error()
		effects.ErrorKind = string(execErr.Kind)

		if failed >= 0 {
			effects.FailedCommandIndex = &failed
		}
	}

	res := &Result{Effects: effects, MissingChildren: r.missingChildren, Err: execErr}

	for _, s := range r.txn.Slots() {
		if r.isSynthetic(s.ID) {
			continue
		}

		op := describe(effects, s)
		if op == "" {
			continue
		}

		effects.ObjectChanges = append(effects.ObjectChanges, objectChange(s, op))

		if s.State == state.Deleted || s.State == state.Wrapped {
			res.Deleted = append(res.Deleted, s.ID)
		}
	}

	for _, id := range r.unwrappedDeleted {
		effects.Deleted = append(effects.Deleted, id)
		res.Deleted = append(res.Deleted, id)
	}

	for _, pkg := range r.packages {
		effects.Created = append(effects.Created, pkg.Address)
	}

	for _, obj := range written {
		if !r.isSynthetic(obj.ID) {
			res.Written = append(res.Written, obj)
		}
	}

	res.Packages = r.packages

	effects.SortLists()

	r.recordConsensus(execErr, lamport)

	r.logger.Debug("transaction executed",
		"digest", r.ctx.Digest,
		"success", effects.Success,
		"gas", summary.Total,
		"lamport", lamport,
		"written", len(res.Written),
	)

	return res, nil
}

// describe files one slot into the effects lists and names its operation
func describe(effects *types.TransactionEffects, s *state.Slot) string {
	gone := s.State == state.Deleted || s.State == state.Wrapped

	if s.State == state.Transferred && s.Owner.Kind == types.OwnerAddress {
		effects.Transferred = append(effects.Transferred, s.ID)
	}

	if s.Origin == state.Received {
		effects.Received = append(effects.Received, s.ID)
	}

	switch {
	case s.Origin == state.Created:
		if gone {
			return ""
		}

		effects.Created = append(effects.Created, s.ID)

		return "created"
	case s.State == state.Deleted:
		effects.Deleted = append(effects.Deleted, s.ID)

		return "deleted"
	case s.State == state.Wrapped:
		effects.Wrapped = append(effects.Wrapped, s.ID)

		return "wrapped"
	case s.Origin == state.Unwrapped:
		effects.Unwrapped = append(effects.Unwrapped, s.ID)

		return "unwrapped"
	case s.Existed() && s.Written():
		effects.Mutated = append(effects.Mutated, s.ID)

		if s.State == state.Transferred {
			return "transferred"
		}

		return "mutated"
	default:
		return ""
	}
}

func objectChange(s *state.Slot, op string) types.ObjectChange {
	c := types.ObjectChange{ID: s.ID, Type: s.Type.Clone(), Operation: op}

	if s.Existed() {
		v := s.InputVersion
		c.InputVersion = &v
	}

	if s.Written() {
		v := s.Version
		owner := s.Owner
		c.OutputVersion = &v
		c.Owner = &owner
	}

	return c
}

// recordConsensus appends the shared object footprint of the transaction
// to the consensus log. Transactions rejected for a conflict leave none.
func (r *run) recordConsensus(execErr *vm.ExecutionError, lamport uint64) {
	if r.consensus == nil || len(r.sharedInputs) == 0 {
		return
	}

	if execErr != nil && execErr.Kind == vm.KindSerializationConflict {
		return
	}

	entry := state.ConsensusEntry{
		Sequence: r.sequence(),
		Reads:    map[types.ObjectID]uint64{},
		Writes:   map[types.ObjectID]uint64{},
	}

	for _, id := range r.sharedIDs() {
		slot, ok := r.txn.Get(id)
		if !ok {
			continue
		}

		entry.Reads[id] = slot.InputVersion

		if r.sharedInputs[id] {
			entry.Writes[id] = lamport
		}
	}

	r.consensus.Record(entry)
}
