// Package state is the per-execution object runtime: a table of object
// slots with snapshot and revert, the Lamport clock, lazily fetched
// dynamic field children and shared object ordering checks.
package state

import (
	"errors"
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	iradix "github.com/hashicorp/go-immutable-radix"
)

var (
	ErrObjectNotFound    = errors.New("object not found")
	ErrObjectExists      = errors.New("object already tracked")
	ErrVersionMismatch   = errors.New("object version mismatch")
	ErrInvalidTransition = errors.New("invalid object state transition")
	ErrImmutableObject   = errors.New("object is immutable")
	ErrSharedOwnership   = errors.New("invalid shared object ownership change")
)

// ObjectReader serves objects as they were before the transaction
type ObjectReader interface {
	GetObject(id types.ObjectID) (*types.VersionedObject, bool)
}

// TransitionError is returned for a move the state machine forbids
type TransitionError struct {
	ID   types.ObjectID
	From SlotState
	To   SlotState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s for %s", ErrInvalidTransition, e.From, e.To, e.ID)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Txn is the object table of one execution
type Txn struct {
	logger    hclog.Logger
	reader    ObjectReader
	fetchers  ChildFetchers
	snapshots []*iradix.Tree
	txn       *iradix.Txn

	lamport uint64
}

func NewTxn(logger hclog.Logger, reader ObjectReader, fetchers ChildFetchers) *Txn {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Txn{
		logger:    logger.Named("runtime"),
		reader:    reader,
		fetchers:  fetchers,
		snapshots: []*iradix.Tree{},
		txn:       iradix.New().Txn(),
	}
}

// Snapshot takes a snapshot at this point in time
func (txn *Txn) Snapshot() int {
	t := txn.txn.CommitOnly()

	id := len(txn.snapshots)
	txn.snapshots = append(txn.snapshots, t)

	return id
}

// RevertToSnapshot reverts the table to a given snapshot. The Lamport
// clock is not rolled back.
func (txn *Txn) RevertToSnapshot(id int) {
	if id >= len(txn.snapshots) {
		panic(fmt.Sprintf("revert to unknown snapshot %d", id))
	}

	tree := txn.snapshots[id]
	txn.txn = tree.Txn()
}

// BeginLamport sets the clock to one past the highest input version
func (txn *Txn) BeginLamport(inputVersions ...uint64) {
	var highest uint64

	for _, v := range inputVersions {
		if v > highest {
			highest = v
		}
	}

	txn.lamport = highest + 1
}

// Lamport is the version every object written by the transaction receives
func (txn *Txn) Lamport() uint64 {
	return txn.lamport
}

// observe keeps the clock strictly above every version read
func (txn *Txn) observe(version uint64) {
	if version >= txn.lamport {
		txn.lamport = version + 1
	}
}

func (txn *Txn) get(id types.ObjectID) (*Slot, bool) {
	v, ok := txn.txn.Get(id[:])
	if !ok {
		return nil, false
	}

	slot, ok := v.(*Slot)

	return slot, ok
}

func (txn *Txn) put(s *Slot) {
	txn.txn.Insert(s.ID.Bytes(), s)
}

// Get returns a copy of the slot for id
func (txn *Txn) Get(id types.ObjectID) (*Slot, bool) {
	s, ok := txn.get(id)
	if !ok {
		return nil, false
	}

	return s.clone(), true
}

func (txn *Txn) State(id types.ObjectID) SlotState {
	s, ok := txn.get(id)
	if !ok {
		return Absent
	}

	return s.State
}

func (txn *Txn) insert(obj *types.VersionedObject, to SlotState, mutable bool) (*Slot, error) {
	if existing, ok := txn.get(obj.ID); ok {
		return nil, &TransitionError{ID: obj.ID, From: existing.State, To: to}
	}

	slot := &Slot{
		ID:           obj.ID,
		Type:         obj.Type.Clone(),
		Owner:        obj.EffectiveOwner(),
		State:        to,
		Origin:       to,
		Mutable:      mutable,
		InputVersion: obj.Version,
		InputSize:    len(obj.BCS),
		Version:      obj.Version,
		Contents:     types.CopyBytes(obj.BCS),
	}

	txn.observe(obj.Version)
	txn.put(slot)

	return slot.clone(), nil
}

// Track adds an object the caller already holds, in the Loaded state
func (txn *Txn) Track(obj *types.VersionedObject, mutable bool) (*Slot, error) {
	return txn.insert(obj, Loaded, mutable)
}

// LoadInput reads an input object from the reader. A zero version accepts
// whatever version the reader holds.
func (txn *Txn) LoadInput(id types.ObjectID, version uint64, mutable bool) (*Slot, error) {
	if s, ok := txn.get(id); ok {
		if version != 0 && s.InputVersion != version {
			return nil, fmt.Errorf("%w: %s tracked at %d, requested %d", ErrVersionMismatch, id, s.InputVersion, version)
		}

		return s.clone(), nil
	}

	obj, ok := txn.reader.GetObject(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	if version != 0 && obj.Version != version {
		return nil, fmt.Errorf("%w: %s is at %d, input wants %d", ErrVersionMismatch, id, obj.Version, version)
	}

	if obj.IsImmutable {
		mutable = false
	}

	return txn.insert(obj, Loaded, mutable)
}

// Receive takes an object sent to parent by an earlier transaction
func (txn *Txn) Receive(parent, id types.ObjectID, version uint64) (*Slot, error) {
	obj, ok := txn.reader.GetObject(id)
	if !ok {
		return nil, fmt.Errorf("%w: receiving %s", ErrObjectNotFound, id)
	}

	if obj.Version != version {
		return nil, fmt.Errorf("%w: receiving %s at %d, found %d", ErrVersionMismatch, id, version, obj.Version)
	}

	owner := obj.EffectiveOwner()
	if owner.Kind != types.OwnerAddress || owner.Address != parent {
		return nil, fmt.Errorf("%w: %s is not owned by %s", ErrObjectNotFound, id, parent)
	}

	return txn.insert(obj, Received, true)
}

// Create tracks an object that did not exist before the transaction
func (txn *Txn) Create(id types.ObjectID, t types.TypeTag, contents []byte, owner types.Owner) error {
	if _, ok := txn.get(id); ok {
		return fmt.Errorf("%w: %s", ErrObjectExists, id)
	}

	txn.put(&Slot{
		ID:       id,
		Type:     t.Clone(),
		Owner:    owner,
		State:    Created,
		Origin:   Created,
		Mutable:  true,
		Contents: types.CopyBytes(contents),
		Dirty:    true,
	})

	return nil
}

// Unwrap tracks an object that reappeared from inside another object
func (txn *Txn) Unwrap(id types.ObjectID, t types.TypeTag, contents []byte, owner types.Owner) error {
	if s, ok := txn.get(id); ok {
		// wrapped and unwrapped within the same transaction
		if s.State == Wrapped {
			cp := s.clone()
			cp.State = Mutated
			cp.Owner = owner
			cp.Contents = types.CopyBytes(contents)
			cp.Dirty = true

			if s.Origin == Created {
				cp.State = Created
			}

			txn.put(cp)

			return nil
		}

		return &TransitionError{ID: id, From: s.State, To: Unwrapped}
	}

	txn.put(&Slot{
		ID:       id,
		Type:     t.Clone(),
		Owner:    owner,
		State:    Unwrapped,
		Origin:   Unwrapped,
		Mutable:  true,
		Contents: types.CopyBytes(contents),
		Dirty:    true,
	})

	return nil
}

func (txn *Txn) transition(id types.ObjectID, to SlotState, apply func(*Slot) error) error {
	s, ok := txn.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	if !CanTransition(s.State, to) {
		return &TransitionError{ID: id, From: s.State, To: to}
	}

	cp := s.clone()
	cp.State = to

	if apply != nil {
		if err := apply(cp); err != nil {
			return err
		}
	}

	txn.put(cp)

	return nil
}

func checkWritable(s *Slot) error {
	switch {
	case s.Owner.Kind == types.OwnerImmutable:
		return fmt.Errorf("%w: %s", ErrImmutableObject, s.ID)
	case s.Owner.Kind == types.OwnerShared && s.Existed() && !s.Mutable:
		return fmt.Errorf("%w: shared %s taken by immutable reference", ErrImmutableObject, s.ID)
	default:
		return nil
	}
}

// Mutate records new contents for a tracked object. Created objects stay
// Created so they are reported as such.
func (txn *Txn) Mutate(id types.ObjectID, contents []byte) error {
	s, ok := txn.get(id)
	if ok && (s.State == Created || s.State == Unwrapped) {
		cp := s.clone()
		cp.Contents = types.CopyBytes(contents)
		cp.Dirty = true
		txn.put(cp)

		return nil
	}

	return txn.transition(id, Mutated, func(s *Slot) error {
		if err := checkWritable(s); err != nil {
			return err
		}

		s.Contents = types.CopyBytes(contents)
		s.Dirty = true

		return nil
	})
}

// Overwrite replaces the contents of a slot that is written at commit
// without moving it through the state machine. Gas charging uses it once
// execution is over.
func (txn *Txn) Overwrite(id types.ObjectID, contents []byte) error {
	s, ok := txn.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	if !s.Written() {
		return &TransitionError{ID: id, From: s.State, To: s.State}
	}

	cp := s.clone()
	cp.Contents = types.CopyBytes(contents)
	cp.Dirty = true
	txn.put(cp)

	return nil
}

// Transfer sets a new owner. Shared objects cannot change owner and only
// objects created by this transaction can become shared.
func (txn *Txn) Transfer(id types.ObjectID, contents []byte, owner types.Owner) error {
	return txn.transition(id, Transferred, func(s *Slot) error {
		if err := checkWritable(s); err != nil {
			return err
		}

		switch {
		case s.Owner.Kind == types.OwnerShared && s.Existed():
			if owner.Kind != types.OwnerShared {
				return fmt.Errorf("%w: %s is shared", ErrSharedOwnership, id)
			}

			owner = s.Owner
		case owner.Kind == types.OwnerShared && s.Existed():
			return fmt.Errorf("%w: %s was not created by this transaction", ErrSharedOwnership, id)
		}

		s.Owner = owner
		s.Contents = types.CopyBytes(contents)
		s.Dirty = true

		return nil
	})
}

// Wrap records that the object now lives inside another object
func (txn *Txn) Wrap(id types.ObjectID) error {
	return txn.transition(id, Wrapped, func(s *Slot) error {
		if s.Owner.Kind == types.OwnerShared && s.Existed() {
			return fmt.Errorf("%w: shared %s cannot be wrapped", ErrSharedOwnership, id)
		}

		return nil
	})
}

func (txn *Txn) Delete(id types.ObjectID) error {
	return txn.transition(id, Deleted, func(s *Slot) error {
		if s.Owner.Kind == types.OwnerImmutable {
			return fmt.Errorf("%w: %s", ErrImmutableObject, id)
		}

		return nil
	})
}

// Child returns the dynamic field child named by key, loading it from the
// reader or the child fetchers on a miss
func (txn *Txn) Child(key ChildKey) (*Slot, error) {
	if s, ok := txn.get(key.Child); ok {
		if s.State == Deleted || s.State == Wrapped || s.Owner != types.ObjectOwner(key.Parent) {
			return nil, ErrChildNotFound
		}

		return s.clone(), nil
	}

	obj, ok := txn.reader.GetObject(key.Child)
	if !ok {
		if txn.fetchers.Empty() {
			return nil, ErrChildNotFound
		}

		fetched, err := txn.fetchers.fetch(key, txn.lamport)
		if err != nil {
			return nil, err
		}

		txn.logger.Debug("fetched child", "parent", key.Parent, "child", key.Child, "version", fetched.Version)

		obj = fetched
	}

	if owner := obj.EffectiveOwner(); owner.Kind != types.OwnerObject || owner.Address != key.Parent {
		return nil, ErrChildNotFound
	}

	return txn.insert(obj, Loaded, false)
}

// AddChild attaches a new dynamic field object to parent. Re-adding a field
// removed earlier in the same transaction revives its slot.
func (txn *Txn) AddChild(key ChildKey, t types.TypeTag, contents []byte) error {
	owner := types.ObjectOwner(key.Parent)

	if s, ok := txn.get(key.Child); ok {
		if s.State != Deleted {
			return fmt.Errorf("%w: %s", ErrObjectExists, key.Child)
		}

		cp := s.clone()
		cp.State = Mutated
		cp.Owner = owner
		cp.Type = t.Clone()
		cp.Contents = types.CopyBytes(contents)
		cp.Dirty = true

		if s.Origin == Created {
			cp.State = Created
		}

		txn.put(cp)

		return nil
	}

	return txn.Create(key.Child, t, contents, owner)
}

// Slots returns copies of every tracked slot ordered by id
func (txn *Txn) Slots() []*Slot {
	var out []*Slot

	txn.txn.Root().Walk(func(_ []byte, v interface{}) bool {
		if s, ok := v.(*Slot); ok {
			out = append(out, s.clone())
		}

		return false
	})

	return out
}

// Commit closes the transaction: untouched loaded objects become Unchanged,
// written objects receive the Lamport version and newly shared objects
// their initial shared version. It returns the written objects.
func (txn *Txn) Commit() []*types.VersionedObject {
	var written []*types.VersionedObject

	for _, s := range txn.Slots() {
		if !s.Written() {
			if s.State == Loaded {
				s.State = Unchanged
				txn.put(s)
			}

			continue
		}

		s.Version = txn.lamport

		if s.Owner.Kind == types.OwnerShared && s.Owner.InitialSharedVersion == 0 {
			s.Owner.InitialSharedVersion = txn.lamport
		}

		txn.put(s)
		written = append(written, s.Object())
	}

	return written
}
