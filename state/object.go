package state

import (
	"fmt"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// SlotState is the lifecycle position of an object within one execution
type SlotState uint8

const (
	Absent SlotState = iota
	Loaded
	Created
	Received
	Unwrapped
	Mutated
	Transferred
	Wrapped
	Deleted
	Unchanged
)

var slotStateNames = map[SlotState]string{
	Absent:      "Absent",
	Loaded:      "Loaded",
	Created:     "Created",
	Received:    "Received",
	Unwrapped:   "Unwrapped",
	Mutated:     "Mutated",
	Transferred: "Transferred",
	Wrapped:     "Wrapped",
	Deleted:     "Deleted",
	Unchanged:   "Unchanged",
}

func (s SlotState) String() string {
	if name, ok := slotStateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("SlotState(%d)", uint8(s))
}

// Terminal states accept no further transitions
func (s SlotState) Terminal() bool {
	switch s {
	case Transferred, Wrapped, Deleted, Unchanged:
		return true
	default:
		return false
	}
}

var transitions = map[SlotState][]SlotState{
	Absent:    {Loaded, Created, Received, Unwrapped},
	Loaded:    {Mutated, Transferred, Wrapped, Deleted, Unchanged},
	Received:  {Mutated, Transferred, Wrapped, Deleted},
	Created:   {Mutated, Transferred, Wrapped, Deleted},
	Unwrapped: {Mutated, Transferred, Wrapped, Deleted},
	Mutated:   {Mutated, Transferred, Wrapped, Deleted},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to SlotState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// Slot is one object tracked by a transaction. Slots stored in the table
// are never modified in place; updates insert a copy.
type Slot struct {
	ID      types.ObjectID
	Type    types.TypeTag
	Owner   types.Owner
	State   SlotState
	Origin  SlotState
	Mutable bool

	// InputVersion is the version the object was loaded at, zero for
	// objects that did not exist before the transaction
	InputVersion uint64
	InputSize    int
	Version      uint64
	Contents     []byte

	// Dirty is set once the contents or owner were written
	Dirty bool
}

func (s *Slot) clone() *Slot {
	cp := *s
	cp.Type = s.Type.Clone()
	cp.Contents = types.CopyBytes(s.Contents)

	return &cp
}

// Object materializes the slot at its current version
func (s *Slot) Object() *types.VersionedObject {
	obj := types.NewVersionedObject(s.ID, s.Version, s.Type, s.Contents, s.Owner)

	return obj
}

// IsChild reports whether the slot is owned by another object
func (s *Slot) IsChild() bool {
	return s.Owner.Kind == types.OwnerObject
}

// Existed reports whether the object was present before the transaction
func (s *Slot) Existed() bool {
	return s.Origin == Loaded || s.Origin == Received
}

// Written reports whether the slot receives a new version at commit
func (s *Slot) Written() bool {
	switch s.State {
	case Mutated, Transferred, Created, Unwrapped, Received:
		return true
	case Loaded:
		return s.Mutable
	default:
		return false
	}
}
