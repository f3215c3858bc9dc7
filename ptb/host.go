package ptb

import (
	"errors"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/framework"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/state"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/vm"
)

var _ framework.Host = (*run)(nil)

// childValue is a dynamic field object live in the execution
type childValue struct {
	field *vm.Struct
	dirty bool
}

func (r *run) CreateObject(id types.ObjectID) {
	r.created[id] = struct{}{}
}

// DeleteObject drops an object by id. Objects that were never placed in the
// table were either created here, leaving no trace, or unwrapped from a
// value loaded by the transaction.
func (r *run) DeleteObject(id types.ObjectID) error {
	delete(r.moved, id)

	if r.txn.State(id) != state.Absent {
		return r.txn.Delete(id)
	}

	if _, ok := r.created[id]; ok {
		delete(r.created, id)

		return nil
	}

	r.unwrappedDeleted = append(r.unwrappedDeleted, id)

	return nil
}

func (r *run) TransferObject(obj *vm.Struct, owner types.Owner) error {
	return r.transferValue(obj, owner)
}

// place makes sure the object is in the table before it changes owner
func (r *run) place(id types.ObjectID, t types.TypeTag, contents []byte, owner types.Owner) error {
	switch r.txn.State(id) {
	case state.Absent:
		if _, ok := r.created[id]; ok {
			delete(r.created, id)

			return r.txn.Create(id, t, contents, owner)
		}

		return r.txn.Unwrap(id, t, contents, owner)
	case state.Wrapped:
		return r.txn.Unwrap(id, t, contents, owner)
	default:
		return nil
	}
}

func (r *run) transferValue(obj *vm.Struct, owner types.Owner) error {
	id, err := framework.ObjectIDOf(obj)
	if err != nil {
		return err
	}

	contents, err := vm.Serialize(obj)
	if err != nil {
		return err
	}

	if err := r.place(id, types.StructTypeTag(obj.Type), contents, owner); err != nil {
		return err
	}

	delete(r.moved, id)

	return r.txn.Transfer(id, contents, owner)
}

// returnToSender hands an unconsumed object result back to the sender.
// Objects created by the transaction are reported as created only.
func (r *run) returnToSender(obj *vm.Struct) error {
	id, err := framework.ObjectIDOf(obj)
	if err != nil {
		return err
	}

	owner := types.AddressOwner(r.ctx.Sender)

	if _, ok := r.created[id]; ok && r.txn.State(id) == state.Absent {
		contents, err := vm.Serialize(obj)
		if err != nil {
			return err
		}

		delete(r.created, id)
		delete(r.moved, id)

		return r.txn.Create(id, types.StructTypeTag(obj.Type), contents, owner)
	}

	return r.transferValue(obj, owner)
}

func (r *run) EmitEvent(module types.ModuleID, t types.TypeTag, contents []byte) error {
	r.events = append(r.events, types.Event{
		Type:      t.Clone(),
		PackageID: module.Address,
		Module:    module.Name,
		Sender:    r.ctx.Sender,
		BCS:       types.CopyBytes(contents),
	})

	return nil
}

func childKey(req framework.ChildRequest) state.ChildKey {
	return state.ChildKey{
		Parent:    req.Parent,
		Child:     req.Child,
		KeyType:   req.KeyType,
		KeyBytes:  req.KeyBytes,
		ValueType: req.ValueType,
	}
}

func (r *run) AddChild(req framework.ChildRequest, field *vm.Struct) error {
	if _, ok := r.children[req.Child]; ok {
		return framework.ErrFieldExists
	}

	key := childKey(req)

	_, err := r.txn.Child(key)

	switch {
	case err == nil:
		return framework.ErrFieldExists
	case !errors.Is(err, state.ErrChildNotFound):
		return err
	}

	contents, err := vm.Serialize(field)
	if err != nil {
		return err
	}

	if err := r.txn.AddChild(key, types.StructTypeTag(field.Type), contents); err != nil {
		return err
	}

	r.children[req.Child] = &childValue{field: field}

	return nil
}

// loadChild returns the live field, reading it through the table on a
// miss. Misses are recorded for lookups that expect the field to exist.
func (r *run) loadChild(req framework.ChildRequest, record bool) (*childValue, error) {
	if c, ok := r.children[req.Child]; ok {
		return c, nil
	}

	key := childKey(req)
	before := r.txn.State(req.Child)

	slot, err := r.txn.Child(key)
	if err != nil {
		if !errors.Is(err, state.ErrChildNotFound) {
			return nil, err
		}

		if record && before == state.Absent {
			r.recordMissing(key)
		}

		return nil, framework.ErrFieldMissing
	}

	v, err := r.vm().Deserialize(slot.Type, slot.Contents)
	if err != nil {
		return nil, err
	}

	field, err := vm.AsStruct(v)
	if err != nil {
		return nil, err
	}

	c := &childValue{field: field}
	r.children[req.Child] = c

	return c, nil
}

func (r *run) recordMissing(key state.ChildKey) {
	for _, k := range r.missingChildren {
		if k.Child == key.Child {
			return
		}
	}

	r.missingChildren = append(r.missingChildren, key)

	r.logger.Debug("child missing", "parent", key.Parent, "child", key.Child, "key_type", key.KeyType)
}

func checkFieldType(req framework.ChildRequest, field *vm.Struct) error {
	if ft := req.FieldType(); ft != nil && !ft.Equal(types.StructTypeTag(field.Type)) {
		return framework.ErrFieldTypeMismatch
	}

	return nil
}

func (r *run) BorrowChild(req framework.ChildRequest, mutable bool) (*vm.Struct, error) {
	c, err := r.loadChild(req, true)
	if err != nil {
		return nil, err
	}

	if err := checkFieldType(req, c.field); err != nil {
		return nil, err
	}

	if mutable {
		c.dirty = true
	}

	return c.field, nil
}

func (r *run) RemoveChild(req framework.ChildRequest) (*vm.Struct, error) {
	c, err := r.loadChild(req, true)
	if err != nil {
		return nil, err
	}

	if err := checkFieldType(req, c.field); err != nil {
		return nil, err
	}

	if err := r.txn.Delete(req.Child); err != nil {
		return nil, err
	}

	delete(r.children, req.Child)

	return c.field, nil
}

func (r *run) ChildExists(req framework.ChildRequest) (bool, error) {
	c, err := r.loadChild(req, false)
	if errors.Is(err, framework.ErrFieldMissing) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return checkFieldType(req, c.field) == nil, nil
}

// ReceiveObject takes an object sent to parent. A receive that cannot be
// satisfied fails the transaction rather than the execution.
func (r *run) ReceiveObject(parent, id types.ObjectID, version uint64, t types.TypeTag) (*vm.Struct, error) {
	slot, err := r.txn.Receive(parent, id, version)
	if err != nil {
		return nil, vm.NewError(vm.KindMissingObject, "receiving %s: %v", id, err)
	}

	if !slot.Type.Equal(t) {
		return nil, vm.NewError(vm.KindTypeError, "received %s is %s, not %s", id, slot.Type, t)
	}

	v, err := r.vm().Deserialize(slot.Type, slot.Contents)
	if err != nil {
		return nil, err
	}

	obj, err := vm.AsStruct(v)
	if err != nil {
		return nil, err
	}

	r.moved[id] = struct{}{}

	return obj, nil
}
