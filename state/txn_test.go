package state

import (
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender  = types.MustParseAddress("0xa11ce")
	coinTag = types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
	obj1    = types.MustParseAddress("0x101")
	obj2    = types.MustParseAddress("0x102")
	shared1 = types.MustParseAddress("0x5a")
	parent  = types.MustParseAddress("0xf1")
)

type mockReader map[types.ObjectID]*types.VersionedObject

func (m mockReader) GetObject(id types.ObjectID) (*types.VersionedObject, bool) {
	obj, ok := m[id]

	return obj, ok
}

func (m mockReader) add(obj *types.VersionedObject) {
	m[obj.ID] = obj
}

func defaultReader() mockReader {
	r := mockReader{}
	r.add(types.NewVersionedObject(obj1, 10, coinTag, []byte{1, 2, 3}, types.AddressOwner(sender)))
	r.add(types.NewVersionedObject(obj2, 4, coinTag, []byte{4}, types.AddressOwner(sender)))
	r.add(types.NewVersionedObject(shared1, 5, coinTag, []byte{5}, types.SharedOwner(2)))

	return r
}

func newTestTxn(r mockReader) *Txn {
	return NewTxn(nil, r, ChildFetchers{})
}

func TestSnapshotRevert(t *testing.T) {
	t.Parallel()

	txn := newTestTxn(defaultReader())

	_, err := txn.LoadInput(obj1, 10, true)
	require.NoError(t, err)

	ss := txn.Snapshot()

	require.NoError(t, txn.Mutate(obj1, []byte{9}))
	require.NoError(t, txn.Create(obj2, coinTag, []byte{7}, types.AddressOwner(sender)))
	assert.Equal(t, Mutated, txn.State(obj1))

	txn.RevertToSnapshot(ss)

	s, ok := txn.Get(obj1)
	require.True(t, ok)
	assert.Equal(t, Loaded, s.State)
	assert.Equal(t, []byte{1, 2, 3}, s.Contents)
	assert.Equal(t, Absent, txn.State(obj2))
}

func TestStateMachine(t *testing.T) {
	t.Parallel()

	txn := newTestTxn(defaultReader())

	_, err := txn.LoadInput(obj1, 10, true)
	require.NoError(t, err)

	require.NoError(t, txn.Mutate(obj1, []byte{1}))
	require.NoError(t, txn.Mutate(obj1, []byte{2}))
	require.NoError(t, txn.Delete(obj1))

	err = txn.Mutate(obj1, []byte{3})
	require.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Deleted, te.From)

	_, err = txn.LoadInput(obj1, 10, true)
	require.NoError(t, err)

	_, err = txn.LoadInput(obj2, 5, true)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	assert.True(t, CanTransition(Absent, Received))
	assert.False(t, CanTransition(Transferred, Mutated))
	assert.False(t, CanTransition(Created, Unchanged))
	assert.True(t, Unchanged.Terminal())
}

func TestSharedObjectRules(t *testing.T) {
	t.Parallel()

	txn := newTestTxn(defaultReader())

	_, err := txn.LoadInput(shared1, 0, false)
	require.NoError(t, err)

	assert.ErrorIs(t, txn.Mutate(shared1, []byte{1}), ErrImmutableObject)

	_, err = txn.LoadInput(obj1, 10, true)
	require.NoError(t, err)

	assert.ErrorIs(t, txn.Transfer(obj1, []byte{1}, types.SharedOwner(0)), ErrSharedOwnership)

	id := types.MustParseAddress("0xc0")
	require.NoError(t, txn.Create(id, coinTag, []byte{1}, types.AddressOwner(sender)))
	require.NoError(t, txn.Transfer(id, []byte{1}, types.SharedOwner(0)))
}

func TestLamportVersions(t *testing.T) {
	t.Parallel()

	txn := newTestTxn(defaultReader())

	_, err := txn.LoadInput(obj1, 10, true)
	require.NoError(t, err)

	_, err = txn.LoadInput(obj2, 4, false)
	require.NoError(t, err)

	_, err = txn.LoadInput(shared1, 5, true)
	require.NoError(t, err)

	txn.BeginLamport(10, 4, 5)
	assert.Equal(t, uint64(11), txn.Lamport())

	require.NoError(t, txn.Transfer(obj1, []byte{1}, types.AddressOwner(parent)))

	created := types.MustParseAddress("0xc1")
	require.NoError(t, txn.Create(created, coinTag, []byte{2}, types.SharedOwner(0)))

	written := txn.Commit()
	require.Len(t, written, 3)

	reads := map[types.ObjectID]uint64{obj1: 10, obj2: 4, shared1: 5}

	for _, obj := range written {
		assert.Equal(t, uint64(11), obj.Version)

		for _, read := range reads {
			assert.Greater(t, obj.Version, read)
		}

		if obj.ID == created {
			assert.Equal(t, uint64(11), obj.Owner.InitialSharedVersion)
		}
	}

	assert.Equal(t, Unchanged, txn.State(obj2))
}

func TestChildFetchers(t *testing.T) {
	t.Parallel()

	key := bcs.EncodeU64(42)
	keyType := types.PrimitiveTag(types.TypeU64)
	child := types.DynamicFieldID(parent, keyType, key)
	fieldType := types.MustParseTypeTag("0x2::dynamic_field::Field<u64, u64>")

	var requested []ChildKey

	fetchers := ChildFetchers{
		ByKey: func(k ChildKey) (*types.VersionedObject, error) {
			requested = append(requested, k)

			return types.NewVersionedObject(child, 20, fieldType, []byte{1}, types.ObjectOwner(parent)), nil
		},
	}

	txn := NewTxn(nil, mockReader{}, fetchers)
	txn.BeginLamport(15)

	s, err := txn.Child(ChildKey{Parent: parent, Child: child, KeyType: keyType, KeyBytes: key})
	require.NoError(t, err)
	assert.Equal(t, Loaded, s.State)
	assert.Equal(t, uint64(20), s.InputVersion)
	require.Len(t, requested, 1)
	assert.Equal(t, key, requested[0].KeyBytes)

	// written versions stay above the child that was read
	assert.Equal(t, uint64(21), txn.Lamport())

	// a second borrow hits the table
	_, err = txn.Child(ChildKey{Parent: parent, Child: child, KeyType: keyType, KeyBytes: key})
	require.NoError(t, err)
	assert.Len(t, requested, 1)

	other := types.DynamicFieldID(types.MustParseAddress("0xf2"), keyType, key)
	_, err = NewTxn(nil, mockReader{}, ChildFetchers{}).Child(ChildKey{Parent: parent, Child: other})
	assert.ErrorIs(t, err, ErrChildNotFound)
}

func TestAddRemoveChild(t *testing.T) {
	t.Parallel()

	txn := newTestTxn(mockReader{})
	key := ChildKey{Parent: parent, Child: types.MustParseAddress("0xd1")}
	fieldType := types.MustParseTypeTag("0x2::dynamic_field::Field<u64, u64>")

	require.NoError(t, txn.AddChild(key, fieldType, []byte{1}))
	assert.ErrorIs(t, txn.AddChild(key, fieldType, []byte{1}), ErrObjectExists)

	require.NoError(t, txn.Delete(key.Child))

	_, err := txn.Child(key)
	assert.ErrorIs(t, err, ErrChildNotFound)

	require.NoError(t, txn.AddChild(key, fieldType, []byte{2}))
	assert.Equal(t, Created, txn.State(key.Child))
}

func TestKeyName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		keyType string
		key     []byte
		name    string
		ok      bool
	}{
		{"u64", bcs.EncodeU64(42), "42", true},
		{"bool", []byte{1}, "true", true},
		{"vector<u8>", append([]byte{3}, "abc"...), "abc", true},
		{"0x1::string::String", append([]byte{2}, "hi"...), "hi", true},
		{"vector<u64>", []byte{0}, "", false},
	}

	for _, c := range cases {
		name, ok := KeyName(types.MustParseTypeTag(c.keyType), c.key)
		assert.Equal(t, c.ok, ok, c.keyType)
		assert.Equal(t, c.name, name, c.keyType)
	}
}
