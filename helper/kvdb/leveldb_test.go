package kvdb

import (
	"encoding/binary"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) KVBatchStorage {
	t.Helper()

	db, err := NewLevelDBBuilder(
		hclog.NewNullLogger(),
		t.TempDir(),
	).Build()
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func Test_LevelDB_GetSet(t *testing.T) {
	t.Parallel()

	db := createTestDB(t)

	var (
		key   = []byte("hello")
		value = []byte("world")
	)

	assert.NoError(t, db.Set(key, value))

	v, exist, err := db.Get(key)
	assert.NoError(t, err)
	assert.True(t, exist)
	assert.Equal(t, value, v)

	has, err := db.Has(key)
	assert.NoError(t, err)
	assert.True(t, has)

	assert.NoError(t, db.Delete(key))

	_, exist, err = db.Get(key)
	assert.NoError(t, err)
	assert.False(t, exist)
}

func Test_LevelDB_BatchWrite(t *testing.T) {
	t.Parallel()

	db := createTestDB(t)
	batch := db.NewBatch()

	for i := 0; i < 100; i++ {
		key := binary.BigEndian.AppendUint32([]byte("k"), uint32(i))
		assert.NoError(t, batch.Set(key, []byte{byte(i)}))
	}

	// nothing is visible before the batch is written
	_, exist, err := db.Get(binary.BigEndian.AppendUint32([]byte("k"), 0))
	assert.NoError(t, err)
	assert.False(t, exist)

	assert.NoError(t, batch.Write())

	for i := 0; i < 100; i++ {
		val, exist, err := db.Get(binary.BigEndian.AppendUint32([]byte("k"), uint32(i)))
		assert.NoError(t, err)
		assert.True(t, exist)
		assert.Equal(t, []byte{byte(i)}, val)
	}
}

func Test_LevelDB_PrefixIterator(t *testing.T) {
	t.Parallel()

	db := createTestDB(t)
	batch := db.NewBatch()

	for i := 0; i < 10; i++ {
		assert.NoError(t, batch.Set(binary.BigEndian.AppendUint32([]byte("a"), uint32(i)), []byte{byte(i)}))
		assert.NoError(t, batch.Set(binary.BigEndian.AppendUint32([]byte("b"), uint32(i)), []byte{byte(i)}))
	}

	assert.NoError(t, batch.Write())

	iter := db.NewIterator([]byte("a"), binary.BigEndian.AppendUint32(nil, 5))
	defer iter.Release()

	var seen []byte

	for iter.Next() {
		assert.Equal(t, byte('a'), iter.Key()[0])
		seen = append(seen, iter.Value()[0])
	}

	assert.NoError(t, iter.Error())
	assert.Equal(t, []byte{5, 6, 7, 8, 9}, seen)
}
