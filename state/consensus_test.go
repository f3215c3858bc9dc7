package state

import (
	"testing"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsensusStaleRead(t *testing.T) {
	t.Parallel()

	log := NewConsensusLog()
	log.Record(ConsensusEntry{
		Sequence: 9,
		Reads:    map[types.ObjectID]uint64{shared1: 5},
		Writes:   map[types.ObjectID]uint64{shared1: 7},
	})

	assert.Equal(t, uint64(10), log.NextSequence())

	err := log.Check(10, shared1, 5, false)

	var conflict *SerializationConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, shared1, conflict.Object)
	assert.Equal(t, uint64(5), conflict.OurVersion)
	assert.Equal(t, uint64(7), conflict.TheirVersion)
	assert.Equal(t, ConflictStaleRead, conflict.Kind)

	assert.NoError(t, log.Check(10, shared1, 7, true))
}

func TestConsensusWriters(t *testing.T) {
	t.Parallel()

	log := NewConsensusLog()
	log.Record(ConsensusEntry{Sequence: 3, Writes: map[types.ObjectID]uint64{shared1: 8}})
	log.Record(ConsensusEntry{Sequence: 5, Reads: map[types.ObjectID]uint64{shared1: 8}})

	var conflict *SerializationConflict

	require.ErrorAs(t, log.Check(3, shared1, 7, true), &conflict)
	assert.Equal(t, ConflictConcurrentWriters, conflict.Kind)

	require.ErrorAs(t, log.Check(4, shared1, 8, true), &conflict)
	assert.Equal(t, ConflictWriteAfterRead, conflict.Kind)
	assert.Equal(t, uint64(8), conflict.TheirVersion)

	// a reader ordered between them is fine
	assert.NoError(t, log.Check(4, shared1, 8, false))
	assert.Len(t, log.Entries(), 2)
}
