package state

import (
	"fmt"
	"sync"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
)

// ConflictKind classifies a shared object ordering violation
type ConflictKind string

const (
	ConflictStaleRead         ConflictKind = "StaleRead"
	ConflictWriteAfterRead    ConflictKind = "WriteAfterRead"
	ConflictConcurrentWriters ConflictKind = "ConcurrentWriters"
)

// SerializationConflict reports a shared object accessed out of consensus
// order
type SerializationConflict struct {
	Object       types.ObjectID `json:"object"`
	OurVersion   uint64         `json:"our_version"`
	TheirVersion uint64         `json:"their_version"`
	Kind         ConflictKind   `json:"kind"`
}

func (c *SerializationConflict) Error() string {
	return fmt.Sprintf("serialization conflict (%s) on %s: ours %d, theirs %d",
		c.Kind, c.Object, c.OurVersion, c.TheirVersion)
}

// ConsensusEntry is the shared object footprint of one ordered transaction
type ConsensusEntry struct {
	Sequence uint64                    `json:"sequence"`
	Reads    map[types.ObjectID]uint64 `json:"read_versions"`
	Writes   map[types.ObjectID]uint64 `json:"write_versions"`
}

// ConsensusLog is the ordering of transactions over shared objects
type ConsensusLog struct {
	sync.RWMutex

	entries []ConsensusEntry
}

func NewConsensusLog() *ConsensusLog {
	return &ConsensusLog{}
}

func (l *ConsensusLog) Record(e ConsensusEntry) {
	l.Lock()
	defer l.Unlock()

	l.entries = append(l.entries, e)
}

// NextSequence is one past the highest recorded sequence
func (l *ConsensusLog) NextSequence() uint64 {
	l.RLock()
	defer l.RUnlock()

	var next uint64

	for _, e := range l.entries {
		if e.Sequence >= next {
			next = e.Sequence + 1
		}
	}

	return next
}

func (l *ConsensusLog) Entries() []ConsensusEntry {
	l.RLock()
	defer l.RUnlock()

	return append([]ConsensusEntry(nil), l.entries...)
}

// Check validates an access to a shared object at readVersion by the
// transaction ordered at seq
func (l *ConsensusLog) Check(seq uint64, id types.ObjectID, readVersion uint64, mutable bool) error {
	l.RLock()
	defer l.RUnlock()

	for _, e := range l.entries {
		switch {
		case e.Sequence < seq:
			if w, ok := e.Writes[id]; ok && w > readVersion {
				return &SerializationConflict{Object: id, OurVersion: readVersion, TheirVersion: w, Kind: ConflictStaleRead}
			}
		case e.Sequence == seq:
			if w, ok := e.Writes[id]; ok && mutable {
				return &SerializationConflict{
					Object:       id,
					OurVersion:   readVersion,
					TheirVersion: w,
					Kind:         ConflictConcurrentWriters,
				}
			}
		default:
			if r, ok := e.Reads[id]; ok && mutable && r <= readVersion {
				return &SerializationConflict{Object: id, OurVersion: readVersion, TheirVersion: r, Kind: ConflictWriteAfterRead}
			}
		}
	}

	return nil
}
