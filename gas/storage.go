package gas

import "github.com/Evan-Kim2028/sui-sandbox-sub009/types"

type objectUsage struct {
	read     int
	written  int
	previous int
	deleted  bool
}

// StorageTracker records per-object read bytes, written bytes and deletes
type StorageTracker struct {
	objects map[types.ObjectID]*objectUsage
}

func NewStorageTracker() *StorageTracker {
	return &StorageTracker{objects: make(map[types.ObjectID]*objectUsage)}
}

func (t *StorageTracker) usage(id types.ObjectID) *objectUsage {
	u, ok := t.objects[id]
	if !ok {
		u = &objectUsage{}
		t.objects[id] = u
	}

	return u
}

// Read records the size of an object loaded by the transaction
func (t *StorageTracker) Read(id types.ObjectID, size int) {
	t.usage(id).read = size
}

// Write records the new size of an object and the size it replaced, zero
// for created objects
func (t *StorageTracker) Write(id types.ObjectID, size, previous int) {
	u := t.usage(id)
	u.written = size
	u.previous = previous
	u.deleted = false
}

// Delete records the removal of an object of the given previous size
func (t *StorageTracker) Delete(id types.ObjectID, previous int) {
	u := t.usage(id)
	u.written = 0
	u.previous = previous
	u.deleted = true
}

// Reset drops everything but reads
func (t *StorageTracker) Reset() {
	for _, u := range t.objects {
		u.written, u.previous, u.deleted = 0, 0, false
	}
}

func (t *StorageTracker) ReadBytes() uint64 {
	var total uint64

	for _, u := range t.objects {
		total += uint64(u.read)
	}

	return total
}

func (t *StorageTracker) WrittenBytes() uint64 {
	var total uint64

	for _, u := range t.objects {
		total += uint64(u.written)
	}

	return total
}

// ReleasedBytes is the size of every object rewritten or deleted
func (t *StorageTracker) ReleasedBytes() uint64 {
	var total uint64

	for _, u := range t.objects {
		total += uint64(u.previous)
	}

	return total
}

func (t *StorageTracker) DeleteCount() int {
	n := 0

	for _, u := range t.objects {
		if u.deleted {
			n++
		}
	}

	return n
}
