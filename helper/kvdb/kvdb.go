package kvdb

import "io"

// KVReader wraps the read methods of a backing data store.
type KVReader interface {
	// Has reports whether a key is present in the store.
	Has(key []byte) (bool, error)
	// Get retrieves the given key if it's present in the store.
	Get(key []byte) (value []byte, exists bool, err error)
}

// KVWriter wraps the write methods of a backing data store.
type KVWriter interface {
	Set(k, v []byte) error
	Delete(key []byte) error
}

// Batch buffers writes until Write is called.
type Batch interface {
	KVWriter

	// Write flushes any accumulated data to disk.
	Write() error
}

// Batcher wraps the NewBatch method of a backing data store.
type Batcher interface {
	NewBatch() Batch
}

type Iterator interface {
	// Next moves the iterator to the next key/value pair.
	// It returns false if the iterator is exhausted.
	Next() bool

	// Key returns the key of the current pair. The slice is only valid
	// until the next call to Next.
	Key() []byte

	// Value returns the value of the current pair. The slice is only valid
	// until the next call to Next.
	Value() []byte

	// Release releases associated resources. It can be called multiple times.
	Release()

	// Error returns any accumulated error. Exhausting all the pairs is not
	// considered to be an error.
	Error() error
}

// Iteratee wraps the NewIterator method of a backing data store.
type Iteratee interface {
	// NewIterator walks keys with the given prefix, starting at prefix+start.
	NewIterator(prefix, start []byte) Iterator
}

// KVBatchStorage is the full key-value store used by the cache index
type KVBatchStorage interface {
	KVReader
	KVWriter
	Batcher
	Iteratee
	io.Closer
}
