package kvdb

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Set(k, v []byte) error {
	b.batch.Put(k, v)

	return nil
}

func (b *levelBatch) Delete(k []byte) error {
	b.batch.Delete(k)

	return nil
}

func (b *levelBatch) Write() error {
	return b.db.Write(b.batch, nil)
}

// levelDBKV is the leveldb implementation of the kv storage
type levelDBKV struct {
	db *leveldb.DB
}

func (kv *levelDBKV) NewBatch() Batch {
	return &levelBatch{db: kv.db, batch: new(leveldb.Batch)}
}

func (kv *levelDBKV) Set(k []byte, v []byte) error {
	return kv.db.Put(k, v, nil)
}

func (kv *levelDBKV) Delete(k []byte) error {
	return kv.db.Delete(k, nil)
}

func (kv *levelDBKV) Has(k []byte) (bool, error) {
	return kv.db.Has(k, nil)
}

// Get retrieves the value stored under k. A missing key is not an error.
func (kv *levelDBKV) Get(k []byte) ([]byte, bool, error) {
	data, err := kv.db.Get(k, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}

		return nil, false, err
	}

	return data, true, nil
}

func (kv *levelDBKV) NewIterator(prefix, start []byte) Iterator {
	r := util.BytesPrefix(prefix)
	r.Start = append(append([]byte{}, prefix...), start...)

	return &levelIterator{iter: kv.db.NewIterator(r, nil)}
}

func (kv *levelDBKV) Close() error {
	return kv.db.Close()
}

type levelIterator struct {
	iter iterator.Iterator
}

func (it *levelIterator) Next() bool    { return it.iter.Next() }
func (it *levelIterator) Key() []byte   { return it.iter.Key() }
func (it *levelIterator) Value() []byte { return it.iter.Value() }
func (it *levelIterator) Release()      { it.iter.Release() }
func (it *levelIterator) Error() error  { return it.iter.Error() }
