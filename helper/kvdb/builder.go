package kvdb

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

const (
	// minLevelDBCache is the minimum memory allocated to leveldb, in MiB
	minLevelDBCache = 8

	// minLevelDBHandles is the minimum number of open file handles
	minLevelDBHandles = 16

	DefaultLevelDBCache        = 64 // MiB
	DefaultLevelDBHandles      = 128
	DefaultLevelDBBloomKeyBits = 10
)

type LevelDBBuilder interface {
	// set cache size in MiB
	SetCacheSize(int) LevelDBBuilder

	// set open file handles
	SetHandles(int) LevelDBBuilder

	// build the storage
	Build() (KVBatchStorage, error)
}

type leveldbBuilder struct {
	logger  hclog.Logger
	path    string
	options *opt.Options
}

func (builder *leveldbBuilder) SetCacheSize(cacheSize int) LevelDBBuilder {
	if cacheSize < minLevelDBCache {
		cacheSize = minLevelDBCache
	}

	builder.options.BlockCacheCapacity = cacheSize * opt.MiB

	builder.logger.Debug("leveldb",
		"BlockCacheCapacity", fmt.Sprintf("%d Mib", cacheSize),
	)

	return builder
}

func (builder *leveldbBuilder) SetHandles(handles int) LevelDBBuilder {
	if handles < minLevelDBHandles {
		handles = minLevelDBHandles
	}

	builder.options.OpenFilesCacheCapacity = handles

	builder.logger.Debug("leveldb",
		"OpenFilesCacheCapacity", handles,
	)

	return builder
}

func (builder *leveldbBuilder) Build() (KVBatchStorage, error) {
	db, err := leveldb.OpenFile(builder.path, builder.options)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", builder.path, err)
	}

	return &levelDBKV{db: db}, nil
}

// NewLevelDBBuilder creates a leveldb storage builder rooted at path
func NewLevelDBBuilder(logger hclog.Logger, path string) LevelDBBuilder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &leveldbBuilder{
		logger: logger.Named("leveldb"),
		path:   path,
		options: &opt.Options{
			OpenFilesCacheCapacity: DefaultLevelDBHandles,
			BlockCacheCapacity:     DefaultLevelDBCache * opt.MiB,
			Filter:                 filter.NewBloomFilter(DefaultLevelDBBloomKeyBits),
		},
	}
}
