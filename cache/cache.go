// Package cache is the versioned object and package store on disk. Entries
// are write-once and every file is written through a temporary file and a
// rename, so concurrent writers need no lock.
package cache

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/bcs"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/common"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/helper/kvdb"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/VictoriaMetrics/fastcache"
	"github.com/hashicorp/go-hclog"
	"go.uber.org/atomic"
)

const (
	objectsDir       = "objects"
	packagesDir      = "packages"
	progressDir      = "progress"
	dynamicFieldsDir = "dynamic_fields"
	txIndexDir       = "tx_index"
	indexDir         = "index"

	bcsSuffix  = ".bcs"
	metaSuffix = ".meta.json"

	// DefaultHotCacheSize is the size of the in-memory layer in bytes
	DefaultHotCacheSize = 64 * 1024 * 1024
)

var (
	ErrInvalidEntry     = errors.New("invalid cache entry")
	ErrIndexUnavailable = errors.New("version index is held by another process")
)

// CorruptError reports an entry whose bytes no longer match their checksum
type CorruptError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt cache entry %s: checksum %s, content hashes to %s", e.Path, e.Expected, e.Actual)
}

// Meta is the metadata stored next to each object version
type Meta struct {
	TypeTag              string  `json:"type_tag"`
	OwnerKind            string  `json:"owner_kind,omitempty"`
	OwnerAddress         string  `json:"owner_address,omitempty"`
	InitialSharedVersion uint64  `json:"initial_shared_version,omitempty"`
	SourceCheckpoint     *uint64 `json:"source_checkpoint,omitempty"`
	Checksum             string  `json:"checksum,omitempty"`
}

// Entry is one cached object version
type Entry struct {
	BCS  []byte
	Meta Meta
}

// Checksum is the hex blake2b hash stored in Meta.Checksum
func Checksum(b []byte) string {
	sum := types.Blake2b256(b)

	return hex.EncodeToString(sum[:])
}

// MetaFor describes obj, stamping the checksum of its contents
func MetaFor(obj *types.VersionedObject, checkpoint *uint64) Meta {
	owner := obj.EffectiveOwner()

	m := Meta{
		TypeTag:          obj.Type.String(),
		OwnerKind:        string(owner.Kind),
		SourceCheckpoint: checkpoint,
		Checksum:         Checksum(obj.BCS),
	}

	switch owner.Kind {
	case types.OwnerAddress, types.OwnerObject:
		m.OwnerAddress = owner.Address.String()
	case types.OwnerShared:
		m.InitialSharedVersion = owner.InitialSharedVersion
	}

	return m
}

// Object rebuilds the object stored at (id, version)
func (e *Entry) Object(id types.ObjectID, version uint64) (*types.VersionedObject, error) {
	t, err := types.ParseTypeTag(e.Meta.TypeTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %s@%d: %v", ErrInvalidEntry, id, version, err)
	}

	owner := types.Owner{Kind: types.OwnerKind(e.Meta.OwnerKind)}

	switch owner.Kind {
	case types.OwnerAddress, types.OwnerObject:
		if owner.Address, err = types.ParseAddress(e.Meta.OwnerAddress); err != nil {
			return nil, fmt.Errorf("%w: %s@%d owner: %v", ErrInvalidEntry, id, version, err)
		}
	case types.OwnerShared:
		owner.InitialSharedVersion = e.Meta.InitialSharedVersion
	case types.OwnerImmutable:
	default:
		owner = types.AddressOwner(types.ZeroAddress)
	}

	return types.NewVersionedObject(id, version, t, e.BCS, owner), nil
}

// Stats counts cache traffic since the store was opened
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Writes uint64 `json:"writes"`
}

// Store is a cache rooted at one directory
type Store struct {
	logger  hclog.Logger
	metrics *Metrics
	root    string

	// index is nil when another process holds it
	index kvdb.KVBatchStorage
	hot   *fastcache.Cache

	hits   *atomic.Uint64
	misses *atomic.Uint64
	writes *atomic.Uint64

	// appendLock serializes appends to jsonl files
	appendLock sync.Mutex
}

// Open creates the directory layout under root and opens the version
// index. An index created from scratch is rebuilt from the object files.
// When the index cannot be opened, usually because another process holds
// its lock, the store lists object directories instead.
func Open(logger hclog.Logger, root string, metrics *Metrics) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	root = common.ExpandHome(root)

	for _, dir := range []string{objectsDir, packagesDir, progressDir, dynamicFieldsDir, txIndexDir} {
		if err := common.CreateDirSafe(filepath.Join(root, dir), 0o755); err != nil {
			return nil, err
		}
	}

	indexPath := filepath.Join(root, indexDir)
	fresh := !common.DirectoryExists(indexPath)

	index, err := kvdb.NewLevelDBBuilder(logger, indexPath).
		SetCacheSize(16).
		SetHandles(64).
		Build()
	if err != nil {
		logger.Named("cache").Warn("version index unavailable, listing directories", "path", indexPath, "err", err)

		index, fresh = nil, false
	}

	s := &Store{
		logger:  logger.Named("cache"),
		metrics: NewDummyMetrics(metrics),
		root:    root,
		index:   index,
		hot:     fastcache.New(DefaultHotCacheSize),
		hits:    atomic.NewUint64(0),
		misses:  atomic.NewUint64(0),
		writes:  atomic.NewUint64(0),
	}

	if fresh {
		n, err := s.Reindex()
		if err != nil {
			index.Close()

			return nil, err
		}

		if n > 0 {
			s.logger.Info("rebuilt version index", "objects", n)
		}
	}

	return s, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Close() error {
	s.hot.Reset()

	if s.index == nil {
		return nil
	}

	return s.index.Close()
}

// Indexed reports whether the store holds the version index
func (s *Store) Indexed() bool {
	return s.index != nil
}

func (s *Store) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Writes: s.writes.Load()}
}

func hex64(a types.Address) string {
	return a.String()[2:]
}

func (s *Store) objectDir(id types.ObjectID) string {
	h := hex64(id)

	return filepath.Join(s.root, objectsDir, h[:2], h[2:4], h)
}

func (s *Store) objectPaths(id types.ObjectID, version uint64) (string, string) {
	dir := s.objectDir(id)
	v := strconv.FormatUint(version, 10)

	return filepath.Join(dir, v+bcsSuffix), filepath.Join(dir, v+metaSuffix)
}

func (s *Store) packagePath(id types.Address) string {
	h := hex64(id)

	return filepath.Join(s.root, packagesDir, h[:2], h+".json")
}

// objectKey orders the versions of one object numerically
func objectKey(id types.ObjectID, version uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{'o'}, id[:]...), version)
}

func packageKey(id types.Address) []byte {
	return append([]byte{'p'}, id[:]...)
}

// hotGet reads the in-memory layer. Values there are never empty.
func (s *Store) hotGet(key []byte) ([]byte, bool) {
	v := s.hot.GetBig(nil, key)
	if len(v) == 0 {
		s.metrics.hotMissInc()

		return nil, false
	}

	s.metrics.hotHitInc()

	return v, true
}

func encodeEntry(bcsBytes, meta []byte) []byte {
	e := bcs.NewEncoder()
	e.WriteBytes(meta)
	e.WriteFixedBytes(bcsBytes)

	return e.Bytes()
}

func decodeEntry(raw []byte) ([]byte, []byte, error) {
	d := bcs.NewDecoder(raw)

	meta, err := d.ReadBytes()
	if err != nil {
		return nil, nil, err
	}

	contents, err := d.ReadFixedBytes(d.Remaining())
	if err != nil {
		return nil, nil, err
	}

	return contents, meta, nil
}

func (s *Store) verify(path string, e *Entry) {
	if e.Meta.Checksum == "" {
		return
	}

	if actual := Checksum(e.BCS); actual != e.Meta.Checksum {
		panic(&CorruptError{Path: path, Expected: e.Meta.Checksum, Actual: actual})
	}
}

// GetObject returns the entry at (id, version). A version with either
// file missing is reported as absent.
func (s *Store) GetObject(id types.ObjectID, version uint64) (*Entry, bool, error) {
	bcsPath, metaPath := s.objectPaths(id, version)
	key := objectKey(id, version)

	if raw, ok := s.hotGet(key); ok {
		contents, meta, err := decodeEntry(raw)
		if err == nil {
			e := &Entry{BCS: contents}
			if err := json.Unmarshal(meta, &e.Meta); err == nil {
				s.hits.Inc()

				return e, true, nil
			}
		}

		s.hot.Del(key)
	}

	start := time.Now()

	contents, err := os.ReadFile(bcsPath)
	if errors.Is(err, os.ErrNotExist) {
		s.miss()

		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	meta, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		s.miss()

		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	s.metrics.diskReadObserve(time.Since(start))

	e := &Entry{BCS: contents}
	if err := json.Unmarshal(meta, &e.Meta); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, metaPath, err)
	}

	s.verify(bcsPath, e)

	// write-back cache
	s.hot.SetBig(key, encodeEntry(contents, meta))
	s.hits.Inc()

	return e, true, nil
}

func (s *Store) miss() {
	s.misses.Inc()
	s.metrics.diskMissInc()
}

// GetVersionedObject returns the object stored at (id, version)
func (s *Store) GetVersionedObject(id types.ObjectID, version uint64) (*types.VersionedObject, bool, error) {
	e, ok, err := s.GetObject(id, version)
	if err != nil || !ok {
		return nil, ok, err
	}

	obj, err := e.Object(id, version)
	if err != nil {
		return nil, false, err
	}

	return obj, true, nil
}

func (s *Store) HasObject(id types.ObjectID, version uint64) bool {
	bcsPath, metaPath := s.objectPaths(id, version)

	return common.FileExists(bcsPath) && common.FileExists(metaPath)
}

// PutObject stores an object version. A version already present is left
// untouched.
func (s *Store) PutObject(id types.ObjectID, version uint64, contents []byte, meta Meta) error {
	if _, err := types.ParseTypeTag(meta.TypeTag); err != nil {
		return fmt.Errorf("%w: %s@%d: %v", ErrInvalidEntry, id, version, err)
	}

	bcsPath, metaPath := s.objectPaths(id, version)

	if common.FileExists(bcsPath) && common.FileExists(metaPath) {
		s.metrics.skippedWritesInc()

		return s.indexObject(id, version)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if err := common.SaveFileAtomic(bcsPath, contents, 0o644); err != nil {
		return err
	}

	if err := common.SaveFileAtomic(metaPath, metaBytes, 0o644); err != nil {
		return err
	}

	s.writes.Inc()
	s.metrics.writesInc()

	s.logger.Trace("object stored", "id", id, "version", version)

	return s.indexObject(id, version)
}

// PutVersionedObject stores obj with metadata derived from it
func (s *Store) PutVersionedObject(obj *types.VersionedObject, checkpoint *uint64) error {
	return s.PutObject(obj.ID, obj.Version, obj.BCS, MetaFor(obj, checkpoint))
}

func (s *Store) indexObject(id types.ObjectID, version uint64) error {
	if s.index == nil {
		return nil
	}

	return s.index.Set(objectKey(id, version), nil)
}

// listVersions reads the versions of one object from its directory
func (s *Store) listVersions(id types.ObjectID) ([]uint64, error) {
	entries, err := os.ReadDir(s.objectDir(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var out []uint64

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, bcsSuffix) {
			continue
		}

		version, err := strconv.ParseUint(strings.TrimSuffix(name, bcsSuffix), 10, 64)
		if err != nil {
			continue
		}

		if s.HasObject(id, version) {
			out = append(out, version)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out, nil
}

// Versions lists the cached versions of an object in ascending order. An
// object unknown to the index is looked up on disk, since writers in other
// processes do not update it.
func (s *Store) Versions(id types.ObjectID) ([]uint64, error) {
	if s.index == nil {
		return s.listVersions(id)
	}

	prefix := append([]byte{'o'}, id[:]...)
	iter := s.index.NewIterator(prefix, nil)

	defer iter.Release()

	var out []uint64

	for iter.Next() {
		key := iter.Key()
		if len(key) != len(prefix)+8 {
			continue
		}

		out = append(out, binary.BigEndian.Uint64(key[len(prefix):]))
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return s.listVersions(id)
	}

	return out, nil
}

// LatestVersion returns the newest cached version not above maxVersion
func (s *Store) LatestVersion(id types.ObjectID, maxVersion uint64) (uint64, bool, error) {
	versions, err := s.Versions(id)
	if err != nil {
		return 0, false, err
	}

	var (
		best  uint64
		found bool
	)

	for _, v := range versions {
		if v <= maxVersion {
			best, found = v, true
		}
	}

	return best, found, nil
}

// walkObjects visits every complete object version file under objects/
func (s *Store) walkObjects(visit func(types.ObjectVersion) bool) error {
	errStop := errors.New("stop")

	err := filepath.WalkDir(filepath.Join(s.root, objectsDir), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != bcsSuffix {
			return err
		}

		id, err := types.ParseAddress(filepath.Base(filepath.Dir(path)))
		if err != nil {
			return nil
		}

		version, err := strconv.ParseUint(filepath.Base(path[:len(path)-len(bcsSuffix)]), 10, 64)
		if err != nil {
			return nil
		}

		if !visit(types.ObjectVersion{ID: id, Version: version}) {
			return errStop
		}

		return nil
	})
	if errors.Is(err, errStop) {
		return nil
	}

	return err
}

// walkPackages visits the storage id of every package file
func (s *Store) walkPackages(visit func(types.Address) error) error {
	return filepath.WalkDir(filepath.Join(s.root, packagesDir), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return err
		}

		id, err := types.ParseAddress(strings.TrimSuffix(filepath.Base(path), ".json"))
		if err != nil {
			return nil
		}

		return visit(id)
	})
}

// Objects walks the version index, or the object directories when the
// index is held elsewhere
func (s *Store) Objects(visit func(types.ObjectVersion) bool) error {
	if s.index == nil {
		return s.walkObjects(visit)
	}

	iter := s.index.NewIterator([]byte{'o'}, nil)

	defer iter.Release()

	for iter.Next() {
		key := iter.Key()
		if len(key) != 1+types.AddressLength+8 {
			continue
		}

		ov := types.ObjectVersion{
			ID:      types.BytesToAddress(key[1 : 1+types.AddressLength]),
			Version: binary.BigEndian.Uint64(key[1+types.AddressLength:]),
		}

		if !visit(ov) {
			break
		}
	}

	return iter.Error()
}

// Reindex rebuilds the version index from the object and package files
// and returns the number of object versions found
func (s *Store) Reindex() (int, error) {
	if s.index == nil {
		return 0, ErrIndexUnavailable
	}

	batch := s.index.NewBatch()
	count := 0

	if err := s.walkPackages(func(id types.Address) error {
		return batch.Set(packageKey(id), nil)
	}); err != nil {
		return 0, err
	}

	var setErr error

	if err := s.walkObjects(func(ov types.ObjectVersion) bool {
		count++
		setErr = batch.Set(objectKey(ov.ID, ov.Version), nil)

		return setErr == nil
	}); err != nil {
		return 0, err
	}

	if setErr != nil {
		return 0, setErr
	}

	return count, batch.Write()
}

// GetPackage returns the package stored at a storage id
func (s *Store) GetPackage(id types.Address) (*types.PackageData, bool, error) {
	key := packageKey(id)

	data, ok := s.hotGet(key)
	if !ok {
		raw, err := os.ReadFile(s.packagePath(id))
		if errors.Is(err, os.ErrNotExist) {
			s.miss()

			return nil, false, nil
		} else if err != nil {
			return nil, false, err
		}

		data = raw

		s.hot.SetBig(key, raw)
	}

	pkg := &types.PackageData{}
	if err := json.Unmarshal(data, pkg); err != nil {
		return nil, false, fmt.Errorf("%w: package %s: %v", ErrInvalidEntry, id, err)
	}

	s.hits.Inc()

	return pkg, true, nil
}

func (s *Store) HasPackage(id types.Address) bool {
	return common.FileExists(s.packagePath(id))
}

// PutPackage stores a package under its storage id. A package already
// present is left untouched.
func (s *Store) PutPackage(pkg *types.PackageData) error {
	if len(pkg.Modules) == 0 {
		return fmt.Errorf("%w: package %s has no modules", ErrInvalidEntry, pkg.Address)
	}

	path := s.packagePath(pkg.Address)

	if common.FileExists(path) {
		s.metrics.skippedWritesInc()

		return nil
	}

	cp := pkg.Clone()
	cp.Normalize()

	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	if err := common.SaveFileAtomic(path, data, 0o644); err != nil {
		return err
	}

	s.writes.Inc()
	s.metrics.writesInc()

	if s.index == nil {
		return nil
	}

	return s.index.Set(packageKey(pkg.Address), nil)
}

// Packages lists the storage ids of every cached package
func (s *Store) Packages() ([]types.Address, error) {
	if s.index == nil {
		var out []types.Address

		err := s.walkPackages(func(id types.Address) error {
			out = append(out, id)

			return nil
		})

		return out, err
	}

	iter := s.index.NewIterator([]byte{'p'}, nil)

	defer iter.Release()

	var out []types.Address

	for iter.Next() {
		if key := iter.Key(); len(key) == 1+types.AddressLength {
			out = append(out, types.BytesToAddress(key[1:]))
		}
	}

	return out, iter.Error()
}
