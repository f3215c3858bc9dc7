package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Evan-Kim2028/sui-sandbox-sub009/cache"
	"github.com/Evan-Kim2028/sui-sandbox-sub009/types"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSource serves a fixed set of objects and packages and fails the
// first failures calls with ErrAdapterUnavailable
type mockSource struct {
	sync.Mutex

	objects  map[types.ObjectVersion]*types.VersionedObject
	packages map[types.Address]*types.PackageData
	children map[types.ObjectID][]types.DynamicFieldInfo
	failures int
	calls    int
}

func newMockSource() *mockSource {
	return &mockSource{
		objects:  map[types.ObjectVersion]*types.VersionedObject{},
		packages: map[types.Address]*types.PackageData{},
		children: map[types.ObjectID][]types.DynamicFieldInfo{},
	}
}

func (m *mockSource) fail() error {
	m.Lock()
	defer m.Unlock()

	m.calls++

	if m.failures > 0 {
		m.failures--

		return ErrAdapterUnavailable
	}

	return nil
}

func (m *mockSource) FetchTransaction(context.Context, types.Digest) (*types.FetchedTransaction, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}

	return nil, ErrTransactionMissing
}

func (m *mockSource) FetchObjectAtVersion(_ context.Context, id types.ObjectID, v uint64) (*types.VersionedObject, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}

	if o, ok := m.objects[types.ObjectVersion{ID: id, Version: v}]; ok {
		return o, nil
	}

	return nil, ObjectMissingError(id, v)
}

func (m *mockSource) FetchPackage(_ context.Context, id types.Address) (*types.PackageData, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}

	if p, ok := m.packages[id]; ok {
		return p, nil
	}

	return nil, PackageMissingError(id)
}

func (m *mockSource) EnumerateChildren(_ context.Context, parent types.ObjectID, _ *uint64) ([]types.DynamicFieldInfo, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}

	return m.children[parent], nil
}

var (
	objID   = types.MustParseAddress("0x100")
	coinTag = types.MustParseTypeTag("0x2::coin::Coin<0x2::sui::SUI>")
)

func sampleObject(version uint64) *types.VersionedObject {
	return types.NewVersionedObject(objID, version, coinTag, []byte{byte(version)}, types.AddressOwner(types.MustParseAddress("0x1")))
}

func fastRetry() RetryConfig {
	return RetryConfig{Base: time.Millisecond, Cap: 2 * time.Millisecond, MaxRetries: 3}
}

func TestRetryTransient(t *testing.T) {
	t.Parallel()

	m := newMockSource()
	m.objects[types.ObjectVersion{ID: objID, Version: 4}] = sampleObject(4)
	m.failures = 2

	r := WithRetry(hclog.NewNullLogger(), BundleOf(m), fastRetry())

	obj, err := r.FetchObjectAtVersion(context.Background(), objID, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), obj.Version)
	assert.Equal(t, 3, m.calls)
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	m := newMockSource()
	m.failures = 10

	r := WithRetry(hclog.NewNullLogger(), BundleOf(m), fastRetry())

	_, err := r.FetchPackage(context.Background(), objID)
	assert.ErrorIs(t, err, ErrAdapterUnavailable)
	assert.Equal(t, 4, m.calls)
}

func TestRetrySkipsHydrationErrors(t *testing.T) {
	t.Parallel()

	m := newMockSource()
	r := WithRetry(hclog.NewNullLogger(), BundleOf(m), fastRetry())

	_, err := r.FetchObjectAtVersion(context.Background(), objID, 9)
	assert.True(t, IsHydrationError(err, ObjectMissing))
	assert.Equal(t, 1, m.calls)
}

func TestFallback(t *testing.T) {
	t.Parallel()

	primary := newMockSource()
	secondary := newMockSource()
	secondary.objects[types.ObjectVersion{ID: objID, Version: 2}] = sampleObject(2)

	f := NewFallback(hclog.NewNullLogger(), BundleOf(primary), BundleOf(secondary))

	obj, err := f.FetchObjectAtVersion(context.Background(), objID, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), obj.Version)

	_, err = f.FetchPackage(context.Background(), objID)
	assert.True(t, IsHydrationError(err, PackageMissing))

	var he *HydrationError

	require.True(t, errors.As(err, &he))
	assert.Equal(t, objID, he.ID)
}

func TestFallbackUnavailablePrimary(t *testing.T) {
	t.Parallel()

	secondary := newMockSource()
	secondary.packages[objID] = &types.PackageData{Address: objID, Version: 1}

	f := NewFallback(nil, BundleOf(&Unavailable{Name: "grpc"}), BundleOf(secondary))

	pkg, err := f.FetchPackage(context.Background(), objID)
	require.NoError(t, err)
	assert.Equal(t, objID, pkg.Address)
}

func TestCachedWritesThrough(t *testing.T) {
	t.Parallel()

	store, err := cache.Open(hclog.NewNullLogger(), t.TempDir(), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	m := newMockSource()
	m.objects[types.ObjectVersion{ID: objID, Version: 6}] = sampleObject(6)

	parent := types.MustParseAddress("0x200")
	m.children[parent] = []types.DynamicFieldInfo{{ChildID: objID, Version: 6, ChildType: coinTag}}

	c := NewCached(hclog.NewNullLogger(), store, BundleOf(m))

	obj, err := c.FetchObjectAtVersion(context.Background(), objID, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{6}, obj.BCS)
	assert.True(t, store.HasObject(objID, 6))

	children, err := c.EnumerateChildren(context.Background(), parent, nil)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	// offline lookups are answered from the cache alone
	c.Offline = true
	calls := m.calls

	obj, err = c.FetchObjectAtVersion(context.Background(), objID, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), obj.Version)

	children, err = c.EnumerateChildren(context.Background(), parent, nil)
	require.NoError(t, err)
	assert.Len(t, children, 1)
	assert.Equal(t, calls, m.calls)

	_, err = c.FetchObjectAtVersion(context.Background(), objID, 7)
	assert.True(t, IsHydrationError(err, ObjectMissing))
}

func TestHydrationErrorText(t *testing.T) {
	t.Parallel()

	err := ObjectMissingError(objID, 3)
	assert.Equal(t, "ObjectMissing: "+objID.String()+"@3", err.Error())
	assert.False(t, IsHydrationError(errors.New("other")))
	assert.False(t, IsHydrationError(err, PackageMissing))
}
