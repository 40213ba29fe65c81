package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// fakeStore 内存版在线状态存储
type fakeStore struct {
	mu      sync.Mutex
	online  map[uint64]bool
	flushed []uint64
}

func newFakeStore() *fakeStore {
	return &fakeStore{online: make(map[uint64]bool)}
}

func (f *fakeStore) UpdatePresence(ctx context.Context, userID uint64, online bool, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = online
	return nil
}

func (f *fakeStore) BatchSetOffline(ctx context.Context, userIDs []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range userIDs {
		f.online[id] = false
	}
	f.flushed = append(f.flushed, userIDs...)
	return nil
}

func newTestClient(userID uint64) *Client {
	return &Client{
		HandleID: uuid.NewString(),
		UserID:   userID,
		send:     make(chan []byte, 16),
		done:     make(chan struct{}),
		joined:   make(map[string]struct{}),
	}
}

func TestRegistryConnectDisconnect(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	c1 := newTestClient(7)
	c2 := newTestClient(7)

	// 第一条连接才算上线
	first, err := registry.Connect(ctx, c1)
	assert.NoError(t, err)
	assert.True(t, first)
	assert.True(t, registry.IsOnline(7))
	assert.True(t, store.online[7])

	first, err = registry.Connect(ctx, c2)
	assert.NoError(t, err)
	assert.False(t, first)

	// 还有一条连接在，不算下线
	last, err := registry.Disconnect(ctx, c1)
	assert.NoError(t, err)
	assert.False(t, last)
	assert.True(t, registry.IsOnline(7))

	last, err = registry.Disconnect(ctx, c2)
	assert.NoError(t, err)
	assert.True(t, last)
	assert.False(t, registry.IsOnline(7))
	assert.False(t, store.online[7])
}

func TestRegistryDisconnectIdempotent(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	c := newTestClient(3)
	_, err := registry.Connect(ctx, c)
	assert.NoError(t, err)

	last, err := registry.Disconnect(ctx, c)
	assert.NoError(t, err)
	assert.True(t, last)

	// 重复注销不应再次触发下线
	last, err = registry.Disconnect(ctx, c)
	assert.NoError(t, err)
	assert.False(t, last)
}

func TestRegistrySnapshot(t *testing.T) {
	registry := NewRegistry(newFakeStore())
	ctx := context.Background()

	_, _ = registry.Connect(ctx, newTestClient(1))
	_, _ = registry.Connect(ctx, newTestClient(2))
	_, _ = registry.Connect(ctx, newTestClient(2))

	snapshot := registry.Snapshot()
	assert.Len(t, snapshot, 2)
	assert.ElementsMatch(t, []uint64{1, 2}, snapshot)
}

func TestRegistryFlush(t *testing.T) {
	store := newFakeStore()
	registry := NewRegistry(store)
	ctx := context.Background()

	_, _ = registry.Connect(ctx, newTestClient(1))
	_, _ = registry.Connect(ctx, newTestClient(2))

	registry.Flush(ctx)

	assert.Empty(t, registry.Snapshot())
	assert.ElementsMatch(t, []uint64{1, 2}, store.flushed)
	assert.False(t, store.online[1])
	assert.False(t, store.online[2])
}
