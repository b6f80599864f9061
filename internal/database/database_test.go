package database

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kuretru/Xiaozhi-HASS-Gateway/entity"
)

func cell(deviceID string) *DeviceCell {
	return &DeviceCell{Config: entity.DeviceConfig{DeviceID: deviceID}}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(zap.NewNop())

	assert.False(t, registry.Set(ctx, cell("b")))
	assert.False(t, registry.Set(ctx, cell("a")))
	assert.True(t, registry.Set(ctx, cell("b")))

	got, ok := registry.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Config.DeviceID)
	assert.False(t, got.LastSeen.IsZero())
	assert.False(t, registry.Contains(ctx, "c"))

	all := registry.All(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Config.DeviceID)
	assert.Equal(t, "b", all[1].Config.DeviceID)

	removed, ok := registry.Remove(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "a", removed.Config.DeviceID)
	_, ok = registry.Remove(ctx, "a")
	assert.False(t, ok)
	assert.Len(t, registry.All(ctx), 1)
}

func TestRegistry_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	first, second := cell("a"), cell("a")

	var wg sync.WaitGroup
	var inserted atomic.Int32
	for _, c := range []*DeviceCell{first, second} {
		wg.Add(1)
		go func(c *DeviceCell) {
			defer wg.Done()
			if registry.SetIfAbsent(ctx, c) {
				inserted.Add(1)
			}
		}(c)
	}
	wg.Wait()
	assert.EqualValues(t, 1, inserted.Load())

	got, ok := registry.Get(ctx, "a")
	require.True(t, ok)
	assert.False(t, registry.SetIfAbsent(ctx, cell("a")))
	again, _ := registry.Get(ctx, "a")
	assert.Same(t, got, again)
}

func TestRegistry_Touch(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	registry.Set(ctx, cell("a"))
	before, _ := registry.Get(ctx, "a")
	seen := before.LastSeen

	registry.Touch(ctx, "a")
	registry.Touch(ctx, "missing")

	after, _ := registry.Get(ctx, "a")
	assert.False(t, after.LastSeen.Before(seen))
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "devices.yaml")
	store := NewStore(path)

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Upsert(entity.DeviceConfig{APIURL: "http://host/Xiaozhi", APIKey: "k1", DeviceID: "dev1"}))
	require.NoError(t, store.Upsert(entity.DeviceConfig{APIURL: "http://host/Xiaozhi", APIKey: "k2", DeviceID: "dev2", DeviceName: "Bedroom"}))
	require.NoError(t, store.Upsert(entity.DeviceConfig{APIURL: "http://other/Xiaozhi", APIKey: "k3", DeviceID: "dev1"}))

	entries, err = NewStore(path).Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "http://other/Xiaozhi", entries[0].APIURL)
	assert.Equal(t, "k3", entries[0].APIKey)
	assert.Equal(t, "Bedroom", entries[1].DeviceName)

	require.NoError(t, store.Delete("dev1"))
	entries, err = store.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dev2", entries[0].DeviceID)
}

func TestStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [unclosed"), 0o600))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestStore_InMemory(t *testing.T) {
	store := NewStore("")
	require.NoError(t, store.Upsert(entity.DeviceConfig{DeviceID: "dev1"}))

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
