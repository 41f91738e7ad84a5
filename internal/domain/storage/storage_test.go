package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodytweaker/internal/app/client/crypto"
	"bodytweaker/internal/infrastructure/storage/cloud"
	"bodytweaker/internal/infrastructure/storage/local"
	"bodytweaker/internal/utils/logger/handlers/slogdiscard"
)

type fixture struct {
	svc     *Service
	backend *local.MemoryBackend
	local   *local.Adapter
	bridge  *cloud.MemoryBridge
	cloud   *cloud.Adapter
}

func newFixture(t *testing.T, localQuota int64, cloudOpts ...cloud.Option) *fixture {
	t.Helper()
	codec, err := crypto.NewCodecFromKey(make([]byte, 32))
	require.NoError(t, err)
	log := slogdiscard.NewDiscardLogger()

	f := &fixture{
		backend: local.NewMemoryBackend(localQuota),
		bridge:  cloud.NewMemoryBridge(cloud.Identity{ID: 1}),
	}
	f.local = local.NewAdapter(f.backend, codec, log)
	f.cloud = cloud.NewAdapter(f.bridge, codec, log, cloudOpts...)
	f.svc = New(f.local, f.cloud, log)
	return f
}

type profile struct {
	Name   string   `json:"name"`
	Scheme string   `json:"scheme"`
	Tags   []string `json:"tags"`
}

func TestService_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := profile{Name: "Аня", Scheme: "16/8", Tags: []string{"a", "b"}}

	t.Run("with cloud", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, SetJSON(ctx, f.svc, "profile", want))

		got, err := GetJSON(ctx, f.svc, "profile", profile{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("cloud down", func(t *testing.T) {
		f := newFixture(t, 0)
		f.bridge.SetReady(false)
		require.NoError(t, SetJSON(ctx, f.svc, "profile", want))

		got, err := GetJSON(ctx, f.svc, "profile", profile{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("local only", func(t *testing.T) {
		codec, err := crypto.NewCodecFromKey(make([]byte, 32))
		require.NoError(t, err)
		svc := New(local.NewAdapter(local.NewMemoryBackend(0), codec, slogdiscard.NewDiscardLogger()), nil, slogdiscard.NewDiscardLogger())

		require.NoError(t, SetJSON(ctx, svc, "profile", want))
		got, err := GetJSON(ctx, svc, "profile", profile{})
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.True(t, svc.FlushCloudQueue(ctx))
	})
}

func TestService_GetJSONFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	got, err := GetJSON(ctx, f.svc, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	require.NoError(t, f.svc.Set(ctx, "broken", "{not json"))
	list, err := GetJSON(ctx, f.svc, "broken", []string{"fallback"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, list)
}

func TestService_RemoteFailureFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.bridge.Fail(cloud.OpSet, errors.New("network down"))
	f.bridge.Fail(cloud.OpGet, errors.New("network down"))

	require.NoError(t, f.svc.Set(ctx, "key", "value"))
	assert.Equal(t, 1, f.svc.Pending())

	v, found, err := f.svc.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", v)
}

func TestService_GetBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	// значение пришло с другого устройства
	require.NoError(t, f.cloud.Set(ctx, "theme_mode", "dark"))
	_, ok := f.local.Get("theme_mode")
	require.False(t, ok)

	v, found, err := f.svc.Get(ctx, "theme_mode")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dark", v)

	v, ok = f.local.Get("theme_mode")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestService_RemoteMissUsesLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	require.NoError(t, f.local.Set("user_name", "Local"))

	v, found, err := f.svc.Get(ctx, "user_name")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Local", v)

	_, found, err = f.svc.Get(ctx, "nothing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_PendingKeyServesLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	require.NoError(t, f.svc.Set(ctx, "fasting_scheme", "old"))
	f.bridge.Fail(cloud.OpSet, errors.New("network down"))
	require.NoError(t, f.svc.Set(ctx, "fasting_scheme", "new"))

	v, _, err := f.svc.Get(ctx, "fasting_scheme")
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	remote, _, err := f.cloud.Get(ctx, "fasting_scheme")
	require.NoError(t, err)
	assert.Equal(t, "old", remote)
}

func TestService_QueueCoalescesAndFlushes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.bridge.Fail(cloud.OpSet, errors.New("network down"))

	require.NoError(t, f.svc.Set(ctx, "a", "1"))
	require.NoError(t, f.svc.Set(ctx, "b", "1"))
	require.NoError(t, f.svc.Set(ctx, "a", "2"))

	snapshot := f.svc.QueueSnapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "b", snapshot[0].Key)
	assert.Equal(t, "a", snapshot[1].Key)
	assert.Equal(t, "2", snapshot[1].Value)

	assert.False(t, f.svc.FlushCloudQueue(ctx))
	assert.Equal(t, 2, f.svc.Pending())

	f.bridge.Fail(cloud.OpSet, nil)
	assert.True(t, f.svc.FlushCloudQueue(ctx))
	assert.Zero(t, f.svc.Pending())

	v, _, err := f.cloud.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestService_SuccessfulWriteClearsOlderPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	f.bridge.Fail(cloud.OpSet, errors.New("network down"))
	require.NoError(t, f.svc.Set(ctx, "k", "1"))
	require.Equal(t, 1, f.svc.Pending())

	f.bridge.Fail(cloud.OpSet, nil)
	require.NoError(t, f.svc.Set(ctx, "k", "2"))
	assert.Zero(t, f.svc.Pending())
}

func TestService_FlushSingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, cloud.WithTimeout(time.Second))
	f.bridge.SetReady(false)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, f.svc.Set(ctx, k, "v"))
	}
	require.Equal(t, 3, f.svc.Pending())
	f.bridge.SetReady(true)

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.FlushCloudQueue(ctx)
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	// каждая отложенная запись отправлена ровно один раз
	assert.Equal(t, 3, f.bridge.Calls(cloud.OpSet))
}

func TestService_RemoveQueuesTombstone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	require.NoError(t, f.svc.Set(ctx, "k", "v"))
	f.bridge.SetReady(false)

	require.NoError(t, f.svc.Remove(ctx, "k"))
	_, ok := f.local.Get("k")
	assert.False(t, ok)

	snapshot := f.svc.QueueSnapshot()
	require.Len(t, snapshot, 1)
	assert.True(t, snapshot[0].Deleted)

	f.bridge.SetReady(true)
	require.True(t, f.svc.FlushCloudQueue(ctx))
	_, found, err := f.cloud.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_RemoveSurvivesCloudFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	require.NoError(t, f.svc.Set(ctx, "k", "v"))
	f.bridge.Fail(cloud.OpRemove, errors.New("network down"))

	require.NoError(t, f.svc.Remove(ctx, "k"))
	_, ok := f.local.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, f.svc.Pending())
}

func TestService_ValueTooLargeIsNotQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0, cloud.WithMaxValueBytes(128))

	res, err := f.svc.Write(ctx, "big", strings.Repeat("x", 200))
	require.NoError(t, err)
	assert.ErrorIs(t, res.Remote, cloud.ErrValueTooLarge)
	assert.False(t, res.Queued)
	assert.Zero(t, f.svc.Pending())

	v, ok := f.svc.GetLocal("big")
	assert.True(t, ok)
	assert.Len(t, v, 200)
}

func TestService_LocalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("quota", func(t *testing.T) {
		f := newFixture(t, 64)
		err := f.svc.Set(ctx, "big", strings.Repeat("x", 200))
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("invalid key", func(t *testing.T) {
		f := newFixture(t, 0)
		assert.ErrorIs(t, f.svc.Set(ctx, "bad key", "v"), ErrInvalidKey)
		assert.ErrorIs(t, f.svc.Remove(ctx, ""), ErrInvalidKey)
		_, _, err := f.svc.Get(ctx, strings.Repeat("k", 200))
		assert.ErrorIs(t, err, ErrInvalidKey)
		assert.Zero(t, f.bridge.Calls(cloud.OpSet))
	})
}

// reopen - новый процесс поверх того же локального хранилища и облака
func (f *fixture) reopen(t *testing.T) *fixture {
	t.Helper()
	codec, err := crypto.NewCodecFromKey(make([]byte, 32))
	require.NoError(t, err)
	log := slogdiscard.NewDiscardLogger()

	next := &fixture{backend: f.backend, bridge: f.bridge}
	next.local = local.NewAdapter(next.backend, codec, log)
	next.cloud = cloud.NewAdapter(next.bridge, codec, log)
	next.svc = New(next.local, next.cloud, log)
	return next
}

func TestService_QueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	require.NoError(t, f.svc.Set(ctx, "fasting_scheme", "old"))
	require.NoError(t, f.svc.Set(ctx, "user_name", "Аня"))

	f.bridge.Fail(cloud.OpSet, errors.New("network down"))
	f.bridge.Fail(cloud.OpRemove, errors.New("network down"))
	require.NoError(t, f.svc.Set(ctx, "fasting_scheme", "new"))
	require.NoError(t, f.svc.Remove(ctx, "user_name"))
	require.Equal(t, 2, f.svc.Pending())

	// процесс завершился с непустой очередью, облако вернулось
	f.bridge.Fail(cloud.OpSet, nil)
	f.bridge.Fail(cloud.OpRemove, nil)
	next := f.reopen(t)
	require.Equal(t, 2, next.svc.Pending())

	v, found, err := next.svc.Get(ctx, "fasting_scheme")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "new", v)

	_, found, err = next.svc.Get(ctx, "user_name")
	require.NoError(t, err)
	assert.False(t, found)

	// облако еще старое, но локальная копия не перезаписана
	stored, _ := next.local.Get("fasting_scheme")
	assert.Equal(t, "new", stored)

	require.True(t, next.svc.FlushCloudQueue(ctx))
	remote, _, err := next.cloud.Get(ctx, "fasting_scheme")
	require.NoError(t, err)
	assert.Equal(t, "new", remote)
	_, found, err = next.cloud.Get(ctx, "user_name")
	require.NoError(t, err)
	assert.False(t, found)

	_, marked := next.local.Get(pendingKey)
	assert.False(t, marked)
	assert.Zero(t, f.reopen(t).svc.Pending())
}

func TestService_PendingMarkerClearedOnSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.bridge.Fail(cloud.OpSet, errors.New("network down"))

	require.NoError(t, f.svc.Set(ctx, "theme_mode", "dark"))
	_, marked := f.local.Get(pendingKey)
	require.True(t, marked)

	f.bridge.Fail(cloud.OpSet, nil)
	require.NoError(t, f.svc.Set(ctx, "theme_mode", "light"))

	assert.Zero(t, f.svc.Pending())
	_, marked = f.local.Get(pendingKey)
	assert.False(t, marked)
}

func TestService_GetRemoteSkipsBackfill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	require.NoError(t, f.local.Set("theme_mode", "light"))
	require.NoError(t, f.cloud.Set(ctx, "theme_mode", "dark"))

	v, found, err := f.svc.GetRemote(ctx, "theme_mode")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dark", v)

	stored, _ := f.local.Get("theme_mode")
	assert.Equal(t, "light", stored)

	f.bridge.SetReady(false)
	_, _, err = f.svc.GetRemote(ctx, "theme_mode")
	assert.ErrorIs(t, err, cloud.ErrUnavailable)
}
