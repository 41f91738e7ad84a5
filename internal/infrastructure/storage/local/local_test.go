package local

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bodytweaker/internal/app/client/crypto"
	"bodytweaker/internal/utils/logger/handlers/slogdiscard"
)

func newTestAdapter(t *testing.T, backend Backend) *Adapter {
	t.Helper()
	codec, err := crypto.NewCodecFromKey(make([]byte, 32))
	require.NoError(t, err)
	return NewAdapter(backend, codec, slogdiscard.NewDiscardLogger())
}

func newSQLite(t *testing.T, quota int64) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "local.db"), quota)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func backends(t *testing.T, quota int64) map[string]Backend {
	return map[string]Backend{
		"memory": NewMemoryBackend(quota),
		"sqlite": newSQLite(t, quota),
	}
}

func TestBackend_CRUD(t *testing.T) {
	for name, b := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, found, err := b.Get("a")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, b.Set("a", "1"))
			require.NoError(t, b.Set("a", "2"))
			require.NoError(t, b.Set("b", ""))

			v, found, err := b.Get("a")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "2", v)

			v, found, err = b.Get("b")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "", v)

			require.NoError(t, b.Remove("a"))
			require.NoError(t, b.Remove("missing"))
			_, found, _ = b.Get("a")
			assert.False(t, found)
		})
	}
}

func TestBackend_KeysByPrefix(t *testing.T) {
	for name, b := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Set("bt_app_x", "1"))
			require.NoError(t, b.Set("bt_app_y", "1"))
			require.NoError(t, b.Set("other_z", "1"))

			keys, err := b.Keys("bt_app_")
			require.NoError(t, err)
			assert.Equal(t, []string{"bt_app_x", "bt_app_y"}, keys)
		})
	}
}

func TestBackend_Quota(t *testing.T) {
	for name, b := range backends(t, 20) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Set("k1", strings.Repeat("a", 10)))

			err := b.Set("k2", strings.Repeat("b", 10))
			assert.ErrorIs(t, err, ErrQuotaExceeded)

			// перезапись того же ключа считается без старого значения
			require.NoError(t, b.Set("k1", strings.Repeat("c", 18)))

			require.NoError(t, b.Remove("k1"))
			require.NoError(t, b.Set("k2", strings.Repeat("b", 10)))
		})
	}
}

func TestSQLiteBackend_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")

	b, err := NewSQLiteBackend(path, 0)
	require.NoError(t, err)
	require.NoError(t, b.Set("k", "v"))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(path, 0)
	require.NoError(t, err)
	defer b.Close()

	v, found, err := b.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	used, err := b.Used()
	require.NoError(t, err)
	assert.Equal(t, int64(2), used)
}

func TestAdapter_EncryptsWithPrefix(t *testing.T) {
	b := NewMemoryBackend(0)
	a := newTestAdapter(t, b)

	require.NoError(t, a.Set("theme_mode", "dark"))

	raw, found, err := b.Get(DefaultPrefix + "theme_mode")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEqual(t, "dark", raw)
	assert.True(t, strings.HasPrefix(raw, "enc1:"))

	v, ok := a.Get("theme_mode")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestAdapter_LegacyPlaintext(t *testing.T) {
	for name, b := range backends(t, 0) {
		t.Run(name, func(t *testing.T) {
			a := newTestAdapter(t, b)

			require.NoError(t, a.Set("encrypted", `{"a":1}`))
			require.NoError(t, b.Set(DefaultPrefix+"legacy", `{"a":1}`))

			v, ok := a.Get("encrypted")
			assert.True(t, ok)
			assert.Equal(t, `{"a":1}`, v)

			v, ok = a.Get("legacy")
			assert.True(t, ok)
			assert.Equal(t, `{"a":1}`, v)
		})
	}
}

func TestAdapter_SetErrors(t *testing.T) {
	t.Run("quota", func(t *testing.T) {
		a := newTestAdapter(t, NewMemoryBackend(16))
		err := a.Set("big", strings.Repeat("x", 100))
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.False(t, errors.Is(err, ErrWrite))
	})

	t.Run("generic", func(t *testing.T) {
		b := NewMemoryBackend(0)
		b.FailWrites = true
		a := newTestAdapter(t, b)

		err := a.Set("k", "v")
		assert.ErrorIs(t, err, ErrWrite)
		assert.False(t, errors.Is(err, ErrQuotaExceeded))
		assert.ErrorIs(t, a.Remove("k"), ErrWrite)
	})
}

func TestAdapter_ClearOnlyNamespace(t *testing.T) {
	b := NewMemoryBackend(0)
	a := newTestAdapter(t, b)

	require.NoError(t, a.Set("one", "1"))
	require.NoError(t, a.Set("two", "2"))
	require.NoError(t, b.Set("foreign_key", "keep"))

	keys, err := a.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, keys)

	removed, err := a.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, found, _ := b.Get("foreign_key")
	assert.True(t, found)
	keys, _ = a.Keys()
	assert.Empty(t, keys)
}

func TestAdapter_Available(t *testing.T) {
	b := NewMemoryBackend(0)
	a := newTestAdapter(t, b)
	assert.True(t, a.Available())
	assert.Zero(t, b.Used())

	b.FailWrites = true
	assert.False(t, a.Available())
}
