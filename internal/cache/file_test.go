package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileCache(t *testing.T, opts ...FileOption) (*FileCache, *clock.Mock, *bytes.Buffer) {
	t.Helper()
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	var logs bytes.Buffer
	logger := log.New(&logs, "", 0)
	c := NewFileCache(filepath.Join(t.TempDir(), "cache"), logger, append([]FileOption{WithClock(mockClock)}, opts...)...)
	return c, mockClock, &logs
}

func TestFileCache_RoundTrip(t *testing.T) {
	c, _, _ := newTestFileCache(t)
	ctx := context.Background()

	value := map[string]any{"total": 1, "items": []any{map[string]any{"sku": "A1", "title": "Şarjlı Matkap"}}}
	require.True(t, c.Set(ctx, "products:page:1", value, time.Minute))

	raw, ok := c.Get(ctx, "products:page:1")
	require.True(t, ok)
	assert.JSONEq(t, `{"total":1,"items":[{"sku":"A1","title":"Şarjlı Matkap"}]}`, string(raw))
}

func TestFileCache_ExpiryRemovesFile(t *testing.T) {
	c, mockClock, _ := newTestFileCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "k", "v", 0))
	_, err := os.Stat(c.path("k"))
	require.NoError(t, err)

	mockClock.Add(time.Second)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	_, err = os.Stat(c.path("k"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "expired entry should be removed")
}

func TestFileCache_ValidUntilExpiry(t *testing.T) {
	c, mockClock, _ := newTestFileCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "k", 42, time.Minute))
	mockClock.Add(59 * time.Second)
	raw, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "42", string(raw))

	mockClock.Add(2 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestFileCache_EnvelopeShape(t *testing.T) {
	c, mockClock, _ := newTestFileCache(t)
	require.True(t, c.Set(context.Background(), "k", []int{1, 2}, time.Hour))

	raw, err := os.ReadFile(c.path("k"))
	require.NoError(t, err)
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.JSONEq(t, `[1,2]`, string(env["data"]))

	var expires, created time.Time
	require.NoError(t, json.Unmarshal(env["expires"], &expires))
	require.NoError(t, json.Unmarshal(env["created_at"], &created))
	assert.True(t, created.Equal(mockClock.Now()))
	assert.True(t, expires.Equal(mockClock.Now().Add(time.Hour)))
}

func TestFileCache_FilenameIsHashOfKey(t *testing.T) {
	c, _, _ := newTestFileCache(t)
	key := "../../etc/passwd:" + strings.Repeat("ç", 300)
	require.True(t, c.Set(context.Background(), key, "x", time.Minute))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, FileExt))
	assert.Len(t, name, 64+len(FileExt))
}

func TestFileCache_CorruptOrMissingIsAbsent(t *testing.T) {
	c, _, _ := newTestFileCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "never-set")
	assert.False(t, ok)

	require.NoError(t, os.MkdirAll(c.Dir(), 0o755))
	require.NoError(t, os.WriteFile(c.path("torn"), []byte(`{"expires":"2030-01-01T00:00:00Z","da`), 0o644))
	_, ok = c.Get(ctx, "torn")
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(c.path("shape"), []byte(`{"value":1}`), 0o644))
	_, ok = c.Get(ctx, "shape")
	assert.False(t, ok)
}

func TestFileCache_DeleteAndClear(t *testing.T) {
	c, _, _ := newTestFileCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, c.Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute))
	}
	unrelated := filepath.Join(c.Dir(), "keep.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))

	c.Delete(ctx, "k0")
	c.Delete(ctx, "k0")
	_, ok := c.Get(ctx, "k0")
	assert.False(t, ok)

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "clear must not touch files it does not own")

	n, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type failingRenameFS struct {
	osFileSystem
	mu      sync.Mutex
	removed []string
}

func (f *failingRenameFS) Rename(string, string) error { return errors.New("cross-device link") }
func (f *failingRenameFS) Remove(name string) error {
	f.mu.Lock()
	f.removed = append(f.removed, name)
	f.mu.Unlock()
	return os.Remove(name)
}

func TestFileCache_WriteFailureReportsFalse(t *testing.T) {
	fsys := &failingRenameFS{}
	c, _, logs := newTestFileCache(t, WithFileSystem(fsys))
	ctx := context.Background()

	assert.False(t, c.Set(ctx, "k", "v", time.Minute))
	require.Len(t, fsys.removed, 1)
	assert.Contains(t, fsys.removed[0], ".tmp-")
	assert.Contains(t, logs.String(), "WARN:")

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file must be cleaned up")

	assert.False(t, c.Set(ctx, "bad", make(chan int), time.Minute), "unencodable payload")
}

func TestFileCache_ConcurrentSetNeverTears(t *testing.T) {
	c := NewFileCache(t.TempDir(), log.New(&bytes.Buffer{}, "", 0))
	ctx := context.Background()

	big := func(ch string) string { return strings.Repeat(ch, 64*1024) }
	v1, v2 := big("a"), big("b")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := v1
			if i%2 == 1 {
				v = v2
			}
			for j := 0; j < 25; j++ {
				c.Set(ctx, "shared", v, time.Minute)
			}
		}(i)
	}

	var readerErr error
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			raw, ok := c.Get(ctx, "shared")
			if !ok {
				continue
			}
			var got string
			if err := json.Unmarshal(raw, &got); err != nil || (got != v1 && got != v2) {
				readerErr = fmt.Errorf("torn read: %d bytes", len(raw))
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()
	require.NoError(t, readerErr)

	raw, ok := c.Get(ctx, "shared")
	require.True(t, ok)
	var final string
	require.NoError(t, json.Unmarshal(raw, &final))
	assert.True(t, final == v1 || final == v2)
}
