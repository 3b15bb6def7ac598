package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// FileExt marks the files a FileCache owns inside its directory.
const FileExt = ".cache"

// FileSystem is the slice of the OS a FileCache needs.
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Rename(oldpath, newpath string) error
	Remove(name string) error
	Glob(pattern string) ([]string, error)
}

type osFileSystem struct{}

func (osFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (osFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (osFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (osFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (osFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// envelope is the on-disk shape of one entry.
type envelope struct {
	Expires   time.Time       `json:"expires"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// FileCache keeps one JSON file per key. Writes go to a uniquely named
// temporary file in the same directory and are renamed over the target, so a
// reader sees either the old entry, the new one, or nothing.
type FileCache struct {
	dir    string
	fs     FileSystem
	clock  clock.Clock
	logger *log.Logger
}

// FileOption customizes a FileCache.
type FileOption func(*FileCache)

// WithFileSystem replaces the OS file system.
func WithFileSystem(fsys FileSystem) FileOption {
	return func(c *FileCache) { c.fs = fsys }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) FileOption {
	return func(c *FileCache) { c.clock = clk }
}

// NewFileCache creates a FileCache rooted at dir. The directory is created
// lazily on first write.
func NewFileCache(dir string, logger *log.Logger, opts ...FileOption) *FileCache {
	c := &FileCache{
		dir:    dir,
		fs:     osFileSystem{},
		clock:  clock.New(),
		logger: logger,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// path derives the entry file name from a hash of the key, never the key itself.
func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+FileExt)
}

func (c *FileCache) Get(_ context.Context, key string) (json.RawMessage, bool) {
	p := c.path(key)
	raw, err := c.fs.ReadFile(p)
	if err != nil {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Expires.IsZero() || len(env.Data) == 0 {
		return nil, false
	}
	if c.clock.Now().After(env.Expires) {
		if err := c.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Printf("WARN: cache: failed to remove expired entry %s: %v", filepath.Base(p), err)
		}
		return nil, false
	}
	return env.Data, true
}

func (c *FileCache) Set(_ context.Context, key string, data any, ttl time.Duration) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Printf("WARN: cache: failed to encode entry %q: %v", key, err)
		return false
	}
	now := c.clock.Now()
	encoded, err := json.Marshal(envelope{Expires: now.Add(ttl), Data: payload, CreatedAt: now})
	if err != nil {
		c.logger.Printf("WARN: cache: failed to encode envelope %q: %v", key, err)
		return false
	}

	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Printf("WARN: cache: failed to create directory %s: %v", c.dir, err)
		return false
	}

	target := c.path(key)
	tmp := target + ".tmp-" + uuid.NewString()
	if err := c.fs.WriteFile(tmp, encoded, 0o644); err != nil {
		c.logger.Printf("WARN: cache: failed to write %s: %v", filepath.Base(tmp), err)
		_ = c.fs.Remove(tmp)
		return false
	}
	if err := c.fs.Rename(tmp, target); err != nil {
		c.logger.Printf("WARN: cache: failed to rename %s: %v", filepath.Base(tmp), err)
		_ = c.fs.Remove(tmp)
		return false
	}
	return true
}

func (c *FileCache) Delete(_ context.Context, key string) {
	if err := c.fs.Remove(c.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Printf("WARN: cache: failed to delete %q: %v", key, err)
	}
}

// Clear removes every *.cache file in the directory. Other files are left alone.
func (c *FileCache) Clear(_ context.Context) (int, error) {
	matches, err := c.fs.Glob(filepath.Join(c.dir, "*"+FileExt))
	if err != nil {
		return 0, fmt.Errorf("cache: failed to list %s: %w", c.dir, err)
	}

	removed := 0
	var errs []error
	for _, m := range matches {
		if err := c.fs.Remove(m); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("cache: failed to remove %d entries: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}
