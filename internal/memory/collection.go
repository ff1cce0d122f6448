package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/zuckermanai/zuckerman-sub001/internal/model"
)

// record constrains the pointer type of a stored memory so generic code can
// reach its common fields.
type record[T any] interface {
	*T
	Meta() *model.Base
}

// collection is one JSON file holding every record of one memory type.
type collection[T any, P record[T]] struct {
	path  string
	kind  model.Type
	locks *Locks
	cache *ReadCache
	log   *zap.Logger
	now   func() time.Time
}

func newCollection[T any, P record[T]](path string, kind model.Type, env *env) *collection[T, P] {
	return &collection[T, P]{
		path:  path,
		kind:  kind,
		locks: env.locks,
		cache: env.cache,
		log:   env.log.With(zap.String("store", string(kind))),
		now:   env.now,
	}
}

// all returns a copy of every record. Read failures yield an empty
// collection and a warning.
func (c *collection[T, P]) all() []T {
	st := StatFile(c.path)
	if v, ok := c.cache.Get(c.path, st); ok {
		return slices.Clone(v.([]T))
	}
	items, err := c.read()
	if err != nil {
		c.log.Warn("read store failed, using empty collection", zap.String("path", c.path), zap.Error(err))
		return nil
	}
	if st.Exists {
		c.cache.Put(c.path, st, slices.Clone(items))
	}
	return items
}

func (c *collection[T, P]) read() ([]T, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreIOError{Op: "read", Path: c.path, Err: err}
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &StoreIOError{Op: "parse", Path: c.path, Err: err}
	}
	return items, nil
}

// mutate runs one load→modify→save cycle under the file's lock. fn returns
// the new contents and whether anything changed; unchanged collections are
// not rewritten.
func (c *collection[T, P]) mutate(fn func(items []T) ([]T, bool)) error {
	mu := c.locks.For(c.path)
	mu.Lock()
	defer mu.Unlock()

	items, err := c.read()
	if err != nil {
		var ioErr *StoreIOError
		if !errors.As(err, &ioErr) || ioErr.Op != "parse" {
			return err
		}
		backup, err := c.quarantine()
		if err != nil {
			return err
		}
		c.log.Warn("store file unreadable, moved aside and starting from empty collection",
			zap.String("path", c.path), zap.String("backup", backup), zap.Error(ioErr.Err))
		items = nil
	}
	items, changed := fn(items)
	if !changed {
		return nil
	}
	if err := c.write(items); err != nil {
		c.cache.Invalidate(c.path)
		return err
	}
	c.cache.Put(c.path, StatFile(c.path), slices.Clone(items))
	return nil
}

// quarantine renames an unparseable store file to <name>.corrupt-<ts> so
// the next write cannot destroy its contents.
func (c *collection[T, P]) quarantine() (string, error) {
	backup := fmt.Sprintf("%s.corrupt-%s", c.path, c.now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(c.path, backup); err != nil {
		return "", &StoreIOError{Op: "quarantine", Path: c.path, Err: err}
	}
	c.cache.Invalidate(c.path)
	return backup, nil
}

// write replaces the file atomically: a failed write leaves the previous
// contents in place.
func (c *collection[T, P]) write(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return &StoreIOError{Op: "encode", Path: c.path, Err: err}
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StoreIOError{Op: "write", Path: c.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return &StoreIOError{Op: "write", Path: c.path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreIOError{Op: "write", Path: c.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreIOError{Op: "write", Path: c.path, Err: err}
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return &StoreIOError{Op: "write", Path: c.path, Err: err}
	}
	return nil
}

// add assigns id, type and timestamps and appends rec.
func (c *collection[T, P]) add(rec T) (T, error) {
	now := c.now().UTC()
	b := P(&rec).Meta()
	b.ID = ulid.Make().String()
	b.Type = c.kind
	b.CreatedAt = now
	b.UpdatedAt = now
	err := c.mutate(func(items []T) ([]T, bool) {
		return append(items, rec), true
	})
	return rec, err
}

func (c *collection[T, P]) get(id string) (T, bool) {
	for _, it := range c.all() {
		if P(&it).Meta().ID == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// update applies fn to the record with id. fn reports whether it changed
// anything; a changed record gets a fresh UpdatedAt that never precedes
// CreatedAt.
func (c *collection[T, P]) update(id string, fn func(*T) (bool, error)) (T, bool, error) {
	var (
		out   T
		found bool
		fnErr error
	)
	err := c.mutate(func(items []T) ([]T, bool) {
		for i := range items {
			b := P(&items[i]).Meta()
			if b.ID != id {
				continue
			}
			found = true
			changed, err := fn(&items[i])
			if err != nil {
				fnErr = err
				return items, false
			}
			if changed {
				b.UpdatedAt = c.stamp(b.CreatedAt)
			}
			out = items[i]
			return items, changed
		}
		return items, false
	})
	if fnErr != nil {
		return out, found, fnErr
	}
	return out, found, err
}

func (c *collection[T, P]) remove(id string) (bool, error) {
	var found bool
	err := c.mutate(func(items []T) ([]T, bool) {
		for i := range items {
			if P(&items[i]).Meta().ID == id {
				found = true
				return slices.Delete(items, i, i+1), true
			}
		}
		return items, false
	})
	return found && err == nil, err
}

func (c *collection[T, P]) stamp(created time.Time) time.Time {
	now := c.now().UTC()
	if now.Before(created) {
		return created
	}
	return now
}

// SortByRecency orders records most-recently-updated first, ties by id.
func SortByRecency[T any, P record[T]](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := P(&items[i]).Meta(), P(&items[j]).Meta()
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
