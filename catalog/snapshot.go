package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind names one of the two cached entity types.
type Kind string

const (
	KindCategories Kind = "categories"
	KindItems      Kind = "items"
)

func (k Kind) fileName() string {
	if k == KindItems {
		return "products.json"
	}
	return "categories.json"
}

// State is the freshness of a snapshot.
type State int

const (
	StateEmpty State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateFresh:
		return "FRESH"
	case StateStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type snapshot[T any] struct {
	kind     Kind
	path     string
	catalog  *Catalog
	fetch    func(ctx context.Context) ([]T, error)
	fallback func() []T
	order    func(a, b T) int

	mu       sync.Mutex
	records  []T
	loadedAt time.Time
	loaded   bool
}

func (s *snapshot[T]) get(ctx context.Context) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(ctx)
	return slices.Clone(s.records)
}

func (s *snapshot[T]) state(now time.Time) State {
	switch {
	case !s.loaded:
		return StateEmpty
	case now.Sub(s.loadedAt) < s.catalog.ttl:
		return StateFresh
	default:
		return StateStale
	}
}

// ensure must be called with the lock held.
func (s *snapshot[T]) ensure(ctx context.Context) {
	if s.state(s.catalog.now()) == StateFresh {
		return
	}
	s.load(ctx)
}

// load brings the snapshot up to date: a fresh file wins, then the remote
// store, then whatever is already held, then the file at any age, then the
// built-in default. Must be called with the lock held.
func (s *snapshot[T]) load(ctx context.Context) {
	log := s.catalog.log
	now := s.catalog.now()

	disk, diskAt, err := readSnapshot[T](s.path)
	hasDisk := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("ignoring unreadable %s cache file %s: %s", s.kind, s.path, err)
	}
	if hasDisk && now.Sub(diskAt) < s.catalog.ttl {
		log.Trace("loaded %d %s from %s", len(disk), s.kind, s.path)
		s.set(disk, diskAt)
		return
	}

	if s.catalog.mirror != nil && s.catalog.mirror.Pending(s.kind) {
		if !s.loaded && hasDisk {
			s.set(disk, diskAt)
		}
		if s.loaded {
			log.Debug("deferring %s refresh until pending writes are mirrored", s.kind)
			return
		}
	}

	records, err := s.fetch(ctx)
	if err == nil {
		_ = s.adopt(records, now)
		return
	}
	log.Warn("refreshing %s from the remote store failed: %s", s.kind, err)
	switch {
	case s.loaded:
	case hasDisk:
		s.set(disk, diskAt)
	default:
		// never persisted, and stale from the start so the next read retries
		s.set(s.fallback(), time.Time{})
	}
}

// adopt persists records fetched from the remote and swaps them in. When the
// write fails memory still serves the new records, but loaded_at is left
// as it was so the snapshot stays stale and the next read persists again.
func (s *snapshot[T]) adopt(records []T, at time.Time) error {
	records = s.sorted(records)
	if err := writeSnapshot(s.path, records, at); err != nil {
		s.catalog.log.Error("writing %s cache file: %s", s.kind, err)
		s.set(records, s.loadedAt)
		return errors.Wrapf(err, "persist %s", s.kind)
	}
	s.catalog.log.Debug("refreshed %d %s from the remote store", len(records), s.kind)
	s.set(records, at)
	return nil
}

func (s *snapshot[T]) set(records []T, at time.Time) {
	if records == nil {
		records = []T{}
	}
	s.records = records
	s.loadedAt = at
	s.loaded = true
}

func (s *snapshot[T]) sorted(records []T) []T {
	if s.order != nil {
		slices.SortStableFunc(records, s.order)
	}
	return records
}

// mutate runs fn on a copy of the records, persists the result and swaps it
// in, then enqueues the mirror task fn returned. A persist failure leaves the
// snapshot untouched.
func (s *snapshot[T]) mutate(ctx context.Context, fn func(records []T) ([]T, *Task, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(ctx)

	next, task, err := fn(slices.Clone(s.records))
	if err != nil {
		return err
	}
	next = s.sorted(next)
	now := s.catalog.now()
	if err := writeSnapshot(s.path, next, now); err != nil {
		return errors.Wrapf(err, "persist %s", s.kind)
	}
	s.set(next, now)
	if task != nil && s.catalog.mirror != nil {
		s.catalog.mirror.Enqueue(*task)
	}
	return nil
}

// refresh pulls from the remote regardless of age or pending writes.
func (s *snapshot[T]) refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.fetch(ctx)
	if err != nil {
		return errors.Wrapf(err, "refresh %s", s.kind)
	}
	return s.adopt(records, s.catalog.now())
}

type fileSnapshot[T any] struct {
	LoadedAt time.Time `json:"loaded_at"`
	Records  []T       `json:"records"`
}

// readSnapshot reads a cache file. A bare JSON array is accepted and dated by
// the file modification time.
func readSnapshot[T any](path string) ([]T, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var records []T
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, time.Time{}, errors.Wrapf(err, "decode %s", path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, time.Time{}, err
		}
		return records, info.ModTime(), nil
	}
	var file fileSnapshot[T]
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, time.Time{}, errors.Wrapf(err, "decode %s", path)
	}
	if file.LoadedAt.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			return nil, time.Time{}, err
		}
		file.LoadedAt = info.ModTime()
	}
	return file.Records, file.LoadedAt, nil
}

// writeSnapshot replaces path atomically with an indented snapshot document.
func writeSnapshot[T any](path string, records []T, loadedAt time.Time) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(fileSnapshot[T]{LoadedAt: loadedAt.UTC(), Records: records}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replace cache file")
}
