package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/agentuity/storefront/logger"
	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/resilience"
	"github.com/agentuity/storefront/store"
	"github.com/cockroachdb/errors"
)

// Op is the remote operation a Task performs.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Task is one local write waiting to reach the remote store.
type Task struct {
	Seq        uint64
	Kind       Kind
	Op         Op
	ID         int64
	Category   *menu.Category
	Item       *menu.Item
	Attempts   int
	Err        string
	Transient  bool
	EnqueuedAt time.Time
}

func (t Task) String() string {
	return fmt.Sprintf("%s %s/%d", t.Op, t.Kind, t.ID)
}

func (t Task) key() string {
	return fmt.Sprintf("%s/%d", t.Kind, t.ID)
}

// Mirror replays local writes against the remote store in order. Tasks that
// exhaust their retries are parked as failed; they still count as pending so
// the catalog does not overwrite the local write with remote data.
type Mirror struct {
	remote store.Store
	log    logger.Logger
	retry  resilience.RetryConfig
	now    func() time.Time

	mu       sync.Mutex
	seq      uint64
	queue    []Task
	inflight map[uint64]Task
	failed   []Task
	applied  map[string]uint64
	wake     chan struct{}
}

// DefaultMirrorRetry retries transient remote failures with backoff.
func DefaultMirrorRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxRetries = 4
	cfg.RetryableErrors = retryable
	return cfg
}

func retryable(err error) bool {
	return store.IsUnavailable(err) &&
		!errors.Is(err, resilience.ErrCircuitBreakerOpen) &&
		!errors.Is(err, context.Canceled)
}

// NewMirror returns an idle Mirror. Call Run to start applying tasks.
func NewMirror(log logger.Logger, remote store.Store, retry resilience.RetryConfig) *Mirror {
	if retry.RetryableErrors == nil {
		retry.RetryableErrors = retryable
	}
	return &Mirror{
		remote:   remote,
		log:      log.WithPrefix("[mirror]"),
		retry:    retry,
		now:      time.Now,
		inflight: make(map[uint64]Task),
		applied:  make(map[string]uint64),
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends t to the queue.
func (m *Mirror) Enqueue(t Task) {
	m.mu.Lock()
	m.seq++
	t.Seq = m.seq
	t.Attempts = 0
	t.Err = ""
	t.EnqueuedAt = m.now()
	m.queue = append(m.queue, t)
	m.mu.Unlock()
	m.log.Trace("queued %s", t)
	m.notify()
}

func (m *Mirror) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether any queued, running or failed task is for kind.
func (m *Mirror) Pending(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range [][]Task{m.queue, m.failed} {
		for _, t := range list {
			if t.Kind == kind {
				return true
			}
		}
	}
	for _, t := range m.inflight {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// PendingDelete reports whether a delete of kind/id is queued, running or
// parked. The record is gone locally even though the remote still has it.
func (m *Mirror) PendingDelete(kind Kind, id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	match := func(t Task) bool { return t.Kind == kind && t.ID == id && t.Op == OpDelete }
	if slices.ContainsFunc(m.queue, match) || slices.ContainsFunc(m.failed, match) {
		return true
	}
	for _, t := range m.inflight {
		if match(t) {
			return true
		}
	}
	return false
}

// Queued returns the tasks waiting to run, oldest first.
func (m *Mirror) Queued() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queue)
}

// Failed returns the parked tasks, oldest first.
func (m *Mirror) Failed() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.failed)
}

// Requeue moves every failed task back to the head of the queue and
// returns how many were moved.
func (m *Mirror) Requeue() int {
	return m.requeue(func(Task) bool { return true })
}

func (m *Mirror) requeue(match func(Task) bool) int {
	m.mu.Lock()
	var moved, kept []Task
	for _, t := range m.failed {
		if match(t) {
			t.Attempts = 0
			t.Err = ""
			moved = append(moved, t)
		} else {
			kept = append(kept, t)
		}
	}
	m.failed = kept
	m.queue = append(moved, m.queue...)
	m.mu.Unlock()
	if len(moved) > 0 {
		m.log.Info("requeued %d failed tasks", len(moved))
		m.notify()
	}
	return len(moved)
}

// Discard drops the failed tasks of kind, or all of them when kind is empty,
// and returns how many were dropped.
func (m *Mirror) Discard(kind Kind) int {
	m.mu.Lock()
	var kept []Task
	for _, t := range m.failed {
		if kind != "" && t.Kind != kind {
			kept = append(kept, t)
		}
	}
	dropped := len(m.failed) - len(kept)
	m.failed = kept
	m.mu.Unlock()
	if dropped > 0 {
		m.log.Warn("discarded %d failed tasks", dropped)
	}
	return dropped
}

func (m *Mirror) next() (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Task{}, false
	}
	t := m.queue[0]
	m.queue = m.queue[1:]
	m.inflight[t.Seq] = t
	return t, true
}

func (m *Mirror) process(ctx context.Context, t Task) {
	m.mu.Lock()
	superseded := m.applied[t.key()] > t.Seq
	m.mu.Unlock()

	var (
		err   error
		stats resilience.RetryStats
	)
	if superseded {
		m.log.Debug("skipping %s, a newer write was already mirrored", t)
	} else {
		stats, err = resilience.RetryWithStats(ctx, m.retry, func() error {
			t.Attempts++
			return m.apply(ctx, t)
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, t.Seq)
	switch {
	case err == nil:
		if !superseded {
			m.applied[t.key()] = t.Seq
			m.log.Debug("mirrored %s after %d attempts, %s in backoff", t, t.Attempts, stats.TotalBackoff)
		}
	case ctx.Err() != nil:
		m.queue = append([]Task{t}, m.queue...)
	default:
		t.Err = err.Error()
		t.Transient = store.IsUnavailable(err)
		m.failed = append(m.failed, t)
		m.log.Error("mirroring %s failed after %d attempts: %s", t, t.Attempts, err)
	}
}

func (m *Mirror) apply(ctx context.Context, t Task) error {
	switch {
	case t.Kind == KindCategories && t.Op == OpUpsert && t.Category != nil:
		return m.remote.UpsertCategory(ctx, *t.Category)
	case t.Kind == KindCategories && t.Op == OpDelete:
		return m.remote.DeleteCategory(ctx, t.ID)
	case t.Kind == KindItems && t.Op == OpUpsert && t.Item != nil:
		return m.remote.UpsertItem(ctx, *t.Item)
	case t.Kind == KindItems && t.Op == OpDelete:
		return m.remote.DeleteItem(ctx, t.ID)
	}
	return errors.Newf("malformed task %s", t)
}

// Drain applies queued tasks until the queue is empty or ctx is done and
// returns the number of failed tasks.
func (m *Mirror) Drain(ctx context.Context) int {
	for ctx.Err() == nil {
		t, ok := m.next()
		if !ok {
			break
		}
		m.process(ctx, t)
	}
	return len(m.Failed())
}

// Run applies tasks as they are queued until ctx is done. When retryEvery is
// positive, failed tasks with a transient error are requeued on that interval.
func (m *Mirror) Run(ctx context.Context, retryEvery time.Duration) error {
	var tick <-chan time.Time
	if retryEvery > 0 {
		ticker := time.NewTicker(retryEvery)
		defer ticker.Stop()
		tick = ticker.C
	}
	m.log.Debug("mirror started")
	for {
		m.Drain(ctx)
		select {
		case <-ctx.Done():
			m.log.Debug("mirror stopped with %d queued tasks", len(m.Queued()))
			return nil
		case <-m.wake:
		case <-tick:
			m.requeue(func(t Task) bool { return t.Transient })
		}
	}
}
