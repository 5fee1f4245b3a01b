// Package store keeps the last loaded copy of the expense list and applies
// writes by calling the backend and then reloading everything from it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"despesas/internal/core"
	"despesas/internal/ports"
)

const refreshTimeout = 30 * time.Second

var (
	// ErrBusy means a write with the same key is still in flight.
	ErrBusy = errors.New("operation already in progress")
	// ErrReloadFailed wraps the reload error after a write that succeeded.
	ErrReloadFailed = errors.New("saved, but reloading the list failed")
)

// Op and Kind describe a successful local write.
type (
	Op   string
	Kind string
)

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"

	KindExpense  Kind = "expense"
	KindCategory Kind = "category"
)

// Change is emitted after every successful write.
type Change struct {
	Op   Op
	Kind Kind
	ID   int64  // expense id, zero for categories
	Name string // category name, empty for expenses
	At   time.Time
}

// Snapshot is one consistent load of the backend. Slices are never
// modified after installation; readers may keep them.
type Snapshot struct {
	Expenses   []core.Expense
	Categories []string
	Version    uint64
	LoadedAt   time.Time
}

// Loaded reports whether any load has succeeded yet.
func (s Snapshot) Loaded() bool { return s.Version > 0 }

// Status is the snapshot plus the outcome of the latest load attempt.
type Status struct {
	Snapshot
	LoadErr error // nil when the latest reload succeeded
}

type Store struct {
	repo   ports.Repository
	logger *slog.Logger
	now    func() time.Time

	seq atomic.Uint64
	sf  singleflight.Group

	mu        sync.RWMutex
	snap      Snapshot
	installed uint64 // seq of the installed snapshot
	errSeq    uint64
	loadErr   error

	busyMu sync.Mutex
	busy   map[string]struct{}

	subMu     sync.RWMutex
	listeners []func(Change)
}

func New(repo ports.Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		busy:   make(map[string]struct{}),
	}
}

// OnChange registers fn to run after each successful write. Listeners run
// synchronously on the writing goroutine and must not block.
func (s *Store) OnChange(fn func(Change)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{Snapshot: s.snap, LoadErr: s.loadErr}
}

// Reload fetches expenses and categories concurrently and installs them,
// unless a reload that started later has already been installed. On error
// the previous snapshot is kept and returned along with the error.
func (s *Store) Reload(ctx context.Context) (Snapshot, error) {
	seq := s.seq.Add(1)

	var (
		expenses   []core.Expense
		categories []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = s.repo.ListExpenses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.repo.ListCategories(gctx)
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if seq > s.errSeq && seq > s.installed {
			s.errSeq = seq
			s.loadErr = err
		}
		s.logger.WarnContext(ctx, "Reload failed", "seq", seq, "error", err)
		return s.snap, fmt.Errorf("reload: %w", err)
	}

	if seq <= s.installed {
		s.logger.DebugContext(ctx, "Discarding stale reload", "seq", seq, "installed", s.installed)
		return s.snap, nil
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	if categories == nil {
		categories = []string{}
	}
	s.installed = seq
	if seq > s.errSeq {
		s.loadErr = nil
	}
	s.snap = Snapshot{
		Expenses:   expenses,
		Categories: categories,
		Version:    s.snap.Version + 1,
		LoadedAt:   s.now(),
	}
	s.logger.DebugContext(ctx, "Snapshot installed",
		"snapshot_version", s.snap.Version,
		"expenses", len(expenses),
		"categories", len(categories))
	return s.snap, nil
}

// Refresh is Reload with concurrent callers sharing one in-flight fetch.
// The shared fetch is detached from the caller that started it, so one
// caller going away does not fail the others; each caller still stops
// waiting when its own ctx is done.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	ch := s.sf.DoChan("reload", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.Reload(rctx)
	})
	select {
	case res := <-ch:
		return res.Val.(Snapshot), res.Err
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// EnsureLoaded refreshes only when nothing has been loaded yet.
func (s *Store) EnsureLoaded(ctx context.Context) (Snapshot, error) {
	if snap := s.Snapshot(); snap.Loaded() {
		return snap, nil
	}
	return s.Refresh(ctx)
}

// Get fetches a single expense from the backend.
func (s *Store) Get(ctx context.Context, id int64) (core.Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// CreateKey and ExpenseKey build busy keys for the write methods.
func CreateKey(formID string) string { return "create:" + formID }

func ExpenseKey(id int64) string { return "expense:" + strconv.FormatInt(id, 10) }

const categoryKey = "category"

// Create saves a new expense. formID identifies the submitting form so a
// double submit of the same form is rejected with ErrBusy.
func (s *Store) Create(ctx context.Context, formID string, in core.ExpenseInput) (int64, error) {
	release, err := s.acquire(CreateKey(formID))
	if err != nil {
		return 0, err
	}
	defer release()

	id, err := s.repo.CreateExpense(ctx, in)
	if err != nil {
		return 0, err
	}
	return id, s.afterWrite(ctx, Change{Op: OpCreated, Kind: KindExpense, ID: id})
}

func (s *Store) Update(ctx context.Context, id int64, in core.ExpenseInput) error {
	release, err := s.acquire(ExpenseKey(id))
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.UpdateExpense(ctx, id, in); err != nil {
		return err
	}
	return s.afterWrite(ctx, Change{Op: OpUpdated, Kind: KindExpense, ID: id})
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	release, err := s.acquire(ExpenseKey(id))
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	return s.afterWrite(ctx, Change{Op: OpDeleted, Kind: KindExpense, ID: id})
}

func (s *Store) CreateCategory(ctx context.Context, name string) error {
	release, err := s.acquire(categoryKey)
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.CreateCategory(ctx, name); err != nil {
		return err
	}
	return s.afterWrite(ctx, Change{Op: OpCreated, Kind: KindCategory, Name: name})
}

// afterWrite announces the change and reloads. The write already happened,
// so a reload failure is reported as ErrReloadFailed rather than as a
// failed write.
func (s *Store) afterWrite(ctx context.Context, c Change) error {
	c.At = s.now().UTC()
	s.logger.InfoContext(ctx, "Write applied", "op", c.Op, "kind", c.Kind, "expense_id", c.ID, "name", c.Name)

	_, err := s.Reload(ctx)
	s.emit(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReloadFailed, err)
	}
	return nil
}

func (s *Store) emit(c Change) {
	s.subMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.subMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

func (s *Store) acquire(key string) (func(), error) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if _, ok := s.busy[key]; ok {
		return nil, ErrBusy
	}
	s.busy[key] = struct{}{}
	return func() {
		s.busyMu.Lock()
		delete(s.busy, key)
		s.busyMu.Unlock()
	}, nil
}

// Busy reports whether a write keyed by key is in flight.
func (s *Store) Busy(key string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	_, ok := s.busy[key]
	return ok
}
