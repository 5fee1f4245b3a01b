package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"despesas/internal/core"
	"despesas/internal/ports"
)

// Store is an in-process Repository. It enforces the same rules as the
// expense API, including that categoria names an existing category.
type Store struct {
	mu     sync.Mutex
	cats   []string
	items  []core.Expense
	nextID int64
	now    func() time.Time
}

var _ ports.Repository = (*Store)(nil)

func New(cats []string) *Store {
	return &Store{cats: dedupeSorted(cats), nextID: 1, now: time.Now}
}

// NewFromFiles seeds categories from base/seed_categories.txt, one per line.
func NewFromFiles(base string) *Store {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = []string{"Alimentação", "Moradia", "Transporte"}
	}
	return New(cats)
}

// SetClock overrides the time source used for default timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) ListExpenses(_ context.Context, categories ...string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			want[c] = struct{}{}
		}
	}
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		if len(want) > 0 {
			if _, ok := want[e.Categoria]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DataRegistro.After(out[j].DataRegistro)
	})
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, ports.ErrExpenseNotFound
	}
	return s.items[i], nil
}

func (s *Store) CreateExpense(_ context.Context, in core.ExpenseInput) (int64, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasCategory(in.Categoria) {
		return 0, ports.ErrUnknownCategory
	}
	ts := s.now().UTC()
	if in.DataRegistro != nil {
		ts = in.DataRegistro.UTC()
	}
	e := core.Expense{
		ID:           s.nextID,
		Valor:        in.Valor,
		Descricao:    in.Descricao,
		Categoria:    in.Categoria,
		DataRegistro: ts,
	}
	s.nextID++
	s.items = append(s.items, e)
	return e.ID, nil
}

func (s *Store) UpdateExpense(_ context.Context, id int64, in core.ExpenseInput) error {
	in = in.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ports.ErrExpenseNotFound
	}
	if err := in.Validate(); err != nil {
		return err
	}
	if !s.hasCategory(in.Categoria) {
		return ports.ErrUnknownCategory
	}
	e := &s.items[i]
	e.Valor = in.Valor
	e.Descricao = in.Descricao
	e.Categoria = in.Categoria
	if in.DataRegistro != nil {
		e.DataRegistro = in.DataRegistro.UTC()
	}
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ports.ErrExpenseNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// ListCategories returns category names in alphabetical order.
func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.cats...)
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ports.ErrEmptyCategory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasCategory(name) {
		return ports.ErrCategoryExists
	}
	s.cats = append(s.cats, name)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) indexOf(id int64) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) hasCategory(name string) bool {
	for _, c := range s.cats {
		if c == name {
			return true
		}
	}
	return false
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupeSorted(out)
}

func dedupeSorted(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	// Preserve input order; listing sorts.
	return out
}
