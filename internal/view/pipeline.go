package view

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Result is one render's worth of derived data. Items, Summary and Chart
// are all computed from Filtered.
type Result struct {
	State     State // Page is the clamped page actually shown
	Filtered  []core.Expense
	Items     []core.Expense
	Page      int
	PageCount int
	Summary   core.Summary
	Chart     Chart
}

// Derive runs filter, sort, paginate and summarize over all. The input
// slice is never modified.
func Derive(all []core.Expense, st State) Result {
	if st.PageSize < 1 {
		st.PageSize = DefaultPageSize
	}
	filtered := Filter(all, st)
	SortExpenses(filtered, st.SortField, st.SortDesc)
	items, page, pages := Paginate(filtered, st.Page, st.PageSize)
	st.Page = page

	summary := Summarize(filtered)
	return Result{
		State:     st,
		Filtered:  filtered,
		Items:     items,
		Page:      page,
		PageCount: pages,
		Summary:   summary,
		Chart:     NewChart(summary),
	}
}

// Filter returns a new slice with the expenses passing every active filter.
func Filter(all []core.Expense, st State) []core.Expense {
	m := newMatcher(st)
	out := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if m.match(e) {
			out = append(out, e)
		}
	}
	return out
}

type matcher struct {
	categories map[string]struct{}
	search     string
	from       time.Time
	until      time.Time // exclusive
}

func newMatcher(st State) matcher {
	m := matcher{search: strings.ToLower(strings.TrimSpace(st.Search))}
	if len(st.Categories) > 0 {
		m.categories = make(map[string]struct{}, len(st.Categories))
		for _, c := range st.Categories {
			m.categories[c] = struct{}{}
		}
	}
	if st.From != nil {
		m.from = startOfDay(*st.From)
	}
	if st.To != nil {
		m.until = startOfDay(*st.To).AddDate(0, 0, 1)
	}
	return m
}

func (m matcher) match(e core.Expense) bool {
	if m.categories != nil {
		if _, ok := m.categories[e.Categoria]; !ok {
			return false
		}
	}
	if m.search != "" && !strings.Contains(strings.ToLower(e.Descricao), m.search) {
		return false
	}
	if !m.from.IsZero() && e.DataRegistro.Before(m.from) {
		return false
	}
	if !m.until.IsZero() && !e.DataRegistro.Before(m.until) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

// SortExpenses sorts items in place by one field. The sort is stable, so
// expenses comparing equal keep their relative order.
func SortExpenses(items []core.Expense, field Field, desc bool) {
	if !field.Valid() {
		return
	}
	cmp := comparator(field)
	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i], items[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func comparator(field Field) func(a, b core.Expense) int {
	switch field {
	case FieldID:
		return func(a, b core.Expense) int { return compareInt64(a.ID, b.ID) }
	case FieldValor:
		return func(a, b core.Expense) int { return a.Valor.Cmp(b.Valor) }
	case FieldDescricao:
		return func(a, b core.Expense) int { return strings.Compare(a.Descricao, b.Descricao) }
	case FieldCategoria:
		return func(a, b core.Expense) int { return strings.Compare(a.Categoria, b.Categoria) }
	default:
		return func(a, b core.Expense) int { return a.DataRegistro.Compare(b.DataRegistro) }
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// PageCount is ceil(n/size).
func PageCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Paginate returns the slice for page along with the page actually used.
// Pages below 1 become 1 and pages past the end clamp to the last page,
// so a filter that shrinks the set never leaves an empty page on screen.
func Paginate(items []core.Expense, page, size int) ([]core.Expense, int, int) {
	if size < 1 {
		size = DefaultPageSize
	}
	pages := PageCount(len(items), size)
	if page < 1 {
		page = 1
	}
	if pages == 0 {
		return []core.Expense{}, 1, 0
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], page, pages
}

// Summarize totals items overall and per category. Percentages are left at
// zero when the total is zero.
func Summarize(items []core.Expense) core.Summary {
	sum := core.Summary{Count: len(items), Total: decimal.Zero}
	idx := make(map[string]int)
	for _, e := range items {
		sum.Total = sum.Total.Add(e.Valor)
		i, ok := idx[e.Categoria]
		if !ok {
			i = len(sum.ByCategory)
			idx[e.Categoria] = i
			sum.ByCategory = append(sum.ByCategory, core.CategoryAmount{Name: e.Categoria, Amount: decimal.Zero})
		}
		sum.ByCategory[i].Amount = sum.ByCategory[i].Amount.Add(e.Valor)
		sum.ByCategory[i].Count++
	}

	for i := range sum.ByCategory {
		if sum.Total.IsZero() {
			sum.ByCategory[i].Percent = decimal.Zero
			continue
		}
		sum.ByCategory[i].Percent = sum.ByCategory[i].Amount.Mul(hundred).Div(sum.Total).Round(2)
	}

	sort.SliceStable(sum.ByCategory, func(i, j int) bool {
		a, b := sum.ByCategory[i], sum.ByCategory[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})
	return sum
}
