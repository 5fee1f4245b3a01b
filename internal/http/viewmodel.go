package http

import (
	"context"
	"errors"
	"html/template"

	"despesas/internal/core"
	"despesas/internal/remote"
	"despesas/internal/view"
)

// listData feeds the "expenses" partial: table, pagination, summary and
// chart from one view.Result, plus the load status banner.
type listData struct {
	view.Result
	Categories []string
	Loaded     bool
	Version    uint64
	LoadError  string
}

// Query is the encoded view state, used by the partial to re-request
// itself. The query strings are typed as URLs so templates keep their
// separators instead of escaping them.
func (d listData) Query() template.URL { return template.URL(d.State.Query()) }

// SortQuery is the state after clicking the column header for field.
func (d listData) SortQuery(field string) template.URL {
	return template.URL(d.State.ToggleSort(view.Field(field)).WithPage(1).Query())
}

// SortMark is the arrow shown next to the active sort column.
func (d listData) SortMark(field string) string {
	if d.State.SortField != view.Field(field) {
		return ""
	}
	if d.State.SortDesc {
		return "▼"
	}
	return "▲"
}

func (d listData) PageQuery(page int) template.URL {
	return template.URL(d.State.WithPage(page).Query())
}

func (d listData) Pages() []int {
	pages := make([]int, d.PageCount)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

func (d listData) HasPrev() bool { return d.Page > 1 }
func (d listData) HasNext() bool { return d.Page < d.PageCount }
func (d listData) PrevPage() int { return d.Page - 1 }
func (d listData) NextPage() int { return d.Page + 1 }

func (d listData) Selected(category string) bool { return d.State.Selected(category) }

// formData feeds the "expense_form" partial.
type formData struct {
	expenseForm
	Categories []string
	Error      string
}

func (f formData) Editing() bool { return f.ID > 0 }

func (f formData) Options() categoryOptions {
	return categoryOptions{Categories: withCategory(f.Categories, f.Categoria), Selected: f.Categoria}
}

// categoryOptions feeds the "category_options" partial.
type categoryOptions struct {
	Categories []string
	Selected   string
}

type categoryFormData struct {
	Name  string
	Error string
}

type pageData struct {
	List         listData
	Form         formData
	CategoryForm categoryFormData
	LiveUpdates  bool
}

func (s *Server) listData(ctx context.Context, st view.State) listData {
	status := s.store.Status()
	d := listData{
		Result:     s.derive(ctx, status.Snapshot, st),
		Categories: filterCategories(status.Categories, status.Expenses, st.Categories),
		Loaded:     status.Loaded(),
		Version:    status.Version,
	}
	if status.LoadErr != nil {
		d.LoadError = loadErrorMessage(status.LoadErr)
	}
	return d
}

func loadErrorMessage(err error) string {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return "Falha ao carregar despesas: " + remote.Message(err)
	}
	return "Falha ao carregar despesas"
}

// withCategory makes sure the current value of an edited expense stays
// selectable even when it is missing from the category list.
func withCategory(cats []string, c string) []string {
	if c == "" {
		return cats
	}
	for _, x := range cats {
		if x == c {
			return cats
		}
	}
	out := make([]string, 0, len(cats)+1)
	out = append(out, cats...)
	return append(out, c)
}

// filterCategories is the category list followed by any category that only
// appears on loaded expenses or in the active filter, in first-seen order.
func filterCategories(cats []string, expenses []core.Expense, selected []string) []string {
	seen := make(map[string]struct{}, len(cats))
	out := make([]string, 0, len(cats))
	add := func(c string) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range cats {
		add(c)
	}
	for _, e := range expenses {
		add(e.Categoria)
	}
	for _, c := range selected {
		add(c)
	}
	return out
}
