// Package view derives what the expense screen shows from the full list of
// expenses and the transient view state. Everything here is pure: the
// table, summary and chart of one render come from a single Derive call.
package view

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Field is a sortable expense column.
type Field string

const (
	FieldID           Field = "id"
	FieldValor        Field = "valor"
	FieldDescricao    Field = "descricao"
	FieldCategoria    Field = "categoria"
	FieldDataRegistro Field = "data_registro"
)

const (
	DefaultPageSize = 10
	dateLayout      = "2006-01-02"
)

// Valid reports whether f names a sortable column.
func (f Field) Valid() bool {
	switch f {
	case FieldID, FieldValor, FieldDescricao, FieldCategoria, FieldDataRegistro:
		return true
	}
	return false
}

// State is the client-held filter, sort and page selection. It is never
// persisted; the UI carries it in the query string.
type State struct {
	Page       int
	PageSize   int
	Categories []string // OR within the category dimension
	Search     string   // case-insensitive substring of descricao
	From       *time.Time
	To         *time.Time // inclusive: the whole day counts
	SortField  Field
	SortDesc   bool
}

// DefaultState is the initial screen: newest expenses first.
func DefaultState(pageSize int) State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return State{
		Page:      1,
		PageSize:  pageSize,
		SortField: FieldDataRegistro,
		SortDesc:  true,
	}
}

// ToggleSort flips the direction when f is already the sort field and
// otherwise switches to f ascending.
func (s State) ToggleSort(f Field) State {
	if !f.Valid() {
		return s
	}
	if s.SortField == f {
		s.SortDesc = !s.SortDesc
		return s
	}
	s.SortField = f
	s.SortDesc = false
	return s
}

// WithFilters replaces every filter and goes back to the first page.
func (s State) WithFilters(categories []string, search string, from, to *time.Time) State {
	s.Categories = normalizeCategories(categories)
	s.Search = strings.TrimSpace(search)
	s.From = from
	s.To = to
	s.Page = 1
	return s
}

// ResetFilters clears the filters, keeping sort and page size.
func (s State) ResetFilters() State {
	return s.WithFilters(nil, "", nil, nil)
}

func (s State) WithPage(page int) State {
	s.Page = page
	return s
}

func (s State) HasFilters() bool {
	return len(s.Categories) > 0 || s.Search != "" || s.From != nil || s.To != nil
}

// Selected reports whether category is part of the category filter.
func (s State) Selected(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ParseState reads the view state from query parameters. Unknown or
// malformed values fall back to defaults instead of failing the request.
func ParseState(q url.Values, pageSize int) State {
	s := DefaultState(pageSize)

	if v, err := strconv.Atoi(strings.TrimSpace(q.Get("page"))); err == nil {
		s.Page = v
	}
	if f := Field(strings.TrimSpace(q.Get("sort"))); f.Valid() {
		s.SortField = f
		s.SortDesc = false
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("dir"))) {
	case "desc":
		s.SortDesc = true
	case "asc":
		s.SortDesc = false
	}

	var cats []string
	for _, v := range q["category"] {
		// "a,b" is accepted as well, like the API's ?category= parameter
		cats = append(cats, strings.Split(v, ",")...)
	}
	s.Categories = normalizeCategories(cats)
	s.Search = strings.TrimSpace(q.Get("q"))
	s.From = parseDay(q.Get("from"))
	s.To = parseDay(q.Get("to"))
	return s
}

// Values encodes the state for links and forms. It is the inverse of
// ParseState for every valid state.
func (s State) Values() url.Values {
	q := url.Values{}
	if s.Page > 1 {
		q.Set("page", strconv.Itoa(s.Page))
	}
	if s.SortField != "" {
		q.Set("sort", string(s.SortField))
		if s.SortDesc {
			q.Set("dir", "desc")
		} else {
			q.Set("dir", "asc")
		}
	}
	for _, c := range s.Categories {
		q.Add("category", c)
	}
	if s.Search != "" {
		q.Set("q", s.Search)
	}
	if s.From != nil {
		q.Set("from", s.From.Format(dateLayout))
	}
	if s.To != nil {
		q.Set("to", s.To.Format(dateLayout))
	}
	return q
}

// Query is the encoded query string, stable for equal states.
func (s State) Query() string {
	return s.Values().Encode()
}

// FromValue and ToValue feed <input type="date"> fields.
func (s State) FromValue() string {
	if s.From == nil {
		return ""
	}
	return s.From.Format(dateLayout)
}

func (s State) ToValue() string {
	if s.To == nil {
		return ""
	}
	return s.To.Format(dateLayout)
}

func parseDay(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil
	}
	return &t
}

func normalizeCategories(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
