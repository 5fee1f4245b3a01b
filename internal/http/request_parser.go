// Package http provides HTTP server and handler implementations.
//
// This file turns submitted forms into domain input and keeps the raw
// values around so a rejected form can be shown back to the user as typed.

package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"despesas/internal/core"
)

var errInvalidID = errors.New("invalid expense id")

// expenseForm mirrors the create/edit form fields.
type expenseForm struct {
	ID           int64  // zero when creating
	FormID       string // identifies one rendering of the create form
	Valor        string
	Descricao    string
	Categoria    string
	DataRegistro string // datetime-local value
	SetDate      bool   // "old expense" checkbox: use DataRegistro instead of now
}

// parseExpenseForm reads the expense fields from a form post.
func parseExpenseForm(r *http.Request) (expenseForm, error) {
	if err := r.ParseForm(); err != nil {
		return expenseForm{}, err
	}
	return expenseForm{
		FormID:       sanitizeInput(r.PostForm.Get("form_id")),
		Valor:        sanitizeInput(r.PostForm.Get("valor")),
		Descricao:    sanitizeInput(r.PostForm.Get("descricao")),
		Categoria:    sanitizeInput(r.PostForm.Get("categoria")),
		DataRegistro: sanitizeInput(r.PostForm.Get("data_registro")),
		SetDate:      checkbox(r.PostForm.Get("antiga")),
	}, nil
}

// Input validates the form and converts it to an API payload. Errors are
// the core sentinels, see validationMessage.
func (f expenseForm) Input() (core.ExpenseInput, error) {
	valor, err := core.ParseValor(f.Valor)
	if err != nil {
		return core.ExpenseInput{}, err
	}
	in := core.ExpenseInput{
		Valor:     valor,
		Descricao: f.Descricao,
		Categoria: f.Categoria,
	}
	if f.SetDate {
		if f.DataRegistro == "" {
			return core.ExpenseInput{}, core.ErrInvalidTimestamp
		}
		ts, err := core.ParseTimestamp(f.DataRegistro)
		if err != nil {
			return core.ExpenseInput{}, err
		}
		in.DataRegistro = &ts
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.ExpenseInput{}, err
	}
	return in, nil
}

// formFromExpense fills the edit form. The date box starts checked so the
// current timestamp is kept visible; unchecking it leaves the date alone.
func formFromExpense(e core.Expense) expenseForm {
	f := expenseForm{
		ID:        e.ID,
		Valor:     e.Valor.StringFixed(2),
		Descricao: e.Descricao,
		Categoria: e.Categoria,
	}
	if !e.DataRegistro.IsZero() {
		f.DataRegistro = e.DataRegistro.UTC().Format(inputLayout)
		f.SetDate = true
	}
	return f
}

// validationMessage is the user-facing text for a core validation error,
// or "" when err is not one.
func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "Valor inválido"
	case errors.Is(err, core.ErrEmptyDescription):
		return "Descrição é obrigatória"
	case errors.Is(err, core.ErrDescriptionLength):
		return "Descrição deve ter no máximo " + strconv.Itoa(core.MaxDescricaoLen) + " caracteres"
	case errors.Is(err, core.ErrEmptyCategory):
		return "Categoria é obrigatória"
	case errors.Is(err, core.ErrCategoryLength):
		return "Categoria deve ter no máximo " + strconv.Itoa(core.MaxCategoriaLen) + " caracteres"
	case errors.Is(err, core.ErrInvalidTimestamp):
		return "Data inválida"
	}
	return ""
}

// pathID reads the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func checkbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "1", "true", "yes":
		return true
	}
	return false
}

// sanitizeInput removes control characters other than tab and newlines
// and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
