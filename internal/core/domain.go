package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Column widths of the expense API.
const (
	MaxDescricaoLen = 50
	MaxCategoriaLen = 50
)

type (
	// Expense is a single record as returned by the expense API.
	Expense struct {
		ID           int64
		Valor        decimal.Decimal
		Descricao    string
		Categoria    string // references a category by name
		DataRegistro time.Time
	}

	// ExpenseInput is the create/update payload. A nil DataRegistro lets the
	// server pick the timestamp (now on create, unchanged on update).
	ExpenseInput struct {
		Valor        decimal.Decimal
		Descricao    string
		Categoria    string
		DataRegistro *time.Time
	}

	// Category is a flat, uniquely named grouping label.
	Category struct {
		Name string
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrEmptyCategory     = errors.New("empty category")
	ErrDescriptionLength = fmt.Errorf("description too long (max %d characters)", MaxDescricaoLen)
	ErrCategoryLength    = fmt.Errorf("category too long (max %d characters)", MaxCategoriaLen)
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
)

func (in ExpenseInput) Validate() error {
	if !in.Valor.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.Descricao) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(in.Descricao) > MaxDescricaoLen {
		return ErrDescriptionLength
	}
	if strings.TrimSpace(in.Categoria) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(in.Categoria) > MaxCategoriaLen {
		return ErrCategoryLength
	}
	return nil
}

// Normalize trims the text fields the same way the API does before storing.
func (in ExpenseInput) Normalize() ExpenseInput {
	in.Descricao = strings.TrimSpace(in.Descricao)
	in.Categoria = strings.TrimSpace(in.Categoria)
	return in
}

// Input returns the payload that would recreate e.
func (e Expense) Input() ExpenseInput {
	ts := e.DataRegistro
	in := ExpenseInput{Valor: e.Valor, Descricao: e.Descricao, Categoria: e.Categoria}
	if !ts.IsZero() {
		in.DataRegistro = &ts
	}
	return in
}

type expenseJSON struct {
	ID           int64       `json:"id"`
	Valor        json.Number `json:"valor"`
	Descricao    string      `json:"descricao"`
	Categoria    string      `json:"categoria"`
	DataRegistro *string     `json:"data_registro"`
}

type expenseInputJSON struct {
	Valor        json.Number `json:"valor"`
	Descricao    string      `json:"descricao"`
	Categoria    string      `json:"categoria"`
	DataRegistro *string     `json:"data_registro,omitempty"`
}

// MarshalJSON keeps valor a JSON number, which the API expects.
func (e Expense) MarshalJSON() ([]byte, error) {
	w := expenseJSON{
		ID:        e.ID,
		Valor:     json.Number(e.Valor.String()),
		Descricao: e.Descricao,
		Categoria: e.Categoria,
	}
	if !e.DataRegistro.IsZero() {
		s := FormatTimestamp(e.DataRegistro)
		w.DataRegistro = &s
	}
	return json.Marshal(w)
}

func (e *Expense) UnmarshalJSON(data []byte) error {
	var w expenseJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	valor, err := decimalFromNumber(w.Valor)
	if err != nil {
		return fmt.Errorf("expense %d: %w", w.ID, err)
	}
	var ts time.Time
	if w.DataRegistro != nil && *w.DataRegistro != "" {
		if ts, err = ParseTimestamp(*w.DataRegistro); err != nil {
			return fmt.Errorf("expense %d: %w", w.ID, err)
		}
	}
	*e = Expense{
		ID:           w.ID,
		Valor:        valor,
		Descricao:    w.Descricao,
		Categoria:    w.Categoria,
		DataRegistro: ts,
	}
	return nil
}

func (in ExpenseInput) MarshalJSON() ([]byte, error) {
	w := expenseInputJSON{
		Valor:     json.Number(in.Valor.String()),
		Descricao: in.Descricao,
		Categoria: in.Categoria,
	}
	if in.DataRegistro != nil {
		s := FormatTimestamp(*in.DataRegistro)
		w.DataRegistro = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON tolerates a missing valor (left zero) so callers can report
// "missing fields" instead of a decode error.
func (in *ExpenseInput) UnmarshalJSON(data []byte) error {
	var w expenseInputJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var valor decimal.Decimal
	if w.Valor != "" {
		v, err := decimalFromNumber(w.Valor)
		if err != nil {
			return err
		}
		valor = v
	}
	out := ExpenseInput{Valor: valor, Descricao: w.Descricao, Categoria: w.Categoria}
	if w.DataRegistro != nil && *w.DataRegistro != "" {
		ts, err := ParseTimestamp(*w.DataRegistro)
		if err != nil {
			return err
		}
		out.DataRegistro = &ts
	}
	*in = out
	return nil
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// timestampLayouts are tried in order. Zone-less values are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp reads the ISO-like timestamps the API and HTML forms produce.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatTimestamp is the wire format for data_registro.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
