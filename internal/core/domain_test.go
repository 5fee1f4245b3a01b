package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestExpenseInputValidate(t *testing.T) {
	good := ExpenseInput{
		Valor:     decimal.RequireFromString("12.50"),
		Descricao: "Almoço",
		Categoria: "Food",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		in   ExpenseInput
		want error
	}{
		{ExpenseInput{Valor: decimal.Zero, Descricao: "a", Categoria: "c"}, ErrInvalidAmount},
		{ExpenseInput{Valor: decimal.NewFromInt(-3), Descricao: "a", Categoria: "c"}, ErrInvalidAmount},
		{ExpenseInput{Valor: decimal.NewFromInt(1), Descricao: "  ", Categoria: "c"}, ErrEmptyDescription},
		{ExpenseInput{Valor: decimal.NewFromInt(1), Descricao: strings.Repeat("x", 51), Categoria: "c"}, ErrDescriptionLength},
		{ExpenseInput{Valor: decimal.NewFromInt(1), Descricao: "a", Categoria: ""}, ErrEmptyCategory},
		{ExpenseInput{Valor: decimal.NewFromInt(1), Descricao: "a", Categoria: strings.Repeat("c", 51)}, ErrCategoryLength},
	}
	for i, tc := range bads {
		if err := tc.in.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestExpenseJSONRoundTrip(t *testing.T) {
	raw := `{"id":7,"valor":12.5,"descricao":"Uber","categoria":"Transport","data_registro":"2024-03-01T10:20:30.123456"}`
	var e Expense
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.ID != 7 || !e.Valor.Equal(decimal.RequireFromString("12.5")) || e.Categoria != "Transport" {
		t.Fatalf("unexpected expense: %+v", e)
	}
	want := time.Date(2024, 3, 1, 10, 20, 30, 123456000, time.UTC)
	if !e.DataRegistro.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", e.DataRegistro, want)
	}

	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"valor":12.5`) {
		t.Fatalf("valor must be a JSON number: %s", out)
	}
}

func TestExpenseInputOmitsNilTimestamp(t *testing.T) {
	in := ExpenseInput{Valor: decimal.NewFromInt(3), Descricao: "Pão", Categoria: "Food"}
	out, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), "data_registro") {
		t.Fatalf("data_registro should be omitted: %s", out)
	}

	ts := time.Date(2023, 12, 24, 18, 0, 0, 0, time.UTC)
	in.DataRegistro = &ts
	out, _ = json.Marshal(in)
	if !strings.Contains(string(out), `"data_registro":"2023-12-24T18:00:00Z"`) {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestExpenseInputUnmarshalMissingValor(t *testing.T) {
	var in ExpenseInput
	if err := json.Unmarshal([]byte(`{"descricao":"x","categoria":"y"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !in.Valor.IsZero() {
		t.Fatalf("expected zero valor, got %s", in.Valor)
	}
	if err := in.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-05-01T12:34:56+00:00", time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)},
		{"2024-05-01T12:34:56Z", time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)},
		{"2024-05-01T12:34:56", time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)},
		{"2024-05-01 12:34:56", time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)},
		{"2024-05-01T12:34", time.Date(2024, 5, 1, 12, 34, 0, 0, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%q = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}
