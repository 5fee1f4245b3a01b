package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

func TestParseExpenseForm(t *testing.T) {
	form := url.Values{
		"form_id":       {"abc"},
		"valor":         {"  10,5 "},
		"descricao":     {"Cafe\x00 da manha"},
		"categoria":     {"Food"},
		"data_registro": {"2024-01-02T03:04"},
		"antiga":        {"on"},
	}
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := parseExpenseForm(req)
	if err != nil {
		t.Fatal(err)
	}
	want := expenseForm{
		FormID:       "abc",
		Valor:        "10,5",
		Descricao:    "Cafe da manha",
		Categoria:    "Food",
		DataRegistro: "2024-01-02T03:04",
		SetDate:      true,
	}
	if got != want {
		t.Fatalf("parseExpenseForm() = %+v, want %+v", got, want)
	}
}

func TestExpenseFormInput(t *testing.T) {
	tests := []struct {
		name     string
		form     expenseForm
		wantErr  error
		wantDate *time.Time
	}{
		{
			name: "valid",
			form: expenseForm{Valor: "12,345", Descricao: " Cafe ", Categoria: "Food"},
		},
		{
			name:    "invalid amount",
			form:    expenseForm{Valor: "1e3", Descricao: "Cafe", Categoria: "Food"},
			wantErr: core.ErrInvalidAmount,
		},
		{
			name:    "empty description",
			form:    expenseForm{Valor: "1", Categoria: "Food"},
			wantErr: core.ErrEmptyDescription,
		},
		{
			name:    "empty category",
			form:    expenseForm{Valor: "1", Descricao: "Cafe"},
			wantErr: core.ErrEmptyCategory,
		},
		{
			name:    "date required when set",
			form:    expenseForm{Valor: "1", Descricao: "Cafe", Categoria: "Food", SetDate: true},
			wantErr: core.ErrInvalidTimestamp,
		},
		{
			name:    "malformed date",
			form:    expenseForm{Valor: "1", Descricao: "Cafe", Categoria: "Food", SetDate: true, DataRegistro: "ontem"},
			wantErr: core.ErrInvalidTimestamp,
		},
		{
			name:     "date used only when set",
			form:     expenseForm{Valor: "1", Descricao: "Cafe", Categoria: "Food", SetDate: true, DataRegistro: "2024-05-06T07:08"},
			wantDate: ptrTime(time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC)),
		},
		{
			name: "date ignored when unset",
			form: expenseForm{Valor: "1", Descricao: "Cafe", Categoria: "Food", DataRegistro: "2024-05-06T07:08"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.form.Input()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Input() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Input() unexpected error: %v", err)
			}
			switch {
			case tt.wantDate == nil && in.DataRegistro != nil:
				t.Errorf("DataRegistro = %v, want nil", in.DataRegistro)
			case tt.wantDate != nil && (in.DataRegistro == nil || !in.DataRegistro.Equal(*tt.wantDate)):
				t.Errorf("DataRegistro = %v, want %v", in.DataRegistro, tt.wantDate)
			}
		})
	}

	in, _ := expenseForm{Valor: "12,345", Descricao: " Cafe ", Categoria: "Food"}.Input()
	if !in.Valor.Equal(decimal.RequireFromString("12.35")) || in.Descricao != "Cafe" {
		t.Errorf("Input() = %+v, want rounded amount and trimmed text", in)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestFormFromExpense(t *testing.T) {
	e := core.Expense{
		ID:           7,
		Valor:        decimal.RequireFromString("3.5"),
		Descricao:    "Pao",
		Categoria:    "Food",
		DataRegistro: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	f := formFromExpense(e)
	if f.ID != 7 || f.Valor != "3.50" || !f.SetDate || f.DataRegistro != "2024-02-03T04:05" {
		t.Fatalf("formFromExpense() = %+v", f)
	}

	// re-submitting the untouched edit form keeps the minute-precision date
	in, err := f.Input()
	if err != nil {
		t.Fatal(err)
	}
	if !in.DataRegistro.Equal(time.Date(2024, 2, 3, 4, 5, 0, 0, time.UTC)) {
		t.Errorf("round trip date = %v", in.DataRegistro)
	}
}

func TestValidationMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{core.ErrInvalidAmount, "Valor inválido"},
		{core.ErrEmptyDescription, "Descrição é obrigatória"},
		{core.ErrDescriptionLength, "Descrição deve ter no máximo 50 caracteres"},
		{core.ErrEmptyCategory, "Categoria é obrigatória"},
		{core.ErrCategoryLength, "Categoria deve ter no máximo 50 caracteres"},
		{core.ErrInvalidTimestamp, "Data inválida"},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		if got := validationMessage(tt.err); got != tt.want {
			t.Errorf("validationMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("id", tt.value)
		got, err := pathID(req)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("pathID(%q) = %d, %v", tt.value, got, err)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal text", "normal text"},
		{"  trimmed  ", "trimmed"},
		{"with\x00null", "withnull"},
		{"tab\there", "tab\there"},
		{"line\nbreak", "line\nbreak"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCheckbox(t *testing.T) {
	for _, v := range []string{"on", "1", "true", "YES"} {
		if !checkbox(v) {
			t.Errorf("checkbox(%q) = false", v)
		}
	}
	for _, v := range []string{"", "off", "0"} {
		if checkbox(v) {
			t.Errorf("checkbox(%q) = true", v)
		}
	}
}
