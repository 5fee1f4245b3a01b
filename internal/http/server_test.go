package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/ports"
	"despesas/internal/ports/memory"
	"despesas/internal/store"
)

// failingRepo serves categories but fails every expense list.
type failingRepo struct {
	*memory.Store
	err error
}

func (f *failingRepo) ListExpenses(context.Context, ...string) ([]core.Expense, error) {
	return nil, f.err
}

// blockingRepo holds UpdateExpense until release is closed.
type blockingRepo struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRepo) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	close(b.entered)
	<-b.release
	return b.Store.UpdateExpense(ctx, id, in)
}

// shortCategoriesRepo answers with a category list that lacks some of the
// categories its expenses use.
type shortCategoriesRepo struct {
	*memory.Store
	cats []string
}

func (r *shortCategoriesRepo) ListCategories(context.Context) ([]string, error) {
	return r.cats, nil
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func testLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

func newTestServer(t testing.TB, repo ports.Repository, pinger ports.Pinger) *Server {
	t.Helper()
	logger := testLogger()
	st := store.New(repo, logger.Slog())
	srv := NewServer(st, Options{Addr: ":0", PageSize: 2, Pinger: pinger, Logger: logger})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func seededRepo(t testing.TB) *memory.Store {
	t.Helper()
	repo := memory.New([]string{"Food", "Transport"})
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seed := []struct {
		valor, desc, cat string
		at               time.Time
	}{
		{"12.50", "Cafe", "Food", base},
		{"40.00", "Uber", "Transport", base.Add(time.Hour)},
		{"7.25", "Pao", "Food", base.Add(2 * time.Hour)},
	}
	for _, s := range seed {
		at := s.at
		in := core.ExpenseInput{
			Valor:        decimal.RequireFromString(s.valor),
			Descricao:    s.desc,
			Categoria:    s.cat,
			DataRegistro: &at,
		}
		if _, err := repo.CreateExpense(context.Background(), in); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return repo
}

func serve(srv *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func expenseValues(valor, desc, cat string) url.Values {
	return url.Values{"valor": {valor}, "descricao": {desc}, "categoria": {cat}}
}

func TestIndexRendersPage(t *testing.T) {
	srv := newTestServer(t, seededRepo(t), nil)

	rr := serve(srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Despesas", "expense-form", "category-form", "Pao", "R$ 59.75"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	// page size 2, newest first: the oldest expense is on page 2
	if strings.Contains(body, ">Cafe<") {
		t.Error("first page should not list the oldest expense")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("request id header not set")
	}
}

func TestHealthAndReady(t *testing.T) {
	repo := seededRepo(t)
	srv := newTestServer(t, repo, repo)

	rr := serve(srv, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}

	rr = serve(srv, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "ready" || got.Checks["backend"] != "ok" {
		t.Fatalf("unexpected readiness: %+v", got)
	}
}

func TestReadyFailsWhenBackendIsDown(t *testing.T) {
	srv := newTestServer(t, seededRepo(t), downPinger{})

	rr := serve(srv, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Errorf("readyz body missing cause: %s", rr.Body.String())
	}
}

func TestExpensesPartialFilters(t *testing.T) {
	srv := newTestServer(t, seededRepo(t), nil)

	tests := []struct {
		name    string
		query   string
		want    []string
		notWant []string
	}{
		{"category", "category=Transport", []string{"Uber", "R$ 40.00"}, []string{">Pao<", ">Cafe<"}},
		{"search is case-insensitive", "q=CAF", []string{">Cafe<"}, []string{">Uber<", ">Pao<"}},
		{"second page", "page=2", []string{">Cafe<"}, []string{">Pao<"}},
		{"sorted by value", "sort=valor&dir=asc", []string{">Pao<", ">Cafe<"}, []string{">Uber<"}},
		{"no match", "q=zzz", []string{"Nenhuma despesa encontrada."}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(srv, http.MethodGet, "/ui/expenses?"+tt.query, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d", rr.Code)
			}
			body := rr.Body.String()
			if strings.Contains(body, "<html") {
				t.Error("partial rendered the full page")
			}
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("body missing %q", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(body, w) {
					t.Errorf("body unexpectedly contains %q", w)
				}
			}
		})
	}
}

func TestFilterOffersCategoriesMissingFromList(t *testing.T) {
	repo := &shortCategoriesRepo{Store: seededRepo(t), cats: []string{"Food"}}
	srv := newTestServer(t, repo, nil)

	rr := serve(srv, http.MethodGet, "/ui/expenses", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	for _, c := range []string{"Food", "Transport"} {
		if want := `name="category" value="` + c + `"`; !strings.Contains(rr.Body.String(), want) {
			t.Errorf("filter is missing a chip for %s", c)
		}
	}

	rr = serve(srv, http.MethodGet, "/ui/expenses?category=Transport", nil)
	body := rr.Body.String()
	if !strings.Contains(body, ">Uber<") || strings.Contains(body, ">Cafe<") {
		t.Fatalf("filtering by an unlisted category failed: %s", body)
	}
}

func TestCreateExpense(t *testing.T) {
	repo := memory.New([]string{"Food"})
	srv := newTestServer(t, repo, nil)

	form := expenseValues("12,50", "Almoco", "Food")
	form.Set("form_id", "f-1")
	rr := serve(srv, http.MethodPost, "/expenses", form)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, ev := range []string{EventExpensesRefresh, EventFormReset, "success"} {
		if !strings.Contains(trigger, ev) {
			t.Errorf("HX-Trigger %q missing %q", trigger, ev)
		}
	}
	if strings.Contains(rr.Body.String(), "Almoco") {
		t.Error("form should be reset after saving")
	}

	items, _ := repo.ListExpenses(context.Background())
	if len(items) != 1 || !items[0].Valor.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected stored expenses: %+v", items)
	}
}

func TestCreateExpenseWithOldDate(t *testing.T) {
	repo := memory.New([]string{"Food"})
	srv := newTestServer(t, repo, nil)

	form := expenseValues("3", "Pao", "Food")
	form.Set("antiga", "on")
	form.Set("data_registro", "2023-12-31T08:30")
	if rr := serve(srv, http.MethodPost, "/expenses", form); rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	items, _ := repo.ListExpenses(context.Background())
	want := time.Date(2023, 12, 31, 8, 30, 0, 0, time.UTC)
	if len(items) != 1 || !items[0].DataRegistro.Equal(want) {
		t.Fatalf("unexpected stored expenses: %+v", items)
	}
}

func TestCreateExpenseRejected(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		status  int
		message string
	}{
		{"invalid amount", expenseValues("abc", "Cafe", "Food"), http.StatusUnprocessableEntity, "Valor inválido"},
		{"zero amount", expenseValues("0", "Cafe", "Food"), http.StatusUnprocessableEntity, "Valor inválido"},
		{"missing description", expenseValues("1", "  ", "Food"), http.StatusUnprocessableEntity, "Descrição é obrigatória"},
		{"long description", expenseValues("1", strings.Repeat("x", 51), "Food"), http.StatusUnprocessableEntity, "no máximo 50"},
		{"missing category", expenseValues("1", "Cafe", ""), http.StatusUnprocessableEntity, "Categoria é obrigatória"},
		{"unknown category", expenseValues("1", "Cafe", "Lazer"), http.StatusUnprocessableEntity, "Categoria inválida"},
		{"old expense without date", func() url.Values {
			v := expenseValues("1", "Cafe", "Food")
			v.Set("antiga", "on")
			return v
		}(), http.StatusUnprocessableEntity, "Data inválida"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New([]string{"Food"})
			srv := newTestServer(t, repo, nil)

			rr := serve(srv, http.MethodPost, "/expenses", tt.form)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d", rr.Code, tt.status)
			}
			if !strings.Contains(rr.Body.String(), tt.message) {
				t.Errorf("body missing %q: %s", tt.message, rr.Body.String())
			}
			if !strings.Contains(rr.Header().Get("HX-Trigger"), EventShowNotification) {
				t.Error("rejected form should trigger a notification")
			}
			if items, _ := repo.ListExpenses(context.Background()); len(items) != 0 {
				t.Fatalf("nothing should be stored, got %d", len(items))
			}
		})
	}
}

func TestCreateExpenseKeepsTypedValues(t *testing.T) {
	srv := newTestServer(t, memory.New([]string{"Food"}), nil)

	rr := serve(srv, http.MethodPost, "/expenses", expenseValues("abc", "Mercado", "Food"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `value="Mercado"`) || !strings.Contains(body, `value="abc"`) {
		t.Errorf("typed values not kept: %s", body)
	}
}

func TestEditExpenseForm(t *testing.T) {
	srv := newTestServer(t, seededRepo(t), nil)

	rr := serve(srv, http.MethodGet, "/expenses/1/edit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`hx-put="/expenses/1"`, `value="Cafe"`, `value="12.50"`, `value="2024-03-10T12:00"`} {
		if !strings.Contains(body, want) {
			t.Errorf("edit form missing %q", want)
		}
	}

	if rr := serve(srv, http.MethodGet, "/expenses/99/edit", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing expense status=%d, want 404", rr.Code)
	}
	if rr := serve(srv, http.MethodGet, "/expenses/abc/edit", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status=%d, want 400", rr.Code)
	}
}

func TestCancelEditReturnsBlankForm(t *testing.T) {
	srv := newTestServer(t, seededRepo(t), nil)

	rr := serve(srv, http.MethodGet, "/expenses/new?cancel=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `hx-post="/expenses"`) {
		t.Error("expected the create form")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), msgEditCanceled) {
		t.Error("cancel should notify")
	}
}

func TestUpdateExpense(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			repo := seededRepo(t)
			srv := newTestServer(t, repo, nil)

			rr := serve(srv, method, "/expenses/2", expenseValues("45", "Taxi", "Transport"))
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Header().Get("HX-Trigger"), EventExpensesRefresh) {
				t.Error("update should refresh the list")
			}

			e, err := repo.GetExpense(context.Background(), 2)
			if err != nil {
				t.Fatal(err)
			}
			if e.Descricao != "Taxi" || !e.Valor.Equal(decimal.NewFromInt(45)) {
				t.Fatalf("not updated: %+v", e)
			}
			// the date box was unchecked, so the timestamp is untouched
			if !e.DataRegistro.Equal(time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC)) {
				t.Errorf("timestamp changed: %v", e.DataRegistro)
			}
		})
	}
}

func TestUpdateMissingExpense(t *testing.T) {
	srv := newTestServer(t, seededRepo(t), nil)

	rr := serve(srv, http.MethodPut, "/expenses/99", expenseValues("1", "X", "Food"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), msgNotFound) {
		t.Error("body missing not-found message")
	}
}

func TestDeleteExpense(t *testing.T) {
	repo := seededRepo(t)
	srv := newTestServer(t, repo, nil)

	rr := serve(srv, http.MethodDelete, "/expenses/1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), EventExpensesRefresh) {
		t.Error("delete should refresh the list")
	}
	if _, err := repo.GetExpense(context.Background(), 1); !errors.Is(err, ports.ErrExpenseNotFound) {
		t.Fatalf("expense still present: %v", err)
	}

	rr = serve(srv, http.MethodPost, "/expenses/1/delete", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), msgDeleteFailed) {
		t.Error("failed delete should notify")
	}
}

func TestCreateCategory(t *testing.T) {
	repo := memory.New([]string{"Food"})
	srv := newTestServer(t, repo, nil)

	rr := serve(srv, http.MethodPost, "/categories", url.Values{"name": {" Lazer "}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), EventCategoriesChanged) {
		t.Error("category creation should refresh the selects")
	}
	cats, _ := repo.ListCategories(context.Background())
	if len(cats) != 2 {
		t.Fatalf("categories=%v", cats)
	}

	rr = serve(srv, http.MethodGet, "/ui/categories?categoria=Lazer", nil)
	if !strings.Contains(rr.Body.String(), `<option value="Lazer" selected>`) {
		t.Errorf("new category not selectable: %s", rr.Body.String())
	}

	tests := []struct {
		name    string
		value   string
		status  int
		message string
	}{
		{"duplicate", "Lazer", http.StatusConflict, "Já existe"},
		{"blank", "   ", http.StatusUnprocessableEntity, "Nome é obrigatório"},
		{"too long", strings.Repeat("c", 51), http.StatusUnprocessableEntity, "no máximo 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(srv, http.MethodPost, "/categories", url.Values{"name": {tt.value}})
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d", rr.Code, tt.status)
			}
			if !strings.Contains(rr.Body.String(), tt.message) {
				t.Errorf("body missing %q", tt.message)
			}
		})
	}
}

func TestWriteInFlightIsRejected(t *testing.T) {
	repo := &blockingRepo{
		Store:   seededRepo(t),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv := newTestServer(t, repo, nil)

	done := make(chan int, 1)
	go func() {
		rr := serve(srv, http.MethodPut, "/expenses/1", expenseValues("2", "Cafe", "Food"))
		done <- rr.Code
	}()
	<-repo.entered

	rr := serve(srv, http.MethodPut, "/expenses/1", expenseValues("3", "Cafe", "Food"))
	if rr.Code != http.StatusConflict {
		t.Fatalf("concurrent update status=%d, want 409", rr.Code)
	}

	close(repo.release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first update status=%d", code)
	}
	e, _ := repo.GetExpense(context.Background(), 1)
	if !e.Valor.Equal(decimal.NewFromInt(2)) {
		t.Errorf("valor=%s, want 2", e.Valor)
	}
}

func TestLoadErrorShowsBanner(t *testing.T) {
	repo := &failingRepo{Store: memory.New([]string{"Food"}), err: errors.New("dial tcp: connection refused")}
	srv := newTestServer(t, repo, nil)

	rr := serve(srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Falha ao carregar despesas", "Nenhum dado carregado.", "data-dismiss"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestWebsocketDisabledWithoutHub(t *testing.T) {
	srv := newTestServer(t, memory.New(nil), nil)

	if rr := serve(srv, http.MethodGet, "/ws", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
}

func TestWrongMethod(t *testing.T) {
	srv := newTestServer(t, memory.New(nil), nil)

	if rr := serve(srv, http.MethodGet, "/expenses", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rr.Code)
	}
}
