package refapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/ports"
)

const (
	msgMissingFields   = "Campos faltando"
	msgUnknownCategory = "Categoria inválida"
	msgNotFound        = "Despesa não encontrada"
	msgNameRequired    = "Nome é obrigatório"
	msgExists          = "Já existe"
	msgBadJSON         = "JSON inválido"
	msgInternal        = "Erro interno"
)

type createCategoryRequest struct {
	Name string `json:"name"`
}

// expenseRequest keeps valor raw so an absent amount can be told apart from
// a zero one.
type expenseRequest struct {
	Valor json.RawMessage `json:"valor"`
}

func (r expenseRequest) hasValor() bool {
	return len(r.Valor) > 0 && string(r.Valor) != "null"
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Health check failed", log.FieldError, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "db": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "connected"})
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.repo.ListCategories(r.Context())
	if err != nil {
		h.internalError(w, r, "categories.list", err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, msgNameRequired)
		return
	}
	if utf8.RuneCountInString(name) > core.MaxCategoriaLen {
		writeError(w, http.StatusBadRequest, "Nome deve ter no máximo "+strconv.Itoa(core.MaxCategoriaLen)+" caracteres")
		return
	}

	if err := h.repo.CreateCategory(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, ports.ErrCategoryExists):
			writeError(w, http.StatusConflict, msgExists)
		case errors.Is(err, ports.ErrEmptyCategory):
			writeError(w, http.StatusBadRequest, msgNameRequired)
		default:
			h.internalError(w, r, "categories.create", err)
		}
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Category created", "name", name)
	writeJSON(w, http.StatusCreated, map[string]string{"created": name})
}

// ListExpenses answers newest first. ?category=a,b keeps only those
// categories.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	var cats []string
	for _, c := range strings.Split(r.URL.Query().Get("category"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	items, err := h.repo.ListExpenses(r.Context(), cats...)
	if err != nil {
		h.internalError(w, r, "expenses.list", err)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	e, err := h.repo.GetExpense(r.Context(), id)
	if err != nil {
		h.expenseError(w, r, "expenses.get", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeExpense(w, r)
	if !ok {
		return
	}
	id, err := h.repo.CreateExpense(r.Context(), in)
	if err != nil {
		h.expenseError(w, r, "expenses.create", err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogExpenseWritten(r.Context(), log.OpCreate, id, in.Descricao, in.Valor.StringFixed(2), in.Categoria)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// UpdateExpense reports an unknown id before looking at the body. A
// missing data_registro keeps the stored timestamp.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	if _, err := h.repo.GetExpense(r.Context(), id); err != nil {
		h.expenseError(w, r, "expenses.update", err)
		return
	}
	in, ok := decodeExpense(w, r)
	if !ok {
		return
	}
	if err := h.repo.UpdateExpense(r.Context(), id, in); err != nil {
		h.expenseError(w, r, "expenses.update", err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogExpenseWritten(r.Context(), log.OpUpdate, id, in.Descricao, in.Valor.StringFixed(2), in.Categoria)
	writeJSON(w, http.StatusOK, map[string]int64{"updated": id})
}

func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(w, r)
	if !ok {
		return
	}
	if err := h.repo.DeleteExpense(r.Context(), id); err != nil {
		h.expenseError(w, r, "expenses.delete", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted", log.FieldExpenseID, id)
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// decodeExpense reads and validates the expense body. It writes the 400
// response itself and reports whether the caller should go on. An absent
// field is "Campos faltando"; a present amount must still be positive.
func decodeExpense(w http.ResponseWriter, r *http.Request) (core.ExpenseInput, bool) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, msgBadJSON)
		return core.ExpenseInput{}, false
	}
	var in core.ExpenseInput
	if err := json.Unmarshal(raw, &in); err != nil {
		if errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrInvalidTimestamp) {
			writeError(w, http.StatusBadRequest, validationMessage(err))
		} else {
			writeError(w, http.StatusBadRequest, msgBadJSON)
		}
		return core.ExpenseInput{}, false
	}
	var req expenseRequest
	_ = json.Unmarshal(raw, &req)

	in = in.Normalize()
	if !req.hasValor() || in.Descricao == "" || in.Categoria == "" {
		writeError(w, http.StatusBadRequest, msgMissingFields)
		return core.ExpenseInput{}, false
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return core.ExpenseInput{}, false
	}
	return in, true
}

func expenseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, msgNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handlers) expenseError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ports.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, ports.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, msgUnknownCategory)
	default:
		if msg := validationMessage(err); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		h.internalError(w, r, op, err)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), op+" failed",
		log.FieldOperation, op, log.FieldError, err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "Valor inválido"
	case errors.Is(err, core.ErrEmptyDescription), errors.Is(err, core.ErrEmptyCategory):
		return msgMissingFields
	case errors.Is(err, core.ErrDescriptionLength):
		return "Descrição deve ter no máximo " + strconv.Itoa(core.MaxDescricaoLen) + " caracteres"
	case errors.Is(err, core.ErrCategoryLength):
		return "Categoria deve ter no máximo " + strconv.Itoa(core.MaxCategoriaLen) + " caracteres"
	case errors.Is(err, core.ErrInvalidTimestamp):
		return "Data inválida"
	}
	return ""
}
