package http

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"

	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/ports"
	"despesas/internal/remote"
	"despesas/internal/store"
	"despesas/internal/view"
)

const (
	msgSaved         = "Despesa salva com sucesso!"
	msgSavedNoReload = "Despesa salva, mas não foi possível recarregar a lista"
	msgSaveFailed    = "Erro ao salvar despesa"
	msgDeleted       = "Despesa excluída"
	msgDeleteFailed  = "Erro ao excluir"
	msgEditCanceled  = "Edição cancelada"
	msgNotFound      = "Despesa não encontrada"
	msgBadRequest    = "Formato da requisição inválido"
)

// handleIndex renders the whole screen. It always reloads first; on
// failure the last loaded snapshot is shown under an error banner.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := s.store.Refresh(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Showing last loaded expenses", log.FieldError, err)
	}

	list := s.listData(ctx, view.ParseState(r.URL.Query(), s.pageSize))
	data := pageData{
		List:        list,
		Form:        s.blankForm(list.Categories),
		LiveUpdates: s.hub != nil,
	}
	s.respond(ctx, w, NewHTMXResponse(), "index.html", data)
}

// handleExpensesPartial renders the list for the view state in the query.
// It reuses the current snapshot unless refresh=1 asks for a reload; the
// snapshot is already reloaded after every write and change event.
func (s *Server) handleExpensesPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var err error
	if checkbox(q.Get("refresh")) {
		_, err = s.store.Refresh(ctx)
	} else {
		_, err = s.store.EnsureLoaded(ctx)
	}
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Showing last loaded expenses", log.FieldError, err)
	}

	s.respond(ctx, w, NewHTMXResponse(), "expenses", s.listData(ctx, view.ParseState(q, s.pageSize)))
}

func (s *Server) handleNewExpenseForm(w http.ResponseWriter, r *http.Request) {
	b := NewHTMXResponse()
	if checkbox(r.URL.Query().Get("cancel")) {
		b.TriggerInfoNotification(msgEditCanceled)
	}
	s.respond(r.Context(), w, b, "expense_form", s.blankForm(s.store.Snapshot().Categories))
}

func (s *Server) handleEditExpenseForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		status, msg := s.writeError(err)
		log.FromContext(ctx).WarnContext(ctx, "Failed to load expense for editing",
			log.FieldExpenseID, id, log.FieldError, err)
		NewHTMXResponse().Status(status).TriggerErrorNotification(msg).Write(w)
		return
	}

	data := formData{expenseForm: formFromExpense(e), Categories: s.store.Snapshot().Categories}
	s.respond(ctx, w, NewHTMXResponse(), "expense_form", data)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form, err := parseExpenseForm(r)
	if err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	if form.FormID == "" {
		form.FormID = uuid.NewString()
	}

	in, err := form.Input()
	if err != nil {
		s.formError(ctx, w, form, err)
		return
	}

	id, err := s.store.Create(ctx, form.FormID, in)
	if err != nil && !errors.Is(err, store.ErrReloadFailed) {
		s.formError(ctx, w, form, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(ctx)).
		LogExpenseWritten(ctx, log.OpCreate, id, in.Descricao, in.Valor.StringFixed(2), in.Categoria)
	s.saved(ctx, w, err)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	form, err := parseExpenseForm(r)
	if err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	form.ID = id

	in, err := form.Input()
	if err != nil {
		s.formError(ctx, w, form, err)
		return
	}

	err = s.store.Update(ctx, id, in)
	if err != nil && !errors.Is(err, store.ErrReloadFailed) {
		s.formError(ctx, w, form, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(ctx)).
		LogExpenseWritten(ctx, log.OpUpdate, id, in.Descricao, in.Valor.StringFixed(2), in.Categoria)
	s.saved(ctx, w, err)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}

	err = s.store.Delete(ctx, id)
	if err != nil && !errors.Is(err, store.ErrReloadFailed) {
		status, msg := s.writeError(err)
		log.FromContext(ctx).WarnContext(ctx, "Failed to delete expense",
			log.FieldExpenseID, id, log.FieldError, err)
		NewHTMXResponse().
			Status(status).
			TriggerErrorNotification(msgDeleteFailed + ": " + msg).
			Write(w)
		return
	}

	log.FromContext(ctx).WithComponent(log.ComponentExpense).InfoContext(ctx, "Expense deleted",
		log.FieldExpenseID, id)
	b := NewHTMXResponse().TriggerExpensesRefresh()
	if err != nil {
		b.TriggerWarningNotification(msgDeleted + ", mas não foi possível recarregar a lista")
	} else {
		b.TriggerSuccessNotification(msgDeleted)
	}
	b.Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		BadRequestError(msgBadRequest).Write(w)
		return
	}
	name := sanitizeInput(r.PostForm.Get("name"))

	var err error
	switch {
	case name == "":
		err = ports.ErrEmptyCategory
	case utf8.RuneCountInString(name) > core.MaxCategoriaLen:
		err = core.ErrCategoryLength
	default:
		err = s.store.CreateCategory(ctx, name)
	}
	if err != nil && !errors.Is(err, store.ErrReloadFailed) {
		status, msg := s.writeError(err)
		log.FromContext(ctx).WarnContext(ctx, "Failed to create category", "name", name, log.FieldError, err)
		s.respond(ctx, w, NewHTMXResponse().Status(status), "category_form", categoryFormData{Name: name, Error: msg})
		return
	}

	log.FromContext(ctx).WithComponent(log.ComponentExpense).InfoContext(ctx, "Category created", "name", name)
	b := NewHTMXResponse().TriggerExpensesRefresh().TriggerCategoriesChanged(name)
	if err != nil {
		b.TriggerWarningNotification("Categoria criada, mas não foi possível recarregar a lista")
	} else {
		b.TriggerSuccessNotification("Categoria criada: " + name)
	}
	s.respond(ctx, w, b, "category_form", categoryFormData{})
}

// handleCategoryOptions re-renders the category <option>s of the expense
// form after a category was added, keeping the current selection.
func (s *Server) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	selected := sanitizeInput(r.URL.Query().Get("categoria"))
	data := categoryOptions{
		Categories: withCategory(s.store.Snapshot().Categories, selected),
		Selected:   selected,
	}
	s.respond(r.Context(), w, NewHTMXResponse(), "category_options", data)
}

// saved answers a successful create or update: a fresh create form plus
// triggers that refresh the list. reloadErr is the store's
// ErrReloadFailed, if any.
func (s *Server) saved(ctx context.Context, w http.ResponseWriter, reloadErr error) {
	b := NewHTMXResponse().TriggerExpensesRefresh().TriggerFormReset()
	if reloadErr != nil {
		b.TriggerWarningNotification(msgSavedNoReload)
	} else {
		b.TriggerSuccessNotification(msgSaved)
	}
	s.respond(ctx, w, b, "expense_form", s.blankForm(s.store.Snapshot().Categories))
}

// formError re-renders the submitted form, populated as typed, with the
// reason it was rejected. Nothing is retried.
func (s *Server) formError(ctx context.Context, w http.ResponseWriter, form expenseForm, err error) {
	status, msg := s.writeError(err)
	level := log.FromContext(ctx).WarnContext
	if status >= http.StatusInternalServerError {
		level = log.FromContext(ctx).ErrorContext
	}
	level(ctx, "Expense not saved",
		log.FieldExpenseID, form.ID,
		log.FieldStatusCode, status,
		log.FieldError, err)

	data := formData{expenseForm: form, Categories: s.store.Snapshot().Categories, Error: msg}
	b := NewHTMXResponse().Status(status).TriggerErrorNotification(msgSaveFailed + ": " + msg)
	s.respond(ctx, w, b, "expense_form", data)
}

// writeError maps a write failure to a status code and the message shown
// to the user. Server messages are passed through as they are.
func (s *Server) writeError(err error) (int, string) {
	if msg := validationMessage(err); msg != "" {
		return http.StatusUnprocessableEntity, msg
	}
	switch {
	case errors.Is(err, store.ErrBusy):
		return http.StatusConflict, "Operação já em andamento"
	case errors.Is(err, ports.ErrExpenseNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, ports.ErrCategoryExists):
		return http.StatusConflict, "Já existe"
	case errors.Is(err, ports.ErrUnknownCategory):
		return http.StatusUnprocessableEntity, "Categoria inválida"
	case errors.Is(err, ports.ErrEmptyCategory):
		return http.StatusUnprocessableEntity, "Nome é obrigatório"
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return http.StatusUnprocessableEntity, remote.Message(err)
	}
	return http.StatusBadGateway, remote.Message(err)
}

func (s *Server) blankForm(categories []string) formData {
	return formData{
		expenseForm: expenseForm{FormID: uuid.NewString()},
		Categories:  categories,
	}
}
