// Package refapi is a small JSON API over a ports.Repository that speaks
// the same contract the expense client consumes. It backs local
// development and end-to-end tests.
package refapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"despesas/internal/log"
	"despesas/internal/ports"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

// Options configures NewRouter. Pinger defaults to the repository when it
// implements ports.Pinger.
type Options struct {
	AllowedOrigins []string
	Pinger         ports.Pinger
	Logger         *log.Logger
}

type Handlers struct {
	repo   ports.Repository
	pinger ports.Pinger
	log    *log.Logger
}

func NewHandlers(repo ports.Repository, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	pinger := opts.Pinger
	if pinger == nil {
		pinger, _ = repo.(ports.Pinger)
	}
	return &Handlers{repo: repo, pinger: pinger, log: logger.WithComponent(log.ComponentAPI)}
}

// NewRouter wires the API routes.
func NewRouter(repo ports.Repository, opts Options) http.Handler {
	h := NewHandlers(repo, opts)
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(h.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(NewCORS(opts.AllowedOrigins))

	r.Get("/health", h.Health)

	r.Get("/categories", h.ListCategories)
	r.Post("/categories", h.CreateCategory)

	r.Get("/expenses", h.ListExpenses)
	r.Post("/expenses", h.CreateExpense)
	r.Get("/expenses/{id}", h.GetExpense)
	r.Put("/expenses/{id}", h.UpdateExpense)
	r.Delete("/expenses/{id}", h.DeleteExpense)

	return r
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		reqLogger := h.log.With(log.FieldRequestID, chimw.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(log.NewContext(r.Context(), reqLogger)))

		log.NewStructuredLogger(reqLogger).LogHTTPEnd(r.Context(), r,
			ww.Status(), time.Since(start).Milliseconds(), r.RemoteAddr)
	})
}
