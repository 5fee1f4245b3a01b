// Package http serves the server-rendered expense screen: the full page,
// the htmx partials it swaps in, and the form endpoints that write through
// the store.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/cache"
	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/middleware/ratelimit"
	"despesas/internal/middleware/security"
	"despesas/internal/middleware/trace"
	"despesas/internal/notify"
	"despesas/internal/ports"
	"despesas/internal/store"
	"despesas/internal/view"
	appweb "despesas/web"
)

const (
	resultCacheSize = 200
	displayLayout   = "02/01/2006 15:04"
	inputLayout     = "2006-01-02T15:04"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// Options configures NewServer. Zero values get defaults; Hub and Pinger
// are optional.
type Options struct {
	Addr     string
	PageSize int
	CacheTTL time.Duration
	Hub      *notify.Hub
	Pinger   ports.Pinger
	Logger   *log.Logger
}

type Server struct {
	http.Server
	store     *store.Store
	hub       *notify.Hub
	pinger    ports.Pinger
	templates *template.Template
	logger    *log.Logger
	pageSize  int
	started   time.Time

	results  *cache.LRUCache[view.Result]
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

var templateFuncs = template.FuncMap{
	"brl": core.FormatBRL,
	"pct": func(d decimal.Decimal) string { return d.StringFixed(1) + "%" },
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(displayLayout)
	},
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(st *store.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.PageSize < 1 {
		opts.PageSize = view.DefaultPageSize
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store:    st,
		hub:      opts.Hub,
		pinger:   opts.Pinger,
		logger:   logger.WithComponent(log.ComponentHTTP),
		pageSize: opts.PageSize,
		started:  time.Now(),
		results:  cache.NewLRUCache[view.Result](resultCacheSize, opts.CacheTTL),
		caches:   cache.NewManager(logger.WithComponent(log.ComponentCache).Slog()),
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.caches.Register(s.results)
	s.caches.StartCleanup(time.Minute)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /ws", s.handleWebsocket)

	mux.HandleFunc("GET /ui/expenses", s.handleExpensesPartial)
	mux.HandleFunc("GET /ui/categories", s.handleCategoryOptions)
	mux.HandleFunc("GET /expenses/new", s.handleNewExpenseForm)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /expenses/{id}/edit", s.handleEditExpenseForm)
	mux.HandleFunc("PUT /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("POST /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDeleteExpense)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)

	s.Handler = s.middleware(mux)
	return s
}

// middleware wraps the mux so that the outermost layer traces the
// request, then headers are set, probes are logged and writes are
// rate limited.
func (s *Server) middleware(next http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(next)
	return s.tracer.Middleware(headers.Middleware(s.detector.Middleware(limited)))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Muitas requisições. Tente novamente em um minuto.").
		Write(w)
}

// Shutdown stops background goroutines and then the HTTP server. Safe to
// call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		if s.hub != nil {
			if err := s.hub.Close(); err != nil {
				s.logger.Warn("Failed to close websocket hub", log.FieldError, err)
			}
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// derive memoizes view.Derive per snapshot version and view state. The
// version changes on every install, so entries never go stale.
func (s *Server) derive(ctx context.Context, snap store.Snapshot, st view.State) view.Result {
	key := fmt.Sprintf("%d|%d|%s", snap.Version, st.PageSize, st.Query())
	if res, ok := s.results.Get(key); ok {
		return res
	}
	res := view.Derive(snap.Expenses, st)
	s.results.Set(key, res)
	s.logger.DebugContext(ctx, "View derived",
		log.FieldVersion, snap.Version,
		"filtered", len(res.Filtered),
		"page", res.Page,
		"pages", res.PageCount)
	return res
}

// renderHTML executes a template into memory so a failure can still turn
// into a clean 500.
func (s *Server) renderHTML(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

// respond renders name as the body of b and writes it.
func (s *Server) respond(ctx context.Context, w http.ResponseWriter, b *HTMXResponseBuilder, name string, data any) {
	html, err := s.renderHTML(name, data)
	if err != nil {
		s.logger.WithComponent(log.ComponentTemplate).ErrorContext(ctx, "Template rendering failed",
			"template", name, log.FieldError, err)
		InternalServerError("Erro ao renderizar a página").Write(w)
		return
	}
	b.BodyHTML(html).Write(w)
}
