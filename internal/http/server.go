// Package http serves the web UI: receipt upload and review, manual
// expenses, categories and summaries, rendered as HTMX partials.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"scontrini/internal/cache"
	applog "scontrini/internal/log"
	"scontrini/internal/middleware/ratelimit"
	"scontrini/internal/middleware/security"
	"scontrini/internal/middleware/trace"
	"scontrini/internal/services"
	appweb "scontrini/web"
)

const (
	staticMaxAge = 3600
	readyTimeout = 5 * time.Second

	// defaultUploadRPM bounds receipt scans, which each cost a model call.
	defaultUploadRPM = 10
)

// Deps are the collaborators the server needs. Caches is optional.
type Deps struct {
	Expenses   *services.ExpenseService
	Categories *services.CategoryService
	Receipts   *services.ReceiptService
	Caches     *cache.Manager
	Logger     *applog.Logger

	// Requests per minute per client for mutating requests and for
	// receipt uploads. Zero means the defaults.
	RateLimitRPM   int
	UploadLimitRPM int

	// Assets overrides the embedded templates and static files.
	Assets fs.FS
}

// Server is the HTTP front end.
type Server struct {
	http.Server

	expenses   *services.ExpenseService
	categories *services.CategoryService
	receipts   *services.ReceiptService
	caches     *cache.Manager
	logger     *applog.Logger
	templates  *template.Template

	detector      *security.Detector
	limiter       *ratelimit.Limiter
	uploadLimiter *ratelimit.Limiter
	trace         *trace.Middleware

	now     func() time.Time
	started time.Time
	metrics appMetrics
}

type appMetrics struct {
	receiptsScanned   int64
	receiptsEmpty     int64
	extractionFailed  int64
	expensesCommitted int64
	expensesAdded     int64
	expensesDeleted   int64
}

// NewServer configures routes and templates, returning a ready-to-run
// server. Template errors are fatal here rather than at first request.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Expenses == nil || deps.Categories == nil || deps.Receipts == nil {
		return nil, errors.New("http: expenses, categories and receipts services are required")
	}
	if deps.Logger == nil {
		deps.Logger = applog.FromContext(context.Background())
	}
	assets := deps.Assets
	if assets == nil {
		assets = appweb.FS
	}

	t, err := parseTemplates(assets)
	if err != nil {
		return nil, err
	}

	uploadRPM := deps.UploadLimitRPM
	if uploadRPM <= 0 {
		uploadRPM = defaultUploadRPM
	}

	s := &Server{
		expenses:      deps.Expenses,
		categories:    deps.Categories,
		receipts:      deps.Receipts,
		caches:        deps.Caches,
		logger:        deps.Logger.WithComponent(applog.ComponentHTTP),
		templates:     t,
		detector:      security.NewDetector(),
		limiter:       ratelimit.NewLimiter(ratelimit.PerMinute(deps.RateLimitRPM)),
		uploadLimiter: ratelimit.NewLimiter(ratelimit.PerMinute(uploadRPM)),
		now:           time.Now,
		started:       time.Now(),
	}
	s.trace = trace.NewMiddleware(s.detector.ExtractClientIP, deps.Logger)

	mux := http.NewServeMux()
	s.routes(mux, assets)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.trace.Middleware(headers.Middleware(s.detector.Middleware(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux, assets fs.FS) {
	if sub, err := fs.Sub(assets, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount static assets", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /summary", s.handleSummary)

	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.Handle("POST /expenses", s.limited(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses/{id}", s.handleExpenseRow)
	mux.HandleFunc("GET /expenses/{id}/edit", s.handleEditExpense)
	mux.Handle("PUT /expenses/{id}", s.limited(s.handleUpdateExpense))
	mux.Handle("DELETE /expenses/{id}", s.limited(s.handleDeleteExpense))

	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("GET /categories/options", s.handleCategoryOptions)
	mux.Handle("POST /categories", s.limited(s.handleCreateCategory))
	mux.Handle("PUT /categories/{id}", s.limited(s.handleUpdateCategory))
	mux.Handle("DELETE /categories/{id}", s.limited(s.handleDeleteCategory))
	mux.HandleFunc("GET /suggest", s.handleSuggest)

	upload := s.uploadLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)
	mux.Handle("POST /receipts", upload(http.HandlerFunc(s.handleScanReceipt)))
	mux.HandleFunc("GET /receipts/{id}", s.handleReview)
	mux.Handle("POST /receipts/{id}/items/{index}/{action}", s.limited(s.handleReviewAction))
	mux.Handle("POST /receipts/{id}/commit", s.limited(s.handleCommitReview))
	mux.HandleFunc("DELETE /receipts/{id}", s.handleDiscardReview)
}

// limited applies the general per-client limit.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests, please slow down").Write(w)
}

// SetClock replaces the time source used for default dates and ranges.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// render writes a template through the response builder.
func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	html, err := renderTo(s.templates, name, data)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		InternalServerError(msgInternal).Write(w)
		return
	}
	b.BodyHTML(html).Write(w)
}

// Shutdown stops the limiters and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	s.uploadLimiter.Stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) count(c *int64, n int) {
	atomic.AddInt64(c, int64(n))
}
