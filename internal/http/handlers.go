package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"scontrini/internal/core"
	"scontrini/internal/receipt"
	"scontrini/internal/services"
	"scontrini/internal/store"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().BodyJSON(map[string]string{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := map[string]string{"templates": "ok", "store": "ok"}
	if err := s.expenses.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	NewHTMXResponse().Status(code).BodyJSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.trace.GetMetrics()
	rateMetrics := s.limiter.GetMetrics()
	uploadMetrics := s.uploadLimiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_client_errors_total", "Responses with a 4xx status", traceMetrics.ClientErrors)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	gauge("http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)

	counter("receipts_scanned_total", "Receipts sent to extraction", atomic.LoadInt64(&s.metrics.receiptsScanned))
	counter("receipts_empty_total", "Receipts with no items found", atomic.LoadInt64(&s.metrics.receiptsEmpty))
	counter("extraction_failures_total", "Failed extractions", atomic.LoadInt64(&s.metrics.extractionFailed))
	counter("expenses_committed_total", "Expenses saved from receipts", atomic.LoadInt64(&s.metrics.expensesCommitted))
	counter("expenses_added_total", "Expenses added manually", atomic.LoadInt64(&s.metrics.expensesAdded))
	counter("expenses_deleted_total", "Expenses deleted", atomic.LoadInt64(&s.metrics.expensesDeleted))

	counter("rate_limit_hits_total", "Requests rejected by the general limiter", rateMetrics.TotalHits)
	counter("upload_rate_limit_hits_total", "Uploads rejected by the upload limiter", uploadMetrics.TotalHits)
	gauge("rate_limit_clients", "Clients tracked by the general limiter", rateMetrics.ClientCount)
	counter("suspicious_requests_total", "Requests flagged as suspicious", securityMetrics.SuspiciousRequests)
	counter("blocked_requests_total", "Requests rejected by method", securityMetrics.BlockedRequests)

	fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n# TYPE cache_entries gauge\n")
	fmt.Fprintf(w, "cache_entries{type=\"reviews\"} %d\n", s.receipts.Reviews().Size())
	if s.caches != nil {
		sizes := s.caches.Sizes()
		names := make([]string, 0, len(sizes))
		for name := range sizes {
			if name != "reviews" {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "cache_entries{type=%q} %d\n", name, sizes[name])
		}
	}
	fmt.Fprintln(w)

	gauge("uptime_seconds", "Seconds since start", int64(time.Since(s.started).Seconds()))
}

// handleIndex renders the full page. Categories and the monthly summary
// load concurrently.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	rng, _ := core.ResolveRange(core.RangeThisMonth, now, time.Time{}, time.Time{})

	var (
		categories []core.Category
		summary    services.Summary
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		categories, err = s.categories.ListCategories(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.expenses.Summarize(ctx, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, "index", err)
		return
	}

	s.render(w, r, NewHTMXResponse(), "index.html", pageView{
		Today:       formatDate(now),
		AcceptTypes: acceptTypes(),
		MaxUploadMB: receipt.MaxFileSize >> 20,
		Categories:  categories,
		Summary:     newSummaryView(summary, core.RangeThisMonth),
		Expenses: expenseListView{
			Expenses:   summary.Expenses,
			Categories: categories,
			Total:      summary.Totals.Total,
		},
	})
}

// handleSummary renders totals and the per-category breakdown for a range.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "summary", err)
		return
	}
	summary, err := s.expenses.Summarize(r.Context(), rng)
	if err != nil {
		writeError(w, r, "summary", err)
		return
	}
	s.render(w, r, NewHTMXResponse(), "summary", newSummaryView(summary, selectedPreset(r)))
}

func selectedPreset(r *http.Request) core.RangePreset {
	q := r.URL.Query()
	if p := q.Get("range"); p != "" {
		return core.RangePreset(p)
	}
	if q.Get("from") != "" || q.Get("to") != "" {
		return core.RangeCustom
	}
	return core.RangeThisMonth
}

// expenseFilter reads the list filters shared by /expenses.
func (s *Server) expenseFilter(r *http.Request) (store.ExpenseFilter, error) {
	rng, err := ParseRange(r.URL.Query(), s.now())
	if err != nil {
		return store.ExpenseFilter{}, err
	}
	return store.ExpenseFilter{
		Range:      rng,
		CategoryID: sanitizeInput(r.URL.Query().Get("category")),
	}, nil
}
