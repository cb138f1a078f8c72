// main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"xpstore/internal/catalog"
	"xpstore/internal/config"
	"xpstore/internal/format"
	"xpstore/internal/journal"
	"xpstore/internal/logger"
	"xpstore/internal/security"
	"xpstore/internal/storefront"
	"xpstore/internal/web"
	"xpstore/internal/webhook"
)

// A request may wait on the webhook; it gets the webhook timeout plus this
// margin, and never less than minRequestTimeout.
const (
	requestTimeoutMargin = 5 * time.Second
	minRequestTimeout    = 15 * time.Second
)

type App struct {
	addr           string
	mux            *http.ServeMux
	webhookTimeout time.Duration
	connections   sync.WaitGroup
	totalRequests int64
}

func main() {
	// Step 1: Configuration, fixed for the life of the process
	config.LoadEnv()
	cfg, err := config.Load(time.Now())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Step 2: Logging
	if err := logger.SetupLogger(cfg.LoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()
	cfg.LogCurrentEnvironment()

	if !format.Supported(cfg.Locale) {
		logger.LogWarn("No number grouping known for locale %q, falling back to en", cfg.Locale)
	}

	// Step 3: Catalog
	cat, err := catalog.Default()
	if err != nil {
		logger.LogFatal("Failed to load catalog: %v", err)
	}
	logger.LogInfo("Catalog loaded: %d offerings", cat.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 4: Optional purchase journal
	opts := []storefront.Option{storefront.WithLocale(cfg.Locale)}
	var attempts web.AttemptLister
	if cfg.JournalEnabled() {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			logger.LogFatal("Failed to open purchase journal: %v", err)
		}
		defer j.Close()

		j.StartCleanupRoutine(ctx, cfg.JournalRetention)
		opts = append(opts, storefront.WithRecorder(j))
		attempts = j
	} else {
		logger.LogInfo("Purchase journal disabled (JOURNAL_DB_PATH not set)")
	}

	// Step 5: Storefront
	client := webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout)
	view := storefront.New(cat, client, opts...)

	app := &App{
		addr:           cfg.Addr(),
		mux:            routes(web.New(view, attempts), cfg.AllowedOrigin),
		webhookTimeout: cfg.WebhookTimeout,
	}

	// Step 6: Background tasks
	go security.CleanExpiredTokens(ctx)

	// Step 7: Run server
	app.Run(ctx)
}

// routes sets up the page, API and health routes
func routes(h *web.Handler, allowedOrigin string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	h.Register(mux, allowedOrigin)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout(a.webhookTimeout) + requestTimeoutMargin,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.LogInfo("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = withCustom404(handler)
	handler = a.trackConnections(handler)
	handler = logRequests(handler)
	handler = withTimeout(handler, requestTimeout(a.webhookTimeout))

	return handler
}

// requestTimeout is long enough for a confirm to outlast its webhook call.
func requestTimeout(webhookTimeout time.Duration) time.Duration {
	if d := webhookTimeout + requestTimeoutMargin; d > minRequestTimeout {
		return d
	}
	return minRequestTimeout
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: log requests
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		logger.LogInfo("%s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

// Middleware: custom 404 page for browser routes; the API keeps its JSON errors
func withCustom404(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.ServeHTTP(w, r)
			return
		}

		crw := &notFoundInterceptor{ResponseWriter: w}
		h.ServeHTTP(crw, r)

		if crw.notFound {
			logger.LogInfo("404 not found: %s", r.URL.Path)

			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<html><body>
	<h1>404 - Страница не найдена</h1>
	<p>Запрошенная страница не существует.</p>
	<a href="/">Вернуться в магазин</a>
</body></html>`))
		}
	})
}

// notFoundInterceptor swallows the mux's plain-text 404 so withCustom404 can
// write its own page. Every other response passes through untouched.
type notFoundInterceptor struct {
	http.ResponseWriter
	notFound    bool
	wroteHeader bool
}

func (w *notFoundInterceptor) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if code == http.StatusNotFound {
		w.notFound = true
		return
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *notFoundInterceptor) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.notFound {
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}
