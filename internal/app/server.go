package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Cadence/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Cadence/internal/api/middlewares"
	"github.com/markdave123-py/Cadence/internal/config"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the HTTP server instance and the metrics listener.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	functions     *handlers.FunctionHandler
}

// NewServer builds and wires all API routes.
func NewServer(cfg *config.Config, a *App) *Server {
	docHandler := handlers.NewDocumentHandler(a.Documents)
	scrapeHandler := handlers.NewScrapeHandler(a.Orchestrator, a.DBClient)
	chatHandler := handlers.NewChatHandler(a.Generator, a.Conversations, a.DBClient)

	r := baseRouter(cfg, a.DBClient)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret, a.Users))

			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Post("/documents/{id}/process", docHandler.ProcessDocument)
			protected.Get("/documents/{id}", docHandler.GetDocument)

			protected.Post("/web-sources", scrapeHandler.StartScraping)
			protected.Get("/web-sources/{id}", scrapeHandler.GetWebSource)

			protected.Post("/ideas", chatHandler.GenerateIdeas)
			protected.Post("/chat/query", chatHandler.QueryChat)
			protected.Get("/chat/messages", chatHandler.ListMessages)
			protected.Post("/chat/messages", chatHandler.SaveMessage)
			protected.Post("/images/analyze", chatHandler.AnalyzeImage)
		})
	})

	return newServer(cfg, r, nil)
}

// NewWorkerServer serves POST /functions/{job} for the HTTP dispatch mode.
func NewWorkerServer(ctx context.Context, cfg *config.Config, runner handlers.JobRunner, db Pinger) *Server {
	functions := handlers.NewFunctionHandler(ctx, cfg.ScrapeJobName, runner, cfg.ProcessingTimeout)

	r := baseRouter(cfg, db)
	r.With(appMiddleware.WorkerToken(cfg.WorkerToken)).Post("/functions/{job}", functions.Invoke)

	return newServer(cfg, r, functions)
}

func baseRouter(cfg *config.Config, db Pinger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(3 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func newServer(cfg *config.Config, h http.Handler, functions *handlers.FunctionHandler) *Server {
	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		functions: functions,
	}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	servers := []*http.Server{s.httpServer}
	if s.metricsServer != nil {
		servers = append(servers, s.metricsServer)
	}
	for _, srv := range servers {
		g.Go(func() error {
			log.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown gracefully stops the servers and waits for accepted function jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down HTTP server...")
	err := s.httpServer.Shutdown(ctx)
	if s.metricsServer != nil {
		err = errors.Join(err, s.metricsServer.Shutdown(ctx))
	}
	if s.functions != nil {
		s.functions.Wait()
	}
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}
