// Package server wires the HTTP surface to the attribution record store, the
// device identity cookie, and the app-metadata lookup.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/brpsystems/applinks/internal/appinfo"
	"github.com/brpsystems/applinks/internal/config"
	"github.com/brpsystems/applinks/internal/storage"
	"github.com/brpsystems/applinks/internal/visits"
)

// AppDirectory is the app-metadata lookup dependency, satisfied by
// *appinfo.Client. Lookup returning nil means "no info" and is never fatal.
type AppDirectory interface {
	Lookup(ctx context.Context, providerCode string) *appinfo.AppInfo
	Healthy(ctx context.Context) error
}

// Server owns the public HTTP listener, the metrics listener, and the
// janitor that sweeps expired records.
type Server struct {
	cfg        *config.Config
	store      storage.Store
	apps       AppDirectory
	visits     *visits.Log
	httpSrv    *http.Server
	metricsSrv *http.Server // nil when MetricsAddr == ""
	started    time.Time
}

// New assembles a Server from its dependencies. The store is owned by the
// caller until Run is entered; Close releases it.
func New(cfg *config.Config, store storage.Store, apps AppDirectory, visitLog *visits.Log) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		apps:    apps,
		visits:  visitLog,
		started: time.Now(),
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.MetricsAddr != "" {
		m := http.NewServeMux()
		m.Handle("/metrics", promhttp.Handler())
		m.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		m.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			if err := s.Healthy(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		s.metricsSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      m,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	}

	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/visits/latest", s.handleLatestVisit).Methods("GET")
	r.HandleFunc("/api/android/record-storage", s.handleStore(storage.Android)).Methods("POST")
	r.HandleFunc("/api/ios/record-storage", s.handleStore(storage.IOS)).Methods("POST")
	r.HandleFunc("/api/android/record-retrieval", s.handleRetrieve(storage.Android)).Methods("POST")
	r.HandleFunc("/api/ios/record-retrieval", s.handleRetrieve(storage.IOS)).Methods("POST")

	r.HandleFunc("/.well-known/apple-app-site-association", s.handleAASA).Methods("GET")
	r.HandleFunc("/.well-known/assetlinks.json", s.handleAssetLinks).Methods("GET")

	r.HandleFunc("/providers/{code}", s.handleProviderPage).Methods("GET")
	r.HandleFunc("/", s.handleLinkRedirect).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "Not Found",
			"message": "Route " + req.URL.Path + " not found",
		})
	})
	return r
}

// Router exposes the public handler for tests.
func (s *Server) Router() http.Handler { return s.httpSrv.Handler }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", s.clientIP(r)).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// Run starts both listeners and the janitor, then blocks until ctx is
// cancelled and shutdown completes.
func (s *Server) Run(ctx context.Context) error {
	if s.metricsSrv != nil {
		go func() {
			log.Info().Str("addr", s.cfg.MetricsAddr).Msg("metrics server listening")
			if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	go runJanitor(ctx, s.store, s.cfg.CleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", s.cfg.ListenAddr).
			Str("backend", s.cfg.StorageBackend).
			Str("record_ttl", s.cfg.RecordTTL.String()).
			Str("cleanup_interval", s.cfg.CleanupInterval.String()).
			Msg("server listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
	return nil
}

// Healthy checks the upstream app service.
func (s *Server) Healthy(ctx context.Context) error {
	return s.apps.Healthy(ctx)
}

// Close performs graceful shutdown of the metrics listener and the store.
func (s *Server) Close() {
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown error")
		}
	}
	if err := s.store.Close(); err != nil {
		log.Warn().Err(err).Msg("store close failed")
	}
}
