package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"greenweb/internal/auth"
	"greenweb/internal/greencheck"
	"greenweb/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server holds what the handlers need beyond the database.
type Server struct {
	checker *greencheck.Checker
	limiter *clientLimiter
}

func New(checker *greencheck.Checker) *Server {
	return &Server{checker: checker, limiter: newClientLimiter()}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Routes builds the full handler chain.
func (s *Server) Routes() http.Handler {
	public := http.NewServeMux()
	public.HandleFunc("GET /api/v3/greencheck/{url...}", s.getGreencheck)
	public.HandleFunc("POST /api/v3/greencheckmulti", s.postGreencheckMulti)
	public.HandleFunc("GET /greencheckmulti/{urlList...}", s.getLegacyGreencheckMulti)
	public.HandleFunc("GET /api/v3/latest", getLatestGreenchecks)
	public.HandleFunc("GET /data/directory/{$}", getDirectory)
	public.HandleFunc("GET /data/hostingprovider/{id}", getProviderDetail)
	if graphQL, err := s.graphQLHandler(); err != nil {
		log.Error("graphql schema", "error", err)
	} else {
		public.Handle("/graphql", graphQL)
	}

	router := http.NewServeMux()
	router.Handle("/", s.rateLimit(public))
	router.HandleFunc("GET /version", getVersion)
	router.Handle("GET /metrics", metrics.Handler())

	router.Handle("POST /admin/importers/csv/{providerID}", auth.IsAdmin(http.HandlerFunc(s.postCSVImport)))
	router.Handle("POST /admin/importers/{name}", auth.IsAdmin(http.HandlerFunc(s.postImporterRun)))
	router.Handle("POST /admin/provider-requests", auth.IsAdmin(http.HandlerFunc(postProviderRequest)))
	router.Handle("POST /admin/provider-requests/{id}/approve", auth.IsAdmin(http.HandlerFunc(s.postApproveProviderRequest)))
	router.Handle("POST /admin/provider-requests/{id}/status", auth.IsAdmin(http.HandlerFunc(postProviderRequestStatus)))
	router.Handle("POST /admin/export", auth.IsAdmin(http.HandlerFunc(postExport)))
	router.Handle("GET /admin/status", auth.IsAdmin(http.HandlerFunc(getStatus)))

	return requestLogger(enableCORS(router))
}

// OpenRoutes serves the API on port until ctx is cancelled.
func (s *Server) OpenRoutes(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("api server shutdown", "error", err)
		}
	}()

	log.Infof("Starting greenweb backend on port :%d", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
