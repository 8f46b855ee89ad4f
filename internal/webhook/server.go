package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plexhue/internal/eventbus"
)

// Publisher queues webhook events for asynchronous processing.
type Publisher interface {
	Publish(event eventbus.Event) bool
}

// ReadinessReporter reports whether the daemon is ready, with details.
type ReadinessReporter interface {
	Readiness() (bool, map[string]any)
}

// Server is an HTTP server that receives Plex webhooks and publishes them to the bus.
// Every webhook is answered with 200 "OK" before it is processed.
type Server struct {
	addr       string
	path       string
	maxMemory  int64
	bus        Publisher
	readiness  ReadinessReporter
	httpServer *http.Server
}

// NewServer creates a new webhook server. readiness may be nil.
func NewServer(addr, path string, maxMemory int64, bus Publisher, readiness ReadinessReporter) *Server {
	if maxMemory <= 0 {
		maxMemory = 1 << 20
	}
	return &Server{
		addr:      addr,
		path:      path,
		maxMemory: maxMemory,
		bus:       bus,
		readiness: readiness,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)

	router.Post(s.path, s.handleWebhook)
	router.Get("/health", s.handleHealth)
	router.Get("/ready", s.handleReady)

	return router
}

// Run starts the webhook server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Str("path", s.path).Msg("Plex webhook server listening")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webhook server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// handleWebhook extracts the payload field and publishes it to the event bus.
// The response never depends on what happens to the event.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer writeOK(w)

	// Plex posts multipart/form-data with an optional "thumb" image we never use
	if err := r.ParseMultipartForm(s.maxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Debug().Err(err).Msg("Failed to parse webhook form")
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if r.PostForm == nil || !r.PostForm.Has("payload") {
		log.Debug().Msg("Webhook without payload field")
		return
	}
	payload := r.PostForm.Get("payload")

	eventID := uuid.NewString()

	log.Debug().
		Str("event_id", eventID).
		Int("payload_len", len(payload)).
		Msg("Received Plex webhook")

	s.bus.Publish(eventbus.Event{
		Type:       eventbus.EventTypePlexWebhook,
		ID:         eventID,
		Payload:    payload,
		ReceivedAt: time.Now(),
	})
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}

	ready, details := s.readiness.Readiness()
	body := map[string]any{"status": "ready"}
	for k, v := range details {
		body[k] = v
	}
	status := http.StatusOK
	if !ready {
		body["status"] = "not_ready"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// requestLogger logs every request at debug level
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
