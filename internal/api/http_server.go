// Package api exposes the booking and settlement engine over HTTP.
// Staff clients authenticate with API keys; the payment gateway
// authenticates webhook deliveries with an HMAC body signature.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taurean/internal/booking"
	"taurean/internal/config"
	"taurean/internal/database"
	"taurean/internal/export"
	"taurean/internal/metrics"
	"taurean/internal/repository"
	"taurean/internal/settlement"
)

// Deps are the collaborators the server dispatches into.
type Deps struct {
	DB          *database.DB
	Bookings    *booking.Service
	Settlements *settlement.Service
	Exporter    *export.Service
	Store       repository.Store
	WakeWorker  func()
	Logger      *zerolog.Logger
}

// HTTPServer hosts the REST API and the gateway webhook endpoint.
type HTTPServer struct {
	cfg     config.APIConfig
	gateway config.GatewayConfig
	deps    Deps
	auth    *HTTPAuth
	log     zerolog.Logger
	server  *http.Server
}

func NewHTTPServer(cfg config.APIConfig, gateway config.GatewayConfig, deps Deps) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		gateway: gateway,
		deps:    deps,
		auth:    NewHTTPAuth(cfg),
		log:     deps.Logger.With().Str("component", "http").Logger(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("PUT /api/v1/bookings/{id}/status", srv.handleBookingStatus)
	mux.HandleFunc("DELETE /api/v1/bookings/{id}", srv.handleDeleteBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}/transactions", srv.handleBookingTransactions)
	mux.HandleFunc("GET /api/v1/bookings/{id}/history", srv.handleBookingHistory)
	mux.HandleFunc("GET /api/v1/facilities/{id}/calendar", srv.handleCalendar)
	mux.HandleFunc("GET /api/v1/resources", srv.handleListResources)
	mux.HandleFunc("POST /api/v1/resources", srv.handleCreateResource)
	mux.HandleFunc("GET /api/v1/resources/{id}/availability", srv.handleAvailability)
	mux.HandleFunc("POST /api/v1/quotes", srv.handleQuote)
	mux.HandleFunc("GET /api/v1/taxes", srv.handleListTaxes)
	mux.HandleFunc("POST /api/v1/taxes", srv.handleCreateTax)
	mux.HandleFunc("POST /api/v1/pending-transactions", srv.handleCreateTransaction)
	mux.HandleFunc("GET /api/v1/pending-transactions/{id}", srv.handleGetTransaction)
	mux.HandleFunc("PUT /api/v1/pending-transactions/{id}/process", srv.handleProcessTransaction)
	mux.HandleFunc("POST /api/v1/pending-transactions/{id}/cancel", srv.handleCancelTransaction)
	mux.HandleFunc("POST /transactions/webhook", srv.handleWebhook)
	mux.HandleFunc("GET /api/v1/export/bookings", srv.handleExportBookings)
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	handler := srv.observe(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Method + " " + normalizePath(r.URL.Path)
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// normalizePath collapses numeric path segments so metric labels stay
// low-cardinality.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
