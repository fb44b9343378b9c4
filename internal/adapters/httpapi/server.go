// Package httpapi exposes shelter commands and reports over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"shelterhub/internal/auth"
	"shelterhub/internal/core"
	"shelterhub/internal/metrics"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultPhotoURLExpiry = 15 * time.Minute
	DefaultMaxPhotoBytes  = 10 << 20
	maxJSONBodyBytes      = 1 << 20
)

// Config wires the server's collaborators. Metrics is optional.
type Config struct {
	Service        *core.Service
	Tokens         *auth.Issuer
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	RateLimitRPS   float64
	RateLimitBurst int
	PhotoURLExpiry time.Duration
	MaxPhotoBytes  int64
}

// Server routes HTTP requests to the service layer.
type Server struct {
	svc            *core.Service
	tokens         *auth.Issuer
	logger         *zap.Logger
	metrics        *metrics.Metrics
	limiter        *rateLimiter
	photoURLExpiry time.Duration
	maxPhotoBytes  int64
}

// NewServer builds a server from cfg.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("httpapi: service required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("httpapi: token issuer required")
	}
	s := &Server{
		svc:            cfg.Service,
		tokens:         cfg.Tokens,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		photoURLExpiry: cfg.PhotoURLExpiry,
		maxPhotoBytes:  cfg.MaxPhotoBytes,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.photoURLExpiry <= 0 {
		s.photoURLExpiry = DefaultPhotoURLExpiry
	}
	if s.maxPhotoBytes <= 0 {
		s.maxPhotoBytes = DefaultMaxPhotoBytes
	}
	rps, burst := cfg.RateLimitRPS, cfg.RateLimitBurst
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	s.limiter = newRateLimiter(rps, burst)
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found", Code: codeNotFound, Category: "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Code: codeBadInput, Category: "bad_input"})
	})
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
		r.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.limit)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)

	secured := api.NewRoute().Subrouter()
	secured.Use(s.authenticate)
	secured.HandleFunc("/auth/me", s.me).Methods(http.MethodGet)

	secured.Handle("/cats", s.require(auth.PermCatsRead, s.listCats)).Methods(http.MethodGet)
	secured.Handle("/cats/intake", s.require(auth.PermCatsWrite, s.intakeCat)).Methods(http.MethodPost)
	secured.Handle("/cats/{id}", s.require(auth.PermCatsRead, s.getCat)).Methods(http.MethodGet)
	secured.Handle("/cats/{id}/place", s.require(auth.PermHousingWrite, s.placeCat)).Methods(http.MethodPost)
	secured.Handle("/cats/{id}/release", s.require(auth.PermHousingWrite, s.releaseCat)).Methods(http.MethodPost)
	secured.Handle("/cats/{id}/discharge", s.require(auth.PermCatsWrite, s.dischargeCat)).Methods(http.MethodPost)
	secured.Handle("/cats/{id}/hold", s.require(auth.PermCatsWrite, s.holdCat)).Methods(http.MethodPost)
	secured.Handle("/cats/{id}/photo", s.require(auth.PermCatsWrite, s.putCatPhoto)).Methods(http.MethodPut)
	secured.Handle("/cats/{id}/photo", s.require(auth.PermCatsRead, s.getCatPhoto)).Methods(http.MethodGet)

	secured.Handle("/treatments", s.require(auth.PermCatsRead, s.listTreatments)).Methods(http.MethodGet)
	secured.Handle("/treatments", s.require(auth.PermTreatmentsWrite, s.scheduleTreatment)).Methods(http.MethodPost)
	secured.Handle("/treatments/{id}/{action:start|complete|cancel}", s.require(auth.PermTreatmentsWrite, s.transitionTreatment)).Methods(http.MethodPost)

	secured.Handle("/donations", s.require(auth.PermFinanceRead, s.listDonations)).Methods(http.MethodGet)
	secured.Handle("/donations", s.require(auth.PermFinanceWrite, s.recordDonation)).Methods(http.MethodPost)
	secured.Handle("/transactions", s.require(auth.PermFinanceRead, s.listTransactions)).Methods(http.MethodGet)
	secured.Handle("/transactions", s.require(auth.PermFinanceWrite, s.recordTransaction)).Methods(http.MethodPost)

	secured.Handle("/reports/occupancy", s.require(auth.PermReportsRead, s.occupancyReport)).Methods(http.MethodGet)
	secured.Handle("/reports/revenue", s.require(auth.PermFinanceRead, s.revenueReport)).Methods(http.MethodGet)
	secured.Handle("/reports/dashboard", s.require(auth.PermReportsRead, s.dashboardReport)).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": s.svc.Now()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return badInput("invalid request payload: " + err.Error())
	}
	return nil
}
