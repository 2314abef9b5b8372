package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/OlympusDAO/olympus-v3-sub011/internal/escrow"
	"github.com/OlympusDAO/olympus-v3-sub011/internal/store"
)

// Authorizer decides which callers may invoke mutating operations. The
// engine itself is authorization-free; this is the host-side gate.
type Authorizer interface {
	Authorized(token string) bool
}

// TokenAuthorizer authorizes a static set of bearer tokens.
type TokenAuthorizer struct {
	tokens map[string]struct{}
}

func NewTokenAuthorizer(tokens []string) *TokenAuthorizer {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	return &TokenAuthorizer{tokens: set}
}

func (a *TokenAuthorizer) Authorized(token string) bool {
	_, ok := a.tokens[token]
	return ok
}

// Server is the vepower HTTP API server.
type Server struct {
	db      *store.DB
	engine  *escrow.Engine
	auth    Authorizer
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server. A nil authorizer leaves mutating routes open.
func New(db *store.DB, engine *escrow.Engine, auth Authorizer, version string) *Server {
	s := &Server{
		db:      db,
		engine:  engine,
		auth:    auth,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/epoch", s.handleEpoch)

		r.Route("/pools/{poolID}", func(r chi.Router) {
			r.Get("/", s.handleGetPool)
			r.Get("/power", s.handleGlobalPower)
			r.Get("/point", s.handleGlobalPoint)
			r.Post("/checkpoint", s.handleCheckpoint)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Post("/", s.handleConfigurePool)
				r.Post("/locks", s.handleCreateLock)
				r.Post("/locks/{lockID}/balance", s.handleBalanceChange)
				r.Post("/locks/{lockID}/extend", s.handleExtendLock)
			})
		})

		r.Get("/locks/{lockID}/power", s.handleLockPower)
		r.Get("/locks/{lockID}/share", s.handleLockShare)
		r.Post("/shares", s.handleShares)
	})

	s.router = r
}

// requireAuth gates mutating routes on a bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !s.auth.Authorized(token) {
			jsonError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// engineStatus translates engine failures into HTTP statuses. Everything the
// caller can fix is a 4xx; the rest is a 500.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNoLockFound),
		errors.Is(err, escrow.ErrPoolNotConfigured):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrAlreadyConfigured):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrMultiplierTooLow),
		errors.Is(err, escrow.ErrZeroMaxDuration),
		errors.Is(err, escrow.ErrZeroLock),
		errors.Is(err, escrow.ErrUnalignedUnlock),
		errors.Is(err, escrow.ErrLockTooShort),
		errors.Is(err, escrow.ErrLockTooLong),
		errors.Is(err, escrow.ErrOnlyExtensions),
		errors.Is(err, escrow.ErrLockExpired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func engineError(w http.ResponseWriter, err error) {
	jsonError(w, engineStatus(err), err.Error())
}
