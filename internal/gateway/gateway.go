// Package gateway exposes the coordinator over HTTP and WebSocket. The
// REST surface covers accounts, room listing, and the deck builder; a
// WebSocket per player carries in-match commands and the event stream.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crsh/server/internal/config"
	"github.com/crsh/server/internal/coordinator"
	"github.com/crsh/server/internal/game/match"
	"github.com/crsh/server/internal/game/session"
	"github.com/crsh/server/internal/storage/postgres"
)

// tokenCookie is the cookie carrying the session token.
const tokenCookie = "token"

// Gateway is the HTTP/WebSocket front end. It implements
// server.Service.
type Gateway struct {
	cfg    config.HTTPConfig
	co     *coordinator.Coordinator
	logger *zap.Logger
	srv    *http.Server
}

// New creates a Gateway serving the given coordinator.
//
// Precondition: co and logger must be non-nil.
func New(cfg config.HTTPConfig, co *coordinator.Coordinator, logger *zap.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		co:     co,
		logger: logger.Named("gateway"),
	}
}

// Router builds the route table.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", g.handleRegister)
		r.Post("/login", g.handleLogin)
		r.Get("/list_matches", g.handleListMatches)
		r.Post("/join/{match}", g.handleJoin)
		r.Get("/cards/{deck}", g.handleGetCards)
		r.Post("/add/{color}/{deck}", g.handleAddCard)
		r.Delete("/del/{deck}/{cardID}", g.handleDelCard)
	})
	r.Get("/ws/{match}", g.handleSocket)

	return r
}

// Start runs the HTTP listener and blocks until Stop is called.
func (g *Gateway) Start() error {
	g.srv = &http.Server{
		Addr:              g.cfg.Addr(),
		Handler:           g.Router(),
		ReadHeaderTimeout: g.cfg.ReadTimeout,
	}
	g.logger.Info("listening", zap.String("addr", g.cfg.Addr()))

	err := g.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (g *Gateway) Stop() {
	if g.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.srv.Shutdown(ctx); err != nil {
		g.logger.Warn("shutdown", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", zap.Error(err))
	}
}

// writeError maps the domain's sentinel errors onto HTTP statuses.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, postgres.ErrPlayerExists):
		status = http.StatusConflict
	case errors.Is(err, postgres.ErrPlayerNotFound),
		errors.Is(err, postgres.ErrInvalidCredentials),
		errors.Is(err, coordinator.ErrUnknownToken):
		status = http.StatusUnauthorized
	case errors.Is(err, coordinator.ErrUnknownMatch),
		errors.Is(err, postgres.ErrDeckNotFound),
		errors.Is(err, postgres.ErrCardNotFound):
		status = http.StatusNotFound
	case errors.Is(err, match.ErrNotCzar):
		status = http.StatusForbidden
	case errors.Is(err, match.ErrAlreadyStarted),
		errors.Is(err, match.ErrNotEnoughPlayers),
		errors.Is(err, match.ErrRoundNotReady),
		errors.Is(err, match.ErrNotSeated):
		status = http.StatusConflict
	case errors.Is(err, match.ErrUnknownCard):
		status = http.StatusBadRequest
	case errors.Is(err, coordinator.ErrStopped):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", zap.Error(err))
		g.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	g.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// sessionToken extracts the token from the cookie, the Authorization
// header, or the query string, in that order.
func sessionToken(r *http.Request) (session.Token, error) {
	raw := ""
	if c, err := r.Cookie(tokenCookie); err == nil {
		raw = c.Value
	} else if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		raw = h[7:]
	} else {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return session.Token{}, coordinator.ErrUnknownToken
	}
	token, err := session.ParseToken(raw)
	if err != nil {
		return session.Token{}, coordinator.ErrUnknownToken
	}
	return token, nil
}
