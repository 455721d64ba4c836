package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/coordinator"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/pkg/matchdto"
)

const maxBodyBytes = 4 << 10

// HealthFunc reports whether backing stores are reachable.
type HealthFunc func(ctx context.Context) error

// API serves the HTTP surface of the match service.
type API struct {
	svc     Service
	require func(http.Handler) http.Handler
	health  HealthFunc
}

// NewRouter mounts the REST routes and, when ws is non-nil, the websocket endpoint at /ws.
func NewRouter(svc Service, am *auth.Manager, ws http.Handler, health HealthFunc) *mux.Router {
	a := &API{svc: svc, require: am.Require(unauthorized), health: health}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/matches").Subrouter()
	api.Handle("", a.authed(a.createMatch)).Methods(http.MethodPost)
	api.HandleFunc("", a.listMatches).Methods(http.MethodGet)
	// current and mine must be registered before {id}
	api.Handle("/current", a.authed(a.currentMatch)).Methods(http.MethodGet)
	api.Handle("/mine", a.authed(a.myMatches)).Methods(http.MethodGet)
	api.HandleFunc("/{id}", a.getMatch).Methods(http.MethodGet)
	api.Handle("/{id}", a.authed(a.cancelMatch)).Methods(http.MethodDelete)
	api.Handle("/{id}/join", a.authed(a.joinMatch)).Methods(http.MethodPut)
	api.HandleFunc("/{id}/messages", a.listMessages).Methods(http.MethodGet)
	return r
}

func (a *API) authed(h http.HandlerFunc) http.Handler { return a.require(h) }

func unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusUnauthorized, matchdto.ErrorResponse{Code: matchdto.CodeUnauthorized, Message: "unauthorized"})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.health(ctx); err != nil {
			obslog.L().Warn("healthz_failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, matchdto.MessageResponse{Message: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, matchdto.MessageResponse{Message: "ok"})
}

func (a *API) createMatch(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PlayerFrom(r.Context())

	var req matchdto.CreateMatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, matchdto.ErrorResponse{Code: matchdto.CodeBadRequest, Message: "invalid request body"})
		return
	}
	cfg := clock.Default()
	if req.TimeLimitMinutes != nil {
		cfg.TimeLimit = time.Duration(*req.TimeLimitMinutes) * time.Minute
	}
	if req.IncrementSeconds != nil {
		cfg.Increment = time.Duration(*req.IncrementSeconds) * time.Second
	}

	m, err := a.svc.CreateMatch(r.Context(), p, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, matchView(m))
}

func (a *API) listMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := match.StatusWaiting
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status = match.Status(strings.ToUpper(s))
	}
	page, size, ok := pageParams(w, q)
	if !ok {
		return
	}
	res, err := a.svc.Matches(r.Context(), status, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageView(res))
}

// myMatches lists the caller's matches in every status unless status narrows it.
func (a *API) myMatches(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PlayerFrom(r.Context())
	q := r.URL.Query()
	status := match.StatusAll
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status = match.Status(strings.ToUpper(s))
	}
	page, size, ok := pageParams(w, q)
	if !ok {
		return
	}
	res, err := a.svc.PlayerMatches(r.Context(), p.ID, status, page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageView(res))
}

func pageParams(w http.ResponseWriter, q url.Values) (int, int, bool) {
	page, err := intParam(q.Get("page"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, matchdto.ErrorResponse{Code: matchdto.CodeBadRequest, Message: "invalid page"})
		return 0, 0, false
	}
	size, err := intParam(q.Get("page_size"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, matchdto.ErrorResponse{Code: matchdto.CodeBadRequest, Message: "invalid page_size"})
		return 0, 0, false
	}
	return page, size, true
}

func pageView(res registry.Page) matchdto.MatchPage {
	out := matchdto.MatchPage{Items: make([]matchdto.Match, 0, len(res.Items)), Total: res.Total, Page: res.Page, PageSize: res.PageSize}
	for _, m := range res.Items {
		out.Items = append(out.Items, matchView(m))
	}
	return out
}

func (a *API) currentMatch(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PlayerFrom(r.Context())
	m, err := a.svc.ActiveMatch(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, matchView(m))
}

func (a *API) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := a.svc.Match(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchView(m))
}

func (a *API) joinMatch(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PlayerFrom(r.Context())
	m, err := a.svc.JoinMatch(r.Context(), mux.Vars(r)["id"], p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchView(m))
}

func (a *API) cancelMatch(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PlayerFrom(r.Context())
	if err := a.svc.CancelMatch(r.Context(), mux.Vars(r)["id"], p.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchdto.MessageResponse{Message: "match cancelled"})
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.svc.Messages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]matchdto.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, chatView(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// errorStatus maps service errors onto HTTP status codes and wire codes.
func errorStatus(err error) (int, matchdto.ErrorResponse) {
	switch {
	case errors.Is(err, coordinator.ErrAlreadyActive):
		return http.StatusConflict, matchdto.ErrorResponse{Code: matchdto.CodeAlreadyActive, Message: "player already has an active match"}
	case errors.Is(err, coordinator.ErrNotWaiting):
		return http.StatusConflict, matchdto.ErrorResponse{Code: matchdto.CodeNotWaiting, Message: "match is not waiting for an opponent"}
	case errors.Is(err, coordinator.ErrSelfJoin):
		return http.StatusConflict, matchdto.ErrorResponse{Code: matchdto.CodeSelfJoin, Message: "cannot join your own match"}
	case errors.Is(err, registry.ErrConflict):
		return http.StatusConflict, matchdto.ErrorResponse{Code: matchdto.CodeConflict, Message: "match changed, retry", Retryable: true}
	case errors.Is(err, coordinator.ErrNotOwner):
		return http.StatusForbidden, matchdto.ErrorResponse{Code: matchdto.CodeForbidden, Message: "only the creator can cancel"}
	case errors.Is(err, coordinator.ErrMatchNotFound), errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, matchdto.ErrorResponse{Code: matchdto.CodeNotFound, Message: "match not found"}
	case errors.Is(err, coordinator.ErrInvalidClock), errors.Is(err, registry.ErrInvalidStatus):
		return http.StatusBadRequest, matchdto.ErrorResponse{Code: matchdto.CodeBadRequest, Message: err.Error()}
	}
	return http.StatusInternalServerError, matchdto.ErrorResponse{Code: matchdto.CodeInternal, Message: "internal error"}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	if status == http.StatusInternalServerError {
		obslog.L().Error("http_internal_error", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Debug("http_write_failed", zap.Error(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		obslog.L().Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
