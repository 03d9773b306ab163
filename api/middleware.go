/*
middleware.go - Authentication and response helpers

PURPOSE:
  Verifies the bearer token, resolves it to a model.Actor, binds the
  tenant on the store, and stashes the actor in the request context.
  Also holds the JSON response helpers and the domain-error to HTTP
  status mapping used by every handler.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kyuyo/payroll-engine/auth"
	"github.com/kyuyo/payroll-engine/errs"
	"github.com/kyuyo/payroll-engine/model"
)

type contextKey string

const actorKey contextKey = "actor"

// actorFrom returns the authenticated actor. Only valid below
// requireAuth.
func actorFrom(r *http.Request) model.Actor {
	actor, _ := r.Context().Value(actorKey).(model.Actor)
	return actor
}

// requestLog emits one structured line per request.
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// requireAuth verifies the bearer token and loads the actor into the
// context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := h.Auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		actor, err := claims.Actor()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if err := h.Store.BindTenant(r.Context(), actor); err != nil {
			h.log.Error().Err(err).Msg("bind tenant")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin rejects employee-role actors.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSuperAdmin guards the cross-tenant company endpoints.
func (h *Handler) requireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFrom(r).Role != model.RoleSuperAdmin {
			writeError(w, http.StatusForbidden, "super admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps the error kinds of the core onto HTTP statuses.
// Internal and ambiguous-rate errors hide their detail from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errs.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errs.IsConflict(err), errs.IsInvalidState(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrBadCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode parses a JSON body, rejecting unknown garbage early.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errs.Validationf("body", "malformed JSON: %v", err)
	}
	return nil
}
