package http

import (
	"context"
	"net/http"
	"time"

	"moneyflow/internal/core"
)

type ownerKey struct{}

// requireOwner rejects requests without a valid user header and stores
// the owner id in the context.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := ownerFromRequest(r)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerOf(r *http.Request) int64 {
	owner, _ := r.Context().Value(ownerKey{}).(int64)
	return owner
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeErrorCode(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleInitialize seeds the caller's default accounts and categories.
// It answers 201 when data was created and 200 when it already existed.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	created, err := s.svc.Initializer.Initialize(r.Context(), ownerOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

// handleRunDueRules fires the caller's due rules.
func (s *Server) handleRunDueRules(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Engine.RunDueRules(r.Context(), core.OwnerScope(ownerOf(r)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRunReportJSON(report))
}
