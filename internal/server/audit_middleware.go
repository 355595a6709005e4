package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"
)

// auditLogMiddleware records every API call with its actor, bodies and
// outcome, and hands the entry to the batching audit manager. Websocket
// upgrades and metrics scrapes are skipped.
func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		entry := AuditLogEntry{
			Timestamp: time.Now(),
			Method:    r.Method,
			Path:      r.URL.Path,
			Handler:   handlerName(r.URL.Path, r.Method),
			RequestID: pathRequestID(r.URL.Path),
		}

		if token := bearerToken(r); token != "" {
			if actor, err := s.tokens.ParseToken(token); err == nil {
				entry.ActorID = actor.ID
				entry.ActorRole = actor.Role.String()
			}
		}

		if r.Body != nil {
			requestBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			if !isCredentialPath(r.URL.Path) {
				entry.Request = string(requestBody)
			}
		}

		rec := newAuditRecorder(w)

		next.ServeHTTP(rec, r)

		entry.StatusCode = rec.Status()
		entry.Response = string(rec.Body())

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}

// passwords never land in the audit trail
func isCredentialPath(path string) bool {
	return path == "/register" || path == "/login"
}

func pathRequestID(path string) string {
	if !strings.HasPrefix(path, "/requests/") {
		return ""
	}
	rest := strings.TrimPrefix(path, "/requests/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

func handlerName(path string, method string) string {
	switch {
	case path == "/register":
		return "handleRegister"
	case path == "/login":
		return "handleLogin"
	case path == "/logout":
		return "handleLogout"
	case path == "/me":
		return "handleMe"
	case path == "/requests" && method == http.MethodPost:
		return "handleCreateRequest"
	case path == "/requests" && method == http.MethodGet:
		return "handleListRequests"
	case strings.HasSuffix(path, "/accept"):
		return "handleAcceptRequest"
	case strings.HasSuffix(path, "/complete"):
		return "handleCompleteRequest"
	case strings.HasPrefix(path, "/requests/"):
		return "handleGetRequest"
	}
	return "unknown"
}
