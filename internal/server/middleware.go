package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/tareeqk/towing/internal/towing"
)

type contextKey int

const actorKey contextKey = iota

func actorFromContext(ctx context.Context) towing.Actor {
	if actor, ok := ctx.Value(actorKey).(towing.Actor); ok {
		return actor
	}
	return towing.Anonymous()
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// websocket clients cannot set headers from the browser
	return r.URL.Query().Get("token")
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondMessage(w, http.StatusUnauthorized, false, "Unauthenticated")
			return
		}

		actor, err := s.tokens.ParseToken(token)
		if err != nil {
			respondMessage(w, http.StatusUnauthorized, false, "Unauthenticated")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// optionalAuth resolves the actor when a token is present but lets
// anonymous requests through. An invalid token is still rejected rather
// than silently downgraded.
func (s *Server) optionalAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := s.tokens.ParseToken(token)
		if err != nil {
			respondMessage(w, http.StatusUnauthorized, false, "Unauthenticated")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}
