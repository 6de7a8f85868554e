package http

import (
	"context"
	"net/http"
	"strings"

	"tally/internal/log"
	"tally/internal/view"
)

type ctxKey int

const sessionKey ctxKey = iota

type sessionInfo struct {
	id     string
	userID string
	coord  *view.Coordinator
}

// requireSession verifies the bearer token and puts the coordinator of its
// session into the request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.FromContext(r.Context())

		token, ok := bearerToken(r)
		if !ok {
			logger.WarnContext(r.Context(), "Missing or malformed bearer token", log.FieldPath, r.URL.Path)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.tokens.Verify(token)
		if err != nil {
			logger.WarnContext(r.Context(), "Token rejected", log.FieldPath, r.URL.Path, log.FieldError, err)
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		coord, err := s.sessions.Open(claims.SessionID(), claims.UserID(), claims.Expiry())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		info := sessionInfo{id: claims.SessionID(), userID: claims.UserID(), coord: coord}
		ctx := context.WithValue(r.Context(), sessionKey, info)
		ctx = log.NewContext(ctx, logger.With(log.FieldUserID, info.userID, log.FieldSessionID, info.id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func sessionFrom(ctx context.Context) sessionInfo {
	info, _ := ctx.Value(sessionKey).(sessionInfo)
	return info
}

// userKey keys the rate limiter by user so sessions of one user share a
// budget.
func userKey(r *http.Request) string {
	return "user:" + sessionFrom(r.Context()).userID
}
