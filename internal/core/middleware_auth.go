package core

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"emailer/internal/types"
)

// authPublicPaths lists URL paths that are exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health":        true,
	"/__heartbeat__": true,
	"/v1/":           true,
	"/v1":            true,
}

// Authenticator checks basic-auth credentials and returns the principal
// recorded as user_id in store events.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// BcryptAuthenticator accepts a single user whose password matches a bcrypt hash.
type BcryptAuthenticator struct {
	User         string
	PasswordHash types.SecretString
}

// Authenticate returns "basicauth:<user>" on success.
func (a BcryptAuthenticator) Authenticate(_ context.Context, username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.User)) == 1
	// bcrypt runs for unknown users too.
	hashErr := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash.Unmask()), []byte(password))
	if !userOK || hashErr != nil {
		return "", types.NewAppError(types.ErrCodeAuthInvalidCreds, "Invalid credentials", hashErr)
	}
	return "basicauth:" + username, nil
}

// AuthMiddleware requires HTTP basic credentials on every non-public path and
// stores the principal with types.WithUserID. It passes through when
// s.Authenticator is nil.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			s.writeAuthError(w, r, "Authorization header is required")
			return
		}

		principal, err := s.Authenticator.Authenticate(r.Context(), username, password)
		if err != nil {
			s.Logger.Warn("authentication failed",
				slog.String("user", username),
				slog.String("path", r.URL.Path),
				slog.String("request_id", types.GetRequestID(r.Context())),
			)
			s.writeAuthError(w, r, "Invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithUserID(r.Context(), principal)))
	})
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="emailer"`)
	Error(w, r, types.NewAppError(types.ErrCodeAuthInvalidCreds, message, nil))
}
