package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// RequireAdmin guards the admin API with HTTP basic auth. The password is
// checked against a bcrypt hash.
func RequireAdmin(username string, passwordHash []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !checkAdmin(username, passwordHash, user, pass) {
				if ok {
					logger.Warn("admin auth failed",
						"user", user,
						"remote", RemoteIP(r),
						"request_id", RequestID(r.Context()),
					)
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="meetings admin", charset="UTF-8"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAdmin(wantUser string, hash []byte, user, pass string) bool {
	if len(hash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(hash, []byte(pass)) == nil
	return userOK && passOK
}
