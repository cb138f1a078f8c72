// internal/security/security.go
package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"xpstore/internal/logger"
)

const CSRFFieldName = "csrf_token"

var (
	csrfTokens   = make(map[string]time.Time)
	csrfTokensMu sync.Mutex
	csrfTokenTTL = time.Hour * 1
)

// GenerateCSRFToken generates a new single-use CSRF token.
func GenerateCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("Failed to generate CSRF token: " + err.Error())
	}
	token := base64.URLEncoding.EncodeToString(b)

	csrfTokensMu.Lock()
	csrfTokens[token] = time.Now().Add(csrfTokenTTL)
	csrfTokensMu.Unlock()

	return token
}

// ValidateCSRFToken validates and consumes a CSRF token.
func ValidateCSRFToken(token string) bool {
	if token == "" {
		return false
	}

	csrfTokensMu.Lock()
	defer csrfTokensMu.Unlock()

	expiry, ok := csrfTokens[token]
	if !ok {
		return false
	}
	delete(csrfTokens, token)
	return time.Now().Before(expiry)
}

// CSRFTokenHandler returns a fresh token as JSON.
func CSRFTokenHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{CSRFFieldName: GenerateCSRFToken()})
}

// RequireCSRF rejects form posts without a valid token.
func RequireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ValidateCSRFToken(r.FormValue(CSRFFieldName)) {
			logger.LogWarn("Rejected %s %s from %s: invalid CSRF token", r.Method, r.URL.Path, logger.GetClientIP(r))
			http.Error(w, "Invalid or expired form token, please reload the page", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// removeExpiredTokens drops expired tokens and returns how many were removed.
func removeExpiredTokens(now time.Time) int {
	csrfTokensMu.Lock()
	defer csrfTokensMu.Unlock()

	removed := 0
	for token, expiry := range csrfTokens {
		if now.After(expiry) {
			delete(csrfTokens, token)
			removed++
		}
	}
	return removed
}

// CleanExpiredTokens periodically cleans up expired CSRF tokens until ctx is done.
func CleanExpiredTokens(ctx context.Context) {
	ticker := time.NewTicker(time.Minute * 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := removeExpiredTokens(now); n > 0 {
				logger.LogInfo("CSRF token cleanup removed %d tokens", n)
			}
		}
	}
}

// AddCORSHeaders adds CORS headers for origin and answers preflight requests.
func AddCORSHeaders(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
