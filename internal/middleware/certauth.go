// Package middleware provides HTTP middlewares for client-certificate authentication and
// request logging.
package middleware

import (
	"context"
	"net/http"
	"slices"
)

type ctxKey string

const bridgeKey ctxKey = "bridge"

// HealthPath is served without a client certificate so supervisors can probe the daemon.
const HealthPath = "/api/health"

// CertAuth returns a middleware admitting only autofill bridges that present a client
// certificate. TLS has already verified the chain against the configured CA; the
// certificate's Common Name names the bridge. When bridges is non-empty only those names are
// admitted and any other bridge gets 403. The name is stored in the request context.
func CertAuth(bridges ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == HealthPath {
				next.ServeHTTP(w, r)
				return
			}
			if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
				http.Error(w, "no client certificate provided", http.StatusUnauthorized)
				return
			}
			name := r.TLS.PeerCertificates[0].Subject.CommonName
			if name == "" {
				http.Error(w, "client certificate has no common name", http.StatusUnauthorized)
				return
			}
			if len(bridges) > 0 && !slices.Contains(bridges, name) {
				http.Error(w, "bridge "+name+" is not allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bridgeKey, name)))
		})
	}
}

// BridgeFromContext returns the Common Name of the calling bridge, or "" when the request
// was not authenticated by CertAuth.
func BridgeFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(bridgeKey).(string); ok {
		return s
	}
	return ""
}
