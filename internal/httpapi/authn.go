package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bloodlink.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withBearer attaches the bearer token to the request context. Verification
// is the gateway's job; requests without a header reach it unauthenticated.
func withBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(authHeader)
		if strings.TrimSpace(raw) == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(raw)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := auth.ContextWithToken(r.Context(), token)
		if p, err := auth.DecodeUnverified(token); err == nil && p.Username != "" {
			ctx = auth.ContextWithActor(ctx, p.Username)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
