package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth checks the service API key sent as "Authorization: Bearer <key>" or
// "X-API-Key: <key>". apiKey may list several comma-separated keys so a key
// can be rotated without downtime; an empty apiKey disables the check.
// Websocket upgrades may pass the key as ?api_key= because browsers cannot
// set headers on them. Paths in open and CORS preflights are never checked.
func Auth(apiKey string, open ...string) func(http.Handler) http.Handler {
	var keys [][]byte
	for _, k := range strings.Split(apiKey, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	skip := make(map[string]struct{}, len(open))
	for _, p := range open {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := requestToken(r)
			switch {
			case token == "":
				unauthorized(w, "missing authentication token")
			case !matchesAny(keys, token):
				unauthorized(w, "invalid authentication token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func matchesAny(keys [][]byte, token string) bool {
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(token))
	}
	return ok == 1
}

func requestToken(r *http.Request) string {
	if scheme, tok, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("api_key")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="probalyze"`)
	jsonError(w, http.StatusUnauthorized, msg)
}
