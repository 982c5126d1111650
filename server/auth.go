package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authenticate checks requests for the configured bearer token.
// An empty token disables the check.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := authorize(req, s.AuthToken); err != nil {
			s.writeError(w, req, err)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func authorize(req *http.Request, token string) error {
	if token == "" {
		return nil
	}
	got, ok := parseBearer(req.Header.Get("Authorization"))
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return errUnauthenticated
	}
	return nil
}

// parseBearer parses an HTTP bearer authorization header.
// "Bearer abc123" returns ("abc123", true).
func parseBearer(auth string) (string, bool) {
	const prefix = "bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(auth[len(prefix):])
	return tok, tok != ""
}
