package gate

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Auth is the gate's bearer token policy. Enforcement needs an API key
// configured and DISABLE_AUTH unset; the query surfaces then require the
// token, while health stays open.
type Auth struct {
	APIKey   string `env:"HTTP_API_KEY"`
	Disabled bool   `env:"DISABLE_AUTH,default=false"`
}

// AuthFromEnv reads the auth policy from HTTP_API_KEY and DISABLE_AUTH.
func AuthFromEnv() (Auth, error) {
	var a Auth
	if err := envdecode.Decode(&a); err != nil {
		return Auth{}, fmt.Errorf("decoding auth environment: %w", err)
	}
	return a, nil
}

// Enabled reports whether requests must carry the bearer token.
func (a Auth) Enabled() bool {
	return !a.Disabled && a.APIKey != ""
}

// authorize enforces the bearer policy, writing the 401 itself when the
// caller fails it.
func (g *Gate) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !g.auth.Enabled() {
		return true
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		g.log.Debug("missing Authorization header")
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing Authorization header")
		return false
	}
	if !strings.HasPrefix(header, "Bearer ") {
		g.log.Debug("Authorization header is not a bearer token")
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Authorization header must use Bearer token")
		return false
	}
	if strings.TrimPrefix(header, "Bearer ") != g.auth.APIKey {
		g.log.Debug("invalid API key provided")
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid API key")
		return false
	}
	return true
}
