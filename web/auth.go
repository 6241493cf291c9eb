package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

type accessKey struct{}

// AccessControlIDs returns the access control ids granted to the request,
// or nil when the request is unrestricted.
func AccessControlIDs(ctx context.Context) []string {
	ids, _ := ctx.Value(accessKey{}).([]string)
	return ids
}

// Auth verifies HMAC signed bearer tokens and scopes each request to the
// access control ids the token grants
type Auth struct {
	secret []byte
	issuer string
	claim  string
}

// NewAuth creates a verifier for tokens signed with secret. A non-empty
// issuer must match the token's iss claim. claim names the claim listing
// access control ids.
func NewAuth(secret, issuer, claim string) *Auth {
	return &Auth{secret: []byte(secret), issuer: issuer, claim: claim}
}

// Middleware rejects requests without a valid token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		ids, err := a.verify(raw)
		if err != nil {
			loggerFrom(r.Context()).DebugContext(r.Context(), "Rejected bearer token", "error", err)
			unauthorized(w, "invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), accessKey{}, ids)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) verify(raw string) ([]string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	var ids []string
	switch v := claims[a.claim].(type) {
	case string:
		ids = strings.Fields(v)
	case []interface{}:
		for _, id := range v {
			if s, ok := id.(string); ok && s != "" {
				ids = append(ids, s)
			}
		}
	}
	return ids, nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="dicomarc"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
