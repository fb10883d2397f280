package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"capsuled/pkg/config"
	"capsuled/pkg/logger"
	"capsuled/pkg/utils"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
	AllowUnauth    bool
}

type ctxCallerKey struct{}

// RequireSignedCaller verifies HMAC signature headers and injects the
// verified caller identity into the request context. The core engine never
// authenticates; this middleware is the boundary where an external identity
// layer hands us a resolved principal.
func RequireSignedCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Role-Name")
		callerID := strings.TrimSpace(r.Header.Get("X-Caller-ID"))
		sig := strings.TrimSpace(r.Header.Get("X-Caller-Signature"))

		// Backend/admin callers may omit the signature entirely; if one is
		// present it is still verified below.
		if (role == "backend" || role == "admin") && sig == "" {
			next.ServeHTTP(w, r)
			return
		}

		if sig == "" || callerID == "" {
			logger.Warn("missing_signature_headers", "path", r.URL.Path, "remote", r.RemoteAddr)
			utils.JSONError(w, http.StatusUnauthorized, "missing signature headers")
			return
		}

		keys := config.GetSigningKeys()
		if len(keys) == 0 {
			logger.Error("no_signing_keys_configured")
			utils.JSONError(w, http.StatusInternalServerError, "server misconfigured: no signing secrets available")
			return
		}

		ok := false
		for k := range keys {
			mac := hmac.New(sha256.New, []byte(k))
			mac.Write([]byte(callerID))
			expected := hex.EncodeToString(mac.Sum(nil))
			if hmac.Equal([]byte(expected), []byte(sig)) {
				ok = true
				break
			}
		}
		if !ok {
			logger.Warn("invalid_signature", "caller", callerID)
			utils.JSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		ctx := context.WithValue(r.Context(), ctxCallerKey{}, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerIDFromContext returns the verified caller id or empty string.
func CallerIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxCallerKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ResolveCaller is the canonical resolver handlers call to attribute a
// request. A signature-verified identity wins; conflicting header-supplied
// identities are rejected. Without a signature, backend/admin roles may
// supply the acting identity via the X-Caller-ID header.
func ResolveCaller(r *http.Request) (string, int, string) {
	if id := CallerIDFromContext(r.Context()); id != "" {
		if h := strings.TrimSpace(r.Header.Get("X-Caller-ID")); h != "" && h != id {
			logger.Warn("caller_mismatch_signature_header", "signature", id, "header", h, "path", r.URL.Path)
			return "", http.StatusForbidden, "caller mismatch between signature and header"
		}
		return id, 0, ""
	}
	role := r.Header.Get("X-Role-Name")
	if role == "backend" || role == "admin" {
		if h := strings.TrimSpace(r.Header.Get("X-Caller-ID")); h != "" {
			if len(h) > 128 {
				return "", http.StatusBadRequest, "caller id too long"
			}
			return h, 0, ""
		}
		return "", http.StatusBadRequest, "caller id required"
	}
	return "", http.StatusUnauthorized, "signature required"
}
