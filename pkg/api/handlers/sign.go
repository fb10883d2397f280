package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"capsuled/pkg/logger"
	"capsuled/pkg/utils"
)

// RegisterSigning registers the caller-signature helper endpoint. It is
// protected by the gateway middleware (backend API keys) and signs with
// the caller's own API key, so backends can mint X-Caller-Signature
// values for the identities they act for.
func RegisterSigning(r *mux.Router) {
	r.HandleFunc("/_sign", signHandler).Methods(http.MethodPost)
}

// signHandler computes an HMAC-SHA256 signature over an identity using
// the caller's API key as the secret. Backend role only.
func signHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	role := r.Header.Get("X-Role-Name")
	if role != "backend" {
		logger.Warn("sign_forbidden", "role", role, "remote", r.RemoteAddr)
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}

	auth := r.Header.Get("Authorization")
	var key string
	if len(auth) > 7 && (auth[:7] == "Bearer " || auth[:7] == "bearer ") {
		key = auth[7:]
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		logger.Warn("sign_missing_api_key", "remote", r.RemoteAddr)
		utils.JSONError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	var payload struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Identity == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payload.Identity))
	sig := hex.EncodeToString(mac.Sum(nil))
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"identity": payload.Identity, "signature": sig})
}
