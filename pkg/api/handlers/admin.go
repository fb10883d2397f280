package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"capsuled/pkg/logger"
	"capsuled/pkg/sharing"
	"capsuled/pkg/store"
	"capsuled/pkg/utils"
)

// RegisterAdmin registers admin-only routes onto the admin subrouter. The
// gateway middleware already restricts /v1/admin to admin keys; the role
// header check here is a second gate for direct mounts.
func RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/health", adminHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", adminStats).Methods(http.MethodGet)
	r.HandleFunc("/cleanup/pending", adminPendingCleanup).Methods(http.MethodGet)
	logger.Info("admin_routes_registered")
}

func isAdmin(r *http.Request) bool {
	role := r.Header.Get("X-Role-Name")
	return role == "admin" || role == "backend"
}

func adminHealth(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","service":"capsuled"}`))
}

func adminStats(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")

	capsules, err := store.CountCapsules()
	if err != nil {
		writeErr(w, err)
		return
	}
	pending, err := store.ListExternalCleanup(0)
	if err != nil {
		writeErr(w, err)
		return
	}
	outboxDepth := 0
	if sharing.DefaultOutbox != nil {
		outboxDepth = sharing.DefaultOutbox.Depth()
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Capsules        int `json:"capsules"`
		PendingCleanups int `json:"pending_cleanups"`
		OutboxDepth     int `json:"outbox_depth"`
	}{Capsules: capsules, PendingCleanups: len(pending), OutboxDepth: outboxDepth})
}

// adminPendingCleanup lists queued external-blob cleanup notices.
func adminPendingCleanup(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending, err := store.ListExternalCleanup(0)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, pending)
}
