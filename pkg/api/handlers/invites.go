package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"capsuled/pkg/models"
	"capsuled/pkg/sharing"
	"capsuled/pkg/utils"
)

// RegisterSharing registers invite routes and the peer inbox endpoint.
func RegisterSharing(r *mux.Router) {
	r.HandleFunc("/capsules/{id}/invites", sendInvite).Methods(http.MethodPost)
	r.HandleFunc("/capsules/{id}/invites", listSentInvites).Methods(http.MethodGet)
	r.HandleFunc("/capsules/{id}/invites/received", listReceivedInvites).Methods(http.MethodGet)
	r.HandleFunc("/capsules/{id}/invites/{inv}/accept", acceptInvite).Methods(http.MethodPost)
	r.HandleFunc("/capsules/{id}/invites/{inv}/reject", rejectInvite).Methods(http.MethodPost)
	r.HandleFunc("/capsules/{id}/invites/{inv}/revoke", revokeInvite).Methods(http.MethodPost)
	r.HandleFunc("/sharing/inbox", sharingInbox).Methods(http.MethodPost)
}

func sendInvite(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var in sharing.SendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	inv, err := sharing.Send(id, mux.Vars(r)["id"], &in)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, inv)
}

func listSentInvites(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	invs, err := sharing.ListSent(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Invites []*models.Invite `json:"invites"`
	}{Invites: invs})
}

func listReceivedInvites(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	invs, err := sharing.ListReceived(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Invites []*models.Invite `json:"invites"`
	}{Invites: invs})
}

func acceptInvite(w http.ResponseWriter, r *http.Request) {
	decideInvite(w, r, sharing.Accept)
}

func rejectInvite(w http.ResponseWriter, r *http.Request) {
	decideInvite(w, r, sharing.Reject)
}

func revokeInvite(w http.ResponseWriter, r *http.Request) {
	decideInvite(w, r, sharing.Revoke)
}

func decideInvite(w http.ResponseWriter, r *http.Request, op func(string, string, string) (*models.Invite, error)) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	vars := mux.Vars(r)
	inv, err := op(id, vars["id"], vars["inv"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, inv)
}

// sharingInbox is the peer-facing transport endpoint. Bodies are
// serialized invite notices; duplicates are no-ops by protocol.
func sharingInbox(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := sharing.ReceiveNoticeBytes(payload); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "accepted"})
}
