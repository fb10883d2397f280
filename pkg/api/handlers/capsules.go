package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"capsuled/pkg/caps"
	"capsuled/pkg/models"
	"capsuled/pkg/utils"
)

// RegisterCapsules registers capsule lifecycle routes.
func RegisterCapsules(r *mux.Router) {
	r.HandleFunc("/capsules", createCapsule).Methods(http.MethodPost)
	r.HandleFunc("/capsules", listCapsules).Methods(http.MethodGet)
	r.HandleFunc("/capsules/self", getSelfCapsule).Methods(http.MethodGet)
	r.HandleFunc("/capsules/{id}", getCapsule).Methods(http.MethodGet)
	r.HandleFunc("/capsules/{id}", updateCapsule).Methods(http.MethodPut)
	r.HandleFunc("/capsules/{id}", deleteCapsule).Methods(http.MethodDelete)
}

// createCapsule handles POST /capsules. Without a subject the capsule is
// the caller's self-capsule; with one it is a managed capsule and the
// class is required.
func createCapsule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}

	var body struct {
		Subject string              `json:"subject,omitempty"`
		Class   models.ManagedClass `json:"class,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	var c *models.Capsule
	var err error
	if body.Subject == "" || body.Subject == id {
		c, err = caps.CreateSelf(id)
	} else {
		c, err = caps.CreateManaged(id, body.Subject, body.Class)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

// listCapsules handles GET /capsules?owner=1|subject=<id>. Default is the
// caller's owned capsules.
func listCapsules(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}

	var out []*models.Capsule
	var err error
	if subject := r.URL.Query().Get("subject"); subject != "" {
		out, err = caps.ListAbout(subject)
	} else {
		out, err = caps.ListOwned(id)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Capsules []*models.Capsule `json:"capsules"`
	}{Capsules: out})
}

func getSelfCapsule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	c, err := caps.SelfCapsule(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func getCapsule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	c, err := caps.Read(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func updateCapsule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var p models.CapsulePartial
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	c, err := caps.Update(id, mux.Vars(r)["id"], &p)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func deleteCapsule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	if err := caps.Delete(id, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
