package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"capsuled/pkg/acl"
	"capsuled/pkg/models"
	"capsuled/pkg/store"
	"capsuled/pkg/utils"
)

// RegisterAccess registers grant administration and permission routes.
func RegisterAccess(r *mux.Router) {
	r.HandleFunc("/resources/{type}/{id}/permissions", getPermissions).Methods(http.MethodGet)
	r.HandleFunc("/resources/{type}/{id}/members", grantMembership).Methods(http.MethodPost)
	r.HandleFunc("/resources/{type}/{id}/members/{identity}", revokeMembership).Methods(http.MethodDelete)
	r.HandleFunc("/resources/{type}/{id}/policy", setPolicy).Methods(http.MethodPut)
	r.HandleFunc("/resources/{type}/{id}/links", mintLink).Methods(http.MethodPost)
	r.HandleFunc("/links/consume", consumeLink).Methods(http.MethodPost)
	r.HandleFunc("/links/{id}/revoke", revokeLink).Methods(http.MethodPost)
}

func resourceVars(r *http.Request) (models.ResourceType, string) {
	vars := mux.Vars(r)
	return models.ResourceType(vars["type"]), vars["id"]
}

// getPermissions returns the caller's effective mask on the resource.
func getPermissions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	rt, rid := resourceVars(r)
	perm, err := acl.EffectivePermissions(id, rt, rid)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Resource string      `json:"resource"`
		Identity string      `json:"identity"`
		Perm     models.Perm `json:"perm"`
	}{Resource: rid, Identity: id, Perm: perm})
}

func grantMembership(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	rt, rid := resourceVars(r)
	if err := acl.Require(id, rt, rid, models.PermManage); err != nil {
		writeErr(w, err)
		return
	}
	var m models.ResourceMembership
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m.Type = rt
	m.Resource = rid
	m.GrantedBy = id
	if m.Source == "" {
		m.Source = models.SourceUser
	}
	if err := acl.Grant(&m); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func revokeMembership(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	rt, rid := resourceVars(r)
	if err := acl.Require(id, rt, rid, models.PermManage); err != nil {
		writeErr(w, err)
		return
	}
	if err := acl.Revoke(rt, rid, mux.Vars(r)["identity"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setPolicy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	rt, rid := resourceVars(r)
	if err := acl.Require(id, rt, rid, models.PermManage); err != nil {
		writeErr(w, err)
		return
	}
	var p models.PublicPolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p.Type = rt
	p.Resource = rid
	p.SetBy = id
	if err := acl.SetPublicPolicy(&p); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, p)
}

// mintLink creates a magic link; the raw token appears only in this
// response.
func mintLink(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	rt, rid := resourceVars(r)
	if err := acl.Require(id, rt, rid, models.PermShare); err != nil {
		writeErr(w, err)
		return
	}
	var body struct {
		Perm      models.Perm `json:"perm"`
		MaxUses   int         `json:"max_uses"`
		ExpiresTS int64       `json:"expires_ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	l, raw, err := acl.MintLink(rt, rid, body.Perm, body.MaxUses, body.ExpiresTS, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, struct {
		Link  *models.MagicLink `json:"link"`
		Token string            `json:"token"`
	}{Link: l, Token: raw})
}

func consumeLink(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		utils.JSONError(w, http.StatusBadRequest, "token required")
		return
	}
	l, err := acl.ConsumeLink(body.Token, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Resource string              `json:"resource"`
		Type     models.ResourceType `json:"type"`
		Perm     models.Perm         `json:"perm"`
	}{Resource: l.Resource, Type: l.Type, Perm: l.Perm})
}

func revokeLink(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	l, err := store.GetMagicLink(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := acl.Require(id, l.Type, l.Resource, models.PermManage); err != nil {
		writeErr(w, err)
		return
	}
	if err := acl.RevokeLink(l.ID, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
