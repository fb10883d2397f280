package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"capsuled/pkg/galleries"
	"capsuled/pkg/models"
	"capsuled/pkg/utils"
)

// RegisterGalleries registers gallery routes.
func RegisterGalleries(r *mux.Router) {
	r.HandleFunc("/capsules/{id}/galleries", createGallery).Methods(http.MethodPost)
	r.HandleFunc("/capsules/{id}/galleries", listGalleries).Methods(http.MethodGet)
	r.HandleFunc("/galleries/{id}", getGallery).Methods(http.MethodGet)
	r.HandleFunc("/galleries/{id}", updateGallery).Methods(http.MethodPut)
	r.HandleFunc("/galleries/{id}", deleteGallery).Methods(http.MethodDelete)
}

func createGallery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var in galleries.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	in.Capsule = mux.Vars(r)["id"]
	g, err := galleries.Create(id, &in)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, g)
}

func listGalleries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	gs, err := galleries.List(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Galleries []*models.Gallery `json:"galleries"`
	}{Galleries: gs})
}

func getGallery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	g, err := galleries.Read(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

func updateGallery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var p models.GalleryPartial
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	g, err := galleries.Update(id, mux.Vars(r)["id"], &p)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

func deleteGallery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	if err := galleries.Delete(id, mux.Vars(r)["id"]); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
