package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"capsuled/pkg/memories"
	"capsuled/pkg/models"
	"capsuled/pkg/utils"
)

// RegisterMemories registers memory lifecycle and bulk routes.
func RegisterMemories(r *mux.Router) {
	r.HandleFunc("/capsules/{id}/memories", createMemory).Methods(http.MethodPost)
	r.HandleFunc("/capsules/{id}/memories", listMemories).Methods(http.MethodGet)

	r.HandleFunc("/memories/{id}", getMemory).Methods(http.MethodGet)
	r.HandleFunc("/memories/{id}", updateMemory).Methods(http.MethodPut)
	r.HandleFunc("/memories/{id}", deleteMemory).Methods(http.MethodDelete)
	r.HandleFunc("/memories/{id}/assets", getMemoryAssets).Methods(http.MethodGet)
	r.HandleFunc("/memories/{id}/assets/{index}", getMemoryAsset).Methods(http.MethodGet)

	r.HandleFunc("/capsules/{id}/memories/bulk/delete", deleteMemoriesBulk).Methods(http.MethodPost)
	r.HandleFunc("/capsules/{id}/memories/bulk/cleanup", cleanupMemoriesBulk).Methods(http.MethodPost)
}

// createMemory handles POST /capsules/{id}/memories. The idempotency key
// comes from the Idempotency-Key header or the body's idem_key field; the
// header wins.
func createMemory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}

	var in memories.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	in.Capsule = mux.Vars(r)["id"]
	if k := r.Header.Get("Idempotency-Key"); k != "" {
		in.IdemKey = k
	}

	m, err := memories.Create(id, &in)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := m.StripBytes()
	_ = utils.JSONWrite(w, http.StatusCreated, out)
}

func listMemories(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	ms, err := memories.List(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Memories []models.Memory `json:"memories"`
	}{Memories: ms})
}

func getMemory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	m, err := memories.ReadMetadata(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

// getMemoryAssets handles GET /memories/{id}/assets: the full record with
// bytes materialized for inline and internal-blob tiers.
func getMemoryAssets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	m, err := memories.ReadFull(id, mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func getMemoryAsset(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["index"])
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid asset index")
		return
	}
	a, err := memories.ReadAsset(id, vars["id"], idx)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, a)
}

func updateMemory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var p models.MemoryPartial
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := memories.Update(id, mux.Vars(r)["id"], &p)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func deleteMemory(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	cleanup := r.URL.Query().Get("cleanup") != "0"
	if err := memories.Delete(id, mux.Vars(r)["id"], cleanup); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteMemoriesBulk handles POST /capsules/{id}/memories/bulk/delete.
// An empty or absent id list means every memory in the capsule.
func deleteMemoriesBulk(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	capsuleID := mux.Vars(r)["id"]

	var res *models.BulkResult
	var err error
	if len(body.IDs) == 0 {
		res, err = memories.DeleteAll(id, capsuleID)
	} else {
		res, err = memories.DeleteBulk(id, capsuleID, body.IDs)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, res)
}

// cleanupMemoriesBulk handles POST /capsules/{id}/memories/bulk/cleanup:
// release stored asset payloads while keeping the records.
func cleanupMemoriesBulk(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := caller(w, r)
	if id == "" {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	capsuleID := mux.Vars(r)["id"]

	var res *models.BulkResult
	var err error
	if len(body.IDs) == 0 {
		res, err = memories.CleanupAssetsAll(id, capsuleID)
	} else {
		res, err = memories.CleanupAssetsBulk(id, capsuleID, body.IDs)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, res)
}
