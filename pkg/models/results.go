package models

// ItemFailure pairs an id with the error that stopped it.
type ItemFailure struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// BulkResult is the per-item outcome of a batched operation. Partial
// failure is first-class: one item's error never aborts the batch.
type BulkResult struct {
	OK     []string      `json:"ok"`
	Failed []ItemFailure `json:"failed"`
}

// AddOK appends a succeeded id.
func (r *BulkResult) AddOK(id string) { r.OK = append(r.OK, id) }

// AddFailed appends a failed id with its error classification.
func (r *BulkResult) AddFailed(id, kind string, err error) {
	r.Failed = append(r.Failed, ItemFailure{ID: id, Kind: kind, Error: err.Error()})
}
