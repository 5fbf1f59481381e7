package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/query"
	"github.com/gorilla/mux"
)

// UpdateRequest represents the request body for update operations
type UpdateRequest struct {
	Where  map[string]interface{} `json:"where"`
	Update map[string]interface{} `json:"update"`
}

// UpdateResponse represents the response for update and delete operations
type UpdateResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	UpdatedCount int    `json:"updated_count,omitempty"`
	DeletedCount int    `json:"deleted_count,omitempty"`
	Table        string `json:"table"`
}

// HandleUpdate handles POST requests that update every matching record. The
// update is all-or-nothing.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleUpdate called for table '%s'", tableName)

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Update) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "No update provided")
		return
	}

	cond, err := query.ParseCondition(req.Where)
	if err != nil {
		writeError(w, err)
		return
	}
	spec, err := query.ParseUpdate(req.Update)
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := h.db.Update(r.Context(), tableName, cond, spec)
	if err != nil {
		log.Printf("ERROR: Update failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateResponse{
		Success:      true,
		Message:      "Update completed successfully",
		UpdatedCount: n,
		Table:        tableName,
	})

	log.Printf("INFO: Updated %d records in table '%s'", n, tableName)
}

// HandleDeleteWhere handles POST requests that delete every matching record
func (h *Handler) HandleDeleteWhere(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cond, err := query.ParseCondition(req.Where)
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := h.db.DeleteWhere(r.Context(), tableName, cond)
	if err != nil {
		log.Printf("ERROR: Delete failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateResponse{
		Success:      true,
		Message:      "Delete completed successfully",
		DeletedCount: n,
		Table:        tableName,
	})

	log.Printf("INFO: Deleted %d records from table '%s'", n, tableName)
}
