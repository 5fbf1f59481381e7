package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/query"
	"github.com/gorilla/mux"
)

// HandleUpdateById handles PATCH requests that apply an update document such
// as {"$inc": {"visits": 1}} to one record
func (h *Handler) HandleUpdateById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tableName := vars["table"]
	docId := vars["id"]

	log.Printf("INFO: handleUpdateById called for table '%s', record '%s'", tableName, docId)

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	spec, err := query.ParseUpdate(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	id, doc, err := h.resolveRecord(r.Context(), tableName, docId)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		WriteJSONError(w, http.StatusNotFound, "record not found")
		return
	}

	if _, err := h.db.Update(r.Context(), tableName, query.Condition{domain.PrimaryKey: id}, spec); err != nil {
		log.Printf("ERROR: Update failed for record '%s' in table '%s': %v", docId, tableName, err)
		writeError(w, err)
		return
	}

	updated, err := h.db.Get(r.Context(), tableName, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
