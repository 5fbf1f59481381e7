package api

import (
	"encoding/json"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/gorilla/mux"
)

// HandleReplaceById handles PUT requests to completely replace a record by ID.
// The record keeps its _id and createdAt.
func (h *Handler) HandleReplaceById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tableName := vars["table"]
	docId := vars["id"]

	var newDoc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&newDoc); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}
	if newDoc == nil {
		newDoc = domain.Document{}
	}

	id, old, err := h.resolveRecord(r.Context(), tableName, docId)
	if err != nil {
		writeError(w, err)
		return
	}
	if old == nil {
		WriteJSONError(w, http.StatusNotFound, "record not found")
		return
	}

	newDoc[domain.PrimaryKey] = id
	delete(newDoc, domain.CreatedAt)
	if err := h.db.Put(r.Context(), tableName, newDoc); err != nil {
		writeError(w, err)
		return
	}

	replaced, err := h.db.Get(r.Context(), tableName, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replaced)
}
