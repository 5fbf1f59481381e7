package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleDeleteById handles DELETE requests to remove a specific record by ID
func (h *Handler) HandleDeleteById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tableName := vars["table"]
	docId := vars["id"]

	id, doc, err := h.resolveRecord(r.Context(), tableName, docId)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		WriteJSONError(w, http.StatusNotFound, "record not found")
		return
	}

	if _, err := h.db.Delete(r.Context(), tableName, id); err != nil {
		log.Printf("ERROR: Delete failed for record '%s' in table '%s': %v", docId, tableName, err)
		writeError(w, err)
		return
	}

	log.Printf("INFO: Deleted record '%s' from table '%s'", docId, tableName)
	w.WriteHeader(http.StatusNoContent)
}
