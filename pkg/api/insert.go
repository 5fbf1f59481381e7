package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/gorilla/mux"
)

// HandleInsert handles POST requests to insert a record into a table
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleInsert called for table '%s'", tableName)

	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.db.Insert(r.Context(), tableName, doc)
	if err != nil {
		log.Printf("ERROR: Insert failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}
