package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// TableRequest declares the indexes of a table: index name -> unique.
type TableRequest struct {
	Indexes map[string]bool `json:"indexes"`
}

// HandleCreateTable handles POST requests to create a table
func (h *Handler) HandleCreateTable(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleCreateTable called for table '%s'", tableName)

	// An empty body creates a table with only the default indexes
	var req TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	def, err := h.db.CreateTable(tableName, req.Indexes)
	if err != nil {
		log.Printf("ERROR: Create failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, def)
}

// HandleAlterIndexes handles PUT requests that replace a table's indexes.
// A changed declaration migrates the table to a new schema version.
func (h *Handler) HandleAlterIndexes(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleAlterIndexes called for table '%s'", tableName)

	var req TableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	def, err := h.db.AlterIndexes(tableName, req.Indexes)
	if err != nil {
		log.Printf("ERROR: Altering indexes of table '%s' failed: %v", tableName, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, def)
}

// HandleGetTable handles GET requests for a table definition
func (h *Handler) HandleGetTable(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	def, err := h.db.Table(tableName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, def)
}

// HandleDropTable handles DELETE requests for a table
func (h *Handler) HandleDropTable(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	if err := h.db.DropTable(tableName); err != nil {
		log.Printf("ERROR: Drop failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListTables handles GET requests for the table names
func (h *Handler) HandleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables": h.db.Tables(),
	})
}
