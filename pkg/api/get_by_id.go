package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/gorilla/mux"
)

// resolveRecord finds a record by its id path segment. A numeric segment
// also matches a numeric primary key. The record is nil when none matches.
func (h *Handler) resolveRecord(ctx context.Context, tableName, raw string) (interface{}, domain.Document, error) {
	doc, err := h.db.Get(ctx, tableName, raw)
	if err != nil || doc != nil {
		return raw, doc, err
	}
	if n, perr := strconv.ParseFloat(raw, 64); perr == nil {
		doc, err = h.db.Get(ctx, tableName, n)
		if err != nil {
			return nil, nil, err
		}
		if id, ok := doc.ID(); ok {
			return id, doc, nil
		}
	}
	return raw, nil, nil
}

// HandleGetById handles GET requests to retrieve a specific record by ID
func (h *Handler) HandleGetById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tableName := vars["table"]
	docId := vars["id"]

	_, doc, err := h.resolveRecord(r.Context(), tableName, docId)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		log.Printf("WARN: Record '%s' not found in table '%s'", docId, tableName)
		WriteJSONError(w, http.StatusNotFound, "record not found")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}
