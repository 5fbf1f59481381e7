package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/gorilla/mux"
)

// MaxBatchSize caps the records accepted by one batch insert.
const MaxBatchSize = 1000

// BatchInsertRequest represents the request body for batch insert operations
type BatchInsertRequest struct {
	Documents []domain.Document `json:"documents"`
}

// BatchInsertResponse represents the response for batch insert operations
type BatchInsertResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	InsertedCount int               `json:"inserted_count"`
	Table         string            `json:"table"`
	Documents     []domain.Document `json:"documents"`
}

// HandleBatchInsert handles POST requests to insert several records. Records
// are inserted in order; the first failure stops the batch and the response
// reports how many were stored.
func (h *Handler) HandleBatchInsert(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleBatchInsert called for table '%s'", tableName)

	var req BatchInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("ERROR: Decoding body failed: %v", err)
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Documents) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "No documents provided")
		return
	}
	if len(req.Documents) > MaxBatchSize {
		log.Printf("ERROR: Too many documents for batch insert: %d", len(req.Documents))
		WriteJSONError(w, http.StatusBadRequest, "Maximum 1000 documents allowed per batch")
		return
	}

	inserted := make([]domain.Document, 0, len(req.Documents))
	for i, doc := range req.Documents {
		rec, err := h.db.Insert(r.Context(), tableName, doc)
		if err != nil {
			log.Printf("ERROR: Batch insert failed for table '%s' at document %d: %v", tableName, i, err)
			writeJSON(w, StatusFor(err), BatchInsertResponse{
				Message:       err.Error(),
				InsertedCount: len(inserted),
				Table:         tableName,
				Documents:     inserted,
			})
			return
		}
		inserted = append(inserted, rec)
	}

	writeJSON(w, http.StatusCreated, BatchInsertResponse{
		Success:       true,
		Message:       "Batch insert completed successfully",
		InsertedCount: len(inserted),
		Table:         tableName,
		Documents:     inserted,
	})

	log.Printf("INFO: Batch insert successful for table '%s', inserted %d documents", tableName, len(inserted))
}
