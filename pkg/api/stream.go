package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/gorilla/mux"
)

// HandleStream handles POST requests that stream the result of a find as a
// chunked JSON array. Records are written as the planner produces them; an
// index walk is never buffered. Errors found before the first record get a
// normal error response, later ones end the array early.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleStream called for table '%s'", tableName)

	req, conds, err := decodeFindRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	docCount := 0
	start := func() {
		// Set headers for streaming
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("[\n"))
		started = true
	}

	err = h.db.Stream(r.Context(), tableName, conds, req.Options(), func(doc domain.Document) error {
		docJSON, err := json.Marshal(doc)
		if err != nil {
			log.Printf("ERROR: Failed to marshal record: %v", err)
			return nil // Skip this record and continue streaming
		}
		if !started {
			start()
		}
		if docCount > 0 {
			w.Write([]byte(",\n"))
		}
		if _, err := w.Write(docJSON); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		docCount++
		return nil
	})
	if err != nil && !started {
		log.Printf("ERROR: Find failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}
	if err != nil {
		log.Printf("ERROR: Stream of table '%s' stopped after %d records: %v", tableName, docCount, err)
		w.Write([]byte("\n]"))
		return
	}

	if !started {
		start()
	}
	// End JSON array
	w.Write([]byte("\n]"))

	log.Printf("INFO: Streamed %d records from table '%s'", docCount, tableName)
}
