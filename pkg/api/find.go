package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/query"
	"github.com/gorilla/mux"
)

// FindRequest is the body of find, stream and count requests. Where and each
// element of Or are JSON conditions; the Or branches are alternatives and
// Where applies to all of them.
type FindRequest struct {
	Where map[string]interface{}   `json:"where,omitempty"`
	Or    []map[string]interface{} `json:"or,omitempty"`
	Sort  []domain.SortField       `json:"sort,omitempty"`
	Skip  int                      `json:"skip,omitempty"`
	Limit int                      `json:"limit,omitempty"`
}

// Options returns the pagination part of the request.
func (req *FindRequest) Options() *domain.FindOptions {
	return &domain.FindOptions{Sort: req.Sort, Skip: req.Skip, Limit: req.Limit}
}

// Conditions parses Where and Or into OR-ed conditions.
func (req *FindRequest) Conditions() ([]query.Condition, error) {
	if len(req.Or) == 0 {
		if len(req.Where) == 0 {
			return nil, nil
		}
		cond, err := query.ParseCondition(req.Where)
		if err != nil {
			return nil, err
		}
		return []query.Condition{cond}, nil
	}

	conds := make([]query.Condition, 0, len(req.Or))
	for _, raw := range req.Or {
		branch := make(map[string]interface{}, len(raw)+len(req.Where))
		for k, v := range raw {
			branch[k] = v
		}
		for k, v := range req.Where {
			if _, dup := branch[k]; dup {
				return nil, fmt.Errorf("%w: field %s appears in both where and or", domain.ErrInvalidQuery, k)
			}
			branch[k] = v
		}
		cond, err := query.ParseCondition(branch)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// decodeFindRequest reads a FindRequest. An empty body matches everything.
func decodeFindRequest(r *http.Request) (*FindRequest, []query.Condition, error) {
	var req FindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidQuery, err)
	}
	conds, err := req.Conditions()
	if err != nil {
		return nil, nil, err
	}
	return &req, conds, nil
}

// HandleFind handles POST requests that query a table
func (h *Handler) HandleFind(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	req, conds, err := decodeFindRequest(r)
	if err != nil {
		log.Printf("ERROR: Invalid find request for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}

	docs, err := h.db.FindAny(r.Context(), tableName, conds, req.Options())
	if err != nil {
		log.Printf("ERROR: Find failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}

	log.Printf("INFO: Found %d records in table '%s'", len(docs), tableName)
	writeJSON(w, http.StatusOK, docs)
}

// HandleCount handles POST requests that count matching records
func (h *Handler) HandleCount(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	_, conds, err := decodeFindRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	n, err := h.db.Count(r.Context(), tableName, conds...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"table": tableName, "count": n})
}
