package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/query"
	"github.com/gorilla/mux"
)

// reserved query parameters of HandleFindAll
const (
	paramSort  = "sort"
	paramSkip  = "skip"
	paramLimit = "limit"
)

// parseParamValue converts a query parameter to a number or boolean when it
// looks like one.
func parseParamValue(value string) interface{} {
	if num, err := strconv.ParseFloat(value, 64); err == nil {
		return num
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

// parseSortParam reads "age,-name" as age ascending, then name descending.
func parseSortParam(value string) []domain.SortField {
	var fields []domain.SortField
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "-") {
			fields = append(fields, domain.SortField{Field: part[1:], Desc: true})
		} else {
			fields = append(fields, domain.SortField{Field: strings.TrimPrefix(part, "+")})
		}
	}
	return fields
}

// HandleFindAll handles GET requests that find records by exact field values
// given as query parameters, e.g. ?name=Alice&sort=-age&limit=10
func (h *Handler) HandleFindAll(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["table"]

	log.Printf("INFO: handleFindAll called for table '%s'", tableName)

	cond := query.Condition{}
	opts := &domain.FindOptions{}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0] // Take first value if multiple provided
		switch key {
		case paramSort:
			opts.Sort = parseSortParam(value)
		case paramSkip, paramLimit:
			n, err := strconv.Atoi(value)
			if err != nil {
				WriteJSONError(w, http.StatusBadRequest, "invalid "+key+" parameter")
				return
			}
			if key == paramSkip {
				opts.Skip = n
			} else {
				opts.Limit = n
			}
		default:
			cond[key] = parseParamValue(value)
		}
	}

	docs, err := h.db.Find(r.Context(), tableName, cond, opts)
	if err != nil {
		log.Printf("ERROR: Find failed for table '%s': %v", tableName, err)
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []domain.Document{}
	}

	if len(cond) == 0 {
		log.Printf("INFO: Found %d records in table '%s' (no filter)", len(docs), tableName)
	} else {
		log.Printf("INFO: Found %d records in table '%s' with filter %v", len(docs), tableName, cond)
	}
	writeJSON(w, http.StatusOK, docs)
}
