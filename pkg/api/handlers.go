package api

import (
	"github.com/adfharrison1/go-okdb/pkg/db"
)

// Handler provides HTTP handlers for the database API
type Handler struct {
	db *db.DB
}

// NewHandler creates a new API handler with dependency injection
func NewHandler(database *db.DB) *Handler {
	return &Handler{
		db: database,
	}
}
