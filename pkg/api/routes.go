package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Table operations
	router.HandleFunc("/tables", h.HandleListTables).Methods("GET")
	router.HandleFunc("/tables/{table}", h.HandleCreateTable).Methods("POST")
	router.HandleFunc("/tables/{table}", h.HandleGetTable).Methods("GET")
	router.HandleFunc("/tables/{table}", h.HandleDropTable).Methods("DELETE")
	router.HandleFunc("/tables/{table}/indexes", h.HandleAlterIndexes).Methods("PUT")

	// Record operations
	router.HandleFunc("/tables/{table}/records", h.HandleInsert).Methods("POST")
	router.HandleFunc("/tables/{table}/records", h.HandleFindAll).Methods("GET")
	router.HandleFunc("/tables/{table}/records/batch", h.HandleBatchInsert).Methods("POST")
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleGetById).Methods("GET")
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleUpdateById).Methods("PATCH") // Operator update
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleReplaceById).Methods("PUT")  // Complete replacement
	router.HandleFunc("/tables/{table}/records/{id}", h.HandleDeleteById).Methods("DELETE")

	// Queries
	router.HandleFunc("/tables/{table}/find", h.HandleFind).Methods("POST")
	router.HandleFunc("/tables/{table}/stream", h.HandleStream).Methods("POST")
	router.HandleFunc("/tables/{table}/count", h.HandleCount).Methods("POST")
	router.HandleFunc("/tables/{table}/update", h.HandleUpdate).Methods("POST")
	router.HandleFunc("/tables/{table}/delete", h.HandleDeleteWhere).Methods("POST")
}
