package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adfharrison1/go-okdb/pkg/api"
	"github.com/adfharrison1/go-okdb/pkg/db"
	"github.com/adfharrison1/go-okdb/pkg/storage"
)

// Server holds references to storage, router, etc.
type Server struct {
	router   *mux.Router
	dbEngine *storage.StorageEngine
	db       *db.DB
}

// NewServer creates a new instance of Server.
func NewServer(options ...storage.StorageOption) *Server {
	engine := storage.NewStorageEngine(options...)
	s := &Server{
		router:   mux.NewRouter(),
		dbEngine: engine,
		db:       db.New(engine),
	}
	// Define HTTP routes
	s.routes()

	// Use the logging middleware for all routes
	s.router.Use(requestLoggerMiddleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("WARN: No route found for %s %s", r.Method, r.URL.Path)
		api.WriteJSONError(w, http.StatusNotFound, "no route for "+r.URL.Path)
	})

	return s
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLoggerMiddleware logs the method, URL path, and duration for each
// request and records it in the HTTP metrics.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		observeRequest(r.Method, path, rec.status, elapsed)
		log.Printf("INFO: Request %s %s took %s", r.Method, r.URL.Path, elapsed)
	})
}

// InitDB optionally load data from a file, or do any initialization steps.
func (s *Server) InitDB(filename string) error {
	if err := s.db.Load(filename); err != nil {
		log.Printf("ERROR: Could not load DB from file %s: %v", filename, err)
		return err
	}
	log.Printf("INFO: Loaded DB from file %s successfully", filename)
	return nil
}

// SaveDB saves the current database state to file
func (s *Server) SaveDB(filename string) error {
	if err := s.db.Save(filename); err != nil {
		log.Printf("ERROR: Could not save DB to file %s: %v", filename, err)
		return err
	}
	log.Printf("INFO: Saved DB to file %s successfully", filename)
	return nil
}

// StartBackgroundWorkers starts the periodic save worker when configured.
func (s *Server) StartBackgroundWorkers() {
	s.dbEngine.StartBackgroundWorkers()
}

// StopBackgroundWorkers stops the periodic save worker.
func (s *Server) StopBackgroundWorkers() {
	s.dbEngine.StopBackgroundWorkers()
}

// DB exposes the database the server answers from.
func (s *Server) DB() *db.DB {
	return s.db
}

// Router exposes the internal mux.Router.
func (s *Server) Router() http.Handler {
	return s.router
}

// routes defines all REST endpoints.
func (s *Server) routes() {
	api.NewHandler(s.db).RegisterRoutes(s.router)
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// handleStats reports table and memory statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.dbEngine.GetMemoryStats())
}
