package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adfharrison1/go-okdb/pkg/config"
	"github.com/adfharrison1/go-okdb/pkg/server"
	"github.com/adfharrison1/go-okdb/pkg/storage"
)

var rootCmd = &cobra.Command{
	Use:   "go-okdb",
	Short: "go-okdb is an in-memory document database with indexed queries and optional persistence",
}

func newServeCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server.

Settings come from flags, OKDB_* environment variables and an optional config
file, in that order of precedence.

Without --background-save, data is only saved on graceful shutdown.`,
		Example: `  go-okdb serve
  go-okdb serve --port 9090 --background-save 5m
  OKDB_DATA_FILE=/var/lib/okdb/data.okdb go-okdb serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func serve(cfg *config.Config) error {
	// Build storage options based on config
	storageOptions := []storage.StorageOption{storage.WithDataFile(cfg.DataFile)}
	if cfg.BackgroundSave > 0 {
		storageOptions = append(storageOptions, storage.WithBackgroundSave(cfg.BackgroundSave))
		log.Printf("INFO: Background save enabled: every %v", cfg.BackgroundSave)
	} else {
		log.Printf("WARN: Background save disabled - data only saved on graceful shutdown")
	}

	srv := server.NewServer(storageOptions...)
	defer srv.StopBackgroundWorkers()

	log.Printf("INFO: Loading data from: %s", cfg.DataFile)
	if err := srv.InitDB(cfg.DataFile); err != nil {
		return err
	}
	srv.StartBackgroundWorkers()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("INFO: Starting go-okdb server on :%s", cfg.Port)
		log.Printf("INFO: API endpoints available at http://localhost:%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Println("INFO: Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("ERROR: Server forced to shutdown: %v", err)
	}

	// Save after in-flight requests have drained
	log.Printf("INFO: Saving data to: %s", cfg.DataFile)
	if err := srv.SaveDB(cfg.DataFile); err != nil {
		return err
	}

	log.Println("INFO: Server exited")
	return nil
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newLoadCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
