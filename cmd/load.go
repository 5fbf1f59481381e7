package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// user is the record inserted by the load generator.
type user struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Age   int    `json:"age"`
	Email string `json:"email"`
}

type loadOptions struct {
	server  string
	table   string
	users   int
	batch   int
	workers int
}

func newLoadCmd() *cobra.Command {
	opts := loadOptions{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Insert random users into a running server",
		Example: `  go-okdb load --users 10000
  go-okdb load --users 5000 --batch 500 --workers 8 --server http://localhost:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.users <= 0 {
				return fmt.Errorf("number of users must be greater than 0")
			}
			if opts.batch <= 0 || opts.batch > 1000 {
				return fmt.Errorf("batch size must be between 1 and 1000")
			}
			return runLoad(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "Server URL")
	cmd.Flags().StringVar(&opts.table, "table", "users", "Table to insert into")
	cmd.Flags().IntVar(&opts.users, "users", 1000, "Number of users to insert")
	cmd.Flags().IntVar(&opts.batch, "batch", 100, "Users per batch request")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "Concurrent requests")
	return cmd
}

// generateRandomName generates a random 6-letter capitalized name
func generateRandomName(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := make([]byte, 6)
	for i := range name {
		name[i] = letters[rng.Intn(len(letters))]
	}
	name[0] -= 'a' - 'A'
	return string(name)
}

func randomUsers(rng *rand.Rand, n int) []user {
	users := make([]user, n)
	for i := range users {
		name := generateRandomName(rng)
		users[i] = user{
			ID:    uuid.NewString(),
			Name:  name,
			Age:   rng.Intn(82) + 18,
			Email: fmt.Sprintf("%s.%d@example.com", strings.ToLower(name), i),
		}
	}
	return users
}

func postJSON(ctx context.Context, client *http.Client, url string, body interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func runLoad(ctx context.Context, opts loadOptions) error {
	client := &http.Client{Timeout: 30 * time.Second}
	base := strings.TrimRight(opts.server, "/") + "/tables/" + opts.table

	// 409 means the table already exists
	status, err := postJSON(ctx, client, base, map[string]interface{}{
		"indexes": map[string]bool{"age": false, "email": true},
	})
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("creating table %s: unexpected status code %d", opts.table, status)
	}

	fmt.Printf("Starting load test: inserting %d users to %s\n", opts.users, opts.server)
	startTime := time.Now()
	var inserted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers)
	for start := 0; start < opts.users; start += opts.batch {
		start := start
		n := min(opts.batch, opts.users-start)
		seed := time.Now().UnixNano() + int64(start)
		g.Go(func() error {
			users := randomUsers(rand.New(rand.NewSource(seed)), n)
			status, err := postJSON(gctx, client, base+"/records/batch", map[string]interface{}{"documents": users})
			if err != nil {
				return err
			}
			if status != http.StatusCreated {
				failed.Add(int64(n))
				fmt.Printf("Batch at %d failed with status %d\n", start, status)
				return nil
			}
			done := inserted.Add(int64(n))
			fmt.Printf("Progress: %d/%d users\n", done, opts.users)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	totalTime := time.Since(startTime)
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("LOAD TEST COMPLETE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Successful inserts:    %d\n", inserted.Load())
	fmt.Printf("Failed inserts:        %d\n", failed.Load())
	fmt.Printf("Total time:            %v\n", totalTime)
	fmt.Printf("Average rate:          %.2f users/sec\n", float64(inserted.Load())/totalTime.Seconds())

	if failed.Load() > 0 {
		return fmt.Errorf("%d users failed to insert", failed.Load())
	}
	return nil
}
