package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Bulk-enroll persons from a JSON file",
	Long: `Bulk-enroll persons into the attendance roster.

The input file is a JSON array; each entry carries a name, an optional
external reference and department, and either a precomputed embedding or a
path to a reference photo. Photos are sent to the embedding service and must
contain exactly one face.

Examples:
  # Enroll from a roster file (5 concurrent workers)
  face-attendance enroll --file roster.json

  # Use different concurrency
  face-attendance enroll --file roster.json --concurrency 3`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("file", "", "JSON roster file (required)")
	enrollCmd.Flags().Int("concurrency", 5, "Number of parallel workers")
	enrollCmd.MarkFlagRequired("file")
}

// rosterEntry is one person in the bulk enrollment file.
type rosterEntry struct {
	Name        string    `json:"name"`
	ExternalRef string    `json:"external_ref"`
	Department  string    `json:"department"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Image       string    `json:"image,omitempty"`
}

// resolveEmbedding returns the entry's embedding, running the extractor on
// the reference photo when no precomputed embedding is present.
func resolveEmbedding(ctx context.Context, entry rosterEntry, client *extractor.Client) ([]float32, error) {
	if len(entry.Embedding) > 0 {
		return entry.Embedding, nil
	}
	if entry.Image == "" {
		return nil, fmt.Errorf("entry needs either an embedding or an image path")
	}
	if client == nil {
		return nil, fmt.Errorf("EXTRACTOR_URL is required for image entries")
	}

	imageData, err := os.ReadFile(entry.Image)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	captures, err := client.Extract(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("extracting faces: %w", err)
	}
	if len(captures) == 0 {
		return nil, attendance.ErrNoFaceDetected
	}
	if len(captures) > 1 {
		return nil, attendance.ErrAmbiguousCapture
	}
	return captures[0].Embedding, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	file := mustGetString(cmd, "file")
	concurrency := mustGetInt(cmd, "concurrency")

	ctx := context.Background()
	cfg := config.Load()

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading roster file: %w", err)
	}
	var roster []rosterEntry
	if err := json.Unmarshal(data, &roster); err != nil {
		return fmt.Errorf("parsing roster file: %w", err)
	}
	if len(roster) == 0 {
		fmt.Println("Roster file is empty, nothing to do")
		return nil
	}

	fmt.Println("Connecting to PostgreSQL...")
	pool, err := postgres.Connect(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	identities := postgres.NewIdentityRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	service, err := attendance.NewService(cfg, identities, sessions)
	if err != nil {
		return fmt.Errorf("creating attendance service: %w", err)
	}

	var client *extractor.Client
	if cfg.Extractor.URL != "" {
		client = extractor.NewClient(cfg.Extractor.URL)
	}

	fmt.Printf("Persons to enroll: %d\n\n", len(roster))

	bar := progressbar.NewOptions(len(roster),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("persons"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var successCount, errorCount int
	var mu sync.Mutex
	var failures []string

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, entry := range roster {
		wg.Add(1)
		go func(e rosterEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			embedding, err := resolveEmbedding(ctx, e, client)
			if err == nil {
				_, err = service.Enroll(ctx, e.Name, e.ExternalRef, e.Department, embedding)
			}

			mu.Lock()
			if err != nil {
				errorCount++
				failures = append(failures, fmt.Sprintf("%s: %v", e.Name, err))
			} else {
				successCount++
			}
			mu.Unlock()
			bar.Add(1)
		}(entry)
	}

	wg.Wait()
	fmt.Println()

	fmt.Printf("\nCompleted: %d enrolled, %d errors\n", successCount, errorCount)
	for _, failure := range failures {
		fmt.Printf("  %s\n", failure)
	}

	return nil
}
