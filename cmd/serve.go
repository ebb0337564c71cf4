package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/extractor"
	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the attendance HTTP API.
The server exposes enrollment, check-in scanning and attendance reports.
By default it persists to PostgreSQL (DATABASE_URL); --memory runs with
in-memory storage for development.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("memory", false, "Use in-memory storage instead of PostgreSQL")
}

// buildRepositories creates the storage backend for the serve command.
func buildRepositories(cfg *config.Config, inMemory bool) (database.IdentityWriter, database.SessionRepository, func(), error) {
	if inMemory {
		fmt.Println("Using in-memory storage (data is lost on restart)")
		identities := memory.NewIdentityStore()
		return identities, memory.NewSessionStore(identities), func() {}, nil
	}

	if cfg.Database.URL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL environment variable is required (or use --memory)")
	}

	fmt.Println("Connecting to PostgreSQL database...")
	pool, err := postgres.Connect(&cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return postgres.NewIdentityRepository(pool), postgres.NewSessionRepository(pool), func() { pool.Close() }, nil
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	identities, sessions, closeStorage, err := buildRepositories(cfg, mustGetBool(cmd, "memory"))
	if err != nil {
		return err
	}
	defer closeStorage()

	service, err := attendance.NewService(cfg, identities, sessions)
	if err != nil {
		return fmt.Errorf("creating attendance service: %w", err)
	}

	if cfg.Recognition.ANN {
		fmt.Println("Building in-memory candidate index...")
		if err := service.WarmIndex(context.Background()); err != nil {
			fmt.Printf("Warning: failed to build candidate index: %v\n", err)
			fmt.Println("Matching will use the linear scan")
		}
	}

	var faceExtractor handlers.FaceExtractor
	if cfg.Extractor.URL != "" {
		faceExtractor = extractor.NewClient(cfg.Extractor.URL)
		fmt.Printf("Using face extractor at %s\n", cfg.Extractor.URL)
	} else {
		fmt.Println("EXTRACTOR_URL not set; scans accept pre-extracted embeddings only")
	}

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(service, faceExtractor, host, port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting attendance API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
