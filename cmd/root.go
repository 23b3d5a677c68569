package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/posealign/internal/store"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the align and calibrate commands
type Options struct {
	RefPath          string
	InputPath        string
	OutputPath       string
	DemoOutputPath   string
	PoseJSONPath     string
	AlignFrame       int
	MaxFrame         int
	DetectResolution int
	ImageResolution  int
	WorkerScript     string
	WorkerTimeout    string
	DrawFace         bool
	Persist          bool
}

var (
	// DB is the global database connection shared by subcommands
	DB *store.Store
	// dbURL is the connection string
	dbURL string
)

// Version is the application version.
const Version = "0.1.0"

// annotationDB marks commands that always need the database.
const annotationDB = "requires-db"

var rootCmd = &cobra.Command{
	Use:           "posealign",
	Short:         "Retarget a driving video's poses onto a reference subject's proportions",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsDB(cmd) {
			return nil
		}
		var err error
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), resolveDBURL())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Background: the main context might be cancelled already (Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
	},
}

func needsDB(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationDB] == "true" {
		return true
	}
	// reset touches the database unless only --files was given
	if cmd == resetCmd {
		return resetDB || !resetFiles
	}
	if f := cmd.Flags().Lookup("persist"); f != nil && f.Value.String() == "true" {
		return true
	}
	return false
}

// resolveDBURL builds the connection string from the flag or the environment.
func resolveDBURL() string {
	if dbURL != "" {
		return dbURL
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/posealign"
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/posealign)")
}
