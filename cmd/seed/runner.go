package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/support-desk/internal/config"
	sqliteRepo "github.com/sakif/support-desk/internal/repository/sqlite"
	"github.com/sakif/support-desk/internal/seed"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	chunk   int
	dbPath  string
	verbose bool
}

// runner holds what a subcommand needs once the database is open.
type runner struct {
	importer *seed.Importer
	cmd      *cobra.Command
}

// run opens the database, runs fn and closes the database again.
func (o *options) run(cmd *cobra.Command, fn func(r *runner) error) error {
	if o.chunk < 1 {
		return fmt.Errorf("--chunk must be at least 1, got %d", o.chunk)
	}

	dbPath := o.dbPath
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dbPath = cfg.DBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sqliteRepo.New(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return fn(&runner{
		importer: seed.NewImporter(db, newLogger(o.verbose), o.chunk),
		cmd:      cmd,
	})
}

func (r *runner) challenges(ctx context.Context, path string) error {
	stats, err := r.importer.ImportChallengesFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.cmd.OutOrStdout(), "Challenges: %d upserted | Skipped: %d | Tags: %d | LOs: %d | Hints: %d\n",
		stats.Records, stats.Skipped, stats.Tags, stats.Objectives, stats.Hints)
	return nil
}

func (r *runner) conversations(ctx context.Context, path string) error {
	stats, err := r.importer.ImportConversationsFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.cmd.OutOrStdout(), "Conversations: %d upserted | Skipped: %d | Posts: %d inserted\n",
		stats.Records, stats.Skipped, stats.Posts)
	return nil
}
