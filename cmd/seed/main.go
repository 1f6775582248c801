// Command seed loads challenge and conversation JSON exports into the
// database named by DB_PATH.
//
//	seed challenges data/challenges.json
//	seed conversations data/conversations.json --chunk 500
//	seed all data/challenges.json data/conversations.json
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Seed the support database from JSON exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().IntVar(&opts.chunk, "chunk", 1000, "records per transaction")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (defaults to DB_PATH)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every committed chunk")

	cmd.AddCommand(challengesCmd(&opts))
	cmd.AddCommand(conversationsCmd(&opts))
	cmd.AddCommand(allCmd(&opts))
	return cmd
}

func challengesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "challenges <file>",
		Short: "Upsert challenges, tags, hints and learning objectives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(r *runner) error {
				return r.challenges(cmd.Context(), args[0])
			})
		},
	}
}

func conversationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations <file>",
		Short: "Upsert support conversations and replace their posts",
		Long: `Upsert support conversations by identifier.

Run "seed challenges" first: conversations link to challenges by public id,
and a challenge that is not in the database yet leaves the link empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(r *runner) error {
				return r.conversations(cmd.Context(), args[0])
			})
		},
	}
}

func allCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "all <challenges-file> <conversations-file>",
		Short: "Seed challenges, then conversations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(r *runner) error {
				if err := r.challenges(cmd.Context(), args[0]); err != nil {
					return err
				}
				return r.conversations(cmd.Context(), args[1])
			})
		},
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
