package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsfeed/assemble"
	"tidbyt.dev/gtfsfeed/storage"
)

var buildCmd = &cobra.Command{
	Use:   "build <src>",
	Short: "Validates a feed and writes the canonical zip",
	Long: `Validates a feed and, unless a fatal finding blocks it, writes the
canonical feed zip. The feed can additionally be exported to SQLite
and Postgres.`,
	Args: cobra.ExactArgs(1),
	RunE: buildFeed,
}

var (
	outputPath  string
	sqlitePath  string
	postgresURL string
)

func init() {
	buildCmd.Flags().StringVarP(&outputPath, "output", "o", "feed.zip", "Feed zip output file")
	buildCmd.Flags().StringVarP(&sqlitePath, "sqlite", "", "", "Export feed to this SQLite database")
	buildCmd.Flags().StringVarP(&postgresURL, "postgres", "", "", "Export feed to this Postgres database")
	rootCmd.AddCommand(buildCmd)
}

func buildFeed(cmd *cobra.Command, args []string) error {
	result, err := run(cmd, args[0])
	if err != nil {
		return err
	}
	if result.Feed == nil {
		return ErrFailed
	}
	feed := result.Feed

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	err = feed.WriteZip(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nWrote %s\n", outputPath)

	if sqlitePath != "" {
		w, err := storage.NewSQLiteFeedWriter(storage.SQLiteConfig{OnDisk: true, Path: sqlitePath})
		if err != nil {
			return fmt.Errorf("opening %s: %w", sqlitePath, err)
		}
		if err := export(feed, w); err != nil {
			return fmt.Errorf("exporting to %s: %w", sqlitePath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", sqlitePath)
	}

	if postgresURL != "" {
		w, err := storage.NewPSQLFeedWriter(postgresURL, feed.FeedInfo.Version)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := export(feed, w); err != nil {
			return fmt.Errorf("exporting to postgres: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported feed %s to postgres\n", feed.FeedInfo.Version)
	}

	return nil
}

func export(feed *assemble.Feed, w storage.FeedWriter) error {
	err := feed.Export(w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
