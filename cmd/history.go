package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jfmyers9/scrobblify/internal/config"
	"github.com/jfmyers9/scrobblify/internal/store"
	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scrobbles",
	Long: `List the most recent scrobbles recorded in the local database, newest first.

Scrobbles recovered from Spotify's recently played list are marked "history";
scrobbles detected while polling are marked "spotify".`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Number of scrobbles to show")
	historyCmd.Flags().IntP("width", "w", 40, "Column width for track and album")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, err := os.Stat(cfg.DatabasePath); err != nil {
		return fmt.Errorf("no scrobble database at %s. Run 'scrobblify daemon' first", cfg.DatabasePath)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	width, _ := cmd.Flags().GetInt("width")

	records, err := db.RecentScrobbles(ctx, limit)
	if err != nil {
		return err
	}
	total, err := db.CountScrobbles(ctx)
	if err != nil {
		return err
	}

	renderHistory(cmd.OutOrStdout(), records, total, width, time.Local)
	return nil
}

// renderHistory prints one aligned line per scrobble followed by a summary.
func renderHistory(w io.Writer, records []store.ScrobbleRecord, total, width int, loc *time.Location) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No scrobbles yet.")
		return
	}

	for _, r := range records {
		track := r.Title
		if r.Artists != "" {
			track = r.Artists + " - " + r.Title
		}
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			r.Timestamp.In(loc).Format("2006-01-02 15:04"),
			padToWidth(track, width),
			padToWidth(r.Album, width),
			r.Origin,
		)
	}

	fmt.Fprintf(w, "\nShowing %d of %s scrobbles\n", len(records), humanize.Comma(int64(total)))
}
