/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/jfmyers9/scrobblify/internal/config"
	"github.com/jfmyers9/scrobblify/internal/daemon"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

// staleCycles is how many missed poll intervals make a status file stale.
const staleCycles = 3

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the track the daemon last saw playing",
	Long: `Display the currently playing Spotify track as seen by the running daemon.

The daemon publishes its state to ~/.local/share/scrobblify/status.json after
every poll; this command reads it without calling Spotify.

The output format can be customized in ~/.config/scrobblify/config.yaml
using a Go template. Available fields: .Title, .Artist, .Album, .Duration,
.Position, .Percent, .Scrobbled

Exit codes:
  0 - Track is currently playing
  1 - No track playing, paused, or daemon not running`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	// Add marquee flags to scroll long text within the width
	nowCmd.Flags().Bool("marquee", false, "Scroll text longer than --width instead of truncating it")
	nowCmd.Flags().Int("speed", 2, "Marquee speed in characters per second")
}

// nowPlaying is the data available to the output template.
type nowPlaying struct {
	Title     string
	Artist    string
	Album     string
	Duration  string
	Position  string
	Percent   int
	Scrobbled bool
}

func runNow(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Check for format flag override
	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	st, err := daemon.ReadStatus(config.StatusFilePath())
	if errors.Is(err, os.ErrNotExist) {
		// Daemon has never run
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	track, ok := currentTrack(st, time.Now())
	if !ok {
		os.Exit(1)
		return nil
	}

	// Format and print output
	output, err := formatTrack(track, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	// Apply width padding/marquee if requested
	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	if width > 0 {
		marquee, _ := cmd.Flags().GetBool("marquee")
		if marquee {
			speed, _ := cmd.Flags().GetInt("speed")
			output = marqueeText(output, width, speed, " • ", time.Now())
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// currentTrack turns a daemon status into template data. It reports false
// when nothing is playing or the daemon stopped updating the status.
func currentTrack(st daemon.Status, now time.Time) (nowPlaying, bool) {
	if st.Playing == nil || st.Playing.Track == nil {
		return nowPlaying{}, false
	}
	if st.Interval > 0 && now.Sub(st.LastCycle) > staleCycles*st.Interval {
		return nowPlaying{}, false
	}

	t := st.Playing.Track

	// Progress was sampled at the last cycle; extrapolate to now.
	position := st.Playing.Progress
	if since := now.Sub(st.LastCycle); since > 0 {
		position += since
	}
	if t.Duration > 0 && position > t.Duration {
		position = t.Duration
	}

	percent := 0
	if t.Duration > 0 {
		percent = int(position * 100 / t.Duration)
	}

	return nowPlaying{
		Title:     t.Title,
		Artist:    t.ArtistNames(),
		Album:     t.Album.Title,
		Duration:  formatClock(t.Duration),
		Position:  formatClock(position),
		Percent:   percent,
		Scrobbled: st.Playing.Scrobbled,
	}, true
}

// formatClock renders a duration as m:ss.
func formatClock(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// formatTrack applies the template to the track data
func formatTrack(track nowPlaying, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for Unicode characters.
// If width <= 0, returns text unchanged.
// If text is longer than width, truncates with "..." suffix.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)

	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)

		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}

		truncated := runewidth.Truncate(text, width-ellipsisWidth, "")
		return fillWidth(truncated+ellipsis, width)
	}

	return fillWidth(text, width)
}

// fillWidth right-pads text with spaces up to width display columns.
func fillWidth(text string, width int) string {
	if w := runewidth.StringWidth(text); w < width {
		return text + strings.Repeat(" ", width-w)
	}
	return text
}

// marqueeText scrolls text that exceeds width through a fixed window.
// The window position is derived from now, so successive tmux refreshes
// advance the text by speed characters per second without keeping state.
// Text that fits is padded like padToWidth.
func marqueeText(text string, width, speed int, separator string, now time.Time) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}
	if speed <= 0 {
		speed = 1
	}

	extended := []rune(text + separator + text)
	total := len(extended)
	position := int(now.Unix()*int64(speed)) % total

	var result []rune
	resultWidth := 0
	for i := 0; i < total; i++ {
		r := extended[(position+i)%total]
		rw := runewidth.RuneWidth(r)
		if resultWidth+rw > width {
			break
		}
		result = append(result, r)
		resultWidth += rw
	}

	return fillWidth(string(result), width)
}
