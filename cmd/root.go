/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrobblify",
	Short: "Local scrobbler for Spotify",
	Long: `scrobblify records your Spotify listening history in a local database.

It runs as a background daemon that polls Spotify's currently playing
endpoint, decides when a track has been listened to long enough to count
as a scrobble, and stores it together with its album, artists and genres.
Plays the daemon missed are recovered from Spotify's recently played list.

It also provides CLI commands to show the currently playing track, useful
for tmux status lines or other status bars, and to list recent scrobbles.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
