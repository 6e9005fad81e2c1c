package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jfmyers9/scrobblify/internal/daemon"
	"github.com/spf13/cobra"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the scrobblify user service",
	Long: `Uninstall the scrobblify daemon service and stop it from running automatically.

This command will:
  - Stop the running daemon (if any)
  - Unload it from launchd or disable it in systemd
  - Remove the service file

After uninstalling, the daemon will no longer run automatically on login.
The scrobble database is left in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := daemon.ServiceManagerFor(runtime.GOOS)
		if err != nil {
			return err
		}

		servicePath, err := daemon.GetServicePath(manager)
		if err != nil {
			return err
		}

		if _, err := os.Stat(servicePath); os.IsNotExist(err) {
			fmt.Println("Daemon is not installed (service file not found)")
			return nil
		}

		fmt.Println("Stopping daemon...")
		if err := unloadDaemon(manager); err != nil {
			fmt.Printf("Warning: failed to unload daemon: %v\n", err)
			fmt.Println("Continuing with service file removal...")
		} else {
			fmt.Println("✓ Daemon stopped")
		}

		if err := os.Remove(servicePath); err != nil {
			return fmt.Errorf("failed to remove service file: %w", err)
		}

		fmt.Printf("✓ Removed service file %s\n", servicePath)
		fmt.Println("\nThe scrobblify daemon has been uninstalled successfully.")
		fmt.Println("It will no longer run automatically on login.")
		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  scrobblify install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
