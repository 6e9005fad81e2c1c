package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jfmyers9/scrobblify/internal/daemon"
	"github.com/spf13/cobra"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install scrobblify daemon as a user service",
	Long: `Install scrobblify daemon as a user service that runs automatically on login.

On macOS this writes a launchd agent to ~/Library/LaunchAgents/ and loads it
with launchctl. On Linux this writes a systemd user unit to
~/.config/systemd/user/ and enables it with systemctl --user.

The daemon will run in the background and record your Spotify scrobbles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := daemon.ServiceManagerFor(runtime.GOOS)
		if err != nil {
			return err
		}

		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		logPath, err := daemon.GetDefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to get log path: %w", err)
		}

		if err := os.MkdirAll(logPath, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		content, err := daemon.GenerateService(manager, daemon.ServiceConfig{
			BinaryPath:       binaryPath,
			LogPath:          logPath,
			WorkingDirectory: home,
		})
		if err != nil {
			return err
		}

		servicePath, err := daemon.GetServicePath(manager)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(servicePath), 0755); err != nil {
			return fmt.Errorf("failed to create service directory: %w", err)
		}

		// Check if the service already exists
		if _, err := os.Stat(servicePath); err == nil {
			fmt.Println("Daemon is already installed. Uninstalling first...")
			if err := unloadDaemon(manager); err != nil {
				fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
			}
		}

		if err := os.WriteFile(servicePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write service file: %w", err)
		}

		fmt.Printf("✓ Installed %s service to %s\n", manager, servicePath)

		if err := loadDaemon(manager, servicePath); err != nil {
			return fmt.Errorf("failed to load daemon: %w", err)
		}

		fmt.Println("✓ Daemon loaded and started successfully")
		fmt.Printf("✓ Logs will be written to %s\n", logPath)
		fmt.Println("\nThe scrobblify daemon is now running and will start automatically on login.")
		fmt.Println("\nYou can check the daemon status with:")
		fmt.Printf("  %s\n", statusHint(manager))
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  scrobblify uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

func statusHint(manager daemon.ServiceManager) string {
	if manager == daemon.Systemd {
		return "systemctl --user status scrobblify"
	}
	return "launchctl list | grep scrobblify"
}

// loadDaemon starts the installed service
func loadDaemon(manager daemon.ServiceManager, servicePath string) error {
	switch manager {
	case daemon.Launchd:
		return runServiceCommand("launchctl", "bootstrap", launchdDomain(), servicePath)
	case daemon.Systemd:
		if err := runServiceCommand("systemctl", "--user", "daemon-reload"); err != nil {
			return err
		}
		return runServiceCommand("systemctl", "--user", "enable", "--now", "scrobblify.service")
	default:
		return fmt.Errorf("unknown service manager %q", manager)
	}
}

// unloadDaemon stops the installed service. A service that is not loaded
// only produces a warning.
func unloadDaemon(manager daemon.ServiceManager) error {
	var err error
	switch manager {
	case daemon.Launchd:
		err = runServiceCommand("launchctl", "bootout", launchdDomain()+"/"+daemon.ServiceLabel)
	case daemon.Systemd:
		err = runServiceCommand("systemctl", "--user", "disable", "--now", "scrobblify.service")
	default:
		return fmt.Errorf("unknown service manager %q", manager)
	}
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	return nil
}

func launchdDomain() string {
	return fmt.Sprintf("gui/%d", os.Getuid())
}

func runServiceCommand(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		if out := strings.TrimSpace(string(output)); out != "" {
			return fmt.Errorf("%s %s failed: %s", name, args[0], out)
		}
		return fmt.Errorf("failed to run %s: %w", name, err)
	}
	return nil
}
