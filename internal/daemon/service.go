package daemon

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// ServiceLabel identifies the daemon to launchd and systemd.
const ServiceLabel = "com.scrobblify.daemon"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		<string>daemon</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.LogPath}}/scrobblify.log</string>
	<key>StandardErrorPath</key>
	<string>{{.LogPath}}/scrobblify.err</string>
	<key>WorkingDirectory</key>
	<string>{{.WorkingDirectory}}</string>
	<key>EnvironmentVariables</key>
	<dict>
		<key>PATH</key>
		<string>/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin</string>
	</dict>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=Scrobblify Spotify scrobbler
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{.BinaryPath}} daemon
WorkingDirectory={{.WorkingDirectory}}
Restart=on-failure
RestartSec=10
StandardOutput=append:{{.LogPath}}/scrobblify.log
StandardError=append:{{.LogPath}}/scrobblify.err

[Install]
WantedBy=default.target
`

// ServiceConfig holds the values substituted into a service definition.
type ServiceConfig struct {
	BinaryPath       string
	LogPath          string
	WorkingDirectory string
}

// ServiceManager is the init system a service definition targets.
type ServiceManager string

const (
	Launchd ServiceManager = "launchd"
	Systemd ServiceManager = "systemd"
)

// ServiceManagerFor returns the init system used on goos.
func ServiceManagerFor(goos string) (ServiceManager, error) {
	switch goos {
	case "darwin":
		return Launchd, nil
	case "linux":
		return Systemd, nil
	default:
		return "", fmt.Errorf("installing the daemon is not supported on %s", goos)
	}
}

// GenerateService renders the service definition for manager.
func GenerateService(manager ServiceManager, config ServiceConfig) (string, error) {
	var text string
	switch manager {
	case Launchd:
		text = plistTemplate
	case Systemd:
		text = systemdTemplate
	default:
		return "", fmt.Errorf("unknown service manager %q", manager)
	}

	tmpl, err := template.New(string(manager)).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", manager, err)
	}

	data := struct {
		ServiceConfig
		Label string
	}{config, ServiceLabel}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", manager, err)
	}

	return buf.String(), nil
}

// GetServicePath returns where the service definition is installed.
func GetServicePath(manager ServiceManager) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch manager {
	case Launchd:
		return filepath.Join(home, "Library", "LaunchAgents", ServiceLabel+".plist"), nil
	case Systemd:
		return filepath.Join(home, ".config", "systemd", "user", "scrobblify.service"), nil
	default:
		return "", fmt.Errorf("unknown service manager %q", manager)
	}
}

// GetDefaultLogPath returns the default path for daemon logs
func GetDefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "scrobblify", "logs"), nil
}
