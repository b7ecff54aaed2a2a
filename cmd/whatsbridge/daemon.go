package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.whatsbridge.serve"
	systemdUnit  = "whatsbridge.service"
)

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install whatsbridge as a user service (launchd/systemd)",
		Long: `Writes a service file that runs "whatsbridge serve" at login and restarts it
if it exits. Pair the account once in the foreground first: a background
service cannot show the QR code.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			unit, err := serviceFile(runtime.GOOS, home)
			if err != nil {
				return err
			}

			vars := map[string]string{
				"EXEC":    execPath,
				"CONFIG":  resolveConfigPath(),
				"LABEL":   launchdLabel,
				"LOG":     filepath.Join(home, ".whatsbridge", "logs", "whatsbridge.log"),
				"ERR_LOG": filepath.Join(home, ".whatsbridge", "logs", "whatsbridge-error.log"),
			}
			if err := os.MkdirAll(filepath.Dir(vars["LOG"]), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(unit.path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(unit.path, []byte(renderTemplate(unit.template, vars)), 0o644); err != nil {
				return err
			}

			fmt.Printf("Daemon installed: %s\n", unit.path)
			for _, hint := range unit.hints {
				fmt.Println(hint)
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the whatsbridge user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			unit, err := serviceFile(runtime.GOOS, home)
			if err != nil {
				return err
			}
			if err := os.Remove(unit.path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Printf("No daemon installed at %s\n", unit.path)
					return nil
				}
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", unit.path)
			return nil
		},
	}
}

type service struct {
	path     string
	template string
	hints    []string
}

// serviceFile describes where the service definition lives on goos.
func serviceFile(goos, home string) (service, error) {
	switch goos {
	case "darwin":
		path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		return service{
			path:     path,
			template: launchdTemplate,
			hints: []string{
				"To start: launchctl load " + path,
				"To stop:  launchctl unload " + path,
			},
		}, nil
	case "linux":
		return service{
			path:     filepath.Join(home, ".config", "systemd", "user", systemdUnit),
			template: systemdTemplate,
			hints: []string{
				"To start:  systemctl --user start whatsbridge",
				"To enable: systemctl --user enable whatsbridge",
				"To stop:   systemctl --user stop whatsbridge",
			},
		}, nil
	default:
		return service{}, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

// renderTemplate substitutes {{KEY}} placeholders.
func renderTemplate(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=whatsbridge WhatsApp-to-browser bridge
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
