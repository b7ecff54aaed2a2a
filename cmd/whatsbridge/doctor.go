package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

// report tallies check results.
type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bridge setup",
		Long: `Verifies the configuration, the session database, the static directory
and the listen port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("whatsbridge doctor v%s\n\n", version)

			var r report

			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			r.pass("Config validation", "valid")

			paired, err := checkSessionDB(cfg.WhatsApp.SessionDB)
			switch {
			case err != nil:
				r.fail("Session database", err.Error())
			case paired:
				r.pass("Session database", cfg.WhatsApp.SessionDB+" (paired)")
			default:
				r.warn("Session database", cfg.WhatsApp.SessionDB+" (not paired: run serve and scan the QR code)")
			}

			if cfg.Server.StaticDir != "" {
				if info, err := os.Stat(cfg.Server.StaticDir); err != nil || !info.IsDir() {
					r.warn("Static directory", fmt.Sprintf("%s missing, the built-in page will be served", cfg.Server.StaticDir))
				} else {
					r.pass("Static directory", cfg.Server.StaticDir)
				}
			}

			addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
			if err := checkPort(addr); err != nil {
				r.warn("Listen address", fmt.Sprintf("%s may be in use: %v", addr, err))
			} else {
				r.pass("Listen address", addr+" available")
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

// checkSessionDB verifies the session database can be created and written,
// and reports whether a device has been paired.
func checkSessionDB(path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("cannot create session directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return false, fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return false, fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return false, fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	// whatsmeow keeps paired devices in whatsmeow_device; the table is absent
	// until the first serve.
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM whatsmeow_device").Scan(&n)
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
