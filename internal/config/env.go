package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvPort      = "PORT"
	EnvLogLevel  = "WHATSBRIDGE_LOG_LEVEL"
	EnvSessionDB = "WHATSBRIDGE_SESSION_DB"
)

// ApplyEnv loads the given dotenv files (".env" when none are given; a
// missing file is fine) and applies environment overrides to cfg. Variables
// already set in the process win over the files.
func ApplyEnv(cfg *Config, files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv(EnvSessionDB); v != "" {
		cfg.WhatsApp.SessionDB = ExpandPath(v)
	}
	return nil
}
