package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"syscall"
	"time"

	"whatsbridge/internal/bus"
	"whatsbridge/internal/classify"
	"whatsbridge/internal/config"
	"whatsbridge/internal/delivery"
	"whatsbridge/internal/fanout"
	"whatsbridge/internal/identity"
	"whatsbridge/internal/inbox"
	"whatsbridge/internal/pipeline"
	"whatsbridge/internal/retry"
	"whatsbridge/internal/server"
	"whatsbridge/internal/session"
	"whatsbridge/internal/whatsapp"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "whatsbridge",
		Short: "whatsbridge: WhatsApp messages in the browser",
		Long:  "whatsbridge links a WhatsApp account and relays its messages to browser clients over WebSocket.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.whatsbridge/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background service",
	}
	daemon.AddCommand(installDaemonCmd())
	daemon.AddCommand(uninstallDaemonCmd())
	root.AddCommand(daemon)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file (defaults when absent), applies .env and
// environment overrides, and validates the result.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the general config section.
// The returned closer releases the log file, if any.
func newLogger(cfg config.GeneralConfig) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f.Close
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "session", cfg.WhatsApp.SessionDB)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge (WhatsApp session + HTTP/WebSocket server)",
		Long:  "Links the WhatsApp account (printing a QR code when not yet paired) and serves browser clients. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()
	logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Inbound queue (closed during graceful shutdown below)
	queue := bus.NewQueue(cfg.Inbox.QueueSize, logger)
	events := bus.NewEventBus(logger)
	state := session.NewState()

	wa, err := whatsapp.New(ctx, whatsapp.Config{
		SessionDB: cfg.WhatsApp.SessionDB,
		PrintQR:   cfg.WhatsApp.PrintQR,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("whatsapp: %w", err)
	}

	controller := session.NewController(session.Config{
		Conn:    wa,
		State:   state,
		Events:  events,
		Inbound: queue,
		Logger:  logger,
	})
	wa.Subscribe(controller)

	store := inbox.New()
	hub := fanout.NewHub(fanout.HubConfig{
		Inbox:      store,
		State:      state,
		MaxClients: cfg.Server.MaxClients,
		SendBuffer: cfg.Server.SendBuffer,
		Logger:     logger,
	})
	hub.Subscribe(events)

	pipe := pipeline.New(pipeline.Config{
		Source: queue,
		Resolver: identity.New(identity.Config{
			Lookup:  wa,
			Timeout: time.Duration(cfg.WhatsApp.LookupTimeoutSeconds) * time.Second,
			Logger:  logger,
		}),
		Classifier: classify.New(classify.Config{
			Downloader: wa,
			MaxBytes:   cfg.Media.MaxBytes,
			Timeout:    time.Duration(cfg.Media.DownloadTimeoutSeconds) * time.Second,
			Logger:     logger,
		}),
		Publisher:     hub,
		IncludeEchoes: cfg.Inbox.IncludeOutgoingEchoes,
		Logger:        logger,
	})
	// The pipeline outlives the signal: it stops when the queue is closed
	// during shutdown, after processing what is already queued.
	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		pipe.Run(context.WithoutCancel(ctx))
	}()

	if cfg.WhatsApp.ReinitializeOnDisconnect {
		supervisor := session.NewSupervisor(session.SupervisorConfig{
			Controller: controller,
			Events:     events,
			Delay:      time.Duration(cfg.WhatsApp.ReinitializeDelaySeconds) * time.Second,
			Logger:     logger,
		})
		go supervisor.Run(ctx)
	}

	gate := delivery.New(delivery.Config{
		State:  state,
		Sender: wa,
		Retrier: retry.New(retry.Policy{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			Delay:       time.Duration(cfg.Delivery.RetryDelayMillis) * time.Millisecond,
		}),
		Logger: logger,
	})

	srv := server.New(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		StaticDir:      cfg.Server.StaticDir,
		MetricsEnabled: cfg.Metrics.Enabled,
		WebSocket: fanout.NewHandler(fanout.HandlerConfig{
			Hub:           hub,
			Sender:        gate,
			RatePerMinute: cfg.Delivery.RateLimitPerMinute,
			RateBurst:     cfg.Delivery.RateLimitBurst,
			Logger:        logger,
		}),
		State:   state,
		Inbox:   store,
		Clients: hub,
		Version: version,
		Logger:  logger,
	})
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(ctx)
	}()

	if err := controller.Initialize(ctx); err != nil {
		// The supervisor, if enabled, retries from Disconnected.
		logger.Error("initialize session", "err", err)
	}

	logger.Info("whatsbridge started. Press Ctrl+C to stop.", "addr", srv.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			runErr = fmt.Errorf("server: %w", err)
		}
		stop()
	}
	logger.Info("shutting down...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Close()
		<-pipeDone
		hub.Close()
		if err := wa.Close(); err != nil {
			logger.Warn("close whatsapp", "err", err)
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown timed out")
		}
	}

	return runErr
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" || host == "::" {
				host = "127.0.0.1"
			}
			url := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)) + "/status"

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("bridge not reachable at %s: %w", url, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status: unexpected HTTP %d", resp.StatusCode)
			}

			var st server.StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			fmt.Printf("state:   %s\n", st.State)
			fmt.Printf("inbox:   %d\n", st.Inbox)
			fmt.Printf("clients: %d\n", st.Clients)
			fmt.Printf("version: %s\n", st.Version)
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Unlink the WhatsApp account and forget the stored session",
		Long:  "Stop a running bridge first: the session database is opened exclusively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			wa, err := whatsapp.New(ctx, whatsapp.Config{SessionDB: cfg.WhatsApp.SessionDB, Logger: logger})
			if err != nil {
				return fmt.Errorf("whatsapp: %w", err)
			}
			defer wa.Close()

			if !wa.Paired() {
				logger.Info("no paired session", "session", cfg.WhatsApp.SessionDB)
				return nil
			}
			if err := wa.Logout(ctx); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			logger.Info("logged out", "session", cfg.WhatsApp.SessionDB)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. delivery.maxAttempts 5)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	var flat bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !flat {
				data, _ := json.MarshalIndent(cfg, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			paths := config.ListPaths(cfg)
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Printf("%s = %v\n", k, paths[k])
			}
			return nil
		},
	}
	list.Flags().BoolVar(&flat, "flat", false, "print one dotted path per line")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
