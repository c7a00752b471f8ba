package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kursbuero/kursd/internal/api"
	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/config"
	"github.com/kursbuero/kursd/internal/dashboard"
	"github.com/kursbuero/kursd/internal/livingapps"
	"github.com/kursbuero/kursd/internal/ollama"
	"github.com/kursbuero/kursd/internal/scan"
	"github.com/kursbuero/kursd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the kursd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kursd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kursd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kursd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "kursd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("kursd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("kursd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check vision model readiness when photo scan is enabled.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if cfg.Scan.Enabled {
		if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.VisionModel, os.Stderr); err != nil {
			return err
		}
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the dashboard loader and do the initial five-collection load.
	// A failed live load falls back to the cached snapshot when one exists;
	// otherwise the API serves a retryable not-ready state.
	records := livingapps.New(cfg.LivingApps.BaseURL, cfg.LivingApps.APIToken)
	loader := dashboard.New(records, cfg.LivingApps.Apps.IDs(), store)
	if err := loader.Load(ctx); err != nil {
		slog.Warn("initial load failed", "error", err)
		if restoreErr := loader.RestoreFromCache(); restoreErr == nil {
			if age, ageErr := store.SnapshotAge(); ageErr == nil {
				slog.Info("serving cached snapshot until remote is reachable", "fetched_at", age)
			} else {
				slog.Info("serving cached snapshot until remote is reachable")
			}
		} else {
			slog.Warn("no cached snapshot available", "error", restoreErr)
		}
	}

	encodeRef := func(target catalog.Key, recordID string) string {
		return livingapps.RecordURL(cfg.LivingApps.BaseURL, loader.AppID(target), recordID)
	}

	scanTimeout, err := time.ParseDuration(cfg.Scan.Timeout)
	if err != nil {
		slog.Warn("invalid scan timeout, using default 60s", "value", cfg.Scan.Timeout, "error", err)
		scanTimeout = 60 * time.Second
	}
	extractor := scan.NewExtractor(ollamaClient, cfg.Ollama.VisionModel, scanTimeout)

	handler := api.NewHandler(api.Deps{
		Loader:    loader,
		Writer:    records,
		Extractor: extractor,
		Scans:     store,
		EncodeRef: encodeRef,
		Token:     cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the background snapshot refresher.
	poll, err := time.ParseDuration(cfg.Refresh.PollInterval)
	if err != nil {
		poll = 500 * time.Millisecond
	}
	maxAge, err := time.ParseDuration(cfg.Refresh.MaxAge)
	if err != nil {
		maxAge = 5 * time.Minute
	}
	refresher := dashboard.NewRefresher(loader, poll, maxAge)
	go refresher.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Loader:    loader,
		Writer:    records,
		EncodeRef: encodeRef,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "kursd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("kursd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop kursd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to kursd (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}
	printStatus("Vision model", "%s", cfg.Ollama.VisionModel)
	printStatus("Record storage", "%s", cfg.LivingApps.BaseURL)

	// Show dashboard state if the server is running.
	if running {
		if cli, err := newAPIClient(); err == nil {
			if dashResp, err := cli.get(ctx, "/dashboard"); err == nil {
				var dash struct {
					State     string    `json:"state"`
					FetchedAt time.Time `json:"fetched_at"`
					FromCache bool      `json:"from_cache"`
					Stats     struct {
						TotalCourses int `json:"total_courses"`
						Enrollments  int `json:"enrollments"`
					} `json:"stats"`
				}
				if decodeJSON(dashResp, &dash) == nil {
					printStatus("Data", "%s (fetched %s)", dash.State, dash.FetchedAt.Format(time.RFC3339))
					if dash.FromCache {
						printWarning("serving cached snapshot")
					}
					printStatus("Courses", "%d", dash.Stats.TotalCourses)
					printStatus("Enrollments", "%d", dash.Stats.Enrollments)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
