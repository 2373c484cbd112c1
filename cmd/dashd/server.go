package main

import (
	"context"
	"encoding/json"
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dashd/dashd/internal/api"
	"github.com/dashd/dashd/internal/composer"
	"github.com/dashd/dashd/internal/config"
	"github.com/dashd/dashd/internal/feed"
	"github.com/dashd/dashd/internal/media"
	"github.com/dashd/dashd/internal/metrics"
	"github.com/dashd/dashd/internal/proxy"
	"github.com/dashd/dashd/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dashd server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running dashd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dashd status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "dashd.pid")
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

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// app holds the components shared by the HTTP and MCP front ends.
type app struct {
	store    *storage.Store
	media    media.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	feed     *feed.Fetcher
	genAI    *proxy.Client
	composer *composer.Composer
}

func openStore(cfg config.Config) (*storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return storage.OpenPostgres(cfg.Storage.DSN)
	default:
		return storage.Open(cfg.Storage.DataDir)
	}
}

func openMedia(ctx context.Context, cfg config.Config) (media.Store, error) {
	switch cfg.Media.Backend {
	case "s3":
		return media.NewS3Store(ctx, media.S3Config{
			Bucket:          cfg.Media.Bucket,
			Endpoint:        cfg.Media.Endpoint,
			Region:          cfg.Media.Region,
			AccessKeyID:     cfg.Media.AccessKeyID,
			SecretAccessKey: cfg.Media.SecretAccessKey,
		})
	default:
		return media.NewFSStore(cfg.Media.Dir)
	}
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	ms, err := openMedia(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening media store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	fetcher := feed.NewFetcher(feed.Config{
		BaseURL:   cfg.Feed.BaseURL,
		Query:     cfg.Feed.Query,
		Params:    cfg.Feed.Params,
		UserAgent: cfg.Feed.UserAgent,
		Timeout:   cfg.Feed.Timeout,
	}, m)
	genAI := proxy.NewClient(proxy.Config{
		APIKey:  cfg.GenAI.APIKey,
		BaseURL: cfg.GenAI.BaseURL,
		Model:   cfg.GenAI.Model,
		Timeout: cfg.GenAI.Timeout,
	}, m)
	if !genAI.Configured() {
		slog.Warn("no generative API key configured; chat will report missing_credential")
	}

	return &app{
		store:    store,
		media:    ms,
		registry: reg,
		metrics:  m,
		feed:     fetcher,
		genAI:    genAI,
		composer: composer.New(fetcher, store, composer.Options{
			Query:         cfg.Feed.Query,
			HeadlineLimit: cfg.Feed.Limit,
			NotesLimit:    cfg.Dashboard.NotesLimit,
		}),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func (a *app) handler(cfg config.Config) http.Handler {
	return api.NewHandler(api.Deps{
		Store:          a.store,
		Media:          a.media,
		Feed:           a.feed,
		GenAI:          a.genAI,
		Composer:       a.composer,
		Metrics:        a.metrics,
		Gatherer:       a.registry,
		ChatLimiter:    api.NewClientLimiter(cfg.GenAI.RatePerMinute),
		Location:       cfg.Location(),
		HeadlineLimit:  cfg.Feed.Limit,
		MaxUploadBytes: int64(cfg.Media.MaxUploadBytes),
	})
}

func (a *app) mcpDeps(cfg config.Config) api.MCPDeps {
	return api.MCPDeps{
		Store:         a.store,
		Composer:      a.composer,
		Feed:          a.feed,
		GenAI:         a.genAI,
		HeadlineLimit: cfg.Feed.Limit,
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "dashd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice: probe the health endpoint before taking the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("dashd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("dashd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dashd listening", "addr", addr, "storage", cfg.Storage.Driver, "media", cfg.Media.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

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
		printError("dashd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop dashd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to dashd (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{baseURL: serverURL(cfg), httpClient: &http.Client{Timeout: 2 * time.Second}}
	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running at %s", client.baseURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	printStatus("Media", "%s", cfg.Media.Backend)
	printStatus("Time zone", "%s", cfg.Server.Timezone)
	if cfg.GenAI.APIKey != "" {
		printStatus("Gemini", "%s (key set)", cfg.GenAI.Model)
	} else {
		printStatus("Gemini", "%s (no key)", cfg.GenAI.Model)
	}

	if running {
		if n, err := countItems(ctx, client, "/api/todos"); err == nil {
			printStatus("Todos", "%d", n)
		}
		if n, err := countItems(ctx, client, "/api/notes?limit=100"); err == nil {
			printStatus("Notes", "%s", countLabel(n, 100))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countItems(ctx context.Context, client *apiClient, path string) (int, error) {
	resp, err := client.get(ctx, path)
	if err != nil {
		return 0, err
	}
	var items []json.RawMessage
	if err := decodeJSON(resp, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
