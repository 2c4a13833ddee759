package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/capsule/internal/api"
	"github.com/kalambet/capsule/internal/config"
	"github.com/kalambet/capsule/internal/insight"
	"github.com/kalambet/capsule/internal/metrics"
	"github.com/kalambet/capsule/internal/notify"
	"github.com/kalambet/capsule/internal/share"
	"github.com/kalambet/capsule/internal/storage"
	"github.com/kalambet/capsule/internal/store"
	"github.com/kalambet/capsule/internal/web"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory service and the page (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the memory collection to an MCP client over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runMCP(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capsule status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func newAnalyzer(cfg config.Config, obs insight.Observer, logger *slog.Logger) (*insight.Analyzer, error) {
	chat := insight.NewChatter(insight.AnthropicConfig{
		APIKey:    cfg.LLM.AnthropicAPIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		BaseURL:   cfg.LLM.BaseURL,
	})
	opts := []insight.AnalyzerOption{insight.WithLogger(logger)}
	if obs != nil {
		opts = append(opts, insight.WithObserver(obs))
	}
	return insight.NewAnalyzer(chat, opts...)
}

// pageBackend picks what the page's store talks to. The remote backend with
// no URL points at this server's own API. Photos are then served from the
// same origin, so no image base is needed.
func pageBackend(cfg config.Config, analyzer *insight.Analyzer) (store.Backend, string) {
	if cfg.Store.Backend == config.BackendMemory {
		return store.NewInMemoryBackend(analyzer), ""
	}
	if cfg.Store.RemoteURL == "" {
		return store.NewRemoteBackend(loopbackURL(cfg.Server)), ""
	}
	b := store.NewRemoteBackend(cfg.Store.RemoteURL)
	return b, b.BaseURL()
}

// loopbackURL is how the server reaches its own API.
func loopbackURL(s config.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(s.Port))
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(stderr, "capsule version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing storage", "error", err)
		}
	}()

	collector := metrics.NewCollector("capsule")

	analyzer, err := newAnalyzer(cfg, collector, logger)
	if err != nil {
		return err
	}
	defer analyzer.Close()
	if !analyzer.Available() {
		printWarning("No Anthropic API key configured; discovery will use built-in insights")
	}

	backend, imageBase := pageBackend(cfg, analyzer)
	st := store.New(backend, notify.New(),
		store.WithLoadTimeout(cfg.Store.Timeout()),
		store.WithLogger(logger),
	)

	hub := web.NewHub(logger, collector.EventClients)
	st.Subscribe(func(snap store.Snapshot) {
		hub.Publish(web.MemoriesEvent(len(snap.Records)))
	})

	page, err := web.New(web.Deps{
		Store:      st,
		Hub:        hub,
		Share:      share.Build(cfg.Server.Origin()),
		ImageBase:  imageBase,
		LLMEnabled: analyzer.Available(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Changes made outside the page (CLI, MCP, another client) refresh the
	// page's list, which in turn notifies open tabs.
	onChange := func() {
		go func() {
			if err := st.Reload(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Debug("reload after external change failed", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	api.Register(r, api.Deps{
		Storage:  db,
		Analyzer: analyzer,
		Metrics:  collector,
		OnChange: onChange,
	})
	page.Register(r)
	r.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}

	// Bind before the first reload so a loopback backend can reach us.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}

	g.Go(func() error {
		fmt.Fprintf(stderr, "capsule listening on %s (%s)\n", srv.Addr, cfg.Server.Origin())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// First load of the page's list; the page shows its loading state until
	// this completes.
	g.Go(func() error {
		if err := st.EnsureLoaded(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("initial memory load failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCP(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs stay on stderr.
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	analyzer, err := newAnalyzer(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Storage:  db,
		Analyzer: analyzer,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	logger.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	h, err := client.health(hctx)
	if err != nil {
		printStatus("Server", "stopped (%s)", client.baseURL)
	} else {
		printStatus("Server", "running at %s", client.baseURL)
		printStatus("Memories", "%d", h.Memories)
	}

	if cfg.LLM.HasLLM() {
		printStatus("Model", "%s", cfg.LLM.Model)
	} else {
		printStatus("Model", "none (built-in insights)")
	}
	printStatus("Page backend", "%s", cfg.Store.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
