package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"storyline/internal/blob"
	"storyline/internal/config"
	"storyline/internal/db"
	"storyline/internal/engine"
	"storyline/internal/genclient"
	"storyline/internal/metrics"
	"storyline/internal/migrate"
)

// Options carries values resolved from flags and environment.
type Options struct {
	Workspace string
	APIKey    string
	// LogOutput receives structured logs; defaults to io.Discard.
	LogOutput io.Writer
	// HTTPClient overrides the client used for generation calls.
	HTTPClient *http.Client
}

// App is a fully wired workspace: database migrated, engine ready.
type App struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Metrics *metrics.Metrics
	Designs *blob.Store
	Logger  *slog.Logger
}

// Open loads the workspace config, opens and migrates the database and wires the engine with its
// generation client, design store and metrics.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	designs := blob.NewOsStore(DesignsDir(opts.Workspace, cfg))
	m := metrics.New(prometheus.NewRegistry())

	genCfg, err := GenerationConfig(cfg, opts.APIKey)
	if err != nil {
		conn.Close()
		return nil, err
	}
	clientOpts := []genclient.Option{
		genclient.WithLogger(logger),
		genclient.WithBlobs(designs),
		genclient.WithMetrics(m),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, genclient.WithHTTPClient(opts.HTTPClient))
	}
	gen := genclient.New(genCfg, clientOpts...)
	if !gen.Configured() {
		logger.Warn("no AI credential configured; specifications will be synthesized locally")
	}

	eng := engine.New(conn, gen)
	eng.Designs = designs
	eng.Metrics = m
	eng.Logger = logger

	return &App{
		DB:      conn,
		Config:  cfg,
		Engine:  eng,
		Metrics: m,
		Designs: designs,
		Logger:  logger,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// GenerationConfig maps the file config plus the credential onto the client config.
func GenerationConfig(cfg *config.Config, apiKey string) (genclient.Config, error) {
	timeout, err := cfg.GenerationTimeout()
	if err != nil {
		return genclient.Config{}, err
	}
	out := genclient.DefaultConfig()
	out.APIKey = apiKey
	if cfg.Generation.BaseURL != "" {
		out.BaseURL = cfg.Generation.BaseURL
	}
	if cfg.Generation.Model != "" {
		out.Model = cfg.Generation.Model
	}
	if cfg.Generation.MaxTokens > 0 {
		out.MaxTokens = cfg.Generation.MaxTokens
	}
	out.Temperature = cfg.Generation.Temperature
	if timeout > 0 {
		out.Timeout = timeout
	}
	if cfg.Generation.AnthropicVersion != "" {
		out.AnthropicVersion = cfg.Generation.AnthropicVersion
	}
	return out, nil
}

// DesignsDir resolves storage.designs_dir against the workspace state directory.
func DesignsDir(workspace string, cfg *config.Config) string {
	dir := cfg.Storage.DesignsDir
	if dir == "" {
		dir = "designs"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(db.StateDir(workspace), dir)
}

// NewLogger builds the slog logger described by the log section of cfg.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = io.Discard
	}
	lvl, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}
