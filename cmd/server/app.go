package main

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/threatflux/depAuditGoMCP/internal/advisor"
	"github.com/threatflux/depAuditGoMCP/internal/audit"
	"github.com/threatflux/depAuditGoMCP/internal/audit/runner"
	"github.com/threatflux/depAuditGoMCP/internal/config"
	"github.com/threatflux/depAuditGoMCP/internal/github"
	"github.com/threatflux/depAuditGoMCP/internal/history"
	"github.com/threatflux/depAuditGoMCP/internal/mcp"
	"github.com/threatflux/depAuditGoMCP/internal/metrics"
	"github.com/threatflux/depAuditGoMCP/internal/models"
	"github.com/threatflux/depAuditGoMCP/internal/target"
)

// app holds the wired components shared by every command
type app struct {
	config  *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	history *history.Store
	advisor *advisor.Service
	tools   *mcp.Server
}

// initLogger initializes and configures the logger
func initLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// newApp wires the scanner, resolver, history and MCP layers from config
func newApp(cfg *config.Config, logger *logrus.Logger) *app {
	m := metrics.NewMetrics()

	githubClient := github.NewClient(
		github.WithBaseURL(cfg.GitHub.APIURL),
		github.WithToken(cfg.GitHub.Token),
		github.WithTimeout(cfg.GitHub.Timeout),
		github.WithRequestsPerSecond(cfg.GitHub.RequestsPerSecond),
		github.WithLogger(logger),
	)
	if !githubClient.HasToken() {
		logger.Debug("No GitHub token configured, remote targets use anonymous API limits")
	}

	resolver := &target.MultiResolver{
		Local: target.NewLocalResolver(),
		Remote: target.NewRemoteResolver(
			githubClient,
			runner.NewNpmLockfileGenerator(cfg.Scanner.NpmBinary, logger),
			target.WithResolverLogger(logger),
		),
	}

	auditor := audit.NewAuditor(
		audit.WithLogger(logger),
		audit.WithRunner(models.EcosystemNpm, runner.NewNpmAuditRunner(cfg.Scanner.NpmBinary, logger)),
		audit.WithRunner(models.EcosystemPip, runner.NewPipAuditRunner(cfg.Scanner.PipAuditBinary, cfg.Scanner.PythonBinary, logger)),
		audit.WithMaxConcurrentScans(cfg.Scanner.MaxConcurrent),
		audit.WithScanTimeout(cfg.Scanner.Timeout),
		audit.WithScanRecorder(m),
	)

	store := history.NewStore(
		history.WithCapacity(cfg.History.Capacity),
		history.WithLogger(logger),
		history.WithSizeRecorder(m),
	)

	service := advisor.NewService(resolver, auditor, store, advisor.WithLogger(logger))

	tools := mcp.NewServer(service,
		mcp.WithLogger(logger),
		mcp.WithVersion(Version),
		mcp.WithToolRecorder(m),
	)

	return &app{
		config:  cfg,
		logger:  logger,
		metrics: m,
		history: store,
		advisor: service,
		tools:   tools,
	}
}
