package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/threatflux/depAuditGoMCP/internal/api"
	"github.com/threatflux/depAuditGoMCP/internal/auth"
	"github.com/threatflux/depAuditGoMCP/internal/config"
	"github.com/threatflux/depAuditGoMCP/internal/mcp"
	"github.com/threatflux/depAuditGoMCP/internal/models"
	"github.com/threatflux/depAuditGoMCP/pkg/client"
)

// Output formats accepted by the audit command
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "dep-audit-mcp",
		Short: "Dependency vulnerability assistant for MCP clients",
		Long: `dep-audit-mcp audits npm and pip projects, local or on GitHub, and answers
questions about the result: is it safe to ship, what is the riskiest finding,
which upgrades fix what, and what changed since the last scan.

It speaks the Model Context Protocol over stdio or HTTP and also offers a small
REST API and a one-shot audit command for CI.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to config file (default: search for config.yaml)")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newStdioCmd(opts))
	rootCmd.AddCommand(newAuditCmd(opts))
	rootCmd.AddCommand(newTokenCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("dep-audit-mcp {{.Version}}\n")

	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	var options []config.Option
	if o.configFile != "" {
		options = append(options, config.WithConfigFile(o.configFile))
	}
	return config.LoadConfig(options...)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP and REST over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg, cmd.ErrOrStderr())
			logger.WithFields(logrus.Fields{
				"version":    Version,
				"commit":     Commit,
				"build_date": BuildDate,
			}).Info("Starting dep-audit-mcp")
			logger.WithFields(cfg.LogFields()).Debug("Effective configuration")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, newApp(cfg, logger))
		},
	}
}

// runServe starts the HTTP server and blocks until ctx is done
func runServe(ctx context.Context, a *app) error {
	serverConfig := &api.ServerConfig{
		Config:  a.config,
		Logger:  a.logger,
		Tools:   a.tools,
		Metrics: a.metrics,
		Version: Version,
	}
	if a.config.Auth.Enabled {
		serverConfig.Verifier = newJWTService(a.config, a.logger)
	}

	server, err := api.NewServer(serverConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	<-ctx.Done()
	a.logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newStdioCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout",
		Long:  "Serve newline-delimited JSON-RPC on stdin/stdout. Logs go to stderr so stdout carries only protocol messages.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(cfg, logger)
			logger.WithField("version", Version).Info("Serving MCP on stdio")
			err = a.tools.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

type auditOptions struct {
	request models.ProjectRequest
	tool    string
	format  string
	server  string
	token   string
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	auditOpts := &auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run one tool against a project and print the result",
		Example: `  # Audit the current directory
  dep-audit-mcp audit

  # Ship readiness of a GitHub repository as JSON
  dep-audit-mcp audit --repo acme/widgets --ref main --tool check_ship_readiness --format json

  # Ask a running server instead of scanning locally
  dep-audit-mcp audit --server http://127.0.0.1:8080 --token "$TOKEN" --repo acme/widgets`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch auditOpts.format {
			case formatText, formatJSON, formatYAML:
			default:
				return fmt.Errorf("unsupported format %q (want text, json or yaml)", auditOpts.format)
			}

			if auditOpts.server != "" {
				remote, err := client.NewClient(
					client.WithBaseURL(auditOpts.server),
					client.WithAccessToken(auditOpts.token),
					client.WithUserAgent("dep-audit-mcp/"+Version),
				)
				if err != nil {
					return err
				}
				return runAudit(cmd.Context(), remote, auditOpts, cmd.OutOrStdout())
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := initLogger(cfg, cmd.ErrOrStderr())

			return runAudit(cmd.Context(), newApp(cfg, logger).tools, auditOpts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&auditOpts.request.Path, "path", "", "Local project directory (default: working directory)")
	cmd.Flags().StringVar(&auditOpts.request.Repo, "repo", "", "GitHub repository (owner/repo or URL)")
	cmd.Flags().StringVar(&auditOpts.request.Ref, "ref", "", "Branch, tag or commit (default branch when empty)")
	cmd.Flags().StringVar(&auditOpts.request.Subpath, "subpath", "", "Project directory inside the target")
	cmd.Flags().StringVar(&auditOpts.tool, "tool", mcp.ToolAuditDependencies, "Tool to run")
	cmd.Flags().StringVarP(&auditOpts.format, "format", "o", formatText, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&auditOpts.server, "server", "", "Base URL of a running dep-audit-mcp server")
	cmd.Flags().StringVar(&auditOpts.token, "token", "", "Bearer token for --server")

	return cmd
}

// toolInvoker runs one named tool
type toolInvoker interface {
	Invoke(ctx context.Context, name string, req models.ProjectRequest) (string, interface{}, error)
}

func runAudit(ctx context.Context, tools toolInvoker, opts *auditOptions, out io.Writer) error {
	text, result, err := tools.Invoke(ctx, opts.tool, opts.request)
	if err != nil {
		return err
	}

	switch opts.format {
	case formatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case formatYAML:
		// Round-trip through JSON so YAML keys match the JSON field names
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(generic); err != nil {
			return err
		}
		return encoder.Close()
	default:
		_, err := fmt.Fprintln(out, text)
		return err
	}
}

type tokenOptions struct {
	subject string
	scopes  []string
	ttl     time.Duration
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	tokenOpts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Auth.Secret) < auth.MinSecretLength {
				return fmt.Errorf("auth.secret must be at least %d characters to issue tokens", auth.MinSecretLength)
			}
			if tokenOpts.ttl > 0 {
				cfg.Auth.TokenTTL = tokenOpts.ttl
			}

			logger := initLogger(cfg, cmd.ErrOrStderr())
			token, expiresAt, err := newJWTService(cfg, logger).GenerateToken(tokenOpts.subject, tokenOpts.scopes...)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenOpts.subject, "subject", "cli", "Token subject")
	cmd.Flags().StringSliceVar(&tokenOpts.scopes, "scope", []string{api.ScopeToolsCall}, "Granted scopes")
	cmd.Flags().DurationVar(&tokenOpts.ttl, "ttl", 0, "Token lifetime (default auth.token_ttl)")

	return cmd
}

func newJWTService(cfg *config.Config, logger *logrus.Logger) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Expiry:   cfg.Auth.TokenTTL,
	}, logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dep-audit-mcp %s (%s) built on %s\n", Version, Commit, BuildDate)
		},
	}
}
