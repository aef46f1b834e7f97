// Package cli implements the sorgu command tree: the interactive question
// loop, one-shot questions, schema inspection, credential storage, snapshot
// export and the HTTP server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sorgu/sorgu/internal/config"
	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
	"github.com/sorgu/sorgu/internal/secrets"
)

// Version is set at build time with -ldflags.
var Version = "0.0.0-dev"

type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Lookup reads configuration; os.LookupEnv when nil.
	Lookup config.LookupFunc
	// EnvFiles are loaded into the process environment before Lookup runs.
	// Missing files are skipped.
	EnvFiles []string
	// OpenSecrets opens the credential store; nil disables it.
	OpenSecrets func() (*secrets.Store, error)
	// Interactive enables spinners and masked prompts.
	Interactive bool
}

type command struct {
	opts  Options
	debug bool
}

func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	c := &command{opts: opts}

	root := &cobra.Command{
		Use:           "sorgu",
		Short:         "Türkçe sorulardan SQL üretir, çalıştırır ve Türkçe cevaplar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.loadEnvFiles()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runAsk(cmd.Context(), nil)
		},
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "SQL ve aşama loglarını göster (DEBUG_SQL)")

	root.AddCommand(
		c.askCommand(),
		c.schemaCommand(),
		c.loginCommand(),
		c.logoutCommand(),
		c.snapshotCommand(),
		c.serveCommand(),
		c.versionCommand(),
	)
	return root
}

// Execute runs the command tree with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		pterm.Error.WithWriter(stderr).Println(observability.PresentError(err))
		return 1
	}
	return 0
}

func (c *command) loadEnvFiles() error {
	for _, path := range c.opts.EnvFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return failure.Wrap(failure.Configuration, fmt.Sprintf("read %s", path), err)
		}
	}
	return nil
}

// readConfig reads the process environment unless Options.Lookup is set.
func (c *command) readConfig() (config.Config, error) {
	if c.opts.Lookup == nil {
		return config.LoadFromEnv("sorgu")
	}
	return config.Load("sorgu", c.opts.Lookup)
}

// loadConfig builds the configuration, fills credentials from the credential
// store when the environment lacks them and, if asked, requires them.
func (c *command) loadConfig(requireCredentials bool) (config.Config, *slog.Logger, error) {
	cfg, err := c.readConfig()
	if err != nil {
		return config.Config{}, nil, failure.Wrap(failure.Configuration, "invalid configuration", err)
	}
	if c.debug {
		cfg.Observability.DebugSQL = true
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	logger := observability.NewLogger(cfg, c.opts.Stderr)

	if c.opts.OpenSecrets != nil {
		if err := c.fillFromSecrets(&cfg); err != nil {
			logger.Debug("credential store unavailable", slog.String("error", err.Error()))
		}
	}
	if requireCredentials {
		if err := cfg.RequireCredentials(); err != nil {
			return config.Config{}, nil, err
		}
	}
	return cfg, logger, nil
}

func (c *command) fillFromSecrets(cfg *config.Config) error {
	if cfg.AI.APIKey != "" && (cfg.Store.DSN != "" || cfg.Store.Driver != config.StoreDriverPostgres) {
		return nil
	}
	store, err := c.opts.OpenSecrets()
	if err != nil {
		return err
	}
	if err := store.Fill(secrets.KeyAPIKey, &cfg.AI.APIKey); err != nil {
		return err
	}
	return store.Fill(secrets.KeyStoreDSN, &cfg.Store.DSN)
}

func (c *command) openRuntime(ctx context.Context, requireCredentials bool) (*runtime, error) {
	cfg, logger, err := c.loadConfig(requireCredentials)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}
	if err := rt.openEngine(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}
