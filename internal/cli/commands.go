package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sorgu/sorgu/internal/api"
	"github.com/sorgu/sorgu/internal/auth"
	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/pipeline"
	"github.com/sorgu/sorgu/internal/secrets"
	"github.com/sorgu/sorgu/internal/snapshot"
)

var errQuestionFailed = errors.New("soru cevaplanamadı")

func (c *command) askCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [soru]",
		Short: "Soruyu cevaplar; soru verilmezse etkileşimli oturum açar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAsk(cmd.Context(), args)
		},
	}
}

func (c *command) runAsk(ctx context.Context, args []string) error {
	rt, err := c.openRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	p, err := rt.pipeline()
	if err != nil {
		return err
	}
	session, err := p.NewSession(ctx)
	if err != nil {
		return err
	}
	if c.debug {
		fmt.Fprintf(c.opts.Stdout, "Context kuralları yüklendi (%d karakter)\n", utf8.RuneCountInString(session.Context.Rules))
		fmt.Fprintf(c.opts.Stdout, "Şema bilgisi yüklendi (%d karakter, %s, %s)\n\n",
			utf8.RuneCountInString(session.Context.Schema), session.Context.Source, describeStore(rt.cfg))
	}
	return c.converse(ctx, session, args)
}

// converse answers args as one question, or runs the interactive loop when
// args is empty.
func (c *command) converse(ctx context.Context, session asker, args []string) error {
	if c.opts.Interactive {
		session = spinnerAsker{next: session, writer: c.opts.Stdout}
	}
	if question := strings.TrimSpace(strings.Join(args, " ")); question != "" {
		if !askOnce(ctx, session, question, c.opts.Stdout) {
			return errQuestionFailed
		}
		return nil
	}
	printHeader(c.opts.Stdout)
	return runLoop(ctx, session, c.opts.Stdin, c.opts.Stdout)
}

type spinnerAsker struct {
	next   asker
	writer io.Writer
}

func (s spinnerAsker) Ask(ctx context.Context, question string) (pipeline.Outcome, error) {
	spinner, err := pterm.DefaultSpinner.WithWriter(s.writer).WithRemoveWhenDone(true).Start("Sorgu hazırlanıyor...")
	if err == nil {
		defer func() { _ = spinner.Stop() }()
	}
	return s.next.Ask(ctx, question)
}

func (c *command) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Modele verilen bağlam kurallarını ve şemayı gösterir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.openRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			resolved, err := rt.schemaProvider().Resolve(cmd.Context())
			if err != nil {
				return err
			}
			printSchema(c.opts.Stdout, resolved)
			return nil
		},
	}
}

func (c *command) loginCommand() *cobra.Command {
	var apiKey, dsn string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "API anahtarını işletim sisteminin anahtar deposuna kaydeder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := c.secrets()
			if err != nil {
				return err
			}
			if strings.TrimSpace(apiKey) == "" {
				apiKey, err = c.readSecret("API anahtarı")
				if err != nil {
					return err
				}
			}
			if err := store.Save(secrets.KeyAPIKey, apiKey); err != nil {
				return failure.Wrap(failure.Configuration, "API anahtarı kaydedilemedi", err)
			}
			if strings.TrimSpace(dsn) != "" {
				if err := store.Save(secrets.KeyStoreDSN, dsn); err != nil {
					return failure.Wrap(failure.Configuration, "bağlantı adresi kaydedilemedi", err)
				}
			}
			pterm.Success.WithWriter(c.opts.Stdout).Println("Kimlik bilgileri kaydedildi.")
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "tamamlama servisi API anahtarı; boşsa sorulur")
	cmd.Flags().StringVar(&dsn, "dsn", "", "isteğe bağlı PostgreSQL bağlantı adresi")
	return cmd
}

func (c *command) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Kayıtlı kimlik bilgilerini siler",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			store, err := c.secrets()
			if err != nil {
				return err
			}
			if err := errors.Join(store.Remove(secrets.KeyAPIKey), store.Remove(secrets.KeyStoreDSN)); err != nil {
				return err
			}
			pterm.Success.WithWriter(c.opts.Stdout).Println("Kimlik bilgileri silindi.")
			return nil
		},
	}
}

func (c *command) secrets() (*secrets.Store, error) {
	if c.opts.OpenSecrets == nil {
		return nil, failure.New(failure.Configuration, "anahtar deposu kullanılamıyor")
	}
	store, err := c.opts.OpenSecrets()
	if err != nil {
		return nil, failure.Wrap(failure.Configuration, "anahtar deposu açılamadı", err)
	}
	return store, nil
}

func (c *command) readSecret(label string) (string, error) {
	if c.opts.Interactive {
		return pterm.DefaultInteractiveTextInput.WithMask("*").Show(label)
	}
	fmt.Fprintf(c.opts.Stdout, "%s: ", label)
	line, err := bufio.NewReader(c.opts.Stdin).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return "", failure.New(failure.Configuration, label+" girilmedi")
	}
	return strings.TrimSpace(line), nil
}

func (c *command) snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [tablo...]",
		Short: "Tabloları parquet olarak nesne deposuna aktarır",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := c.loadConfig(false)
			if err != nil {
				return err
			}
			cfg.ObjectStore.Enabled = true
			rt := &runtime{cfg: cfg, logger: logger}
			defer func() { _ = rt.Close() }()
			if err := rt.openObjectStore(ctx); err != nil {
				return err
			}
			if err := rt.openPostgres(ctx); err != nil {
				return err
			}

			tables := args
			if len(tables) == 0 {
				tables = cfg.Snapshot.Tables
			}
			exporter := snapshot.NewExporter(rt.db, rt.objects, cfg.Store.Schema, cfg.Snapshot.Prefix, logger)

			var spinner *pterm.SpinnerPrinter
			if c.opts.Interactive {
				spinner, _ = pterm.DefaultSpinner.WithWriter(c.opts.Stdout).Start("Anlık görüntüler aktarılıyor...")
			}
			reports, err := exporter.Export(ctx, tables)
			if spinner != nil {
				if err != nil {
					spinner.Fail("Aktarım başarısız")
				} else {
					spinner.Success("Aktarım tamamlandı")
				}
			}
			printSnapshotReports(c.opts.Stdout, reports)
			return err
		},
	}
}

func printSnapshotReports(out io.Writer, reports []snapshot.TableReport) {
	if len(reports) == 0 {
		return
	}
	data := pterm.TableData{{"Tablo", "Anahtar", "Satır", "Bayt"}}
	for _, report := range reports {
		data = append(data, []string{report.Table, report.Key, strconv.Itoa(report.Rows), strconv.FormatInt(report.Bytes, 10)})
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		for _, report := range reports {
			fmt.Fprintf(out, "%s -> %s (%d satır)\n", report.Table, report.Key, report.Rows)
		}
		return
	}
	fmt.Fprintln(out, rendered)
}

func (c *command) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP sunucusunu başlatır",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := c.openRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			p, err := rt.pipeline()
			if err != nil {
				return err
			}
			cfg, logger := rt.cfg, rt.logger

			deps := api.Dependencies{
				Logger:            logger,
				Readiness:         api.CombineReadinessChecks(api.CheckCredentials(cfg), api.CheckStore(p.Ping)),
				DependencyTimeout: time.Second,
				Asker:             p,
				AskTimeout:        cfg.HTTP.WriteTimeout,
			}
			if cfg.Auth.Required {
				validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
				if err != nil {
					return failure.Wrap(failure.Configuration, "invalid static auth keys", err)
				}
				deps.AuthMiddleware = auth.Middleware(logger, validator)
			}

			server := &http.Server{
				Addr:         cfg.HTTP.Address,
				Handler:      api.NewHandler(cfg, deps),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}
			return serve(ctx, server, logger)
		},
	}
}

// serve runs server until ctx is cancelled, then drains it.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("starting api server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (c *command) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Sürümü yazdırır",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.opts.Stdout, "sorgu %s\n", Version)
		},
	}
}
