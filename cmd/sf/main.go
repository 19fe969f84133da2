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
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"siteforms/internal/app"
	"siteforms/internal/config"
	"siteforms/internal/domain"
	"siteforms/internal/engine"
	"siteforms/internal/forms"
	"siteforms/internal/i18n"
	"siteforms/internal/page"
	"siteforms/internal/repo"
	"siteforms/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sf",
	Short: "Siteforms CLI",
	Long: `Siteforms validates and stores the contact, quote and demo forms of a marketing site.
- Workspace: a directory holding siteforms.yml and the .siteforms database.
- Forms: fields with required, email and phone rules; modal forms close their modal after a successful send.
- Pages: the server keeps one page session per visitor with its own forms and modals.
- Operator routes (submissions, events, telemetry summary) need a token from 'sf token'.
- Event log: every stored submission, consent decision and metric; view with 'sf log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger(viper.GetString("log-level"), viper.GetString("log-format")))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	workspace := viper.GetString("workspace")
	// Real environment wins over .env.
	_ = godotenv.Load(filepath.Join(workspace, ".env"))
	viper.SetEnvPrefix("SITEFORMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("site", "", "site id (overrides siteforms.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	for _, name := range []string{"workspace", "json", "site", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(formsCmd())
	rootCmd.AddCommand(fillCmd())
	rootCmd.AddCommand(submissionsCmd())
	rootCmd.AddCommand(consentCmd())
	rootCmd.AddCommand(telemetryCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func initCmd() *cobra.Command {
	var siteID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create siteforms.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if siteID == "" {
				abs, err := filepath.Abs(workspace)
				if err != nil {
					return err
				}
				siteID = filepath.Base(abs)
			}
			path, err := app.Init(workspace, siteID, viper.GetBool("force"))
			if err != nil {
				return err
			}
			ws, err := app.Open(cmd.Context(), workspace, "", slog.Default())
			if err != nil {
				return err
			}
			defer ws.Close()
			fmt.Printf("Wrote %s for site %s\n", path, siteID)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteID, "site-id", "", "site id (defaults to the workspace directory name)")
	cmd.Flags().Bool("force", false, "overwrite an existing siteforms.yml")
	_ = viper.BindPFlag("force", cmd.Flags().Lookup("force"))
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var simulate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default()
			env, err := config.LoadServerEnv()
			if err != nil {
				return err
			}
			if env.JWTSecret == "" {
				return fmt.Errorf("SITEFORMS_JWT_SECRET is required for operator routes")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				pages, err := page.NewRegistry(page.Options{
					Config:    ws.Config,
					Transport: serveTransport(ws, simulate, logger),
					Logger:    logger,
					IdleTTL:   env.PageIdleTTL,
				})
				if err != nil {
					return err
				}
				go pages.Run(ctx, env.SweepEvery)
				if server.StartWebhookDispatcher(ctx, ws.Engine, env.WebhookPoll, logger) {
					logger.Info("webhook dispatcher started", "hooks", len(ws.Config.Webhooks))
				}
				handler, err := server.New(server.Config{
					Engine:   ws.Engine,
					Pages:    pages,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: env.JWTSecret, Logger: logger},
					Logger:   logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving siteforms API", "addr", addr, "base_path", basePath, "site", ws.Config.Site.ID, "docs", "/docs", "simulate", simulate)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				logger.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "accept page submissions after timing.submit_delay without storing them")
	return cmd
}

// serveTransport picks what page sessions submit through: the workspace
// engine, or with simulate a transport that only waits timing.submit_delay.
func serveTransport(ws *app.Workspace, simulate bool, logger *slog.Logger) forms.Transport {
	if !simulate {
		return ws.Engine
	}
	return &forms.SimulatedTransport{Delay: ws.Config.Timing.SubmitDelay, Logger: logger}
}

func formsCmd() *cobra.Command {
	f := &cobra.Command{Use: "forms", Short: "Inspect and validate forms"}
	f.AddCommand(formsListCmd())
	f.AddCommand(formsValidateCmd())
	return f
}

func formsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defs := cfg.FormDefinitions()
			if viper.GetBool("json") {
				return printJSON(defs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Form", "Placement", "Modal", "Consent", "Fields"})
			for _, d := range defs {
				names := make([]string, 0, len(d.Fields))
				for _, field := range d.Fields {
					name := field.Name
					if field.Required {
						name += "*"
					}
					names = append(names, name)
				}
				tw.AppendRow(table.Row{d.Name, d.Placement, d.ModalName(), d.Consent, strings.Join(names, ", ")})
			}
			tw.SetCaption(languageNote(cfg))
			tw.Render()
			return nil
		},
	}
}

func formsValidateCmd() *cobra.Command {
	var values []string
	var consent bool
	cmd := &cobra.Command{
		Use:     "validate <form>",
		Short:   "Validate values against a form without storing them",
		Example: `  sf forms validate quote --set name="Ayşe" --set email=ayse@example.com --consent`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			f, m, err := localForm(cfg, args[0], nil)
			if err != nil {
				return err
			}
			parsed, err := parseValues(values)
			if err != nil {
				return err
			}
			for name, v := range parsed {
				if err := f.Set(name, v); err != nil {
					return err
				}
			}
			if _, present := f.Consent(); present {
				_ = f.SetConsent(consent)
			}
			results := make(map[string]forms.ValidationResult, len(f.Fields()))
			for _, field := range f.Fields() {
				results[field.Name] = m.ValidateField(field)
			}
			valid := m.ValidateForm(f)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"valid": valid, "fields": results, "message": f.Message().Text})
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Field", "Value", "Valid", "Reason"})
			for _, field := range f.Fields() {
				r := results[field.Name]
				tw.AppendRow(table.Row{field.Name, field.Value, r.Valid, r.Reason})
			}
			tw.Render()
			if msg := f.Message(); msg.Visible {
				fmt.Println(msg.Text)
			}
			if !valid {
				return fmt.Errorf("form %s is invalid", args[0])
			}
			fmt.Printf("form %s is valid\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&values, "set", nil, "field value as name=value (repeatable)")
	cmd.Flags().BoolVar(&consent, "consent", false, "check the consent box")
	return cmd
}

func submissionsCmd() *cobra.Command {
	s := &cobra.Command{Use: "submissions", Short: "Browse stored submissions"}
	s.AddCommand(submissionsListCmd())
	s.AddCommand(submissionsShowCmd())
	return s
}

func submissionsListCmd() *cobra.Command {
	var form string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSubmissions(ctx, repo.SubmissionFilters{
					SiteID: e.Config.Site.ID,
					Form:   form,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Form", "Created", "Name", "Email", "Phone"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.Form, s.CreatedAt, s.Values["name"], s.Values["email"], s.Values["phone"]})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&form, "form", "", "form filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	return cmd
}

func submissionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Repo.GetSubmission(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Submission %s (%s) at %s\n", s.ID, s.Form, s.CreatedAt)
				if s.PageID != "" {
					fmt.Printf("Page: %s\n", s.PageID)
				}
				keys := make([]string, 0, len(s.Values))
				for k := range s.Values {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Field", "Value"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k, s.Values[k]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func consentCmd() *cobra.Command {
	c := &cobra.Command{Use: "consent", Short: "Record or inspect cookie decisions"}
	c.AddCommand(&cobra.Command{
		Use:   "set <visitor-id> <accepted|rejected>",
		Short: "Record a cookie decision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				consent, err := e.RecordConsent(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(consent)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show <visitor-id>",
		Short: "Show a visitor's cookie decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				consent, err := e.Repo.GetConsent(ctx, args[0])
				if errors.Is(err, repo.ErrNotFound) {
					fmt.Printf("visitor %s has not decided\n", args[0])
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(consent)
			})
		},
	})
	return c
}

func telemetryCmd() *cobra.Command {
	t := &cobra.Command{Use: "telemetry", Short: "Page performance samples"}
	t.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Count, average and max per metric",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.MetricSummary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Count", "Avg", "Max"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.Name, s.Count, fmt.Sprintf("%.2f", s.Avg), fmt.Sprintf("%.2f", s.Max)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return t
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
					SiteID:     e.Config.Site.ID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				printEvents(events)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator bearer token",
		Long:  "Signs an HS256 token with SITEFORMS_JWT_SECRET for the operator routes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.LoadServerEnv()
			if err != nil {
				return err
			}
			token, err := server.SignToken(env.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), viper.GetString("site"), slog.Default())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

// languageNote names the message language the site locale resolves to and
// the languages with translations.
func languageNote(cfg *config.Config) string {
	tags := i18n.Supported()
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.String())
	}
	return fmt.Sprintf("messages: %s (locale %q; available: %s)", cfg.Language(), cfg.Site.Locale, strings.Join(names, ", "))
}

// localForm builds a fresh form and a manager using the site rules.
func localForm(cfg *config.Config, name string, transport forms.Transport) (*forms.Form, *forms.Manager, error) {
	if _, ok := cfg.Forms[name]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", forms.ErrUnknownForm, name)
	}
	rules, err := cfg.Rules()
	if err != nil {
		return nil, nil, err
	}
	m := forms.NewManager(forms.Options{
		Rules:           &rules,
		Transport:       transport,
		Logger:          slog.Default(),
		Language:        cfg.Language(),
		SuccessTTL:      cfg.Timing.SuccessTTL,
		ModalCloseDelay: cfg.Timing.ModalCloseDelay,
	})
	f := forms.NewForm(cfg.FormDefinition(name))
	m.Register(name, f)
	return f, m, nil
}

func parseValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --set %q; want name=value", pair)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

func printEvents(events []domain.Event) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Payload"})
	for _, e := range events {
		tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.Payload})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
