package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"raicompanion/internal/analysis"
	"raicompanion/internal/config"
	"raicompanion/internal/content"
	"raicompanion/internal/domain"
	"raicompanion/internal/format"
	"raicompanion/internal/httpx"
	slackbot "raicompanion/internal/integrations/slack"
	"raicompanion/internal/retention"
	"raicompanion/internal/server"
	"raicompanion/internal/storage/sqlite"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raicompanion",
		Short: "RAI prompt orchestration for fact, narrative and system analysis",
		Long: `raicompanion classifies a claim, narrative or question, selects the RAI
analysis modules and premises that fit it, and sends the composed prompt to a
language model.

Examples:
  raicompanion serve                                  # HTTP API + Slack bot
  raicompanion analyze "The elites control the media."
  echo "Is this true?" | raicompanion analyze --mode quick
  raicompanion library --premises
  raicompanion stats --days 30
`,
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), analyzeCmd(), libraryCmd(), modelsCmd(), statsCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Slack bot (when configured) and history pruning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx, historyRequired)
			if err != nil {
				return err
			}
			defer rt.Close()

			router := server.NewRouter(server.RouterConfig{
				Analyzer:     rt.analyzer,
				LLM:          rt.client,
				Metrics:      rt.metrics.Handler(),
				AllowOrigins: rt.cfg.CORSAllowOrigins,
				MaxBodyBytes: int64(rt.cfg.MaxInputLength) * 4,
			})

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Serve(ctx, rt.cfg.HTTPAddr, router)
			})
			if rt.cfg.SlackConfigured() {
				api := slack.New(
					rt.cfg.SlackBotToken,
					slack.OptionAppLevelToken(rt.cfg.SlackAppToken),
					slack.OptionHTTPClient(httpx.ExternalHTTPClient()),
				)
				g.Go(func() error {
					if err := slackbot.StartSlackBot(ctx, api, rt.analyzer); err != nil {
						return fmt.Errorf("slack bot: %w", err)
					}
					return nil
				})
			} else {
				log.Println("Slack bot disabled (slack tokens not set)")
			}
			g.Go(func() error {
				return retention.Start(ctx, rt.cfg, rt.db)
			})
			if rt.cfg.LibraryPath != "" {
				g.Go(func() error {
					return content.Watch(ctx, rt.cfg.LibraryPath, 0, rt.analyzer.SetLibrary)
				})
			}

			log.Println("Starting RAI Companion...")
			return g.Wait()
		},
	}
}

func analyzeCmd() *cobra.Command {
	var (
		model   string
		mode    string
		asHTML  bool
		explain bool
		width   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyze text given as arguments or on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			rt, err := setup(ctx, historyOptional)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.analyzer.Analyze(ctx, analysis.Request{Text: text, Model: model, Mode: mode, Source: "cli"})
			if err != nil {
				var verr *analysis.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("invalid %s: %s", verr.Field, verr.Message)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if explain {
				fmt.Fprintf(out, "%s\nExecution order: %s\n\n", res.Rationale, strings.Join(res.ExecutionOrder, " -> "))
			}
			if asHTML {
				fmt.Fprintln(out, res.HTML)
				return nil
			}
			fmt.Fprint(out, format.Terminal(res.Raw, width))
			fmt.Fprintln(out, format.Footer(res.ModuleCount, res.PremiseCount, res.Model, string(res.Mode)))
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model alias (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "Output mode: quick, guided or expert (default from config)")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print sanitized HTML instead of terminal markdown")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the selection rationale first")
	cmd.Flags().IntVar(&width, "width", 100, "Word wrap width for terminal output")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall deadline including retries (0 = none)")
	return cmd
}

func libraryCmd() *cobra.Command {
	var showPremises bool
	cmd := &cobra.Command{
		Use:   "library",
		Short: "List the analysis modules (and premises) of the content library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			lib, err := loadLibrary(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Content library v%d: %d modules, %d premises\n", lib.Version(), lib.ModuleCount(), lib.PremiseCount())

			var current domain.Level
			for _, m := range lib.Modules() {
				if m.Level != current {
					current = m.Level
					fmt.Fprintf(out, "\n%s\n", lib.LevelName(current))
				}
				fmt.Fprintf(out, "  %-6s %s (%d premises)\n", m.ID, m.Name, len(m.AnchoredPremiseIDs))
			}

			if showPremises {
				for _, d := range lib.Dimensions() {
					fmt.Fprintf(out, "\n%s %s\n", d.ID, d.Name)
					for _, p := range lib.Premises() {
						if p.Dimension == d.ID {
							fmt.Fprintf(out, "  %-6s %s\n", p.ID, p.Title)
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPremises, "premises", false, "Also list premises by dimension")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model aliases and whether their provider is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			client, err := newLLMClient(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			reg := client.Registry()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tPROVIDER\tMODEL\tSTATUS")
			for _, alias := range reg.Aliases() {
				t, _ := reg.Resolve(alias)
				status := "no credentials"
				if client.ProviderConfigured(t.Provider) {
					status = "ready"
				}
				if alias == cfg.DefaultModel {
					status += " (default)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", alias, t.Provider, t.Model, status)
			}
			return w.Flush()
		},
	}
}

func statsCmd() *cobra.Command {
	var (
		days   int
		recent int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show analysis history statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be >= 1")
			}
			cfg := config.LoadConfig()
			db, err := sqlite.InitDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
			}
			defer db.Close()

			s, err := sqlite.GetStats(db, time.Now().AddDate(0, 0, -days))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Last %d days: %d analyses (%d ok, %d failed, %d selection fallbacks)\n",
				days, s.TotalAnalyses, s.Succeeded, s.Failed, s.Fallbacks)
			if s.TotalAnalyses > 0 {
				fmt.Fprintf(out, "Avg latency: %.0f ms, tokens: %d, most used module: %s\n", s.AvgLatencyMS, s.TotalTokens, orDash(s.MostUsedModule))
				printCounts(out, "By model", s.ByModel)
				printCounts(out, "By mode", s.ByMode)
				printCounts(out, "By input type", s.ByCategory)
			}

			if recent > 0 {
				rows, err := sqlite.RecentAnalyses(db, recent)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "\nRecent:")
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d modules\n",
						r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Source, r.ModelAlias, r.Mode, r.Status, r.ModuleCount)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Window in days")
	cmd.Flags().IntVar(&recent, "recent", 0, "Also list the N most recent analyses")
	return cmd
}

func printCounts(out io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Fprintf(out, "%s: %s\n", title, strings.Join(parts, " "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
