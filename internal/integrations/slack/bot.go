package slackbot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"raicompanion/internal/analysis"
	"raicompanion/internal/domain"
	"raicompanion/internal/format"
	"raicompanion/internal/integrations/llm"
)

const (
	messageTextLimit = 3900 // characters of analysis text per message
	statsWindowDays  = 7
)

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error)
	Stats(window time.Duration) (domain.AnalysisStats, error)
	Options() analysis.Options
	AvailableModels() []string
}

// poster is the part of *slack.Client the command handlers use.
type poster interface {
	PostEphemeral(channelID, userID string, options ...slack.MsgOption) (string, error)
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type Bot struct {
	api      poster
	analyzer Analyzer
}

func New(api poster, analyzer Analyzer) *Bot {
	return &Bot{api: api, analyzer: analyzer}
}

// StartSlackBot connects over Socket Mode and serves slash commands until ctx
// is cancelled.
func StartSlackBot(ctx context.Context, api *slack.Client, analyzer Analyzer) error {
	client := socketmode.New(api)
	bot := New(api, analyzer)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				switch evt.Type {
				case socketmode.EventTypeConnected:
					log.Println("Slack bot connected via Socket Mode")
				case socketmode.EventTypeSlashCommand:
					client.Ack(*evt.Request)
					cmd, ok := evt.Data.(slack.SlashCommand)
					if !ok {
						continue
					}
					log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
					go bot.handleSlashCommand(ctx, cmd)
				}
			}
		}
	}()

	err := client.RunContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/analyze":
		b.handleAnalyze(ctx, cmd)
	case "/rai-stats":
		b.handleStats(cmd)
	case "/rai-help":
		b.handleHelp(cmd)
	default:
		log.Printf("slack unknown command=%s user=%s", cmd.Command, cmd.UserID)
	}
}

type analyzeArgs struct {
	Mode  string
	Model string
	Text  string
}

var modelArg = regexp.MustCompile(`^model=(\S+)$`)

// parseAnalyzeArgs reads "[quick|guided|expert] [model=<alias>] <text>". The
// optional tokens may appear in either order but only before the text.
func parseAnalyzeArgs(raw string) analyzeArgs {
	var args analyzeArgs
	rest := strings.TrimSpace(raw)
	for i := 0; i < 2; i++ {
		word, tail := rest, ""
		if idx := strings.IndexFunc(rest, unicode.IsSpace); idx >= 0 {
			word, tail = rest[:idx], rest[idx:]
		}
		lower := strings.ToLower(word)
		if _, err := domain.ParseMode(lower); err == nil && args.Mode == "" {
			args.Mode = lower
		} else if m := modelArg.FindStringSubmatch(lower); m != nil && args.Model == "" {
			args.Model = m[1]
		} else {
			break
		}
		rest = strings.TrimSpace(tail)
	}
	args.Text = rest
	return args
}

func (b *Bot) handleAnalyze(ctx context.Context, cmd slack.SlashCommand) {
	args := parseAnalyzeArgs(cmd.Text)
	if args.Text == "" {
		b.postEphemeral(cmd, "Usage: `/analyze [quick|guided|expert] [model=<alias>] <text>`")
		return
	}

	mode := args.Mode
	if mode == "" {
		mode = string(b.analyzer.Options().DefaultMode)
	}
	b.postEphemeral(cmd, fmt.Sprintf("Analyzing (mode: %s)...", mode))

	res, err := b.analyzer.Analyze(ctx, analysis.Request{
		Text:   args.Text,
		Model:  args.Model,
		Mode:   args.Mode,
		Source: "slack",
	})
	if err != nil {
		b.postEphemeral(cmd, analyzeErrorText(err))
		log.Printf("slack analyze failed user=%s: %v", cmd.UserID, err)
		return
	}

	text := fmt.Sprintf("<@%s> asked for an analysis of:\n>%s\n\n%s\n\n_%s_",
		cmd.UserID,
		truncate(strings.ReplaceAll(args.Text, "\n", "\n>"), 300),
		truncate(toMrkdwn(res.Raw), messageTextLimit),
		format.Footer(res.ModuleCount, res.PremiseCount, res.Model, string(res.Mode)),
	)
	if _, _, err := b.api.PostMessage(cmd.ChannelID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("slack post analysis error request_id=%s: %v", res.RequestID, err)
		b.postEphemeral(cmd, "The analysis finished but could not be posted to this channel.")
		return
	}
	log.Printf("slack analyze sent request_id=%s user=%s", res.RequestID, cmd.UserID)
}

func analyzeErrorText(err error) string {
	var verr *analysis.ValidationError
	if errors.As(err, &verr) {
		return "Invalid request: " + verr.Message
	}
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		switch lerr.Kind {
		case llm.KindRateLimited:
			return fmt.Sprintf("The %s API is rate limiting requests. Please try again in a minute.", lerr.Provider)
		case llm.KindUnconfigured:
			return fmt.Sprintf("No API key is configured for %s. Pick another model with `model=<alias>`.", lerr.Provider)
		case llm.KindAuthFailed:
			return fmt.Sprintf("The %s API rejected our credentials.", lerr.Provider)
		}
		return fmt.Sprintf("Analysis failed (%s: %s).", lerr.Provider, lerr.Kind)
	}
	return fmt.Sprintf("Analysis failed: %v", err)
}

func (b *Bot) handleStats(cmd slack.SlashCommand) {
	stats, err := b.analyzer.Stats(statsWindowDays * 24 * time.Hour)
	if err != nil {
		b.postEphemeral(cmd, fmt.Sprintf("Error loading stats: %v", err))
		log.Printf("rai-stats error: %v", err)
		return
	}
	b.postEphemeral(cmd, renderStats(stats))
	log.Printf("rai-stats sent user=%s", cmd.UserID)
}

func renderStats(s domain.AnalysisStats) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*RAI Analysis Stats (last %d days)*\n\n", statsWindowDays))
	sb.WriteString(fmt.Sprintf("- Analyses: %d (%d ok, %d failed)\n", s.TotalAnalyses, s.Succeeded, s.Failed))
	if s.TotalAnalyses == 0 {
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("- Avg latency: %.1fs\n", s.AvgLatencyMS/1000))
	sb.WriteString(fmt.Sprintf("- Tokens used: %d\n", s.TotalTokens))
	if s.Fallbacks > 0 {
		sb.WriteString(fmt.Sprintf("- Selection fallbacks: %d\n", s.Fallbacks))
	}
	if s.MostUsedModule != "" {
		sb.WriteString(fmt.Sprintf("- Most used module: %s\n", s.MostUsedModule))
	}
	writeCounts(&sb, "By model", s.ByModel)
	writeCounts(&sb, "By mode", s.ByMode)
	writeCounts(&sb, "By input type", s.ByCategory)
	return sb.String()
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sortByCount(keys, counts)
	sb.WriteString(fmt.Sprintf("\n*%s*\n", title))
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", k, counts[k]))
	}
}

func sortByCount(keys []string, counts map[string]int) {
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
}

func (b *Bot) handleHelp(cmd slack.SlashCommand) {
	opts := b.analyzer.Options()
	models := b.analyzer.AvailableModels()
	lines := []string{
		"*RAI Companion Commands*",
		"",
		"`/analyze [quick|guided|expert] [model=<alias>] <text>`: Run an RAI analysis on a claim, narrative or question.",
		">*Example:* `/analyze expert model=gpt-4 The elites control the media.`",
		fmt.Sprintf(">Defaults: mode `%s`, model `%s`, up to %d characters.", opts.DefaultMode, opts.DefaultModel, opts.MaxInputLength),
		"`/rai-stats`: Usage over the last 7 days.",
		"`/rai-help`: Show this help.",
	}
	if len(models) > 0 {
		lines = append(lines, "", "*Available models:* "+strings.Join(models, ", "))
	}
	b.postEphemeral(cmd, strings.Join(lines, "\n"))
}

func (b *Bot) postEphemeral(cmd slack.SlashCommand, text string) {
	if _, err := b.api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mdBold    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
)

// toMrkdwn rewrites the markdown features Slack renders differently.
func toMrkdwn(md string) string {
	out := mdBold.ReplaceAllString(md, "*$1*")
	return mdHeading.ReplaceAllString(out, "*$1*")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "… (truncated)"
}
