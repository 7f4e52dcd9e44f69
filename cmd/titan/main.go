package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"titan/internal/browser"
	"titan/internal/config"
	"titan/internal/crawl"
	"titan/internal/llm"
	"titan/internal/rank"
	"titan/internal/research"
	"titan/internal/scrape"
	"titan/internal/search"
	"titan/internal/store"
	"titan/internal/synthesis"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// research flags
	modeFlag       string
	focusAreas     []string
	maxResults     int
	useStealth     bool
	jsonOut        bool
	requestTimeout time.Duration

	// recall flags
	recallLimit int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "titan",
	Short: "Titan - tiered web intelligence engine",
	Long: `Titan runs tiered competitive research over the open web.

LITE answers from search results alone. RESEARCH scrapes the best hits
and synthesizes an intelligence map. DEEP crawls outward from the top
hits before synthesizing. Finished reports are stored locally and can
be recalled semantically.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run one research request",
	Long: `Runs a single research request through the selected pipeline:

  lite      search only, no scraping, no reasoning calls
  research  scrape the top ranked hits and synthesize a report
  deep      crawl outward from the top hits, then synthesize`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Recall stored reports similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecall,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "titan.yaml", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	researchCmd.Flags().StringVarP(&modeFlag, "mode", "m", "lite", "research mode: lite, research, or deep")
	researchCmd.Flags().StringSliceVarP(&focusAreas, "focus", "f", nil, "focus areas to widen the search, e.g. pricing,hiring")
	researchCmd.Flags().IntVarP(&maxResults, "max-results", "n", 0, "cap on returned results (0 uses the configured default)")
	researchCmd.Flags().BoolVar(&useStealth, "stealth", false, "scrape with the headless browser from the start")
	researchCmd.Flags().BoolVar(&jsonOut, "json", false, "print the full response as JSON")
	researchCmd.Flags().DurationVar(&requestTimeout, "timeout", 5*time.Minute, "overall request timeout")

	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 5, "number of reports to recall")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(recallCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// newClient returns the Gemini client, or nil when no API key is
// configured. Every pipeline degrades gracefully without one.
func newClient(ctx context.Context, cfg config.Config) llm.Client {
	client, err := llm.NewGeminiClient(ctx, cfg.LLM)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			logger.Warn("no API key configured, running with heuristic fallbacks")
		} else {
			logger.Warn("reasoning service unavailable", zap.Error(err))
		}
		return nil
	}
	return client
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	mode, err := research.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(requestTimeout)
	defer cancel()

	client := newClient(ctx, cfg)

	mux := search.NewMultiplexer(
		[]search.Backend{search.NewDuckDuckGo(nil)},
		cfg.Search.Timeout(),
		logger,
	)

	var renderer scrape.Renderer
	if mode != research.ModeLite {
		pool := browser.New(cfg.Browser, logger)
		defer pool.Close()
		renderer = pool
	}
	engine := scrape.NewEngine(cfg.Scrape, renderer, logger)

	var sink research.Sink
	reports, err := store.Open(cfg.Store, client, logger)
	if err != nil {
		logger.Warn("report store unavailable, persistence disabled", zap.Error(err))
	} else {
		defer reports.Close()
		sink = reports
	}

	titan := research.NewEngine(
		cfg.Research,
		mux,
		rank.New(client, logger),
		engine,
		crawl.NewTraverser(engine, crawl.NewScorer(client, cfg.Crawl, logger), cfg.Crawl, logger),
		synthesis.New(client, logger),
		sink,
		logger,
	)
	defer titan.Close()

	resp, err := titan.Execute(ctx, research.Request{
		Query:      query,
		Mode:       mode,
		FocusAreas: focusAreas,
		MaxResults: maxResults,
		UseStealth: useStealth,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(resp)
	}
	printResponse(resp)
	return nil
}

func runRecall(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(time.Minute)
	defer cancel()

	client := newClient(ctx, cfg)

	reports, err := store.Open(cfg.Store, client, logger)
	if err != nil {
		return err
	}
	defer reports.Close()

	var found []store.SimilarReport
	if client != nil {
		found, err = reports.Similar(ctx, query, recallLimit)
	} else {
		// No embedder available, fall back to the newest reports.
		found, err = reports.Recent(ctx, recallLimit)
	}
	if err != nil {
		return err
	}

	if len(found) == 0 {
		fmt.Println("No stored reports matched.")
		return nil
	}
	for _, rep := range found {
		fmt.Printf("%s  [%s]  %s\n", rep.CreatedAt.Format("2006-01-02 15:04"), rep.Mode, rep.Query)
		if rep.Map != nil {
			fmt.Printf("    %s\n", rep.Map.Summary)
		}
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResponse(resp *research.Response) {
	fmt.Printf("Mode: %s    Results: %d\n", resp.Mode, resp.Count)
	for i, hit := range resp.Results {
		fmt.Printf("%2d. [%.2f] %s\n    %s\n", i+1, hit.Score, hit.Title, hit.URL)
	}
	if len(resp.Pages) > 0 {
		fmt.Printf("\nCrawled %d pages.\n", len(resp.Pages))
	}
	if resp.IntelligenceMap != nil {
		m := resp.IntelligenceMap
		fmt.Printf("\nSummary: %s\n", m.Summary)
		for _, finding := range m.KeyFindings {
			fmt.Printf("  - %s\n", finding)
		}
		if m.PricingIntelligence != "" {
			fmt.Printf("Pricing: %s\n", m.PricingIntelligence)
		}
		if m.CompetitiveLandscape != "" {
			fmt.Printf("Landscape: %s\n", m.CompetitiveLandscape)
		}
		if m.Err != "" {
			fmt.Printf("(degraded: %s)\n", m.Err)
		}
	}
}
