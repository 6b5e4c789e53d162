package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FridgeSeal/swarm/internal/app"
	"github.com/FridgeSeal/swarm/internal/classify"
	"github.com/FridgeSeal/swarm/internal/crawler"
	"github.com/FridgeSeal/swarm/internal/discovery"
	"github.com/FridgeSeal/swarm/internal/extract"
	"github.com/FridgeSeal/swarm/internal/fetcher"
	collyfetcher "github.com/FridgeSeal/swarm/internal/fetcher/colly"
	"github.com/FridgeSeal/swarm/internal/persist"
	"github.com/FridgeSeal/swarm/internal/policy/ratelimit"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl pass over the configured root URL",
		Long: `Discovers every page under crawler.domains[0], fetches the article pages,
extracts their records and writes them to the configured store. The run
report is printed as JSON; a failed run exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	driver, err := buildDriver(a)
	if err != nil {
		return err
	}

	report, runErr := driver.Run(cmd.Context())
	if err := printReport(cmd.OutOrStdout(), report); err != nil {
		a.Logger.Warn("print run report failed", zap.Error(err))
	}
	if runErr != nil {
		return fmt.Errorf("crawl run %s: %w", report.RunID, runErr)
	}
	a.Logger.Info("crawl finished", zap.String("run_id", report.RunID), zap.Int("written", report.Written),
		zap.Duration("duration", report.Duration()))
	return nil
}

func buildDriver(a *app.App) (*crawler.Driver, error) {
	cfg := a.Config

	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Fetch.Timeout,
	})

	opts := []fetcher.Option{
		fetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			RatePerHost: cfg.Fetch.RatePerHost,
			Burst:       cfg.Fetch.Burst,
		})),
	}
	if a.Archive != nil {
		opts = append(opts, fetcher.WithArchive(a.Archive, cfg.Archive.Prefix))
	}
	coordinator := fetcher.NewCoordinator(pages, fetcher.CoordinatorConfig{
		Concurrency: cfg.Fetch.Concurrency,
		Timeout:     cfg.Fetch.Timeout,
	}, a.Logger, opts...)

	discoverer := discovery.New(discovery.Config{
		Host:          cfg.Crawler.HostFilter,
		PathPrefix:    cfg.Crawler.PathPrefix,
		MaxDepth:      cfg.Crawler.MaxDepth,
		Parallelism:   cfg.Crawler.Parallelism,
		Delay:         cfg.Crawler.Delay,
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
	}, a.Logger)

	driver, err := crawler.NewDriver(crawler.DriverConfig{
		Domains:     cfg.Crawler.Domains,
		RunTimeout:  cfg.Crawler.RunTimeout,
		NotifyTopic: cfg.Notify.Topic,
	}, crawler.Dependencies{
		Discoverer:  discoverer,
		Classifier:  classify.New(),
		Coordinator: coordinator,
		Extractor:   extract.New(nil),
		Persister:   persist.New(a.Store, a.Logger),
		Ledger:      a.Ledger,
		Publisher:   a.Publisher,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("build crawl driver: %w", err)
	}
	return driver, nil
}

func printReport(w io.Writer, report crawler.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
