package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"CompetitorScanner/internal/app"
	"CompetitorScanner/internal/config"
	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	cmd := &cli.App{
		Name:  "competitorscanner",
		Usage: "turn a competitor website into searchable business entities",
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "run the full discovery/scoring/fingerprint/extraction pipeline for a URL",
				ArgsUsage: "<url>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: analyze <url>", 2)
					}
					return runAnalyze(c.Context, application, c.Args().First())
				},
			},
			{
				Name:      "search",
				Usage:     "search companies, products, signals, and releases",
				ArgsUsage: "<query>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return cli.Exit("usage: search <query>", 2)
					}
					return runSearch(c.Context, application, c.Args().First())
				},
			},
			{
				Name:  "companies",
				Usage: "list known companies",
				Action: func(c *cli.Context) error {
					return runCompanies(c.Context, application)
				},
			},
		},
	}

	if err := cmd.Run(os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func runAnalyze(ctx context.Context, application *app.Application, rawURL string) error {
	view, err := application.Analyze(ctx, rawURL)
	if err != nil {
		return err
	}

	fmt.Printf("competitor: %s\n", view.CompetitorName)
	fmt.Printf("phase:      %s\n", view.Phase)
	fmt.Printf("pages:      %d discovered, %d processed, %d extracted, %d skipped\n",
		view.Progress.PagesDiscovered, view.Progress.PagesProcessed,
		view.Progress.PagesExtracted, view.Progress.PagesSkipped)
	for entity, count := range view.Progress.EntitiesFound {
		fmt.Printf("found:      %d %s\n", count, entity)
	}
	if view.Phase == domain.PhaseError {
		fmt.Printf("error:      %s\n", view.Error)
	}
	return nil
}

func runSearch(ctx context.Context, application *app.Application, query string) error {
	results, err := application.Search(ctx, query)
	if err != nil {
		return err
	}

	printBucket("Companies", results.Companies)
	printBucket("Products", results.Products)
	printBucket("Signals", results.Signals)
	printBucket("Releases", results.Releases)
	return nil
}

func printBucket(label string, hits []domain.SearchResult) {
	if len(hits) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	for _, hit := range hits {
		line := fmt.Sprintf("  [%3d] %s", hit.Score, hit.Title)
		if hit.Subtitle != "" {
			line += " - " + hit.Subtitle
		}
		if hit.Date != nil {
			line += " (" + hit.Date.Format("2006-01-02") + ")"
		}
		fmt.Println(line)
	}
}

func runCompanies(ctx context.Context, application *app.Application) error {
	companies, err := application.Companies(ctx)
	if err != nil {
		return err
	}
	for _, company := range companies {
		fmt.Printf("%s\t%s\t%s\n", company.ID, company.Name, company.Website)
	}
	return nil
}
