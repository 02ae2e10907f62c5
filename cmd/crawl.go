package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured site into the raw corpus directory",
		Long: `Walks the configured start URL breadth-first, honoring robots.txt, the
allowed domains and the page and depth budgets. Each page is saved as a text
file alongside all_data.json, the crawl dump and the list of discovered URLs.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	engine, err := appInstance.CrawlEngine()
	if err != nil {
		return err
	}

	result, err := engine.Run(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Crawl finished: %d pages saved, %d failed, %d blocked, %d documents, %d URLs discovered\n",
		result.Stats.Pages, result.Stats.Failed, result.Stats.Blocked, result.Stats.Documents, len(result.Discovered))
	return nil
}
