package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zolsal/price-service/internal/adapters/registry"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/database"
	"github.com/zolsal/price-service/internal/importer"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

var (
	ingestAll   bool
	ingestLimit int
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [chain]",
	Short: "Run a full ingestion for one or all chains",
	Long: `Run the complete ingestion (discover, fetch, parse, persist) for a
supermarket chain. Branches are synced from the stores feed first, then
price files stream into batched upserts. The run is recorded in
import_runs either way.

Use --all to ingest every supported chain in one run.`,
	Example: `  price-service ingest shufersal
  price-service ingest victory --limit 5
  price-service ingest --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "Ingest all chains")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "Cap price files per chain (0 means no cap)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var slugs []chains.Slug
	if ingestAll {
		slugs = nil // importer expands to every chain
		logger.Info().Msgf("Ingesting all %d chains", len(chains.Slugs))
	} else {
		if len(args) == 0 {
			return fmt.Errorf("either specify <chain> or use --all flag")
		}
		name := args[0]
		if !chains.IsValid(name) {
			return fmt.Errorf("invalid chain: %s\nValid chains: %s", name, strings.Join(chains.SlugStrings(), ", "))
		}
		slugs = []chains.Slug{chains.Slug(name)}
	}

	st := store.New(database.Pool(), cfg.Database.UseOracle)
	fetcher := newFetcher()
	reg := registry.NewRegistry(fetcher)

	impCfg := importer.Config{
		BatchSize:    cfg.Import.BatchSize,
		FileLimit:    cfg.Import.Limit,
		Workers:      cfg.Import.Workers,
		ImproveNames: cfg.Import.NameImprove,
		ArchiveDir:   cfg.Import.ArchiveDir,
	}
	if ingestLimit > 0 {
		impCfg.FileLimit = ingestLimit
	}
	imp := importer.New(st, fetcher, reg, impCfg)

	result, err := imp.Run(ctx, slugs)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	displayIngestResult(result)

	if result.Status != types.RunStatusCompleted {
		return fmt.Errorf("run %s finished with status %s", result.RunID, result.Status)
	}
	return nil
}

func displayIngestResult(result *importer.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	fmt.Fprintln(w, "------\t-----")
	fmt.Fprintf(w, "Run ID\t%s\n", result.RunID)
	fmt.Fprintf(w, "Status\t%s\n", strings.ToUpper(result.Status))
	fmt.Fprintf(w, "Duration\t%s\n", result.Duration.Round(time.Millisecond))

	c := result.Counters
	fmt.Fprintf(w, "Files fetched\t%d\n", c.FilesFetched)
	fmt.Fprintf(w, "Files failed\t%d\n", c.FilesFailed)
	fmt.Fprintf(w, "Branches created\t%d\n", c.BranchesCreated)
	fmt.Fprintf(w, "Branches updated\t%d\n", c.BranchesUpdated)
	fmt.Fprintf(w, "Products created\t%d\n", c.ProductsCreated)
	fmt.Fprintf(w, "Products updated\t%d\n", c.ProductsUpdated)
	fmt.Fprintf(w, "Prices created\t%d\n", c.PricesCreated)
	fmt.Fprintf(w, "Prices updated\t%d\n", c.PricesUpdated)
	fmt.Fprintf(w, "Errors\t%d\n", c.Errors)

	w.Flush()
}
