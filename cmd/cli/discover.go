package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zolsal/price-service/internal/adapters/registry"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/types"
)

var (
	discoverKind   string
	discoverOutput string
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <chain>",
	Short: "Discover downloadable feed files on a chain's portal",
	Long: `Discover the feed files currently published on a chain's price
transparency portal. The stores feed lists branches; the price feeds carry
one store's full price list each.

Output can be formatted as a human-readable table (default) or JSON.`,
	Example: `  price-service discover shufersal
  price-service discover victory --kind prices
  price-service discover shufersal --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverKind, "kind", "all", "Feed kind: stores, prices, or all")
	discoverCmd.Flags().StringVar(&discoverOutput, "output", "table", "Output format: table or json")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	name := args[0]
	if !chains.IsValid(name) {
		return fmt.Errorf("invalid chain: %s\nValid chains: %s", name, strings.Join(chains.SlugStrings(), ", "))
	}

	kind := strings.ToLower(discoverKind)
	if kind != "stores" && kind != "prices" && kind != "all" {
		return fmt.Errorf("invalid kind: %s (use 'stores', 'prices' or 'all')", discoverKind)
	}

	reg := registry.NewRegistry(newFetcher())
	adapter, err := reg.GetOrInit(chains.Slug(name))
	if err != nil {
		return fmt.Errorf("failed to get adapter for %s: %w", name, err)
	}

	logger.Info().Str("chain", name).Msg("Starting discovery")

	ctx := context.Background()
	var files []types.DiscoveredFile

	if kind == "stores" || kind == "all" {
		storeFiles, err := adapter.ListStoreFiles(ctx)
		if err != nil {
			return fmt.Errorf("store file discovery failed: %w", err)
		}
		files = append(files, storeFiles...)
	}
	if kind == "prices" || kind == "all" {
		priceFiles, err := adapter.ListPriceFiles(ctx)
		if err != nil {
			return fmt.Errorf("price file discovery failed: %w", err)
		}
		files = append(files, priceFiles...)
	}

	logger.Info().Str("chain", name).Msgf("Found %d files", len(files))

	switch strings.ToLower(discoverOutput) {
	case "json":
		return outputDiscoverJSON(files)
	case "table":
		outputDiscoverTable(name, files)
	default:
		return fmt.Errorf("invalid output format: %s (use 'table' or 'json')", discoverOutput)
	}

	return nil
}

func outputDiscoverTable(chainName string, files []types.DiscoveredFile) {
	if len(files) == 0 {
		fmt.Printf("No files discovered for chain: %s\n", chainName)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tKIND\tURL")
	fmt.Fprintln(w, "--------\t----\t---")

	for _, f := range files {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Filename, f.Kind, f.URL)
	}

	w.Flush()
}

func outputDiscoverJSON(files []types.DiscoveredFile) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(files)
}
