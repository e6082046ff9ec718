package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zolsal/price-service/internal/adapters/registry"
	"github.com/zolsal/price-service/internal/chains"
	"github.com/zolsal/price-service/internal/ingestion/compress"
	"github.com/zolsal/price-service/internal/types"
)

var (
	parseChain  string
	parseKind   string
	parseOutput string
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse a local feed file using a chain's parser",
	Long: `Parse a local feed file using the specified chain's adapter. The file
may be the raw XML or the gzip/zip wrapper as downloaded from the portal;
compressed payloads are expanded first. The output shows parsing
statistics including record counts and skipped elements.`,
	Example: `  price-service parse ./feeds/Stores7290027600007.xml --chain shufersal --kind stores
  price-service parse ./feeds/PriceFull7290696200003-001.gz --chain victory --kind prices
  price-service parse ./feeds/prices.gz --chain shufersal --kind prices --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseChain, "chain", "", "Chain slug (required)")
	parseCmd.Flags().StringVar(&parseKind, "kind", "prices", "Feed kind: stores or prices")
	parseCmd.Flags().StringVar(&parseOutput, "output", "table", "Output format: table or json")
	parseCmd.MarkFlagRequired("chain")
}

func runParse(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	if !chains.IsValid(parseChain) {
		return fmt.Errorf("invalid chain: %s\nValid chains: %s", parseChain, strings.Join(chains.SlugStrings(), ", "))
	}
	kind := strings.ToLower(parseKind)
	if kind != "stores" && kind != "prices" {
		return fmt.Errorf("invalid kind: %s (use 'stores' or 'prices')", parseKind)
	}

	reg := registry.NewRegistry(newFetcher())
	adapter, err := reg.GetOrInit(chains.Slug(parseChain))
	if err != nil {
		return fmt.Errorf("failed to get adapter for %s: %w", parseChain, err)
	}

	logger.Info().Str("file", filePath).Msg("Reading file")
	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	content, err = compress.Expand(content)
	if err != nil {
		return fmt.Errorf("failed to expand file: %w", err)
	}

	logger.Info().Str("chain", parseChain).Str("kind", kind).Msgf("Parsing %d bytes", len(content))

	if kind == "stores" {
		result, err := adapter.ParseStores(content)
		if err != nil {
			return fmt.Errorf("parse failed: %w", err)
		}
		return outputStoreResult(result)
	}

	result, err := adapter.ParsePrices(content)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	return outputPriceResult(result)
}

func outputStoreResult(result *types.StoreParseResult) error {
	if strings.ToLower(parseOutput) == "json" {
		return outputParseJSON(result)
	}

	fmt.Printf("\nStore Parse Results\n")
	fmt.Println(strings.Repeat("-", 60))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Metric\tValue\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Total Stores\t%d\n", result.TotalStores)
	fmt.Fprintf(w, "Valid Stores\t%d\n", result.ValidStores)
	fmt.Fprintf(w, "Warnings\t%d\n", len(result.Warnings))
	w.Flush()

	displayWarnings(result.Warnings)

	if len(result.Records) > 0 {
		fmt.Printf("\nSample Stores (first %d):\n", min(len(result.Records), 5))
		fmt.Println(strings.Repeat("-", 60))
		for i, rec := range result.Records {
			if i >= 5 {
				break
			}
			fmt.Printf("%d. [%s] %s - %s, %s\n", i+1, rec.StoreID, rec.Name, rec.Address, rec.City)
		}
	}
	return nil
}

func outputPriceResult(result *types.PriceParseResult) error {
	if strings.ToLower(parseOutput) == "json" {
		return outputParseJSON(result)
	}

	fmt.Printf("\nPrice Parse Results (store %s)\n", result.StoreID)
	fmt.Println(strings.Repeat("-", 60))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Metric\tValue\n")
	fmt.Fprintf(w, "------\t-----\n")
	fmt.Fprintf(w, "Total Products\t%d\n", result.TotalProducts)
	fmt.Fprintf(w, "Valid Products\t%d\n", result.ValidProducts)
	fmt.Fprintf(w, "Warnings\t%d\n", len(result.Warnings))
	w.Flush()

	displayWarnings(result.Warnings)

	if len(result.Records) > 0 {
		fmt.Printf("\nSample Products (first %d):\n", min(len(result.Records), 5))
		fmt.Println(strings.Repeat("-", 60))
		for i, rec := range result.Records {
			if i >= 5 {
				break
			}
			fmt.Printf("%d. %s %s (%d agorot)\n", i+1, rec.Barcode, rec.Name, rec.PriceAgorot)
		}
	}
	return nil
}

func displayWarnings(warnings []types.ParseWarning) {
	if len(warnings) == 0 {
		return
	}

	fmt.Printf("\nFirst %d Warnings:\n", min(len(warnings), 10))
	fmt.Println(strings.Repeat("-", 60))
	for i, warn := range warnings {
		if i >= 10 {
			break
		}
		field := "-"
		if warn.Field != "" {
			field = warn.Field
		}
		fmt.Printf("Element %d, Field '%s': %s\n", warn.Index, field, warn.Message)
	}
	if len(warnings) > 10 {
		fmt.Printf("... and %d more warnings\n", len(warnings)-10)
	}
}

func outputParseJSON(result any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
