// Schema Generator
//
// Generates JSON Schema files from the Go API types so non-Go consumers
// (the web client) can generate validators against the same shapes. Go is
// the source of truth for the wire types.
//
// Usage:
//
//	go run cmd/schema-gen/main.go
//
// Output:
//
//	./schemas/products.json
//	./schemas/cart.json
//	./schemas/auth.json
//	./schemas/ingestion.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/zolsal/price-service/internal/compare"
	"github.com/zolsal/price-service/internal/handlers"
	"github.com/zolsal/price-service/internal/search"
	"github.com/zolsal/price-service/internal/types"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func main() {
	outputDir := "./schemas"

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	groups := []SchemaGroup{
		{
			Name: "products",
			Types: []any{
				// Response types
				search.Product{},
				search.PricePoint{},
				search.Stats{},
				handlers.SearchProductsResponse{},
				handlers.ChainInfo{},
				handlers.CitiesResponse{},
				handlers.ChainsResponse{},
				handlers.ErrorResponse{},
			},
			Output: "products.json",
		},
		{
			Name: "cart",
			Types: []any{
				// Request types
				handlers.CartItemRequest{},
				handlers.CompareCartRequest{},
				handlers.SaveCartRequest{},
				// Response types
				compare.ItemDetail{},
				compare.StoreResult{},
				compare.Savings{},
				compare.CartComparison{},
				handlers.SavedCartResponse{},
				handlers.ListCartsResponse{},
			},
			Output: "cart.json",
		},
		{
			Name: "auth",
			Types: []any{
				// Request types
				handlers.CredentialsRequest{},
				// Response types
				handlers.UserResponse{},
				handlers.AuthResponse{},
			},
			Output: "auth.json",
		},
		{
			Name: "ingestion",
			Types: []any{
				// Response types
				handlers.IngestStartedResponse{},
				handlers.ListRunsResponse{},
				types.ImportRun{},
				types.ImportCounters{},
			},
			Output: "ingestion.json",
		},
	}

	for _, group := range groups {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference: false,
		ExpandedStruct: false,
	}

	definitions := make(map[string]any)

	for _, t := range group.Types {
		schema := reflector.Reflect(t)

		// Get the type name from a $ref like "#/$defs/CartComparison"
		typeName := ""
		if schema.Ref != "" {
			typeName = filepath.Base(schema.Ref)
		}

		for name, def := range schema.Definitions {
			definitions[name] = def
		}

		if typeName != "" && schema.Definitions[typeName] != nil {
			definitions[typeName] = schema.Definitions[typeName]
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://github.com/zolsal/price-service/schemas/%s.json", group.Name),
		"title":       fmt.Sprintf("%s API Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s API types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
