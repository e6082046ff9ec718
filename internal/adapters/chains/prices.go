package chains

import (
	"fmt"
	"strings"

	"github.com/zolsal/price-service/internal/parsers/xmlmap"
	"github.com/zolsal/price-service/internal/types"
)

// parsePriceDocument extracts price records from a parsed price feed. Both
// chains publish the same overall shape with different element casing and
// container names, so the lookups below cover the union of observed dialects:
// products under Product, Item or PRODUCT; barcode under ItemCode or Barcode;
// name under ItemName or ProductName; price under ItemPrice or Price (field
// lookups also tolerate case differences). A product with a non-numeric or
// non-positive price is skipped with a warning; the rest of the file imports.
func parsePriceDocument(doc xmlmap.Node, stripStoreZeros bool) (*types.PriceParseResult, error) {
	storeID := xmlmap.FindString(doc, "StoreId")
	if stripStoreZeros {
		storeID = stripLeadingZeros(storeID)
	}
	if storeID == "" {
		return nil, fmt.Errorf("price file carries no store id")
	}

	products := xmlmap.FindAll(doc, "Product", "Item", "PRODUCT")
	result := &types.PriceParseResult{
		StoreID:       storeID,
		TotalProducts: len(products),
	}

	for i, node := range products {
		barcode := xmlmap.ChildString(node, "ItemCode", "Barcode")
		if barcode == "" {
			result.Warnings = append(result.Warnings, types.ParseWarning{
				Index:   i,
				Field:   "ItemCode",
				Message: "missing barcode",
			})
			continue
		}

		rawPrice := xmlmap.ChildString(node, "ItemPrice", "Price")
		agorot, err := xmlmap.ParseAgorot(rawPrice)
		if err != nil {
			result.Warnings = append(result.Warnings, types.ParseWarning{
				Index:   i,
				Field:   "ItemPrice",
				Message: fmt.Sprintf("unparseable price %q", rawPrice),
			})
			continue
		}
		if agorot <= 0 {
			result.Warnings = append(result.Warnings, types.ParseWarning{
				Index:   i,
				Field:   "ItemPrice",
				Message: fmt.Sprintf("non-positive price %q", rawPrice),
			})
			continue
		}

		result.Records = append(result.Records, types.PriceRecord{
			StoreID:     storeID,
			Barcode:     barcode,
			Name:        xmlmap.ChildString(node, "ItemName", "ProductName"),
			PriceAgorot: agorot,
		})
	}

	result.ValidProducts = len(result.Records)
	return result, nil
}

// stripLeadingZeros normalizes a numeric store id to its decimal form, so
// "0012" and "12" resolve to the same branch. An all-zero id stays "0".
func stripLeadingZeros(s string) string {
	trimmed := strings.TrimSpace(s)
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" && trimmed != "" {
		return "0"
	}
	return stripped
}
