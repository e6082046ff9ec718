// Package export renders cart comparisons as XLSX workbooks for download.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/zolsal/price-service/internal/compare"
)

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
)

// Comparison renders a cart comparison as a two-sheet workbook: a summary
// ranking the branches and a per-item breakdown at each branch. Money cells
// are shekels.
func Comparison(result *compare.CartComparison) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("create items sheet: %w", err)
	}

	if err := writeSummary(f, result); err != nil {
		return nil, err
	}
	if err := writeItems(f, result); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, result *compare.CartComparison) error {
	rows := [][]any{
		{"City", result.City},
		{"Cart items", result.TotalItems},
	}
	if result.CheapestStore != nil {
		rows = append(rows, []any{"Cheapest store", storeLabel(*result.CheapestStore)})
	}
	if result.Savings != nil {
		rows = append(rows, []any{
			"Potential savings (₪)",
			shekels(result.Savings.AmountAgorot),
			fmt.Sprintf("%.1f%%", result.Savings.Percent),
		})
	}
	rows = append(rows,
		[]any{},
		[]any{"Rank", "Chain", "Branch", "Address", "Available", "Missing", "Total (₪)"},
	)
	for i, store := range result.AllStores {
		rows = append(rows, []any{
			i + 1,
			chainLabel(store),
			store.BranchName,
			store.Address,
			store.AvailableItems,
			store.MissingItems,
			shekels(store.TotalAgorot),
		})
	}

	return writeRows(f, summarySheet, rows)
}

func writeItems(f *excelize.File, result *compare.CartComparison) error {
	rows := [][]any{
		{"Chain", "Branch", "Barcode", "Product", "Quantity", "Unit (₪)", "Line total (₪)", "Available"},
	}
	for _, store := range result.AllStores {
		for _, item := range store.Items {
			rows = append(rows, []any{
				chainLabel(store),
				store.BranchName,
				item.Barcode,
				item.Name,
				item.Quantity,
				shekels(item.UnitPriceAgorot),
				shekels(item.LineTotalAgorot),
				item.Available,
			})
		}
	}

	return writeRows(f, itemsSheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func chainLabel(store compare.StoreResult) string {
	if store.ChainDisplay != "" {
		return store.ChainDisplay
	}
	return store.ChainName
}

func storeLabel(store compare.StoreResult) string {
	return chainLabel(store) + " " + store.BranchName
}

func shekels(agorot int) float64 {
	return float64(agorot) / 100
}
