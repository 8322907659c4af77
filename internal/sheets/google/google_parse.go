package google

import (
	"fmt"
	"strings"

	"donations/internal/core"
	"donations/internal/sheets"
)

// amountHeaders marks the header row; anything above it is treated as a title.
var amountHeaders = []string{sheets.ColAmount, "Amount"}

// headerAliases maps English column names onto the export headers.
var headerAliases = map[string]string{
	"Name":     sheets.ColName,
	"Amount":   sheets.ColAmount,
	"Currency": sheets.ColCurrency,
	"Time":     sheets.ColTime,
	"Date":     sheets.ColDate,
}

// parseValues converts a values matrix (as returned by the Sheets API) into
// rows keyed by header.
func parseValues(values [][]interface{}) ([]sheets.Row, error) {
	grid := make([][]string, len(values))
	for i, v := range values {
		grid[i] = toStrings(v)
	}
	for i, row := range grid {
		for _, h := range amountHeaders {
			if indexOf(row, h) >= 0 {
				canonicalHeaders(row)
				return sheets.RowsFromTable(grid[i:]), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no %s column", core.ErrImportFormat, sheets.ColAmount)
}

func canonicalHeaders(row []string) {
	for alias, canon := range headerAliases {
		if i := indexOf(row, alias); i >= 0 {
			row[i] = canon
		}
	}
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
