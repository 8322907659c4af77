// Package sheets converts donations to and from the tabular layout used by
// spreadsheet exports, independent of the file format or remote service.
package sheets

import (
	"fmt"
	"strings"
	"time"

	"donations/internal/core"
	"donations/internal/locale"
)

// Column headers of an exported sheet.
const (
	ColName     = "اسم المتبرع"
	ColAmount   = "المبلغ"
	ColCurrency = "العملة"
	ColTime     = "الوقت"
	ColDate     = "التاريخ"

	// SheetName is the tab name written to exported workbooks.
	SheetName = "التبرعات"

	// UnknownDonor replaces an empty name on import.
	UnknownDonor = "مجهول"
)

// Header is the first row of every export.
var Header = []string{ColName, ColAmount, ColCurrency, ColTime, ColDate}

// English aliases accepted on import.
var (
	nameKeys     = []string{ColName, "Name"}
	amountKeys   = []string{ColAmount, "Amount"}
	currencyKeys = []string{ColCurrency, "Currency"}
)

// Row is one data row keyed by its column header.
type Row map[string]string

// first returns the first non-empty value among keys.
func (r Row) first(keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// RowsFromTable turns a raw grid into rows, using the first line as the
// header. Lines with no content are skipped.
func RowsFromTable(table [][]string) []Row {
	if len(table) == 0 {
		return nil
	}
	headers := make([]string, len(table[0]))
	for i, h := range table[0] {
		headers[i] = strings.TrimSpace(h)
	}
	var rows []Row
	for _, line := range table[1:] {
		row := Row{}
		for i, v := range line {
			if i >= len(headers) || headers[i] == "" || strings.TrimSpace(v) == "" {
				continue
			}
			row[headers[i]] = v
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// ToDonations builds fresh records from imported rows. Rows with a missing
// or non-positive amount or an unsupported currency are skipped; an empty
// name becomes UnknownDonor and a missing currency defaults to USD.
func ToDonations(rows []Row, now time.Time) ([]core.Donation, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows", core.ErrImportFormat)
	}
	var out []core.Donation
	for _, r := range rows {
		name := r.first(nameKeys)
		if name == "" {
			name = UnknownDonor
		}
		amount, ok := parseAmountCell(r.first(amountKeys))
		if !ok {
			continue
		}
		currency := core.USD
		if raw := r.first(currencyKeys); raw != "" {
			c, err := core.ParseCurrency(raw)
			if err != nil {
				continue
			}
			currency = c
		}
		d, err := core.NewDonation(name, amount, currency, now)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, core.ErrNoValidRows
	}
	return out, nil
}

// parseAmountCell accepts plain numbers as well as values formatted with a
// thousands separator, such as "1,250.50".
func parseAmountCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := core.ParseAmount(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FromDonations renders donations as a grid headed by Header. Amounts stay
// numeric so spreadsheet tools can sum them.
func FromDonations(ds []core.Donation) [][]any {
	out := make([][]any, 0, len(ds)+1)
	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	out = append(out, head)
	for _, d := range ds {
		out = append(out, []any{d.Name, d.Amount, string(d.Currency), d.Time, locale.FormatDate(d.Date)})
	}
	return out
}

// ExportFileName names a spreadsheet export produced at now.
func ExportFileName(now time.Time) string {
	return "تبرعات_حملة_المحبة_" + now.Format("2006-01-02") + ".xlsx"
}
