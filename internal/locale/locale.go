// Package locale renders times, dates and amounts the way the donation
// screens have always shown them (Egyptian Arabic: Arabic-Indic digits,
// 12-hour clock with ص/م markers).
package locale

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Tag is the fixed display locale.
var Tag = language.MustParse("ar-EG")

var (
	toArabic = strings.NewReplacer(
		"0", "٠", "1", "١", "2", "٢", "3", "٣", "4", "٤",
		"5", "٥", "6", "٦", "7", "٧", "8", "٨", "9", "٩",
	)
	toASCII = strings.NewReplacer(
		"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
		"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
		"٫", ".",
	)
)

// ArabicDigits replaces ASCII digits with Arabic-Indic ones.
func ArabicDigits(s string) string {
	return toArabic.Replace(s)
}

// ASCIIDigits is the inverse of ArabicDigits; the Arabic decimal
// separator becomes a dot so the result can be parsed as a number.
func ASCIIDigits(s string) string {
	return toASCII.Replace(s)
}

// FormatTime returns the display time captured on a donation, e.g. "٣:٠٤:٠٥ م".
func FormatTime(t time.Time) string {
	marker := "ص"
	if t.Hour() >= 12 {
		marker = "م"
	}
	return ArabicDigits(t.Format("3:04:05")) + " " + marker
}

// FormatDate returns a day/month/year calendar date, e.g. "١٧/١٠/٢٠٢٦".
func FormatDate(t time.Time) string {
	return ArabicDigits(t.Format("2/1/2006"))
}

// FormatAmount formats an amount with locale grouping and at most two
// fractional digits.
func FormatAmount(v float64) string {
	p := message.NewPrinter(Tag)
	return p.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(2)))
}
