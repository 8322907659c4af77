package http

import (
	"bytes"
	"html/template"
	"net/http"

	"donations/internal/core"
	"donations/internal/locale"
	"donations/internal/log"
)

var currencyNames = map[core.Currency]string{
	core.USD: "دولار أمريكي",
	core.TRY: "ليرة تركية",
	core.SYP: "ليرة سورية",
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"amount": locale.FormatAmount,
		"money":  money,
		"count":  formatCount,
		"clock":  locale.FormatTime,
		"date":   locale.FormatDate,
		"currencyName": func(c core.Currency) string {
			if n, ok := currencyNames[c]; ok {
				return n
			}
			return string(c)
		},
		"top": func(v core.View, c core.Currency) []core.Donation {
			return v.Top[c]
		},
	}
}

func formatCount(n int) string {
	return locale.FormatAmount(float64(n))
}

// money formats an amount followed by its currency symbol.
func money(v float64, c core.Currency) string {
	return locale.FormatAmount(v) + " " + c.Symbol()
}

type displayPage struct {
	View       core.View
	Currencies []core.Currency
}

type adminPage struct {
	View       core.View
	Currencies []core.Currency
	Filter     core.Currency
	Search     string
	Query      string
	Flash      *Flash
	Form       donationForm
	Edit       *donationForm
}

// render executes a template into a buffer first so a failure never
// produces a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldOperation, log.OpRender, "template", name, log.FieldError, err)
		http.Error(w, "خطأ في عرض الصفحة", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
