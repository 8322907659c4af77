package http

import (
	"net/http"

	"donations/internal/core"
)

type convertResponse struct {
	Amount float64       `json:"amount"`
	From   core.Currency `json:"from"`
	To     core.Currency `json:"to"`
	Result float64       `json:"result"`
}

// handleAPIView returns the aggregated view, optionally filtered with
// ?currency= and searched with ?q=.
func (s *Server) handleAPIView(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseCurrencyFilter(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.app.Dashboard.Query(r.Context(), filter, ParseSearch(r.URL.Query())))
}

func (s *Server) handleAPIRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Rates.Get())
}

// handleAPIConvert converts ?amount= from ?from= to ?to= at the current rates.
func (s *Server) handleAPIConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := core.ParseAmount(q.Get("amount"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: core.ErrInvalidAmount.Error()})
		return
	}
	from, err := core.ParseCurrency(q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	to, err := core.ParseCurrency(q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{
		Amount: amount,
		From:   from,
		To:     to,
		Result: core.RoundAmount(core.Convert(amount, from, to, s.app.Rates.Get())),
	})
}
