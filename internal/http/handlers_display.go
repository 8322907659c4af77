package http

import (
	"net/http"

	"donations/internal/core"
)

// handleDisplay renders the public board: totals, top donors per currency
// and the latest donations.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	v := s.app.Dashboard.View(r.Context(), "")
	s.render(w, r, http.StatusOK, "display.html", displayPage{View: v, Currencies: core.Currencies})
}
