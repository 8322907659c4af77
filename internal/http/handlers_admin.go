package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"donations/internal/core"
	"donations/internal/log"
)

// adminFilter returns the currency filter of the current admin view. An
// unknown filter falls back to all currencies.
func adminFilter(r *http.Request) core.Currency {
	c, err := ParseCurrencyFilter(r.URL.Query())
	if err != nil {
		return ""
	}
	return c
}

// adminRedirect returns a redirect back to the admin view r was posted from.
func adminRedirect(r *http.Request) *AdminRedirect {
	return RedirectAdmin(adminFilter(r)).Search(ParseSearch(r.URL.Query()))
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	flash := flashFromQuery(r.URL.Query())

	var edit *donationForm
	if id := r.URL.Query().Get("edit"); id != "" {
		if d, ok := s.app.Donations.Get(core.ID(id)); ok {
			edit = &donationForm{
				ID:       d.ID,
				Name:     d.Name,
				Amount:   strconv.FormatFloat(d.Amount, 'f', -1, 64),
				Currency: string(d.Currency),
			}
		} else {
			status = http.StatusNotFound
			flash = &Flash{Type: NotificationError, Message: errorMessage(core.ErrNotFound)}
		}
	}
	s.renderAdmin(w, r, status, flash, donationForm{Currency: string(core.USD)}, edit)
}

func (s *Server) renderAdmin(w http.ResponseWriter, r *http.Request, status int, flash *Flash, form donationForm, edit *donationForm) {
	filter := adminFilter(r)
	search := ParseSearch(r.URL.Query())
	s.render(w, r, status, "admin.html", adminPage{
		View:       s.app.Dashboard.Query(r.Context(), filter, search),
		Currencies: core.Currencies,
		Filter:     filter,
		Search:     search,
		Query:      adminQuery(filter, search),
		Flash:      flash,
		Form:       form,
		Edit:       edit,
	})
}

// renderAdminError re-renders the admin page with the error explained and
// the submitted values kept.
func (s *Server) renderAdminError(w http.ResponseWriter, r *http.Request, err error, form donationForm, edit *donationForm) {
	status := errorStatus(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Admin action failed", log.FieldPath, r.URL.Path, log.FieldError, err)
	} else {
		logger.WarnContext(r.Context(), "Admin action rejected", log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	if form.Currency == "" {
		form.Currency = string(core.USD)
	}
	s.renderAdmin(w, r, status, &Flash{Type: NotificationError, Message: errorMessage(err)}, form, edit)
}

// finish completes an admin mutation. A persistence failure is not fatal:
// the change is live in memory and the admin is warned.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, err error, success string) {
	redirect := adminRedirect(r)
	if err != nil {
		if !core.IsPersistence(err) {
			s.renderAdminError(w, r, err, donationForm{}, nil)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Change kept in memory only",
			log.FieldPath, r.URL.Path, log.FieldError, err)
		redirect.Warning(errorMessage(err)).Write(w, r)
		return
	}
	redirect.Success(success).Write(w, r)
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Parse form error", log.FieldError, err)
		http.Error(w, "صيغة الطلب غير صالحة", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleAddDonation(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	form := ParseDonationForm(r.PostForm)
	name, amount, currency, err := form.Validate()
	if err != nil {
		s.renderAdminError(w, r, err, form, nil)
		return
	}

	d, err := s.app.Donations.Add(r.Context(), name, amount, currency)
	if err != nil && !core.IsPersistence(err) {
		s.renderAdminError(w, r, err, form, nil)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogDonationChange(r.Context(), log.OpCreate, string(d.ID), d.Name, d.Amount, string(d.Currency))
	s.finish(w, r, err, fmt.Sprintf("تم إضافة تبرع %s من %s", money(d.Amount, d.Currency), d.Name))
}

func (s *Server) handleEditDonation(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	form := ParseDonationForm(r.PostForm)
	form.ID = core.ID(chi.URLParam(r, "id"))
	name, amount, currency, err := form.Validate()
	if err != nil {
		s.renderAdminError(w, r, err, donationForm{}, &form)
		return
	}

	d, err := s.app.Donations.Edit(r.Context(), form.ID, name, amount, currency)
	if err != nil && !core.IsPersistence(err) {
		s.renderAdminError(w, r, err, donationForm{}, &form)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogDonationChange(r.Context(), log.OpUpdate, string(d.ID), d.Name, d.Amount, string(d.Currency))
	s.finish(w, r, err, "تم تعديل التبرع بنجاح")
}

func (s *Server) handleDeleteDonation(w http.ResponseWriter, r *http.Request) {
	id := core.ID(chi.URLParam(r, "id"))
	removed, err := s.app.Donations.Delete(r.Context(), id)
	if err == nil && !removed {
		err = core.ErrNotFound
	}
	s.finish(w, r, err, "تم حذف التبرع بنجاح")
}

func (s *Server) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	s.app.ToggleSelection(r.Context(), core.ID(chi.URLParam(r, "id")))
	adminRedirect(r).Write(w, r)
}

func (s *Server) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	n := s.app.SelectAll(r.Context(), adminFilter(r), ParseSearch(r.URL.Query()))
	adminRedirect(r).Success(fmt.Sprintf("تم تحديد %s تبرع", formatCount(n))).Write(w, r)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	s.app.ClearSelection(r.Context())
	adminRedirect(r).Success("تم إلغاء التحديد").Write(w, r)
}

func (s *Server) handleDeleteSelected(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	n, err := s.app.DeleteSelected(r.Context(), IsConfirmed(r.PostForm))
	if err == nil && n == 0 {
		adminRedirect(r).Warning("لم تقم بتحديد أي تبرعات").Write(w, r)
		return
	}
	s.finish(w, r, err, fmt.Sprintf("تم حذف %s تبرع", formatCount(n)))
}

func (s *Server) handleSaveRates(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}
	rates, err := ParseRatesForm(r.PostForm)
	if err == nil {
		err = s.app.Rates.Set(r.Context(), rates)
	}
	s.finish(w, r, err, "تم حفظ أسعار الصرف بنجاح")
}
