package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"donations/internal/core"
)

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
)

// Flash is a one-shot message shown at the top of the admin page.
type Flash struct {
	Type    NotificationType
	Message string
}

// flashFromQuery restores the message carried by a post/redirect/get cycle.
func flashFromQuery(q url.Values) *Flash {
	msg := q.Get("msg")
	if msg == "" {
		return nil
	}
	t := NotificationType(q.Get("kind"))
	switch t {
	case NotificationSuccess, NotificationError, NotificationWarning:
	default:
		t = NotificationSuccess
	}
	return &Flash{Type: t, Message: msg}
}

// AdminRedirect builds the 303 target after an admin form post. The
// currency filter and search text are preserved.
type AdminRedirect struct {
	flash  *Flash
	filter core.Currency
	search string
}

func RedirectAdmin(filter core.Currency) *AdminRedirect {
	return &AdminRedirect{filter: filter}
}

// Search keeps the admin search text on the redirect.
func (b *AdminRedirect) Search(q string) *AdminRedirect {
	b.search = q
	return b
}

func (b *AdminRedirect) Success(msg string) *AdminRedirect {
	b.flash = &Flash{Type: NotificationSuccess, Message: msg}
	return b
}

func (b *AdminRedirect) Warning(msg string) *AdminRedirect {
	b.flash = &Flash{Type: NotificationWarning, Message: msg}
	return b
}

// Location returns the redirect target.
func (b *AdminRedirect) Location() string {
	q := adminValues(b.filter, b.search)
	if b.flash != nil {
		q.Set("msg", b.flash.Message)
		q.Set("kind", string(b.flash.Type))
	}
	if len(q) == 0 {
		return "/admin"
	}
	return "/admin?" + q.Encode()
}

// adminQuery returns the "?currency=..&q=.." suffix that keeps the admin
// view on its filter and search, or "" for the default view.
func adminQuery(filter core.Currency, search string) string {
	q := adminValues(filter, search)
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func adminValues(filter core.Currency, search string) url.Values {
	q := url.Values{}
	if filter != "" {
		q.Set("currency", string(filter))
	}
	if search != "" {
		q.Set("q", search)
	}
	return q
}

func (b *AdminRedirect) Write(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, b.Location(), http.StatusSeeOther)
}

// errorStatus maps a domain error onto an HTTP status.
func errorStatus(err error) int {
	switch {
	case core.IsValidation(err),
		errors.Is(err, core.ErrImportFormat),
		errors.Is(err, core.ErrNoValidRows),
		errors.Is(err, core.ErrBackupFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotConfirmed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage returns the text shown to the admin for err.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidName):
		return "يرجى إدخال اسم المتبرع"
	case errors.Is(err, core.ErrInvalidAmount):
		return "يرجى إدخال مبلغ صحيح"
	case errors.Is(err, core.ErrInvalidCurrency):
		return "يرجى اختيار عملة صحيحة"
	case errors.Is(err, core.ErrInvalidRate):
		return "يرجى إدخال أسعار صرف صحيحة"
	case errors.Is(err, core.ErrNotFound):
		return "التبرع غير موجود"
	case errors.Is(err, core.ErrNotConfirmed):
		return "يرجى تأكيد العملية قبل المتابعة"
	case errors.Is(err, core.ErrNoValidRows):
		return "لم يتم العثور على تبرعات صالحة في الملف"
	case errors.Is(err, core.ErrImportFormat):
		return "خطأ في معالجة الملف"
	case errors.Is(err, core.ErrBackupFormat):
		return "ملف النسخة الاحتياطية غير صالح"
	case core.IsPersistence(err):
		return "تم تطبيق التغيير لكن تعذر حفظ البيانات"
	default:
		return "حدث خطأ غير متوقع"
	}
}

type apiError struct {
	Error string `json:"error"`
}

// writeJSON encodes v before any header goes out so that an encoding
// failure still answers 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
