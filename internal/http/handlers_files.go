package http

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"

	"donations/internal/backup"
	"donations/internal/core"
	"donations/internal/log"
	"donations/internal/sheets"
	"donations/internal/sheets/xlsx"
)

var errMissingFile = errors.New("no file uploaded")

// uploadedFile reads the "file" part of a multipart form, bounded by the
// configured upload size.
func (s *Server) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImportFormat, err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrImportFormat, errMissingFile)
	}
	return f, nil
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	f, err := s.uploadedFile(w, r)
	if err != nil {
		s.renderAdminError(w, r, err, donationForm{}, nil)
		return
	}
	defer f.Close()

	rows, err := xlsx.Read(f)
	if err != nil {
		s.renderAdminError(w, r, err, donationForm{}, nil)
		return
	}
	n, err := s.app.ImportRows(r.Context(), rows)
	s.finish(w, r, err, fmt.Sprintf("تم استيراد %s تبرع بنجاح", formatCount(n)))
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	f, err := s.uploadedFile(w, r)
	if err != nil {
		s.renderAdminError(w, r, fmt.Errorf("%w: %v", core.ErrBackupFormat, err), donationForm{}, nil)
		return
	}
	defer f.Close()

	if !IsConfirmed(r.MultipartForm.Value) {
		s.renderAdminError(w, r, core.ErrNotConfirmed, donationForm{}, nil)
		return
	}
	doc, err := backup.Decode(f)
	if err != nil {
		s.renderAdminError(w, r, err, donationForm{}, nil)
		return
	}
	err = s.app.Restore(r.Context(), doc, true)
	s.finish(w, r, err, "تم استعادة النسخة الاحتياطية بنجاح")
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	grid := s.app.ExportGrid()
	if len(grid) <= 1 {
		adminRedirect(r).Warning("لا توجد بيانات للتصدير").Write(w, r)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.Write(&buf, grid); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Export failed",
			log.FieldOperation, log.OpExport, log.FieldError, err)
		http.Error(w, "خطأ في تصدير البيانات", http.StatusInternalServerError)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Donations exported",
		log.FieldOperation, log.OpExport, log.FieldCount, len(grid)-1)

	attachment(w, sheets.ExportFileName(s.app.Now()), xlsx.ContentType)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	doc := s.app.Backup()
	var buf bytes.Buffer
	if err := backup.Encode(&buf, doc); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Backup failed", log.FieldError, err)
		http.Error(w, "خطأ في إنشاء النسخة الاحتياطية", http.StatusInternalServerError)
		return
	}
	attachment(w, backup.FileName(doc.BackupDate), "application/json")
	_, _ = buf.WriteTo(w)
}

// attachment sets download headers. Non-ASCII names are sent with the
// RFC 5987 filename* parameter.
func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="donations%s"; filename*=UTF-8''%s`, path.Ext(name), url.PathEscape(name)))
}
