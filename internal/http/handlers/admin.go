package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"finlern/internal/apierror"
	"finlern/internal/pagination"
	"finlern/internal/policy"
	"finlern/internal/repo"

	"github.com/xuri/excelize/v2"
)

type enrollmentPage struct {
	Items      []repo.Enrollment `json:"items"`
	Pagination pagination.Pager  `json:"pagination"`
}

// ListEnrollments returns one page of records, newest first.
func (h *Handlers) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, policy.ActionRead, policy.ResourceEnrollments); !ok {
		return
	}
	q := r.URL.Query()
	page, size := pagination.ParseParams(q.Get("page"), q.Get("page_size"))

	list, total, err := h.store.List(r.Context(), pagination.NewPager(0, page, size))
	if err != nil {
		h.logger.Error(r.Context(), err, "list enrollments")
		apierror.UpstreamUnavailable("Enrollments are temporarily unavailable.").WriteJSON(w)
		return
	}
	if list == nil {
		list = []repo.Enrollment{}
	}
	apierror.WriteJSON(w, http.StatusOK, enrollmentPage{
		Items:      list,
		Pagination: pagination.NewPager(total, page, size),
	})
}

// ExportEnrollments downloads every record as an xlsx workbook in creation
// order. format=json answers with the paginated listing instead.
func (h *Handlers) ExportEnrollments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requirePermission(w, r, policy.ActionExport, policy.ResourceEnrollments); !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "", "xlsx":
	case "json":
		h.ListEnrollments(w, r)
		return
	default:
		apierror.InvalidSubmission("Unsupported export format.").WriteJSON(w)
		return
	}

	list, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), err, "export enrollments")
		apierror.UpstreamUnavailable("Enrollments are temporarily unavailable.").WriteJSON(w)
		return
	}

	filename := "enrollments_" + h.now().UTC().Format("20060102_150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.Header().Set("Cache-Control", "no-store")
	if err := writeEnrollmentsXLSX(w, list); err != nil {
		// headers are gone once the workbook started streaming
		h.logger.Error(r.Context(), err, "write enrollment export", "records", len(list))
		return
	}
	h.logger.Info(r.Context(), "enrollments exported", "records", len(list))
}

var exportHeaders = []string{
	"ID", "Full name", "Email", "Phone number", "Current job status",
	"Desired occupation", "Course", "Form version", "Created at (UTC)",
}

func writeEnrollmentsXLSX(w io.Writer, list []repo.Enrollment) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	for i, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for i, item := range list {
		row := []interface{}{
			item.ID,
			item.FullName,
			item.Email,
			item.PhoneNumber,
			item.CurrentJobStatus,
			item.DesiredOccupation,
			item.CourseType,
			item.FormVersion,
			formatExportTime(item.CreatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return file.Write(w)
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
