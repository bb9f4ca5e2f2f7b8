package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/standupbot/report-server-go/internal/audit"
	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/middleware"
	"github.com/standupbot/report-server-go/internal/service"
)

type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Routes is mounted under /tasks behind the auth middleware.
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/submit", h.Submit)
	r.Get("/reports", h.List)
	r.Get("/reports/{reportID}", h.Get)
	r.Patch("/reports/{reportID}", h.Update)
	r.Delete("/reports/{reportID}", h.Delete)

	return r
}

func callerID(r *http.Request) (string, bool) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return "", false
	}
	return claims.UserID, true
}

// POST /tasks/submit
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req service.SubmitReportInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.reports.Submit(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"inserted_id": report.ID})
}

// GET /tasks/reports?date=&owner_id=&limit=&offset=
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(r); !ok {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	page, err := ParsePagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	reports, err := h.reports.List(r.Context(), service.ListReportsInput{
		Date:    q.Get("date"),
		OwnerID: q.Get("owner_id"),
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(reports))
	for _, rep := range reports {
		out = append(out, formatReport(rep))
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /tasks/reports/{reportID}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	report, err := h.reports.Get(r.Context(), chi.URLParam(r, "reportID"), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatReport(*report))
}

// PATCH /tasks/reports/{reportID}
func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req service.UpdateReportInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.reports.Update(r.Context(), chi.URLParam(r, "reportID"), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatReport(*report))
}

// DELETE /tasks/reports/{reportID}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	reportID := chi.URLParam(r, "reportID")
	if err := h.reports.Delete(r.Context(), reportID, userID); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventReportDelete,
		UserID:  userID,
		Details: map[string]interface{}{"reportId": reportID},
	})

	w.WriteHeader(http.StatusNoContent)
}
