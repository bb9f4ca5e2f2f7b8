package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/standupbot/report-server-go/internal/errors"
	"github.com/standupbot/report-server-go/internal/model"
	"github.com/standupbot/report-server-go/internal/repository"
	"github.com/standupbot/report-server-go/internal/util"
)

const DateLayout = "2006-01-02"

type SubmitReportInput struct {
	Date      string            `json:"date"`
	Developer *string           `json:"developer"`
	Yesterday []model.TaskInput `json:"yesterday"`
	Today     []model.TaskInput `json:"today"`
	Blockers  []model.TaskInput `json:"blockers"`
}

type UpdateReportInput struct {
	Date      *string            `json:"date"`
	Developer *string            `json:"developer"`
	Yesterday *[]model.TaskInput `json:"yesterday"`
	Today     *[]model.TaskInput `json:"today"`
	Blockers  *[]model.TaskInput `json:"blockers"`
}

type ListReportsInput struct {
	Date    string
	OwnerID string
	Limit   int
	Offset  int
}

type ReportService struct {
	reportRepo repository.ReportRepository
}

func NewReportService(reportRepo repository.ReportRepository) *ReportService {
	return &ReportService{reportRepo: reportRepo}
}

func reportNotFound() *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeNotFound, "Report not found or no access")
}

func (s *ReportService) Submit(ctx context.Context, ownerID string, in SubmitReportInput) (*model.Report, error) {
	if in.Date == "" {
		return nil, apperrors.MissingRequired("date")
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if in.Developer == nil {
		return nil, apperrors.MissingRequired("developer")
	}
	for _, l := range []struct {
		name  string
		tasks []model.TaskInput
	}{
		{"yesterday", in.Yesterday},
		{"today", in.Today},
		{"blockers", in.Blockers},
	} {
		if err := validateTasks(l.name, l.tasks); err != nil {
			return nil, err
		}
	}

	report, err := s.reportRepo.Create(ctx, model.CreateReportParams{
		UserID:     ownerID,
		ReportDate: date,
		Developer:  *in.Developer,
		Yesterday:  EnrichTasks(in.Yesterday),
		Today:      EnrichTasks(in.Today),
		Blockers:   EnrichTasks(in.Blockers),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("reportId", report.ID).
		Str("userId", ownerID).
		Str("date", in.Date).
		Msg("report submitted")

	return report, nil
}

// List returns reports of every user unless OwnerID narrows it down.
func (s *ReportService) List(ctx context.Context, in ListReportsInput) ([]model.Report, error) {
	filter := model.ReportFilter{Limit: in.Limit, Offset: in.Offset}

	if in.OwnerID != "" {
		if !util.IsValidUUID(in.OwnerID) {
			return nil, apperrors.ValidationError("Invalid owner_id format")
		}
		filter.OwnerID = &in.OwnerID
	}
	if in.Date != "" {
		date, err := parseDate(in.Date)
		if err != nil {
			return nil, err
		}
		filter.Date = &date
	}

	reports, err := s.reportRepo.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return reports, nil
}

func (s *ReportService) Get(ctx context.Context, id, ownerID string) (*model.Report, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.ValidationError("Invalid report_id format")
	}

	report, err := s.reportRepo.FindForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if report == nil {
		return nil, reportNotFound()
	}
	return report, nil
}

func (s *ReportService) Update(ctx context.Context, id, ownerID string, in UpdateReportInput) (*model.Report, error) {
	if !util.IsValidUUID(id) {
		return nil, apperrors.ValidationError("Invalid report_id format")
	}

	var params model.UpdateReportParams
	if in.Date != nil {
		date, err := parseDate(*in.Date)
		if err != nil {
			return nil, err
		}
		params.ReportDate = &date
	}
	params.Developer = in.Developer

	lists := []struct {
		name string
		in   *[]model.TaskInput
		out  **model.TaskList
	}{
		{"yesterday", in.Yesterday, &params.Yesterday},
		{"today", in.Today, &params.Today},
		{"blockers", in.Blockers, &params.Blockers},
	}
	for _, l := range lists {
		if l.in == nil {
			continue
		}
		if err := validateTasks(l.name, *l.in); err != nil {
			return nil, err
		}
		enriched := EnrichTasks(*l.in)
		*l.out = &enriched
	}

	if params.IsEmpty() {
		return nil, apperrors.ValidationError("No fields provided for update")
	}

	report, err := s.reportRepo.Update(ctx, id, ownerID, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if report == nil {
		return nil, reportNotFound()
	}

	log.Info().
		Str("reportId", id).
		Str("userId", ownerID).
		Msg("report updated")

	return report, nil
}

func (s *ReportService) Delete(ctx context.Context, id, ownerID string) error {
	if !util.IsValidUUID(id) {
		return apperrors.ValidationError("Invalid report_id format")
	}

	ok, err := s.reportRepo.SoftDelete(ctx, id, ownerID)
	if err != nil {
		return apperrors.Database(err)
	}
	if !ok {
		return reportNotFound()
	}

	log.Info().
		Str("reportId", id).
		Str("userId", ownerID).
		Msg("report deleted")

	return nil
}

// Latest returns the most recent report of the owner, or nil when there is none.
func (s *ReportService) Latest(ctx context.Context, ownerID string) (*model.Report, error) {
	report, err := s.reportRepo.LatestByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return report, nil
}

func parseDate(s string) (time.Time, error) {
	date, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("date", "expected YYYY-MM-DD")
	}
	return date, nil
}

// validateTasks points the client at the offending entry through details.
func validateTasks(list string, tasks []model.TaskInput) error {
	for i, t := range tasks {
		if !util.IsHTTPURL(t.URL) {
			return apperrors.InvalidInput("url", "must be an absolute http(s) URL").
				WithDetails(map[string]any{"list": list, "index": i})
		}
	}
	return nil
}
