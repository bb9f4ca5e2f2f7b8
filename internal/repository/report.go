package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/standupbot/report-server-go/internal/model"
)

// ReportRepository scopes single-report reads and writes to their owner.
// Soft-deleted reports are invisible to every method.
type ReportRepository interface {
	Create(ctx context.Context, params model.CreateReportParams) (*model.Report, error)
	List(ctx context.Context, filter model.ReportFilter) ([]model.Report, error)
	FindForOwner(ctx context.Context, id, ownerID string) (*model.Report, error)
	LatestByOwner(ctx context.Context, ownerID string) (*model.Report, error)
	Update(ctx context.Context, id, ownerID string, params model.UpdateReportParams) (*model.Report, error)
	SoftDelete(ctx context.Context, id, ownerID string) (bool, error)
}

type reportRepo struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) ReportRepository {
	return &reportRepo{db: db}
}

func (r *reportRepo) Create(ctx context.Context, params model.CreateReportParams) (*model.Report, error) {
	var report model.Report
	err := r.db.GetContext(ctx, &report, `
		INSERT INTO reports (user_id, report_date, developer, yesterday, today, blockers)
		VALUES ($1, $2::date, $3, $4::jsonb, $5::jsonb, $6::jsonb)
		RETURNING *
	`, params.UserID, params.ReportDate, params.Developer,
		params.Yesterday, params.Today, params.Blockers)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *reportRepo) List(ctx context.Context, filter model.ReportFilter) ([]model.Report, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	reports := []model.Report{}
	err := r.db.SelectContext(ctx, &reports, `
		SELECT * FROM reports
		WHERE is_deleted = FALSE
		AND ($1::uuid IS NULL OR user_id = $1::uuid)
		AND ($2::date IS NULL OR report_date = $2::date)
		ORDER BY report_date DESC, created_at DESC
		LIMIT $3 OFFSET $4
	`, filter.OwnerID, filter.Date, limit, filter.Offset)
	return reports, err
}

func (r *reportRepo) FindForOwner(ctx context.Context, id, ownerID string) (*model.Report, error) {
	var report model.Report
	err := r.db.GetContext(ctx, &report, `
		SELECT * FROM reports
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE
	`, id, ownerID)
	return HandleNotFound(&report, err)
}

func (r *reportRepo) LatestByOwner(ctx context.Context, ownerID string) (*model.Report, error) {
	var report model.Report
	err := r.db.GetContext(ctx, &report, `
		SELECT * FROM reports
		WHERE user_id = $1 AND is_deleted = FALSE
		ORDER BY report_date DESC, created_at DESC
		LIMIT 1
	`, ownerID)
	return HandleNotFound(&report, err)
}

func (r *reportRepo) Update(ctx context.Context, id, ownerID string, params model.UpdateReportParams) (*model.Report, error) {
	var report model.Report
	err := r.db.GetContext(ctx, &report, `
		UPDATE reports SET
			report_date = COALESCE($3::date, report_date),
			developer = COALESCE($4, developer),
			yesterday = COALESCE($5::jsonb, yesterday),
			today = COALESCE($6::jsonb, today),
			blockers = COALESCE($7::jsonb, blockers),
			updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE
		RETURNING *
	`, id, ownerID, params.ReportDate, params.Developer,
		params.Yesterday, params.Today, params.Blockers)
	return HandleNotFound(&report, err)
}

func (r *reportRepo) SoftDelete(ctx context.Context, id, ownerID string) (bool, error) {
	return Touched(r.db.ExecContext(ctx, `
		UPDATE reports SET
			is_deleted = TRUE,
			deleted_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE
	`, id, ownerID))
}
