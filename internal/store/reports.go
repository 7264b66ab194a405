package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"marketplace-service/internal/models"
)

// CreateReport files a new report
func (s *Store) CreateReport(ctx context.Context, report *models.Report) error {
	query := `
		INSERT INTO reports (reporter_id, reporter_name, target_type, target_id,
			target_name, report_type, description, status, priority, admin_notes, action_taken)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, report, query,
		report.ReporterID, report.ReporterName, report.TargetType, report.TargetID,
		report.TargetName, report.ReportType, report.Description, report.Status,
		report.Priority, report.AdminNotes, report.ActionTaken)
}

// GetReportByID retrieves a report by ID
func (s *Store) GetReportByID(ctx context.Context, id int64) (*models.Report, error) {
	var report models.Report
	err := s.db.GetContext(ctx, &report, "SELECT * FROM reports WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// HasOpenReport reports whether the reporter already has a non-terminal
// report against the same target.
func (s *Store) HasOpenReport(ctx context.Context, reporterID int64, targetType string, targetID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM reports
			WHERE reporter_id = $1 AND target_type = $2 AND target_id = $3
			AND status IN ($4, $5))`,
		reporterID, targetType, targetID,
		models.ReportStatusPending, models.ReportStatusInvestigating)
	return exists, err
}

// QueryReports retrieves reports filtered by status and/or priority
func (s *Store) QueryReports(ctx context.Context, status, priority string) ([]models.Report, error) {
	clauses := []string{}
	args := []interface{}{}

	if status != "" {
		args = append(args, status)
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}
	if priority != "" {
		args = append(args, priority)
		clauses = append(clauses, "priority = $"+strconv.Itoa(len(args)))
	}

	query := "SELECT * FROM reports"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var reports []models.Report
	err := s.db.SelectContext(ctx, &reports, query, args...)
	return reports, err
}

// UpdateReport applies an admin moderation update
func (s *Store) UpdateReport(ctx context.Context, id int64, status, adminNotes, actionTaken string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $1, admin_notes = $2, action_taken = $3, updated_at = NOW()
		WHERE id = $4`,
		status, adminNotes, actionTaken, id)
	return err
}
