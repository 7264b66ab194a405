package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDuplicateReport is returned when the reporter already has an open
// report against the same target.
var ErrDuplicateReport = errors.New("target already reported")

// ErrReportClosed is returned when moderating a resolved or dismissed
// report.
var ErrReportClosed = errors.New("report is in a terminal state")

// ErrInvalidReportTarget is returned for unknown target types.
var ErrInvalidReportTarget = errors.New("invalid report target type")

// ReportStore is the persistence surface the report service depends on.
// Satisfied by *store.Store.
type ReportStore interface {
	CreateReport(ctx context.Context, report *models.Report) error
	GetReportByID(ctx context.Context, id int64) (*models.Report, error)
	HasOpenReport(ctx context.Context, reporterID int64, targetType string, targetID int64) (bool, error)
	QueryReports(ctx context.Context, status, priority string) ([]models.Report, error)
	UpdateReport(ctx context.Context, id int64, status, adminNotes, actionTaken string) error
}

// ReportEvents publishes report events. Satisfied by *broker.EventPublisher.
type ReportEvents interface {
	PublishReportFiled(ctx context.Context, event *models.ReportFiledEvent) error
}

// ReportService handles filing and admin moderation of reports.
type ReportService struct {
	store          ReportStore
	eventPublisher ReportEvents
	logger         *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(store ReportStore, eventPublisher ReportEvents) *ReportService {
	return &ReportService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// FileReportRequest represents a report submission
type FileReportRequest struct {
	ReporterID   int64  `json:"reporter_id"`
	ReporterName string `json:"reporter_name"`
	TargetType   string `json:"target_type" binding:"required,oneof=farmer crop message"`
	TargetID     int64  `json:"target_id" binding:"required"`
	TargetName   string `json:"target_name"`
	ReportType   string `json:"report_type" binding:"required"`
	Description  string `json:"description"`
	Priority     string `json:"priority" binding:"omitempty,oneof=low medium high"`
}

// ModerateReportRequest represents an admin moderation update
type ModerateReportRequest struct {
	Status      string `json:"status" binding:"required,oneof=pending investigating resolved dismissed"`
	AdminNotes  string `json:"admin_notes"`
	ActionTaken string `json:"action_taken"`
}

// FileReport validates and persists a new report in pending status.
func (s *ReportService) FileReport(ctx context.Context, req *FileReportRequest) (*models.Report, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.FileReport")
	defer span.End()

	switch req.TargetType {
	case models.ReportTargetFarmer, models.ReportTargetCrop, models.ReportTargetMessage:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidReportTarget, req.TargetType)
	}

	open, err := s.store.HasOpenReport(ctx, req.ReporterID, req.TargetType, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing reports: %w", err)
	}
	if open {
		return nil, ErrDuplicateReport
	}

	priority := req.Priority
	if priority == "" {
		priority = models.ReportPriorityMedium
	}

	report := &models.Report{
		ReporterID:   req.ReporterID,
		ReporterName: req.ReporterName,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		TargetName:   req.TargetName,
		ReportType:   req.ReportType,
		Description:  req.Description,
		Status:       models.ReportStatusPending,
		Priority:     priority,
	}

	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to file report: %w", err)
	}

	util.ReportsFiledTotal.Inc()
	s.logger.Info("Report filed",
		zap.Int64("report_id", report.ID),
		zap.String("target_type", report.TargetType),
		zap.String("priority", report.Priority))

	event := &models.ReportFiledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReportFiled,
			Timestamp: time.Now(),
		},
		ReportID:   report.ID,
		TargetType: report.TargetType,
		Priority:   report.Priority,
	}
	if err := s.eventPublisher.PublishReportFiled(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReportFiled event", zap.Error(err))
	}

	return report, nil
}

// ListReports retrieves reports for the admin dashboard, optionally
// filtered by status and priority.
func (s *ReportService) ListReports(ctx context.Context, status, priority string) ([]models.Report, error) {
	reports, err := s.store.QueryReports(ctx, status, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// ModerateReport applies an admin update. Resolved and dismissed reports
// are terminal and reject any further action.
func (s *ReportService) ModerateReport(ctx context.Context, reportID int64, req *ModerateReportRequest) (*models.Report, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.ModerateReport")
	defer span.End()

	report, err := s.store.GetReportByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	if models.IsTerminalReportStatus(report.Status) {
		return nil, fmt.Errorf("%w: %s", ErrReportClosed, report.Status)
	}

	if err := s.store.UpdateReport(ctx, reportID, req.Status, req.AdminNotes, req.ActionTaken); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}

	util.ReportsModeratedTotal.WithLabelValues(req.Status).Inc()
	s.logger.Info("Report moderated",
		zap.Int64("report_id", reportID),
		zap.String("status", req.Status))

	report.Status = req.Status
	report.AdminNotes = req.AdminNotes
	report.ActionTaken = req.ActionTaken
	report.UpdatedAt = time.Now()
	return report, nil
}
