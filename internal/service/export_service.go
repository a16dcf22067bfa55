package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	"github.com/edulink/edulink-api/pkg/config"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
	"github.com/edulink/edulink-api/pkg/export"
	"github.com/edulink/edulink-api/pkg/storage"
)

type reportSource interface {
	ComprehensiveReport(ctx context.Context, subjectID, dateStr, teacherID string) ([]models.ComprehensiveReportRow, error)
}

// ExportFile is a rendered report ready to stream to the client.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders comprehensive attendance reports into downloadable
// files. Authorization comes from the underlying report: a teacher who does
// not own the subject cannot export it either. Rendered files are archived
// on disk for the configured retention window; archiving is best effort and
// never fails the download.
type ExportService struct {
	reports   reportSource
	archive   *storage.LocalStorage
	retention time.Duration
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs the export service. A nil archive disables
// on-disk copies.
func NewExportService(reports reportSource, archive *storage.LocalStorage, cfg config.ExportsConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &ExportService{
		reports:   reports,
		archive:   archive,
		retention: retention,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

var reportHeaders = []string{"Student ID", "Student Name", "Status", "Attended", "Missed", "Total", "Percentage"}

// ComprehensiveReportFile renders a subject's comprehensive report for one
// day as CSV or PDF.
func (s *ExportService) ComprehensiveReportFile(ctx context.Context, subjectID, dateStr, format, teacherID string) (*ExportFile, error) {
	rows, err := s.reports.ComprehensiveReport(ctx, subjectID, dateStr, teacherID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Headers: reportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student ID":   row.StudentID,
			"Student Name": row.StudentName,
			"Status":       string(row.StatusForDay),
			"Attended":     strconv.Itoa(row.Attended),
			"Missed":       strconv.Itoa(row.Missed),
			"Total":        strconv.Itoa(row.Total),
			"Percentage":   strconv.Itoa(row.Percentage),
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	var file *ExportFile
	switch strings.ToLower(format) {
	case "csv", "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		file = &ExportFile{
			FileName:    fmt.Sprintf("attendance-report-%s-%s.csv", dateStr, stamp),
			ContentType: "text/csv",
			Data:        data,
		}
	case "pdf":
		data, err := s.pdf.Render(dataset, fmt.Sprintf("Attendance Report %s", dateStr))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		file = &ExportFile{
			FileName:    fmt.Sprintf("attendance-report-%s-%s.pdf", dateStr, stamp),
			ContentType: "application/pdf",
			Data:        data,
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}

	s.archiveFile(file)
	return file, nil
}

// archiveFile keeps an on-disk copy of the rendered report and sweeps copies
// older than the retention window.
func (s *ExportService) archiveFile(file *ExportFile) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(file.FileName, file.Data); err != nil {
		s.logger.Sugar().Warnw("failed to archive export", "file", file.FileName, "error", err)
		return
	}
	deleted, err := s.archive.CleanupOlderThan(s.retention)
	if err != nil {
		s.logger.Sugar().Warnw("failed to sweep export archive", "error", err)
		return
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("swept expired exports", "count", len(deleted))
	}
}
