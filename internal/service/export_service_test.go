package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	"github.com/edulink/edulink-api/pkg/config"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
	"github.com/edulink/edulink-api/pkg/storage"
)

type stubReportSource struct {
	rows []models.ComprehensiveReportRow
	err  error
}

func (s *stubReportSource) ComprehensiveReport(ctx context.Context, subjectID, dateStr, teacherID string) ([]models.ComprehensiveReportRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func TestExportComprehensiveReportCSV(t *testing.T) {
	source := &stubReportSource{rows: []models.ComprehensiveReportRow{
		{StudentID: "stu-1", StudentName: "Alice", StatusForDay: models.AttendanceStatusPresent, Attended: 9, Missed: 1, Total: 10, Percentage: 90},
		{StudentID: "stu-2", StudentName: "Bob", StatusForDay: models.AttendanceStatusNotMarked, Attended: 0, Missed: 0, Total: 0, Percentage: 100},
	}}
	svc := NewExportService(source, nil, config.ExportsConfig{}, zap.NewNop())

	file, err := svc.ComprehensiveReportFile(context.Background(), "sub-1", "2024-03-04", "csv", "tch-1")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, file.FileName, "2024-03-04")

	content := string(file.Data)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Student Name")
	assert.Contains(t, lines[1], "Alice")
	assert.Contains(t, lines[2], "NOT_MARKED")
}

func TestExportComprehensiveReportPDF(t *testing.T) {
	source := &stubReportSource{rows: []models.ComprehensiveReportRow{
		{StudentID: "stu-1", StudentName: "Alice", StatusForDay: models.AttendanceStatusPresent, Attended: 1, Total: 1, Percentage: 100},
	}}
	svc := NewExportService(source, nil, config.ExportsConfig{}, zap.NewNop())

	file, err := svc.ComprehensiveReportFile(context.Background(), "sub-1", "2024-03-04", "pdf", "tch-1")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService(&stubReportSource{}, nil, config.ExportsConfig{}, zap.NewNop())

	_, err := svc.ComprehensiveReportFile(context.Background(), "sub-1", "2024-03-04", "xlsx", "tch-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportPropagatesAuthorizationError(t *testing.T) {
	source := &stubReportSource{err: appErrors.ErrNotSubjectOwner}
	svc := NewExportService(source, nil, config.ExportsConfig{}, zap.NewNop())

	_, err := svc.ComprehensiveReportFile(context.Background(), "sub-1", "2024-03-04", "csv", "tch-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotSubjectOwner.Code, appErrors.FromError(err).Code)
}

func TestExportArchivesRenderedReports(t *testing.T) {
	dir := t.TempDir()
	archive, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	// A leftover archive from an earlier run, old enough to be swept.
	stale := filepath.Join(dir, "attendance-report-2020-01-01-20200101.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	past := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	source := &stubReportSource{rows: []models.ComprehensiveReportRow{
		{StudentID: "stu-1", StudentName: "Alice", StatusForDay: models.AttendanceStatusPresent, Attended: 1, Missed: 0, Total: 1, Percentage: 100},
	}}
	svc := NewExportService(source, archive, config.ExportsConfig{Retention: 30 * 24 * time.Hour}, zap.NewNop())

	file, err := svc.ComprehensiveReportFile(context.Background(), "sub-1", "2024-03-04", "csv", "tch-1")
	require.NoError(t, err)

	archived, err := os.ReadFile(filepath.Join(dir, file.FileName))
	require.NoError(t, err)
	assert.Equal(t, file.Data, archived)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
