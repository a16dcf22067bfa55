package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
)

type mockAttendanceRepo struct {
	// records keyed by student|subject|date to mirror the upsert key.
	records    map[string]models.AttendanceRecord
	badStudent string
	subjects   []models.Subject
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{records: make(map[string]models.AttendanceRecord)}
}

func attendanceKey(studentID, subjectID string, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", studentID, subjectID, date.UTC().Format("2006-01-02"))
}

func (m *mockAttendanceRepo) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) ([]models.AttendanceBulkFailure, error) {
	failures := make([]models.AttendanceBulkFailure, 0)
	for _, rec := range records {
		if rec.StudentID == m.badStudent {
			failures = append(failures, models.AttendanceBulkFailure{StudentID: rec.StudentID, Reason: "foreign key violation"})
			continue
		}
		m.records[attendanceKey(rec.StudentID, rec.SubjectID, rec.Date)] = rec
	}
	return failures, nil
}

func (m *mockAttendanceRepo) ListBySubject(ctx context.Context, subjectID string) ([]models.AttendanceRecord, error) {
	out := make([]models.AttendanceRecord, 0)
	for _, rec := range m.records {
		if rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockAttendanceRepo) ListByStudentSubject(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error) {
	out := make([]models.AttendanceRecord, 0)
	for _, rec := range m.records {
		if rec.StudentID == studentID && rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockAttendanceRepo) ListStudentSubjects(ctx context.Context, studentID string) ([]models.Subject, error) {
	return m.subjects, nil
}

type mockSubjectStore struct {
	subjects map[string]models.SubjectDetail
	rosters  map[string][]models.RosterEntry
	enrolled map[string]bool
}

func (m *mockSubjectStore) GetByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	if subject, ok := m.subjects[id]; ok {
		return &subject, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectStore) Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error) {
	return m.rosters[subjectID], nil
}

func (m *mockSubjectStore) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	return m.enrolled[subjectID+"|"+studentID], nil
}

type mockOutbox struct {
	appended []models.Notification
	err      error
}

func (m *mockOutbox) Append(ctx context.Context, notifications []models.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, notifications...)
	return nil
}

func newAttendanceFixture() (*AttendanceService, *mockAttendanceRepo, *mockSubjectStore, *mockOutbox) {
	repo := newMockAttendanceRepo()
	subjects := &mockSubjectStore{
		subjects: map[string]models.SubjectDetail{
			"sub-1": {Subject: models.Subject{ID: "sub-1", Code: "MATH", Name: "Mathematics", TeacherID: "tch-1"}, TeacherName: "Ms. Smith"},
		},
		rosters: map[string][]models.RosterEntry{
			"sub-1": {
				{StudentID: "stu-1", StudentName: "Alice"},
				{StudentID: "stu-2", StudentName: "Bob"},
				{StudentID: "stu-3", StudentName: "Cara"},
			},
		},
		enrolled: map[string]bool{
			"sub-1|stu-1": true,
			"sub-1|stu-2": true,
			"sub-1|stu-3": true,
		},
	}
	outbox := &mockOutbox{}
	svc := NewAttendanceService(repo, subjects, outbox, validator.New(), zap.NewNop())
	return svc, repo, subjects, outbox
}

func day(offset int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func seedHistory(repo *mockAttendanceRepo, studentID, subjectID string, statuses []models.AttendanceStatus) {
	for i, status := range statuses {
		rec := models.AttendanceRecord{
			StudentID: studentID,
			SubjectID: subjectID,
			Date:      day(i),
			Status:    status,
			MarkedBy:  "tch-1",
		}
		repo.records[attendanceKey(studentID, subjectID, rec.Date)] = rec
	}
}

func TestSummarizePercentage(t *testing.T) {
	records := []models.AttendanceRecord{
		{Date: day(0), Status: models.AttendanceStatusPresent},
		{Date: day(1), Status: models.AttendanceStatusPresent},
		{Date: day(2), Status: models.AttendanceStatusAbsent},
	}
	summary := summarize(records, 0)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Attended)
	assert.Equal(t, 67, summary.Percentage)
}

func TestSummarizeEmptyDefaultsDivergeByCallSite(t *testing.T) {
	dashboard := summarize(nil, 0)
	assert.Equal(t, 0, dashboard.Percentage)
	assert.Equal(t, 0, dashboard.Total)
	assert.Equal(t, 0, dashboard.SafeToMiss)
	assert.Equal(t, 0, dashboard.CurrentStreak)

	report := summarize(nil, 100)
	assert.Equal(t, 100, report.Percentage)
	assert.Equal(t, 0, report.Total)
}

func TestSummarizeSafeToMissBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		attended int
		total    int
		want     int
	}{
		{"exactly at threshold", 3, 4, 0},
		{"above threshold", 9, 10, 2},
		{"below threshold", 2, 4, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := make([]models.AttendanceRecord, 0, tc.total)
			for i := 0; i < tc.attended; i++ {
				records = append(records, models.AttendanceRecord{Date: day(i), Status: models.AttendanceStatusPresent})
			}
			for i := tc.attended; i < tc.total; i++ {
				records = append(records, models.AttendanceRecord{Date: day(i), Status: models.AttendanceStatusAbsent})
			}
			summary := summarize(records, 0)
			assert.Equal(t, tc.want, summary.SafeToMiss)
		})
	}
}

func TestSummarizeCurrentStreak(t *testing.T) {
	cases := []struct {
		name     string
		statuses []models.AttendanceStatus
		want     int
	}{
		{"trailing run", []models.AttendanceStatus{models.AttendanceStatusAbsent, models.AttendanceStatusPresent, models.AttendanceStatusPresent, models.AttendanceStatusPresent}, 3},
		{"broken run", []models.AttendanceStatus{models.AttendanceStatusPresent, models.AttendanceStatusAbsent, models.AttendanceStatusPresent}, 1},
		{"all absent", []models.AttendanceStatus{models.AttendanceStatusAbsent, models.AttendanceStatusAbsent}, 0},
		{"late breaks streak", []models.AttendanceStatus{models.AttendanceStatusPresent, models.AttendanceStatusLate}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := make([]models.AttendanceRecord, len(tc.statuses))
			for i, status := range tc.statuses {
				records[i] = models.AttendanceRecord{Date: day(i), Status: status}
			}
			summary := summarize(records, 0)
			assert.Equal(t, tc.want, summary.CurrentStreak)
		})
	}
}

func TestSummarizeStreakUnsortedInput(t *testing.T) {
	// The scan is by date, not by slice position.
	records := []models.AttendanceRecord{
		{Date: day(2), Status: models.AttendanceStatusPresent},
		{Date: day(0), Status: models.AttendanceStatusAbsent},
		{Date: day(1), Status: models.AttendanceStatusPresent},
	}
	summary := summarize(records, 0)
	assert.Equal(t, 2, summary.CurrentStreak)
}

func TestSummarizeLateCountsTowardTotalOnly(t *testing.T) {
	records := []models.AttendanceRecord{
		{Date: day(0), Status: models.AttendanceStatusPresent},
		{Date: day(1), Status: models.AttendanceStatusLate},
	}
	summary := summarize(records, 0)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Attended)
	assert.Equal(t, 50, summary.Percentage)
}

func TestBulkMarkIdempotentRemarking(t *testing.T) {
	svc, repo, _, _ := newAttendanceFixture()

	req := BulkMarkRequest{
		SubjectID: "sub-1",
		Date:      "2024-03-04",
		Entries:   []BulkMarkEntry{{StudentID: "stu-1", Status: "PRESENT"}},
	}
	_, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.NoError(t, err)

	req.Entries[0].Status = "ABSENT"
	result, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	require.Len(t, repo.records, 1)
	for _, rec := range repo.records {
		assert.Equal(t, models.AttendanceStatusAbsent, rec.Status)
	}
}

func TestBulkMarkRejectsNonOwner(t *testing.T) {
	svc, repo, _, outbox := newAttendanceFixture()

	req := BulkMarkRequest{
		SubjectID: "sub-1",
		Date:      "2024-03-04",
		Entries:   []BulkMarkEntry{{StudentID: "stu-1", Status: "PRESENT"}},
	}
	_, err := svc.BulkMark(context.Background(), req, "tch-other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not own")
	assert.Empty(t, repo.records)
	assert.Empty(t, outbox.appended)
}

func TestBulkMarkUnknownSubject(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture()

	req := BulkMarkRequest{
		SubjectID: "sub-404",
		Date:      "2024-03-04",
		Entries:   []BulkMarkEntry{{StudentID: "stu-1", Status: "PRESENT"}},
	}
	_, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestBulkMarkBestEffortPartialTolerance(t *testing.T) {
	svc, repo, _, outbox := newAttendanceFixture()
	repo.badStudent = "ghost"

	req := BulkMarkRequest{
		SubjectID: "sub-1",
		Date:      "2024-03-04",
		Entries: []BulkMarkEntry{
			{StudentID: "stu-1", Status: "PRESENT"},
			{StudentID: "ghost", Status: "PRESENT"},
			{StudentID: "stu-2", Status: "LATE"},
		},
	}
	result, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Succeeded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ghost", result.Failures[0].StudentID)

	assert.Len(t, repo.records, 2)
	// Only successful entries produce notifications.
	assert.Len(t, outbox.appended, 2)
}

func TestBulkMarkValidatesStatus(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture()

	req := BulkMarkRequest{
		SubjectID: "sub-1",
		Date:      "2024-03-04",
		Entries:   []BulkMarkEntry{{StudentID: "stu-1", Status: "NAPPING"}},
	}
	_, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.Error(t, err)
}

func TestBulkMarkOutboxFailureDoesNotFailRequest(t *testing.T) {
	svc, repo, _, outbox := newAttendanceFixture()
	outbox.err = fmt.Errorf("sink unavailable")

	req := BulkMarkRequest{
		SubjectID: "sub-1",
		Date:      "2024-03-04",
		Entries:   []BulkMarkEntry{{StudentID: "stu-1", Status: "PRESENT"}},
	}
	result, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Len(t, repo.records, 1)
}

func TestBulkMarkNotificationMessage(t *testing.T) {
	svc, _, _, outbox := newAttendanceFixture()

	req := BulkMarkRequest{
		SubjectID: "sub-1",
		Date:      "2024-03-04",
		Entries:   []BulkMarkEntry{{StudentID: "stu-1", Status: "PRESENT"}},
	}
	_, err := svc.BulkMark(context.Background(), req, "tch-1")
	require.NoError(t, err)
	require.Len(t, outbox.appended, 1)
	assert.Equal(t, "stu-1", outbox.appended[0].UserID)
	assert.Contains(t, outbox.appended[0].Message, "Mathematics")
	assert.Contains(t, outbox.appended[0].Message, "04 Mar 2024")
}

func TestStudentSubjectSummary(t *testing.T) {
	svc, repo, _, _ := newAttendanceFixture()
	seedHistory(repo, "stu-1", "sub-1", []models.AttendanceStatus{
		models.AttendanceStatusPresent,
		models.AttendanceStatusPresent,
		models.AttendanceStatusAbsent,
	})

	summary, err := svc.StudentSubjectSummary(context.Background(), "sub-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", summary.SubjectName)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Attended)
	assert.Equal(t, 67, summary.Percentage)
}

func TestStudentSubjectSummaryEmptyHistoryDefaultsToZero(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture()

	summary, err := svc.StudentSubjectSummary(context.Background(), "sub-1", "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Percentage)
	assert.Equal(t, 0, summary.Total)
}

func TestStudentSubjectSummaryRequiresEnrollment(t *testing.T) {
	svc, _, subjects, _ := newAttendanceFixture()
	subjects.enrolled["sub-1|stu-1"] = false

	_, err := svc.StudentSubjectSummary(context.Background(), "sub-1", "stu-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enrolled")
}

func TestStudentAllSubjectsSummary(t *testing.T) {
	svc, repo, _, _ := newAttendanceFixture()
	repo.subjects = []models.Subject{
		{ID: "sub-1", Name: "Mathematics"},
		{ID: "sub-2", Name: "Physics"},
	}
	seedHistory(repo, "stu-1", "sub-1", []models.AttendanceStatus{models.AttendanceStatusPresent})
	seedHistory(repo, "stu-1", "sub-2", []models.AttendanceStatus{models.AttendanceStatusAbsent})

	summaries, err := svc.StudentAllSubjectsSummary(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 100, summaries[0].Percentage)
	assert.Equal(t, 0, summaries[1].Percentage)
}

func TestComprehensiveReportCompleteness(t *testing.T) {
	svc, repo, _, _ := newAttendanceFixture()
	// stu-1 and stu-2 marked on the target day; stu-3 has history only on
	// other dates.
	target := "2024-03-04"
	rec1 := models.AttendanceRecord{StudentID: "stu-1", SubjectID: "sub-1", Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusPresent}
	rec2 := models.AttendanceRecord{StudentID: "stu-2", SubjectID: "sub-1", Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusAbsent}
	repo.records[attendanceKey(rec1.StudentID, "sub-1", rec1.Date)] = rec1
	repo.records[attendanceKey(rec2.StudentID, "sub-1", rec2.Date)] = rec2
	seedHistory(repo, "stu-3", "sub-1", []models.AttendanceStatus{models.AttendanceStatusPresent, models.AttendanceStatusAbsent})

	rows, err := svc.ComprehensiveReport(context.Background(), "sub-1", target, "tch-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Roster order preserved.
	assert.Equal(t, "stu-1", rows[0].StudentID)
	assert.Equal(t, "stu-2", rows[1].StudentID)
	assert.Equal(t, "stu-3", rows[2].StudentID)

	assert.Equal(t, models.AttendanceStatusPresent, rows[0].StatusForDay)
	assert.Equal(t, models.AttendanceStatusAbsent, rows[1].StatusForDay)
	assert.Equal(t, models.AttendanceStatusNotMarked, rows[2].StatusForDay)

	assert.Equal(t, 2, rows[2].Total)
	assert.Equal(t, 1, rows[2].Attended)
	assert.Equal(t, 1, rows[2].Missed)
	assert.Equal(t, 50, rows[2].Percentage)
}

func TestComprehensiveReportEmptyHistoryDefaultsToHundred(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture()

	rows, err := svc.ComprehensiveReport(context.Background(), "sub-1", "2024-03-04", "tch-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, 100, row.Percentage)
		assert.Equal(t, models.AttendanceStatusNotMarked, row.StatusForDay)
	}
}

func TestComprehensiveReportRejectsNonOwner(t *testing.T) {
	svc, _, _, _ := newAttendanceFixture()

	_, err := svc.ComprehensiveReport(context.Background(), "sub-1", "2024-03-04", "tch-other")
	require.Error(t, err)
}

func TestAtRiskStudents(t *testing.T) {
	svc, repo, _, _ := newAttendanceFixture()
	// stu-1 sits at 90% and is safe. stu-2 is at 50% and flagged. stu-3 has
	// no records, so the report-path default of 100 keeps them out.
	statuses1 := make([]models.AttendanceStatus, 10)
	for i := range statuses1 {
		statuses1[i] = models.AttendanceStatusPresent
	}
	statuses1[9] = models.AttendanceStatusAbsent
	seedHistory(repo, "stu-1", "sub-1", statuses1)
	seedHistory(repo, "stu-2", "sub-1", []models.AttendanceStatus{
		models.AttendanceStatusPresent,
		models.AttendanceStatusAbsent,
		models.AttendanceStatusPresent,
		models.AttendanceStatusAbsent,
	})

	atRisk, err := svc.AtRiskStudents(context.Background(), "sub-1", "tch-1")
	require.NoError(t, err)
	require.Len(t, atRisk, 1)
	assert.Equal(t, "stu-2", atRisk[0].StudentID)
	assert.Equal(t, 50, atRisk[0].Percentage)
	assert.Equal(t, 0, atRisk[0].SafeToMiss)
}

func TestParseAttendanceDateNormalizesToMidnightUTC(t *testing.T) {
	date, err := parseAttendanceDate("2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), date)

	_, err = parseAttendanceDate("04-03-2024")
	require.Error(t, err)
}
