package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
)

// atRiskThreshold is the attendance percentage below which a student is
// considered at risk. The safe-to-miss projection uses the same ratio.
const atRiskThreshold = 0.75

type attendanceRepository interface {
	BulkUpsert(ctx context.Context, records []models.AttendanceRecord) ([]models.AttendanceBulkFailure, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.AttendanceRecord, error)
	ListByStudentSubject(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error)
	ListStudentSubjects(ctx context.Context, studentID string) ([]models.Subject, error)
}

type subjectStore interface {
	GetByID(ctx context.Context, id string) (*models.SubjectDetail, error)
	Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error)
	IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error)
}

type notificationOutbox interface {
	Append(ctx context.Context, notifications []models.Notification) error
}

// AttendanceService coordinates attendance marking and the derived
// statistics the dashboards and reports are built from.
type AttendanceService struct {
	repo      attendanceRepository
	subjects  subjectStore
	outbox    notificationOutbox
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, subjects subjectStore, outbox notificationOutbox, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{repo: repo, subjects: subjects, outbox: outbox, validator: validate, logger: logger}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		status := models.AttendanceStatus(strings.ToUpper(fl.Field().String()))
		return status.Valid()
	})
	return svc
}

// BulkMarkEntry holds one student's status in a bulk submission.
type BulkMarkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,attendance_status"`
}

// BulkMarkRequest describes a same-day attendance batch for one subject.
type BulkMarkRequest struct {
	SubjectID string          `json:"subject_id" validate:"required"`
	Date      string          `json:"date" validate:"required"`
	Entries   []BulkMarkEntry `json:"entries" validate:"required,min=1,dive"`
}

// BulkMarkResult summarises bulk execution.
type BulkMarkResult struct {
	Processed int                            `json:"processed"`
	Succeeded int                            `json:"succeeded"`
	Failures  []models.AttendanceBulkFailure `json:"failures,omitempty"`
}

// BulkMark applies a same-day attendance batch for one subject. The caller
// must own the subject; that check happens before any write. Writes are
// best-effort per entry: an entry that cannot be written (unknown student)
// is reported in the result without blocking the rest. One outbox
// notification is appended per successful entry after the write batch, and a
// failure there never rolls the writes back.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkMarkRequest, teacherID string) (*BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	date, err := parseAttendanceDate(req.Date)
	if err != nil {
		return nil, err
	}

	subject, err := s.loadOwnedSubject(ctx, req.SubjectID, teacherID)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	records := make([]models.AttendanceRecord, len(req.Entries))
	for i, entry := range req.Entries {
		if _, ok := seen[entry.StudentID]; ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate student in payload")
		}
		seen[entry.StudentID] = struct{}{}
		records[i] = models.AttendanceRecord{
			StudentID: entry.StudentID,
			SubjectID: req.SubjectID,
			Date:      date,
			Status:    models.AttendanceStatus(strings.ToUpper(entry.Status)),
			MarkedBy:  teacherID,
		}
	}

	failures, err := s.repo.BulkUpsert(ctx, records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk mark failed")
	}

	failed := map[string]struct{}{}
	for _, failure := range failures {
		failed[failure.StudentID] = struct{}{}
	}
	notifications := make([]models.Notification, 0, len(records))
	for _, rec := range records {
		if _, ok := failed[rec.StudentID]; ok {
			continue
		}
		notifications = append(notifications, models.Notification{
			UserID:  rec.StudentID,
			Message: fmt.Sprintf("Attendance marked for %s on %s", subject.Name, date.Format("02 Jan 2006")),
			Link:    "/attendance/subjects/" + subject.ID,
		})
	}
	if s.outbox != nil && len(notifications) > 0 {
		if err := s.outbox.Append(ctx, notifications); err != nil {
			s.logger.Sugar().Warnw("failed to append attendance notifications", "subject_id", subject.ID, "error", err)
		}
	}

	return &BulkMarkResult{
		Processed: len(records),
		Succeeded: len(records) - len(failures),
		Failures:  failures,
	}, nil
}

// StudentSubjectSummary returns the derived statistics for one enrolled
// student in one subject. An empty history yields a 0 percentage on this
// path.
func (s *AttendanceService) StudentSubjectSummary(ctx context.Context, subjectID, studentID string) (*models.SubjectAttendanceSummary, error) {
	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	enrolled, err := s.subjects.IsEnrolled(ctx, subjectID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	records, err := s.repo.ListByStudentSubject(ctx, studentID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	summary := summarize(records, 0)
	summary.SubjectID = subject.ID
	summary.SubjectName = subject.Name
	return &summary, nil
}

// StudentAllSubjectsSummary returns one summary per subject the student has
// any record in.
func (s *AttendanceService) StudentAllSubjectsSummary(ctx context.Context, studentID string) ([]models.SubjectAttendanceSummary, error) {
	subjects, err := s.repo.ListStudentSubjects(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attended subjects")
	}
	summaries := make([]models.SubjectAttendanceSummary, 0, len(subjects))
	for _, subject := range subjects {
		records, err := s.repo.ListByStudentSubject(ctx, studentID, subject.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
		}
		summary := summarize(records, 0)
		summary.SubjectID = subject.ID
		summary.SubjectName = subject.Name
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ComprehensiveReport joins the subject roster with each student's all-time
// statistics and the requested day's status. Every roster member yields a
// row; students without a record that day get NOT_MARKED. On this path an
// empty history yields a 100 percentage.
func (s *AttendanceService) ComprehensiveReport(ctx context.Context, subjectID, dateStr, teacherID string) ([]models.ComprehensiveReportRow, error) {
	date, err := parseAttendanceDate(dateStr)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedSubject(ctx, subjectID, teacherID); err != nil {
		return nil, err
	}

	roster, err := s.subjects.Roster(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	records, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}

	byStudent := make(map[string][]models.AttendanceRecord)
	dayStatus := make(map[string]models.AttendanceStatus)
	for _, rec := range records {
		byStudent[rec.StudentID] = append(byStudent[rec.StudentID], rec)
		if sameDay(rec.Date, date) {
			dayStatus[rec.StudentID] = rec.Status
		}
	}

	rows := make([]models.ComprehensiveReportRow, 0, len(roster))
	for _, entry := range roster {
		summary := summarize(byStudent[entry.StudentID], 100)
		status, marked := dayStatus[entry.StudentID]
		if !marked {
			status = models.AttendanceStatusNotMarked
		}
		rows = append(rows, models.ComprehensiveReportRow{
			StudentID:    entry.StudentID,
			StudentName:  entry.StudentName,
			Attended:     summary.Attended,
			Missed:       summary.Total - summary.Attended,
			Total:        summary.Total,
			Percentage:   summary.Percentage,
			StatusForDay: status,
		})
	}
	return rows, nil
}

// AtRiskStudents returns the roster members whose attendance percentage is
// below 75.
func (s *AttendanceService) AtRiskStudents(ctx context.Context, subjectID, teacherID string) ([]models.AtRiskStudent, error) {
	if _, err := s.loadOwnedSubject(ctx, subjectID, teacherID); err != nil {
		return nil, err
	}
	roster, err := s.subjects.Roster(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	records, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}

	byStudent := make(map[string][]models.AttendanceRecord)
	for _, rec := range records {
		byStudent[rec.StudentID] = append(byStudent[rec.StudentID], rec)
	}

	atRisk := make([]models.AtRiskStudent, 0)
	for _, entry := range roster {
		summary := summarize(byStudent[entry.StudentID], 100)
		if summary.Percentage >= 75 {
			continue
		}
		atRisk = append(atRisk, models.AtRiskStudent{
			StudentID:   entry.StudentID,
			StudentName: entry.StudentName,
			Attended:    summary.Attended,
			Total:       summary.Total,
			Percentage:  summary.Percentage,
			SafeToMiss:  summary.SafeToMiss,
		})
	}
	return atRisk, nil
}

func (s *AttendanceService) loadOwnedSubject(ctx context.Context, subjectID, teacherID string) (*models.SubjectDetail, error) {
	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.TeacherID != teacherID {
		return nil, appErrors.ErrNotSubjectOwner
	}
	return subject, nil
}

// summarize folds one student's record history for one subject into the
// derived statistics. emptyPercentage is the percentage reported when the
// history is empty: 0 on the student dashboard path, 100 on the report path.
// The divergence is deliberate call-site behaviour, kept as-is.
//
// Late counts toward neither attended nor the streak; it only inflates the
// total.
func summarize(records []models.AttendanceRecord, emptyPercentage int) models.SubjectAttendanceSummary {
	total := len(records)
	if total == 0 {
		return models.SubjectAttendanceSummary{Percentage: emptyPercentage}
	}

	attended := 0
	for _, rec := range records {
		if rec.Status == models.AttendanceStatusPresent {
			attended++
		}
	}

	ratio := float64(attended) / float64(total)
	percentage := int(math.Floor(ratio*100 + 0.5))

	safeToMiss := 0
	if ratio >= atRiskThreshold {
		// Additional absences sustainable before dropping below 75%,
		// assuming every future day is missed.
		safeToMiss = int(math.Floor(float64(attended)/atRiskThreshold - float64(total)))
		if safeToMiss < 0 {
			safeToMiss = 0
		}
	}

	sorted := make([]models.AttendanceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	streak := 0
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Status != models.AttendanceStatusPresent {
			break
		}
		streak++
	}

	return models.SubjectAttendanceSummary{
		Total:         total,
		Attended:      attended,
		Percentage:    percentage,
		SafeToMiss:    safeToMiss,
		CurrentStreak: streak,
	}
}

func parseAttendanceDate(raw string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
	}
	// Midnight UTC, so every submission for the same day lands on the same
	// upsert key.
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
