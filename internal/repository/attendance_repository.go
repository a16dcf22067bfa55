package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink/edulink-api/internal/models"
)

// AttendanceRepository persists per-day attendance records keyed on
// (student, subject, date).
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// BulkUpsert applies one batch of same-day records. Each entry is written
// independently (no wrapping transaction): a failing entry, e.g. an unknown
// student, is collected as a failure and does not block the rest of the
// batch. The ON CONFLICT target is the (student_id, subject_id, date)
// uniqueness constraint, so re-marking a day overwrites the prior status.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) ([]models.AttendanceBulkFailure, error) {
	if len(records) == 0 {
		return nil, nil
	}
	query := `INSERT INTO attendance_records (id, student_id, subject_id, date, status, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, subject_id, date)
DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	failures := make([]models.AttendanceBulkFailure, 0)
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.StudentID, rec.SubjectID, rec.Date, rec.Status, rec.MarkedBy, rec.CreatedAt, rec.UpdatedAt); err != nil {
			if ctx.Err() != nil {
				return failures, fmt.Errorf("bulk upsert attendance: %w", ctx.Err())
			}
			failures = append(failures, models.AttendanceBulkFailure{StudentID: rec.StudentID, Reason: err.Error()})
		}
	}
	return failures, nil
}

// ListBySubject returns every record for a subject ordered by date ascending.
func (r *AttendanceRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.AttendanceRecord, error) {
	query := `SELECT id, student_id, subject_id, date, status, marked_by, created_at, updated_at
FROM attendance_records
WHERE subject_id = $1
ORDER BY date ASC, student_id ASC`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("list attendance by subject: %w", err)
	}
	return rows, nil
}

// ListByStudentSubject returns a student's records in one subject ordered by
// date ascending.
func (r *AttendanceRepository) ListByStudentSubject(ctx context.Context, studentID, subjectID string) ([]models.AttendanceRecord, error) {
	query := `SELECT id, student_id, subject_id, date, status, marked_by, created_at, updated_at
FROM attendance_records
WHERE student_id = $1 AND subject_id = $2
ORDER BY date ASC`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("list attendance by student and subject: %w", err)
	}
	return rows, nil
}

// ListStudentSubjects returns the subjects a student has at least one record
// in, with subject metadata for summary rows.
func (r *AttendanceRepository) ListStudentSubjects(ctx context.Context, studentID string) ([]models.Subject, error) {
	query := `SELECT DISTINCT s.id, s.code, s.name, s.teacher_id, s.created_at, s.updated_at
FROM attendance_records ar
JOIN subjects s ON s.id = ar.subject_id
WHERE ar.student_id = $1
ORDER BY s.name ASC`
	var rows []models.Subject
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance subjects: %w", err)
	}
	return rows, nil
}
