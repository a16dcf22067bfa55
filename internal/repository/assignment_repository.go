package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink/edulink-api/internal/models"
)

// AssignmentRepository persists assignments and student submissions.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	query := `INSERT INTO assignments (id, subject_id, title, description, attachment_url, due_date, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, assignment.ID, assignment.SubjectID, assignment.Title, assignment.Description, assignment.AttachmentURL, assignment.DueDate, assignment.CreatedBy, assignment.CreatedAt, assignment.UpdatedAt); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID returns one assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT id, subject_id, title, description, attachment_url, due_date, created_by, created_at, updated_at
FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListBySubject returns a subject's assignments, newest due date first.
func (r *AssignmentRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error) {
	query := `SELECT id, subject_id, title, description, attachment_url, due_date, created_by, created_at, updated_at
FROM assignments WHERE subject_id = $1 ORDER BY due_date DESC`
	var rows []models.Assignment
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return rows, nil
}

// UpsertSubmission stores a student's submission, overwriting any earlier one
// for the same assignment.
func (r *AssignmentRepository) UpsertSubmission(ctx context.Context, submission *models.Submission) (*models.Submission, error) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	submission.SubmittedAt = time.Now().UTC()
	query := `INSERT INTO submissions (id, assignment_id, student_id, file_url, submitted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (assignment_id, student_id)
DO UPDATE SET file_url = EXCLUDED.file_url, submitted_at = EXCLUDED.submitted_at, grade = NULL, feedback = NULL, graded_at = NULL, graded_by = NULL
RETURNING id, assignment_id, student_id, file_url, submitted_at, grade, feedback, graded_at, graded_by`
	var stored models.Submission
	if err := r.db.GetContext(ctx, &stored, query, submission.ID, submission.AssignmentID, submission.StudentID, submission.FileURL, submission.SubmittedAt); err != nil {
		return nil, fmt.Errorf("upsert submission: %w", err)
	}
	return &stored, nil
}

// GetSubmission returns one submission.
func (r *AssignmentRepository) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT id, assignment_id, student_id, file_url, submitted_at, grade, feedback, graded_at, graded_by
FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// GradeSubmission records a grade and optional feedback.
func (r *AssignmentRepository) GradeSubmission(ctx context.Context, id string, grade int, feedback *string, gradedBy string) error {
	query := `UPDATE submissions SET grade = $2, feedback = $3, graded_at = $4, graded_by = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, time.Now().UTC(), gradedBy); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}

// ListSubmissions returns every submission for an assignment with student names.
func (r *AssignmentRepository) ListSubmissions(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	query := `SELECT sub.id, sub.assignment_id, sub.student_id, sub.file_url, sub.submitted_at, sub.grade, sub.feedback, sub.graded_at, sub.graded_by,
u.full_name AS student_name
FROM submissions sub
JOIN users u ON u.id = sub.student_id
WHERE sub.assignment_id = $1
ORDER BY sub.submitted_at ASC`
	var rows []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return rows, nil
}
