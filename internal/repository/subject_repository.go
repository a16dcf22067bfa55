package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink/edulink-api/internal/models"
)

// SubjectRepository persists subjects and their enrollment rosters.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	query := `INSERT INTO subjects (id, code, name, teacher_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, subject.ID, subject.Code, subject.Name, subject.TeacherID, subject.CreatedAt, subject.UpdatedAt); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// GetByID returns a subject with its owning teacher's name.
func (r *SubjectRepository) GetByID(ctx context.Context, id string) (*models.SubjectDetail, error) {
	query := `SELECT s.id, s.code, s.name, s.teacher_id, s.created_at, s.updated_at, u.full_name AS teacher_name
FROM subjects s
JOIN users u ON u.id = s.teacher_id
WHERE s.id = $1`
	var subject models.SubjectDetail
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// List returns subjects filtered by teacher, enrollment or search term.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.SubjectDetail, int, error) {
	base := `FROM subjects s JOIN users u ON u.id = s.teacher_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM subject_enrollments se WHERE se.subject_id = s.id AND se.student_id = $%d)", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(s.name ILIKE $%d OR s.code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.code, s.name, s.teacher_id, s.created_at, s.updated_at, u.full_name AS teacher_name
%s WHERE %s ORDER BY s.name ASC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var rows []models.SubjectDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return rows, total, nil
}

// Enroll adds a student to the subject roster. Enrolling twice is a no-op.
func (r *SubjectRepository) Enroll(ctx context.Context, subjectID, studentID string) error {
	query := `INSERT INTO subject_enrollments (subject_id, student_id, enrolled_at)
VALUES ($1, $2, $3)
ON CONFLICT (subject_id, student_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, subjectID, studentID, time.Now().UTC()); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// Unenroll removes a student from the subject roster.
func (r *SubjectRepository) Unenroll(ctx context.Context, subjectID, studentID string) error {
	query := `DELETE FROM subject_enrollments WHERE subject_id = $1 AND student_id = $2`
	if _, err := r.db.ExecContext(ctx, query, subjectID, studentID); err != nil {
		return fmt.Errorf("unenroll student: %w", err)
	}
	return nil
}

// Roster returns the enrolled students in enrollment order.
func (r *SubjectRepository) Roster(ctx context.Context, subjectID string) ([]models.RosterEntry, error) {
	query := `SELECT se.student_id, u.full_name AS student_name, se.enrolled_at
FROM subject_enrollments se
JOIN users u ON u.id = se.student_id
WHERE se.subject_id = $1
ORDER BY se.enrolled_at ASC`
	var rows []models.RosterEntry
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("load subject roster: %w", err)
	}
	return rows, nil
}

// IsEnrolled reports whether a student belongs to the subject roster.
func (r *SubjectRepository) IsEnrolled(ctx context.Context, subjectID, studentID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM subject_enrollments WHERE subject_id = $1 AND student_id = $2)`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, subjectID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}
