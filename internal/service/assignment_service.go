package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error)
	UpsertSubmission(ctx context.Context, submission *models.Submission) (*models.Submission, error)
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	GradeSubmission(ctx context.Context, id string, grade int, feedback *string, gradedBy string) error
	ListSubmissions(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
}

// CreateAssignmentRequest is the payload for posting coursework.
type CreateAssignmentRequest struct {
	SubjectID     string  `json:"subject_id" validate:"required"`
	Title         string  `json:"title" validate:"required"`
	Description   string  `json:"description" validate:"required"`
	AttachmentURL *string `json:"attachment_url,omitempty" validate:"omitempty,url"`
	DueDate       string  `json:"due_date" validate:"required"`
}

// SubmitRequest is a student's answer upload.
type SubmitRequest struct {
	FileURL string `json:"file_url" validate:"required"`
}

// GradeRequest records a grade for a submission.
type GradeRequest struct {
	Grade    int     `json:"grade" validate:"min=0,max=100"`
	Feedback *string `json:"feedback,omitempty"`
}

// AssignmentService manages coursework and submissions. Students submit
// against open assignments; the owning teacher grades them.
type AssignmentService struct {
	repo      assignmentRepository
	subjects  subjectStore
	outbox    notificationOutbox
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(repo assignmentRepository, subjects subjectStore, outbox notificationOutbox, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, subjects: subjects, outbox: outbox, validator: validate, logger: logger}
}

// Create posts a new assignment to a subject the teacher owns, notifying the
// roster.
func (s *AssignmentService) Create(ctx context.Context, req CreateAssignmentRequest, teacherID string) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	dueDate, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid due date, expected RFC 3339")
	}

	subject, err := s.loadOwnedSubject(ctx, req.SubjectID, teacherID)
	if err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		SubjectID:     req.SubjectID,
		Title:         req.Title,
		Description:   req.Description,
		AttachmentURL: req.AttachmentURL,
		DueDate:       dueDate.UTC(),
		CreatedBy:     teacherID,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	roster, err := s.subjects.Roster(ctx, req.SubjectID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to load roster for assignment notification", "subject_id", req.SubjectID, "error", err)
		return assignment, nil
	}
	notifications := make([]models.Notification, 0, len(roster))
	for _, entry := range roster {
		notifications = append(notifications, models.Notification{
			UserID:  entry.StudentID,
			Message: fmt.Sprintf("New assignment in %s: %s", subject.Name, assignment.Title),
			Link:    "/assignments/" + assignment.ID,
		})
	}
	if s.outbox != nil && len(notifications) > 0 {
		if err := s.outbox.Append(ctx, notifications); err != nil {
			s.logger.Sugar().Warnw("failed to append assignment notifications", "assignment_id", assignment.ID, "error", err)
		}
	}
	return assignment, nil
}

// ListBySubject returns a subject's assignments for any enrolled student, the
// owning teacher, or an admin.
func (s *AssignmentService) ListBySubject(ctx context.Context, subjectID string) ([]models.Assignment, error) {
	if _, err := s.subjects.GetByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	rows, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return rows, nil
}

// Submit stores a student's answer. Re-submitting overwrites the earlier
// upload and clears any grade.
func (s *AssignmentService) Submit(ctx context.Context, assignmentID string, req SubmitRequest, studentID string) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.repo.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	enrolled, err := s.subjects.IsEnrolled(ctx, assignment.SubjectID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	submission, err := s.repo.UpsertSubmission(ctx, &models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		FileURL:      req.FileURL,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}
	return submission, nil
}

// Grade records a grade on a submission. Only the teacher owning the
// assignment's subject may grade; the student is notified.
func (s *AssignmentService) Grade(ctx context.Context, submissionID string, req GradeRequest, teacherID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	assignment, err := s.repo.GetByID(ctx, submission.AssignmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	subject, err := s.loadOwnedSubject(ctx, assignment.SubjectID, teacherID)
	if err != nil {
		return err
	}

	if err := s.repo.GradeSubmission(ctx, submissionID, req.Grade, req.Feedback, teacherID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	if s.outbox != nil {
		notification := models.Notification{
			UserID:  submission.StudentID,
			Message: fmt.Sprintf("Your submission for %s in %s was graded: %d", assignment.Title, subject.Name, req.Grade),
			Link:    "/assignments/" + assignment.ID,
		}
		if err := s.outbox.Append(ctx, []models.Notification{notification}); err != nil {
			s.logger.Sugar().Warnw("failed to append grade notification", "submission_id", submissionID, "error", err)
		}
	}
	return nil
}

// ListSubmissions returns an assignment's submissions for its owning teacher.
func (s *AssignmentService) ListSubmissions(ctx context.Context, assignmentID, teacherID string) ([]models.SubmissionDetail, error) {
	assignment, err := s.repo.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.loadOwnedSubject(ctx, assignment.SubjectID, teacherID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return rows, nil
}

func (s *AssignmentService) loadOwnedSubject(ctx context.Context, subjectID, teacherID string) (*models.SubjectDetail, error) {
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
