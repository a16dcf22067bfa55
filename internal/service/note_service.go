package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulink/edulink-api/internal/models"
	"github.com/edulink/edulink-api/pkg/config"
	appErrors "github.com/edulink/edulink-api/pkg/errors"
	"github.com/edulink/edulink-api/pkg/storage"
)

type noteRepository interface {
	Create(ctx context.Context, note *models.Note) error
	GetByID(ctx context.Context, id string) (*models.Note, error)
	ListBySubject(ctx context.Context, subjectID string) ([]models.Note, error)
}

// NoteUpload carries an incoming study material file.
type NoteUpload struct {
	Title    string
	FileName string
	MIMEType string
	Size     int64
	Body     io.Reader
}

// NoteDownload is a signed, short-lived download grant.
type NoteDownload struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NoteService manages study material. Bytes live on local storage; downloads
// go through signed tokens so stored paths never leak.
type NoteService struct {
	repo     noteRepository
	subjects subjectStore
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	uploads  config.UploadsConfig
	logger   *zap.Logger
}

// NewNoteService constructs the note service.
func NewNoteService(repo noteRepository, subjects subjectStore, store *storage.LocalStorage, signer *storage.SignedURLSigner, uploads config.UploadsConfig, logger *zap.Logger) *NoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteService{repo: repo, subjects: subjects, store: store, signer: signer, uploads: uploads, logger: logger}
}

// Upload stores a note for a subject the teacher owns.
func (s *NoteService) Upload(ctx context.Context, subjectID string, upload NoteUpload, teacherID string) (*models.Note, error) {
	if upload.Title == "" || upload.FileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title and file are required")
	}
	if s.uploads.MaxFileSizeBytes > 0 && upload.Size > s.uploads.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum allowed size")
	}
	if !s.mimeAllowed(upload.MIMEType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file type is not allowed")
	}

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

	noteID := uuid.NewString()
	relPath := filepath.Join("notes", subjectID, noteID+filepath.Ext(upload.FileName))
	stored, err := s.store.SaveStream(relPath, upload.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	note := &models.Note{
		ID:         noteID,
		SubjectID:  subjectID,
		Title:      upload.Title,
		FilePath:   stored,
		FileName:   upload.FileName,
		SizeBytes:  upload.Size,
		MIMEType:   upload.MIMEType,
		UploadedBy: teacherID,
	}
	if err := s.repo.Create(ctx, note); err != nil {
		// The metadata write failed; drop the orphaned file.
		if cleanupErr := s.store.Delete(stored); cleanupErr != nil {
			s.logger.Sugar().Warnw("failed to remove orphaned upload", "path", stored, "error", cleanupErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save note")
	}
	return note, nil
}

// ListBySubject returns a subject's notes for enrolled students, the owning
// teacher or an admin. The handler establishes role; enrollment is checked
// here for students.
func (s *NoteService) ListBySubject(ctx context.Context, subjectID, userID string, role models.UserRole) ([]models.Note, error) {
	subject, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.authorizeAccess(ctx, subject, userID, role); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notes")
	}
	return rows, nil
}

// DownloadGrant issues a signed token for one note's file.
func (s *NoteService) DownloadGrant(ctx context.Context, noteID, userID string, role models.UserRole) (*NoteDownload, error) {
	note, err := s.repo.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "note not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load note")
	}
	subject, err := s.subjects.GetByID(ctx, note.SubjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.authorizeAccess(ctx, subject, userID, role); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(note.ID, note.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &NoteDownload{
		Token:     token,
		URL:       fmt.Sprintf("/api/v1/notes/download?token=%s", token),
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve validates a download token and opens the backing file.
func (s *NoteService) Resolve(ctx context.Context, token string) (*models.Note, io.ReadCloser, error) {
	noteID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	note, err := s.repo.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "note not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load note")
	}
	if note.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match the stored file")
	}
	file, err := s.store.Open(note.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open stored file")
	}
	return note, file, nil
}

func (s *NoteService) authorizeAccess(ctx context.Context, subject *models.SubjectDetail, userID string, role models.UserRole) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if subject.TeacherID != userID {
			return appErrors.ErrNotSubjectOwner
		}
		return nil
	default:
		enrolled, err := s.subjects.IsEnrolled(ctx, subject.ID, userID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return appErrors.ErrNotEnrolled
		}
		return nil
	}
}

func (s *NoteService) mimeAllowed(mime string) bool {
	if len(s.uploads.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.uploads.AllowedMIMEs {
		if allowed == mime {
			return true
		}
	}
	return false
}
