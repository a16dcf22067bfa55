package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink/edulink-api/internal/models"
)

// NoteRepository persists study material metadata. File bytes live in storage.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository constructs the repository.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// Create inserts note metadata.
func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.CreatedAt = time.Now().UTC()
	query := `INSERT INTO notes (id, subject_id, title, file_path, file_name, size_bytes, mime_type, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query, note.ID, note.SubjectID, note.Title, note.FilePath, note.FileName, note.SizeBytes, note.MIMEType, note.UploadedBy, note.CreatedAt); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// GetByID returns one note.
func (r *NoteRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	query := `SELECT id, subject_id, title, file_path, file_name, size_bytes, mime_type, uploaded_by, created_at
FROM notes WHERE id = $1`
	var note models.Note
	if err := r.db.GetContext(ctx, &note, query, id); err != nil {
		return nil, err
	}
	return &note, nil
}

// ListBySubject returns a subject's notes, newest first.
func (r *NoteRepository) ListBySubject(ctx context.Context, subjectID string) ([]models.Note, error) {
	query := `SELECT id, subject_id, title, file_path, file_name, size_bytes, mime_type, uploaded_by, created_at
FROM notes WHERE subject_id = $1 ORDER BY created_at DESC`
	var rows []models.Note
	if err := r.db.SelectContext(ctx, &rows, query, subjectID); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return rows, nil
}
