package models

import "time"

// Note is study material uploaded by a subject's teacher. The stored file is
// served through short-lived signed download URLs.
type Note struct {
	ID         string    `db:"id" json:"id"`
	SubjectID  string    `db:"subject_id" json:"subject_id"`
	Title      string    `db:"title" json:"title"`
	FilePath   string    `db:"file_path" json:"-"`
	FileName   string    `db:"file_name" json:"file_name"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	MIMEType   string    `db:"mime_type" json:"mime_type"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
