package models

import "time"

// Assignment is coursework created by the subject's teacher.
type Assignment struct {
	ID            string    `db:"id" json:"id"`
	SubjectID     string    `db:"subject_id" json:"subject_id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	AttachmentURL *string   `db:"attachment_url" json:"attachment_url,omitempty"`
	DueDate       time.Time `db:"due_date" json:"due_date"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Submission is a student's answer to an assignment. One submission per
// (assignment, student); re-submitting overwrites.
type Submission struct {
	ID           string     `db:"id" json:"id"`
	AssignmentID string     `db:"assignment_id" json:"assignment_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	FileURL      string     `db:"file_url" json:"file_url"`
	SubmittedAt  time.Time  `db:"submitted_at" json:"submitted_at"`
	Grade        *int       `db:"grade" json:"grade,omitempty"`
	Feedback     *string    `db:"feedback" json:"feedback,omitempty"`
	GradedAt     *time.Time `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy     *string    `db:"graded_by" json:"graded_by,omitempty"`
}

// SubmissionDetail enriches Submission with the submitting student's name.
type SubmissionDetail struct {
	Submission
	StudentName string `db:"student_name" json:"student_name"`
}
