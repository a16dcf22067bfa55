package models

import "time"

// Subject represents a course with one owning teacher and an enrolled roster.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectDetail enriches Subject with the owning teacher's name.
type SubjectDetail struct {
	Subject
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	TeacherID string
	StudentID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RosterEntry is one enrolled student of a subject. Roster order is the
// enrollment order and downstream reports must preserve it.
type RosterEntry struct {
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	EnrolledAt  time.Time `db:"enrolled_at" json:"enrolled_at"`
}
