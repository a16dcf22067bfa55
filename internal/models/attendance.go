package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"

	// AttendanceStatusNotMarked is never persisted. It appears only in
	// per-day report rows for roster members without a record that day.
	AttendanceStatusNotMarked AttendanceStatus = "NOT_MARKED"
)

// Valid returns true when the status is a value accepted on write.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one status entry for one student, one subject, one
// calendar date. The date carries no time-of-day component; it is normalized
// to midnight UTC before it becomes part of the upsert key, so re-marking the
// same day always overwrites instead of duplicating.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SubjectID string           `db:"subject_id" json:"subject_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  string           `db:"marked_by" json:"marked_by"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// SubjectAttendanceSummary holds the derived per-subject statistics for a
// student. It is recomputed from the full record history on every request and
// never persisted or cached.
type SubjectAttendanceSummary struct {
	SubjectID     string `json:"subject_id"`
	SubjectName   string `json:"subject_name"`
	Total         int    `json:"total"`
	Attended      int    `json:"attended"`
	Percentage    int    `json:"percentage"`
	SafeToMiss    int    `json:"safe_to_miss"`
	CurrentStreak int    `json:"current_streak"`
}

// ComprehensiveReportRow combines a student's all-time statistics with the
// single requested day's status.
type ComprehensiveReportRow struct {
	StudentID    string           `json:"student_id"`
	StudentName  string           `json:"student_name"`
	Attended     int              `json:"attended"`
	Missed       int              `json:"missed"`
	Total        int              `json:"total"`
	Percentage   int              `json:"percentage"`
	StatusForDay AttendanceStatus `json:"status_for_day"`
}

// AtRiskStudent is a roster member whose attendance percentage is below the
// 75% threshold.
type AtRiskStudent struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Attended    int    `json:"attended"`
	Total       int    `json:"total"`
	Percentage  int    `json:"percentage"`
	SafeToMiss  int    `json:"safe_to_miss"`
}

// AttendanceBulkFailure captures an entry that could not be written during a
// best-effort batch.
type AttendanceBulkFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}
