package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSubjectRepositoryRosterPreservesOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_name", "enrolled_at"}).
		AddRow("stu-1", "Alice", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).
		AddRow("stu-2", "Bob", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT se.student_id, u.full_name AS student_name, se.enrolled_at")).
		WithArgs("sub-1").
		WillReturnRows(rows)

	roster, err := repo.Roster(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "stu-1", roster[0].StudentID)
	require.Equal(t, "stu-2", roster[1].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryEnrollIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subject_enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Enroll(context.Background(), "sub-1", "stu-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryIsEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("sub-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	enrolled, err := repo.IsEnrolled(context.Background(), "sub-1", "stu-1")
	require.NoError(t, err)
	require.True(t, enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}
