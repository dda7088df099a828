package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var timetableRowColumns = []string{"id", "subject_count", "used_cells", "free_cells", "utilization", "dropped_visiting", "dropped_free", "request", "result", "generated_at"}

func TestTimetableRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WithArgs(sqlmock.AnyArg(), 2, 36, 0, 100.0, 0, 1, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tt := &models.Timetable{
		SubjectCount: 2,
		UsedCells:    36,
		Utilization:  100,
		DroppedFree:  1,
		Request:      types.JSONText(`{"subjects":["Math","Physics"]}`),
		Result:       types.JSONText(`{"id":"x"}`),
	}
	require.NoError(t, repo.Create(context.Background(), tt))
	require.NotEmpty(t, tt.ID)
	require.False(t, tt.GeneratedAt.IsZero())

	rows := sqlmock.NewRows(timetableRowColumns).
		AddRow(tt.ID, 2, 36, 0, 100.0, 0, 1, `{"subjects":["Math","Physics"]}`, `{"id":"x"}`, tt.GeneratedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE id = $1")).
		WithArgs(tt.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, tt.ID, fetched.ID)
	assert.Equal(t, 36, fetched.UsedCells)
	assert.JSONEq(t, `{"id":"x"}`, fetched.Result.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimetableRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	rows := sqlmock.NewRows(timetableRowColumns).
		AddRow("tt-2", 1, 36, 0, 100.0, 0, 0, `{}`, `{}`, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables ORDER BY generated_at DESC LIMIT 1")).
		WillReturnRows(rows)

	latest, err := repo.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tt-2", latest.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryList(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	rows := sqlmock.NewRows(timetableRowColumns).
		AddRow("tt-3", 1, 30, 2, 88.2, 0, 0, `{}`, `{}`, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables ORDER BY generated_at DESC LIMIT $1 OFFSET $2")).
		WithArgs(2, 2).
		WillReturnRows(rows)

	items, total, err := repo.List(context.Background(), models.TimetableFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "tt-3", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newSQLMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(context.Background(), "tt-404")
	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
