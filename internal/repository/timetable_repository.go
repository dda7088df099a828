package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableColumns = `id, subject_count, used_cells, free_cells, utilization, dropped_visiting, dropped_free, request, result, generated_at`

// TimetableRepository persists generated timetables.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// Create inserts a generation run, assigning an ID and timestamp when absent.
func (r *TimetableRepository) Create(ctx context.Context, tt *models.Timetable) error {
	if tt.ID == "" {
		tt.ID = uuid.NewString()
	}
	if tt.GeneratedAt.IsZero() {
		tt.GeneratedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timetables (id, subject_count, used_cells, free_cells, utilization, dropped_visiting, dropped_free, request, result, generated_at)
VALUES (:id, :subject_count, :used_cells, :free_cells, :utilization, :dropped_visiting, :dropped_free, :request, :result, :generated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tt); err != nil {
		return fmt.Errorf("create timetable: %w", err)
	}
	return nil
}

// GetByID returns a stored run.
func (r *TimetableRepository) GetByID(ctx context.Context, id string) (*models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables WHERE id = $1`
	var tt models.Timetable
	if err := r.db.GetContext(ctx, &tt, query, id); err != nil {
		return nil, fmt.Errorf("get timetable: %w", err)
	}
	return &tt, nil
}

// Latest returns the most recently generated run.
func (r *TimetableRepository) Latest(ctx context.Context) (*models.Timetable, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetables ORDER BY generated_at DESC LIMIT 1`
	var tt models.Timetable
	if err := r.db.GetContext(ctx, &tt, query); err != nil {
		return nil, fmt.Errorf("get latest timetable: %w", err)
	}
	return &tt, nil
}

// List returns a page of runs newest first along with the total count.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM timetables`); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}

	query := `SELECT ` + timetableColumns + ` FROM timetables ORDER BY generated_at DESC LIMIT $1 OFFSET $2`
	var items []models.Timetable
	if err := r.db.SelectContext(ctx, &items, query, size, (page-1)*size); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}
	return items, total, nil
}

// Delete removes a run; export jobs cascade.
func (r *TimetableRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM timetables WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete timetable rows affected: %w", err)
	}
	return affected > 0, nil
}
