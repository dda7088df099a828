package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Timetable is a persisted generation run. Request and Result hold the API payloads as JSONB.
type Timetable struct {
	ID              string         `db:"id" json:"id"`
	SubjectCount    int            `db:"subject_count" json:"subject_count"`
	UsedCells       int            `db:"used_cells" json:"used_cells"`
	FreeCells       int            `db:"free_cells" json:"free_cells"`
	Utilization     float64        `db:"utilization" json:"utilization"`
	DroppedVisiting int            `db:"dropped_visiting" json:"dropped_visiting"`
	DroppedFree     int            `db:"dropped_free" json:"dropped_free"`
	Request         types.JSONText `db:"request" json:"request"`
	Result          types.JSONText `db:"result" json:"result"`
	GeneratedAt     time.Time      `db:"generated_at" json:"generated_at"`
}

// TimetableFilter pages through stored runs, newest first.
type TimetableFilter struct {
	Page     int
	PageSize int
}
