package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// VisitingFacultyRequest books a fixed cell for a visiting lecturer.
type VisitingFacultyRequest struct {
	Faculty string `json:"faculty" validate:"required"`
	Subject string `json:"subject" validate:"required"`
	Day     string `json:"day"`
	Slot    string `json:"slot"`
}

// GenerateTimetableRequest mirrors the subject form: parallel arrays indexed by subject.
// The per-subject arrays may be shorter than Subjects; missing entries take defaults.
type GenerateTimetableRequest struct {
	Subjects        []string                 `json:"subjects" validate:"required,min=1"`
	FacultyNames    [][]string               `json:"facultyNames"`
	HasLab          []bool                   `json:"hasLab"`
	LectureCount    []int                    `json:"lectureCount" validate:"omitempty,dive,min=1"`
	VisitingFaculty []VisitingFacultyRequest `json:"visitingFaculty" validate:"omitempty,dive"`
	FreeSlots       map[string][]string      `json:"freeSlots"`
	// Seed is for debugging and tests: it makes the run reproducible. Clients omit it.
	Seed *uint64 `json:"seed,omitempty"`
}

// ScheduleRow holds "time" plus one key per weekday.
type ScheduleRow map[string]string

// TimetableEntry is one occupied cell.
type TimetableEntry struct {
	Day      string `json:"day"`
	Slot     string `json:"slot"`
	Subject  string `json:"subject"`
	Faculty  string `json:"faculty"`
	Lab      bool   `json:"lab"`
	Visiting bool   `json:"visiting"`
}

// FacultyStatResponse is the teaching load of one faculty member.
type FacultyStatResponse struct {
	Name     string   `json:"name"`
	Lectures int      `json:"lectures"`
	Labs     int      `json:"labs"`
	Total    int      `json:"total"`
	Subjects []string `json:"subjects"`
}

// SubjectStatResponse is the load credited to one subject.
type SubjectStatResponse struct {
	Name     string `json:"name"`
	Lectures int    `json:"lectures"`
	Labs     int    `json:"labs"`
	Total    int    `json:"total"`
}

// OverallStatResponse is the grid-wide cell accounting.
type OverallStatResponse struct {
	TotalCells         int     `json:"totalCells"`
	UsedCells          int     `json:"usedCells"`
	FreeCells          int     `json:"freeCells"`
	BreakCells         int     `json:"breakCells"`
	EmptyCells         int     `json:"emptyCells"`
	Utilization        float64 `json:"utilization"`
	UtilizationDisplay string  `json:"utilizationDisplay"`
}

// TimetableStats groups the statistics of a run.
type TimetableStats struct {
	PerFaculty []FacultyStatResponse `json:"perFaculty"`
	PerSubject []SubjectStatResponse `json:"perSubject"`
	Overall    OverallStatResponse   `json:"overall"`
}

// CoverageResponse reports how far a subject's minimum demand was met.
type CoverageResponse struct {
	Subject          string `json:"subject"`
	RequiredLectures int    `json:"requiredLectures"`
	AssignedLectures int    `json:"assignedLectures"`
	LabRequired      bool   `json:"labRequired"`
	LabAssigned      bool   `json:"labAssigned"`
	Satisfied        bool   `json:"satisfied"`
}

// DroppedResponse counts requests that could not be placed.
type DroppedResponse struct {
	Visiting int `json:"visiting"`
	Free     int `json:"free"`
}

// TimetableResponse is the full result of one generation run.
type TimetableResponse struct {
	ID             string             `json:"id"`
	GeneratedAt    time.Time          `json:"generatedAt"`
	Schedule       []ScheduleRow      `json:"schedule"`
	Entries        []TimetableEntry   `json:"entries"`
	Stats          TimetableStats     `json:"stats"`
	Coverage       []CoverageResponse `json:"coverage"`
	Dropped        DroppedResponse    `json:"dropped"`
	FillIterations int                `json:"fillIterations"`
}

// TimetableSummary is the list view of a stored run.
type TimetableSummary struct {
	ID              string    `json:"id"`
	GeneratedAt     time.Time `json:"generatedAt"`
	SubjectCount    int       `json:"subjectCount"`
	UsedCells       int       `json:"usedCells"`
	FreeCells       int       `json:"freeCells"`
	Utilization     float64   `json:"utilization"`
	DroppedVisiting int       `json:"droppedVisiting"`
	DroppedFree     int       `json:"droppedFree"`
}

// TimetableListQuery pages through stored runs.
type TimetableListQuery struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"pageSize" json:"pageSize"`
}

// SlotInfo describes one row of the fixed weekly grid.
type SlotInfo struct {
	Label string `json:"label"`
	Break bool   `json:"break"`
}

// CalendarGridResponse exposes the fixed grid so clients can build the form.
type CalendarGridResponse struct {
	Days       []string   `json:"days"`
	Slots      []SlotInfo `json:"slots"`
	TotalCells int        `json:"totalCells"`
	BreakCells int        `json:"breakCells"`
}

// ExportRequest asks for a rendered copy of a stored timetable.
type ExportRequest struct {
	Format models.ExportFormat `json:"format"`
	// Layout applies to csv only: grid (default) or entries.
	Layout string `json:"layout"`
	// WeekOf anchors calendar exports, formatted YYYY-MM-DD.
	WeekOf string `json:"weekOf"`
	Weeks  int    `json:"weeks"`
}

// ExportJobResponse acknowledges a queued export.
type ExportJobResponse struct {
	ID          string              `json:"id"`
	TimetableID string              `json:"timetableId"`
	Format      models.ExportFormat `json:"format"`
	Status      models.ExportStatus `json:"status"`
	Progress    int                 `json:"progress"`
}

// ExportStatusResponse reports job progress and, once finished, the signed download URL.
type ExportStatusResponse struct {
	ID          string              `json:"id"`
	TimetableID string              `json:"timetableId"`
	Format      models.ExportFormat `json:"format"`
	Status      models.ExportStatus `json:"status"`
	Progress    int                 `json:"progress"`
	ResultURL   *string             `json:"resultUrl,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
