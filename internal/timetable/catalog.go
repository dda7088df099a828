package timetable

import "strings"

const (
	// DefaultRequiredLectures applies when no positive lecture count is supplied.
	DefaultRequiredLectures = 2
	// PlaceholderFaculty stands in for subjects without a faculty pool.
	PlaceholderFaculty = "TBD"
)

// Subject is a normalized catalog entry consumed by the engine.
type Subject struct {
	Name             string
	FacultyPool      []string
	HasLab           bool
	RequiredLectures int
}

// NewSubject applies catalog defaults to a single subject.
func NewSubject(name string, pool []string, hasLab bool, lectures int) Subject {
	if lectures <= 0 {
		lectures = DefaultRequiredLectures
	}
	facultyPool := make([]string, len(pool))
	copy(facultyPool, pool)
	return Subject{
		Name:             strings.TrimSpace(name),
		FacultyPool:      facultyPool,
		HasLab:           hasLab,
		RequiredLectures: lectures,
	}
}

// BuildCatalog turns the parallel input arrays into subjects, skipping blank names.
// The auxiliary slices may be shorter than names; missing entries take defaults.
func BuildCatalog(names []string, facultyNames [][]string, hasLab []bool, lectureCount []int) []Subject {
	subjects := make([]Subject, 0, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		var (
			pool     []string
			lab      bool
			lectures int
		)
		if i < len(facultyNames) {
			pool = facultyNames[i]
		}
		if i < len(hasLab) {
			lab = hasLab[i]
		}
		if i < len(lectureCount) {
			lectures = lectureCount[i]
		}
		subjects = append(subjects, NewSubject(name, pool, lab, lectures))
	}
	return subjects
}

// VisitingBooking pins a visiting faculty member to a fixed cell.
type VisitingBooking struct {
	Faculty string
	Subject string
	Day     string
	Slot    string
}

// FreeSlots maps a weekday code to the slot labels that must stay free.
type FreeSlots map[string][]string
