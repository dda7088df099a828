package timetable

import (
	"fmt"
	"strings"
)

// BreakMarker identifies recess rows in the slot list.
const BreakMarker = "BREAK"

var weekDays = [...]string{"MON", "TUE", "WED", "THU", "FRI", "SAT"}

var timeSlots = [...]string{
	"07:30 to 8:25",
	"08:25 to 9:20",
	"BREAK (9:20 to 9:50)",
	"09:50 to 10:45",
	"10:45 to 11:40",
	"BREAK (11:40 to 11:50)",
	"11:50 to 12:45",
	"12:45 to 1:40",
}

const (
	dayCount  = len(weekDays)
	slotCount = len(timeSlots)
)

// Days returns the ordered weekday codes of the calendar grid.
func Days() []string {
	out := make([]string, dayCount)
	copy(out, weekDays[:])
	return out
}

// Slots returns the ordered slot labels, break rows included.
func Slots() []string {
	out := make([]string, slotCount)
	copy(out, timeSlots[:])
	return out
}

// IsBreak reports whether the slot label is a recess row.
func IsBreak(label string) bool {
	return strings.Contains(label, BreakMarker)
}

// TotalCells is |days| x |slots|.
func TotalCells() int {
	return dayCount * slotCount
}

// BreakCells counts the cells permanently excluded from assignment.
func BreakCells() int {
	breaks := 0
	for _, label := range timeSlots {
		if IsBreak(label) {
			breaks++
		}
	}
	return breaks * dayCount
}

// DayIndex resolves a weekday code. Lookup is case-insensitive and ignores surrounding spaces.
func DayIndex(code string) (int, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, day := range weekDays {
		if day == code {
			return i, true
		}
	}
	return 0, false
}

// SlotIndex resolves a slot label to its row position.
func SlotIndex(label string) (int, bool) {
	label = strings.TrimSpace(label)
	for i, slot := range timeSlots {
		if slot == label {
			return i, true
		}
	}
	return 0, false
}

// CellKind enumerates the states a grid cell can hold.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellBreak
	CellFree
	CellVisiting
	CellAssigned
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "EMPTY"
	case CellBreak:
		return "BREAK"
	case CellFree:
		return "FREE"
	case CellVisiting:
		return "VISITING"
	case CellAssigned:
		return "ASSIGNED"
	default:
		return fmt.Sprintf("CellKind(%d)", int(k))
	}
}

// Display placeholders used by the schedule rows.
const (
	EmptyPlaceholder = "-"
	FreeSlotLabel    = "FREE SLOT"
)

// Cell is one (day, slot) intersection.
type Cell struct {
	Kind    CellKind
	Subject string
	Faculty string
	Lab     bool
}

// String renders the cell the way the schedule rows present it.
func (c Cell) String() string {
	switch c.Kind {
	case CellBreak:
		return BreakMarker
	case CellFree:
		return FreeSlotLabel
	case CellVisiting:
		return fmt.Sprintf("%s - %s (Visiting)", c.Subject, c.Faculty)
	case CellAssigned:
		if c.Lab {
			return fmt.Sprintf("%s Lab - %s", c.Subject, c.Faculty)
		}
		return fmt.Sprintf("%s - %s", c.Subject, c.Faculty)
	default:
		return EmptyPlaceholder
	}
}

// Coord addresses a cell by day and slot index.
type Coord struct {
	Day  int
	Slot int
}

func (c Coord) valid() bool {
	return c.Day >= 0 && c.Day < dayCount && c.Slot >= 0 && c.Slot < slotCount
}

func (c Coord) String() string {
	if !c.valid() {
		return fmt.Sprintf("(%d,%d)", c.Day, c.Slot)
	}
	return weekDays[c.Day] + " " + timeSlots[c.Slot]
}

// Grid is the mutable weekly calendar built for a single generation run.
type Grid struct {
	cells [dayCount][slotCount]Cell
}

func newGrid() *Grid {
	g := &Grid{}
	for slot, label := range timeSlots {
		if !IsBreak(label) {
			continue
		}
		for day := range weekDays {
			g.cells[day][slot] = Cell{Kind: CellBreak}
		}
	}
	return g
}

// At returns the cell at the coordinate. Out-of-range coordinates are a programming error.
func (g *Grid) At(c Coord) Cell {
	if !c.valid() {
		panic(fmt.Sprintf("timetable: coordinate %s out of range", c))
	}
	return g.cells[c.Day][c.Slot]
}

// Count returns how many cells currently hold the given kind.
func (g *Grid) Count(kind CellKind) int {
	n := 0
	for day := range g.cells {
		for slot := range g.cells[day] {
			if g.cells[day][slot].Kind == kind {
				n++
			}
		}
	}
	return n
}

// set claims an empty cell. Claiming anything else means the empty index is out of sync.
func (g *Grid) set(c Coord, cell Cell) {
	current := g.At(c)
	if current.Kind != CellEmpty {
		panic(fmt.Sprintf("timetable: cell %s already %s", c, current.Kind))
	}
	g.cells[c.Day][c.Slot] = cell
}

// emptySet indexes the coordinates of currently empty cells for O(1) draws.
type emptySet struct {
	items []Coord
	pos   map[Coord]int
}

func newEmptySet(g *Grid) *emptySet {
	s := &emptySet{pos: make(map[Coord]int, TotalCells())}
	for day := range g.cells {
		for slot := range g.cells[day] {
			if g.cells[day][slot].Kind != CellEmpty {
				continue
			}
			c := Coord{Day: day, Slot: slot}
			s.pos[c] = len(s.items)
			s.items = append(s.items, c)
		}
	}
	return s
}

func (s *emptySet) Len() int {
	return len(s.items)
}

func (s *emptySet) Contains(c Coord) bool {
	_, ok := s.pos[c]
	return ok
}

func (s *emptySet) Remove(c Coord) bool {
	i, ok := s.pos[c]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	moved := s.items[last]
	s.items[i] = moved
	s.pos[moved] = i
	s.items = s.items[:last]
	delete(s.pos, c)
	return true
}

// Draw removes and returns a uniformly random coordinate.
func (s *emptySet) Draw(r Rand) (Coord, bool) {
	if len(s.items) == 0 {
		return Coord{}, false
	}
	c := s.items[r.IntN(len(s.items))]
	s.Remove(c)
	return c, true
}
