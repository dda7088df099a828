package timetable

import (
	"math/rand/v2"
	"sort"
	"sync"
)

// FillIterationCap bounds the fill-remaining-cells loop.
const FillIterationCap = 100

// Rand supplies uniform draws in [0, n). Shared sources must be safe for concurrent use.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.IntN(n)
}

type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.IntN(n)
}

// NewSeededRand returns a reproducible, mutex-guarded source.
func NewSeededRand(seed uint64) Rand {
	return &lockedRand{src: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Engine fills the weekly grid. A single Engine may serve concurrent Generate calls.
type Engine struct {
	rand    Rand
	fillCap int
}

// Option customises an Engine.
type Option func(*Engine)

// WithRand overrides the random source.
func WithRand(r Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rand = r
		}
	}
}

// WithFillCap overrides the fill loop bound; values <= 0 keep the default.
func WithFillCap(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fillCap = n
		}
	}
}

// New builds an engine backed by the process-wide random source unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{rand: globalRand{}, fillCap: FillIterationCap}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dropped counts requests that could not be placed.
type Dropped struct {
	Visiting int `json:"visiting"`
	Free     int `json:"free"`
}

// Coverage reports how far a subject's minimum demand was met.
type Coverage struct {
	Subject          string `json:"subject"`
	RequiredLectures int    `json:"requiredLectures"`
	AssignedLectures int    `json:"assignedLectures"`
	LabRequired      bool   `json:"labRequired"`
	LabAssigned      bool   `json:"labAssigned"`
}

// Satisfied reports whether lectures and lab were fully met.
func (c Coverage) Satisfied() bool {
	return c.AssignedLectures >= c.RequiredLectures && (!c.LabRequired || c.LabAssigned)
}

// Result is the outcome of one generation run.
type Result struct {
	Grid     *Grid
	Stats    Summary
	Dropped  Dropped
	Coverage []Coverage
	// FillIterations is how many passes the fill step consumed.
	FillIterations int
}

// Rows renders the grid into schedule rows.
func (r Result) Rows() []Row {
	return r.Grid.Rows()
}

type subjectState struct {
	Subject
	labAssigned      bool
	lecturesAssigned int
}

// assignment carries all call-scoped state through the generation steps.
type assignment struct {
	grid     *Grid
	empty    *emptySet
	stats    *Accumulator
	subjects []*subjectState
	dropped  Dropped
	rand     Rand
}

// Generate runs the full assignment pipeline. It never fails: unsatisfiable demand and
// malformed references degrade into partial assignment.
func (e *Engine) Generate(subjects []Subject, visiting []VisitingBooking, free FreeSlots) Result {
	run := newAssignment(subjects, e.rand)
	run.placeVisiting(visiting)
	run.markFree(free)
	run.guaranteeCoverage()
	iterations := run.fillRemaining(e.fillCap)

	return Result{
		Grid:           run.grid,
		Stats:          run.stats.Summarize(),
		Dropped:        run.dropped,
		Coverage:       run.coverage(),
		FillIterations: iterations,
	}
}

func newAssignment(subjects []Subject, r Rand) *assignment {
	grid := newGrid()
	states := make([]*subjectState, 0, len(subjects))
	for _, subject := range subjects {
		states = append(states, &subjectState{Subject: subject})
	}
	return &assignment{
		grid:     grid,
		empty:    newEmptySet(grid),
		stats:    NewAccumulator(TotalCells(), grid.Count(CellBreak)),
		subjects: states,
		rand:     r,
	}
}

func (a *assignment) resolve(day, slot string) (Coord, bool) {
	d, ok := DayIndex(day)
	if !ok {
		return Coord{}, false
	}
	s, ok := SlotIndex(slot)
	if !ok || IsBreak(timeSlots[s]) {
		return Coord{}, false
	}
	return Coord{Day: d, Slot: s}, true
}

// claim moves an empty cell out of the index and into the grid.
func (a *assignment) claim(c Coord, cell Cell) bool {
	if !a.empty.Remove(c) {
		return false
	}
	a.grid.set(c, cell)
	return true
}

func (a *assignment) placeVisiting(bookings []VisitingBooking) {
	for _, booking := range bookings {
		c, ok := a.resolve(booking.Day, booking.Slot)
		if !ok || !a.claim(c, Cell{Kind: CellVisiting, Subject: booking.Subject, Faculty: booking.Faculty}) {
			a.dropped.Visiting++
			continue
		}
		a.stats.markUsed()
		a.stats.RecordCredit(booking.Faculty, booking.Subject, false)
	}
}

func (a *assignment) markFree(free FreeSlots) {
	for _, day := range orderedFreeDays(free) {
		for _, label := range free[day] {
			c, ok := a.resolve(day, label)
			if !ok || !a.claim(c, Cell{Kind: CellFree}) {
				a.dropped.Free++
				continue
			}
			a.stats.markFree()
		}
	}
}

// orderedFreeDays sorts request keys into grid order; unknown days go last.
func orderedFreeDays(free FreeSlots) []string {
	keys := make([]string, 0, len(free))
	for key := range free {
		keys = append(keys, key)
	}
	rank := func(key string) int {
		if i, ok := DayIndex(key); ok {
			return i
		}
		return dayCount
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (a *assignment) guaranteeCoverage() {
	for _, subject := range a.subjects {
		if subject.HasLab && !subject.labAssigned {
			if a.assignRandom(subject, true) {
				subject.labAssigned = true
			}
		}
		for subject.lecturesAssigned < subject.RequiredLectures {
			if !a.assignRandom(subject, false) {
				break
			}
			subject.lecturesAssigned++
		}
	}
}

func (a *assignment) fillRemaining(limit int) int {
	if len(a.subjects) == 0 {
		return 0
	}
	iterations := 0
	for a.empty.Len() > 0 && iterations < limit {
		subject := a.subjects[a.rand.IntN(len(a.subjects))]
		a.assignRandom(subject, false)
		iterations++
	}
	return iterations
}

// assignRandom draws an empty cell and a faculty member, then credits the pair.
func (a *assignment) assignRandom(subject *subjectState, lab bool) bool {
	c, ok := a.empty.Draw(a.rand)
	if !ok {
		return false
	}
	faculty := a.pickFaculty(subject.FacultyPool)
	a.grid.set(c, Cell{Kind: CellAssigned, Subject: subject.Name, Faculty: faculty, Lab: lab})
	a.stats.markUsed()
	a.stats.RecordCredit(faculty, subject.Name, lab)
	return true
}

func (a *assignment) pickFaculty(pool []string) string {
	if len(pool) == 0 {
		return PlaceholderFaculty
	}
	return pool[a.rand.IntN(len(pool))]
}

func (a *assignment) coverage() []Coverage {
	out := make([]Coverage, 0, len(a.subjects))
	for _, subject := range a.subjects {
		out = append(out, Coverage{
			Subject:          subject.Name,
			RequiredLectures: subject.RequiredLectures,
			AssignedLectures: subject.lecturesAssigned,
			LabRequired:      subject.HasLab,
			LabAssigned:      subject.labAssigned,
		})
	}
	return out
}
