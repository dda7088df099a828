package timetable

// FacultyStat is the teaching load credited to one faculty member.
type FacultyStat struct {
	Name     string   `json:"name"`
	Lectures int      `json:"lectures"`
	Labs     int      `json:"labs"`
	Subjects []string `json:"subjects"`
}

// Total is lectures plus labs.
func (f FacultyStat) Total() int {
	return f.Lectures + f.Labs
}

// SubjectStat is the load credited to one subject.
type SubjectStat struct {
	Name     string `json:"name"`
	Lectures int    `json:"lectures"`
	Labs     int    `json:"labs"`
}

// Total is lectures plus labs.
func (s SubjectStat) Total() int {
	return s.Lectures + s.Labs
}

// Overall holds grid-wide cell accounting. UsedCells excludes explicitly free cells.
type Overall struct {
	TotalCells int `json:"totalCells"`
	UsedCells  int `json:"usedCells"`
	FreeCells  int `json:"freeCells"`
	BreakCells int `json:"breakCells"`
}

// Assignable is the number of non-break cells.
func (o Overall) Assignable() int {
	return o.TotalCells - o.BreakCells
}

// EmptyCells is what remains unclaimed.
func (o Overall) EmptyCells() int {
	return o.TotalCells - o.BreakCells - o.UsedCells - o.FreeCells
}

// Utilization returns used/assignable as a percentage, 0 when nothing is assignable.
func (o Overall) Utilization() float64 {
	assignable := o.Assignable()
	if assignable <= 0 {
		return 0
	}
	return float64(o.UsedCells) / float64(assignable) * 100
}

// Summary is the read-only report produced after a run.
type Summary struct {
	PerFaculty []FacultyStat `json:"perFaculty"`
	PerSubject []SubjectStat `json:"perSubject"`
	Overall    Overall       `json:"overall"`
}

type facultyTally struct {
	lectures int
	labs     int
	subjects []string
	seen     map[string]struct{}
}

type subjectTally struct {
	lectures int
	labs     int
}

// Accumulator is the sole owner of counter state during a run.
type Accumulator struct {
	faculty      map[string]*facultyTally
	facultyOrder []string
	subjects     map[string]*subjectTally
	subjectOrder []string
	overall      Overall
}

// NewAccumulator starts an accumulator for a grid with the given dimensions.
func NewAccumulator(totalCells, breakCells int) *Accumulator {
	return &Accumulator{
		faculty:  make(map[string]*facultyTally),
		subjects: make(map[string]*subjectTally),
		overall:  Overall{TotalCells: totalCells, BreakCells: breakCells},
	}
}

// RecordCredit attributes one lecture or lab to the faculty/subject pair.
func (a *Accumulator) RecordCredit(faculty, subject string, isLab bool) {
	f, ok := a.faculty[faculty]
	if !ok {
		f = &facultyTally{seen: make(map[string]struct{})}
		a.faculty[faculty] = f
		a.facultyOrder = append(a.facultyOrder, faculty)
	}
	s, ok := a.subjects[subject]
	if !ok {
		s = &subjectTally{}
		a.subjects[subject] = s
		a.subjectOrder = append(a.subjectOrder, subject)
	}
	if isLab {
		f.labs++
		s.labs++
	} else {
		f.lectures++
		s.lectures++
	}
	if _, dup := f.seen[subject]; !dup {
		f.seen[subject] = struct{}{}
		f.subjects = append(f.subjects, subject)
	}
}

func (a *Accumulator) markUsed() {
	a.overall.UsedCells++
}

func (a *Accumulator) markFree() {
	a.overall.FreeCells++
}

// Overall returns the current cell accounting.
func (a *Accumulator) Overall() Overall {
	return a.overall
}

// Summarize snapshots the counters in first-seen order.
func (a *Accumulator) Summarize() Summary {
	summary := Summary{
		PerFaculty: make([]FacultyStat, 0, len(a.facultyOrder)),
		PerSubject: make([]SubjectStat, 0, len(a.subjectOrder)),
		Overall:    a.overall,
	}
	for _, name := range a.facultyOrder {
		f := a.faculty[name]
		subjects := make([]string, len(f.subjects))
		copy(subjects, f.subjects)
		summary.PerFaculty = append(summary.PerFaculty, FacultyStat{
			Name:     name,
			Lectures: f.lectures,
			Labs:     f.labs,
			Subjects: subjects,
		})
	}
	for _, name := range a.subjectOrder {
		s := a.subjects[name]
		summary.PerSubject = append(summary.PerSubject, SubjectStat{
			Name:     name,
			Lectures: s.lectures,
			Labs:     s.labs,
		})
	}
	return summary
}
