package timetable

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededEngine(seed uint64) *Engine {
	return New(WithRand(NewSeededRand(seed)))
}

func assertCellAccounting(t *testing.T, res Result) {
	t.Helper()
	overall := res.Stats.Overall
	empty := res.Grid.Count(CellEmpty)
	assert.Equal(t, TotalCells(), overall.TotalCells)
	assert.Equal(t, BreakCells(), overall.BreakCells)
	assert.Equal(t, overall.TotalCells, overall.UsedCells+overall.FreeCells+empty+overall.BreakCells)
	assert.Equal(t, res.Grid.Count(CellFree), overall.FreeCells)
	assert.Equal(t, res.Grid.Count(CellAssigned)+res.Grid.Count(CellVisiting), overall.UsedCells)
	assert.Equal(t, empty, overall.EmptyCells())
}

func TestGenerateCellAccountingHoldsAcrossInputs(t *testing.T) {
	inputs := []struct {
		name     string
		subjects []Subject
		visiting []VisitingBooking
		free     FreeSlots
	}{
		{name: "empty"},
		{name: "single", subjects: []Subject{NewSubject("Math", []string{"Ana"}, true, 3)}},
		{
			name: "mixed",
			subjects: []Subject{
				NewSubject("Math", []string{"Ana", "Budi"}, true, 4),
				NewSubject("Physics", nil, true, 3),
				NewSubject("History", []string{"Citra"}, false, 2),
			},
			visiting: []VisitingBooking{{Faculty: "Dr. Eko", Subject: "Robotics", Day: "WED", Slot: "09:50 to 10:45"}},
			free:     FreeSlots{"FRI": {"11:50 to 12:45", "12:45 to 1:40"}},
		},
		{
			name:     "overbooked",
			subjects: []Subject{NewSubject("Math", []string{"Ana"}, true, 80)},
			free:     FreeSlots{"SAT": {"07:30 to 8:25"}},
		},
	}
	for _, tc := range inputs {
		for seed := uint64(1); seed <= 5; seed++ {
			t.Run(fmt.Sprintf("%s/seed-%d", tc.name, seed), func(t *testing.T) {
				res := seededEngine(seed).Generate(tc.subjects, tc.visiting, tc.free)
				assertCellAccounting(t, res)
			})
		}
	}
}

func TestGenerateSingleSubjectFillsEveryAssignableCell(t *testing.T) {
	subjects := []Subject{NewSubject("Math", []string{"Ana"}, false, 6)}

	res := seededEngine(42).Generate(subjects, nil, nil)

	require.Len(t, res.Coverage, 1)
	assert.Equal(t, 6, res.Coverage[0].AssignedLectures)
	assert.True(t, res.Coverage[0].Satisfied())
	assert.Equal(t, 0, res.Grid.Count(CellEmpty))
	assert.Equal(t, 36, res.Stats.Overall.UsedCells)
	require.Len(t, res.Stats.PerSubject, 1)
	assert.Equal(t, 36, res.Stats.PerSubject[0].Lectures)
	assert.Equal(t, 0, res.Stats.PerSubject[0].Labs)
	require.Len(t, res.Stats.PerFaculty, 1)
	assert.Equal(t, []string{"Math"}, res.Stats.PerFaculty[0].Subjects)
	assert.InDelta(t, 100.0, res.Stats.Overall.Utilization(), 0.0001)
}

func TestGenerateWithoutSubjectsLeavesGridEmpty(t *testing.T) {
	res := seededEngine(7).Generate(nil, nil, nil)

	assert.Equal(t, 0, res.Stats.Overall.UsedCells)
	assert.Equal(t, 36, res.Grid.Count(CellEmpty))
	assert.Equal(t, 12, res.Grid.Count(CellBreak))
	assert.Equal(t, 0, res.FillIterations)
	assert.Empty(t, res.Stats.PerFaculty)
	assert.Empty(t, res.Stats.PerSubject)
}

func TestGenerateFreeSlotSurvivesFill(t *testing.T) {
	free := FreeSlots{"MON": {"07:30 to 8:25"}}

	res := seededEngine(3).Generate(nil, nil, free)

	assert.Equal(t, CellFree, res.Grid.At(Coord{Day: 0, Slot: 0}).Kind)
	assert.Equal(t, 1, res.Stats.Overall.FreeCells)
	assert.Equal(t, 0, res.Stats.Overall.UsedCells)

	withSubjects := seededEngine(3).Generate([]Subject{NewSubject("Math", []string{"Ana"}, true, 2)}, nil, free)
	assert.Equal(t, CellFree, withSubjects.Grid.At(Coord{Day: 0, Slot: 0}).Kind)
	assert.Equal(t, 35, withSubjects.Stats.Overall.UsedCells)
}

func TestGenerateDropsUnknownVisitingCell(t *testing.T) {
	visiting := []VisitingBooking{
		{Faculty: "Dr. Eko", Subject: "Robotics", Day: "MON", Slot: "13:40 to 14:35"},
		{Faculty: "Dr. Eko", Subject: "Robotics", Day: "SUN", Slot: "07:30 to 8:25"},
		{Faculty: "Dr. Eko", Subject: "Robotics", Day: "TUE", Slot: "BREAK (9:20 to 9:50)"},
	}

	res := seededEngine(11).Generate(nil, visiting, nil)

	assert.Equal(t, 0, res.Stats.Overall.UsedCells)
	assert.Equal(t, 3, res.Dropped.Visiting)
	assert.Equal(t, 36, res.Grid.Count(CellEmpty))
	assert.Equal(t, 12, res.Grid.Count(CellBreak))
}

func TestGenerateHonoursVisitingAndDropsDuplicates(t *testing.T) {
	visiting := []VisitingBooking{
		{Faculty: "Dr. Eko", Subject: "Robotics", Day: "wed", Slot: "09:50 to 10:45"},
		{Faculty: "Dr. Fajar", Subject: "AI", Day: "WED", Slot: "09:50 to 10:45"},
	}
	subjects := []Subject{NewSubject("Math", []string{"Ana"}, false, 2)}

	res := seededEngine(5).Generate(subjects, visiting, nil)

	cell := res.Grid.At(Coord{Day: 2, Slot: 3})
	assert.Equal(t, CellVisiting, cell.Kind)
	assert.Equal(t, "Dr. Eko", cell.Faculty)
	assert.Equal(t, "Robotics - Dr. Eko (Visiting)", cell.String())
	assert.Equal(t, 1, res.Dropped.Visiting)
	assert.Equal(t, 1, res.Grid.Count(CellVisiting))

	var eko *FacultyStat
	for i := range res.Stats.PerFaculty {
		if res.Stats.PerFaculty[i].Name == "Dr. Eko" {
			eko = &res.Stats.PerFaculty[i]
		}
	}
	require.NotNil(t, eko)
	assert.Equal(t, 1, eko.Lectures)
	assert.Equal(t, []string{"Robotics"}, eko.Subjects)
}

func TestGenerateFreeSlotsNeverOverwriteVisitingOrBreak(t *testing.T) {
	visiting := []VisitingBooking{{Faculty: "Dr. Eko", Subject: "Robotics", Day: "THU", Slot: "07:30 to 8:25"}}
	free := FreeSlots{
		"THU":     {"07:30 to 8:25", "BREAK (9:20 to 9:50)", "08:25 to 9:20"},
		"NOTADAY": {"07:30 to 8:25"},
	}

	res := seededEngine(9).Generate(nil, visiting, free)

	assert.Equal(t, CellVisiting, res.Grid.At(Coord{Day: 3, Slot: 0}).Kind)
	assert.Equal(t, CellBreak, res.Grid.At(Coord{Day: 3, Slot: 2}).Kind)
	assert.Equal(t, CellFree, res.Grid.At(Coord{Day: 3, Slot: 1}).Kind)
	assert.Equal(t, 1, res.Stats.Overall.FreeCells)
	assert.Equal(t, 3, res.Dropped.Free)
}

func TestGenerateAssignsExactlyOneLabPerSubject(t *testing.T) {
	subjects := []Subject{
		NewSubject("Physics", []string{"Dewi"}, true, 2),
		NewSubject("Chemistry", []string{"Eka", "Fitri"}, true, 2),
		NewSubject("History", []string{"Gita"}, false, 2),
	}

	res := seededEngine(21).Generate(subjects, nil, nil)

	labs := map[string]int{}
	for _, entry := range res.Grid.Entries() {
		if entry.Lab {
			labs[entry.Subject]++
		}
	}
	assert.Equal(t, map[string]int{"Physics": 1, "Chemistry": 1}, labs)
	for _, cov := range res.Coverage {
		assert.True(t, cov.Satisfied(), cov.Subject)
	}
}

func TestGenerateMeetsRequiredLecturesWhenCapacityAllows(t *testing.T) {
	subjects := []Subject{
		NewSubject("Math", []string{"Ana"}, false, 10),
		NewSubject("Physics", []string{"Budi"}, true, 10),
		NewSubject("Biology", nil, false, 10),
	}

	res := seededEngine(8).Generate(subjects, nil, FreeSlots{"SAT": {"12:45 to 1:40"}})

	for _, cov := range res.Coverage {
		assert.Equal(t, 10, cov.AssignedLectures, cov.Subject)
	}
	for _, stat := range res.Stats.PerSubject {
		assert.GreaterOrEqual(t, stat.Lectures, 10, stat.Name)
	}
	for _, stat := range res.Stats.PerFaculty {
		if stat.Name == PlaceholderFaculty {
			assert.Equal(t, []string{"Biology"}, stat.Subjects)
		}
	}
}

func TestGenerateDegradesWhenDemandExceedsCapacity(t *testing.T) {
	subjects := []Subject{
		NewSubject("Math", []string{"Ana"}, true, 30),
		NewSubject("Physics", []string{"Budi"}, true, 30),
	}

	res := seededEngine(13).Generate(subjects, nil, nil)

	require.Len(t, res.Coverage, 2)
	assert.Equal(t, 1+30, boolToInt(res.Coverage[0].LabAssigned)+res.Coverage[0].AssignedLectures)
	assert.True(t, res.Coverage[1].LabAssigned)
	assert.Equal(t, 4, res.Coverage[1].AssignedLectures)
	assert.False(t, res.Coverage[1].Satisfied())
	assert.Equal(t, 0, res.Grid.Count(CellEmpty))
	assert.Equal(t, 0, res.FillIterations)
	assertCellAccounting(t, res)
}

func TestGenerateRespectsFillCap(t *testing.T) {
	engine := New(WithRand(NewSeededRand(1)), WithFillCap(5))
	subjects := []Subject{NewSubject("Math", []string{"Ana"}, false, 1)}

	res := engine.Generate(subjects, nil, nil)

	assert.Equal(t, 5, res.FillIterations)
	assert.Equal(t, 6, res.Stats.Overall.UsedCells)
	assert.Equal(t, 30, res.Grid.Count(CellEmpty))
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	subjects := []Subject{
		NewSubject("Math", []string{"Ana", "Budi"}, true, 3),
		NewSubject("Art", []string{"Citra"}, false, 2),
	}
	first := seededEngine(99).Generate(subjects, nil, nil)
	second := seededEngine(99).Generate(subjects, nil, nil)

	assert.Equal(t, first.Rows(), second.Rows())
	assert.Equal(t, first.Stats, second.Stats)
}

func TestGenerateConcurrentCallsShareSource(t *testing.T) {
	engine := seededEngine(2024)
	subjects := []Subject{NewSubject("Math", []string{"Ana"}, true, 4), NewSubject("Art", nil, false, 2)}

	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Generate(subjects, nil, nil)
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assertCellAccounting(t, res)
		assert.Equal(t, 36, res.Stats.Overall.UsedCells)
	}
}

func TestGenerateDefaultEngineUsesGlobalSource(t *testing.T) {
	res := New().Generate([]Subject{NewSubject("Math", nil, false, 0)}, nil, nil)

	assert.Equal(t, DefaultRequiredLectures, res.Coverage[0].AssignedLectures)
	assertCellAccounting(t, res)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
