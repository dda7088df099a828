package timetable

// Row is one slot of the rendered week; Cells is parallel to Days().
type Row struct {
	Time  string
	Break bool
	Cells []string
}

// Rows renders every slot, break rows included, in grid order.
func (g *Grid) Rows() []Row {
	rows := make([]Row, 0, slotCount)
	for slot, label := range timeSlots {
		row := Row{Time: label, Break: IsBreak(label), Cells: make([]string, dayCount)}
		for day := range weekDays {
			row.Cells[day] = g.cells[day][slot].String()
		}
		rows = append(rows, row)
	}
	return rows
}

// Entry is an occupied cell flattened with its position, used by exporters.
type Entry struct {
	Day     string
	Slot    string
	Kind    CellKind
	Subject string
	Faculty string
	Lab     bool
}

// Entries lists every visiting or assigned cell in day-major order.
func (g *Grid) Entries() []Entry {
	var entries []Entry
	for day := range g.cells {
		for slot, cell := range g.cells[day] {
			if cell.Kind != CellAssigned && cell.Kind != CellVisiting {
				continue
			}
			entries = append(entries, Entry{
				Day:     weekDays[day],
				Slot:    timeSlots[slot],
				Kind:    cell.Kind,
				Subject: cell.Subject,
				Faculty: cell.Faculty,
				Lab:     cell.Lab,
			})
		}
	}
	return entries
}
