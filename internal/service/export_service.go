package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type timetableLoader interface {
	Get(ctx context.Context, id string) (*dto.TimetableResponse, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix     string
	ResultTTL     time.Duration
	CalendarWeeks int
	Location      *time.Location
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders stored timetables and persists the files behind signed URLs.
type ExportService struct {
	timetables timetableLoader
	storage    fileStorage
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	xlsx       *export.XLSXExporter
	ics        *export.ICSExporter
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(timetables timetableLoader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CalendarWeeks <= 0 {
		cfg.CalendarWeeks = 16
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ExportService{
		timetables: timetables,
		storage:    files,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		xlsx:       export.NewXLSXExporter(),
		ics:        export.NewICSExporter(),
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Generate renders the job's timetable and stores the file behind a signed token.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	tt, err := s.timetables.Get(ctx, job.TimetableID)
	if err != nil {
		return nil, fmt.Errorf("load timetable %s: %w", job.TimetableID, err)
	}
	payload, err := s.Render(tt, job.Params)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Debug("export rendered",
		zap.String("job_id", job.ID),
		zap.String("format", string(job.Params.Format)),
		zap.Int("bytes", len(payload)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Render produces the file body for one timetable in the requested format.
func (s *ExportService) Render(tt *dto.TimetableResponse, params models.ExportJobParams) ([]byte, error) {
	if tt == nil {
		return nil, fmt.Errorf("timetable nil")
	}
	switch params.Format {
	case models.ExportFormatCSV:
		if params.Layout == models.ExportLayoutEntries {
			return s.csv.RenderEntries(entryRecords(tt))
		}
		return s.csv.RenderGrid(gridRecords(tt))
	case models.ExportFormatPDF:
		return s.pdf.Render("Weekly Timetable", reportDatasets(tt)...)
	case models.ExportFormatXLSX:
		return s.xlsx.Render(reportDatasets(tt)...)
	case models.ExportFormatICS:
		return s.renderCalendar(tt, params)
	default:
		return nil, fmt.Errorf("unsupported format %s", params.Format)
	}
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadClaims, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) renderCalendar(tt *dto.TimetableResponse, params models.ExportJobParams) ([]byte, error) {
	entries := make([]export.CalendarEntry, 0, len(tt.Entries))
	for _, e := range tt.Entries {
		day, ok := timetable.DayIndex(e.Day)
		if !ok {
			continue
		}
		slot, ok := timetable.SlotIndex(e.Slot)
		if !ok {
			continue
		}
		entries = append(entries, export.CalendarEntry{
			UID:         fmt.Sprintf("%s-%d-%d@sma-timetable", tt.ID, day, slot),
			Weekday:     day,
			Slot:        e.Slot,
			Summary:     entrySummary(e),
			Description: entryDescription(e),
		})
	}

	weekOf := s.now()
	if params.WeekOf != nil {
		weekOf = *params.WeekOf
	}
	weeks := params.Weeks
	if weeks <= 0 {
		weeks = s.cfg.CalendarWeeks
	}
	return s.ics.Render(entries, export.CalendarOptions{
		Name:     "Weekly Timetable",
		WeekOf:   weekOf,
		Weeks:    weeks,
		Location: s.cfg.Location,
		Stamp:    tt.GeneratedAt,
	})
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("timetable_%s_%s.%s", sanitizeFilename(job.TimetableID), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func gridRecords(tt *dto.TimetableResponse) []export.GridRecord {
	records := make([]export.GridRecord, 0, len(tt.Schedule))
	for _, row := range tt.Schedule {
		records = append(records, export.GridRecord{
			Time: row["time"],
			MON:  row["MON"],
			TUE:  row["TUE"],
			WED:  row["WED"],
			THU:  row["THU"],
			FRI:  row["FRI"],
			SAT:  row["SAT"],
		})
	}
	return records
}

func entryRecords(tt *dto.TimetableResponse) []export.EntryRecord {
	records := make([]export.EntryRecord, 0, len(tt.Entries))
	for _, e := range tt.Entries {
		records = append(records, export.EntryRecord{
			Day:      e.Day,
			Slot:     e.Slot,
			Subject:  e.Subject,
			Faculty:  e.Faculty,
			Lab:      e.Lab,
			Visiting: e.Visiting,
		})
	}
	return records
}

// reportDatasets lays out the schedule followed by the statistics tables.
func reportDatasets(tt *dto.TimetableResponse) []export.Dataset {
	days := timetable.Days()
	scheduleHeaders := append([]string{"Time"}, days...)
	widths := make([]float64, len(scheduleHeaders))
	for i := range widths {
		widths[i] = 1
	}
	widths[0] = 0.8
	schedule := export.Dataset{Title: "Schedule", Headers: scheduleHeaders, Widths: widths}
	for _, row := range tt.Schedule {
		out := map[string]string{"Time": row["time"]}
		for _, day := range days {
			out[day] = row[day]
		}
		schedule.Rows = append(schedule.Rows, out)
	}

	faculty := export.Dataset{
		Title:   "Faculty Load",
		Headers: []string{"Faculty", "Lectures", "Labs", "Total", "Subjects"},
		Widths:  []float64{1.2, 0.6, 0.6, 0.6, 2},
	}
	for _, f := range tt.Stats.PerFaculty {
		faculty.Rows = append(faculty.Rows, map[string]string{
			"Faculty":  f.Name,
			"Lectures": strconv.Itoa(f.Lectures),
			"Labs":     strconv.Itoa(f.Labs),
			"Total":    strconv.Itoa(f.Total),
			"Subjects": strings.Join(f.Subjects, ", "),
		})
	}

	subjects := export.Dataset{Title: "Subject Load", Headers: []string{"Subject", "Lectures", "Labs", "Total"}}
	for _, sub := range tt.Stats.PerSubject {
		subjects.Rows = append(subjects.Rows, map[string]string{
			"Subject":  sub.Name,
			"Lectures": strconv.Itoa(sub.Lectures),
			"Labs":     strconv.Itoa(sub.Labs),
			"Total":    strconv.Itoa(sub.Total),
		})
	}

	coverage := export.Dataset{Title: "Coverage", Headers: []string{"Subject", "Required", "Assigned", "Lab", "Satisfied"}}
	for _, c := range tt.Coverage {
		lab := "-"
		if c.LabRequired {
			lab = yesNo(c.LabAssigned)
		}
		coverage.Rows = append(coverage.Rows, map[string]string{
			"Subject":   c.Subject,
			"Required":  strconv.Itoa(c.RequiredLectures),
			"Assigned":  strconv.Itoa(c.AssignedLectures),
			"Lab":       lab,
			"Satisfied": yesNo(c.Satisfied),
		})
	}

	o := tt.Stats.Overall
	overview := export.Dataset{
		Title:   "Overview",
		Headers: []string{"Metric", "Value"},
		Rows: []map[string]string{
			{"Metric": "Total cells", "Value": strconv.Itoa(o.TotalCells)},
			{"Metric": "Break cells", "Value": strconv.Itoa(o.BreakCells)},
			{"Metric": "Used cells", "Value": strconv.Itoa(o.UsedCells)},
			{"Metric": "Free cells", "Value": strconv.Itoa(o.FreeCells)},
			{"Metric": "Empty cells", "Value": strconv.Itoa(o.EmptyCells)},
			{"Metric": "Utilization (%)", "Value": o.UtilizationDisplay},
			{"Metric": "Dropped visiting bookings", "Value": strconv.Itoa(tt.Dropped.Visiting)},
			{"Metric": "Dropped free slots", "Value": strconv.Itoa(tt.Dropped.Free)},
		},
	}
	return []export.Dataset{schedule, faculty, subjects, coverage, overview}
}

func entrySummary(e dto.TimetableEntry) string {
	subject := e.Subject
	if e.Lab {
		subject += " Lab"
	}
	return fmt.Sprintf("%s - %s", subject, e.Faculty)
}

func entryDescription(e dto.TimetableEntry) string {
	switch {
	case e.Visiting:
		return "Visiting faculty session"
	case e.Lab:
		return "Lab session"
	default:
		return ""
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
