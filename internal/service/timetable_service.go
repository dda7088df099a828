package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const (
	timetableCacheKeyPrefix = "timetable:"
	timetableLatestCacheKey = "timetable:latest"
)

type timetableStore interface {
	Create(ctx context.Context, tt *models.Timetable) error
	GetByID(ctx context.Context, id string) (*models.Timetable, error)
	Latest(ctx context.Context) (*models.Timetable, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type timetableCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// TimetableServiceConfig bounds request size and cache lifetime.
type TimetableServiceConfig struct {
	MaxSubjects       int
	MaxWeeklyLectures int
	CacheTTL          time.Duration
}

// TimetableService validates generation requests, runs the engine and keeps results around.
type TimetableService struct {
	store     timetableStore
	cache     timetableCache
	metrics   *MetricsService
	engine    *timetable.Engine
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableServiceConfig
	now       func() time.Time
}

// NewTimetableService wires the service. A nil store keeps results in memory.
func NewTimetableService(store timetableStore, cache timetableCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg TimetableServiceConfig) *TimetableService {
	if store == nil {
		store = newMemoryTimetableStore(defaultMemoryCapacity)
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSubjects <= 0 {
		cfg.MaxSubjects = timetable.TotalCells() - timetable.BreakCells()
	}
	if cfg.MaxWeeklyLectures <= 0 {
		cfg.MaxWeeklyLectures = 40
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &TimetableService{
		store:     store,
		cache:     cache,
		metrics:   metrics,
		engine:    timetable.New(),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate assigns a fresh weekly timetable and stores it as the latest run.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	subjects := timetable.BuildCatalog(req.Subjects, cleanFacultyNames(req.FacultyNames), req.HasLab, req.LectureCount)
	visiting := make([]timetable.VisitingBooking, 0, len(req.VisitingFaculty))
	for _, v := range req.VisitingFaculty {
		visiting = append(visiting, timetable.VisitingBooking{
			Faculty: strings.TrimSpace(v.Faculty),
			Subject: strings.TrimSpace(v.Subject),
			Day:     v.Day,
			Slot:    v.Slot,
		})
	}

	engine := s.engine
	if req.Seed != nil {
		engine = timetable.New(timetable.WithRand(timetable.NewSeededRand(*req.Seed)))
	}

	start := time.Now()
	result := engine.Generate(subjects, visiting, timetable.FreeSlots(req.FreeSlots))
	elapsed := time.Since(start)

	resp := buildTimetableResponse(uuid.NewString(), s.now().UTC(), result)
	overall := result.Stats.Overall
	s.metrics.ObserveGeneration(elapsed, overall.Utilization(), result.Dropped.Visiting, result.Dropped.Free)
	if result.Dropped.Visiting > 0 || result.Dropped.Free > 0 {
		s.logger.Debug("timetable requests dropped",
			zap.String("timetable_id", resp.ID),
			zap.Int("visiting", result.Dropped.Visiting),
			zap.Int("free", result.Dropped.Free),
		)
	}
	s.logger.Info("timetable generated",
		zap.String("timetable_id", resp.ID),
		zap.Int("subjects", len(subjects)),
		zap.Int("used_cells", overall.UsedCells),
		zap.Int("free_cells", overall.FreeCells),
		zap.Int("empty_cells", overall.EmptyCells()),
		zap.Int("fill_iterations", result.FillIterations),
		zap.Duration("elapsed", elapsed),
	)

	record, err := newTimetableRecord(req, resp, len(subjects))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable")
	}
	persistStart := time.Now()
	if err := s.store.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable")
	}
	s.metrics.ObserveDBQuery("timetable_create", time.Since(persistStart))

	s.cacheResponse(ctx, resp, true)
	return resp, nil
}

// Get returns a stored timetable by id.
func (s *TimetableService) Get(ctx context.Context, id string) (*dto.TimetableResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	if !isTimetableID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	var cached dto.TimetableResponse
	if s.cacheGet(ctx, timetableCacheKeyPrefix+id, &cached) {
		return &cached, nil
	}

	start := time.Now()
	record, err := s.store.GetByID(ctx, id)
	s.metrics.ObserveDBQuery("timetable_get", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	resp, err := decodeTimetable(record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode timetable")
	}
	s.cacheResponse(ctx, resp, false)
	return resp, nil
}

// Latest returns the most recently generated timetable.
func (s *TimetableService) Latest(ctx context.Context) (*dto.TimetableResponse, error) {
	var cached dto.TimetableResponse
	if s.cacheGet(ctx, timetableLatestCacheKey, &cached) {
		return &cached, nil
	}

	start := time.Now()
	record, err := s.store.Latest(ctx)
	s.metrics.ObserveDBQuery("timetable_latest", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no timetable has been generated yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest timetable")
	}
	resp, err := decodeTimetable(record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode timetable")
	}
	s.cacheResponse(ctx, resp, true)
	return resp, nil
}

// List pages through stored runs, newest first.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableListQuery) ([]dto.TimetableSummary, *models.Pagination, error) {
	filter := models.TimetableFilter{Page: query.Page, PageSize: query.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	start := time.Now()
	items, total, err := s.store.List(ctx, filter)
	s.metrics.ObserveDBQuery("timetable_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}

	summaries := make([]dto.TimetableSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, dto.TimetableSummary{
			ID:              item.ID,
			GeneratedAt:     item.GeneratedAt,
			SubjectCount:    item.SubjectCount,
			UsedCells:       item.UsedCells,
			FreeCells:       item.FreeCells,
			Utilization:     item.Utilization,
			DroppedVisiting: item.DroppedVisiting,
			DroppedFree:     item.DroppedFree,
		})
	}
	return summaries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Delete removes a stored run and its cache entries.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	if !isTimetableID(id) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, timetableCacheKeyPrefix+id)
		_ = s.cache.Invalidate(ctx, timetableLatestCacheKey)
	}
	return nil
}

// isTimetableID reports whether id can name a stored run; both stores key runs by UUID.
func isTimetableID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Grid describes the fixed weekly calendar.
func (s *TimetableService) Grid() dto.CalendarGridResponse {
	slots := make([]dto.SlotInfo, 0, len(timetable.Slots()))
	for _, label := range timetable.Slots() {
		slots = append(slots, dto.SlotInfo{Label: label, Break: timetable.IsBreak(label)})
	}
	return dto.CalendarGridResponse{
		Days:       timetable.Days(),
		Slots:      slots,
		TotalCells: timetable.TotalCells(),
		BreakCells: timetable.BreakCells(),
	}
}

func (s *TimetableService) validate(req dto.GenerateTimetableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	n := len(req.Subjects)
	if len(req.FacultyNames) > n || len(req.HasLab) > n || len(req.LectureCount) > n {
		return appErrors.Clone(appErrors.ErrValidation, "facultyNames, hasLab and lectureCount must not be longer than subjects")
	}

	named, lectures := 0, 0
	for i, name := range req.Subjects {
		if strings.TrimSpace(name) == "" {
			continue
		}
		named++
		if i < len(req.LectureCount) {
			lectures += req.LectureCount[i]
		} else {
			lectures += timetable.DefaultRequiredLectures
		}
	}
	if named == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one subject name is required")
	}
	if named > s.cfg.MaxSubjects {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d subjects are allowed", s.cfg.MaxSubjects))
	}
	if lectures > s.cfg.MaxWeeklyLectures {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("total weekly lectures (%d) exceed the limit of %d", lectures, s.cfg.MaxWeeklyLectures))
	}
	return nil
}

func (s *TimetableService) cacheGet(ctx context.Context, key string, dest *dto.TimetableResponse) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	return err == nil && hit
}

func (s *TimetableService) cacheResponse(ctx context.Context, resp *dto.TimetableResponse, latest bool) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, timetableCacheKeyPrefix+resp.ID, resp, s.cfg.CacheTTL)
	if latest {
		_ = s.cache.Set(ctx, timetableLatestCacheKey, resp, s.cfg.CacheTTL)
	}
}

// cleanFacultyNames trims names and drops blank entries, keeping one pool per subject.
func cleanFacultyNames(pools [][]string) [][]string {
	cleaned := make([][]string, len(pools))
	for i, pool := range pools {
		names := make([]string, 0, len(pool))
		for _, name := range pool {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				names = append(names, trimmed)
			}
		}
		cleaned[i] = names
	}
	return cleaned
}

func buildTimetableResponse(id string, generatedAt time.Time, result timetable.Result) *dto.TimetableResponse {
	days := timetable.Days()
	rows := result.Rows()
	schedule := make([]dto.ScheduleRow, 0, len(rows))
	for _, row := range rows {
		out := dto.ScheduleRow{"time": row.Time}
		for i, day := range days {
			out[day] = row.Cells[i]
		}
		schedule = append(schedule, out)
	}

	gridEntries := result.Grid.Entries()
	entries := make([]dto.TimetableEntry, 0, len(gridEntries))
	for _, e := range gridEntries {
		entries = append(entries, dto.TimetableEntry{
			Day:      e.Day,
			Slot:     e.Slot,
			Subject:  e.Subject,
			Faculty:  e.Faculty,
			Lab:      e.Lab,
			Visiting: e.Kind == timetable.CellVisiting,
		})
	}

	perFaculty := make([]dto.FacultyStatResponse, 0, len(result.Stats.PerFaculty))
	for _, f := range result.Stats.PerFaculty {
		perFaculty = append(perFaculty, dto.FacultyStatResponse{
			Name:     f.Name,
			Lectures: f.Lectures,
			Labs:     f.Labs,
			Total:    f.Total(),
			Subjects: append([]string{}, f.Subjects...),
		})
	}
	perSubject := make([]dto.SubjectStatResponse, 0, len(result.Stats.PerSubject))
	for _, sub := range result.Stats.PerSubject {
		perSubject = append(perSubject, dto.SubjectStatResponse{
			Name:     sub.Name,
			Lectures: sub.Lectures,
			Labs:     sub.Labs,
			Total:    sub.Total(),
		})
	}

	coverage := make([]dto.CoverageResponse, 0, len(result.Coverage))
	for _, c := range result.Coverage {
		coverage = append(coverage, dto.CoverageResponse{
			Subject:          c.Subject,
			RequiredLectures: c.RequiredLectures,
			AssignedLectures: c.AssignedLectures,
			LabRequired:      c.LabRequired,
			LabAssigned:      c.LabAssigned,
			Satisfied:        c.Satisfied(),
		})
	}

	overall := result.Stats.Overall
	utilization := overall.Utilization()
	return &dto.TimetableResponse{
		ID:          id,
		GeneratedAt: generatedAt,
		Schedule:    schedule,
		Entries:     entries,
		Stats: dto.TimetableStats{
			PerFaculty: perFaculty,
			PerSubject: perSubject,
			Overall: dto.OverallStatResponse{
				TotalCells:         overall.TotalCells,
				UsedCells:          overall.UsedCells,
				FreeCells:          overall.FreeCells,
				BreakCells:         overall.BreakCells,
				EmptyCells:         overall.EmptyCells(),
				Utilization:        utilization,
				UtilizationDisplay: fmt.Sprintf("%.2f", utilization),
			},
		},
		Coverage:       coverage,
		Dropped:        dto.DroppedResponse{Visiting: result.Dropped.Visiting, Free: result.Dropped.Free},
		FillIterations: result.FillIterations,
	}
}

func newTimetableRecord(req dto.GenerateTimetableRequest, resp *dto.TimetableResponse, subjectCount int) (*models.Timetable, error) {
	rawReq, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal timetable request: %w", err)
	}
	rawResp, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal timetable result: %w", err)
	}
	overall := resp.Stats.Overall
	return &models.Timetable{
		ID:              resp.ID,
		SubjectCount:    subjectCount,
		UsedCells:       overall.UsedCells,
		FreeCells:       overall.FreeCells,
		Utilization:     overall.Utilization,
		DroppedVisiting: resp.Dropped.Visiting,
		DroppedFree:     resp.Dropped.Free,
		Request:         types.JSONText(rawReq),
		Result:          types.JSONText(rawResp),
		GeneratedAt:     resp.GeneratedAt,
	}, nil
}

func decodeTimetable(record *models.Timetable) (*dto.TimetableResponse, error) {
	var resp dto.TimetableResponse
	if err := json.Unmarshal(record.Result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal timetable %s: %w", record.ID, err)
	}
	if resp.ID == "" {
		resp.ID = record.ID
	}
	return &resp, nil
}
