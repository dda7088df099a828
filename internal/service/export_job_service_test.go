package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

type exportJobRepoStub struct {
	jobs map[string]*models.ExportJob
}

func newExportJobRepoStub() *exportJobRepoStub {
	return &exportJobRepoStub{jobs: map[string]*models.ExportJob{}}
}

func (r *exportJobRepoStub) Create(_ context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *exportJobRepoStub) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get export job: %w", sql.ErrNoRows)
	}
	return job, nil
}

func (r *exportJobRepoStub) Update(_ context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportJobRepoStub) ListQueued(_ context.Context, _ int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *exportJobRepoStub) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ExportJob, error) {
	var finished []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newExportJobServiceForTest(t *testing.T) (*ExportJobService, *exportJobRepoStub, *queueStub, *ExportService, *dto.TimetableResponse) {
	t.Helper()
	tt := sampleTimetable(t)
	exportSvc, _ := newExportServiceForTest(t, tt)
	repo := newExportJobRepoStub()
	queue := &queueStub{}
	loader := timetableLoaderStub{items: map[string]*dto.TimetableResponse{tt.ID: tt}}
	svc := NewExportJobService(repo, loader, queue, exportSvc, NewMetricsService(), zap.NewNop(), ExportJobServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
	})
	return svc, repo, queue, exportSvc, tt
}

func TestExportJobServiceCreateJob(t *testing.T) {
	svc, repo, queue, _, tt := newExportJobServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), tt.ID, dto.ExportRequest{Format: "CSV", WeekOf: "2024-01-10"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	assert.Equal(t, models.ExportFormatCSV, resp.Format)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeTimetableExport, queue.jobs[0].Type)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, models.ExportLayoutGrid, stored.Params.Layout)
	require.NotNil(t, stored.Params.WeekOf)
	assert.Equal(t, 10, stored.Params.WeekOf.Day())
}

func TestExportJobServiceCreateJobValidation(t *testing.T) {
	svc, _, queue, _, tt := newExportJobServiceForTest(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, tt.ID, dto.ExportRequest{Format: "docx"})
	requireAppError(t, err, appErrors.ErrUnsupportedFormat)

	_, err = svc.CreateJob(ctx, tt.ID, dto.ExportRequest{Format: models.ExportFormatCSV, Layout: "diagonal"})
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(ctx, tt.ID, dto.ExportRequest{Format: models.ExportFormatICS, WeekOf: "10/01/2024"})
	requireAppError(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(ctx, "missing", dto.ExportRequest{Format: models.ExportFormatPDF})
	requireAppError(t, err, appErrors.ErrNotFound)

	assert.Empty(t, queue.jobs)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _, tt := newExportJobServiceForTest(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), tt.ID, dto.ExportRequest{Format: models.ExportFormatPDF})
	requireAppError(t, err, appErrors.ErrInternal)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestExportJobServiceGetStatus(t *testing.T) {
	svc, repo, _, _, _ := newExportJobServiceForTest(t)
	msg := "boom"
	repo.jobs["job-1"] = &models.ExportJob{
		ID:           "job-1",
		TimetableID:  "tt-1",
		Params:       models.ExportJobParams{Format: models.ExportFormatXLSX},
		Status:       models.ExportStatusFailed,
		Progress:     100,
		ErrorMessage: &msg,
	}

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)

	_, err = svc.GetStatus(context.Background(), "job-404")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestExportJobServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc, tt := newExportJobServiceForTest(t)
	job := &models.ExportJob{
		ID:          "job-download",
		TimetableID: tt.ID,
		Params:      models.ExportJobParams{Format: models.ExportFormatCSV, Layout: models.ExportLayoutGrid},
		Status:      models.ExportStatusProcessing,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	requireAppError(t, err, appErrors.ErrForbidden)

	job.Status = models.ExportStatusFinished
	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "time,MON,TUE,WED,THU,FRI,SAT")

	_, err = svc.ResolveDownload(context.Background(), "garbage")
	requireAppError(t, err, appErrors.ErrForbidden)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _, _ := newExportJobServiceForTest(t)
	repo.jobs["job-1"] = &models.ExportJob{ID: "job-1", Status: models.ExportStatusQueued}
	repo.jobs["job-2"] = &models.ExportJob{ID: "job-2", Status: models.ExportStatusFinished}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "job-1", queue.jobs[0].ID)
}

func TestExportJobServiceCleanupRemovesExpiredFiles(t *testing.T) {
	svc, repo, _, exportSvc, tt := newExportJobServiceForTest(t)
	job := &models.ExportJob{
		ID:          "job-old",
		TimetableID: tt.ID,
		Params:      models.ExportJobParams{Format: models.ExportFormatCSV},
		Status:      models.ExportStatusFinished,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	finished := time.Now().Add(-2 * time.Hour)
	job.ResultURL = &result.URL
	job.FinishedAt = &finished

	svc.cleanupExpired(context.Background())

	_, err = exportSvc.Open(result.RelativePath)
	require.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(context.Context, *models.ExportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedExportRepo() *exportJobRepoStub {
	return &exportJobRepoStub{
		jobs: map[string]*models.ExportJob{
			"job-1": {
				ID:          "job-1",
				TimetableID: "tt-1",
				Params:      models.ExportJobParams{Format: models.ExportFormatPDF},
				Status:      models.ExportStatusQueued,
			},
		},
	}
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	repo := queuedExportRepo()
	worker := NewExportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, NewMetricsService(), 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/export/token", *job.ResultURL)
	require.NotNil(t, job.FinishedAt)
}

func TestExportWorkerHandleRequeuesBeforeRetriesExhausted(t *testing.T) {
	repo := queuedExportRepo()
	worker := NewExportWorker(repo, exportStub{err: errors.New("boom")}, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, repo.jobs["job-1"].Status)
	assert.Equal(t, 0, repo.jobs["job-1"].Progress)
}

func TestExportWorkerHandleFailsAfterRetries(t *testing.T) {
	repo := queuedExportRepo()
	worker := NewExportWorker(repo, exportStub{err: errors.New("boom")}, nil, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)
}
