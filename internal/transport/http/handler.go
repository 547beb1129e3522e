package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"sheetpipe/internal/entity"
	"sheetpipe/internal/pipeline"
	"sheetpipe/internal/repository/postgresql"
	"sheetpipe/internal/service"
	"sheetpipe/internal/sheet"
	"sheetpipe/internal/stream"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	jobSvc   *service.JobService
	fileSvc  *service.FileService
	notifier *stream.Notifier
}

func NewHandler(jobSvc *service.JobService, fileSvc *service.FileService, notifier *stream.Notifier) *Handler {
	return &Handler{jobSvc: jobSvc, fileSvc: fileSvc, notifier: notifier}
}

// writeDomainError maps service/pipeline errors onto HTTP statuses.
// Validation -> 400, not found (including foreign ownership) -> 404.
func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case pipeline.IsValidation(err):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, postgresql.ErrNotFound):
		writeErr(w, http.StatusNotFound, notFoundMsg)
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

type executeDTO struct {
	FileID             string          `json:"file_id"`
	PipelineOperations json.RawMessage `json:"pipeline_operations"`
}

type executeResp struct {
	JobID       string `json:"job_id"`
	TaskID      string `json:"task_id"`
	StreamURL   string `json:"stream_url"`
	StatusURL   string `json:"status_url"`
	DownloadURL string `json:"download_url"`
}

type statusResp struct {
	JobID       string           `json:"job_id"`
	Status      entity.JobStatus `json:"status"`
	Error       *string          `json:"error"`
	TaskID      *string          `json:"task_id"`
	HasOutput   bool             `json:"has_output"`
	DownloadURL string           `json:"download_url,omitempty"`
}

type uploadResp struct {
	FileID        string `json:"file_id"`
	SelectedSheet string `json:"selected_sheet"`
	ExpiresAt     string `json:"expires_at"`
}

type sheetsResp struct {
	Sheets      []string `json:"sheets"`
	TotalSheets int      `json:"total_sheets"`
}

func downloadURL(jobID string) string {
	return fmt.Sprintf("/api/pipeline/execution/%s/download", jobID)
}

// UploadFile godoc
// @Summary Upload a workbook and select the sheet to process
// @Tags files
// @Accept mpfd
// @Produce json
// @Param file formData file true "xlsx workbook"
// @Param selected_sheet formData string true "sheet to operate on"
// @Success 201 {object} uploadResp
// @Failure 400 {object} apiError
// @Router /api/files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	file, err := h.fileSvc.Upload(r.Context(), UserID(r.Context()), header.Filename, r.FormValue("selected_sheet"), f)
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResp{
		FileID:        file.ID.String(),
		SelectedSheet: file.SelectedSheet,
		ExpiresAt:     file.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// ListSheets godoc
// @Summary List sheet names of an uploaded workbook
// @Tags files
// @Accept mpfd
// @Produce json
// @Param file formData file true "xlsx workbook"
// @Success 200 {object} sheetsResp
// @Failure 400 {object} apiError
// @Router /api/files/sheets [post]
func (h *Handler) ListSheets(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, _, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	sheets, err := sheet.ListSheets(f)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sheetsResp{Sheets: sheets, TotalSheets: len(sheets)})
}

// ExecutePipeline godoc
// @Summary Start a pipeline execution job
// @Description Validates the operation list, creates a PENDING job and enqueues it.
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body executeDTO true "file id and ordered operations"
// @Success 202 {object} executeResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/pipeline/execution [post]
func (h *Handler) ExecutePipeline(w http.ResponseWriter, r *http.Request) {
	var dto executeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.jobSvc.Execute(r.Context(), service.ExecuteRequest{
		UserID:     UserID(r.Context()),
		FileID:     dto.FileID,
		Operations: dto.PipelineOperations,
	})
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}

	jobID := res.JobID.String()
	writeJSON(w, http.StatusAccepted, executeResp{
		JobID:       jobID,
		TaskID:      res.TaskID,
		StreamURL:   fmt.Sprintf("/api/pipeline/execution/%s/stream", jobID),
		StatusURL:   fmt.Sprintf("/api/pipeline/execution/%s/status", jobID),
		DownloadURL: downloadURL(jobID),
	})
}

// GetStatus godoc
// @Summary Get pipeline job status
// @Tags pipeline
// @Produce json
// @Param job_id path string true "job id (uuid)"
// @Success 200 {object} statusResp
// @Failure 404 {object} apiError
// @Router /api/pipeline/execution/{job_id}/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.GetOwnedJob(r.Context(), UserID(r.Context()), chi.URLParam(r, "job_id"))
	if err != nil {
		writeDomainError(w, err, "Job not found")
		return
	}

	resp := statusResp{
		JobID:     job.ID.String(),
		Status:    job.Status,
		Error:     job.Error,
		TaskID:    job.TaskID,
		HasOutput: job.OutputPath != nil,
	}
	if job.Status == entity.StatusSucceeded {
		resp.DownloadURL = downloadURL(resp.JobID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// StreamProgress godoc
// @Summary Stream pipeline progress as Server-Sent Events
// @Tags pipeline
// @Produce text/event-stream
// @Param job_id path string true "job id (uuid)"
// @Failure 404 {object} apiError
// @Router /api/pipeline/execution/{job_id}/stream [get]
func (h *Handler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.GetOwnedJob(r.Context(), UserID(r.Context()), chi.URLParam(r, "job_id"))
	if err != nil {
		writeDomainError(w, err, "Job not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.notifier.Run(r.Context(), w, job, downloadURL(job.ID.String())); err != nil {
		log.Printf("[http] stream job_id=%s error=%v", job.ID, err)
	}
}

// Download godoc
// @Summary Download the resulting xlsx for a successful job
// @Tags pipeline
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param job_id path string true "job id (uuid)"
// @Success 200 {file} binary
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /api/pipeline/execution/{job_id}/download [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.GetOwnedJob(r.Context(), UserID(r.Context()), chi.URLParam(r, "job_id"))
	if err != nil {
		writeDomainError(w, err, "Job not found")
		return
	}
	if job.Status != entity.StatusSucceeded || job.OutputPath == nil {
		writeErr(w, http.StatusBadRequest,
			fmt.Sprintf("Job is not ready for download. Current status: %s", job.Status))
		return
	}

	f, err := os.Open(*job.OutputPath)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "output file unavailable")
		return
	}
	defer f.Close()

	filename := strings.TrimPrefix(filepath.Base(*job.OutputPath), job.ID.String()+"_")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
