package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/driftline/narravid/internal/config"
	"github.com/driftline/narravid/internal/models"
	"github.com/driftline/narravid/internal/services"
	"github.com/driftline/narravid/internal/store"
)

// JobScheduler is the slice of the scheduler the handlers need.
type JobScheduler interface {
	Enqueue(jobID string)
	TriggerRemaining() int
	Readiness() (ready bool, jobsInProgress int)
}

type Handler struct {
	cfg       *config.Config
	store     *store.Store
	scheduler JobScheduler
	audio     AudioToolkit
	validate  *validator.Validate
}

func NewHandler(cfg *config.Config, st *store.Store, sched JobScheduler, audio AudioToolkit) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		scheduler: sched,
		audio:     audio,
		validate:  validator.New(),
	}
}

// Status handles GET /api/v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// Ready handles GET /api/v1/ready. Returns 503 while every worker slot
// is occupied so load balancers can route submissions elsewhere.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ready, inProgress := h.scheduler.Readiness()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]interface{}{
		"ready":          ready,
		"jobsInProgress": inProgress,
	})
}

// SubmitJob handles POST /api/v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Text is required")
		return
	}

	if utf8.RuneCountInString(req.Text) > h.cfg.API.MaxTextLength {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Text exceeds the maximum length of %d characters", h.cfg.API.MaxTextLength))
		return
	}

	params, errMsg := h.resolveParams(req)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	job := &models.Job{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Params:    params,
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Create(job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to persist job")
		return
	}

	h.scheduler.Enqueue(job.ID)
	respondJSON(w, http.StatusAccepted, models.SubmitResponse{JobID: job.ID})
}

// resolveParams applies defaults and rejects values outside the closed
// enumerations. Invalid parameters never reach the backlog.
func (h *Handler) resolveParams(req models.SubmitRequest) (models.JobParams, string) {
	params := models.JobParams{
		Language:     req.Language,
		Voice:        req.Voice,
		SpeechRate:   h.cfg.TTS.SpeechRate,
		VideoType:    req.VideoType,
		VideoQuality: req.VideoQuality,
	}
	if params.Language == "" {
		params.Language = h.cfg.TTS.Language
	}
	if params.Voice == "" {
		params.Voice = h.cfg.TTS.Voice
	}
	if req.SpeechRate != nil {
		params.SpeechRate = *req.SpeechRate
	}
	if params.VideoType == "" {
		params.VideoType = h.cfg.Video.DefaultType
	}
	if params.VideoQuality == "" {
		params.VideoQuality = h.cfg.Video.DefaultQuality
	}

	if !services.SupportsLanguage(params.Language) {
		return params, fmt.Sprintf("Unsupported language %q", params.Language)
	}
	if !services.SupportsVoice(params.Language, params.Voice) {
		return params, fmt.Sprintf("Voice %q is not available for language %q", params.Voice, params.Language)
	}
	if params.SpeechRate <= 0 {
		return params, "speechRate must be positive"
	}
	if !lo.Contains(h.cfg.Video.AvailableTypes, params.VideoType) {
		return params, fmt.Sprintf("Unknown video type %q", params.VideoType)
	}
	if _, _, err := h.cfg.Resolution(params.VideoQuality, params.VideoType); err != nil {
		return params, err.Error()
	}
	return params, ""
}

// ListJobs handles GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.store.List()
	snapshots := make([]models.JobSnapshot, len(jobs))
	for i, job := range jobs {
		snapshots[i] = job.Snapshot()
	}
	respondJSON(w, http.StatusOK, models.ListJobsResponse{Jobs: snapshots})
}

// GetJob handles GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// GetJobResult handles GET /api/v1/jobs/{id}/result. Streams the final
// video as an attachment; only completed jobs have one.
func (h *Handler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Status != models.JobStatusCompleted {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Job is %s, result available only for completed jobs", job.Status))
		return
	}

	info, err := os.Stat(job.ResultPath)
	if err != nil || info.Size() == 0 {
		respondError(w, http.StatusInternalServerError, "Result file is missing or empty")
		return
	}

	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(job.ResultPath)))
	http.ServeFile(w, r, job.ResultPath)
}

// DeleteJob handles DELETE /api/v1/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to delete job")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Job deleted."})
}

// DeleteAllJobs handles DELETE /api/v1/jobs/all
func (h *Handler) DeleteAllJobs(w http.ResponseWriter, r *http.Request) {
	deleted := h.store.DeleteAll()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Deleted %d job(s).", deleted),
		"deleted": deleted,
	})
}

// TriggerRemaining handles POST /api/v1/jobs/triggerRemaining. A no-op
// when nothing is queued, so clients can call it freely.
func (h *Handler) TriggerRemaining(w http.ResponseWriter, r *http.Request) {
	dispatched := h.scheduler.TriggerRemaining()
	message := "No queued jobs to dispatch."
	if dispatched > 0 {
		message = fmt.Sprintf("Dispatched %d queued job(s).", dispatched)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    message,
		"dispatched": dispatched,
	})
}

// ListLanguages handles GET /api/v1/languages
func (h *Handler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"languages": services.AvailableLanguages(),
	})
}

// ListVoices handles GET /api/v1/voices. With ?type=dict the voices
// are grouped by language.
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("type") == "dict" {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"voices": services.AvailableVoicesByLanguage(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"voices": services.AvailableVoices(),
	})
}

// ListVideoTypes handles GET /api/v1/videoTypes
func (h *Handler) ListVideoTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"videoTypes": h.cfg.Video.AvailableTypes,
	})
}

// ListVideoQualities handles GET /api/v1/videoQualities
func (h *Handler) ListVideoQualities(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"videoQualities": h.cfg.QualityNames(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
