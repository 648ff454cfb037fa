package models

import (
	"time"
)

// Enums
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status allows no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo enforces the forward-only lifecycle:
// queued → processing → {completed | failed}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// JobParams are captured at submission and immutable afterwards.
type JobParams struct {
	Language     string  `json:"language"`
	Voice        string  `json:"voice"`
	SpeechRate   float64 `json:"speechRate"`
	VideoType    string  `json:"videoType"`
	VideoQuality string  `json:"videoQuality"`
}

// Job is one text-to-video request and its full lifecycle state.
// The ID doubles as the job's storage-directory key.
type Job struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Params      JobParams `json:"params"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ResultPath  string    `json:"result_path,omitempty"`  // set only on completed
	ErrorDetail string    `json:"error_detail,omitempty"` // set only on failed
}

// CaptionCue is a single captioned word or phrase with its timing,
// in seconds from the start of the merged audio track.
type CaptionCue struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SegmentRef points at one background clip in the asset pool.
// Pool files are read-only; the pipeline never mutates them.
type SegmentRef struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"` // seconds
}

// DTOs for API responses

// JobSnapshot is the read-only view returned by status queries.
type JobSnapshot struct {
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	Text         string    `json:"text"`
	Language     string    `json:"language"`
	Voice        string    `json:"voice"`
	SpeechRate   float64   `json:"speechRate"`
	VideoType    string    `json:"videoType"`
	VideoQuality string    `json:"videoQuality"`
	CreatedAt    time.Time `json:"createdAt"`
	IsCompleted  bool      `json:"isCompleted"`
	ErrorDetail  string    `json:"errorDetail,omitempty"`
}

// Snapshot builds the external view of a job.
func (j *Job) Snapshot() JobSnapshot {
	return JobSnapshot{
		JobID:        j.ID,
		Status:       j.Status,
		Text:         j.Text,
		Language:     j.Params.Language,
		Voice:        j.Params.Voice,
		SpeechRate:   j.Params.SpeechRate,
		VideoType:    j.Params.VideoType,
		VideoQuality: j.Params.VideoQuality,
		CreatedAt:    j.CreatedAt,
		IsCompleted:  j.Status == JobStatusCompleted,
		ErrorDetail:  j.ErrorDetail,
	}
}

// SubmitRequest is the POST /jobs body. Optional fields fall back to
// the configured defaults before validation.
type SubmitRequest struct {
	Text         string   `json:"text" validate:"required"`
	Language     string   `json:"language,omitempty"`
	Voice        string   `json:"voice,omitempty"`
	SpeechRate   *float64 `json:"speechRate,omitempty"`
	VideoType    string   `json:"videoType,omitempty"`
	VideoQuality string   `json:"videoQuality,omitempty"`
}

type SubmitResponse struct {
	JobID string `json:"jobId"`
}

type ListJobsResponse struct {
	Jobs []JobSnapshot `json:"jobs"`
}
