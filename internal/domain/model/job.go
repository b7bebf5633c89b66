package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"genhub/internal/domain"
)

type JobKind string

const (
	JobKindText  JobKind = "text"
	JobKindImage JobKind = "image"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ParseJobStatus accepts the stored spellings, including the legacy "complete".
func ParseJobStatus(s string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return JobStatusPending, nil
	case "running", "processing":
		return JobStatusRunning, nil
	case "completed", "complete":
		return JobStatusCompleted, nil
	case "failed":
		return JobStatusFailed, nil
	}
	return "", domain.Invalid("status", fmt.Sprintf("unknown value %q", s))
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// transitions lists every legal edge. A job is running from the moment it is
// dispatched, so dispatch errors fail it from running.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
	JobStatusFailed:  {JobStatusPending},
}

func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one generation request and its reconciled remote state.
type Job struct {
	ID           string          `json:"id"`
	Kind         JobKind         `json:"kind"`
	Provider     ProviderID      `json:"provider"`
	Model        string          `json:"model"`
	Input        json.RawMessage `json:"input"`
	Status       JobStatus       `json:"status"`
	Progress     *int            `json:"progress,omitempty"`
	RemoteToken  string          `json:"remote_token,omitempty"`
	ResultID     string          `json:"result_id,omitempty"`
	Error        string          `json:"error,omitempty"`
	PollAttempts int             `json:"poll_attempts"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func NewJob(id string, kind JobKind, provider ProviderID, model string, input json.RawMessage, now time.Time) *Job {
	return &Job{
		ID:        id,
		Kind:      kind,
		Provider:  provider,
		Model:     model,
		Input:     input,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the job along a legal edge and applies the side effects of
// entering the target state.
func (j *Job) Transition(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = now
	switch to {
	case JobStatusPending:
		zero := 0
		j.Error = ""
		j.Progress = &zero
		j.PollAttempts = 0
		j.RemoteToken = ""
		j.ResultID = ""
		j.CompletedAt = nil
	case JobStatusCompleted:
		full := 100
		j.Progress = &full
		j.Error = ""
		j.CompletedAt = &now
	case JobStatusFailed:
		j.CompletedAt = &now
	}
	return nil
}

// Fail records msg and moves the job to failed.
func (j *Job) Fail(msg string, now time.Time) error {
	if err := j.Transition(JobStatusFailed, now); err != nil {
		return err
	}
	j.Error = msg
	return nil
}

// JobEvent is announced to observers when a job reaches a terminal state.
type JobEvent struct {
	JobID    string     `json:"job_id"`
	Kind     JobKind    `json:"kind"`
	Provider ProviderID `json:"provider"`
	Status   JobStatus  `json:"status"`
	ResultID string     `json:"result_id,omitempty"`
	Error    string     `json:"error,omitempty"`
	At       time.Time  `json:"at"`
}

func (j *Job) Event() JobEvent {
	return JobEvent{
		JobID:    j.ID,
		Kind:     j.Kind,
		Provider: j.Provider,
		Status:   j.Status,
		ResultID: j.ResultID,
		Error:    j.Error,
		At:       j.UpdatedAt,
	}
}
