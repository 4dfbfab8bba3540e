package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a playbook synthesis job.
type JobStatus string

const (
	StatusQueued       JobStatus = "queued"
	StatusLoading      JobStatus = "loading"
	StatusFlattening   JobStatus = "flattening"
	StatusSynthesizing JobStatus = "synthesizing"
	StatusStoring      JobStatus = "storing"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
	StatusPartial      JobStatus = "partial"
)

// Done reports whether the status is terminal.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// Job tracks the state of a single playbook synthesis.
type Job struct {
	mu sync.Mutex

	ID          string
	UserID      string
	Title       string
	DocumentIDs []string

	Status     JobStatus
	Phase      string
	Progress   Progress
	PlaybookID string

	CreatedAt time.Time
	UpdatedAt time.Time

	errors []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalDocuments     int      `json:"total_documents"`
	DocumentsLoaded    int      `json:"documents_loaded"`
	DocumentsFlattened int      `json:"documents_flattened"`
	ContextTokens      int      `json:"context_tokens"`
	Sections           int      `json:"sections"`
	Errors             []string `json:"errors"`
}

// NewJob returns a queued job for the given user and source documents.
func NewJob(userID, title string, documentIDs []string) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		DocumentIDs: documentIDs,
		Status:      StatusQueued,
		Phase:       "queued",
		Progress:    Progress{TotalDocuments: len(documentIDs)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// HasErrors reports whether any error was recorded.
func (j *Job) HasErrors() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.errors) > 0
}

func (j *Job) update(fn func(p *Progress)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.Progress)
	j.UpdatedAt = time.Now()
}

func (j *Job) setPlaybook(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.PlaybookID = id
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	DocumentIDs []string  `json:"document_ids"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	PlaybookID  string    `json:"playbook_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.Progress
	p.Errors = append([]string{}, j.errors...)
	return JobSnapshot{
		ID:          j.ID,
		UserID:      j.UserID,
		Title:       j.Title,
		DocumentIDs: append([]string(nil), j.DocumentIDs...),
		Status:      j.Status,
		Phase:       j.Phase,
		Progress:    p,
		PlaybookID:  j.PlaybookID,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}
