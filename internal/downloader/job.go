package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ankyy/musicbox/internal/identity"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/google/uuid"
)

type JobStatus int

const (
	Queued JobStatus = iota
	Running
	Succeeded
	Failed
)

func (s JobStatus) String() string {
	switch s {
	case Queued:
		return "QUEUED"
	case Running:
		return "RUNNING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	}

	return fmt.Sprintf("UNKNOWN[%d]", s)
}

// Terminal reports whether a job in this status has finished (successfully
// or not). Status transitions are strictly forward; a terminal job never
// re-enters the queue.
func (s JobStatus) Terminal() bool { return s == Succeeded || s == Failed }

// Request carries the unsanitized parameters of a submission, along with
// the admission context the pipeline needs for usage accounting.
type Request struct {
	URL          string
	Kind         ytdlp.TargetKind
	Quality      ytdlp.Quality
	Effect       ytdlp.Effect
	MetadataOnly bool

	Identity  identity.Identity
	ClientKey string
}

// Result is the canonical outcome of a successful job. Derived, immutable,
// produced once.
type Result struct {
	Title          string  `json:"title"`
	Author         string  `json:"author"`
	Thumbnail      string  `json:"thumbnail"`
	MediaRef       string  `json:"mediaRef"`
	Kind           string  `json:"type"`
	SizeEstimateMB float64 `json:"size"`
	Platform       string  `json:"platform"`

	// Filename and FileID are populated for full fetches only.
	Filename     string    `json:"filename,omitempty"`
	FileID       uuid.UUID `json:"fileId,omitempty"`
	FetchSeconds float64   `json:"downloadDuration,omitempty"`
}

// Job is one in-flight extraction/conversion request. The scheduler owns
// the job exclusively until it reaches a terminal status; after that,
// ownership passes to whoever holds the pointer returned by Submit.
type Job struct {
	id        uuid.UUID
	request   Request
	createdAt time.Time

	// mu guards status/result/err so callers may poll a job that the
	// scheduler is still mutating.
	mu     sync.Mutex
	status JobStatus
	result *Result
	err    error

	// Closed exactly once, when the job reaches a terminal status.
	done chan struct{}
}

func newJob(request Request) *Job {
	return &Job{
		id:        uuid.New(),
		request:   request,
		createdAt: time.Now(),
		status:    Queued,
		done:      make(chan struct{}),
	}
}

func (job *Job) ID() uuid.UUID    { return job.id }
func (job *Job) Request() Request { return job.request }

// Status returns the jobs current lifecycle state. Safe to call at any
// point, including while the scheduler is advancing the job.
func (job *Job) Status() JobStatus {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.status
}

// markRunning advances the job out of the pending queue. Transitions are
// strictly forward; only the owning scheduler calls this.
func (job *Job) markRunning() {
	job.mu.Lock()
	job.status = Running
	job.mu.Unlock()
}

// conclude records the terminal outcome and releases every waiter. Called
// exactly once per job.
func (job *Job) conclude(result *Result, err error) {
	job.mu.Lock()
	if err != nil {
		job.status = Failed
		job.err = err
	} else {
		job.status = Succeeded
		job.result = result
	}
	job.mu.Unlock()

	close(job.done)
}

// Wait blocks until the job reaches a terminal status, or until the context
// provided is cancelled. Waiting does not influence scheduling in any way.
func (job *Job) Wait(ctx context.Context) error {
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns the jobs result or failure. Only meaningful once Wait has
// returned without a context error.
func (job *Job) Outcome() (*Result, error) {
	select {
	case <-job.done:
		job.mu.Lock()
		defer job.mu.Unlock()
		return job.result, job.err
	default:
		return nil, fmt.Errorf("job %s has not reached a terminal status", job.id)
	}
}

func (job *Job) String() string {
	return fmt.Sprintf("Job{ID=%s URL=%s Status=%s}", job.id, job.request.URL, job.Status())
}
