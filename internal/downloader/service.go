package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/pkg/logger"
	"github.com/google/uuid"
)

var (
	log = logger.Get("Downloader")

	ErrJobNotFound = errors.New("no job found")
)

type (
	// Pipeline executes a single running job to completion. Implementations
	// perform at most one attempt; retries are the callers responsibility.
	Pipeline interface {
		Execute(ctx context.Context, job *Job) (*Result, error)
	}

	Config struct {
		// ConcurrencyLimit bounds how many jobs may run the external tool
		// simultaneously. yt-dlp is slow and bandwidth-hungry; two at a
		// time keeps the host responsive.
		ConcurrencyLimit int `yaml:"concurrency_limit" env:"DOWNLOADER_CONCURRENCY_LIMIT" env-default:"2"`

		// OutputDir receives fetched media files.
		OutputDir string `yaml:"output_dir" env:"DOWNLOADER_OUTPUT_DIR" env-default:"./downloads"`
	}

	// downloaderService is the engines job scheduler. It admits jobs in to
	// running in strict FIFO order, bounded by the configured concurrency
	// limit, while remaining non-blocking to submitters. All queue
	// bookkeeping (the pop-and-increment critical section) happens under a
	// single mutex owned by this service; the slow pipeline call itself
	// never holds it.
	//
	// After every state change the service publishes a QueueSnapshot on the
	// event bus; that feed is the only way external consumers learn about
	// progress.
	downloaderService struct {
		*sync.Mutex
		jobWg  *sync.WaitGroup
		config *Config

		pending []*Job
		active  int

		eventBus event.EventCoordinator
		pipeline Pipeline

		queueChange chan bool
		jobChange   chan uuid.UUID
	}
)

// New creates the scheduler service. An error is returned if the
// configuration is unusable.
func New(config Config, eventBus event.EventCoordinator, pipeline Pipeline) (*downloaderService, error) {
	if config.ConcurrencyLimit < 1 {
		return nil, fmt.Errorf("downloader concurrency limit must be >= 1 (got %d)", config.ConcurrencyLimit)
	}

	return &downloaderService{
		Mutex:       &sync.Mutex{},
		jobWg:       &sync.WaitGroup{},
		config:      &config,
		pending:     make([]*Job, 0),
		eventBus:    eventBus,
		pipeline:    pipeline,
		queueChange: make(chan bool, 128),
		jobChange:   make(chan uuid.UUID, 128),
	}, nil
}

// Run is the main entry point for this service; it blocks until the context
// provided is cancelled. Dispatch attempts are funnelled through this single
// loop so that near-simultaneous triggers (a submission racing a completion
// callback) can never double-dispatch a queued job.
//
// Note: when the context is cancelled this method will not immediately
// return, as it waits for running jobs to conclude.
func (service *downloaderService) Run(ctx context.Context) error {
	for {
		select {
		case <-service.queueChange:
			service.dispatchWaiting(ctx)
		case jobID := <-service.jobChange:
			service.handleJobUpdate(jobID)
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for running jobs to conclude.\n")
			service.jobWg.Wait()
			return nil
		}
	}
}

// Submit appends a new Queued job for the request provided and returns
// immediately, regardless of queue depth. The returned Job can be waited on
// for synchronous completion semantics.
func (service *downloaderService) Submit(request Request) *Job {
	job := newJob(request)

	service.Lock()
	service.pending = append(service.pending, job)
	snapshot := service.snapshotLocked()
	service.Unlock()

	log.Emit(logger.NEW, "Queued %s\n", job)
	service.nudgeDispatch()
	service.eventBus.Dispatch(event.QueueUpdateEvent, snapshot)

	return job
}

// PendingJobs returns the jobs currently waiting for a concurrency slot, in
// dispatch order.
func (service *downloaderService) PendingJobs() []*Job {
	service.Lock()
	defer service.Unlock()

	jobs := make([]*Job, len(service.pending))
	copy(jobs, service.pending)
	return jobs
}

// Snapshot returns the current queue counters.
func (service *downloaderService) Snapshot() event.QueueSnapshot {
	service.Lock()
	defer service.Unlock()

	return service.snapshotLocked()
}

// dispatchWaiting pops jobs off the head of the pending queue and starts
// them, for as long as a concurrency slot is free. The pop + increment is
// the critical section guarded by the service mutex; the pipeline execution
// happens on its own goroutine without the lock.
func (service *downloaderService) dispatchWaiting(ctx context.Context) {
	for {
		service.Lock()
		if service.active >= service.config.ConcurrencyLimit || len(service.pending) == 0 {
			service.Unlock()
			return
		}

		job := service.pending[0]
		service.pending = service.pending[1:]
		job.markRunning()
		service.active++
		snapshot := service.snapshotLocked()
		service.Unlock()

		log.Debugf("Dispatching %s (active %d/%d)\n", job, snapshot.ActiveCount, service.config.ConcurrencyLimit)
		service.eventBus.Dispatch(event.QueueUpdateEvent, snapshot)
		service.eventBus.Dispatch(event.ActivityLogEvent, event.ActivityLog{
			Message:  fmt.Sprintf("Started: %s", job.request.URL),
			Severity: "info",
		})

		service.jobWg.Add(1)
		go func(running *Job) {
			defer service.jobWg.Done()

			result, err := service.pipeline.Execute(ctx, running)

			service.Lock()
			service.active--
			service.Unlock()

			running.conclude(result, err)

			if err != nil {
				log.Warnf("%s concluded with error: %v\n", running, err)
				service.eventBus.Dispatch(event.ActivityLogEvent, event.ActivityLog{
					Message:  fmt.Sprintf("Failed: %s", running.request.URL),
					Severity: "error",
				})
			} else {
				log.Emit(logger.SUCCESS, "%s concluded nominally\n", running)
				service.eventBus.Dispatch(event.ActivityLogEvent, event.ActivityLog{
					Message:  fmt.Sprintf("Finished: %s", result.Title),
					Severity: "success",
				})
			}

			// Completion must re-trigger dispatch so a queued job can take
			// the freed slot. Send non-blocking: if the service is shutting
			// down nobody is draining these channels anymore.
			select {
			case service.jobChange <- running.id:
			default:
			}
			service.nudgeDispatch()
		}(job)
	}
}

// handleJobUpdate publishes the terminal state of a finished job to
// listeners. A single jobs failure is isolated; the scheduler itself
// carries on regardless.
func (service *downloaderService) handleJobUpdate(jobID uuid.UUID) {
	service.Lock()
	snapshot := service.snapshotLocked()
	service.Unlock()

	service.eventBus.Dispatch(event.QueueUpdateEvent, snapshot)
	service.eventBus.Dispatch(event.JobCompleteEvent, jobID)
}

// nudgeDispatch requests a dispatch attempt from the Run loop without
// blocking the caller. The channel is buffered generously; a dropped nudge
// is harmless because another is sent on every queue mutation.
func (service *downloaderService) nudgeDispatch() {
	select {
	case service.queueChange <- true:
	default:
	}
}

func (service *downloaderService) snapshotLocked() event.QueueSnapshot {
	return event.QueueSnapshot{PendingLength: len(service.pending), ActiveCount: service.active}
}
