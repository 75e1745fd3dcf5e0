package downloader_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ankyy/musicbox/internal/downloader"
	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/stretchr/testify/assert"
)

var errExpected = errors.New("test: expected error")

// blockingPipeline is a Pipeline double whose executions block until released,
// recording execution order and the peak number of simultaneous executions.
type blockingPipeline struct {
	mu          sync.Mutex
	order       []string
	running     int
	peakRunning int
	release     chan struct{}
	failURLs    map[string]bool
}

func newBlockingPipeline() *blockingPipeline {
	return &blockingPipeline{
		release:  make(chan struct{}),
		failURLs: make(map[string]bool),
	}
}

func (pipeline *blockingPipeline) Execute(ctx context.Context, job *downloader.Job) (*downloader.Result, error) {
	url := job.Request().URL

	pipeline.mu.Lock()
	pipeline.order = append(pipeline.order, url)
	pipeline.running++
	if pipeline.running > pipeline.peakRunning {
		pipeline.peakRunning = pipeline.running
	}
	pipeline.mu.Unlock()

	defer func() {
		pipeline.mu.Lock()
		pipeline.running--
		pipeline.mu.Unlock()
	}()

	select {
	case <-pipeline.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if pipeline.failURLs[url] {
		return nil, errExpected
	}

	return &downloader.Result{Title: "Title for " + url}, nil
}

func (pipeline *blockingPipeline) executionOrder() []string {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()

	order := make([]string, len(pipeline.order))
	copy(order, pipeline.order)
	return order
}

func (pipeline *blockingPipeline) peak() int {
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	return pipeline.peakRunning
}

// Service is the scheduler surface exercised by these tests.
type Service interface {
	Submit(request downloader.Request) *downloader.Job
	Snapshot() event.QueueSnapshot
}

func startService(t *testing.T, config downloader.Config, eventBus event.EventCoordinator, pipeline downloader.Pipeline) Service {
	srv, err := downloader.New(config, eventBus, pipeline)
	assert.Nil(t, err)

	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.Nil(t, srv.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return srv
}

func request(url string) downloader.Request {
	return downloader.Request{URL: url, Kind: ytdlp.KindAudio, Quality: ytdlp.QualityMax, Effect: ytdlp.EffectNone}
}

func Test_New_RejectsNonPositiveConcurrency(t *testing.T) {
	t.Parallel()

	_, err := downloader.New(downloader.Config{ConcurrencyLimit: 0}, event.New(), newBlockingPipeline())
	assert.NotNil(t, err)
}

func Test_Submit_IsNonBlockingWhenSaturated(t *testing.T) {
	t.Parallel()

	pipeline := newBlockingPipeline()
	srv := startService(t, downloader.Config{ConcurrencyLimit: 1}, event.New(), pipeline)

	// With a single slot and a blocked pipeline, every submission past the
	// first can only ever queue. None of them may block the caller.
	var jobs []*downloader.Job
	for i := 0; i < 10; i++ {
		done := make(chan *downloader.Job, 1)
		go func(i int) { done <- srv.Submit(request(fmt.Sprintf("https://example.com/%d", i))) }(i)

		select {
		case job := <-done:
			jobs = append(jobs, job)
		case <-time.After(time.Second):
			t.Fatal("Submit blocked the caller")
		}
	}

	close(pipeline.release)
	for _, job := range jobs {
		assert.Nil(t, job.Wait(context.Background()))
	}
}

func Test_Dispatch_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	pipeline := newBlockingPipeline()
	srv := startService(t, downloader.Config{ConcurrencyLimit: 2}, event.New(), pipeline)

	var jobs []*downloader.Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, srv.Submit(request(fmt.Sprintf("https://example.com/%d", i))))
	}

	// Exactly two jobs should make it in to the pipeline while it blocks.
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, 2, pipeline.peak())
	}, time.Second*5, time.Millisecond*10)
	assert.Equal(t, 2, srv.Snapshot().ActiveCount)

	close(pipeline.release)
	for _, job := range jobs {
		assert.Nil(t, job.Wait(context.Background()))
	}

	assert.LessOrEqual(t, pipeline.peak(), 2)
	assert.Equal(t, event.QueueSnapshot{PendingLength: 0, ActiveCount: 0}, srv.Snapshot())
}

func Test_Dispatch_AdmitsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	pipeline := newBlockingPipeline()
	srv := startService(t, downloader.Config{ConcurrencyLimit: 1}, event.New(), pipeline)

	expected := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c", "https://example.com/d"}
	var jobs []*downloader.Job
	for _, url := range expected {
		jobs = append(jobs, srv.Submit(request(url)))
	}

	close(pipeline.release)
	for _, job := range jobs {
		assert.Nil(t, job.Wait(context.Background()))
	}

	assert.Equal(t, expected, pipeline.executionOrder())
}

func Test_Dispatch_FailedJobIsIsolated(t *testing.T) {
	t.Parallel()

	pipeline := newBlockingPipeline()
	pipeline.failURLs["https://example.com/b"] = true
	srv := startService(t, downloader.Config{ConcurrencyLimit: 1}, event.New(), pipeline)

	jobA := srv.Submit(request("https://example.com/a"))
	jobB := srv.Submit(request("https://example.com/b"))
	jobC := srv.Submit(request("https://example.com/c"))

	close(pipeline.release)
	for _, job := range []*downloader.Job{jobA, jobB, jobC} {
		assert.Nil(t, job.Wait(context.Background()))
	}

	resultA, errA := jobA.Outcome()
	assert.Nil(t, errA)
	assert.Equal(t, "Title for https://example.com/a", resultA.Title)
	assert.Equal(t, downloader.Succeeded, jobA.Status())

	_, errB := jobB.Outcome()
	assert.ErrorIs(t, errB, errExpected)
	assert.Equal(t, downloader.Failed, jobB.Status())

	// The failure of B must not have stopped C from being dispatched.
	_, errC := jobC.Outcome()
	assert.Nil(t, errC)
	assert.Equal(t, downloader.Succeeded, jobC.Status())
}

func Test_Submit_PublishesQueueSnapshots(t *testing.T) {
	t.Parallel()

	eventBus := event.New()
	snapshots := make(event.HandlerChannel, 64)
	eventBus.RegisterHandlerChannel(snapshots, event.QueueUpdateEvent)

	pipeline := newBlockingPipeline()
	srv := startService(t, downloader.Config{ConcurrencyLimit: 1}, eventBus, pipeline)

	job := srv.Submit(request("https://example.com/only"))

	// First frame: the job is queued.
	select {
	case message := <-snapshots:
		snapshot, ok := message.Payload.(event.QueueSnapshot)
		assert.True(t, ok)
		assert.Equal(t, event.QueueSnapshot{PendingLength: 1, ActiveCount: 0}, snapshot)
	case <-time.After(time.Second):
		t.Fatal("no queue snapshot published on submission")
	}

	close(pipeline.release)
	assert.Nil(t, job.Wait(context.Background()))

	// Listeners must eventually observe the fully-drained queue.
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		for {
			select {
			case message := <-snapshots:
				if message.Payload == (event.QueueSnapshot{PendingLength: 0, ActiveCount: 0}) {
					return
				}
			default:
				assert.Fail(c, "drained snapshot not yet observed")
				return
			}
		}
	}, time.Second*5, time.Millisecond*10)
}

func Test_Job_StatusSafeToPollWhileRunning(t *testing.T) {
	t.Parallel()

	pipeline := newBlockingPipeline()
	srv := startService(t, downloader.Config{ConcurrencyLimit: 1}, event.New(), pipeline)

	job := srv.Submit(request("https://example.com/polled"))

	// Poll the status continuously while the scheduler advances the job
	// through queued, running and terminal states. Under the race detector
	// this fails if the reads are not synchronized with the writers.
	stop := make(chan struct{})
	polled := sync.WaitGroup{}
	polled.Add(1)
	go func() {
		defer polled.Done()
		for {
			select {
			case <-stop:
				return
			default:
				status := job.Status()
				assert.GreaterOrEqual(t, int(status), int(downloader.Queued))
				assert.LessOrEqual(t, int(status), int(downloader.Failed))
			}
		}
	}()

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.Equal(c, downloader.Running, job.Status())
	}, time.Second*5, time.Millisecond*10)

	close(pipeline.release)
	assert.Nil(t, job.Wait(context.Background()))
	close(stop)
	polled.Wait()

	assert.Equal(t, downloader.Succeeded, job.Status())
}

func Test_Job_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	pipeline := newBlockingPipeline()
	srv := startService(t, downloader.Config{ConcurrencyLimit: 1}, event.New(), pipeline)

	job := srv.Submit(request("https://example.com/slow"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	assert.ErrorIs(t, job.Wait(ctx), context.DeadlineExceeded)

	_, err := job.Outcome()
	assert.NotNil(t, err, "outcome must not be readable before the job concludes")

	close(pipeline.release)
	assert.Nil(t, job.Wait(context.Background()))
}
