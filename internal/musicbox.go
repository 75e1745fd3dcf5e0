package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/ankyy/musicbox/internal/admission"
	"github.com/ankyy/musicbox/internal/api"
	"github.com/ankyy/musicbox/internal/database"
	"github.com/ankyy/musicbox/internal/downloader"
	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/ankyy/musicbox/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// DownloadService is the schedulers surface as consumed by the core and
	// the REST gateway.
	DownloadService interface {
		RunnableService
		Submit(request downloader.Request) *downloader.Job
		Snapshot() event.QueueSnapshot
	}
)

// musicBox represents the top-level object for the server, and is
// responsible for initialising the stores, services, event handling and the
// HTTP/websocket gateway.
type musicBox struct {
	eventBus event.EventCoordinator
	config   MusicBoxConfig

	db   database.Manager
	data *dataOrchestrator

	extractor       *ytdlp.Client
	downloadService DownloadService
	restGateway     RunnableService
}

// New constructs the engine core from the config provided. Construction
// wires services together but performs no I/O; connections are established
// by Run.
func New(config MusicBoxConfig) (*musicBox, error) {
	eventBus := event.New()
	db := database.New()
	data := newDataOrchestrator(db)
	extractor := ytdlp.NewClient(config.Extractor)

	pipeline, err := downloader.NewPipeline(extractor, data, eventBus, config.Downloader.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to construct extraction pipeline: %w", err)
	}

	downloadService, err := downloader.New(config.Downloader, eventBus, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to construct download service: %w", err)
	}

	resolver := identity.NewResolver([]byte(config.AuthSecret))
	admissionController := admission.NewController(config.Admission, data)

	box := &musicBox{
		eventBus:        eventBus,
		config:          config,
		db:              db,
		data:            data,
		extractor:       extractor,
		downloadService: downloadService,
	}
	restConfig := config.RestConfig
	restConfig.LibraryDir = config.Downloader.OutputDir
	box.restGateway = api.NewRestGateway(
		&restConfig,
		resolver,
		admissionController,
		downloadService,
		extractor,
		data,
		eventBus,
	)

	return box, nil
}

// Run brings up the database connection and then all long-running services.
// This function will not return until the engine is stopped; to stop it,
// cancel the provided context. A crash in any service cancels the rest.
func (box *musicBox) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := box.db.Connect(box.config.Database); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	box.spawnAsyncService(ctx, wg, box.downloadService, "download-service", crashHandler)
	box.spawnAsyncService(ctx, wg, box.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "MusicBox services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the service waitgroup is updated correctly.
func (box *musicBox) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
