package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/library"
	"github.com/ankyy/musicbox/internal/usage"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/google/uuid"
)

type (
	// Extractor is the external tool wrapper consumed by the pipeline.
	// Playlist resolution is not part of a jobs execution; it happens
	// before submission, so the pipeline has no use for it here.
	Extractor interface {
		Probe(ctx context.Context, url string) (*ytdlp.MediaMetadata, error)
		Fetch(ctx context.Context, args []string) error
		FetchArgs(url string, outputTemplate string, kind ytdlp.TargetKind, quality ytdlp.Quality, effect ytdlp.Effect) []string
	}

	// DataStore is the union of the persistence collaborators the pipeline
	// writes to: the append-only usage log and the library of completed
	// files.
	DataStore interface {
		AppendUsage(ctx context.Context, record *usage.Record) error
		SaveFile(ctx context.Context, record *library.FileRecord) error
	}

	// extractionPipeline performs a single jobs extraction: a metadata
	// probe, normalization, output naming, and (unless the job is
	// metadata-only) the full fetch/convert invocation. One attempt per
	// job, no retries.
	extractionPipeline struct {
		extractor Extractor
		store     DataStore
		eventBus  event.EventCoordinator
		outputDir string
	}
)

func NewPipeline(extractor Extractor, store DataStore, eventBus event.EventCoordinator, outputDir string) (*extractionPipeline, error) {
	if err := os.MkdirAll(outputDir, os.ModeDir|os.ModePerm); err != nil {
		return nil, fmt.Errorf("output directory '%s' could not be created: %w", outputDir, err)
	}

	return &extractionPipeline{
		extractor: extractor,
		store:     store,
		eventBus:  eventBus,
		outputDir: outputDir,
	}, nil
}

// Execute runs the job provided to completion. A usage record is appended
// as soon as the extraction is *attempted* - success or failure - as the
// record doubles as quota history and audit trail.
func (pipeline *extractionPipeline) Execute(ctx context.Context, job *Job) (*Result, error) {
	request := job.Request()
	started := time.Now()

	meta, probeErr := pipeline.extractor.Probe(ctx, request.URL)
	pipeline.recordAttempt(ctx, request, meta)
	if probeErr != nil {
		return nil, probeErr
	}

	result := &Result{
		Title:          meta.Title,
		Author:         meta.Author,
		Thumbnail:      meta.Thumbnail,
		MediaRef:       meta.MediaRef,
		Kind:           extensionFor(request.Kind),
		SizeEstimateMB: meta.SizeEstimateMB,
		Platform:       meta.Platform,
	}

	if request.MetadataOnly {
		return result, nil
	}

	stem := ytdlp.SanitizeTitle(meta.Title) + variantSuffix(request)
	filename := fmt.Sprintf("%s.%s", stem, extensionFor(request.Kind))
	outputTemplate := filepath.Join(pipeline.outputDir, stem+".%(ext)s")

	args := pipeline.extractor.FetchArgs(request.URL, outputTemplate, request.Kind, request.Quality, request.Effect)
	if err := pipeline.extractor.Fetch(ctx, args); err != nil {
		return nil, err
	}

	result.Filename = filename
	result.FetchSeconds = time.Since(started).Seconds()
	if info, err := os.Stat(filepath.Join(pipeline.outputDir, filename)); err == nil {
		result.SizeEstimateMB = float64(info.Size()) / (1024 * 1024)
	}

	record := &library.FileRecord{
		ID:           uuid.New(),
		Title:        ytdlp.SanitizeTitle(meta.Title),
		Filename:     filename,
		Kind:         extensionFor(request.Kind),
		Quality:      string(request.Quality),
		Effect:       string(request.Effect),
		Thumbnail:    meta.Thumbnail,
		SizeMB:       result.SizeEstimateMB,
		Status:       "Success",
		FetchSeconds: result.FetchSeconds,
		CreatedAt:    time.Now(),
	}
	if err := pipeline.store.SaveFile(ctx, record); err != nil {
		// The media itself was fetched fine; a bookkeeping failure should
		// not fail the job.
		log.Errorf("Failed to save library record for %s: %v\n", filename, err)
	} else {
		result.FileID = record.ID
		pipeline.eventBus.Dispatch(event.LibraryUpdateEvent, record.ID)
	}

	return result, nil
}

// recordAttempt appends the append-only usage record for this attempt. When
// the probe failed the record is written with defined defaults; accounting
// must reflect attempts, not only successes. An append failure is logged but
// never surfaced - usage accounting is softer than the feature itself.
func (pipeline *extractionPipeline) recordAttempt(ctx context.Context, request Request, meta *ytdlp.MediaMetadata) {
	record := &usage.Record{
		ID:        uuid.New(),
		URL:       request.URL,
		Kind:      extensionFor(request.Kind),
		Title:     ytdlp.DefaultTitle,
		Platform:  ytdlp.DefaultPlatform,
		CreatedAt: time.Now(),
	}
	if meta != nil {
		record.Title = meta.Title
		record.Platform = meta.Platform
	}

	if request.Identity.Authenticated {
		userID := request.Identity.UserID
		record.UserID = &userID
	} else {
		record.ClientKey = request.ClientKey
	}

	if err := pipeline.store.AppendUsage(ctx, record); err != nil {
		log.Warnf("Failed to append usage record for %s: %v\n", request.URL, err)
	}
}

// variantSuffix keeps differently-converted outputs of the same media
// distinguishable on disk: video outputs encode their quality tier, and any
// applied effect is appended for both kinds.
func variantSuffix(request Request) string {
	suffix := ""
	if request.Kind == ytdlp.KindVideo {
		suffix += "-" + string(request.Quality)
	}
	if request.Effect != ytdlp.EffectNone {
		suffix += "-" + string(request.Effect)
	}

	return suffix
}

func extensionFor(kind ytdlp.TargetKind) string {
	if kind == ytdlp.KindVideo {
		return "mp4"
	}

	return "mp3"
}
