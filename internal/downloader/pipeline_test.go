package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/identity"
	"github.com/ankyy/musicbox/internal/library"
	"github.com/ankyy/musicbox/internal/usage"
	"github.com/ankyy/musicbox/internal/ytdlp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var errExpectedInternal = errors.New("test: expected error")

type mockExtractor struct {
	mock.Mock
	config ytdlp.Config
}

func (extractor *mockExtractor) Probe(ctx context.Context, url string) (*ytdlp.MediaMetadata, error) {
	args := extractor.Called(ctx, url)
	if meta := args.Get(0); meta != nil {
		return meta.(*ytdlp.MediaMetadata), args.Error(1)
	}
	return nil, args.Error(1)
}

func (extractor *mockExtractor) Fetch(ctx context.Context, args []string) error {
	return extractor.Called(ctx, args).Error(0)
}

func (extractor *mockExtractor) FetchArgs(url string, outputTemplate string, kind ytdlp.TargetKind, quality ytdlp.Quality, effect ytdlp.Effect) []string {
	// Delegate to the real composition so assertions exercise genuine args.
	return ytdlp.NewClient(extractor.config).FetchArgs(url, outputTemplate, kind, quality, effect)
}

type mockDataStore struct {
	mock.Mock
}

func (store *mockDataStore) AppendUsage(ctx context.Context, record *usage.Record) error {
	return store.Called(ctx, record).Error(0)
}

func (store *mockDataStore) SaveFile(ctx context.Context, record *library.FileRecord) error {
	return store.Called(ctx, record).Error(0)
}

func probedMetadata() *ytdlp.MediaMetadata {
	return &ytdlp.MediaMetadata{
		Title:    "My Song! (Official)",
		Author:   "Artist",
		Platform: "Youtube",
		MediaRef: "https://example.com/watch?v=abc",
	}
}

func Test_Execute_MetadataOnlySkipsFetch(t *testing.T) {
	t.Parallel()

	extractor := &mockExtractor{}
	store := &mockDataStore{}
	pipeline, err := NewPipeline(extractor, store, event.New(), t.TempDir())
	assert.Nil(t, err)

	extractor.On("Probe", mock.Anything, "https://example.com/watch?v=abc").Return(probedMetadata(), nil).Once()
	store.On("AppendUsage", mock.Anything, mock.Anything).Return(nil).Once()

	job := newJob(Request{URL: "https://example.com/watch?v=abc", Kind: ytdlp.KindAudio, MetadataOnly: true})
	result, err := pipeline.Execute(context.Background(), job)

	assert.Nil(t, err)
	assert.Equal(t, "My Song! (Official)", result.Title)
	assert.Equal(t, "Artist", result.Author)
	assert.Equal(t, "mp3", result.Kind)
	assert.Empty(t, result.Filename)
	extractor.AssertNotCalled(t, "Fetch")
	store.AssertNotCalled(t, "SaveFile")
	store.AssertExpectations(t)
}

func Test_Execute_UsageRecordedEvenWhenProbeFails(t *testing.T) {
	t.Parallel()

	extractor := &mockExtractor{}
	store := &mockDataStore{}
	pipeline, err := NewPipeline(extractor, store, event.New(), t.TempDir())
	assert.Nil(t, err)

	extractor.On("Probe", mock.Anything, mock.Anything).Return(nil, errExpectedInternal).Once()
	store.On("AppendUsage", mock.Anything, mock.MatchedBy(func(record *usage.Record) bool {
		return record.Title == ytdlp.DefaultTitle && record.Platform == ytdlp.DefaultPlatform && record.ClientKey == "10.0.0.1"
	})).Return(nil).Once()

	job := newJob(Request{URL: "https://example.com/broken", Kind: ytdlp.KindAudio, ClientKey: "10.0.0.1"})
	_, err = pipeline.Execute(context.Background(), job)

	assert.ErrorIs(t, err, errExpectedInternal)
	store.AssertExpectations(t)
}

func Test_Execute_UsageRecordCarriesUserIDWhenAuthenticated(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	extractor := &mockExtractor{}
	store := &mockDataStore{}
	pipeline, err := NewPipeline(extractor, store, event.New(), t.TempDir())
	assert.Nil(t, err)

	extractor.On("Probe", mock.Anything, mock.Anything).Return(probedMetadata(), nil).Once()
	store.On("AppendUsage", mock.Anything, mock.MatchedBy(func(record *usage.Record) bool {
		return record.UserID != nil && *record.UserID == userID && record.ClientKey == ""
	})).Return(nil).Once()

	job := newJob(Request{
		URL:          "https://example.com/watch?v=abc",
		Kind:         ytdlp.KindAudio,
		MetadataOnly: true,
		Identity:     identity.Identity{Authenticated: true, UserID: userID, Role: identity.RoleMember},
		ClientKey:    "10.0.0.1",
	})
	_, err = pipeline.Execute(context.Background(), job)

	assert.Nil(t, err)
	store.AssertExpectations(t)
}

func Test_Execute_FullFetchSavesVariantSuffixedFile(t *testing.T) {
	t.Parallel()

	outputDir := t.TempDir()
	extractor := &mockExtractor{}
	store := &mockDataStore{}
	eventBus := event.New()
	libraryUpdates := make(event.HandlerChannel, 4)
	eventBus.RegisterHandlerChannel(libraryUpdates, event.LibraryUpdateEvent)

	pipeline, err := NewPipeline(extractor, store, eventBus, outputDir)
	assert.Nil(t, err)

	// The effect-variant output must be suffixed so it cannot clobber the
	// plain conversion of the same media.
	expectedStem := "My Song Official-nightcore"
	expectedTemplate := filepath.Join(outputDir, expectedStem+".%(ext)s")

	extractor.On("Probe", mock.Anything, mock.Anything).Return(probedMetadata(), nil).Once()
	extractor.On("Fetch", mock.Anything, mock.MatchedBy(func(args []string) bool {
		for _, arg := range args {
			if arg == expectedTemplate {
				return true
			}
		}
		return false
	})).Run(func(args mock.Arguments) {
		assert.Nil(t, os.WriteFile(filepath.Join(outputDir, expectedStem+".mp3"), make([]byte, 2*1024*1024), 0o644))
	}).Return(nil).Once()

	store.On("AppendUsage", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("SaveFile", mock.Anything, mock.MatchedBy(func(record *library.FileRecord) bool {
		return record.Filename == expectedStem+".mp3" &&
			record.Effect == string(ytdlp.EffectNightcore) &&
			record.Status == "Success"
	})).Return(nil).Once()

	job := newJob(Request{URL: "https://example.com/watch?v=abc", Kind: ytdlp.KindAudio, Quality: ytdlp.QualityMax, Effect: ytdlp.EffectNightcore})
	result, err := pipeline.Execute(context.Background(), job)

	assert.Nil(t, err)
	assert.Equal(t, expectedStem+".mp3", result.Filename)
	assert.InDelta(t, 2.0, result.SizeEstimateMB, 0.001)
	assert.NotEqual(t, uuid.Nil, result.FileID)

	select {
	case message := <-libraryUpdates:
		assert.Equal(t, result.FileID, message.Payload)
	default:
		t.Fatal("no library update published after successful fetch")
	}

	extractor.AssertExpectations(t)
	store.AssertExpectations(t)
}

func Test_Execute_BookkeepingFailureDoesNotFailJob(t *testing.T) {
	t.Parallel()

	outputDir := t.TempDir()
	extractor := &mockExtractor{}
	store := &mockDataStore{}
	pipeline, err := NewPipeline(extractor, store, event.New(), outputDir)
	assert.Nil(t, err)

	extractor.On("Probe", mock.Anything, mock.Anything).Return(probedMetadata(), nil).Once()
	extractor.On("Fetch", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("AppendUsage", mock.Anything, mock.Anything).Return(errExpectedInternal).Once()
	store.On("SaveFile", mock.Anything, mock.Anything).Return(errExpectedInternal).Once()

	job := newJob(Request{URL: "https://example.com/watch?v=abc", Kind: ytdlp.KindAudio, Quality: ytdlp.QualityMax, Effect: ytdlp.EffectNone})
	result, err := pipeline.Execute(context.Background(), job)

	assert.Nil(t, err)
	assert.Equal(t, uuid.Nil, result.FileID, "file ID must stay unset when the library write failed")
}
