package api

import (
	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/http/websocket"
	"github.com/ankyy/musicbox/internal/library"
	"github.com/ankyy/musicbox/pkg/logger"
)

const (
	TitleQueueUpdate = "QUEUE_UPDATE"
	TitleActivityLog = "ACTIVITY_LOG"
	TitleStatsUpdate = "STATS_UPDATE"
)

type (
	// statsStore is the read surface needed to compose a library stats
	// frame. Stats are recomputed on demand rather than cached; the
	// underlying counts are cheap aggregates.
	statsStore interface {
		CountFiles() (int, error)
		TotalLibrarySizeMB() (float64, error)
		CountAllUsage() (int, error)
		ListFiles(limit uint64) ([]*library.FileRecord, error)
	}

	// broadcaster bridges the internal event bus and the websocket hub. It
	// is the only consumer-facing projection of scheduler state; listeners
	// receive every queue snapshot, activity line and library stats change
	// as push frames.
	broadcaster struct {
		socketHub *websocket.SocketHub
		store     statsStore
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, store statsStore, eventBus event.EventHandler) *broadcaster {
	hub := &broadcaster{socketHub: socketHub, store: store}

	eventBus.RegisterAsyncHandlerFunction(event.QueueUpdateEvent, hub.handleQueueUpdate)
	eventBus.RegisterAsyncHandlerFunction(event.ActivityLogEvent, hub.handleActivityLog)
	eventBus.RegisterAsyncHandlerFunction(event.LibraryUpdateEvent, hub.handleLibraryUpdate)

	return hub
}

func (hub *broadcaster) handleQueueUpdate(_ event.Event, payload event.Payload) {
	snapshot, ok := payload.(event.QueueSnapshot)
	if !ok {
		return
	}

	hub.broadcast(TitleQueueUpdate, map[string]interface{}{
		"length": snapshot.PendingLength,
		"active": snapshot.ActiveCount,
	})
}

func (hub *broadcaster) handleActivityLog(_ event.Event, payload event.Payload) {
	entry, ok := payload.(event.ActivityLog)
	if !ok {
		return
	}

	hub.broadcast(TitleActivityLog, map[string]interface{}{
		"message": entry.Message,
		"type":    entry.Severity,
	})
}

func (hub *broadcaster) handleLibraryUpdate(event.Event, event.Payload) {
	hub.broadcast(TitleStatsUpdate, hub.StatsSnapshot())
}

// StatsSnapshot composes the library stats frame. It doubles as the welcome
// payload for newly connected clients, so they see current figures without
// waiting for the next library change.
func (hub *broadcaster) StatsSnapshot() map[string]interface{} {
	totalFiles, err := hub.store.CountFiles()
	if err != nil {
		log.Emit(logger.WARNING, "Failed to count library files for stats frame: %v\n", err)
	}

	storageUsed, err := hub.store.TotalLibrarySizeMB()
	if err != nil {
		log.Emit(logger.WARNING, "Failed to sum library storage for stats frame: %v\n", err)
	}

	totalExtractions, err := hub.store.CountAllUsage()
	if err != nil {
		log.Emit(logger.WARNING, "Failed to count usage records for stats frame: %v\n", err)
	}

	recent, err := hub.store.ListFiles(5)
	if err != nil {
		log.Emit(logger.WARNING, "Failed to list recent library files for stats frame: %v\n", err)
	}

	return map[string]interface{}{
		"totalFiles":       totalFiles,
		"storageUsage":     storageUsed,
		"totalExtractions": totalExtractions,
		"recentActivity":   recent,
	}
}

func (hub *broadcaster) broadcast(title string, body map[string]interface{}) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  body,
		Type:  websocket.Update,
	})
}
