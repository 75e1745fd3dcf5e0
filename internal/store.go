package internal

import (
	"context"
	"time"

	"github.com/ankyy/musicbox/internal/database"
	"github.com/ankyy/musicbox/internal/library"
	"github.com/ankyy/musicbox/internal/usage"
	"github.com/google/uuid"
)

// dataOrchestrator links the 'dumb' per-table stores with the database
// manager, exposing the union of persistence behaviour the services consume
// (the pipelines usage/library writes, the admission counter, and the
// query surface behind the history/library controllers).
type dataOrchestrator struct {
	db           database.Manager
	usageStore   *usage.Store
	libraryStore *library.Store
}

func newDataOrchestrator(db database.Manager) *dataOrchestrator {
	return &dataOrchestrator{
		db:           db,
		usageStore:   usage.NewStore(),
		libraryStore: library.NewStore(),
	}
}

func (orchestrator *dataOrchestrator) AppendUsage(_ context.Context, record *usage.Record) error {
	return orchestrator.usageStore.Append(orchestrator.db.GetSqlxDb(), record)
}

func (orchestrator *dataOrchestrator) SaveFile(_ context.Context, record *library.FileRecord) error {
	return orchestrator.libraryStore.Save(orchestrator.db.GetSqlxDb(), record)
}

func (orchestrator *dataOrchestrator) IncrementAndCount(_ context.Context, clientKey string, windowStart time.Time) (int, error) {
	return orchestrator.usageStore.IncrementAndCount(orchestrator.db.GetSqlxDb(), clientKey, windowStart)
}

func (orchestrator *dataOrchestrator) HistoryForUser(userID uuid.UUID) ([]*usage.Record, error) {
	return orchestrator.usageStore.HistoryForUser(orchestrator.db.GetSqlxDb(), userID)
}

func (orchestrator *dataOrchestrator) CountAllUsage() (int, error) {
	return orchestrator.usageStore.CountAll(orchestrator.db.GetSqlxDb())
}

func (orchestrator *dataOrchestrator) ListFiles(limit uint64) ([]*library.FileRecord, error) {
	return orchestrator.libraryStore.List(orchestrator.db.GetSqlxDb(), limit)
}

func (orchestrator *dataOrchestrator) GetFile(id uuid.UUID) (*library.FileRecord, error) {
	return orchestrator.libraryStore.Get(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *dataOrchestrator) DeleteFile(id uuid.UUID) error {
	return orchestrator.libraryStore.Delete(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *dataOrchestrator) CountFiles() (int, error) {
	return orchestrator.libraryStore.Count(orchestrator.db.GetSqlxDb())
}

func (orchestrator *dataOrchestrator) TotalLibrarySizeMB() (float64, error) {
	return orchestrator.libraryStore.TotalSizeMB(orchestrator.db.GetSqlxDb())
}
