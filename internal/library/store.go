package library

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/ankyy/musicbox/internal/database"
	"github.com/google/uuid"
)

var ErrFileNotFound = errors.New("file record does not exist")

// FileRecord describes one completed conversion kept in the engines library.
type FileRecord struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Filename     string    `db:"filename" json:"filename"`
	Kind         string    `db:"kind" json:"type"`
	Quality      string    `db:"quality" json:"quality"`
	Effect       string    `db:"effect" json:"effect"`
	Thumbnail    string    `db:"thumbnail" json:"thumbnail"`
	SizeMB       float64   `db:"size_mb" json:"size"`
	Status       string    `db:"status" json:"status"`
	FetchSeconds float64   `db:"fetch_seconds" json:"downloadDuration"`
	CreatedAt    time.Time `db:"created_at" json:"date"`
}

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (store *Store) Save(db database.Queryable, record *FileRecord) error {
	_, err := db.NamedExec(`
		INSERT INTO library_files(id, title, filename, kind, quality, effect, thumbnail, size_mb, status, fetch_seconds, created_at)
		VALUES (:id, :title, :filename, :kind, :quality, :effect, :thumbnail, :size_mb, :status, :fetch_seconds, :created_at)
	`, record)
	if err != nil {
		return fmt.Errorf("failed to insert library file record: %w", err)
	}

	return nil
}

func (store *Store) Get(db database.Queryable, id uuid.UUID) (*FileRecord, error) {
	var record FileRecord
	if err := db.Get(&record, `SELECT * FROM library_files WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}

		return nil, err
	}

	return &record, nil
}

// List returns all file records, newest first, optionally capped.
func (store *Store) List(db database.Queryable, limit uint64) ([]*FileRecord, error) {
	builder := squirrel.
		Select("*").
		From("library_files").
		OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct library list query: %w", err)
	}

	results := make([]*FileRecord, 0)
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return results, nil
}

// TotalSizeMB returns the summed on-disk footprint of every file record.
func (store *Store) TotalSizeMB(db database.Queryable) (float64, error) {
	var total float64
	if err := db.Get(&total, `SELECT COALESCE(SUM(size_mb), 0) FROM library_files`); err != nil {
		return 0, err
	}

	return total, nil
}

func (store *Store) Count(db database.Queryable) (int, error) {
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM library_files`); err != nil {
		return 0, err
	}

	return count, nil
}

func (store *Store) Delete(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`DELETE FROM library_files WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrFileNotFound
	}

	return nil
}
