package usage

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/ankyy/musicbox/internal/database"
	"github.com/google/uuid"
)

// Record is one line of the append-only usage log. A record is written for
// every *attempted* extraction (not only successful ones) and is never
// mutated afterwards. Anonymous attempts carry the client key; authenticated
// attempts carry the user ID instead.
type Record struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ClientKey string     `db:"client_key" json:"-"`
	UserID    *uuid.UUID `db:"user_id" json:"-"`
	URL       string     `db:"url" json:"url"`
	Platform  string     `db:"platform" json:"platform"`
	Kind      string     `db:"kind" json:"type"`
	Title     string     `db:"title" json:"title"`
	CreatedAt time.Time  `db:"created_at" json:"timestamp"`
}

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Append writes the record provided to the usage log.
func (store *Store) Append(db database.Queryable, record *Record) error {
	_, err := db.Exec(`
		INSERT INTO usage_records(id, client_key, user_id, url, platform, kind, title, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
	`, record.ID, record.ClientKey, record.UserID, record.URL, record.Platform, record.Kind, record.Title, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append usage record: %w", err)
	}

	return nil
}

// IncrementAndCount atomically bumps the admission counter for the
// (clientKey, window) pair and returns the post-increment tally. The upsert
// with RETURNING makes the increment and the read a single statement, so two
// concurrent requests from the same client can never both observe a stale
// under-limit count.
func (store *Store) IncrementAndCount(db database.Queryable, clientKey string, windowStart time.Time) (int, error) {
	var tally int
	row := db.QueryRowx(`
		INSERT INTO admission_counters(client_key, day, tally)
		VALUES ($1, $2, 1)
		ON CONFLICT(client_key, day) DO UPDATE SET tally = admission_counters.tally + 1
		RETURNING tally
	`, clientKey, windowStart)
	if err := row.Scan(&tally); err != nil {
		return 0, fmt.Errorf("failed to increment admission counter: %w", err)
	}

	return tally, nil
}

// HistoryForUser returns the callers usage records, newest first. The window
// is unbounded; authenticated history is an audit surface, not a quota one.
func (store *Store) HistoryForUser(db database.Queryable, userID uuid.UUID) ([]*Record, error) {
	query, args, err := squirrel.
		Select("*").
		From("usage_records").
		Where("user_id = ?", userID).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct history query: %w", err)
	}

	results := make([]*Record, 0)
	if err := db.Select(&results, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	return results, nil
}

// CountAll returns the total number of usage records; the public aggregate
// exposed to anonymous callers.
func (store *Store) CountAll(db database.Queryable) (int, error) {
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM usage_records`); err != nil {
		return 0, err
	}

	return count, nil
}
