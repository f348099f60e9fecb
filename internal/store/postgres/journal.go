package postgres

import (
	"context"
	"errors"
	"time"

	"qms/walkin-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultRecentLimit = 50

type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

func (j *Journal) Begin(ctx context.Context, entry store.JournalEntry) (store.JournalEntry, bool, error) {
	now := time.Now().UTC()
	row := j.pool.QueryRow(ctx, `
		INSERT INTO action_journal (request_id, action, row_ref, status, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', $5, $5)
		ON CONFLICT (request_id) DO UPDATE
			SET status = EXCLUDED.status, message = '', updated_at = EXCLUDED.updated_at
			WHERE action_journal.status = $6
		RETURNING request_id, action, row_ref, status, message, created_at, updated_at
	`, entry.RequestID, entry.Action, entry.Row, store.JournalPending, now, store.JournalFailed)

	created, err := scanEntry(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.JournalEntry{}, false, err
	}

	existing, err := j.get(ctx, entry.RequestID)
	if err != nil {
		return store.JournalEntry{}, false, err
	}
	return existing, false, nil
}

func (j *Journal) Finish(ctx context.Context, requestID, status, message string) error {
	tag, err := j.pool.Exec(ctx, `
		UPDATE action_journal SET status = $2, message = $3, updated_at = $4
		WHERE request_id = $1
	`, requestID, status, message, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrEntryNotFound
	}
	return nil
}

func (j *Journal) Recent(ctx context.Context, limit int) ([]store.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.pool.Query(ctx, `
		SELECT request_id, action, row_ref, status, message, created_at, updated_at
		FROM action_journal
		ORDER BY created_at DESC, request_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (j *Journal) get(ctx context.Context, requestID string) (store.JournalEntry, error) {
	row := j.pool.QueryRow(ctx, `
		SELECT request_id, action, row_ref, status, message, created_at, updated_at
		FROM action_journal WHERE request_id = $1
	`, requestID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.JournalEntry{}, store.ErrEntryNotFound
	}
	return entry, err
}

func scanEntry(row pgx.Row) (store.JournalEntry, error) {
	var entry store.JournalEntry
	err := row.Scan(&entry.RequestID, &entry.Action, &entry.Row, &entry.Status, &entry.Message, &entry.CreatedAt, &entry.UpdatedAt)
	return entry, err
}
