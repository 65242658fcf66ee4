package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// changedFields is the persisted shape of Entry.Changes.
type changedFields struct {
	Changes map[string]any `json:"changes"`
}

func (s *PgStore) Insert(ctx context.Context, entry Entry) (*Entry, error) {
	payload, err := json.Marshal(changedFields{Changes: entry.Changes})
	if err != nil {
		return nil, fmt.Errorf("marshal changed fields: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO audit_log_entries (entity_type, entity_id, event_type, changed_fields, actor_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, entity_type, entity_id, event_type, changed_fields, actor_user_id, created_at
	`, entry.EntityType, entry.EntityID, entry.Event, payload, entry.ActorUserID)

	return scanEntry(row)
}

func (s *PgStore) ByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, event_type, changed_fields, actor_user_id, created_at
		FROM audit_log_entries
		WHERE actor_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func (s *PgStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, event_type, changed_fields, actor_user_id, created_at
		FROM audit_log_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEntries(rows)
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var payload []byte
	var actorID *uuid.UUID

	err := row.Scan(
		&e.ID,
		&e.EntityType,
		&e.EntityID,
		&e.Event,
		&payload,
		&actorID,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	var cf changedFields
	if err := json.Unmarshal(payload, &cf); err != nil {
		return nil, fmt.Errorf("unmarshal changed fields: %w", err)
	}

	e.Changes = cf.Changes
	e.ActorUserID = actorID
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
