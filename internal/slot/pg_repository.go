package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var consultationID *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.OwnerUserID,
		&s.StartAt,
		&s.EndAt,
		&consultationID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.ConsultationID = consultationID
	return &s, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ReplaceFreeForDay(ctx context.Context, ownerUserID uuid.UUID, day time.Time, windows []Window) ([]Slot, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin slot upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the owner's day so two concurrent upserts cannot interleave.
	rows, err := tx.Query(ctx, `
		SELECT id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at
		FROM slots
		WHERE owner_user_id = $1 AND start_at >= $2 AND start_at < $3 AND consultation_id IS NOT NULL
		FOR UPDATE
	`, ownerUserID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}

	var booked []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		booked = append(booked, *s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, w := range windows {
		for _, b := range booked {
			if w.overlaps(b.StartAt, b.EndAt) {
				return nil, ErrSlotConflict
			}
		}
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM slots
		WHERE owner_user_id = $1 AND start_at >= $2 AND start_at < $3 AND consultation_id IS NULL
	`, ownerUserID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("clear free slots: %w", err)
	}

	created := make([]Slot, 0, len(windows))
	for _, w := range windows {
		row := tx.QueryRow(ctx, `
			INSERT INTO slots (id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NULL, now(), now())
			RETURNING id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at
		`, uuid.New(), ownerUserID, w.StartAt, w.EndAt)

		s, err := scanSlot(row)
		if err != nil {
			return nil, fmt.Errorf("insert slot window: %w", err)
		}
		created = append(created, *s)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit slot upsert: %w", err)
	}

	return created, nil
}

func (r *PgRepository) Claim(ctx context.Context, slotID, consultationID uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET consultation_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND consultation_id IS NULL
		RETURNING id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at
	`, slotID, consultationID)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// No row matched: either the slot vanished or it was claimed
			// first. Distinguish so callers can treat the race as retryable.
			if _, getErr := r.GetByID(ctx, slotID); getErr == nil {
				return nil, ErrSlotTaken
			}
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return s, nil
}

func (r *PgRepository) ReleaseClaim(ctx context.Context, slotID, consultationID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET consultation_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND consultation_id = $2
	`, slotID, consultationID)
	if err != nil {
		return fmt.Errorf("release slot claim: %w", err)
	}
	return nil
}

func (r *PgRepository) ListFree(ctx context.Context, q FreeQuery) ([]Slot, error) {
	query := `
		SELECT id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at
		FROM slots
		WHERE consultation_id IS NULL AND start_at >= $1 AND start_at < $2`
	args := []any{q.From, q.To}

	if q.OwnerUserID != nil {
		args = append(args, *q.OwnerUserID)
		query += fmt.Sprintf(" AND owner_user_id = $%d", len(args))
	}
	if !q.AfterStart.IsZero() {
		args = append(args, q.AfterStart, q.AfterID)
		query += fmt.Sprintf(" AND (start_at, id) > ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, q.Limit)
	query += fmt.Sprintf(" ORDER BY start_at, id LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) NearestFree(ctx context.Context, ownerUserID *uuid.UUID, after time.Time) (*Slot, error) {
	query := `
		SELECT id, owner_user_id, start_at, end_at, consultation_id, created_at, updated_at
		FROM slots
		WHERE consultation_id IS NULL AND start_at >= $1`
	args := []any{after}

	if ownerUserID != nil {
		args = append(args, *ownerUserID)
		query += fmt.Sprintf(" AND owner_user_id = $%d", len(args))
	}

	query += " ORDER BY start_at, id LIMIT 1"

	row := r.pool.QueryRow(ctx, query, args...)
	return scanSlot(row)
}
