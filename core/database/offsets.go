package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// OffsetStore persists the update pump's acknowledgement offset, keyed by a
// stable bot identifier so several bots may share one database.
type OffsetStore struct {
	db    *sqlx.DB
	botID string
}

// NewOffsetStore binds the store to db for the given bot id.
func NewOffsetStore(db *sqlx.DB, botID string) *OffsetStore {
	return &OffsetStore{db: db, botID: botID}
}

// Load returns the last stored offset, or 0 when the bot has no row yet.
func (s *OffsetStore) Load(ctx context.Context) (int64, error) {
	var offset int64
	err := s.db.GetContext(ctx, &offset,
		`SELECT next_offset FROM pump_offsets WHERE bot_id = $1`, s.botID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load offset: %w", err)
	}
	return offset, nil
}

// Store upserts the offset for the bot.
func (s *OffsetStore) Store(ctx context.Context, offset int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pump_offsets (bot_id, next_offset, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (bot_id)
		 DO UPDATE SET next_offset = EXCLUDED.next_offset, updated_at = NOW()`,
		s.botID, offset)
	if err != nil {
		return fmt.Errorf("store offset: %w", err)
	}
	return nil
}
