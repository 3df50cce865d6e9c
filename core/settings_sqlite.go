package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteSettingsStore keeps per-user preferences. A user with no saved row
// has the default visibility (All).
type SQLiteSettingsStore struct {
	db *sql.DB
}

func NewSQLiteSettingsStore(db *sql.DB) *SQLiteSettingsStore {
	return &SQLiteSettingsStore{db: db}
}

func (s *SQLiteSettingsStore) LocationVisibility(ctx context.Context, nickname string) (Visibility, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT location_visibility FROM user_settings WHERE nickname = @nickname`,
		sql.Named("nickname", nickname)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return VisibilityAll, nil
	}
	if err != nil {
		return VisibilityAll, fmt.Errorf("QueryRowContext: %w", err)
	}
	v := Visibility(raw)
	if !v.Valid() {
		return VisibilityAll, fmt.Errorf("stored visibility %q is invalid", raw)
	}
	return v, nil
}

func (s *SQLiteSettingsStore) SetLocationVisibility(ctx context.Context, nickname string, v Visibility) error {
	if !v.Valid() {
		return fmt.Errorf("visibility %q is invalid", v)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (nickname, location_visibility)
		VALUES (@nickname, @visibility)
		ON CONFLICT (nickname) DO UPDATE SET location_visibility = @visibility`,
		sql.Named("nickname", nickname), sql.Named("visibility", string(v)))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}
