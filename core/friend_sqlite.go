package core

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteFriendStore keeps the symmetric friendship relation. Pairs are
// stored once in canonical order so IsFriend(a, b) and IsFriend(b, a) read
// the same row.
type SQLiteFriendStore struct {
	db *sql.DB
}

func NewSQLiteFriendStore(db *sql.DB) *SQLiteFriendStore {
	return &SQLiteFriendStore{db: db}
}

func orderPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func (s *SQLiteFriendStore) IsFriend(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	first, second := orderPair(a, b)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM friendships WHERE nickname_a = @a AND nickname_b = @b`,
		sql.Named("a", first), sql.Named("b", second)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("QueryRowContext: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteFriendStore) AddFriendship(ctx context.Context, a, b string) error {
	if a == b {
		return fmt.Errorf("cannot befriend self: %s", a)
	}
	first, second := orderPair(a, b)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friendships (nickname_a, nickname_b) VALUES (@a, @b)
		ON CONFLICT DO NOTHING`,
		sql.Named("a", first), sql.Named("b", second))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteFriendStore) RemoveFriendship(ctx context.Context, a, b string) error {
	first, second := orderPair(a, b)
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE nickname_a = @a AND nickname_b = @b`,
		sql.Named("a", first), sql.Named("b", second))
	if err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

func (s *SQLiteFriendStore) Friends(ctx context.Context, nickname string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN nickname_a = @nickname THEN nickname_b ELSE nickname_a END
		FROM friendships
		WHERE nickname_a = @nickname OR nickname_b = @nickname
		ORDER BY 1 ASC`,
		sql.Named("nickname", nickname))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return friends, nil
}
