package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteChatStore persists rooms and transcripts. Message IDs come from the
// messages table's AUTOINCREMENT, which gives a strict per-room order that
// survives identical timestamps.
type SQLiteChatStore struct {
	db *sql.DB
}

func NewSQLiteChatStore(db *sql.DB) *SQLiteChatStore {
	return &SQLiteChatStore{db: db}
}

func (s *SQLiteChatStore) EnsureRoom(ctx context.Context, roomKey string, participants [2]string) error {
	query := `INSERT INTO rooms (room_key, participant_a, participant_b, created_at)
		VALUES (@room_key, @participant_a, @participant_b, @created_at)
		ON CONFLICT DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("room_key", roomKey),
		sql.Named("participant_a", participants[0]),
		sql.Named("participant_b", participants[1]),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ExecContext(insert room): %w", err)
	}
	return nil
}

func (s *SQLiteChatStore) AppendMessage(ctx context.Context, input MessageInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("Validate: %w", err)
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM rooms WHERE room_key = @room_key`,
		sql.Named("room_key", input.RoomKey)).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("QueryRowContext(room exists): %w", err)
	}
	if exists == 0 {
		return nil, ErrInvalidRoom
	}

	sentAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_key, sender, content, sent_at)
		VALUES (@room_key, @sender, @content, @sent_at)`,
		sql.Named("room_key", input.RoomKey),
		sql.Named("sender", input.Sender),
		sql.Named("content", input.Content),
		sql.Named("sent_at", sentAt))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(insert message): %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("LastInsertId: %w", err)
	}

	return &Message{
		ID:      id,
		RoomKey: input.RoomKey,
		Sender:  input.Sender,
		Content: input.Content,
		SentAt:  sentAt,
	}, nil
}

func (s *SQLiteChatStore) RoomMessages(ctx context.Context, roomKey string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_key, sender, content, sent_at FROM messages
		WHERE room_key = @room_key ORDER BY id ASC`,
		sql.Named("room_key", roomKey))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomKey, &m.Sender, &m.Content, &m.SentAt); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return messages, nil
}

func (s *SQLiteChatStore) RoomSummaries(ctx context.Context, nickname string) ([]RoomSummary, error) {
	query := `
		SELECT r.room_key, r.participant_a, r.participant_b,
			COALESCE((SELECT m.content FROM messages m
				WHERE m.room_key = r.room_key ORDER BY m.id DESC LIMIT 1), ''),
			COALESCE((SELECT m.sent_at FROM messages m
				WHERE m.room_key = r.room_key ORDER BY m.id DESC LIMIT 1), r.created_at),
			(SELECT count(*) FROM messages m WHERE m.room_key = r.room_key
				AND m.id > COALESCE((SELECT rr.last_read_message FROM room_reads rr
					WHERE rr.room_key = r.room_key AND rr.nickname = @nickname), 0))
		FROM rooms r
		WHERE r.participant_a = @nickname OR r.participant_b = @nickname
		ORDER BY 5 DESC, r.room_key ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("nickname", nickname))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var summaries []RoomSummary
	for rows.Next() {
		var s RoomSummary
		if err := rows.Scan(&s.RoomKey, &s.Participants[0], &s.Participants[1],
			&s.LastMessage, &s.LastActivity, &s.Unread); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteChatStore) MarkRead(ctx context.Context, roomKey, nickname string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM messages WHERE room_key = @room_key`,
		sql.Named("room_key", roomKey)).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("QueryRowContext(max id): %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO room_reads (room_key, nickname, last_read_message)
		VALUES (@room_key, @nickname, @last_read_message)
		ON CONFLICT (room_key, nickname) DO UPDATE SET last_read_message = @last_read_message`,
		sql.Named("room_key", roomKey),
		sql.Named("nickname", nickname),
		sql.Named("last_read_message", last))
	if err != nil {
		return 0, fmt.Errorf("ExecContext(upsert read marker): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Commit: %w", err)
	}
	return last, nil
}
