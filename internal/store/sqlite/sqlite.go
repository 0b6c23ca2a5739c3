package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatgate/chatgate/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_channels (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL DEFAULT 'public',
	portals       TEXT NOT NULL DEFAULT '[]',
	allowed_roles TEXT NOT NULL DEFAULT '[]',
	created_by    TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_channel_members (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'member',
	joined_at  INTEGER NOT NULL,
	UNIQUE (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id            TEXT PRIMARY KEY,
	channel_id    TEXT NOT NULL,
	sender_id     TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	attachments   TEXT NOT NULL DEFAULT '[]',
	origin_portal TEXT NOT NULL DEFAULT 'unknown',
	created_at    INTEGER NOT NULL,
	edited_at     INTEGER,
	deleted_at    INTEGER
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_channel_created
	ON chat_messages (channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chat_messages_sender
	ON chat_messages (sender_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ChannelStore implementation ====

// CreateChannel creates a new channel and returns it fully populated.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, typ store.ChannelType, portals, allowedRoles []string, createdBy string) (*store.Channel, error) {
	portalsJSON, err := json.Marshal(emptyIfNil(portals))
	if err != nil {
		return nil, fmt.Errorf("marshal portals: %w", err)
	}
	rolesJSON, err := json.Marshal(emptyIfNil(allowedRoles))
	if err != nil {
		return nil, fmt.Errorf("marshal allowed roles: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().UnixNano()

	query := `
		INSERT INTO chat_channels (id, name, type, portals, allowed_roles, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, name, string(typ), string(portalsJSON), string(rolesJSON), createdBy, now, now); err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	return s.GetChannelByID(ctx, id)
}

// GetChannelByID retrieves a channel by ID.
func (s *SQLiteStore) GetChannelByID(ctx context.Context, id string) (*store.Channel, error) {
	query := `
		SELECT id, name, type, portals, allowed_roles, created_by, created_at, updated_at
		FROM chat_channels
		WHERE id = ?
	`
	var (
		ch                     store.Channel
		typ                    string
		portalsJSON, rolesJSON string
		createdAt, updatedAt   int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ch.ID, &ch.Name, &typ, &portalsJSON, &rolesJSON, &ch.CreatedBy, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select channel: %w", err)
	}

	ch.Type = store.ChannelType(typ)
	ch.CreatedAt = time.Unix(0, createdAt).UTC()
	ch.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if err := json.Unmarshal([]byte(portalsJSON), &ch.Portals); err != nil {
		return nil, fmt.Errorf("unmarshal portals: %w", err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &ch.AllowedRoles); err != nil {
		return nil, fmt.Errorf("unmarshal allowed roles: %w", err)
	}
	return &ch, nil
}

// AddMember adds a user to a channel. The (channel, user) pair is unique,
// so repeated joins leave the original record untouched.
func (s *SQLiteStore) AddMember(ctx context.Context, channelID, userID string, role store.MemberRole) error {
	query := `
		INSERT INTO chat_channel_members (id, channel_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, user_id) DO NOTHING
	`
	now := time.Now().UTC().UnixNano()
	if _, err := s.db.ExecContext(ctx, query, uuid.NewString(), channelID, userID, string(role), now); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// IsMember reports whether the user has a membership record for the channel.
func (s *SQLiteStore) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	query := `SELECT 1 FROM chat_channel_members WHERE channel_id = ? AND user_id = ?`

	var one int
	err := s.db.QueryRowContext(ctx, query, channelID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select member: %w", err)
	}
	return true, nil
}

// ==== MessageStore implementation ====

// CreateMessage atomically persists a message. The insert transaction clamps
// created_at to the channel's current maximum so timestamps never go
// backwards within a channel; the rowid serves as the tie-breaking Seq.
func (s *SQLiteStore) CreateMessage(ctx context.Context, channelID, senderID, text, originPortal string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM chat_messages WHERE channel_id = ?`, channelID,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("select last created_at: %w", err)
	}

	now := time.Now().UTC().UnixNano()
	if last.Valid && last.Int64 > now {
		now = last.Int64
	}

	id := uuid.NewString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, channel_id, sender_id, text, attachments, origin_portal, created_at)
		VALUES (?, ?, ?, ?, '[]', ?, ?)
	`, id, channelID, senderID, text, originPortal, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &store.Message{
		ID:           id,
		ChannelID:    channelID,
		SenderID:     senderID,
		Text:         text,
		Attachments:  []string{},
		OriginPortal: originPortal,
		Seq:          seq,
		CreatedAt:    time.Unix(0, now).UTC(),
	}, nil
}

// GetMessageByID retrieves a message by ID, including soft-deleted ones.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT rowid, id, channel_id, sender_id, text, attachments, origin_portal, created_at, edited_at, deleted_at
		FROM chat_messages
		WHERE id = ?
	`
	var (
		msg                 store.Message
		attachmentsJSON     string
		createdAt           int64
		editedAt, deletedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.Seq, &msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Text, &attachmentsJSON, &msg.OriginPortal,
		&createdAt, &editedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}

	if err := json.Unmarshal([]byte(attachmentsJSON), &msg.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	if editedAt.Valid {
		t := time.Unix(0, editedAt.Int64).UTC()
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := time.Unix(0, deletedAt.Int64).UTC()
		msg.DeletedAt = &t
	}
	return &msg, nil
}

// EditMessage replaces the text of a message and stamps EditedAt.
func (s *SQLiteStore) EditMessage(ctx context.Context, id, text string) (*store.Message, error) {
	now := time.Now().UTC().UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET text = ?, edited_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, text, now, id)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetMessageByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrDeleted
	}
	return s.GetMessageByID(ctx, id)
}

// SoftDeleteMessage marks a message deleted. The row stays in place.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id string) error {
	now := time.Now().UTC().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetMessageByID(ctx, id); err != nil {
			return err
		}
		// Already deleted; soft delete is idempotent.
	}
	return nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
