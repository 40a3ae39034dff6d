package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	kerrors "github.com/asterixix/tecza/internal/errors"
	"github.com/asterixix/tecza/internal/store"
)

// Store persists profiles, conversations, messages and media blobs in a
// single SQLite database file.
type Store struct {
	db *sql.DB
}

var (
	_ store.ProfileStore      = (*Store)(nil)
	_ store.ConversationStore = (*Store)(nil)
	_ store.MessageStore      = (*Store)(nil)
	_ store.BlobStore         = (*Store)(nil)
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		identity TEXT PRIMARY KEY,
		public_key TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participants TEXT NOT NULL,
		key_epoch INTEGER NOT NULL DEFAULT 0,
		wrapped_keys TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		ciphertext TEXT NOT NULL DEFAULT '',
		media_ref TEXT NOT NULL DEFAULT '',
		media_name TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL DEFAULT '',
		iv TEXT NOT NULL,
		key_epoch INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq)`,
	`CREATE TABLE IF NOT EXISTS blobs (
		ref TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; one connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Backend returns the Store wired as every member of a store.Backend.
func (s *Store) Backend() store.Backend {
	return store.Backend{Profiles: s, Conversations: s, Messages: s, Blobs: s}
}

func (s *Store) initTables() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PublicKey(ctx context.Context, identity string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT public_key FROM profiles WHERE identity = ?`, identity).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", kerrors.ErrPublicKeyNotFound, identity)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query public key: %w", err)
	}
	return key, nil
}

func (s *Store) PublishPublicKey(ctx context.Context, identity, publicKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (identity, public_key, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET public_key = excluded.public_key, updated_at = excluded.updated_at`,
		identity, publicKey, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to publish public key: %w", err)
	}
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	keys, err := json.Marshal(conv.WrappedKeys)
	if err != nil {
		return fmt.Errorf("failed to encode wrapped keys: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participants, key_epoch, wrapped_keys, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID.String(), string(participants), conv.KeyEpoch, string(keys),
		conv.CreatedAt.UnixNano(), conv.LastActivity.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var (
		id, participants, keys  string
		epoch                   int
		createdAt, lastActivity int64
	)
	if err := row.Scan(&id, &participants, &epoch, &keys, &createdAt, &lastActivity); err != nil {
		return nil, err
	}

	conv := &store.Conversation{
		KeyEpoch:     epoch,
		CreatedAt:    time.Unix(0, createdAt).UTC(),
		LastActivity: time.Unix(0, lastActivity).UTC(),
	}
	var err error
	if conv.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(participants), &conv.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(keys), &conv.WrappedKeys); err != nil {
		return nil, fmt.Errorf("failed to decode wrapped keys: %w", err)
	}
	if conv.WrappedKeys == nil {
		conv.WrappedKeys = store.WrappedKeyMap{}
	}
	return conv, nil
}

const selectConversation = `
	SELECT id, participants, key_epoch, wrapped_keys, created_at, last_activity
	FROM conversations WHERE id = ?`

func (s *Store) Conversation(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx, selectConversation, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) UpdateWrappedKeys(ctx context.Context, id uuid.UUID, entries store.WrappedKeyMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	conv, err := scanConversation(tx.QueryRowContext(ctx, selectConversation, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	for identity, entry := range entries {
		conv.WrappedKeys[identity] = entry
		if !conv.HasParticipant(identity) {
			conv.Participants = append(conv.Participants, identity)
		}
	}

	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	keys, err := json.Marshal(conv.WrappedKeys)
	if err != nil {
		return fmt.Errorf("failed to encode wrapped keys: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET participants = ?, wrapped_keys = ? WHERE id = ?`,
		string(participants), string(keys), id.String()); err != nil {
		return fmt.Errorf("failed to update wrapped keys: %w", err)
	}
	return tx.Commit()
}

func (s *Store) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_activity = MAX(last_activity, ?) WHERE id = ?`,
		at.UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, id)
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, msg.ConversationID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", kerrors.ErrConversationNotFound, msg.ConversationID)
	}
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, kind, ciphertext, media_ref, media_name, media_type, iv, key_epoch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID.String(), msg.ConversationID.String(), msg.Sender, string(msg.Kind),
		msg.Ciphertext, msg.MediaRef, msg.MediaName, msg.MediaType, msg.IV,
		msg.KeyEpoch, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read message sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	msg.Seq = seq
	return nil
}

func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID) ([]store.Message, error) {
	return s.MessagesSince(ctx, conversationID, 0)
}

func (s *Store) MessagesSince(ctx context.Context, conversationID uuid.UUID, afterSeq int64) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, conversation_id, sender, kind, ciphertext, media_ref, media_name, media_type, iv, key_epoch, created_at
		FROM messages
		WHERE conversation_id = ? AND seq > ?
		ORDER BY seq ASC`,
		conversationID.String(), afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var (
			msg            store.Message
			id, convID     string
			kind           string
			createdAtNanos int64
		)
		if err := rows.Scan(&msg.Seq, &id, &convID, &msg.Sender, &kind, &msg.Ciphertext,
			&msg.MediaRef, &msg.MediaName, &msg.MediaType, &msg.IV, &msg.KeyEpoch, &createdAtNanos); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if msg.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid message id %q: %w", id, err)
		}
		if msg.ConversationID, err = uuid.Parse(convID); err != nil {
			return nil, fmt.Errorf("invalid conversation id %q: %w", convID, err)
		}
		msg.Kind = store.MessageKind(kind)
		msg.CreatedAt = time.Unix(0, createdAtNanos).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

func (s *Store) PutBlob(ctx context.Context, ref string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blobs (ref, data, created_at) VALUES (?, ?, ?)`,
		ref, append([]byte{}, data...), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

func (s *Store) Blob(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE ref = ?`, ref).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrBlobNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blob: %w", err)
	}
	return data, nil
}
