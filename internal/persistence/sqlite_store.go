package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/draftmind/draftmind/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// EnsureSession creates the session if it does not exist and bumps its
// updated_at if it does.
func (s *SQLiteStore) EnsureSession(ctx context.Context, session Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	now := time.Now().UTC()
	createdAt := session.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (id, user_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			updated_at=excluded.updated_at`,
		session.ID,
		session.UserID,
		session.Title,
		createdAt,
		now,
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM sessions WHERE id = ?`,
		id,
	)
	var ret Session
	if err := row.Scan(&ret.ID, &ret.UserID, &ret.Title, &ret.CreatedAt, &ret.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	return ret, true, nil
}

// AppendMessage persists one message. The caller supplies the id, so a
// retried append of the same message is a no-op rather than a duplicate.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if msg.SessionID == "" {
		return fmt.Errorf("message session id is required")
	}
	metaJSON := "{}"
	if len(msg.Meta) > 0 {
		raw, err := json.Marshal(msg.Meta)
		if err != nil {
			return fmt.Errorf("marshal message meta: %w", err)
		}
		metaJSON = string(raw)
	}
	createdAt := msg.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO messages (id, session_id, role, content, meta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		metaJSON,
		createdAt,
	)
	return err
}

// ListMessages returns a session's messages oldest first. A limit of 0
// returns all of them.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `SELECT id, session_id, role, content, meta_json, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY created_at ASC, id ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Keep the most recent messages while preserving ascending order
		query = `SELECT id, session_id, role, content, meta_json, created_at FROM (
			SELECT id, session_id, role, content, meta_json, created_at
			FROM messages
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]Message, 0)
	for rows.Next() {
		var item Message
		var metaJSON string
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Role, &item.Content, &metaJSON, &item.CreatedAt); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &item.Meta); err != nil {
				return nil, err
			}
		}
		ret = append(ret, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	now := time.Now().UTC()
	createdAt := doc.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := doc.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO documents (id, owner_id, project_id, title, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			content=excluded.content,
			updated_at=excluded.updated_at`,
		doc.ID,
		doc.OwnerID,
		doc.ProjectID,
		doc.Title,
		doc.Content,
		createdAt,
		updatedAt,
	)
	return err
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (Document, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, owner_id, project_id, title, content, created_at, updated_at
		 FROM documents WHERE id = ?`,
		id,
	)
	var ret Document
	if err := row.Scan(&ret.ID, &ret.OwnerID, &ret.ProjectID, &ret.Title, &ret.Content, &ret.CreatedAt, &ret.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}
	return ret, true, nil
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, rec UsageRecord) error {
	createdAt := rec.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_log (session_id, model, input_tokens, output_tokens, total_tokens, cost_usd, rounds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.Model,
		rec.InputTokens,
		rec.OutputTokens,
		rec.TotalTokens,
		rec.CostUSD,
		rec.Rounds,
		createdAt,
	)
	return err
}

func (s *SQLiteStore) GetSessionUsage(ctx context.Context, sessionID string) (SessionUsage, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_usd), 0), COUNT(*)
		 FROM usage_log WHERE session_id = ?`,
		sessionID,
	)
	ret := SessionUsage{SessionID: sessionID}
	if err := row.Scan(&ret.InputTokens, &ret.OutputTokens, &ret.TotalTokens, &ret.CostUSD, &ret.Requests); err != nil {
		return SessionUsage{}, err
	}
	return ret, nil
}

// DeleteSessionsBefore removes sessions last touched before the cutoff,
// along with their messages and usage rows. Returns the number of
// sessions removed.
func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cut := cutoff.UTC()
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cut); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM usage_log WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cut); err != nil {
		return 0, err
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cut); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SaveRuntimeSettings implements config.SettingsBackend
func (s *SQLiteStore) SaveRuntimeSettings(settings config.RuntimeSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal runtime settings: %w", err)
	}
	_, err = s.db.ExecContext(
		context.Background(),
		`INSERT INTO runtime_settings (id, settings_json, updated_at)
		 VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			settings_json=excluded.settings_json,
			updated_at=excluded.updated_at`,
		string(raw),
		time.Now().UTC(),
	)
	return err
}

// LoadRuntimeSettings implements config.SettingsBackend
func (s *SQLiteStore) LoadRuntimeSettings() (config.RuntimeSettings, bool, error) {
	row := s.db.QueryRowContext(
		context.Background(),
		`SELECT settings_json FROM runtime_settings WHERE id = 1`,
	)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return config.RuntimeSettings{}, false, nil
		}
		return config.RuntimeSettings{}, false, err
	}
	var settings config.RuntimeSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return config.RuntimeSettings{}, false, fmt.Errorf("invalid stored settings: %w", err)
	}
	return settings, true, nil
}
