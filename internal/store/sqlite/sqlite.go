package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/procman/internal/store"
)

// DB implements store.Store and store.TokenStore for SQLite
// (modernc.org/sqlite driver, CGO-free). Path is a filesystem path to the
// database file; use ":memory:" for tests.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// single writer; WAL plus a busy timeout covers short concurrent locks
	_, _ = d.Exec("PRAGMA journal_mode=WAL;")
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			command TEXT NOT NULL,
			args TEXT NOT NULL,
			env_vars TEXT NOT NULL,
			working_dir TEXT NOT NULL,
			pid INTEGER,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			log_path TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_status ON processes(status);`,
		`CREATE TABLE IF NOT EXISTS api_tokens(
			id TEXT PRIMARY KEY,
			token TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_api_tokens_token ON api_tokens(token);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) ExistsByName(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM processes WHERE name=?;`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DB) Insert(ctx context.Context, rec store.Record) error {
	argsJSON, envJSON, err := marshalSpec(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processes(id, name, command, args, env_vars, working_dir, pid, status, created_at, updated_at, log_path)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.Name, rec.Command, argsJSON, envJSON, rec.WorkingDir,
		nullPID(rec.PID), string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		rec.LogPath)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return &store.AlreadyExistsError{Name: rec.Name}
		}
		return err
	}
	return nil
}

func (s *DB) GetByName(ctx context.Context, name string) (store.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` FROM processes WHERE name=?;`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

func (s *DB) GetByStatus(ctx context.Context, statuses []store.Status) ([]store.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	rows, err := s.db.QueryContext(ctx,
		selectCols+` FROM processes WHERE status IN (`+placeholders+`) ORDER BY created_at DESC;`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *DB) ListAll(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` FROM processes ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *DB) UpdateStatus(ctx context.Context, name string, status store.Status, pid int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE processes SET status=?, pid=?, updated_at=? WHERE name=?;`,
		string(status), nullPID(pid), time.Now().UTC().Format(time.RFC3339Nano), name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &store.NotFoundError{Name: name}
	}
	return nil
}

func (s *DB) DeleteByName(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processes WHERE name=?;`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *DB) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processes WHERE id=?;`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- token store ---

func (s *DB) InsertToken(ctx context.Context, tok store.Token) error {
	var expires any
	if !tok.ExpiresAt.IsZero() {
		expires = tok.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens(id, token, name, created_at, expires_at, is_active)
		VALUES(?, ?, ?, ?, ?, ?);`,
		tok.ID, tok.Value, tok.Name,
		tok.CreatedAt.UTC().Format(time.RFC3339Nano), expires, boolToInt(tok.IsActive))
	return err
}

func (s *DB) GetToken(ctx context.Context, value string) (store.Token, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, token, name, created_at, expires_at, is_active FROM api_tokens WHERE token=?;`, value)
	tok, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Token{}, false, nil
	}
	if err != nil {
		return store.Token{}, false, err
	}
	return tok, true, nil
}

func (s *DB) ListTokens(ctx context.Context) ([]store.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token, name, created_at, expires_at, is_active FROM api_tokens ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Token, 0)
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (s *DB) SetTokenActive(ctx context.Context, value string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET is_active=? WHERE token=?;`, boolToInt(active), value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- scanning helpers ---

const selectCols = `SELECT id, name, command, args, env_vars, working_dir, pid, status, created_at, updated_at, log_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (store.Record, error) {
	var rec store.Record
	var argsJSON, envJSON, statusStr, createdStr, updatedStr string
	var pid sql.NullInt64
	if err := r.Scan(&rec.ID, &rec.Name, &rec.Command, &argsJSON, &envJSON,
		&rec.WorkingDir, &pid, &statusStr, &createdStr, &updatedStr, &rec.LogPath); err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
		return store.Record{}, fmt.Errorf("decode args for %s: %w", rec.Name, err)
	}
	if err := json.Unmarshal([]byte(envJSON), &rec.EnvVars); err != nil {
		return store.Record{}, fmt.Errorf("decode env for %s: %w", rec.Name, err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr); err != nil {
		return store.Record{}, fmt.Errorf("parse created_at for %s: %w", rec.Name, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedStr); err != nil {
		return store.Record{}, fmt.Errorf("parse updated_at for %s: %w", rec.Name, err)
	}
	if pid.Valid {
		rec.PID = int(pid.Int64)
	}
	rec.Status = store.ParseStatus(statusStr)
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]store.Record, error) {
	out := make([]store.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanToken(r rowScanner) (store.Token, error) {
	var tok store.Token
	var createdStr string
	var expiresStr sql.NullString
	var active int64
	if err := r.Scan(&tok.ID, &tok.Value, &tok.Name, &createdStr, &expiresStr, &active); err != nil {
		return store.Token{}, err
	}
	var err error
	if tok.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr); err != nil {
		return store.Token{}, fmt.Errorf("parse token created_at: %w", err)
	}
	if expiresStr.Valid && expiresStr.String != "" {
		if tok.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresStr.String); err != nil {
			return store.Token{}, fmt.Errorf("parse token expires_at: %w", err)
		}
	}
	tok.IsActive = active != 0
	return tok, nil
}

func marshalSpec(rec store.Record) (string, string, error) {
	args := rec.Args
	if args == nil {
		args = []string{}
	}
	env := rec.EnvVars
	if env == nil {
		env = map[string]string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", "", fmt.Errorf("encode args: %w", err)
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return "", "", fmt.Errorf("encode env: %w", err)
	}
	return string(argsJSON), string(envJSON), nil
}

func nullPID(pid int) any {
	if pid <= 0 {
		return nil
	}
	return pid
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
