package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/procman/internal/store"
)

// DB implements store.Store and store.TokenStore backed by PostgreSQL
// via the pgx stdlib driver.

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(10)
	d.SetConnMaxLifetime(5 * time.Minute)
	return &DB{db: d}, nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			command TEXT NOT NULL,
			args TEXT NOT NULL,
			env_vars TEXT NOT NULL,
			working_dir TEXT NOT NULL,
			pid INTEGER NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			log_path TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_processes_status ON processes(status);`,
		`CREATE TABLE IF NOT EXISTS api_tokens(
			id TEXT PRIMARY KEY,
			token TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_api_tokens_token ON api_tokens(token);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) ExistsByName(ctx context.Context, name string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM processes WHERE name=$1`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *DB) Insert(ctx context.Context, rec store.Record) error {
	argsJSON, err := json.Marshal(orEmptyArgs(rec.Args))
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	envJSON, err := json.Marshal(orEmptyEnv(rec.EnvVars))
	if err != nil {
		return fmt.Errorf("encode env: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO processes(id, name, command, args, env_vars, working_dir, pid, status, created_at, updated_at, log_path)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.ID, rec.Name, rec.Command, string(argsJSON), string(envJSON), rec.WorkingDir,
		nullPID(rec.PID), string(rec.Status), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(), rec.LogPath)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &store.AlreadyExistsError{Name: rec.Name}
		}
		return err
	}
	return nil
}

func (p *DB) GetByName(ctx context.Context, name string) (store.Record, bool, error) {
	row := p.db.QueryRowContext(ctx, selectCols+` FROM processes WHERE name=$1`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

func (p *DB) GetByStatus(ctx context.Context, statuses []store.Status) ([]store.Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	parts := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		parts[i] = "$" + strconv.Itoa(i+1)
		args[i] = string(st)
	}
	rows, err := p.db.QueryContext(ctx,
		selectCols+` FROM processes WHERE status IN (`+strings.Join(parts, ",")+`) ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (p *DB) ListAll(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, selectCols+` FROM processes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (p *DB) UpdateStatus(ctx context.Context, name string, status store.Status, pid int) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE processes SET status=$1, pid=$2, updated_at=$3 WHERE name=$4`,
		string(status), nullPID(pid), time.Now().UTC(), name)
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

func (p *DB) DeleteByName(ctx context.Context, name string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM processes WHERE name=$1`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *DB) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM processes WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- token store ---

func (p *DB) InsertToken(ctx context.Context, tok store.Token) error {
	var expires any
	if !tok.ExpiresAt.IsZero() {
		expires = tok.ExpiresAt.UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_tokens(id, token, name, created_at, expires_at, is_active)
		VALUES($1,$2,$3,$4,$5,$6)`,
		tok.ID, tok.Value, tok.Name, tok.CreatedAt.UTC(), expires, tok.IsActive)
	return err
}

func (p *DB) GetToken(ctx context.Context, value string) (store.Token, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, token, name, created_at, expires_at, is_active FROM api_tokens WHERE token=$1`, value)
	tok, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Token{}, false, nil
	}
	if err != nil {
		return store.Token{}, false, err
	}
	return tok, true, nil
}

func (p *DB) ListTokens(ctx context.Context) ([]store.Token, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, token, name, created_at, expires_at, is_active FROM api_tokens ORDER BY created_at DESC`)
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

func (p *DB) SetTokenActive(ctx context.Context, value string, active bool) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE api_tokens SET is_active=$1 WHERE token=$2`, active, value)
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
	var argsJSON, envJSON, statusStr string
	var pid sql.NullInt64
	if err := r.Scan(&rec.ID, &rec.Name, &rec.Command, &argsJSON, &envJSON,
		&rec.WorkingDir, &pid, &statusStr, &rec.CreatedAt, &rec.UpdatedAt, &rec.LogPath); err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &rec.Args); err != nil {
		return store.Record{}, fmt.Errorf("decode args for %s: %w", rec.Name, err)
	}
	if err := json.Unmarshal([]byte(envJSON), &rec.EnvVars); err != nil {
		return store.Record{}, fmt.Errorf("decode env for %s: %w", rec.Name, err)
	}
	if pid.Valid {
		rec.PID = int(pid.Int64)
	}
	rec.Status = store.ParseStatus(statusStr)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
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
	var expires sql.NullTime
	if err := r.Scan(&tok.ID, &tok.Value, &tok.Name, &tok.CreatedAt, &expires, &tok.IsActive); err != nil {
		return store.Token{}, err
	}
	tok.CreatedAt = tok.CreatedAt.UTC()
	if expires.Valid {
		tok.ExpiresAt = expires.Time.UTC()
	}
	return tok, nil
}

func orEmptyArgs(args []string) []string {
	if args == nil {
		return []string{}
	}
	return args
}

func orEmptyEnv(env map[string]string) map[string]string {
	if env == nil {
		return map[string]string{}
	}
	return env
}

func nullPID(pid int) any {
	if pid <= 0 {
		return nil
	}
	return pid
}
