package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/loykin/procman/internal/store"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgresContainer starts a PostgreSQL container for tests
// and returns a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}

	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	// Try to ping until timeout; helps when container reports ready but DB not yet accepting connections
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("pg open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	now := time.Now().UTC()
	rec := store.Record{
		ID:         "pg-id-1",
		Name:       "pgsvc",
		Command:    "sleep",
		Args:       []string{"60"},
		EnvVars:    map[string]string{"A": "1"},
		WorkingDir: "/tmp",
		PID:        4321,
		Status:     store.StatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
		LogPath:    "/tmp/logs/pgsvc.log",
	}
	if err := db.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// duplicate name maps to the typed error
	dup := rec
	dup.ID = "pg-id-2"
	var exists *store.AlreadyExistsError
	if err := db.Insert(ctx, dup); !errors.As(err, &exists) {
		t.Fatalf("expected AlreadyExistsError, got %v", err)
	}

	got, ok, err := db.GetByName(ctx, "pgsvc")
	if err != nil || !ok {
		t.Fatalf("get by name: ok=%v err=%v", ok, err)
	}
	if got.PID != 4321 || got.Status != store.StatusRunning || got.Args[0] != "60" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := db.UpdateStatus(ctx, "pgsvc", store.StatusStopped, 0); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _, err = db.GetByName(ctx, "pgsvc")
	if err != nil {
		t.Fatalf("get by name 2: %v", err)
	}
	if got.Status != store.StatusStopped || got.PID != 0 {
		t.Fatalf("expected stopped, got %+v", got)
	}

	stopped, err := db.GetByStatus(ctx, []store.Status{store.StatusStopped})
	if err != nil {
		t.Fatalf("get by status: %v", err)
	}
	if len(stopped) != 1 || stopped[0].Name != "pgsvc" {
		t.Fatalf("unexpected stopped set: %+v", stopped)
	}

	tok := store.Token{ID: "t1", Value: "v1", Name: "ci", CreatedAt: now, IsActive: true}
	if err := db.InsertToken(ctx, tok); err != nil {
		t.Fatalf("insert token: %v", err)
	}
	gotTok, ok, err := db.GetToken(ctx, "v1")
	if err != nil || !ok || !gotTok.IsActive {
		t.Fatalf("get token: ok=%v active=%v err=%v", ok, gotTok.IsActive, err)
	}
	if ok, err := db.SetTokenActive(ctx, "v1", false); err != nil || !ok {
		t.Fatalf("set token active: ok=%v err=%v", ok, err)
	}

	ok, err = db.DeleteByName(ctx, "pgsvc")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := db.GetByName(ctx, "pgsvc"); ok {
		t.Fatalf("expected record gone after delete")
	}
}
