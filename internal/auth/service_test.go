package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/procman/internal/store"
	"github.com/loykin/procman/internal/store/sqlite"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewService(db)
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tok, err := svc.Generate(ctx, "ci", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tok.Value == "" || tok.ID == "" {
		t.Fatalf("incomplete token: %+v", tok)
	}
	// 32 bytes base64url without padding is 43 characters
	if len(tok.Value) != 43 {
		t.Fatalf("unexpected token length %d", len(tok.Value))
	}
	if !tok.ExpiresAt.IsZero() {
		t.Fatalf("expected non-expiring token")
	}

	ok, err := svc.Validate(ctx, tok.Value)
	if err != nil || !ok {
		t.Fatalf("Validate: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Validate(ctx, "bogus")
	if err != nil || ok {
		t.Fatalf("Validate bogus: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Validate(ctx, "")
	if err != nil || ok {
		t.Fatalf("Validate empty: ok=%v err=%v", ok, err)
	}
}

func TestGenerateWithExpiry(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tok, err := svc.Generate(ctx, "temp", 7)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if tok.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry to be set")
	}
	want := time.Now().UTC().AddDate(0, 0, 7)
	if diff := tok.ExpiresAt.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("expiry off: %v vs %v", tok.ExpiresAt, want)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	expired := store.Token{
		ID:        "old",
		Value:     "expired-token",
		Name:      "old",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-24 * time.Hour),
		IsActive:  true,
	}
	if err := svc.store.InsertToken(ctx, expired); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err := svc.Validate(ctx, "expired-token")
	if err != nil || ok {
		t.Fatalf("expired token accepted: ok=%v err=%v", ok, err)
	}
}

func TestRevoke(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tok, err := svc.Generate(ctx, "ci", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	found, err := svc.Revoke(ctx, tok.Value)
	if err != nil || !found {
		t.Fatalf("Revoke: found=%v err=%v", found, err)
	}
	ok, err := svc.Validate(ctx, tok.Value)
	if err != nil || ok {
		t.Fatalf("revoked token accepted: ok=%v err=%v", ok, err)
	}

	// revoked token still listed
	toks, err := svc.List(ctx)
	if err != nil || len(toks) != 1 {
		t.Fatalf("List: %v %v", toks, err)
	}
	if toks[0].IsActive {
		t.Fatalf("token should be inactive after revoke")
	}

	found, err = svc.Revoke(ctx, "unknown")
	if err != nil || found {
		t.Fatalf("Revoke unknown: found=%v err=%v", found, err)
	}
}
