package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/procman/internal/store"
)

// Service issues and validates API bearer tokens backed by a TokenStore.
type Service struct {
	store store.TokenStore
}

func NewService(ts store.TokenStore) *Service {
	return &Service{store: ts}
}

// Generate creates a new active token. expiresInDays <= 0 means the
// token never expires. The token value is 32 random bytes, base64url
// encoded without padding.
func (s *Service) Generate(ctx context.Context, name string, expiresInDays int) (store.Token, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return store.Token{}, fmt.Errorf("generate token: %w", err)
	}
	now := time.Now().UTC()
	tok := store.Token{
		ID:        uuid.NewString(),
		Value:     base64.RawURLEncoding.EncodeToString(raw),
		Name:      name,
		CreatedAt: now,
		IsActive:  true,
	}
	if expiresInDays > 0 {
		tok.ExpiresAt = now.AddDate(0, 0, expiresInDays)
	}
	if err := s.store.InsertToken(ctx, tok); err != nil {
		return store.Token{}, fmt.Errorf("store token: %w", err)
	}
	return tok, nil
}

// List returns all tokens, active and revoked.
func (s *Service) List(ctx context.Context) ([]store.Token, error) {
	return s.store.ListTokens(ctx)
}

// Revoke deactivates a token. It reports whether the token existed.
// The row is kept so the operator retains an audit trail.
func (s *Service) Revoke(ctx context.Context, value string) (bool, error) {
	return s.store.SetTokenActive(ctx, value, false)
}

// Validate reports whether the given value is an active, unexpired token.
func (s *Service) Validate(ctx context.Context, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	tok, ok, err := s.store.GetToken(ctx, value)
	if err != nil {
		return false, err
	}
	if !ok || !tok.IsActive {
		return false, nil
	}
	if !tok.ExpiresAt.IsZero() && time.Now().UTC().After(tok.ExpiresAt) {
		return false, nil
	}
	return true, nil
}
