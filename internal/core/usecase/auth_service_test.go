package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

type stubAPIKeyRepo struct {
	findFn  func(ctx context.Context, tokenHash string) (domain.APIKey, error)
	saved   []domain.APIKey
	revoked []string
}

func (s *stubAPIKeyRepo) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	if s.findFn != nil {
		return s.findFn(ctx, tokenHash)
	}
	return domain.APIKey{}, domain.ErrNotFound
}

func (s *stubAPIKeyRepo) Rotate(_ context.Context, key domain.APIKey) (int64, error) {
	s.saved = append(s.saved, key)
	return 0, nil
}

func (s *stubAPIKeyRepo) RevokeByName(_ context.Context, name string) (int64, error) {
	s.revoked = append(s.revoked, name)
	return 1, nil
}

func TestAuthServiceAuthenticateSuccess(t *testing.T) {
	repo := &stubAPIKeyRepo{findFn: func(_ context.Context, tokenHash string) (domain.APIKey, error) {
		if tokenHash != HashToken("token-1") {
			t.Fatalf("unexpected token hash: %s", tokenHash)
		}
		return domain.APIKey{Name: "oncall-bot", Active: true, CreatedAt: time.Now()}, nil
	}}

	svc := NewAuthService(repo)
	key, err := svc.Authenticate(context.Background(), " token-1 ")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if key.Name != "oncall-bot" {
		t.Fatalf("expected oncall-bot, got %s", key.Name)
	}
}

func TestAuthServiceAuthenticateUnauthorized(t *testing.T) {
	svc := NewAuthService(&stubAPIKeyRepo{})
	_, err := svc.Authenticate(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = svc.Authenticate(context.Background(), "unknown")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown token, got %v", err)
	}
}

func TestAuthServiceAuthenticateRevokedKey(t *testing.T) {
	repo := &stubAPIKeyRepo{findFn: func(context.Context, string) (domain.APIKey, error) {
		return domain.APIKey{Name: "old", Active: false}, nil
	}}
	_, err := NewAuthService(repo).Authenticate(context.Background(), "token")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAuthServiceRegisterMintsToken(t *testing.T) {
	repo := &stubAPIKeyRepo{}
	token, err := NewAuthService(repo).Register(context.Background(), "ci", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(token) != 48 {
		t.Fatalf("expected 48 hex chars, got %q", token)
	}
	if len(repo.saved) != 1 || repo.saved[0].TokenHash != HashToken(token) || !repo.saved[0].Active {
		t.Fatalf("unexpected stored key: %+v", repo.saved)
	}
}

func TestAuthServiceRegisterRequiresName(t *testing.T) {
	if _, err := NewAuthService(&stubAPIKeyRepo{}).Register(context.Background(), " ", "t"); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestAuthServiceRevokeTrimsName(t *testing.T) {
	repo := &stubAPIKeyRepo{}
	svc := NewAuthService(repo)

	n, err := svc.Revoke(context.Background(), " ci ")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n != 1 || len(repo.revoked) != 1 || repo.revoked[0] != "ci" {
		t.Fatalf("unexpected revoke: n=%d names=%v", n, repo.revoked)
	}
	if _, err := svc.Revoke(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty name")
	}
}
