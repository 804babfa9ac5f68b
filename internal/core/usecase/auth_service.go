package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
	"github.com/atvirokodosprendimai/incidents/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	repo ports.APIKeyRepository
	now  func() time.Time
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo, now: time.Now}
}

// Authenticate resolves token to an active key. Unknown and revoked tokens
// are both reported as ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	apiKey, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Register makes token the only active key for the actor name. An empty
// token mints a random one; the plain token is returned because only its
// hash is kept.
func (s *AuthService) Register(ctx context.Context, name, token string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("api key name is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		var buf [24]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		token = hex.EncodeToString(buf[:])
	}

	revoked, err := s.repo.Rotate(ctx, domain.APIKey{
		TokenHash: HashToken(token),
		Name:      name,
		Active:    true,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("store api key: %w", err)
	}
	if revoked > 0 {
		log.Printf("api key %q rotated, %d previous key(s) revoked", name, revoked)
	}
	return token, nil
}

// Revoke deactivates every key registered under name. Audit entries already
// attributed to that actor are unaffected.
func (s *AuthService) Revoke(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("api key name is required")
	}
	return s.repo.RevokeByName(ctx, name)
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
