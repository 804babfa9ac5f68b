package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/incidents/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// apiKeyModel is a caller credential. Name is the actor written to incident
// audits, so at most one active key may hold a given name.
type apiKeyModel struct {
	TokenHash string    `gorm:"column:token_hash;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

func (m apiKeyModel) toDomain() domain.APIKey {
	return domain.APIKey{
		TokenHash: m.TokenHash,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return model.toDomain(), nil
}

// Rotate makes key the credential for its actor name. Other active keys
// under that name are deactivated in the same transaction, and their count
// returned. Re-registering an existing token renames or reactivates it.
func (r *APIKeyRepository) Rotate(ctx context.Context, key domain.APIKey) (int64, error) {
	model := apiKeyModel{
		TokenHash: key.TokenHash,
		Name:      key.Name,
		Active:    key.Active,
		CreatedAt: key.CreatedAt.UTC(),
	}

	var revoked int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if model.Active {
			res := tx.Model(&apiKeyModel{}).
				Where("name = ? AND active = ? AND token_hash <> ?", model.Name, true, model.TokenHash).
				Update("active", false)
			if res.Error != nil {
				return fmt.Errorf("revoke previous keys: %w", res.Error)
			}
			revoked = res.RowsAffected
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "active"}),
		}).Create(&model).Error
	})
	if err != nil {
		return 0, fmt.Errorf("rotate api key: %w", err)
	}
	return revoked, nil
}

// RevokeByName deactivates every active key of the actor name.
func (r *APIKeyRepository) RevokeByName(ctx context.Context, name string) (int64, error) {
	var revoked int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&apiKeyModel{}).
			Where("name = ? AND active = ?", name, true).
			Update("active", false)
		revoked = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("revoke api keys: %w", err)
	}
	return revoked, nil
}
