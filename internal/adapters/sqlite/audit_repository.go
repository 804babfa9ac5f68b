package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/incidents/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

type auditModel struct {
	Seq         int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID          string    `gorm:"column:id;not null"`
	IncidentID  string    `gorm:"column:incident_id;not null"`
	Actor       string    `gorm:"column:actor;not null"`
	Timestamp   time.Time `gorm:"column:timestamp;not null"`
	ChangesJSON string    `gorm:"column:changes_json;not null"`
}

func (auditModel) TableName() string {
	return "incident_audits"
}

// AuditRepository stores audit records. Change values are kept as JSON, so
// they read back as decoded JSON values (strings, lists, null).
type AuditRepository struct {
	db *gormsqlite.DB
}

func NewAuditRepository(db *gormsqlite.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Save(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error) {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return insertAudit(tx.DB, rec)
	})
	if err != nil {
		return domain.AuditRecord{}, err
	}
	return rec, nil
}

func insertAudit(tx *gorm.DB, rec domain.AuditRecord) error {
	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	model := auditModel{
		ID:          rec.ID,
		IncidentID:  rec.IncidentID,
		Actor:       rec.Actor,
		Timestamp:   rec.Timestamp.UTC(),
		ChangesJSON: string(changes),
	}
	if err := tx.Create(&model).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// FindByIncidentID returns the incident's audit trail, newest first.
func (r *AuditRepository) FindByIncidentID(ctx context.Context, incidentID string) ([]domain.AuditRecord, error) {
	var rows []auditModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("incident_id = ?", incidentID).Order("seq DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}

	result := make([]domain.AuditRecord, 0, len(rows))
	for _, row := range rows {
		var changes domain.Diff
		if err := json.Unmarshal([]byte(row.ChangesJSON), &changes); err != nil {
			return nil, fmt.Errorf("decode audit %s: %w", row.ID, err)
		}
		result = append(result, domain.AuditRecord{
			ID:         row.ID,
			IncidentID: row.IncidentID,
			Actor:      row.Actor,
			Timestamp:  row.Timestamp.UTC(),
			Changes:    changes,
		})
	}
	return result, nil
}
