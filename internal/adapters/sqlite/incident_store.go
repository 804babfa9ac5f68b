package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/incidents/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

type incidentModel struct {
	ID             string     `gorm:"column:id;primaryKey"`
	Title          string     `gorm:"column:title;not null"`
	Summary        string     `gorm:"column:summary;not null"`
	Severity       string     `gorm:"column:severity;not null"`
	Status         string     `gorm:"column:status;not null"`
	CreatedBy      string     `gorm:"column:created_by;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt      *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
	ResolutionNote string     `gorm:"column:resolution_note;not null"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at"`
	TagsJSON       string     `gorm:"column:tags_json;not null"`
}

func (incidentModel) TableName() string {
	return "incidents"
}

type noteModel struct {
	IncidentID string    `gorm:"column:incident_id;primaryKey"`
	ID         string    `gorm:"column:id;primaryKey"`
	Position   int       `gorm:"column:position;not null"`
	Author     string    `gorm:"column:author;not null"`
	Note       string    `gorm:"column:note;not null"`
	Timestamp  time.Time `gorm:"column:timestamp;not null"`
}

func (noteModel) TableName() string {
	return "incident_notes"
}

type timelineEventModel struct {
	IncidentID  string    `gorm:"column:incident_id;primaryKey"`
	ID          string    `gorm:"column:id;primaryKey"`
	Position    int       `gorm:"column:position;not null"`
	Timestamp   time.Time `gorm:"column:timestamp;not null"`
	Description string    `gorm:"column:description;not null"`
	Actor       string    `gorm:"column:actor;not null"`
}

func (timelineEventModel) TableName() string {
	return "incident_timeline_events"
}

// IncidentStore persists incidents with their notes and timeline. Every save
// and delete also queues an outbox event in the same transaction.
type IncidentStore struct {
	db *gormsqlite.DB
}

func NewIncidentStore(db *gormsqlite.DB) *IncidentStore {
	return &IncidentStore{db: db}
}

func (s *IncidentStore) FindByID(ctx context.Context, id string) (domain.Incident, error) {
	var inc domain.Incident
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		var err error
		inc, err = loadIncident(tx.DB, id)
		return err
	})
	if err != nil {
		return domain.Incident{}, err
	}
	return inc, nil
}

func (s *IncidentStore) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&incidentModel{}).Where("id = ?", id).Count(&count).Error
	})
	if err != nil {
		return false, fmt.Errorf("check incident: %w", err)
	}
	return count > 0, nil
}

// FindAll pages through incidents in id order. After is an exclusive id cursor.
func (s *IncidentStore) FindAll(ctx context.Context, filter domain.IncidentListFilter) ([]domain.Incident, error) {
	var result []domain.Incident
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&incidentModel{})
		if filter.Status != "" {
			query = query.Where("status = ?", string(filter.Status))
		}
		if filter.Tag != "" {
			query = query.Where("EXISTS (SELECT 1 FROM json_each(incidents.tags_json) WHERE json_each.value = ?)", filter.Tag)
		}
		if filter.After != "" {
			query = query.Where("id > ?", filter.After)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}

		var rows []incidentModel
		if err := query.Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		notes, events, err := loadSubRecords(tx.DB, ids)
		if err != nil {
			return err
		}

		result = make([]domain.Incident, 0, len(rows))
		for _, row := range rows {
			inc, err := toIncident(row, notes[row.ID], events[row.ID])
			if err != nil {
				return err
			}
			result = append(result, inc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return result, nil
}

// Save inserts or replaces the incident and its sub-records. The audit entry,
// when given, and the outbox event commit or roll back with them.
func (s *IncidentStore) Save(ctx context.Context, inc domain.Incident, meta domain.MutationMetadata, audit *domain.AuditRecord) (domain.Incident, error) {
	meta = meta.Normalize()
	var saved domain.Incident

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var count int64
		if err := tx.Model(&incidentModel{}).Where("id = ?", inc.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("check existing incident: %w", err)
		}
		eventType := domain.EventIncidentUpdated
		if count == 0 {
			eventType = domain.EventIncidentCreated
		}

		row, err := fromIncident(inc)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert incident: %w", err)
		}
		if err := replaceSubRecords(tx.DB, inc); err != nil {
			return err
		}
		if audit != nil {
			if err := insertAudit(tx.DB, *audit); err != nil {
				return err
			}
		}

		saved, err = loadIncident(tx.DB, inc.ID)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("marshal incident payload: %w", err)
		}
		return enqueueEvent(tx.DB, eventType, saved.ID, meta, payload)
	})
	if err != nil {
		return domain.Incident{}, err
	}
	return saved, nil
}

func (s *IncidentStore) DeleteByID(ctx context.Context, id string, meta domain.MutationMetadata) error {
	meta = meta.Normalize()
	return s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Where("incident_id = ?", id).Delete(&noteModel{}).Error; err != nil {
			return fmt.Errorf("delete notes: %w", err)
		}
		if err := tx.Where("incident_id = ?", id).Delete(&timelineEventModel{}).Error; err != nil {
			return fmt.Errorf("delete timeline: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&incidentModel{})
		if res.Error != nil {
			return fmt.Errorf("delete incident: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		payload, err := json.Marshal(map[string]string{"id": id})
		if err != nil {
			return fmt.Errorf("marshal delete payload: %w", err)
		}
		return enqueueEvent(tx.DB, domain.EventIncidentDeleted, id, meta, payload)
	})
}

func loadIncident(tx *gorm.DB, id string) (domain.Incident, error) {
	var row incidentModel
	if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Incident{}, domain.ErrNotFound
		}
		return domain.Incident{}, fmt.Errorf("get incident: %w", err)
	}
	notes, events, err := loadSubRecords(tx, []string{id})
	if err != nil {
		return domain.Incident{}, err
	}
	return toIncident(row, notes[id], events[id])
}

func loadSubRecords(tx *gorm.DB, ids []string) (map[string][]noteModel, map[string][]timelineEventModel, error) {
	var notes []noteModel
	if err := tx.Where("incident_id IN ?", ids).Order("incident_id, position").Find(&notes).Error; err != nil {
		return nil, nil, fmt.Errorf("load notes: %w", err)
	}
	var events []timelineEventModel
	if err := tx.Where("incident_id IN ?", ids).Order("incident_id, position").Find(&events).Error; err != nil {
		return nil, nil, fmt.Errorf("load timeline: %w", err)
	}

	notesByIncident := make(map[string][]noteModel, len(ids))
	for _, n := range notes {
		notesByIncident[n.IncidentID] = append(notesByIncident[n.IncidentID], n)
	}
	eventsByIncident := make(map[string][]timelineEventModel, len(ids))
	for _, e := range events {
		eventsByIncident[e.IncidentID] = append(eventsByIncident[e.IncidentID], e)
	}
	return notesByIncident, eventsByIncident, nil
}

func replaceSubRecords(tx *gorm.DB, inc domain.Incident) error {
	if err := tx.Where("incident_id = ?", inc.ID).Delete(&noteModel{}).Error; err != nil {
		return fmt.Errorf("clear notes: %w", err)
	}
	if err := tx.Where("incident_id = ?", inc.ID).Delete(&timelineEventModel{}).Error; err != nil {
		return fmt.Errorf("clear timeline: %w", err)
	}

	if len(inc.Notes) > 0 {
		rows := make([]noteModel, 0, len(inc.Notes))
		for i, n := range inc.Notes {
			rows = append(rows, noteModel{
				IncidentID: inc.ID,
				ID:         n.ID,
				Position:   i,
				Author:     n.Author,
				Note:       n.Note,
				Timestamp:  n.Timestamp.UTC(),
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert notes: %w", err)
		}
	}

	if len(inc.Timeline) > 0 {
		rows := make([]timelineEventModel, 0, len(inc.Timeline))
		for i, e := range inc.Timeline {
			rows = append(rows, timelineEventModel{
				IncidentID:  inc.ID,
				ID:          e.ID,
				Position:    i,
				Timestamp:   e.Timestamp.UTC(),
				Description: e.Description,
				Actor:       e.Actor,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert timeline: %w", err)
		}
	}
	return nil
}

func fromIncident(inc domain.Incident) (incidentModel, error) {
	tags := inc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return incidentModel{}, fmt.Errorf("marshal tags: %w", err)
	}
	return incidentModel{
		ID:             inc.ID,
		Title:          inc.Title,
		Summary:        inc.Summary,
		Severity:       inc.Severity,
		Status:         string(inc.Status),
		CreatedBy:      inc.CreatedBy,
		CreatedAt:      inc.CreatedAt.UTC(),
		UpdatedAt:      utcPtr(inc.UpdatedAt),
		ResolutionNote: inc.ResolutionNote,
		ResolvedAt:     utcPtr(inc.ResolvedAt),
		TagsJSON:       string(tagsJSON),
	}, nil
}

func toIncident(row incidentModel, notes []noteModel, events []timelineEventModel) (domain.Incident, error) {
	var tags []string
	if err := json.Unmarshal([]byte(row.TagsJSON), &tags); err != nil {
		return domain.Incident{}, fmt.Errorf("decode tags of %s: %w", row.ID, err)
	}

	inc := domain.Incident{
		ID:             row.ID,
		Title:          row.Title,
		Summary:        row.Summary,
		Severity:       row.Severity,
		Status:         domain.Status(row.Status),
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      utcPtr(row.UpdatedAt),
		ResolutionNote: row.ResolutionNote,
		ResolvedAt:     utcPtr(row.ResolvedAt),
		Tags:           tags,
		Notes:          make([]domain.Note, 0, len(notes)),
		Timeline:       make([]domain.TimelineEvent, 0, len(events)),
	}
	for _, n := range notes {
		inc.Notes = append(inc.Notes, domain.Note{
			ID:        n.ID,
			Author:    n.Author,
			Note:      n.Note,
			Timestamp: n.Timestamp.UTC(),
		})
	}
	for _, e := range events {
		inc.Timeline = append(inc.Timeline, domain.TimelineEvent{
			ID:          e.ID,
			Timestamp:   e.Timestamp.UTC(),
			Description: e.Description,
			Actor:       e.Actor,
		})
	}
	return inc, nil
}

func enqueueEvent(tx *gorm.DB, eventType, incidentID string, meta domain.MutationMetadata, payload json.RawMessage) error {
	envelope := domain.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		AggregateType: "incident",
		AggregateID:   incidentID,
		OccurredAt:    meta.OccurredAt.UTC(),
		RequestID:     meta.RequestID,
		Actor:         meta.Actor,
		Source:        meta.Source,
		Payload:       payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	row := outboxEventModel{
		EventID:       envelope.EventID,
		Topic:         eventType,
		PayloadJSON:   string(body),
		Status:        outboxStatusPending,
		NextAttemptAt: envelope.OccurredAt,
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
