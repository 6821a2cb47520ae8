package vopay

import (
	"encoding/json"
	"time"

	"github.com/solutionargentrapide/paygate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectCount is one row of the per-type/status object breakdown.
type ObjectCount struct {
	ObjectType string `json:"object_type"`
	Status     string `json:"status"`
	Count      int64  `json:"count"`
}

// EventCount is one row of the raw event log breakdown.
type EventCount struct {
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Count     int64  `json:"count"`
}

// Repository provides DB operations used by the webhook service.
type Repository interface {
	AppendEvent(event *models.RawWebhookEvent) error
	MarkEventProcessed(id uint) error
	MarkEventRejected(id uint, detail string) error
	GetEventByUUID(eventUUID string) (*models.RawWebhookEvent, error)
	ListEvents(eventType, status string, limit, offset int) ([]models.RawWebhookEvent, error)
	ListEventsBefore(cutoff time.Time, status string, limit int) ([]models.RawWebhookEvent, error)
	UpsertObject(obj *models.ExternalObject) (*models.ExternalObject, error)
	MarkBankAccountVerified(accountToken, verifiedAt string) error
	GetObject(externalID, objectType string) (*models.ExternalObject, error)
	ListObjects(objectType, status string, limit, offset int) ([]models.ExternalObject, error)
	CountObjects() ([]ObjectCount, error)
	CountEvents() ([]EventCount, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// AppendEvent inserts one delivery attempt. There is no uniqueness
// constraint: duplicate deliveries of the same logical event produce
// multiple rows to preserve the full delivery history.
func (r *gormRepository) AppendEvent(event *models.RawWebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *gormRepository) MarkEventProcessed(id uint) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       models.WebhookStatusProcessed,
		"processed_at": &now,
	}
	return r.db.Model(&models.RawWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) MarkEventRejected(id uint, detail string) error {
	updates := map[string]interface{}{
		"status":       models.WebhookStatusRejected,
		"error_detail": detail,
	}
	return r.db.Model(&models.RawWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetEventByUUID(eventUUID string) (*models.RawWebhookEvent, error) {
	return models.FindRawWebhookEventByUUID(r.db, eventUUID)
}

func (r *gormRepository) ListEvents(eventType, status string, limit, offset int) ([]models.RawWebhookEvent, error) {
	query := r.db.Model(&models.RawWebhookEvent{}).Order("received_at DESC")
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var events []models.RawWebhookEvent
	err := query.Limit(limit).Offset(offset).Find(&events).Error
	return events, err
}

func (r *gormRepository) ListEventsBefore(cutoff time.Time, status string, limit int) ([]models.RawWebhookEvent, error) {
	var events []models.RawWebhookEvent
	err := r.db.Where("received_at < ? AND status = ?", cutoff, status).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// UpsertObject applies one reconciliation write as a single atomic
// insert-or-update keyed by the unique (external_id, object_type) tuple.
// Status is last-write-wins; the metadata shallow-merge happens inside the
// statement via JSON_MERGE_PATCH so concurrent deliveries cannot lose
// updates to a read-modify-write race.
func (r *gormRepository) UpsertObject(obj *models.ExternalObject) (*models.ExternalObject, error) {
	if obj.Metadata == "" {
		obj.Metadata = "{}"
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "external_id"},
			{Name: "object_type"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":      obj.Status,
			"raw_payload": obj.RawPayload,
			"metadata":    gorm.Expr("JSON_MERGE_PATCH(COALESCE(metadata, '{}'), VALUES(metadata))"),
			"updated_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(obj).Error
	if err != nil {
		return nil, err
	}

	// Re-read so the caller sees the merged row, not the insert candidate.
	return models.FindExternalObject(r.db, obj.ExternalID, obj.ObjectType)
}

// MarkBankAccountVerified flips the bank account sharing the verification's
// account token to verified. This is the one cross-entity rule in the
// subsystem (see Service.Reconcile).
func (r *gormRepository) MarkBankAccountVerified(accountToken, verifiedAt string) error {
	patch, err := json.Marshal(map[string]string{"verified_at": verifiedAt})
	if err != nil {
		return err
	}
	return r.db.Model(&models.ExternalObject{}).
		Where("external_id = ? AND object_type = ?", accountToken, ObjectTypeBankAccount).
		Updates(map[string]interface{}{
			"status":   StatusVerified,
			"metadata": gorm.Expr("JSON_MERGE_PATCH(COALESCE(metadata, '{}'), ?)", string(patch)),
		}).Error
}

func (r *gormRepository) GetObject(externalID, objectType string) (*models.ExternalObject, error) {
	return models.FindExternalObject(r.db, externalID, objectType)
}

func (r *gormRepository) ListObjects(objectType, status string, limit, offset int) ([]models.ExternalObject, error) {
	query := r.db.Model(&models.ExternalObject{}).Order("updated_at DESC")
	if objectType != "" {
		query = query.Where("object_type = ?", objectType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var objects []models.ExternalObject
	err := query.Limit(limit).Offset(offset).Find(&objects).Error
	return objects, err
}

func (r *gormRepository) CountObjects() ([]ObjectCount, error) {
	var counts []ObjectCount
	err := r.db.Model(&models.ExternalObject{}).
		Select("object_type, status, COUNT(*) AS count").
		Group("object_type, status").
		Scan(&counts).Error
	return counts, err
}

func (r *gormRepository) CountEvents() ([]EventCount, error) {
	var counts []EventCount
	err := r.db.Model(&models.RawWebhookEvent{}).
		Select("event_type, status, COUNT(*) AS count").
		Group("event_type, status").
		Scan(&counts).Error
	return counts, err
}
