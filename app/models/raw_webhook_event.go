package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WebhookProviderVoPay = "vopay"

	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusRejected  = "rejected"
)

// RawWebhookEvent is the append-only log of every webhook delivery attempt,
// including duplicates and rejected ones. The payload is never mutated after
// insert; only the processing status columns are updated.
type RawWebhookEvent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UUID           string     `gorm:"type:char(36) CHARACTER SET utf8 COLLATE utf8_bin;uniqueIndex;not null" json:"uuid"`
	Provider       string     `gorm:"type:varchar(20);not null;index" json:"provider" validate:"required"`
	EventType      string     `gorm:"type:varchar(100);not null;index" json:"event_type" validate:"required"`
	Payload        string     `gorm:"type:longtext;not null" json:"payload"`
	SignatureValid bool       `gorm:"default:false;index" json:"signature_valid"`
	Status         string     `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	ErrorDetail    string     `gorm:"type:text" json:"error_detail"`
	ReceivedAt     time.Time  `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
}

func (e *RawWebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	return nil
}

// FindRawWebhookEventByUUID looks up a delivery attempt by its public UUID.
func FindRawWebhookEventByUUID(db *gorm.DB, eventUUID string) (*RawWebhookEvent, error) {
	var event RawWebhookEvent
	result := db.Where("uuid = ?", eventUUID).First(&event)
	if result.Error != nil {
		return nil, result.Error
	}
	return &event, nil
}
