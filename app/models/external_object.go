package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// ExternalObject mirrors a VoPay-side entity (transaction, bank account,
// batch, card link, ...) by status and metadata. Exactly one row exists per
// (external_id, object_type); webhook deliveries update the row in place.
type ExternalObject struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExternalID string    `gorm:"type:varchar(191);not null;index:ux_external_objects_key,unique,priority:1" json:"external_id" validate:"required"`
	ObjectType string    `gorm:"type:varchar(50);not null;index:ux_external_objects_key,unique,priority:2;index" json:"object_type" validate:"required"`
	Status     string    `gorm:"type:varchar(50);not null;index" json:"status"`
	Metadata   string    `gorm:"column:metadata;type:json" json:"-"`
	RawPayload string    `gorm:"type:longtext" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (o *ExternalObject) Validate() error {
	v := validator.New()

	return v.Struct(o)
}

// MetadataMap decodes the stored metadata JSON. An empty column decodes to an
// empty map.
func (o *ExternalObject) MetadataMap() (map[string]interface{}, error) {
	meta := make(map[string]interface{})
	if o.Metadata == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(o.Metadata), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// FindExternalObject looks up the reconciled state for one external entity.
func FindExternalObject(db *gorm.DB, externalID, objectType string) (*ExternalObject, error) {
	var obj ExternalObject
	result := db.Where("external_id = ? AND object_type = ?", externalID, objectType).First(&obj)
	if result.Error != nil {
		return nil, result.Error
	}
	return &obj, nil
}
