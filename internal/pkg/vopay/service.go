package vopay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/solutionargentrapide/paygate/app/models"
	"gorm.io/gorm"
)

// ErrReplayNotAllowed marks raw events that cannot be re-driven (the
// delivery never passed signature verification).
var ErrReplayNotAllowed = errors.New("raw event failed signature verification, replay refused")

// Service owns recording of delivery attempts and reconciliation of
// external object state.
type Service struct {
	repo Repository
}

// NewService creates a webhook service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a webhook service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// RecordEvent appends one delivery attempt to the raw event log. It must
// run before parsing or reconciliation so that every delivery, valid or
// not, is recoverable for audit and manual replay. The only failure mode
// is the durable write itself failing.
func (s *Service) RecordEvent(ctx context.Context, eventType string, payload []byte, signatureValid bool) (*models.RawWebhookEvent, error) {
	_ = ctx
	if strings.TrimSpace(eventType) == "" {
		return nil, errors.New("event_type is required")
	}

	event := &models.RawWebhookEvent{
		Provider:       models.WebhookProviderVoPay,
		EventType:      eventType,
		Payload:        string(payload),
		SignatureValid: signatureValid,
		Status:         models.WebhookStatusReceived,
	}
	if err := s.repo.AppendEvent(event); err != nil {
		return nil, err
	}
	return event, nil
}

// MarkProcessed marks a recorded delivery as fully reconciled.
func (s *Service) MarkProcessed(ctx context.Context, eventID uint) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("event id is required")
	}
	return s.repo.MarkEventProcessed(eventID)
}

// MarkRejected marks a recorded delivery as rejected with a reason.
func (s *Service) MarkRejected(ctx context.Context, eventID uint, detail string) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("event id is required")
	}
	return s.repo.MarkEventRejected(eventID, detail)
}

// Reconcile merges a parsed event into the stored state of its external
// object. The write is a single atomic upsert: first observation creates
// the row, every later event updates it in place. VoPay supplies no
// ordering metadata, so status is last-write-wins (acknowledged upstream
// gap; deliveries may arrive out of chronological order).
//
// Cross-entity rule: a verification event with status "verified" also
// flips the bank_account object whose external id equals the
// verification's account token. This is the only such rule and it stays
// explicit here rather than behind a generic trigger mechanism.
func (s *Service) Reconcile(ctx context.Context, event *Event) (*models.ExternalObject, error) {
	_ = ctx
	if event == nil {
		return nil, errors.New("event is required")
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, err
	}

	obj := &models.ExternalObject{
		ExternalID: event.ExternalID,
		ObjectType: event.ObjectType,
		Status:     event.Status,
		Metadata:   string(metadata),
		RawPayload: string(event.Raw),
	}
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	stored, err := s.repo.UpsertObject(obj)
	if err != nil {
		return nil, err
	}

	if event.ObjectType == ObjectTypeVerification && event.Status == StatusVerified {
		token, _ := event.Metadata["account_token"].(string)
		if token != "" {
			verifiedAt, _ := event.Metadata["verified_at"].(string)
			if verifiedAt == "" {
				verifiedAt = time.Now().UTC().Format(time.RFC3339)
			}
			if err := s.repo.MarkBankAccountVerified(token, verifiedAt); err != nil {
				return nil, err
			}
		}
	}

	return stored, nil
}

// Replay re-drives a recorded delivery through parse and reconcile. Used
// by operational tooling for events that were recorded but never
// processed (e.g. reconciliation failed on a storage outage). Deliveries
// that failed signature verification are never replayed.
func (s *Service) Replay(ctx context.Context, eventUUID string) (*models.ExternalObject, error) {
	record, err := s.repo.GetEventByUUID(strings.TrimSpace(eventUUID))
	if err != nil {
		return nil, err
	}
	if !record.SignatureValid {
		return nil, ErrReplayNotAllowed
	}

	schema, ok := SchemaByEventType(record.EventType)
	if !ok {
		return nil, fmt.Errorf("no schema registered for event type %q", record.EventType)
	}

	payload, err := ParsePayload([]byte(record.Payload))
	if err != nil {
		return nil, err
	}
	event, err := ParseEvent(schema, payload, []byte(record.Payload))
	if err != nil {
		return nil, err
	}

	obj, err := s.Reconcile(ctx, event)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkEventProcessed(record.ID); err != nil {
		return nil, err
	}
	return obj, nil
}

// GetObject returns the reconciled state for one external entity.
func (s *Service) GetObject(ctx context.Context, externalID, objectType string) (*models.ExternalObject, error) {
	_ = ctx
	if strings.TrimSpace(externalID) == "" || strings.TrimSpace(objectType) == "" {
		return nil, errors.New("external_id and object_type are required")
	}
	return s.repo.GetObject(externalID, objectType)
}

// ListObjects returns reconciled objects, optionally filtered.
func (s *Service) ListObjects(ctx context.Context, objectType, status string, limit, offset int) ([]models.ExternalObject, error) {
	_ = ctx
	return s.repo.ListObjects(objectType, status, clampLimit(limit), offset)
}

// ListEvents returns raw delivery attempts, optionally filtered.
func (s *Service) ListEvents(ctx context.Context, eventType, status string, limit, offset int) ([]models.RawWebhookEvent, error) {
	_ = ctx
	return s.repo.ListEvents(eventType, status, clampLimit(limit), offset)
}

// Stats returns the object and event breakdowns for the read API.
func (s *Service) Stats(ctx context.Context) ([]ObjectCount, []EventCount, error) {
	_ = ctx
	objects, err := s.repo.CountObjects()
	if err != nil {
		return nil, nil, err
	}
	events, err := s.repo.CountEvents()
	if err != nil {
		return nil, nil, err
	}
	return objects, events, nil
}

// ListArchivable returns processed deliveries older than cutoff, for the
// S3 archive command.
func (s *Service) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.RawWebhookEvent, error) {
	_ = ctx
	return s.repo.ListEventsBefore(cutoff, models.WebhookStatusProcessed, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
