package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/solutionargentrapide/paygate/app/models"
	"github.com/solutionargentrapide/paygate/internal/pkg/vopay"
)

const testSharedSecret = "test-secret"

// stubRepository keeps events and objects in memory with the same observable
// semantics as the MySQL repository: append-only event log, one object row
// per (external_id, object_type), shallow metadata merge on update.
type stubRepository struct {
	events  []*models.RawWebhookEvent
	objects map[string]*models.ExternalObject

	upsertErr error
}

func newStubRepository() *stubRepository {
	return &stubRepository{objects: make(map[string]*models.ExternalObject)}
}

func (s *stubRepository) key(externalID, objectType string) string {
	return externalID + "|" + objectType
}

func (s *stubRepository) AppendEvent(event *models.RawWebhookEvent) error {
	event.ID = uint(len(s.events) + 1)
	if event.UUID == "" {
		event.UUID = uuid.New().String()
	}
	event.ReceivedAt = time.Now()
	s.events = append(s.events, event)
	return nil
}

func (s *stubRepository) MarkEventProcessed(id uint) error {
	for _, e := range s.events {
		if e.ID == id {
			now := time.Now()
			e.Status = models.WebhookStatusProcessed
			e.ProcessedAt = &now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubRepository) MarkEventRejected(id uint, detail string) error {
	for _, e := range s.events {
		if e.ID == id {
			e.Status = models.WebhookStatusRejected
			e.ErrorDetail = detail
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubRepository) GetEventByUUID(eventUUID string) (*models.RawWebhookEvent, error) {
	for _, e := range s.events {
		if e.UUID == eventUUID {
			return e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepository) ListEvents(eventType, status string, limit, offset int) ([]models.RawWebhookEvent, error) {
	var out []models.RawWebhookEvent
	for _, e := range s.events {
		out = append(out, *e)
	}
	return out, nil
}

func (s *stubRepository) ListEventsBefore(cutoff time.Time, status string, limit int) ([]models.RawWebhookEvent, error) {
	return nil, nil
}

func (s *stubRepository) UpsertObject(obj *models.ExternalObject) (*models.ExternalObject, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	key := s.key(obj.ExternalID, obj.ObjectType)
	existing, ok := s.objects[key]
	if !ok {
		stored := *obj
		stored.ID = uint(len(s.objects) + 1)
		if stored.Metadata == "" {
			stored.Metadata = "{}"
		}
		s.objects[key] = &stored
		copied := stored
		return &copied, nil
	}

	base := make(map[string]interface{})
	_ = json.Unmarshal([]byte(existing.Metadata), &base)
	patch := make(map[string]interface{})
	_ = json.Unmarshal([]byte(obj.Metadata), &patch)
	for k, v := range patch {
		base[k] = v
	}
	merged, _ := json.Marshal(base)

	existing.Status = obj.Status
	existing.RawPayload = obj.RawPayload
	existing.Metadata = string(merged)
	copied := *existing
	return &copied, nil
}

func (s *stubRepository) MarkBankAccountVerified(accountToken, verifiedAt string) error {
	obj, ok := s.objects[s.key(accountToken, vopay.ObjectTypeBankAccount)]
	if !ok {
		return nil
	}
	base := make(map[string]interface{})
	_ = json.Unmarshal([]byte(obj.Metadata), &base)
	base["verified_at"] = verifiedAt
	merged, _ := json.Marshal(base)
	obj.Status = vopay.StatusVerified
	obj.Metadata = string(merged)
	return nil
}

func (s *stubRepository) GetObject(externalID, objectType string) (*models.ExternalObject, error) {
	obj, ok := s.objects[s.key(externalID, objectType)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *obj
	return &copied, nil
}

func (s *stubRepository) ListObjects(objectType, status string, limit, offset int) ([]models.ExternalObject, error) {
	var out []models.ExternalObject
	for _, obj := range s.objects {
		out = append(out, *obj)
	}
	return out, nil
}

func (s *stubRepository) CountObjects() ([]vopay.ObjectCount, error) { return nil, nil }
func (s *stubRepository) CountEvents() ([]vopay.EventCount, error)  { return nil, nil }

func newWebhookTestApp(repo *stubRepository) (*fiber.App, *vopay.Verifier) {
	verifier := vopay.NewVerifier(testSharedSecret)
	InitializeWebhookController(vopay.NewService(repo), verifier)

	app := fiber.New()
	group := app.Group("/webhooks/vopay")
	for _, schema := range vopay.Schemas() {
		group.Post(schema.Path, HandleVoPayWebhook(schema))
		group.Get(schema.Path, HandleVoPayWebhookStatus(schema))
	}
	return app, verifier
}

func postJSON(t *testing.T, app *fiber.App, path string, body map[string]interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := make(map[string]interface{})
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	return resp.StatusCode, decoded
}

func TestWebhookBankAccountLifecycle(t *testing.T) {
	repo := newStubRepository()
	app, verifier := newWebhookTestApp(repo)

	creation := map[string]interface{}{
		"AccountToken":      "tok_1",
		"InstitutionNumber": "003",
		"TransitNumber":     "12345",
		"AccountNumber":     "9876543",
		"InstitutionName":   "RBC",
		"Status":            "pending",
		"ValidationKey":     verifier.Sign("tok_1"),
	}
	status, body := postJSON(t, app, "/webhooks/vopay/bank-account", creation)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tok_1", body["external_id"])
	assert.Equal(t, "bank_account", body["object_type"])
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["event_uuid"])

	obj, err := repo.GetObject("tok_1", vopay.ObjectTypeBankAccount)
	require.NoError(t, err)
	assert.Equal(t, "pending", obj.Status)
	meta, err := obj.MetadataMap()
	require.NoError(t, err)
	assert.Equal(t, "RBC", meta["institution_name"])
	assert.Equal(t, "003", meta["institution_number"])
	assert.NotContains(t, meta, "ValidationKey")

	// Verification for the same token flips the bank account row.
	verification := map[string]interface{}{
		"VerificationID": "ver_001",
		"AccountToken":   "tok_1",
		"Status":         "verified",
		"VerifiedAt":     "2026-08-01T10:00:00Z",
		"ValidationKey":  verifier.Sign("ver_001"),
	}
	status, body = postJSON(t, app, "/webhooks/vopay/account-verification", verification)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "verification", body["object_type"])

	obj, err = repo.GetObject("tok_1", vopay.ObjectTypeBankAccount)
	require.NoError(t, err)
	assert.Equal(t, vopay.StatusVerified, obj.Status)
	meta, _ = obj.MetadataMap()
	assert.Equal(t, "2026-08-01T10:00:00Z", meta["verified_at"])

	// Still exactly one bank account row and one verification row.
	assert.Len(t, repo.objects, 2)
	// Every POST appended exactly one raw event, both processed.
	require.Len(t, repo.events, 2)
	for _, e := range repo.events {
		assert.Equal(t, models.WebhookStatusProcessed, e.Status)
		assert.True(t, e.SignatureValid)
	}
}

func TestWebhookBankAccountStatusUpdate(t *testing.T) {
	repo := newStubRepository()
	app, verifier := newWebhookTestApp(repo)

	payload := map[string]interface{}{
		"AccountToken":      "tok_1",
		"InstitutionNumber": "001",
		"TransitNumber":     "00001",
		"AccountNumber":     "123456",
		"InstitutionName":   "Bank A",
		"Status":            "pending",
		"ValidationKey":     verifier.Sign("tok_1"),
		"CreatedAt":         "2026-08-01T09:00:00Z",
		"Environment":       "production",
	}
	status, body := postJSON(t, app, "/webhooks/vopay/bank-account", payload)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pending", body["status"])

	payload["Status"] = "verified"
	status, body = postJSON(t, app, "/webhooks/vopay/bank-account", payload)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "verified", body["status"])

	// The second delivery updated the row in place.
	assert.Len(t, repo.objects, 1)
	obj, err := repo.GetObject("tok_1", vopay.ObjectTypeBankAccount)
	require.NoError(t, err)
	assert.Equal(t, "verified", obj.Status)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	repo := newStubRepository()
	app, verifier := newWebhookTestApp(repo)

	payload := map[string]interface{}{
		"TransactionID":     "tx-1",
		"TransactionType":   "EFT Out",
		"TransactionAmount": "100.00",
		"Status":            "successful",
		"ValidationKey":     verifier.Sign("tx-1"),
	}
	for i := 0; i < 3; i++ {
		status, _ := postJSON(t, app, "/webhooks/vopay", payload)
		require.Equal(t, fiber.StatusOK, status)
	}

	// Three raw events, one reconciled object.
	assert.Len(t, repo.events, 3)
	assert.Len(t, repo.objects, 1)
}

func TestWebhookInvalidSignature(t *testing.T) {
	repo := newStubRepository()
	app, _ := newWebhookTestApp(repo)

	payload := map[string]interface{}{
		"TransactionID":     "tx-2",
		"TransactionType":   "EFT Out",
		"TransactionAmount": "100.00",
		"Status":            "successful",
		"ValidationKey":     "0000000000000000000000000000000000000000",
	}
	status, body := postJSON(t, app, "/webhooks/vopay", payload)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid signature", body["error"])

	// The delivery attempt is on record but nothing was reconciled.
	require.Len(t, repo.events, 1)
	assert.False(t, repo.events[0].SignatureValid)
	assert.Equal(t, models.WebhookStatusRejected, repo.events[0].Status)
	assert.Empty(t, repo.objects)
}

func TestWebhookMissingRequiredField(t *testing.T) {
	repo := newStubRepository()
	app, verifier := newWebhookTestApp(repo)

	payload := map[string]interface{}{
		"TransactionID": "tx-3",
		"Status":        "successful",
		"ValidationKey": verifier.Sign("tx-3"),
	}
	status, body := postJSON(t, app, "/webhooks/vopay", payload)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "TransactionType")

	require.Len(t, repo.events, 1)
	assert.Equal(t, models.WebhookStatusRejected, repo.events[0].Status)
	assert.Empty(t, repo.objects)
}

func TestWebhookMalformedJSON(t *testing.T) {
	repo := newStubRepository()
	app, _ := newWebhookTestApp(repo)

	req := httptest.NewRequest("POST", "/webhooks/vopay/batch", bytes.NewReader([]byte(`{"BatchID":`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// A non-JSON body is still a recorded delivery attempt.
	require.Len(t, repo.events, 1)
	assert.Equal(t, `{"BatchID":`, repo.events[0].Payload)
	assert.Equal(t, models.WebhookStatusRejected, repo.events[0].Status)
	assert.False(t, repo.events[0].SignatureValid)
}

func TestWebhookReconcileFailure(t *testing.T) {
	repo := newStubRepository()
	repo.upsertErr = errors.New("storage unavailable")
	app, verifier := newWebhookTestApp(repo)

	payload := map[string]interface{}{
		"AccountID":     "acct-1",
		"Status":        "active",
		"ValidationKey": verifier.Sign("acct-1"),
	}
	status, body := postJSON(t, app, "/webhooks/vopay/account-status", payload)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "reconciliation_failed", body["error"])

	// The row stays "received" so the delivery can be replayed later.
	require.Len(t, repo.events, 1)
	assert.Equal(t, models.WebhookStatusReceived, repo.events[0].Status)
	assert.True(t, repo.events[0].SignatureValid)
}

func TestWebhookStatusProbes(t *testing.T) {
	repo := newStubRepository()
	app, _ := newWebhookTestApp(repo)

	for _, schema := range vopay.Schemas() {
		req := httptest.NewRequest("GET", "/webhooks/vopay"+schema.Path, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode, schema.EventType)

		decoded := make(map[string]interface{})
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()
		require.NoError(t, json.Unmarshal(data, &decoded))

		assert.Equal(t, "online", decoded["status"], schema.EventType)
		assert.Equal(t, schema.Endpoint, decoded["endpoint"], schema.EventType)
		assert.Equal(t, []interface{}{"POST"}, decoded["methods"], schema.EventType)
	}
}

func TestWebhookAllEventTypesAccepted(t *testing.T) {
	repo := newStubRepository()
	app, verifier := newWebhookTestApp(repo)

	samples := map[string]map[string]interface{}{
		"transaction": {
			"TransactionID":     "tx-9",
			"TransactionType":   "Interac",
			"TransactionAmount": "10.00",
			"Status":            "pending",
		},
		"elinx": {
			"TransactionID":      "tx-10",
			"ELinxTransactionID": "elx-1",
			"Status":             "completed",
		},
		"account_status": {
			"AccountID": "acct-1",
			"Status":    "active",
		},
		"batch": {
			"BatchID":           "batch-1",
			"Status":            "processing",
			"TotalTransactions": 25,
		},
		"bank_account": {
			"AccountToken":      "tok_9",
			"InstitutionNumber": "003",
			"TransitNumber":     "12345",
			"AccountNumber":     "9876543",
			"InstitutionName":   "RBC",
			"Status":            "active",
		},
		"batch_detail": {
			"BatchDetailID": "bd-1",
			"BatchID":       "batch-1",
			"Status":        "completed",
		},
		"scheduled_transaction": {
			"ScheduleID":  "sched-1",
			"Status":      "active",
			"NextRunDate": "2026-09-01",
		},
		"account_verification": {
			"VerificationID": "ver-9",
			"AccountToken":   "tok_9",
			"Status":         "pending",
		},
		"transaction_group": {
			"GroupID":          "grp-1",
			"Status":           "completed",
			"TransactionCount": 4,
		},
		"account_balance": {
			"AccountID": "acct-1",
			"Balance":   "1000.00",
			"Available": "900.00",
		},
		"client_account_balance": {
			"ClientAccountID": "client-1",
			"Balance":         "500.00",
		},
		"payment_received": {
			"PaymentID": "pay-1",
			"Amount":    "75.00",
			"Status":    "received",
		},
		"account_limit": {
			"AccountID":      "acct-1",
			"DailyLimit":     "5000.00",
			"RemainingLimit": "4200.00",
		},
		"virtual_account": {
			"VirtualAccountID": "va-1",
			"AccountNumber":    "1234567",
			"Status":           "active",
		},
		"credit_card": {
			"CardID":         "card-1",
			"LastFourDigits": "4242",
			"Status":         "connected",
		},
		"debit_card": {
			"CardID":         "card-2",
			"LastFourDigits": "9999",
			"Status":         "connected",
		},
	}

	for _, schema := range vopay.Schemas() {
		payload, ok := samples[schema.EventType]
		require.True(t, ok, "no sample payload for %s", schema.EventType)

		externalID := fmt.Sprintf("%v", payload[schema.ExternalIDField])
		payload["ValidationKey"] = verifier.Sign(externalID)

		status, body := postJSON(t, app, "/webhooks/vopay"+schema.Path, payload)
		require.Equal(t, fiber.StatusOK, status, "%s: %v", schema.EventType, body)
		assert.Equal(t, schema.ObjectType, body["object_type"], schema.EventType)
	}

	assert.Len(t, repo.events, len(vopay.Schemas()))
}
