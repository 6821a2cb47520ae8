package controllers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/solutionargentrapide/paygate/internal/pkg/metrics/counter"
	"github.com/solutionargentrapide/paygate/internal/pkg/vopay"
)

var (
	webhookService  *vopay.Service
	webhookVerifier *vopay.Verifier
)

// InitializeWebhookController wires the dispatcher with its service and
// verifier. Called once from the router; tests inject fakes here.
func InitializeWebhookController(svc *vopay.Service, verifier *vopay.Verifier) {
	webhookService = svc
	webhookVerifier = verifier
}

// HandleVoPayWebhook builds the POST handler for one event schema. The
// per-request sequence is fixed: decode JSON, compute the signature
// verdict, append the raw event (always, exactly once), validate required
// fields, check the signature, reconcile. The upstream processor retries
// on non-2xx, so storage failures surface as 500 and the recorded row
// stays "received" for later replay.
func HandleVoPayWebhook(schema vopay.Schema) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawBody := append([]byte(nil), c.BodyRaw()...)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		payload, parseErr := vopay.ParsePayload(rawBody)
		if parseErr != nil {
			// The recorder never rejects a write based on content; a
			// non-JSON body is still a delivery attempt.
			record, err := webhookService.RecordEvent(ctx, schema.EventType, rawBody, false)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
			}
			_ = webhookService.MarkRejected(ctx, record.ID, "invalid JSON payload")
			go counter.AddRejected(schema.EventType)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON payload"})
		}

		externalID, validationKey := vopay.Identity(schema, payload)
		signatureValid := webhookVerifier.Verify(externalID, validationKey)

		record, err := webhookService.RecordEvent(ctx, schema.EventType, rawBody, signatureValid)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
		}
		go counter.AddReceived(schema.EventType)

		event, err := vopay.ParseEvent(schema, payload, rawBody)
		if err != nil {
			_ = webhookService.MarkRejected(ctx, record.ID, err.Error())
			go counter.AddRejected(schema.EventType)
			var missing *vopay.MissingFieldError
			if errors.As(err, &missing) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": missing.Error()})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		if !signatureValid {
			log.Printf("[VoPay Webhook] invalid signature for %s %s", schema.EventType, externalID)
			_ = webhookService.MarkRejected(ctx, record.ID, "invalid signature")
			go counter.AddRejected(schema.EventType)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
		}

		obj, err := webhookService.Reconcile(ctx, event)
		if err != nil {
			log.Printf("[VoPay Webhook] reconcile failed for %s %s: %v", schema.EventType, event.ExternalID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation_failed"})
		}
		_ = webhookService.MarkProcessed(ctx, record.ID)
		go counter.AddProcessed(schema.EventType)

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success":     true,
			"message":     schema.Endpoint + " processed",
			"external_id": obj.ExternalID,
			"object_type": obj.ObjectType,
			"status":      obj.Status,
			"event_uuid":  record.UUID,
		})
	}
}

// HandleVoPayWebhookStatus is the liveness probe exposed by every webhook
// route. No auth required.
func HandleVoPayWebhookStatus(schema vopay.Schema) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "online",
			"endpoint": schema.Endpoint,
			"methods":  []string{"POST"},
		})
	}
}
