package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/solutionargentrapide/paygate/internal/pkg/cache"
	"github.com/solutionargentrapide/paygate/internal/pkg/metrics/counter"
	"github.com/solutionargentrapide/paygate/internal/pkg/vopay"
)

const objectCacheTTL = 30 * time.Second

// APIServer serves the read-only views over reconciled webhook state that
// downstream admin tooling consumes. Display logic lives with the
// consumers; these endpoints only expose rows.
type APIServer struct {
	svc *vopay.Service
}

// NewAPIServer creates a new API server instance
func NewAPIServer(svc *vopay.Service) *APIServer {
	return &APIServer{svc: svc}
}

// RegisterHandlers attaches the v1 routes to a router group.
func RegisterHandlers(router fiber.Router, s *APIServer, adminGuard fiber.Handler) {
	router.Get("/objects", s.GetObjects)
	router.Get("/objects/:type/:id", s.GetObject)
	router.Get("/events", s.GetEvents)
	router.Get("/stats", s.GetStats)
	router.Post("/events/:uuid/replay", adminGuard, s.PostReplayEvent)
}

// GetObjects lists reconciled external objects, filterable by type and status.
func (s *APIServer) GetObjects(c *fiber.Ctx) error {
	objects, err := s.svc.ListObjects(context.Background(),
		c.Query("type"), c.Query("status"),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "object_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"objects": objects,
		"count":   len(objects),
	})
}

// GetObject returns one reconciled object with decoded metadata. Lookups
// are cached briefly since admin dashboards poll them.
func (s *APIServer) GetObject(c *fiber.Ctx) error {
	objectType := c.Params("type")
	externalID := c.Params("id")

	cacheKey := fmt.Sprintf("webhook:object:%s:%s", objectType, externalID)
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).SendString(cached)
	}

	obj, err := s.svc.GetObject(context.Background(), externalID, objectType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "object_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "object_lookup_failed"})
	}

	metadata, err := obj.MetadataMap()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metadata_decode_failed"})
	}

	body, err := json.Marshal(fiber.Map{
		"object":   obj,
		"metadata": metadata,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "encode_failed"})
	}
	_ = cache.Set(cacheKey, string(body), objectCacheTTL)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(body)
}

// GetEvents lists raw delivery attempts, filterable by event type and
// processing status.
func (s *APIServer) GetEvents(c *fiber.Ctx) error {
	events, err := s.svc.ListEvents(context.Background(),
		c.Query("event_type"), c.Query("status"),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_list_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}

// GetStats returns per-type breakdowns of objects and events plus the
// Redis ingest counters.
func (s *APIServer) GetStats(c *fiber.Ctx) error {
	objects, events, err := s.svc.Stats(context.Background())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_failed"})
	}

	response := fiber.Map{
		"objects": objects,
		"events":  events,
	}
	if ingest, err := counter.Snapshot(); err == nil {
		response["ingest"] = ingest
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

// PostReplayEvent re-drives one recorded delivery through the reconciler.
// Admin-guarded; used to recover events left "received" after a storage
// outage.
func (s *APIServer) PostReplayEvent(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	obj, err := s.svc.Replay(ctx, c.Params("uuid"))
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event_not_found"})
		case errors.Is(err, vopay.ErrReplayNotAllowed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "replay_not_allowed"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "replay_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":     true,
		"external_id": obj.ExternalID,
		"object_type": obj.ObjectType,
		"status":      obj.Status,
	})
}
