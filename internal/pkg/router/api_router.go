package router

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	apiv1 "github.com/solutionargentrapide/paygate/internal/api/v1"
	"github.com/solutionargentrapide/paygate/internal/pkg/database"
	"github.com/solutionargentrapide/paygate/internal/pkg/env"
	"github.com/solutionargentrapide/paygate/internal/pkg/vopay"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Storage: newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "paygate api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(vopay.NewServiceFromDB(database.GetDB()))
	apiv1.RegisterHandlers(v1, apiServer, newAdminGuard())
}

// newLimiterStorage backs the rate limiter with Redis (database 1, cache
// uses DB 0) so limits survive restarts and hold across instances.
func newLimiterStorage() *redisstorage.Storage {
	port := 6379
	if v, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379")); err == nil {
		port = v
	}
	return redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 1,
	})
}

// newAdminGuard protects mutating admin routes (replay) with basic auth.
func newAdminGuard() fiber.Handler {
	return basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", ""),
		},
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
