package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/solutionargentrapide/paygate/app/controllers"
	"github.com/solutionargentrapide/paygate/internal/pkg/database"
	"github.com/solutionargentrapide/paygate/internal/pkg/env"
	"github.com/solutionargentrapide/paygate/internal/pkg/vopay"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize webhook controller with the real service + verifier
	controllers.InitializeWebhookController(
		vopay.NewServiceFromDB(database.GetDB()),
		vopay.NewVerifier(env.GetEnv("VOPAY_SHARED_SECRET", "")),
	)

	h.registerWebhookRoutes(app)
}

// registerWebhookRoutes mounts every registered event schema under
// /webhooks/vopay. The transaction status webhook lives at the group root;
// the other fifteen hang off their schema paths. Signature verification
// happens in the controller, so no auth middleware here.
func (h HttpRouter) registerWebhookRoutes(app *fiber.App) {
	group := app.Group("/webhooks/vopay")

	for _, schema := range vopay.Schemas() {
		group.Post(schema.Path, controllers.HandleVoPayWebhook(schema))
		group.Get(schema.Path, controllers.HandleVoPayWebhookStatus(schema))
	}
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
