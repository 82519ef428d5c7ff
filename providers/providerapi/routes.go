package providerapi

import (
	"github.com/gofiber/fiber/v2"
)

// WebhookRoutes configura las rutas de webhooks de proveedores
type WebhookRoutes struct {
	handler *WebhookHandler
}

func NewWebhookRoutes(handler *WebhookHandler) *WebhookRoutes {
	return &WebhookRoutes{handler: handler}
}

func (wr *WebhookRoutes) RegisterRoutes(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Get("/:providerId", wr.handler.VerifyWebhook)
	webhooks.Post("/:providerId", wr.handler.ReceiveWebhook)

	prov := app.Group("/providers")
	prov.Get("/:providerId/status", wr.handler.ProviderStatus)
}
