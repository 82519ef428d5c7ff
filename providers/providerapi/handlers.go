package providerapi

import (
	"log"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/providers"
	"github.com/gofiber/fiber/v2"
)

// WebhookVerifier adaptadores que soportan el reto GET de verificación
type WebhookVerifier interface {
	VerifyToken(mode, token, challenge string) (string, error)
}

// WebhookHandler recibe los webhooks de todos los proveedores registrados
type WebhookHandler struct {
	manager providers.Manager
	inbound providers.InboundHandler
}

func NewWebhookHandler(manager providers.Manager, inbound providers.InboundHandler) *WebhookHandler {
	return &WebhookHandler{
		manager: manager,
		inbound: inbound,
	}
}

// VerifyWebhook responde el reto de verificación del proveedor
// GET /webhooks/:providerId
func (h *WebhookHandler) VerifyWebhook(c *fiber.Ctx) error {
	providerID := kernel.ProviderID(c.Params("providerId"))

	adapter, err := h.manager.Get(providerID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Provider not found")
	}

	verifier, ok := adapter.(WebhookVerifier)
	if !ok {
		// Proveedores sin reto de verificación responden OK directo
		return c.SendStatus(fiber.StatusOK)
	}

	challenge, err := verifier.VerifyToken(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		log.Printf("❌ Webhook verification failed for provider %s: %v", providerID, err)
		return fiber.NewError(fiber.StatusForbidden, "Verification failed")
	}

	log.Printf("✅ Webhook verified for provider %s", providerID)
	return c.SendString(challenge)
}

// ReceiveWebhook normaliza el payload y procesa los mensajes entrantes
// POST /webhooks/:providerId
//
// Siempre responde 200: un error aquí haría que el proveedor reintente el
// mismo payload en bucle.
func (h *WebhookHandler) ReceiveWebhook(c *fiber.Ctx) error {
	providerID := kernel.ProviderID(c.Params("providerId"))

	adapter, err := h.manager.Get(providerID)
	if err != nil {
		log.Printf("❌ Webhook for unknown provider %s", providerID)
		return c.SendStatus(fiber.StatusOK)
	}

	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	messages, err := adapter.NormalizeWebhook(c.Context(), c.Body(), headers)
	if err != nil {
		log.Printf("❌ Failed to normalize webhook for provider %s: %v", providerID, err)
		return c.SendStatus(fiber.StatusOK)
	}

	for _, msg := range messages {
		if err := h.inbound.ProcessInbound(c.Context(), msg); err != nil {
			log.Printf("❌ Failed to process message %s: %v", msg.ID, err)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// ProviderStatus estado de conexión de un proveedor
// GET /providers/:providerId/status
func (h *WebhookHandler) ProviderStatus(c *fiber.Ctx) error {
	providerID := kernel.ProviderID(c.Params("providerId"))

	adapter, err := h.manager.Get(providerID)
	if err != nil {
		return err
	}

	status, err := adapter.ConnectionStatus(c.Context())
	if err != nil {
		return c.JSON(fiber.Map{
			"providerId": providerID,
			"status":     status,
			"error":      err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"providerId": providerID,
		"status":     status,
	})
}
