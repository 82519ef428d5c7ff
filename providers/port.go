package providers

import (
	"context"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// ============================================================================
// Adapter Interface
// ============================================================================

// ProviderAdapter contrato único que implementan todos los proveedores de
// mensajería. El resto del sistema solo conoce esta interfaz.
type ProviderAdapter interface {
	// ID identificador del proveedor configurado
	ID() kernel.ProviderID

	// SendText envía un mensaje de texto al contacto
	SendText(ctx context.Context, contactAddress string, text string, opts SendOptions) error

	// SendMedia envía un mensaje con adjunto
	SendMedia(ctx context.Context, contactAddress string, mediaURL string, caption string) error

	// NormalizeWebhook valida y transforma el payload crudo del webhook en
	// mensajes normalizados. Eventos que no son mensajes (acks, estados)
	// devuelven lista vacía sin error.
	NormalizeWebhook(ctx context.Context, payload []byte, headers map[string]string) ([]Message, error)

	// ConnectionStatus estado actual de la conexión
	ConnectionStatus(ctx context.Context) (ConnectionStatus, error)
}

// ============================================================================
// Manager Interface
// ============================================================================

// Manager registro de adaptadores activos indexado por proveedor
type Manager interface {
	// Register añade un adaptador al registro
	Register(adapter ProviderAdapter)

	// Get obtiene el adaptador de un proveedor
	Get(providerID kernel.ProviderID) (ProviderAdapter, error)

	// SendText envía texto a través del proveedor indicado
	SendText(ctx context.Context, providerID kernel.ProviderID, contactAddress string, text string) error

	// List todos los adaptadores registrados
	List() []ProviderAdapter
}

// ============================================================================
// Inbound Handler
// ============================================================================

// InboundHandler consume los mensajes normalizados que llegan por webhook
type InboundHandler interface {
	ProcessInbound(ctx context.Context, msg Message) error
}
