package providers

import (
	"time"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// ============================================================================
// Message Entity
// ============================================================================

// MessageType tipo de contenido del mensaje
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeUnknown  MessageType = "unknown"
)

// Message mensaje entrante ya normalizado, independiente del proveedor
type Message struct {
	ID             kernel.MessageID  `json:"id"`
	ProviderID     kernel.ProviderID `json:"providerId"`
	ContactAddress string            `json:"contactAddress"`
	FromSelf       bool              `json:"fromSelf"`
	Type           MessageType       `json:"type"`
	Text           string            `json:"text,omitempty"`
	MediaURL       string            `json:"mediaUrl,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// IsValid verifica si el mensaje trae lo mínimo para procesarse
func (m *Message) IsValid() bool {
	return !m.ID.IsEmpty() && !m.ProviderID.IsEmpty() && m.ContactAddress != ""
}

// IsProcessable los ecos de mensajes propios nunca se procesan
func (m *Message) IsProcessable() bool {
	return m.IsValid() && !m.FromSelf
}

// ============================================================================
// Connection Status
// ============================================================================

// ConnectionStatus estado de la conexión con el proveedor
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusUnknown      ConnectionStatus = "unknown"
)

// ============================================================================
// Send Options
// ============================================================================

// SendOptions opciones de envío hacia el proveedor
type SendOptions struct {
	// PreviewURL habilita la vista previa de enlaces si el proveedor lo soporta
	PreviewURL bool
}
