package wagateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/providers"
)

// Adapter proveedor de WhatsApp sobre un gateway autohospedado estilo
// Evolution API. A diferencia de la Cloud API, este webhook sí entrega ecos
// de los mensajes que el propio bot envía, marcados con fromMe.
type Adapter struct {
	config     config.GatewayConfig
	httpClient *http.Client
}

var _ providers.ProviderAdapter = (*Adapter)(nil)

func NewAdapter(cfg config.GatewayConfig) *Adapter {
	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ID identificador del proveedor configurado
func (a *Adapter) ID() kernel.ProviderID {
	return kernel.ProviderID(a.config.ProviderID)
}

// SendText envía un mensaje de texto a través del gateway
func (a *Adapter) SendText(ctx context.Context, contactAddress string, text string, opts providers.SendOptions) error {
	payload := map[string]any{
		"number":      contactAddress,
		"text":        text,
		"linkPreview": opts.PreviewURL,
	}
	url := fmt.Sprintf("%s/message/sendText/%s", strings.TrimRight(a.config.BaseURL, "/"), a.config.Instance)
	return a.post(ctx, url, payload)
}

// SendMedia envía un adjunto por URL con caption opcional
func (a *Adapter) SendMedia(ctx context.Context, contactAddress string, mediaURL string, caption string) error {
	payload := map[string]any{
		"number":    contactAddress,
		"mediatype": "image",
		"media":     mediaURL,
		"caption":   caption,
	}
	url := fmt.Sprintf("%s/message/sendMedia/%s", strings.TrimRight(a.config.BaseURL, "/"), a.config.Instance)
	return a.post(ctx, url, payload)
}

func (a *Adapter) post(ctx context.Context, url string, payload map[string]any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return providers.ErrSendFailed().
			WithDetail("reason", fmt.Sprintf("failed to marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return providers.ErrSendFailed().
			WithDetail("reason", fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("apikey", a.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return providers.ErrSendFailed().
			WithDetail("reason", fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("❌ Gateway API error - status: %d, body: %s", resp.StatusCode, string(body))
		return providers.ErrSendFailed().
			WithDetail("status_code", resp.StatusCode).
			WithDetail("response", string(body))
	}

	return nil
}

// NormalizeWebhook extrae los mensajes del evento del gateway. Eventos que no
// son messages.upsert devuelven lista vacía.
func (a *Adapter) NormalizeWebhook(ctx context.Context, payload []byte, headers map[string]string) ([]providers.Message, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, providers.ErrInvalidWebhook().
			WithDetail("reason", fmt.Sprintf("failed to parse webhook: %v", err))
	}

	if event.Instance != "" && event.Instance != a.config.Instance {
		return nil, providers.ErrWrongTenant().
			WithDetail("expected", a.config.Instance).
			WithDetail("received", event.Instance)
	}

	if event.Event != "messages.upsert" {
		return nil, nil
	}

	msg := a.normalizeMessage(event.Data)
	if msg == nil {
		return nil, nil
	}
	return []providers.Message{*msg}, nil
}

func (a *Adapter) normalizeMessage(data webhookData) *providers.Message {
	if data.Key.ID == "" || data.Key.RemoteJid == "" {
		return nil
	}

	normalized := &providers.Message{
		ID:             kernel.NewMessageID(data.Key.ID),
		ProviderID:     a.ID(),
		ContactAddress: normalizeJid(data.Key.RemoteJid),
		FromSelf:       data.Key.FromMe,
		Timestamp:      time.Unix(data.MessageTimestamp, 0),
	}

	switch {
	case data.Message.Conversation != "":
		normalized.Type = providers.MessageTypeText
		normalized.Text = data.Message.Conversation
	case data.Message.ExtendedTextMessage != nil:
		normalized.Type = providers.MessageTypeText
		normalized.Text = data.Message.ExtendedTextMessage.Text
	case data.Message.ImageMessage != nil:
		normalized.Type = providers.MessageTypeImage
		normalized.Text = data.Message.ImageMessage.Caption
	case data.Message.AudioMessage != nil:
		normalized.Type = providers.MessageTypeAudio
	default:
		normalized.Type = providers.MessageTypeUnknown
	}

	return normalized
}

// ConnectionStatus consulta el estado de la instancia en el gateway
func (a *Adapter) ConnectionStatus(ctx context.Context) (providers.ConnectionStatus, error) {
	url := fmt.Sprintf("%s/instance/connectionState/%s", strings.TrimRight(a.config.BaseURL, "/"), a.config.Instance)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return providers.ConnectionStatusUnknown, err
	}
	req.Header.Set("apikey", a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return providers.ConnectionStatusDisconnected, providers.ErrProviderUnhealthy().
			WithDetail("reason", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.ConnectionStatusDisconnected, providers.ErrProviderUnhealthy().
			WithDetail("status_code", resp.StatusCode)
	}

	var state connectionStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return providers.ConnectionStatusUnknown, nil
	}

	if strings.EqualFold(state.Instance.State, "open") {
		return providers.ConnectionStatusConnected, nil
	}
	return providers.ConnectionStatusDisconnected, nil
}

// normalizeJid deja el JID como número plano: 51999999999@s.whatsapp.net -> 51999999999
func normalizeJid(jid string) string {
	if idx := strings.Index(jid, "@"); idx > 0 {
		return jid[:idx]
	}
	return jid
}
