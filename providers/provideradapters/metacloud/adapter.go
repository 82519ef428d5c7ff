package metacloud

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/providers"
)

const (
	metaAPIBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
)

// Adapter proveedor de WhatsApp sobre la Cloud API oficial de Meta
type Adapter struct {
	config     config.MetaCloudConfig
	httpClient *http.Client
	apiURL     string
}

var _ providers.ProviderAdapter = (*Adapter)(nil)

func NewAdapter(cfg config.MetaCloudConfig) *Adapter {
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     fmt.Sprintf("%s/%s/%s", metaAPIBaseURL, apiVersion, cfg.PhoneNumberID),
	}
}

// ID identificador del proveedor configurado
func (a *Adapter) ID() kernel.ProviderID {
	return kernel.ProviderID(a.config.ProviderID)
}

// SendText envía un mensaje de texto vía la Cloud API
func (a *Adapter) SendText(ctx context.Context, contactAddress string, text string, opts providers.SendOptions) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                contactAddress,
		"type":              "text",
		"text": map[string]any{
			"body":        text,
			"preview_url": opts.PreviewURL,
		},
	}
	return a.postMessage(ctx, payload)
}

// SendMedia envía un adjunto por URL con caption opcional
func (a *Adapter) SendMedia(ctx context.Context, contactAddress string, mediaURL string, caption string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                contactAddress,
		"type":              "image",
		"image": map[string]any{
			"link":    mediaURL,
			"caption": caption,
		},
	}
	return a.postMessage(ctx, payload)
}

func (a *Adapter) postMessage(ctx context.Context, payload map[string]any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return providers.ErrSendFailed().
			WithDetail("reason", fmt.Sprintf("failed to marshal payload: %v", err))
	}

	url := fmt.Sprintf("%s/messages", a.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return providers.ErrSendFailed().
			WithDetail("reason", fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return providers.ErrSendFailed().
			WithDetail("reason", fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Meta Cloud API error - status: %d, body: %s", resp.StatusCode, string(body))
		return providers.ErrSendFailed().
			WithDetail("status_code", resp.StatusCode).
			WithDetail("response", string(body))
	}

	return nil
}

// NormalizeWebhook valida la firma y extrae los mensajes del payload. Los
// eventos de estado (delivered, read) no producen mensajes.
func (a *Adapter) NormalizeWebhook(ctx context.Context, payload []byte, headers map[string]string) ([]providers.Message, error) {
	if err := a.verifySignature(payload, headers); err != nil {
		return nil, err
	}

	var webhook webhookEnvelope
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, providers.ErrInvalidWebhook().
			WithDetail("reason", fmt.Sprintf("failed to parse webhook: %v", err))
	}

	var messages []providers.Message
	for _, entry := range webhook.Entry {
		for _, change := range entry.Changes {
			if change.Value.MessagingProduct != "whatsapp" {
				continue
			}

			// Cada número de teléfono tiene su propia instancia del adapter;
			// payloads de otro número no se procesan aquí
			if change.Value.Metadata.PhoneNumberID != a.config.PhoneNumberID {
				return nil, providers.ErrWrongTenant().
					WithDetail("expected", a.config.PhoneNumberID).
					WithDetail("received", change.Value.Metadata.PhoneNumberID)
			}

			for _, msg := range change.Value.Messages {
				normalized := a.normalizeMessage(msg)
				if normalized != nil {
					messages = append(messages, *normalized)
				}
			}
		}
	}

	return messages, nil
}

func (a *Adapter) normalizeMessage(msg webhookMessage) *providers.Message {
	normalized := &providers.Message{
		ID:             kernel.NewMessageID(msg.ID),
		ProviderID:     a.ID(),
		ContactAddress: msg.From,
		// La Cloud API no entrega ecos de mensajes propios por este webhook,
		// pero el flag queda normalizado por contrato
		FromSelf:  false,
		Timestamp: parseUnixTimestamp(msg.Timestamp),
	}

	switch {
	case msg.Text != nil:
		normalized.Type = providers.MessageTypeText
		normalized.Text = msg.Text.Body
	case msg.Image != nil:
		normalized.Type = providers.MessageTypeImage
		normalized.Text = msg.Image.Caption
	case msg.Audio != nil:
		normalized.Type = providers.MessageTypeAudio
	case msg.Document != nil:
		normalized.Type = providers.MessageTypeDocument
		normalized.Text = msg.Document.Caption
	default:
		normalized.Type = providers.MessageTypeUnknown
	}

	return normalized
}

// ConnectionStatus consulta el número configurado contra la API
func (a *Adapter) ConnectionStatus(ctx context.Context) (providers.ConnectionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL, nil)
	if err != nil {
		return providers.ConnectionStatusUnknown, err
	}
	req.Header.Set("Authorization", "Bearer "+a.config.AccessToken)

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

	return providers.ConnectionStatusConnected, nil
}

// VerifyToken responde el reto de verificación de webhook de Meta. Devuelve
// el challenge a responder o error si el token no coincide.
func (a *Adapter) VerifyToken(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token != a.config.WebhookVerifyToken {
		return "", providers.ErrInvalidSignature().
			WithDetail("reason", "webhook verify token mismatch")
	}
	return challenge, nil
}

// verifySignature verifica la firma HMAC-SHA256 del webhook
func (a *Adapter) verifySignature(payload []byte, headers map[string]string) error {
	if a.config.AppSecret == "" {
		return nil
	}

	signature := headers["X-Hub-Signature-256"]
	if signature == "" {
		signature = headers["x-hub-signature-256"]
	}
	if signature == "" {
		return providers.ErrInvalidSignature().
			WithDetail("reason", "missing X-Hub-Signature-256 header")
	}

	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(a.config.AppSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return providers.ErrInvalidSignature()
	}

	return nil
}

func parseUnixTimestamp(raw string) time.Time {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(seconds, 0)
}
