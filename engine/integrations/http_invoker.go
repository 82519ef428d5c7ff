package integrations

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

	"github.com/Abraxas-365/chatflow/engine"
)

const maxResponseBytes = 1 << 20 // 1MB

// HTTPInvoker ejecuta las llamadas de los nodos integration
type HTTPInvoker struct {
	httpClient *http.Client
}

var _ engine.IntegrationInvoker = (*HTTPInvoker)(nil)

func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPInvoker{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Invoke hace la llamada HTTP del nodo. URL, headers y body admiten
// placeholders {{variable}} que se interpolan antes de enviar. Devuelve el
// body parseado como JSON cuando se puede, o el texto crudo si no.
func (i *HTTPInvoker) Invoke(ctx context.Context, content engine.IntegrationContent, variables map[string]any) (any, error) {
	method := strings.ToUpper(content.Method)
	if method == "" {
		method = http.MethodGet
	}

	url := engine.Interpolate(content.URL, variables)
	log.Printf("🌐 Integration request: %s %s", method, url)

	var bodyReader io.Reader
	if content.Body != "" {
		bodyReader = bytes.NewBufferString(engine.Interpolate(content.Body, variables))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, engine.ErrIntegrationFailed().
			WithDetail("url", url).
			WithDetail("reason", fmt.Sprintf("failed to create request: %v", err))
	}

	for key, value := range content.Headers {
		req.Header.Set(key, engine.Interpolate(value, variables))
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, engine.ErrIntegrationFailed().
			WithDetail("url", url).
			WithDetail("reason", fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, engine.ErrIntegrationFailed().
			WithDetail("url", url).
			WithDetail("reason", fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("   ❌ Integration failed: HTTP %d", resp.StatusCode)
		return nil, engine.ErrIntegrationFailed().
			WithDetail("url", url).
			WithDetail("status_code", resp.StatusCode).
			WithDetail("body", string(bodyBytes))
	}

	var jsonBody any
	if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
		log.Printf("   ✅ Integration response: %d (JSON parsed)", resp.StatusCode)
		return jsonBody, nil
	}

	log.Printf("   ✅ Integration response: %d (text)", resp.StatusCode)
	return string(bodyBytes), nil
}
