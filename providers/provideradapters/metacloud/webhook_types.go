package metacloud

// Tipos del webhook de la Cloud API de Meta. Solo se modela lo que el
// adapter consume; el resto del payload se ignora al deserializar.

type webhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         webhookMetadata  `json:"metadata"`
	Messages         []webhookMessage `json:"messages"`
	Statuses         []webhookStatus  `json:"statuses"`
}

type webhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type webhookMessage struct {
	ID        string           `json:"id"`
	From      string           `json:"from"`
	Timestamp string           `json:"timestamp"`
	Type      string           `json:"type"`
	Text      *webhookText     `json:"text,omitempty"`
	Image     *webhookMedia    `json:"image,omitempty"`
	Audio     *webhookMedia    `json:"audio,omitempty"`
	Document  *webhookDocument `json:"document,omitempty"`
}

type webhookText struct {
	Body string `json:"body"`
}

type webhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

type webhookDocument struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Caption  string `json:"caption,omitempty"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
