package wagateway

// Tipos del webhook del gateway. Solo se modela lo que el adapter consume.

type webhookEvent struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     webhookData `json:"data"`
}

type webhookData struct {
	Key              webhookKey     `json:"key"`
	PushName         string         `json:"pushName"`
	Message          webhookMessage `json:"message"`
	MessageTimestamp int64          `json:"messageTimestamp"`
}

type webhookKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type webhookMessage struct {
	Conversation        string        `json:"conversation,omitempty"`
	ExtendedTextMessage *extendedText `json:"extendedTextMessage,omitempty"`
	ImageMessage        *imageMessage `json:"imageMessage,omitempty"`
	AudioMessage        *audioMessage `json:"audioMessage,omitempty"`
}

type extendedText struct {
	Text string `json:"text"`
}

type imageMessage struct {
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type audioMessage struct {
	URL string `json:"url,omitempty"`
}

type connectionStateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}
