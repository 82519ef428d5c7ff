package engine

import (
	"encoding/json"
)

// ============================================================================
// Node Content - unión cerrada por tipo de nodo
// ============================================================================

// NodeContent payload tipado de un nodo; una forma concreta por NodeType
type NodeContent interface {
	nodeContent()
}

// MessageContent contenido de un nodo message
type MessageContent struct {
	Text string `json:"text"`
}

// InputContent contenido de un nodo input
type InputContent struct {
	Prompt       string `json:"prompt"`
	VariableName string `json:"variableName"`
}

// ConditionContent contenido de un nodo condition; las condiciones viven en las aristas
type ConditionContent struct{}

// DelayContent contenido de un nodo delay
type DelayContent struct {
	Seconds int `json:"seconds"`
}

// IntegrationContent contenido de un nodo integration
type IntegrationContent struct {
	URL            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	ResultVariable string            `json:"resultVariable,omitempty"`
	StatusMessage  string            `json:"statusMessage,omitempty"`
}

// EndContent contenido de un nodo end
type EndContent struct {
	Message string `json:"message,omitempty"`
}

func (MessageContent) nodeContent()     {}
func (InputContent) nodeContent()       {}
func (ConditionContent) nodeContent()   {}
func (DelayContent) nodeContent()       {}
func (IntegrationContent) nodeContent() {}
func (EndContent) nodeContent()         {}

// ============================================================================
// JSON (de)serialización del nodo
// ============================================================================

type nodeJSON struct {
	ID      string          `json:"id"`
	Type    NodeType        `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
	Next    []Edge          `json:"next,omitempty"`
}

// UnmarshalJSON decodifica el payload según el tipo declarado. Tipos
// desconocidos dejan Content en nil; la validación de autoría los rechaza y
// el stepper los trata como fatales.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Next = raw.Next
	n.Content = nil

	content, err := unmarshalContent(raw.Type, raw.Content)
	if err != nil {
		return err
	}
	n.Content = content

	return nil
}

// MarshalJSON serializa el nodo con su payload concreto
func (n Node) MarshalJSON() ([]byte, error) {
	var content json.RawMessage
	if n.Content != nil {
		data, err := json.Marshal(n.Content)
		if err != nil {
			return nil, err
		}
		content = data
	}

	return json.Marshal(nodeJSON{
		ID:      n.ID,
		Type:    n.Type,
		Content: content,
		Next:    n.Next,
	})
}

func unmarshalContent(nodeType NodeType, raw json.RawMessage) (NodeContent, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch nodeType {
	case NodeTypeMessage:
		var c MessageContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case NodeTypeInput:
		var c InputContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case NodeTypeCondition:
		var c ConditionContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case NodeTypeDelay:
		var c DelayContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case NodeTypeIntegration:
		var c IntegrationContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	case NodeTypeEnd:
		var c EndContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, nil
	}
}
