package engine

import (
	"time"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// ============================================================================
// Workflow Entity
// ============================================================================

// Workflow representa un flujo conversacional versionado
type Workflow struct {
	ID          kernel.WorkflowID `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description,omitempty"`
	Version     int               `db:"version" json:"version"`
	IsPublic    bool              `db:"is_public" json:"isPublic"`
	Tags        []string          `db:"tags" json:"tags"`
	StartNodeID string            `db:"start_node_id" json:"startNodeId"`
	Nodes       []Node            `db:"nodes" json:"nodes"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updatedAt"`
}

// NodeType tipo de nodo
type NodeType string

const (
	NodeTypeMessage     NodeType = "message"
	NodeTypeInput       NodeType = "input"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeDelay       NodeType = "delay"
	NodeTypeIntegration NodeType = "integration"
	NodeTypeEnd         NodeType = "end"
)

// Node paso de un workflow. Content es una unión cerrada según Type.
type Node struct {
	ID      string      `json:"id"`
	Type    NodeType    `json:"type"`
	Content NodeContent `json:"content,omitempty"`
	Next    []Edge      `json:"next,omitempty"`
}

// Edge arista saliente hacia otro nodo. Condition solo aplica en nodos condition.
type Edge struct {
	ID        string `json:"id"`
	Condition string `json:"condition,omitempty"`
}

// IsTerminal indica si el nodo no tiene sucesores
func (n *Node) IsTerminal() bool {
	return len(n.Next) == 0
}

// NodeIndex índice id→nodo construido una vez por carga de workflow
type NodeIndex map[string]*Node

// BuildIndex construye el índice de adyacencia del workflow
func (w *Workflow) BuildIndex() NodeIndex {
	idx := make(NodeIndex, len(w.Nodes))
	for i := range w.Nodes {
		idx[w.Nodes[i].ID] = &w.Nodes[i]
	}
	return idx
}

// GetNodeByID obtiene un nodo por ID (búsqueda lineal; usar NodeIndex en rutas calientes)
func (w *Workflow) GetNodeByID(nodeID string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == nodeID {
			return &w.Nodes[i]
		}
	}
	return nil
}

// HasTag verifica si el workflow tiene un tag
func (w *Workflow) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// BumpVersion incrementa la versión (monótona, en cada update)
func (w *Workflow) BumpVersion() {
	w.Version++
	w.UpdatedAt = time.Now()
}

// ============================================================================
// Session Entity
// ============================================================================

// Session estado de ejecución persistido de una conversación
type Session struct {
	ID             kernel.SessionID  `json:"sessionId"`
	WorkflowID     kernel.WorkflowID `json:"workflowId"`
	ProviderID     kernel.ProviderID `json:"providerId"`
	ContactAddress string            `json:"contactAddress"`
	Variables      map[string]any    `json:"variables"`
	History        []HistoryEntry    `json:"history"`
	CurrentNodeID  string            `json:"currentNodeId,omitempty"`
	LastNodeID     string            `json:"lastNodeId,omitempty"`
	IsActive       bool              `json:"isActive"`
	ResumeAt       *time.Time        `json:"resumeAt,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// HistoryEntry registro append-only de un paso ejecutado
type HistoryEntry struct {
	NodeID    string    `json:"nodeId"`
	Timestamp time.Time `json:"timestamp"`
	Input     *string   `json:"input,omitempty"`
	Output    *string   `json:"output,omitempty"`
}

// IsValid verifica si la sesión es válida
func (s *Session) IsValid() bool {
	return !s.ID.IsEmpty() && !s.WorkflowID.IsEmpty() && s.ContactAddress != ""
}

// SetVariable establece una variable de sesión
func (s *Session) SetVariable(key string, value any) {
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}
	s.Variables[key] = value
	s.Touch()
}

// GetVariable obtiene una variable de sesión
func (s *Session) GetVariable(key string) (any, bool) {
	if s.Variables == nil {
		return nil, false
	}
	val, ok := s.Variables[key]
	return val, ok
}

// AppendHistory añade una entrada al historial
func (s *Session) AppendHistory(entry HistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.History = append(s.History, entry)
	s.Touch()
}

// Advance mueve el cursor de ejecución al siguiente nodo
func (s *Session) Advance(nextNodeID string) {
	s.LastNodeID = s.CurrentNodeID
	s.CurrentNodeID = nextNodeID
	s.Touch()
}

// Complete marca la sesión como terminada; currentNodeId se limpia
func (s *Session) Complete() {
	s.LastNodeID = s.CurrentNodeID
	s.CurrentNodeID = ""
	s.IsActive = false
	s.ResumeAt = nil
	s.Touch()
}

// Touch actualiza la marca de última modificación
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// Clone copia profunda de la sesión (variables e historial incluidos)
func (s *Session) Clone() *Session {
	out := *s
	if s.Variables != nil {
		out.Variables = make(map[string]any, len(s.Variables))
		for k, v := range s.Variables {
			out.Variables[k] = v
		}
	}
	if s.History != nil {
		out.History = make([]HistoryEntry, len(s.History))
		copy(out.History, s.History)
	}
	if s.ResumeAt != nil {
		t := *s.ResumeAt
		out.ResumeAt = &t
	}
	return &out
}

// ============================================================================
// Step Result
// ============================================================================

// StepResult resultado de ejecutar exactamente un nodo
type StepResult struct {
	Output       string     `json:"output,omitempty"`
	IsComplete   bool       `json:"isComplete"`
	WaitForInput bool       `json:"waitForInput"`
	NextNodeType NodeType   `json:"nextNodeType,omitempty"`
	ResumeAt     *time.Time `json:"resumeAt,omitempty"`
}

// HasOutput indica si el paso produjo salida para el contacto
func (r *StepResult) HasOutput() bool {
	return r.Output != ""
}

// ============================================================================
// Delayed Continuation
// ============================================================================

// Continuation reanudación agendada de una sesión tras un nodo delay
type Continuation struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	WorkflowID   string    `json:"workflow_id"`
	NodeID       string    `json:"node_id"` // nodo delay que originó la espera
	ScheduledFor time.Time `json:"scheduled_for"`
	CreatedAt    time.Time `json:"created_at"`
}
