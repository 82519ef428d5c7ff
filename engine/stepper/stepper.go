package stepper

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
)

// Stepper ejecuta exactamente un nodo por llamada. Muta la sesión en memoria
// (cursor, variables, historial) pero nunca la persiste ni envía mensajes:
// eso queda del lado del llamador, que decide cuándo guardar y qué enviar.
type Stepper struct {
	invoker   engine.IntegrationInvoker
	scheduler engine.DelayScheduler
}

// NewStepper crea el ejecutor de pasos. El scheduler puede ser nil: sin él
// todos los delays se esperan en línea.
func NewStepper(invoker engine.IntegrationInvoker, scheduler engine.DelayScheduler) *Stepper {
	return &Stepper{
		invoker:   invoker,
		scheduler: scheduler,
	}
}

var _ engine.Stepper = (*Stepper)(nil)

// Step ejecuta el nodo actual de la sesión. Un error de tipo interno o
// validación es fatal para la sesión: el llamador debe terminarla y disculparse
// con el contacto en vez de reintentar el mismo nodo para siempre.
func (s *Stepper) Step(ctx context.Context, index engine.NodeIndex, session *engine.Session, input *string) (*engine.StepResult, error) {
	if !session.IsActive {
		return nil, engine.ErrSessionInactive().
			WithDetail("session_id", session.ID.String())
	}

	node, ok := index[session.CurrentNodeID]
	if !ok {
		return nil, engine.ErrNodeNotFound().
			WithDetail("session_id", session.ID.String()).
			WithDetail("node_id", session.CurrentNodeID)
	}

	// Entrada recibida fuera de un nodo input no alimenta ninguna variable,
	// pero queda en el historial igual que cualquier otro mensaje del contacto
	if input != nil && node.Type != engine.NodeTypeInput {
		session.AppendHistory(engine.HistoryEntry{NodeID: node.ID, Input: input})
	}

	var result *engine.StepResult
	var err error

	switch node.Type {
	case engine.NodeTypeMessage:
		result, err = s.stepMessage(session, node)
	case engine.NodeTypeInput:
		result, err = s.stepInput(session, node, input)
	case engine.NodeTypeCondition:
		result, err = s.stepCondition(session, node)
	case engine.NodeTypeDelay:
		result, err = s.stepDelay(ctx, session, node)
	case engine.NodeTypeIntegration:
		result, err = s.stepIntegration(ctx, session, node)
	case engine.NodeTypeEnd:
		result, err = s.stepEnd(session, node)
	default:
		return nil, engine.ErrUnknownNodeType().
			WithDetail("node_id", node.ID).
			WithDetail("node_type", string(node.Type))
	}
	if err != nil {
		return nil, err
	}

	// El tipo del nodo donde quedó el cursor le dice al llamador si debe
	// seguir ejecutando o detenerse
	if !result.IsComplete {
		if next, ok := index[session.CurrentNodeID]; ok {
			result.NextNodeType = next.Type
		}
	}

	return result, nil
}

// stepMessage emite el texto interpolado y avanza
func (s *Stepper) stepMessage(session *engine.Session, node *engine.Node) (*engine.StepResult, error) {
	content, ok := node.Content.(engine.MessageContent)
	if !ok {
		return nil, badContent(node)
	}

	output := engine.Interpolate(content.Text, session.Variables)
	session.AppendHistory(engine.HistoryEntry{NodeID: node.ID, Output: &output})

	result := &engine.StepResult{Output: output}
	s.advance(session, node, result)
	return result, nil
}

// stepInput sin entrada emite el prompt y se queda esperando; con entrada
// guarda la variable y avanza en silencio
func (s *Stepper) stepInput(session *engine.Session, node *engine.Node, input *string) (*engine.StepResult, error) {
	content, ok := node.Content.(engine.InputContent)
	if !ok {
		return nil, badContent(node)
	}

	if input == nil {
		prompt := engine.Interpolate(content.Prompt, session.Variables)
		session.AppendHistory(engine.HistoryEntry{NodeID: node.ID, Output: &prompt})
		return &engine.StepResult{
			Output:       prompt,
			WaitForInput: true,
		}, nil
	}

	session.SetVariable(content.VariableName, *input)
	session.AppendHistory(engine.HistoryEntry{NodeID: node.ID, Input: input})

	result := &engine.StepResult{}
	s.advance(session, node, result)
	return result, nil
}

// stepCondition evalúa las aristas en orden de declaración; la primera que
// coincide gana. Una arista sin condición es el camino por defecto. Una
// expresión malformada cuenta como "no coincide", nunca como error fatal.
// Si ninguna arista coincide, la última declarada se sigue como respaldo
// aunque lleve condición.
func (s *Stepper) stepCondition(session *engine.Session, node *engine.Node) (*engine.StepResult, error) {
	if len(node.Next) == 0 {
		return nil, engine.ErrStepFailed().
			WithDetail("node_id", node.ID).
			WithDetail("reason", "condition node has no outgoing edges")
	}

	session.AppendHistory(engine.HistoryEntry{NodeID: node.ID})

	for _, edge := range node.Next {
		if edge.Condition == "" {
			return s.follow(session, node, edge.ID)
		}

		matched, err := engine.EvaluateCondition(edge.Condition, session.Variables)
		if err != nil {
			logx.Error("invalid edge condition on node %s: %v", node.ID, err)
			continue
		}
		if matched {
			return s.follow(session, node, edge.ID)
		}
	}

	return s.follow(session, node, node.Next[len(node.Next)-1].ID)
}

// stepDelay delays cortos se esperan en línea; los largos agendan una
// continuación y liberan al llamador
func (s *Stepper) stepDelay(ctx context.Context, session *engine.Session, node *engine.Node) (*engine.StepResult, error) {
	content, ok := node.Content.(engine.DelayContent)
	if !ok {
		return nil, badContent(node)
	}

	delay := time.Duration(content.Seconds) * time.Second
	session.AppendHistory(engine.HistoryEntry{NodeID: node.ID})

	if s.scheduler != nil && s.scheduler.ShouldUseAsync(delay) {
		resumeAt := time.Now().Add(delay)
		session.ResumeAt = &resumeAt
		result := &engine.StepResult{ResumeAt: &resumeAt}
		s.advance(session, node, result)
		return result, nil
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, errx.Wrap(ctx.Err(), "delay interrupted", errx.TypeInternal).
			WithDetail("node_id", node.ID)
	}

	result := &engine.StepResult{}
	s.advance(session, node, result)
	return result, nil
}

// stepIntegration llama al servicio externo y guarda el resultado como
// variable. Un fallo de la integración no mata la conversación: se registra y
// el flujo sigue con la variable de error disponible para las condiciones.
func (s *Stepper) stepIntegration(ctx context.Context, session *engine.Session, node *engine.Node) (*engine.StepResult, error) {
	content, ok := node.Content.(engine.IntegrationContent)
	if !ok {
		return nil, badContent(node)
	}

	value, err := s.invoker.Invoke(ctx, content, session.Variables)
	if err != nil {
		logx.Error("integration call failed on node %s: %v", node.ID, err)
		if content.ResultVariable != "" {
			session.SetVariable(content.ResultVariable, map[string]any{
				"error": err.Error(),
			})
		}
	} else if content.ResultVariable != "" {
		session.SetVariable(content.ResultVariable, value)
	}

	result := &engine.StepResult{}
	if content.StatusMessage != "" {
		result.Output = engine.Interpolate(content.StatusMessage, session.Variables)
	}

	entry := engine.HistoryEntry{NodeID: node.ID}
	if result.Output != "" {
		entry.Output = &result.Output
	}
	session.AppendHistory(entry)

	s.advance(session, node, result)
	return result, nil
}

// stepEnd emite el mensaje de despedida si lo hay y cierra la sesión
func (s *Stepper) stepEnd(session *engine.Session, node *engine.Node) (*engine.StepResult, error) {
	content, ok := node.Content.(engine.EndContent)
	if !ok {
		return nil, badContent(node)
	}

	result := &engine.StepResult{IsComplete: true}
	entry := engine.HistoryEntry{NodeID: node.ID}
	if content.Message != "" {
		result.Output = engine.Interpolate(content.Message, session.Variables)
		entry.Output = &result.Output
	}
	session.AppendHistory(entry)
	session.Complete()
	return result, nil
}

// advance mueve el cursor a la primera arista saliente; sin sucesores la
// sesión termina como si fuese un end implícito
func (s *Stepper) advance(session *engine.Session, node *engine.Node, result *engine.StepResult) {
	if node.IsTerminal() {
		session.Complete()
		result.IsComplete = true
		return
	}
	session.Advance(node.Next[0].ID)
}

// follow avanza por una arista concreta de un nodo condition
func (s *Stepper) follow(session *engine.Session, node *engine.Node, targetID string) (*engine.StepResult, error) {
	session.Advance(targetID)
	return &engine.StepResult{}, nil
}

func badContent(node *engine.Node) error {
	return engine.ErrStepFailed().
		WithDetail("node_id", node.ID).
		WithDetail("reason", fmt.Sprintf("node content does not match type %s", node.Type))
}
