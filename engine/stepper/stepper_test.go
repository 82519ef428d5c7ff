package stepper

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock integration invoker for testing
type mockInvoker struct {
	result any
	err    error
	calls  int
}

func (m *mockInvoker) Invoke(ctx context.Context, content engine.IntegrationContent, variables map[string]any) (any, error) {
	m.calls++
	return m.result, m.err
}

// Mock delay scheduler for testing
type mockScheduler struct {
	threshold time.Duration
	scheduled []engine.Continuation
}

func (m *mockScheduler) Schedule(ctx context.Context, cont engine.Continuation) error {
	m.scheduled = append(m.scheduled, cont)
	return nil
}

func (m *mockScheduler) Cancel(ctx context.Context, sessionID kernel.SessionID) error {
	return nil
}

func (m *mockScheduler) ShouldUseAsync(delay time.Duration) bool {
	return delay > m.threshold
}

func (m *mockScheduler) GetPendingCount(ctx context.Context) (int64, error) {
	return int64(len(m.scheduled)), nil
}

func onboardingWorkflow() *engine.Workflow {
	return &engine.Workflow{
		ID:          "wf-onboarding",
		Name:        "onboarding",
		StartNodeID: "welcome",
		Nodes: []engine.Node{
			{
				ID:      "welcome",
				Type:    engine.NodeTypeMessage,
				Content: engine.MessageContent{Text: "¡Hola!"},
				Next:    []engine.Edge{{ID: "ask-name"}},
			},
			{
				ID:      "ask-name",
				Type:    engine.NodeTypeInput,
				Content: engine.InputContent{Prompt: "¿Cómo te llamas?", VariableName: "name"},
				Next:    []engine.Edge{{ID: "bye"}},
			},
			{
				ID:      "bye",
				Type:    engine.NodeTypeEnd,
				Content: engine.EndContent{Message: "Adiós {{name}}"},
			},
		},
	}
}

func newSession(startNodeID string) *engine.Session {
	return &engine.Session{
		ID:             "sess-1",
		WorkflowID:     "wf-onboarding",
		ProviderID:     "prov-1",
		ContactAddress: "51999999999",
		Variables:      map[string]any{},
		IsActive:       true,
		Version:        1,
		CurrentNodeID:  startNodeID,
	}
}

func TestStep_FullConversation(t *testing.T) {
	s := NewStepper(&mockInvoker{}, nil)
	wf := onboardingWorkflow()
	index := wf.BuildIndex()
	session := newSession("welcome")
	ctx := context.Background()

	// Mensaje de bienvenida
	result, err := s.Step(ctx, index, session, nil)
	require.NoError(t, err)
	assert.Equal(t, "¡Hola!", result.Output)
	assert.False(t, result.IsComplete)
	assert.Equal(t, "ask-name", session.CurrentNodeID)
	assert.Equal(t, engine.NodeTypeInput, result.NextNodeType)

	// Nodo input sin entrada: emite prompt y espera
	result, err = s.Step(ctx, index, session, nil)
	require.NoError(t, err)
	assert.Equal(t, "¿Cómo te llamas?", result.Output)
	assert.True(t, result.WaitForInput)
	assert.Equal(t, "ask-name", session.CurrentNodeID)

	// Llega la respuesta: guarda la variable y avanza en silencio
	input := "Ana"
	result, err = s.Step(ctx, index, session, &input)
	require.NoError(t, err)
	assert.Empty(t, result.Output)
	assert.False(t, result.WaitForInput)
	assert.Equal(t, "Ana", session.Variables["name"])
	assert.Equal(t, "bye", session.CurrentNodeID)

	// Nodo end: despedida interpolada y sesión completa
	result, err = s.Step(ctx, index, session, nil)
	require.NoError(t, err)
	assert.Equal(t, "Adiós Ana", result.Output)
	assert.True(t, result.IsComplete)
	assert.False(t, session.IsActive)
	assert.Empty(t, session.CurrentNodeID)
}

func TestStep_HistoryRecordsInputsAndOutputs(t *testing.T) {
	s := NewStepper(&mockInvoker{}, nil)
	wf := onboardingWorkflow()
	index := wf.BuildIndex()
	session := newSession("ask-name")
	ctx := context.Background()

	_, err := s.Step(ctx, index, session, nil)
	require.NoError(t, err)

	input := "Ana"
	_, err = s.Step(ctx, index, session, &input)
	require.NoError(t, err)

	require.Len(t, session.History, 2)
	require.NotNil(t, session.History[0].Output)
	assert.Equal(t, "¿Cómo te llamas?", *session.History[0].Output)
	require.NotNil(t, session.History[1].Input)
	assert.Equal(t, "Ana", *session.History[1].Input)
}

func TestStep_InputAtNonInputNodeGoesToHistory(t *testing.T) {
	s := NewStepper(&mockInvoker{}, nil)
	wf := onboardingWorkflow()
	index := wf.BuildIndex()
	session := newSession("welcome")

	// El texto no alimenta ninguna variable pero sí queda registrado
	input := "hola"
	result, err := s.Step(context.Background(), index, session, &input)
	require.NoError(t, err)
	assert.Equal(t, "¡Hola!", result.Output)

	require.NotEmpty(t, session.History)
	require.NotNil(t, session.History[0].Input)
	assert.Equal(t, "hola", *session.History[0].Input)
	assert.Equal(t, "welcome", session.History[0].NodeID)
}

func TestStep_IsDeterministicOnClonedSession(t *testing.T) {
	s := NewStepper(&mockInvoker{}, nil)
	wf := onboardingWorkflow()
	index := wf.BuildIndex()
	ctx := context.Background()

	base := newSession("welcome")
	base.Variables["name"] = "Ana"

	first := base.Clone()
	second := base.Clone()

	r1, err := s.Step(ctx, index, first, nil)
	require.NoError(t, err)
	r2, err := s.Step(ctx, index, second, nil)
	require.NoError(t, err)

	assert.Equal(t, r1.Output, r2.Output)
	assert.Equal(t, first.CurrentNodeID, second.CurrentNodeID)
	assert.Equal(t, first.Variables, second.Variables)
}

func TestStep_ConditionFollowsFirstMatchingEdge(t *testing.T) {
	wf := &engine.Workflow{
		ID:          "wf-cond",
		Name:        "cond",
		StartNodeID: "check",
		Nodes: []engine.Node{
			{ID: "check", Type: engine.NodeTypeCondition, Content: engine.ConditionContent{}, Next: []engine.Edge{
				{ID: "adult", Condition: "age >= 18"},
				{ID: "minor"},
			}},
			{ID: "adult", Type: engine.NodeTypeEnd, Content: engine.EndContent{Message: "Pasa"}},
			{ID: "minor", Type: engine.NodeTypeEnd, Content: engine.EndContent{Message: "No pasa"}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, nil)
	ctx := context.Background()

	session := newSession("check")
	session.Variables["age"] = "16"

	result, err := s.Step(ctx, index, session, nil)
	require.NoError(t, err)
	assert.Equal(t, "minor", session.CurrentNodeID)
	assert.False(t, result.IsComplete)

	session = newSession("check")
	session.Variables["age"] = "21"

	_, err = s.Step(ctx, index, session, nil)
	require.NoError(t, err)
	assert.Equal(t, "adult", session.CurrentNodeID)
}

func TestStep_ConditionFallsBackToLastEdge(t *testing.T) {
	// Todas las aristas llevan condición y ninguna coincide: se sigue la
	// última declarada como respaldo
	wf := &engine.Workflow{
		ID:          "wf-cond",
		Name:        "cond",
		StartNodeID: "check",
		Nodes: []engine.Node{
			{ID: "check", Type: engine.NodeTypeCondition, Content: engine.ConditionContent{}, Next: []engine.Edge{
				{ID: "adult", Condition: "age >= 18"},
				{ID: "teen", Condition: "age >= 13"},
			}},
			{ID: "adult", Type: engine.NodeTypeEnd, Content: engine.EndContent{Message: "Pasa"}},
			{ID: "teen", Type: engine.NodeTypeEnd, Content: engine.EndContent{Message: "Casi"}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, nil)

	session := newSession("check")
	session.Variables["age"] = "8"

	_, err := s.Step(context.Background(), index, session, nil)
	require.NoError(t, err)
	assert.Equal(t, "teen", session.CurrentNodeID)
}

func TestStep_ConditionWithoutEdgesIsFatal(t *testing.T) {
	wf := &engine.Workflow{
		ID:          "wf-cond",
		Name:        "cond",
		StartNodeID: "check",
		Nodes: []engine.Node{
			{ID: "check", Type: engine.NodeTypeCondition, Content: engine.ConditionContent{}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, nil)

	session := newSession("check")
	_, err := s.Step(context.Background(), index, session, nil)
	assert.Error(t, err)
}

func TestStep_LongDelayScheduledAsync(t *testing.T) {
	scheduler := &mockScheduler{threshold: 30 * time.Second}
	wf := &engine.Workflow{
		ID:          "wf-delay",
		Name:        "delay",
		StartNodeID: "wait",
		Nodes: []engine.Node{
			{ID: "wait", Type: engine.NodeTypeDelay, Content: engine.DelayContent{Seconds: 3600}, Next: []engine.Edge{{ID: "after"}}},
			{ID: "after", Type: engine.NodeTypeEnd, Content: engine.EndContent{Message: "listo"}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, scheduler)

	session := newSession("wait")
	result, err := s.Step(context.Background(), index, session, nil)
	require.NoError(t, err)

	require.NotNil(t, result.ResumeAt)
	assert.True(t, result.ResumeAt.After(time.Now().Add(59*time.Minute)))
	assert.Equal(t, "after", session.CurrentNodeID)
	require.NotNil(t, session.ResumeAt)
}

func TestStep_ShortDelayRunsInline(t *testing.T) {
	scheduler := &mockScheduler{threshold: 30 * time.Second}
	wf := &engine.Workflow{
		ID:          "wf-delay",
		Name:        "delay",
		StartNodeID: "wait",
		Nodes: []engine.Node{
			{ID: "wait", Type: engine.NodeTypeDelay, Content: engine.DelayContent{Seconds: 0}, Next: []engine.Edge{{ID: "after"}}},
			{ID: "after", Type: engine.NodeTypeEnd, Content: engine.EndContent{Message: "listo"}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, scheduler)

	session := newSession("wait")
	result, err := s.Step(context.Background(), index, session, nil)
	require.NoError(t, err)

	assert.Nil(t, result.ResumeAt)
	assert.Equal(t, "after", session.CurrentNodeID)
	assert.Empty(t, scheduler.scheduled)
}

func TestStep_IntegrationStoresResultVariable(t *testing.T) {
	invoker := &mockInvoker{result: map[string]any{"status": "ok"}}
	wf := &engine.Workflow{
		ID:          "wf-int",
		Name:        "integration",
		StartNodeID: "call",
		Nodes: []engine.Node{
			{ID: "call", Type: engine.NodeTypeIntegration, Content: engine.IntegrationContent{
				URL:            "https://api.example.com/orders",
				ResultVariable: "order",
				StatusMessage:  "Consultando tu pedido...",
			}, Next: []engine.Edge{{ID: "done"}}},
			{ID: "done", Type: engine.NodeTypeEnd, Content: engine.EndContent{}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(invoker, nil)

	session := newSession("call")
	result, err := s.Step(context.Background(), index, session, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, invoker.calls)
	assert.Equal(t, "Consultando tu pedido...", result.Output)
	assert.Equal(t, map[string]any{"status": "ok"}, session.Variables["order"])
}

func TestStep_IntegrationFailureDoesNotKillSession(t *testing.T) {
	invoker := &mockInvoker{err: assert.AnError}
	wf := &engine.Workflow{
		ID:          "wf-int",
		Name:        "integration",
		StartNodeID: "call",
		Nodes: []engine.Node{
			{ID: "call", Type: engine.NodeTypeIntegration, Content: engine.IntegrationContent{
				URL:            "https://api.example.com/orders",
				ResultVariable: "order",
			}, Next: []engine.Edge{{ID: "done"}}},
			{ID: "done", Type: engine.NodeTypeEnd, Content: engine.EndContent{}},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(invoker, nil)

	session := newSession("call")
	_, err := s.Step(context.Background(), index, session, nil)
	require.NoError(t, err)

	assert.Equal(t, "done", session.CurrentNodeID)
	stored, ok := session.Variables["order"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, stored["error"])
}

func TestStep_UnknownNodeTypeIsFatal(t *testing.T) {
	wf := &engine.Workflow{
		ID:          "wf-bad",
		Name:        "bad",
		StartNodeID: "x",
		Nodes: []engine.Node{
			{ID: "x", Type: "teleport"},
		},
	}
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, nil)

	session := newSession("x")
	_, err := s.Step(context.Background(), index, session, nil)
	assert.Error(t, err)
}

func TestStep_MissingCurrentNodeIsFatal(t *testing.T) {
	wf := onboardingWorkflow()
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, nil)

	session := newSession("no-existe")
	_, err := s.Step(context.Background(), index, session, nil)
	assert.Error(t, err)
}

func TestStep_InactiveSessionRejected(t *testing.T) {
	wf := onboardingWorkflow()
	index := wf.BuildIndex()
	s := NewStepper(&mockInvoker{}, nil)

	session := newSession("welcome")
	session.IsActive = false

	_, err := s.Step(context.Background(), index, session, nil)
	assert.Error(t, err)
}
