package msgprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/sessmanager"
	"github.com/Abraxas-365/chatflow/engine/stepper"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test doubles
// ============================================================================

type memWorkflowRepo struct {
	workflows map[kernel.WorkflowID]*engine.Workflow
}

func newMemWorkflowRepo(workflows ...*engine.Workflow) *memWorkflowRepo {
	repo := &memWorkflowRepo{workflows: make(map[kernel.WorkflowID]*engine.Workflow)}
	for _, wf := range workflows {
		repo.workflows[wf.ID] = wf
	}
	return repo
}

func (r *memWorkflowRepo) Create(ctx context.Context, wf engine.Workflow) error {
	r.workflows[wf.ID] = &wf
	return nil
}

func (r *memWorkflowRepo) Update(ctx context.Context, wf engine.Workflow) error {
	r.workflows[wf.ID] = &wf
	return nil
}

func (r *memWorkflowRepo) FindByID(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	wf, ok := r.workflows[id]
	if !ok {
		return nil, engine.ErrWorkflowNotFound()
	}
	return wf, nil
}

func (r *memWorkflowRepo) Delete(ctx context.Context, id kernel.WorkflowID) error {
	delete(r.workflows, id)
	return nil
}

func (r *memWorkflowRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (r *memWorkflowRepo) FindPublic(ctx context.Context) ([]*engine.Workflow, error) {
	return nil, nil
}

func (r *memWorkflowRepo) FindByTag(ctx context.Context, tag string) ([]*engine.Workflow, error) {
	return nil, nil
}

func (r *memWorkflowRepo) List(ctx context.Context, req engine.WorkflowListRequest) (engine.WorkflowListResponse, error) {
	return engine.WorkflowListResponse{}, nil
}

var _ engine.WorkflowRepository = (*memWorkflowRepo)(nil)

// memSessionRepo repositorio en memoria con escritura condicionada por versión.
// conflictsLeft fuerza conflictos artificiales para probar los reintentos;
// onConflict permite simular al escritor concurrente que ganó la carrera
// mutando el estado guardado justo antes de reportar el conflicto.
type memSessionRepo struct {
	sessions      map[kernel.SessionID]*engine.Session
	conflictsLeft int
	onConflict    func(stored *engine.Session)
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[kernel.SessionID]*engine.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, session engine.Session) error {
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *memSessionRepo) Save(ctx context.Context, session *engine.Session) error {
	stored, ok := r.sessions[session.ID]
	if !ok {
		return engine.ErrSessionNotFound()
	}
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		if r.onConflict != nil {
			r.onConflict(stored)
		}
		return engine.ErrSessionConflict()
	}
	if stored.Version != session.Version {
		return engine.ErrSessionConflict()
	}
	session.Version++
	r.sessions[session.ID] = session.Clone()
	return nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id kernel.SessionID) (*engine.Session, error) {
	stored, ok := r.sessions[id]
	if !ok {
		return nil, engine.ErrSessionNotFound()
	}
	return stored.Clone(), nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id kernel.SessionID) error {
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) FindActiveByContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string) ([]*engine.Session, error) {
	var out []*engine.Session
	for _, s := range r.sessions {
		if s.IsActive && s.ProviderID == providerID && s.ContactAddress == contactAddress {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (r *memSessionRepo) FindDueForResume(ctx context.Context, now time.Time) ([]*engine.Session, error) {
	return nil, nil
}

func (r *memSessionRepo) List(ctx context.Context, req engine.SessionListRequest) (engine.SessionListResponse, error) {
	return engine.SessionListResponse{}, nil
}

func (r *memSessionRepo) CloseIdle(ctx context.Context, idleSince time.Time) (int, error) {
	return 0, nil
}

var _ engine.SessionRepository = (*memSessionRepo)(nil)

// recordingManager registra todo lo enviado hacia los contactos
type recordingManager struct {
	sent []string
}

func (m *recordingManager) Register(adapter providers.ProviderAdapter) {}

func (m *recordingManager) Get(providerID kernel.ProviderID) (providers.ProviderAdapter, error) {
	return nil, providers.ErrProviderNotFound()
}

func (m *recordingManager) SendText(ctx context.Context, providerID kernel.ProviderID, contactAddress string, text string) error {
	m.sent = append(m.sent, text)
	return nil
}

func (m *recordingManager) List() []providers.ProviderAdapter { return nil }

var _ providers.Manager = (*recordingManager)(nil)

// ============================================================================
// Fixture
// ============================================================================

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

// surveyWorkflow pide dos datos seguidos; útil para carreras donde el primer
// input consumido no debe cerrar la sesión
func surveyWorkflow() *engine.Workflow {
	return &engine.Workflow{
		ID:          "wf-survey",
		Name:        "survey",
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
				Next:    []engine.Edge{{ID: "ask-age"}},
			},
			{
				ID:      "ask-age",
				Type:    engine.NodeTypeInput,
				Content: engine.InputContent{Prompt: "¿Cuántos años tienes?", VariableName: "age"},
				Next:    []engine.Edge{{ID: "bye"}},
			},
			{
				ID:      "bye",
				Type:    engine.NodeTypeEnd,
				Content: engine.EndContent{Message: "Adiós {{name}} {{age}}"},
			},
		},
	}
}

type fixture struct {
	processor *MessageProcessor
	workflows *memWorkflowRepo
	sessions  *memSessionRepo
	sender    *recordingManager
}

func newFixture(defaultWorkflowID kernel.WorkflowID) *fixture {
	workflows := newMemWorkflowRepo(onboardingWorkflow())
	sessions := newMemSessionRepo()
	sender := &recordingManager{}
	manager := sessmanager.NewSessionManager(sessions, nil, 100, time.Hour)
	step := stepper.NewStepper(nil, nil)

	processor := NewMessageProcessor(workflows, manager, step, sender, nil, defaultWorkflowID, 3, 1)
	return &fixture{
		processor: processor,
		workflows: workflows,
		sessions:  sessions,
		sender:    sender,
	}
}

func inboundText(text string) providers.Message {
	return providers.Message{
		ID:             "msg-1",
		ProviderID:     "prov-1",
		ContactAddress: "51999999999",
		Type:           providers.MessageTypeText,
		Text:           text,
		Timestamp:      time.Now(),
	}
}

func (f *fixture) activeSession(t *testing.T) *engine.Session {
	t.Helper()
	sessions, err := f.sessions.FindActiveByContact(context.Background(), "prov-1", "51999999999")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions[0]
}

// findStored devuelve la única sesión del repositorio, activa o no
func findStored(t *testing.T, repo *memSessionRepo) *engine.Session {
	t.Helper()
	require.Len(t, repo.sessions, 1)
	for _, s := range repo.sessions {
		return s.Clone()
	}
	return nil
}

// ============================================================================
// Tests
// ============================================================================

func TestProcessInbound_DiscardsOwnEchoes(t *testing.T) {
	f := newFixture("wf-onboarding")

	msg := inboundText("hola")
	msg.FromSelf = true

	require.NoError(t, f.processor.ProcessInbound(context.Background(), msg))
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.sessions.sessions)
}

func TestProcessInbound_RejectsInvalidMessage(t *testing.T) {
	f := newFixture("wf-onboarding")

	msg := inboundText("hola")
	msg.ContactAddress = ""

	assert.Error(t, f.processor.ProcessInbound(context.Background(), msg))
}

func TestProcessInbound_NewSessionRunsFromStart(t *testing.T) {
	f := newFixture("wf-onboarding")

	require.NoError(t, f.processor.ProcessInbound(context.Background(), inboundText("hola")))

	// Bienvenida y prompt salen juntos; la sesión queda esperando la respuesta
	assert.Equal(t, []string{"¡Hola!", "¿Cómo te llamas?"}, f.sender.sent)

	session := f.activeSession(t)
	assert.Equal(t, "ask-name", session.CurrentNodeID)
	assert.Equal(t, "hola", session.Variables["initialMessage"])
}

func TestProcessInbound_ExistingSessionConsumesInput(t *testing.T) {
	f := newFixture("wf-onboarding")
	ctx := context.Background()

	require.NoError(t, f.processor.ProcessInbound(ctx, inboundText("hola")))
	f.sender.sent = nil

	require.NoError(t, f.processor.ProcessInbound(ctx, inboundText("Ana")))

	assert.Equal(t, []string{"Adiós Ana"}, f.sender.sent)

	// La sesión terminó: no queda ninguna activa para el contacto
	sessions, err := f.sessions.FindActiveByContact(ctx, "prov-1", "51999999999")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestProcessInbound_NoDefaultWorkflow(t *testing.T) {
	f := newFixture("")

	err := f.processor.ProcessInbound(context.Background(), inboundText("hola"))
	assert.Error(t, err)

	// El contacto recibe la disculpa, no silencio
	assert.Equal(t, []string{apologyText}, f.sender.sent)
}

func TestProcessInbound_ConflictRetriesWithoutDuplicateSends(t *testing.T) {
	f := newFixture("wf-onboarding")
	ctx := context.Background()

	require.NoError(t, f.processor.ProcessInbound(ctx, inboundText("hola")))
	f.sender.sent = nil
	f.sessions.conflictsLeft = 1

	require.NoError(t, f.processor.ProcessInbound(ctx, inboundText("Ana")))

	// El primer guardado choca, se relee el estado fresco y se vuelve a
	// ejecutar; el contacto recibe cada mensaje exactamente una vez
	assert.Equal(t, []string{"Adiós Ana"}, f.sender.sent)
}

func TestProcessInbound_ConflictRetryKeepsConcurrentInput(t *testing.T) {
	// Dos mensajes en carrera sobre la misma sesión: el escritor concurrente
	// consume "Ana" y guarda primero; nuestro guardado de "Bea" choca, relee
	// el estado fresco y aplica "Bea" sobre el avance ajeno. Ninguna de las
	// dos entradas se pierde ni se duplica.
	workflows := newMemWorkflowRepo(surveyWorkflow())
	sessions := newMemSessionRepo()
	sender := &recordingManager{}
	manager := sessmanager.NewSessionManager(sessions, nil, 100, time.Hour)
	processor := NewMessageProcessor(workflows, manager, stepper.NewStepper(nil, nil), sender, nil, "wf-survey", 3, 1)
	ctx := context.Background()

	require.NoError(t, processor.ProcessInbound(ctx, inboundText("hola")))
	sender.sent = nil

	sessions.conflictsLeft = 1
	sessions.onConflict = func(stored *engine.Session) {
		name := "Ana"
		prompt := "¿Cuántos años tienes?"
		stored.Variables["name"] = name
		stored.History = append(stored.History,
			engine.HistoryEntry{NodeID: "ask-name", Input: &name, Timestamp: time.Now()},
			engine.HistoryEntry{NodeID: "ask-age", Output: &prompt, Timestamp: time.Now()},
		)
		stored.LastNodeID = "ask-name"
		stored.CurrentNodeID = "ask-age"
		stored.Version++
	}

	require.NoError(t, processor.ProcessInbound(ctx, inboundText("Bea")))

	// La respuesta final ve las variables de ambos escritores
	assert.Equal(t, []string{"Adiós Ana Bea"}, sender.sent)

	stored := findStored(t, sessions)
	var inputs []string
	for _, entry := range stored.History {
		if entry.Input != nil {
			inputs = append(inputs, *entry.Input)
		}
	}
	assert.Equal(t, []string{"Ana", "Bea"}, inputs)
	assert.False(t, stored.IsActive)
}

func TestProcessInbound_ConflictRetriesExhausted(t *testing.T) {
	f := newFixture("wf-onboarding")
	ctx := context.Background()

	require.NoError(t, f.processor.ProcessInbound(ctx, inboundText("hola")))
	f.sender.sent = nil
	f.sessions.conflictsLeft = 10

	err := f.processor.ProcessInbound(ctx, inboundText("Ana"))
	assert.Error(t, err)
	assert.Empty(t, f.sender.sent)
}

func TestProcessInbound_MissingWorkflowTerminatesWithApology(t *testing.T) {
	f := newFixture("wf-onboarding")
	ctx := context.Background()

	// Sesión activa apuntando a un workflow que ya no existe
	session := engine.Session{
		ID: "sess-1", WorkflowID: "wf-borrado", ProviderID: "prov-1",
		ContactAddress: "51999999999", IsActive: true, Version: 1,
		CurrentNodeID: "welcome", Variables: map[string]any{},
	}
	require.NoError(t, f.sessions.Create(ctx, session))

	err := f.processor.ProcessInbound(ctx, inboundText("hola"))
	require.Error(t, err)
	assert.Equal(t, []string{apologyText}, f.sender.sent)

	stored, err := f.sessions.FindByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestHandleContinuation_ResumesSession(t *testing.T) {
	f := newFixture("wf-onboarding")
	ctx := context.Background()

	resumeAt := time.Now().Add(-time.Minute)
	session := engine.Session{
		ID: "sess-1", WorkflowID: "wf-onboarding", ProviderID: "prov-1",
		ContactAddress: "51999999999", IsActive: true, Version: 1,
		CurrentNodeID: "bye", LastNodeID: "ask-name", ResumeAt: &resumeAt,
		Variables: map[string]any{"name": "Ana"},
	}
	require.NoError(t, f.sessions.Create(ctx, session))

	cont := engine.Continuation{
		ID:        "cont-1",
		SessionID: "sess-1", WorkflowID: "wf-onboarding",
		NodeID: "ask-name", ScheduledFor: resumeAt,
	}
	require.NoError(t, f.processor.HandleContinuation(ctx, cont))

	assert.Equal(t, []string{"Adiós Ana"}, f.sender.sent)

	stored, err := f.sessions.FindByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Nil(t, stored.ResumeAt)
}

func TestHandleContinuation_DropsInactiveSession(t *testing.T) {
	f := newFixture("wf-onboarding")
	ctx := context.Background()

	session := engine.Session{
		ID: "sess-1", WorkflowID: "wf-onboarding", ProviderID: "prov-1",
		ContactAddress: "51999999999", IsActive: false, Version: 1,
	}
	require.NoError(t, f.sessions.Create(ctx, session))

	cont := engine.Continuation{ID: "cont-1", SessionID: "sess-1"}
	require.NoError(t, f.processor.HandleContinuation(ctx, cont))
	assert.Empty(t, f.sender.sent)
}

func TestHandleContinuation_UnknownSession(t *testing.T) {
	f := newFixture("wf-onboarding")

	cont := engine.Continuation{ID: "cont-1", SessionID: "no-existe"}
	assert.Error(t, f.processor.HandleContinuation(context.Background(), cont))
}
