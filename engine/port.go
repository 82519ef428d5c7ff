package engine

import (
	"context"
	"time"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
)

// ============================================================================
// Repository Interfaces
// ============================================================================

// WorkflowRepository persistencia de workflows
type WorkflowRepository interface {
	// CRUD básico
	Create(ctx context.Context, wf Workflow) error
	Update(ctx context.Context, wf Workflow) error
	FindByID(ctx context.Context, id kernel.WorkflowID) (*Workflow, error)
	Delete(ctx context.Context, id kernel.WorkflowID) error
	ExistsByName(ctx context.Context, name string) (bool, error)

	// Búsquedas
	FindPublic(ctx context.Context) ([]*Workflow, error)
	FindByTag(ctx context.Context, tag string) ([]*Workflow, error)

	// List con paginación
	List(ctx context.Context, req WorkflowListRequest) (WorkflowListResponse, error)
}

// SessionRepository persistencia de sesiones. Save aplica escritura
// condicionada por versión: si la fila cambió desde la lectura devuelve
// un error de conflicto y el llamador relee y reintenta.
type SessionRepository interface {
	// CRUD básico
	Create(ctx context.Context, session Session) error
	Save(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, id kernel.SessionID) (*Session, error)
	Delete(ctx context.Context, id kernel.SessionID) error

	// Búsquedas
	FindActiveByContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string) ([]*Session, error)
	FindDueForResume(ctx context.Context, now time.Time) ([]*Session, error)

	// List con paginación
	List(ctx context.Context, req SessionListRequest) (SessionListResponse, error)

	// Mantenimiento
	CloseIdle(ctx context.Context, idleSince time.Time) (int, error)
}

// ============================================================================
// Execution Interfaces
// ============================================================================

// Stepper ejecuta exactamente un nodo del workflow sobre la sesión
type Stepper interface {
	Step(ctx context.Context, index NodeIndex, session *Session, input *string) (*StepResult, error)
}

// IntegrationInvoker ejecuta la llamada HTTP de un nodo integration
type IntegrationInvoker interface {
	Invoke(ctx context.Context, content IntegrationContent, variables map[string]any) (any, error)
}

// DelayScheduler agenda reanudaciones para nodos delay largos
type DelayScheduler interface {
	Schedule(ctx context.Context, cont Continuation) error
	Cancel(ctx context.Context, sessionID kernel.SessionID) error
	ShouldUseAsync(delay time.Duration) bool
	GetPendingCount(ctx context.Context) (int64, error)
}

// ContinuationHandler recibe las continuaciones cuando vence su hora
type ContinuationHandler interface {
	HandleContinuation(ctx context.Context, cont Continuation) error
}

// ============================================================================
// Manager Interfaces
// ============================================================================

// SessionManager manejo de sesiones con lógica de negocio
type SessionManager interface {
	// Obtener o crear sesión para un contacto
	GetOrCreateForContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string, workflowID kernel.WorkflowID) (*Session, bool, error)

	// Sesión activa más reciente del contacto, nil si no hay
	FindActiveForContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string) (*Session, error)

	// Persistir cambios (escritura condicionada por versión)
	Save(ctx context.Context, session *Session) error

	// Obtener sesión
	Get(ctx context.Context, sessionID kernel.SessionID) (*Session, error)

	// Cerrar sesión manualmente; idempotente
	Abort(ctx context.Context, sessionID kernel.SessionID) error

	// Cerrar sesiones sin actividad reciente
	CloseIdleSessions(ctx context.Context) (int, error)
}
