package sessmanager

import (
	"context"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/google/uuid"
)

// SessionManager lógica de negocio sobre el repositorio de sesiones
type SessionManager struct {
	sessionRepo    engine.SessionRepository
	scheduler      engine.DelayScheduler
	maxHistorySize int
	idleTTL        time.Duration
}

var _ engine.SessionManager = (*SessionManager)(nil)

// NewSessionManager crea el manager. El scheduler puede ser nil; solo se usa
// para cancelar reanudaciones pendientes al abortar.
func NewSessionManager(sessionRepo engine.SessionRepository, scheduler engine.DelayScheduler, maxHistorySize int, idleTTL time.Duration) *SessionManager {
	if maxHistorySize <= 0 {
		maxHistorySize = 200
	}
	return &SessionManager{
		sessionRepo:    sessionRepo,
		scheduler:      scheduler,
		maxHistorySize: maxHistorySize,
		idleTTL:        idleTTL,
	}
}

// GetOrCreateForContact devuelve la sesión activa del contacto o crea una
// nueva sobre el workflow indicado. El booleano indica si la sesión es nueva.
// Si el contacto tiene más de una sesión activa gana la de actividad más
// reciente; las demás quedan intactas hasta que el mantenimiento las cierre.
func (m *SessionManager) GetOrCreateForContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string, workflowID kernel.WorkflowID) (*engine.Session, bool, error) {
	existing, err := m.FindActiveForContact(ctx, providerID, contactAddress)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := time.Now()
	session := &engine.Session{
		ID:             kernel.NewSessionID(uuid.New().String()),
		WorkflowID:     workflowID,
		ProviderID:     providerID,
		ContactAddress: contactAddress,
		Variables:      make(map[string]any),
		History:        []engine.HistoryEntry{},
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.sessionRepo.Create(ctx, *session); err != nil {
		return nil, false, errx.Wrap(err, "failed to create session", errx.TypeInternal).
			WithDetail("contact_address", contactAddress)
	}

	logx.Info("session %s created for contact %s on workflow %s", session.ID, contactAddress, workflowID)
	return session, true, nil
}

// FindActiveForContact sesión activa más reciente del contacto, nil si no hay
func (m *SessionManager) FindActiveForContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string) (*engine.Session, error) {
	sessions, err := m.sessionRepo.FindActiveByContact(ctx, providerID, contactAddress)
	if err != nil {
		return nil, errx.Wrap(err, "failed to look up active sessions", errx.TypeInternal).
			WithDetail("contact_address", contactAddress)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	// El repositorio ordena por updated_at descendente; la primera gana
	winner := sessions[0]
	for _, s := range sessions[1:] {
		if s.UpdatedAt.After(winner.UpdatedAt) {
			winner = s
		}
	}
	return winner, nil
}

// Save persiste la sesión con escritura condicionada por versión. Antes de
// guardar recorta el historial para que una conversación eterna no crezca sin
// límite; las entradas más viejas se descartan primero.
func (m *SessionManager) Save(ctx context.Context, session *engine.Session) error {
	if len(session.History) > m.maxHistorySize {
		trimmed := make([]engine.HistoryEntry, m.maxHistorySize)
		copy(trimmed, session.History[len(session.History)-m.maxHistorySize:])
		session.History = trimmed
	}
	return m.sessionRepo.Save(ctx, session)
}

// Get obtiene una sesión por ID
func (m *SessionManager) Get(ctx context.Context, sessionID kernel.SessionID) (*engine.Session, error) {
	return m.sessionRepo.FindByID(ctx, sessionID)
}

// Abort cierra una sesión manualmente. Es idempotente: abortar una sesión ya
// cerrada no es un error.
func (m *SessionManager) Abort(ctx context.Context, sessionID kernel.SessionID) error {
	session, err := m.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return err
		}
		return errx.Wrap(err, "failed to load session", errx.TypeInternal).
			WithDetail("session_id", sessionID.String())
	}

	if !session.IsActive {
		return nil
	}

	session.Complete()
	if err := m.sessionRepo.Save(ctx, session); err != nil {
		return errx.Wrap(err, "failed to abort session", errx.TypeInternal).
			WithDetail("session_id", sessionID.String())
	}

	if m.scheduler != nil {
		if err := m.scheduler.Cancel(ctx, sessionID); err != nil {
			logx.Error("failed to cancel pending resume for session %s: %v", sessionID, err)
		}
	}

	logx.Info("session %s aborted", sessionID)
	return nil
}

// CloseIdleSessions cierra las sesiones activas sin actividad dentro del TTL
func (m *SessionManager) CloseIdleSessions(ctx context.Context) (int, error) {
	if m.idleTTL <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-m.idleTTL)
	closed, err := m.sessionRepo.CloseIdle(ctx, cutoff)
	if err != nil {
		return 0, errx.Wrap(err, "failed to close idle sessions", errx.TypeInternal)
	}

	if closed > 0 {
		logx.Info("closed %d idle sessions (inactive since %s)", closed, cutoff.Format(time.RFC3339))
	}
	return closed, nil
}
