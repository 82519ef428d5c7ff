package msgprocessor

import (
	"context"
	"log"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/chatflow/providers"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/google/uuid"
)

// apologyText respuesta de cortesía cuando el procesamiento falla sin remedio
const apologyText = "Lo sentimos, ocurrió un error procesando tu mensaje. Por favor intenta de nuevo más tarde."

// initialMessageVar variable de sesión con el primer mensaje del contacto
const initialMessageVar = "initialMessage"

// MessageProcessor enruta mensajes entrantes hacia las sesiones de workflow
type MessageProcessor struct {
	workflowRepo    engine.WorkflowRepository
	sessionManager  engine.SessionManager
	stepper         engine.Stepper
	providerManager providers.Manager
	scheduler       engine.DelayScheduler

	defaultWorkflowID kernel.WorkflowID
	saveRetries       int
	sendRetries       int
}

var _ providers.InboundHandler = (*MessageProcessor)(nil)
var _ engine.ContinuationHandler = (*MessageProcessor)(nil)

// NewMessageProcessor crea el procesador de mensajes
func NewMessageProcessor(
	workflowRepo engine.WorkflowRepository,
	sessionManager engine.SessionManager,
	stepper engine.Stepper,
	providerManager providers.Manager,
	scheduler engine.DelayScheduler,
	defaultWorkflowID kernel.WorkflowID,
	saveRetries int,
	sendRetries int,
) *MessageProcessor {
	if saveRetries <= 0 {
		saveRetries = 3
	}
	if sendRetries <= 0 {
		sendRetries = 2
	}
	return &MessageProcessor{
		workflowRepo:      workflowRepo,
		sessionManager:    sessionManager,
		stepper:           stepper,
		providerManager:   providerManager,
		scheduler:         scheduler,
		defaultWorkflowID: defaultWorkflowID,
		saveRetries:       saveRetries,
		sendRetries:       sendRetries,
	}
}

// ProcessInbound es el entry point para mensajes que llegan por webhook
func (mp *MessageProcessor) ProcessInbound(ctx context.Context, msg providers.Message) error {
	// Los ecos de mensajes propios se descartan en silencio: responderlos
	// crearía un bucle contra nuestra propia salida
	if msg.FromSelf {
		log.Printf("🔇 Discarding echo of own message %s", msg.ID.String())
		return nil
	}

	if !msg.IsValid() {
		return engine.ErrProcessingFailed().WithDetail("reason", "invalid message")
	}

	log.Printf("🚀 Processing message %s from %s on provider %s", msg.ID.String(), msg.ContactAddress, msg.ProviderID.String())

	session, isNew, err := mp.resolveSession(ctx, msg)
	if err != nil {
		log.Printf("❌ Failed to resolve session for %s: %v", msg.ContactAddress, err)
		mp.apologize(ctx, msg.ProviderID, msg.ContactAddress)
		return err
	}

	// Una sesión nueva arranca en el nodo inicial sin consumir el mensaje
	// como input: el texto ya quedó disponible como variable
	var input *string
	if !isNew {
		text := msg.Text
		input = &text
	}

	return mp.runSession(ctx, session, input, msg.ProviderID, msg.ContactAddress)
}

// HandleContinuation reanuda una sesión cuando vence un delay agendado
func (mp *MessageProcessor) HandleContinuation(ctx context.Context, cont engine.Continuation) error {
	log.Printf("⏰ Resuming session %s after scheduled delay (node %s)", cont.SessionID, cont.NodeID)

	session, err := mp.sessionManager.Get(ctx, kernel.NewSessionID(cont.SessionID))
	if err != nil {
		return engine.ErrContinuationFailed().
			WithDetail("session_id", cont.SessionID).
			WithDetail("reason", err.Error())
	}

	if !session.IsActive {
		// Sesión abortada o completada mientras esperaba; nada que reanudar
		log.Printf("⏭️ Session %s no longer active, dropping continuation", cont.SessionID)
		return nil
	}

	session.ResumeAt = nil
	return mp.runSession(ctx, session, nil, session.ProviderID, session.ContactAddress)
}

// resolveSession encuentra la sesión activa del contacto o crea una nueva
// sobre el workflow por defecto
func (mp *MessageProcessor) resolveSession(ctx context.Context, msg providers.Message) (*engine.Session, bool, error) {
	existing, err := mp.sessionManager.FindActiveForContact(ctx, msg.ProviderID, msg.ContactAddress)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if mp.defaultWorkflowID.IsEmpty() {
		return nil, false, engine.ErrNoDefaultWorkflow()
	}

	workflow, err := mp.workflowRepo.FindByID(ctx, mp.defaultWorkflowID)
	if err != nil {
		return nil, false, errx.Wrap(err, "failed to load default workflow", errx.TypeInternal).
			WithDetail("workflow_id", mp.defaultWorkflowID.String())
	}

	session, _, err := mp.sessionManager.GetOrCreateForContact(ctx, msg.ProviderID, msg.ContactAddress, workflow.ID)
	if err != nil {
		return nil, false, err
	}

	if session.CurrentNodeID == "" {
		session.CurrentNodeID = workflow.StartNodeID
	}
	session.SetVariable(initialMessageVar, msg.Text)

	return session, true, nil
}

// runSession ejecuta pasos hasta un punto de espera y persiste el resultado.
// La escritura es condicionada por versión: si otra petición guardó la sesión
// primero, se relee el estado fresco y se vuelve a ejecutar desde ahí. Las
// salidas solo se envían después de un guardado exitoso, así un reintento
// nunca duplica mensajes al contacto.
func (mp *MessageProcessor) runSession(ctx context.Context, session *engine.Session, input *string, providerID kernel.ProviderID, contactAddress string) error {
	workflow, err := mp.workflowRepo.FindByID(ctx, session.WorkflowID)
	if err != nil {
		log.Printf("❌ Failed to load workflow %s: %v", session.WorkflowID.String(), err)
		mp.terminateWithApology(ctx, session, providerID, contactAddress)
		return errx.Wrap(err, "failed to load session workflow", errx.TypeInternal).
			WithDetail("workflow_id", session.WorkflowID.String())
	}
	index := workflow.BuildIndex()

	working := session.Clone()

	for attempt := 0; attempt <= mp.saveRetries; attempt++ {
		outputs, resumeAt, err := mp.drive(ctx, index, len(workflow.Nodes), working, input)
		if err != nil {
			log.Printf("❌ Step execution failed for session %s: %v", working.ID.String(), err)
			mp.terminateWithApology(ctx, working, providerID, contactAddress)
			return err
		}

		if err := mp.sessionManager.Save(ctx, working); err != nil {
			if errx.IsType(err, errx.TypeConflict) && attempt < mp.saveRetries {
				log.Printf("🔄 Session %s changed concurrently, retrying (%d/%d)", working.ID.String(), attempt+1, mp.saveRetries)
				fresh, readErr := mp.sessionManager.Get(ctx, working.ID)
				if readErr != nil {
					return errx.Wrap(readErr, "failed to reload session after conflict", errx.TypeInternal)
				}
				if !fresh.IsActive {
					log.Printf("⏭️ Session %s was closed concurrently, dropping message", working.ID.String())
					return nil
				}
				working = fresh.Clone()
				continue
			}
			return errx.Wrap(err, "failed to save session", errx.TypeInternal).
				WithDetail("session_id", working.ID.String())
		}

		mp.sendOutputs(ctx, providerID, contactAddress, outputs)

		if resumeAt != nil && mp.scheduler != nil {
			if err := mp.scheduleResume(ctx, working, resumeAt); err != nil {
				log.Printf("❌ Failed to schedule resumption for session %s: %v", working.ID.String(), err)
				return err
			}
		}

		*session = *working
		return nil
	}

	return engine.ErrSessionConflict().
		WithDetail("session_id", session.ID.String()).
		WithDetail("retries", mp.saveRetries)
}

// drive ejecuta pasos hasta que la sesión espere input, termine o quede
// agendada. El tope de iteraciones protege contra definiciones rotas que la
// validación no atrapó.
func (mp *MessageProcessor) drive(ctx context.Context, index engine.NodeIndex, nodeCount int, session *engine.Session, input *string) ([]string, *time.Time, error) {
	var outputs []string
	maxSteps := nodeCount*2 + 1

	for step := 0; step < maxSteps; step++ {
		result, err := mp.stepper.Step(ctx, index, session, input)
		if err != nil {
			return nil, nil, err
		}
		input = nil // solo el primer paso consume el mensaje entrante

		if result.HasOutput() {
			outputs = append(outputs, result.Output)
		}

		if result.IsComplete || result.WaitForInput {
			return outputs, nil, nil
		}
		if result.ResumeAt != nil {
			return outputs, result.ResumeAt, nil
		}
	}

	return nil, nil, engine.ErrStepFailed().
		WithDetail("session_id", session.ID.String()).
		WithDetail("reason", "step limit exceeded, possible runaway workflow")
}

// scheduleResume agenda la continuación de un delay largo
func (mp *MessageProcessor) scheduleResume(ctx context.Context, session *engine.Session, resumeAt *time.Time) error {
	cont := engine.Continuation{
		ID:           uuid.New().String(),
		SessionID:    session.ID.String(),
		WorkflowID:   session.WorkflowID.String(),
		NodeID:       session.LastNodeID,
		ScheduledFor: *resumeAt,
		CreatedAt:    time.Now(),
	}
	return mp.scheduler.Schedule(ctx, cont)
}

// sendOutputs envía las salidas en orden con reintentos acotados. Un envío
// fallido se registra y se sigue con el resto: la sesión ya avanzó y volver
// atrás duplicaría efectos.
func (mp *MessageProcessor) sendOutputs(ctx context.Context, providerID kernel.ProviderID, contactAddress string, outputs []string) {
	for _, output := range outputs {
		var lastErr error
		for attempt := 0; attempt <= mp.sendRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
			}
			lastErr = mp.providerManager.SendText(ctx, providerID, contactAddress, output)
			if lastErr == nil {
				break
			}
		}
		if lastErr != nil {
			log.Printf("❌ Failed to send message to %s after %d retries: %v", contactAddress, mp.sendRetries, lastErr)
		}
	}
}

// terminateWithApology cierra la sesión tras un fallo fatal y se disculpa con
// el contacto. Todo es best-effort: ya estamos en la ruta de error.
func (mp *MessageProcessor) terminateWithApology(ctx context.Context, session *engine.Session, providerID kernel.ProviderID, contactAddress string) {
	mp.apologize(ctx, providerID, contactAddress)

	if session == nil || !session.IsActive {
		return
	}
	session.Complete()
	if err := mp.sessionManager.Save(ctx, session); err != nil {
		log.Printf("❌ Failed to close session %s after fatal error: %v", session.ID.String(), err)
	}
}

func (mp *MessageProcessor) apologize(ctx context.Context, providerID kernel.ProviderID, contactAddress string) {
	if err := mp.providerManager.SendText(ctx, providerID, contactAddress, apologyText); err != nil {
		log.Printf("❌ Failed to send apology to %s: %v", contactAddress, err)
	}
}
