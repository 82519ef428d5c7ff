package engineapi

import (
	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/engine/wfsrv"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/gofiber/fiber/v2"
)

// ============================================================================
// Workflow Handlers
// ============================================================================

// WorkflowHandlers endpoints de autoría de workflows
type WorkflowHandlers struct {
	workflowService *wfsrv.WorkflowService
}

func NewWorkflowHandlers(workflowService *wfsrv.WorkflowService) *WorkflowHandlers {
	return &WorkflowHandlers{workflowService: workflowService}
}

// CreateWorkflow POST /workflows
func (h *WorkflowHandlers) CreateWorkflow(c *fiber.Ctx) error {
	var req engine.CreateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation).WithCause(err)
	}

	wf, err := h.workflowService.Create(c.Context(), req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(wf)
}

// GetWorkflow GET /workflows/:workflowId
func (h *WorkflowHandlers) GetWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("workflowId"))

	wf, err := h.workflowService.Get(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(wf)
}

// UpdateWorkflow PUT /workflows/:workflowId
func (h *WorkflowHandlers) UpdateWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("workflowId"))

	var req engine.UpdateWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.New("invalid request body", errx.TypeValidation).WithCause(err)
	}

	wf, err := h.workflowService.Update(c.Context(), id, req)
	if err != nil {
		return err
	}

	return c.JSON(wf)
}

// DeleteWorkflow DELETE /workflows/:workflowId
func (h *WorkflowHandlers) DeleteWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("workflowId"))

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ListWorkflows GET /workflows
func (h *WorkflowHandlers) ListWorkflows(c *fiber.Ctx) error {
	req := engine.WorkflowListRequest{
		Tag:    c.Query("tag"),
		Search: c.Query("search"),
	}
	req.Page = c.QueryInt("page", 1)
	req.PageSize = c.QueryInt("pageSize", 20)

	if raw := c.Query("isPublic"); raw != "" {
		isPublic := raw == "true"
		req.IsPublic = &isPublic
	}

	resp, err := h.workflowService.List(c.Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// PublishWorkflow POST /workflows/:workflowId/publish
func (h *WorkflowHandlers) PublishWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("workflowId"))

	wf, err := h.workflowService.Publish(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(wf)
}

// UnpublishWorkflow POST /workflows/:workflowId/unpublish
func (h *WorkflowHandlers) UnpublishWorkflow(c *fiber.Ctx) error {
	id := kernel.WorkflowID(c.Params("workflowId"))

	wf, err := h.workflowService.Unpublish(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(wf)
}

// ============================================================================
// Session Handlers
// ============================================================================

// SessionHandlers endpoints de administración de sesiones
type SessionHandlers struct {
	sessionManager engine.SessionManager
	sessionRepo    engine.SessionRepository
}

func NewSessionHandlers(sessionManager engine.SessionManager, sessionRepo engine.SessionRepository) *SessionHandlers {
	return &SessionHandlers{
		sessionManager: sessionManager,
		sessionRepo:    sessionRepo,
	}
}

// GetSession GET /sessions/:sessionId
func (h *SessionHandlers) GetSession(c *fiber.Ctx) error {
	id := kernel.SessionID(c.Params("sessionId"))

	session, err := h.sessionManager.Get(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(session)
}

// ListSessions GET /sessions
func (h *SessionHandlers) ListSessions(c *fiber.Ctx) error {
	req := engine.SessionListRequest{
		WorkflowID: kernel.WorkflowID(c.Query("workflowId")),
		ProviderID: kernel.ProviderID(c.Query("providerId")),
	}
	req.Page = c.QueryInt("page", 1)
	req.PageSize = c.QueryInt("pageSize", 20)

	if raw := c.Query("isActive"); raw != "" {
		isActive := raw == "true"
		req.IsActive = &isActive
	}

	resp, err := h.sessionRepo.List(c.Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// AbortSession POST /sessions/:sessionId/abort
func (h *SessionHandlers) AbortSession(c *fiber.Ctx) error {
	id := kernel.SessionID(c.Params("sessionId"))

	if err := h.sessionManager.Abort(c.Context(), id); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}
