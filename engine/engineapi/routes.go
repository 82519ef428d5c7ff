package engineapi

import (
	"github.com/gofiber/fiber/v2"
)

// Routes configura las rutas de autoría y administración del engine
type Routes struct {
	workflowHandlers *WorkflowHandlers
	sessionHandlers  *SessionHandlers
}

func NewRoutes(workflowHandlers *WorkflowHandlers, sessionHandlers *SessionHandlers) *Routes {
	return &Routes{
		workflowHandlers: workflowHandlers,
		sessionHandlers:  sessionHandlers,
	}
}

func (r *Routes) RegisterRoutes(app *fiber.App) {
	workflows := app.Group("/workflows")
	workflows.Post("/", r.workflowHandlers.CreateWorkflow)
	workflows.Get("/", r.workflowHandlers.ListWorkflows)
	workflows.Get("/:workflowId", r.workflowHandlers.GetWorkflow)
	workflows.Put("/:workflowId", r.workflowHandlers.UpdateWorkflow)
	workflows.Delete("/:workflowId", r.workflowHandlers.DeleteWorkflow)
	workflows.Post("/:workflowId/publish", r.workflowHandlers.PublishWorkflow)
	workflows.Post("/:workflowId/unpublish", r.workflowHandlers.UnpublishWorkflow)

	sessions := app.Group("/sessions")
	sessions.Get("/", r.sessionHandlers.ListSessions)
	sessions.Get("/:sessionId", r.sessionHandlers.GetSession)
	sessions.Post("/:sessionId/abort", r.sessionHandlers.AbortSession)
}
