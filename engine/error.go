package engine

import (
	"net/http"

	"github.com/Abraxas-365/craftable/errx"
)

var ErrRegistry = errx.NewRegistry("ENGINE")

var (
	// Workflow errors
	CodeWorkflowNotFound      = ErrRegistry.Register("WORKFLOW_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Workflow not found")
	CodeWorkflowAlreadyExists = ErrRegistry.Register("WORKFLOW_ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "Workflow already exists")
	CodeInvalidWorkflow       = ErrRegistry.Register("INVALID_WORKFLOW", errx.TypeValidation, http.StatusBadRequest, "Invalid workflow definition")
	CodeCyclicWorkflow        = ErrRegistry.Register("CYCLIC_WORKFLOW", errx.TypeValidation, http.StatusBadRequest, "Workflow has a cycle without input nodes")
	CodeNodeNotFound          = ErrRegistry.Register("NODE_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Node not found")
	CodeUnknownNodeType       = ErrRegistry.Register("UNKNOWN_NODE_TYPE", errx.TypeValidation, http.StatusBadRequest, "Unknown node type")

	// Session errors
	CodeSessionNotFound = ErrRegistry.Register("SESSION_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Session not found")
	CodeSessionInactive = ErrRegistry.Register("SESSION_INACTIVE", errx.TypeBusiness, http.StatusConflict, "Session is not active")
	CodeSessionConflict = ErrRegistry.Register("SESSION_CONFLICT", errx.TypeConflict, http.StatusConflict, "Session was modified concurrently")

	// Execution errors
	CodeStepFailed         = ErrRegistry.Register("STEP_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Step execution failed")
	CodeIntegrationFailed  = ErrRegistry.Register("INTEGRATION_FAILED", errx.TypeInternal, http.StatusBadGateway, "Integration call failed")
	CodeNoDefaultWorkflow  = ErrRegistry.Register("NO_DEFAULT_WORKFLOW", errx.TypeBusiness, http.StatusNotFound, "No default workflow configured")
	CodeInvalidExpression  = ErrRegistry.Register("INVALID_EXPRESSION", errx.TypeValidation, http.StatusBadRequest, "Invalid condition expression")
	CodeProcessingFailed   = ErrRegistry.Register("PROCESSING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Message processing failed")
	CodeContinuationFailed = ErrRegistry.Register("CONTINUATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Delayed continuation failed")
)

// Error constructor functions
func ErrWorkflowNotFound() *errx.Error {
	return ErrRegistry.New(CodeWorkflowNotFound)
}

func ErrWorkflowAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeWorkflowAlreadyExists)
}

func ErrInvalidWorkflow() *errx.Error {
	return ErrRegistry.New(CodeInvalidWorkflow)
}

func ErrCyclicWorkflow() *errx.Error {
	return ErrRegistry.New(CodeCyclicWorkflow)
}

func ErrNodeNotFound() *errx.Error {
	return ErrRegistry.New(CodeNodeNotFound)
}

func ErrUnknownNodeType() *errx.Error {
	return ErrRegistry.New(CodeUnknownNodeType)
}

func ErrSessionNotFound() *errx.Error {
	return ErrRegistry.New(CodeSessionNotFound)
}

func ErrSessionInactive() *errx.Error {
	return ErrRegistry.New(CodeSessionInactive)
}

func ErrSessionConflict() *errx.Error {
	return ErrRegistry.New(CodeSessionConflict)
}

func ErrStepFailed() *errx.Error {
	return ErrRegistry.New(CodeStepFailed)
}

func ErrIntegrationFailed() *errx.Error {
	return ErrRegistry.New(CodeIntegrationFailed)
}

func ErrNoDefaultWorkflow() *errx.Error {
	return ErrRegistry.New(CodeNoDefaultWorkflow)
}

func ErrInvalidExpression() *errx.Error {
	return ErrRegistry.New(CodeInvalidExpression)
}

func ErrProcessingFailed() *errx.Error {
	return ErrRegistry.New(CodeProcessingFailed)
}

func ErrContinuationFailed() *errx.Error {
	return ErrRegistry.New(CodeContinuationFailed)
}
