package engine

import (
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/storex"
)

// ============================================================================
// Workflow DTOs
// ============================================================================

type CreateWorkflowRequest struct {
	Name        string   `json:"name" validate:"required,min=2"`
	Description string   `json:"description,omitempty"`
	IsPublic    bool     `json:"isPublic"`
	Tags        []string `json:"tags,omitempty"`
	StartNodeID string   `json:"startNodeId" validate:"required"`
	Nodes       []Node   `json:"nodes" validate:"required,min=1"`
}

type UpdateWorkflowRequest struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=2"`
	Description *string   `json:"description,omitempty"`
	IsPublic    *bool     `json:"isPublic,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	StartNodeID *string   `json:"startNodeId,omitempty"`
	Nodes       *[]Node   `json:"nodes,omitempty"`
}

type WorkflowListRequest struct {
	storex.PaginationOptions
	IsPublic *bool  `json:"isPublic,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Search   string `json:"search,omitempty"`
}

func (wlr WorkflowListRequest) GetOffset() int {
	return (wlr.Page - 1) * wlr.PageSize
}

type WorkflowListResponse = storex.Paginated[Workflow]

// ============================================================================
// Session DTOs
// ============================================================================

type SessionListRequest struct {
	storex.PaginationOptions
	WorkflowID kernel.WorkflowID `json:"workflowId,omitempty"`
	ProviderID kernel.ProviderID `json:"providerId,omitempty"`
	IsActive   *bool             `json:"isActive,omitempty"`
}

func (slr SessionListRequest) GetOffset() int {
	return (slr.Page - 1) * slr.PageSize
}

type SessionListResponse = storex.Paginated[Session]

// ============================================================================
// Simple DTOs
// ============================================================================

type WorkflowSummaryDTO struct {
	ID        kernel.WorkflowID `json:"id"`
	Name      string            `json:"name"`
	Version   int               `json:"version"`
	IsPublic  bool              `json:"isPublic"`
	Tags      []string          `json:"tags,omitempty"`
	NodeCount int               `json:"nodeCount"`
}

func (w *Workflow) ToSummary() WorkflowSummaryDTO {
	return WorkflowSummaryDTO{
		ID:        w.ID,
		Name:      w.Name,
		Version:   w.Version,
		IsPublic:  w.IsPublic,
		Tags:      w.Tags,
		NodeCount: len(w.Nodes),
	}
}
