package wfsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/logx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// WorkflowService operaciones de autoría sobre definiciones de workflow
type WorkflowService struct {
	workflowRepo engine.WorkflowRepository
	validate     *validator.Validate
}

func NewWorkflowService(workflowRepo engine.WorkflowRepository) *WorkflowService {
	return &WorkflowService{
		workflowRepo: workflowRepo,
		validate:     validator.New(),
	}
}

// Create valida y guarda una definición nueva. La versión arranca en 1.
func (s *WorkflowService) Create(ctx context.Context, req engine.CreateWorkflowRequest) (*engine.Workflow, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errx.Wrap(err, "invalid create workflow request", errx.TypeValidation)
	}

	exists, err := s.workflowRepo.ExistsByName(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, engine.ErrWorkflowAlreadyExists().WithDetail("name", req.Name)
	}

	now := time.Now()
	wf := engine.Workflow{
		ID:          kernel.NewWorkflowID(uuid.New().String()),
		Name:        req.Name,
		Description: req.Description,
		Version:     1,
		IsPublic:    req.IsPublic,
		Tags:        req.Tags,
		StartNodeID: req.StartNodeID,
		Nodes:       req.Nodes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}

	if err := s.workflowRepo.Create(ctx, wf); err != nil {
		return nil, err
	}

	logx.Info("workflow %s created (%s)", wf.ID, wf.Name)
	return &wf, nil
}

// Update aplica cambios parciales y sube la versión. Cualquier cambio
// estructural se revalida completo antes de tocar la base.
func (s *WorkflowService) Update(ctx context.Context, id kernel.WorkflowID, req engine.UpdateWorkflowRequest) (*engine.Workflow, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, errx.Wrap(err, "invalid update workflow request", errx.TypeValidation)
	}

	wf, err := s.workflowRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != wf.Name {
		exists, err := s.workflowRepo.ExistsByName(ctx, *req.Name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, engine.ErrWorkflowAlreadyExists().WithDetail("name", *req.Name)
		}
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.IsPublic != nil {
		wf.IsPublic = *req.IsPublic
	}
	if req.Tags != nil {
		wf.Tags = *req.Tags
	}
	if req.StartNodeID != nil {
		wf.StartNodeID = *req.StartNodeID
	}
	if req.Nodes != nil {
		wf.Nodes = *req.Nodes
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}

	wf.BumpVersion()
	if err := s.workflowRepo.Update(ctx, *wf); err != nil {
		return nil, err
	}

	logx.Info("workflow %s updated to version %d", wf.ID, wf.Version)
	return wf, nil
}

// Get obtiene una definición por ID
func (s *WorkflowService) Get(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	return s.workflowRepo.FindByID(ctx, id)
}

// Delete elimina una definición. Las sesiones en curso conservan su
// referencia y fallarán al recargar: abortarlas es decisión del operador.
func (s *WorkflowService) Delete(ctx context.Context, id kernel.WorkflowID) error {
	if err := s.workflowRepo.Delete(ctx, id); err != nil {
		return err
	}
	logx.Info("workflow %s deleted", id)
	return nil
}

// List lista definiciones con paginación y filtros
func (s *WorkflowService) List(ctx context.Context, req engine.WorkflowListRequest) (engine.WorkflowListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	return s.workflowRepo.List(ctx, req)
}

// Publish marca la definición como pública
func (s *WorkflowService) Publish(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	return s.setPublic(ctx, id, true)
}

// Unpublish oculta la definición del listado público
func (s *WorkflowService) Unpublish(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	return s.setPublic(ctx, id, false)
}

func (s *WorkflowService) setPublic(ctx context.Context, id kernel.WorkflowID, public bool) (*engine.Workflow, error) {
	wf, err := s.workflowRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.IsPublic == public {
		return wf, nil
	}

	wf.IsPublic = public
	wf.BumpVersion()
	if err := s.workflowRepo.Update(ctx, *wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// FindPublic definiciones visibles para cualquier consumidor
func (s *WorkflowService) FindPublic(ctx context.Context) ([]*engine.Workflow, error) {
	return s.workflowRepo.FindPublic(ctx)
}

// FindByTag definiciones etiquetadas con un tag
func (s *WorkflowService) FindByTag(ctx context.Context, tag string) ([]*engine.Workflow, error) {
	return s.workflowRepo.FindByTag(ctx, tag)
}
