package engineinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/chatflow/engine"
	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/Abraxas-365/craftable/storex"
	"github.com/jmoiron/sqlx"
)

type PostgresWorkflowRepository struct {
	db *sqlx.DB
}

var _ engine.WorkflowRepository = (*PostgresWorkflowRepository)(nil)

func NewPostgresWorkflowRepository(db *sqlx.DB) *PostgresWorkflowRepository {
	return &PostgresWorkflowRepository{db: db}
}

// dbWorkflow is an intermediate struct for database operations
type dbWorkflow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Version     int             `db:"version"`
	IsPublic    bool            `db:"is_public"`
	Tags        json.RawMessage `db:"tags"`
	StartNodeID string          `db:"start_node_id"`
	Nodes       json.RawMessage `db:"nodes"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

const workflowColumns = `
	id, name, description, version, is_public, tags,
	start_node_id, nodes, created_at, updated_at`

func toDBWorkflow(wf engine.Workflow) (*dbWorkflow, error) {
	tagsJSON := []byte("[]")
	if len(wf.Tags) > 0 {
		var err error
		tagsJSON, err = json.Marshal(wf.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
	}

	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}

	return &dbWorkflow{
		ID:          wf.ID.String(),
		Name:        wf.Name,
		Description: wf.Description,
		Version:     wf.Version,
		IsPublic:    wf.IsPublic,
		Tags:        tagsJSON,
		StartNodeID: wf.StartNodeID,
		Nodes:       nodesJSON,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}, nil
}

func toDomainWorkflow(dbWf *dbWorkflow) (*engine.Workflow, error) {
	var tags []string
	if len(dbWf.Tags) > 0 && string(dbWf.Tags) != "null" {
		if err := json.Unmarshal(dbWf.Tags, &tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	var nodes []engine.Node
	if len(dbWf.Nodes) > 0 && string(dbWf.Nodes) != "null" {
		if err := json.Unmarshal(dbWf.Nodes, &nodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
		}
	}

	return &engine.Workflow{
		ID:          kernel.WorkflowID(dbWf.ID),
		Name:        dbWf.Name,
		Description: dbWf.Description,
		Version:     dbWf.Version,
		IsPublic:    dbWf.IsPublic,
		Tags:        tags,
		StartNodeID: dbWf.StartNodeID,
		Nodes:       nodes,
		CreatedAt:   dbWf.CreatedAt,
		UpdatedAt:   dbWf.UpdatedAt,
	}, nil
}

func (r *PostgresWorkflowRepository) Create(ctx context.Context, wf engine.Workflow) error {
	dbWf, err := toDBWorkflow(wf)
	if err != nil {
		return errx.Wrap(err, "failed to convert workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID)
	}

	query := `
		INSERT INTO workflows (
			id, name, description, version, is_public, tags,
			start_node_id, nodes, created_at, updated_at
		) VALUES (
			:id, :name, :description, :version, :is_public, :tags,
			:start_node_id, :nodes, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbWf)
	if err != nil {
		return errx.Wrap(err, "failed to create workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID)
	}

	return nil
}

func (r *PostgresWorkflowRepository) Update(ctx context.Context, wf engine.Workflow) error {
	dbWf, err := toDBWorkflow(wf)
	if err != nil {
		return errx.Wrap(err, "failed to convert workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID)
	}

	query := `
		UPDATE workflows SET
			name = :name,
			description = :description,
			version = :version,
			is_public = :is_public,
			tags = :tags,
			start_node_id = :start_node_id,
			nodes = :nodes,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, dbWf)
	if err != nil {
		return errx.Wrap(err, "failed to update workflow", errx.TypeInternal).
			WithDetail("workflow_id", wf.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", wf.ID)
	}

	return nil
}

func (r *PostgresWorkflowRepository) FindByID(ctx context.Context, id kernel.WorkflowID) (*engine.Workflow, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflows WHERE id = $1`, workflowColumns)

	var dbWf dbWorkflow
	err := r.db.GetContext(ctx, &dbWf, query, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrWorkflowNotFound().WithDetail("workflow_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find workflow by id", errx.TypeInternal).
			WithDetail("workflow_id", string(id))
	}

	return toDomainWorkflow(&dbWf)
}

func (r *PostgresWorkflowRepository) Delete(ctx context.Context, id kernel.WorkflowID) error {
	query := `DELETE FROM workflows WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, string(id))
	if err != nil {
		return errx.Wrap(err, "failed to delete workflow", errx.TypeInternal).
			WithDetail("workflow_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrWorkflowNotFound().WithDetail("workflow_id", string(id))
	}

	return nil
}

func (r *PostgresWorkflowRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM workflows WHERE name = $1)`
	err := r.db.GetContext(ctx, &exists, query, name)
	if err != nil {
		return false, errx.Wrap(err, "failed to check workflow name", errx.TypeInternal).
			WithDetail("name", name)
	}
	return exists, nil
}

func (r *PostgresWorkflowRepository) FindPublic(ctx context.Context) ([]*engine.Workflow, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflows
		WHERE is_public = TRUE
		ORDER BY updated_at DESC`, workflowColumns)

	return r.selectWorkflows(ctx, query)
}

func (r *PostgresWorkflowRepository) FindByTag(ctx context.Context, tag string) ([]*engine.Workflow, error) {
	tagJSON, err := json.Marshal([]string{tag})
	if err != nil {
		return nil, errx.Wrap(err, "failed to marshal tag", errx.TypeInternal)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM workflows
		WHERE tags @> $1
		ORDER BY updated_at DESC`, workflowColumns)

	return r.selectWorkflows(ctx, query, string(tagJSON))
}

func (r *PostgresWorkflowRepository) List(ctx context.Context, req engine.WorkflowListRequest) (engine.WorkflowListResponse, error) {
	conditions := []string{"1=1"}
	args := []any{}
	argPos := 1

	if req.IsPublic != nil {
		conditions = append(conditions, fmt.Sprintf("is_public = $%d", argPos))
		args = append(args, *req.IsPublic)
		argPos++
	}

	if req.Tag != "" {
		tagJSON, err := json.Marshal([]string{req.Tag})
		if err != nil {
			return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to marshal tag", errx.TypeInternal)
		}
		conditions = append(conditions, fmt.Sprintf("tags @> $%d", argPos))
		args = append(args, string(tagJSON))
		argPos++
	}

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM workflows WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to count workflows", errx.TypeInternal)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM workflows
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`,
		workflowColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbWorkflows []dbWorkflow
	err = r.db.SelectContext(ctx, &dbWorkflows, dataQuery, args...)
	if err != nil {
		return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to list workflows", errx.TypeInternal)
	}

	workflows := make([]engine.Workflow, 0, len(dbWorkflows))
	for i := range dbWorkflows {
		wf, err := toDomainWorkflow(&dbWorkflows[i])
		if err != nil {
			return engine.WorkflowListResponse{}, errx.Wrap(err, "failed to convert workflow", errx.TypeInternal)
		}
		workflows = append(workflows, *wf)
	}

	return storex.NewPaginated(workflows, total, req.Page, req.PageSize), nil
}

func (r *PostgresWorkflowRepository) selectWorkflows(ctx context.Context, query string, args ...any) ([]*engine.Workflow, error) {
	var dbWorkflows []dbWorkflow
	err := r.db.SelectContext(ctx, &dbWorkflows, query, args...)
	if err != nil {
		return nil, errx.Wrap(err, "failed to query workflows", errx.TypeInternal)
	}

	workflows := make([]*engine.Workflow, 0, len(dbWorkflows))
	for i := range dbWorkflows {
		wf, err := toDomainWorkflow(&dbWorkflows[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert workflow", errx.TypeInternal)
		}
		workflows = append(workflows, wf)
	}

	return workflows, nil
}
