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

type PostgresSessionRepository struct {
	db *sqlx.DB
}

var _ engine.SessionRepository = (*PostgresSessionRepository)(nil)

func NewPostgresSessionRepository(db *sqlx.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// dbSession is an intermediate struct for database operations
type dbSession struct {
	ID             string          `db:"id"`
	WorkflowID     string          `db:"workflow_id"`
	ProviderID     string          `db:"provider_id"`
	ContactAddress string          `db:"contact_address"`
	Variables      json.RawMessage `db:"variables"`
	History        json.RawMessage `db:"history"`
	CurrentNodeID  string          `db:"current_node_id"`
	LastNodeID     string          `db:"last_node_id"`
	IsActive       bool            `db:"is_active"`
	ResumeAt       *time.Time      `db:"resume_at"`
	Version        int64           `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

const sessionColumns = `
	id, workflow_id, provider_id, contact_address, variables,
	history, current_node_id, last_node_id, is_active, resume_at,
	version, created_at, updated_at`

// toDBSession converts domain Session to dbSession
func toDBSession(session engine.Session) (*dbSession, error) {
	variablesJSON := []byte("{}")
	if len(session.Variables) > 0 {
		var err error
		variablesJSON, err = json.Marshal(session.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal variables: %w", err)
		}
	}

	historyJSON := []byte("[]")
	if len(session.History) > 0 {
		var err error
		historyJSON, err = json.Marshal(session.History)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}
	}

	return &dbSession{
		ID:             session.ID.String(),
		WorkflowID:     session.WorkflowID.String(),
		ProviderID:     session.ProviderID.String(),
		ContactAddress: session.ContactAddress,
		Variables:      variablesJSON,
		History:        historyJSON,
		CurrentNodeID:  session.CurrentNodeID,
		LastNodeID:     session.LastNodeID,
		IsActive:       session.IsActive,
		ResumeAt:       session.ResumeAt,
		Version:        session.Version,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      session.UpdatedAt,
	}, nil
}

// toDomainSession converts dbSession to domain Session
func toDomainSession(dbSess *dbSession) (*engine.Session, error) {
	var variables map[string]any
	if len(dbSess.Variables) > 0 && string(dbSess.Variables) != "null" {
		if err := json.Unmarshal(dbSess.Variables, &variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	var history []engine.HistoryEntry
	if len(dbSess.History) > 0 && string(dbSess.History) != "null" {
		if err := json.Unmarshal(dbSess.History, &history); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}

	return &engine.Session{
		ID:             kernel.SessionID(dbSess.ID),
		WorkflowID:     kernel.WorkflowID(dbSess.WorkflowID),
		ProviderID:     kernel.ProviderID(dbSess.ProviderID),
		ContactAddress: dbSess.ContactAddress,
		Variables:      variables,
		History:        history,
		CurrentNodeID:  dbSess.CurrentNodeID,
		LastNodeID:     dbSess.LastNodeID,
		IsActive:       dbSess.IsActive,
		ResumeAt:       dbSess.ResumeAt,
		Version:        dbSess.Version,
		CreatedAt:      dbSess.CreatedAt,
		UpdatedAt:      dbSess.UpdatedAt,
	}, nil
}

func (r *PostgresSessionRepository) Create(ctx context.Context, session engine.Session) error {
	dbSess, err := toDBSession(session)
	if err != nil {
		return errx.Wrap(err, "failed to convert session", errx.TypeInternal).
			WithDetail("session_id", session.ID)
	}

	query := `
		INSERT INTO sessions (
			id, workflow_id, provider_id, contact_address, variables,
			history, current_node_id, last_node_id, is_active, resume_at,
			version, created_at, updated_at
		) VALUES (
			:id, :workflow_id, :provider_id, :contact_address, :variables,
			:history, :current_node_id, :last_node_id, :is_active, :resume_at,
			:version, :created_at, :updated_at
		)`

	_, err = r.db.NamedExecContext(ctx, query, dbSess)
	if err != nil {
		return errx.Wrap(err, "failed to create session", errx.TypeInternal).
			WithDetail("session_id", session.ID)
	}

	return nil
}

// Save persiste la sesión solo si nadie la modificó desde la lectura. La
// cláusula WHERE sobre version hace la escritura condicional; cero filas
// afectadas con la sesión existente significa conflicto y el llamador decide
// si releer y reintentar.
func (r *PostgresSessionRepository) Save(ctx context.Context, session *engine.Session) error {
	dbSess, err := toDBSession(*session)
	if err != nil {
		return errx.Wrap(err, "failed to convert session", errx.TypeInternal).
			WithDetail("session_id", session.ID)
	}

	query := `
		UPDATE sessions SET
			variables = :variables,
			history = :history,
			current_node_id = :current_node_id,
			last_node_id = :last_node_id,
			is_active = :is_active,
			resume_at = :resume_at,
			version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`

	result, err := r.db.NamedExecContext(ctx, query, dbSess)
	if err != nil {
		return errx.Wrap(err, "failed to save session", errx.TypeInternal).
			WithDetail("session_id", session.ID)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		exists, err := r.sessionExists(ctx, session.ID.String())
		if err != nil {
			return errx.Wrap(err, "failed to check session existence", errx.TypeInternal)
		}
		if !exists {
			return engine.ErrSessionNotFound().WithDetail("session_id", session.ID)
		}
		return engine.ErrSessionConflict().
			WithDetail("session_id", session.ID).
			WithDetail("version", session.Version)
	}

	session.Version++
	return nil
}

func (r *PostgresSessionRepository) FindByID(ctx context.Context, id kernel.SessionID) (*engine.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)

	var dbSess dbSession
	err := r.db.GetContext(ctx, &dbSess, query, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrSessionNotFound().WithDetail("session_id", string(id))
		}
		return nil, errx.Wrap(err, "failed to find session by id", errx.TypeInternal).
			WithDetail("session_id", string(id))
	}

	return toDomainSession(&dbSess)
}

func (r *PostgresSessionRepository) Delete(ctx context.Context, id kernel.SessionID) error {
	query := `DELETE FROM sessions WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, string(id))
	if err != nil {
		return errx.Wrap(err, "failed to delete session", errx.TypeInternal).
			WithDetail("session_id", string(id))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	if rowsAffected == 0 {
		return engine.ErrSessionNotFound().WithDetail("session_id", string(id))
	}

	return nil
}

func (r *PostgresSessionRepository) FindActiveByContact(ctx context.Context, providerID kernel.ProviderID, contactAddress string) ([]*engine.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE provider_id = $1 AND contact_address = $2 AND is_active = TRUE
		ORDER BY updated_at DESC`, sessionColumns)

	var dbSessions []dbSession
	err := r.db.SelectContext(ctx, &dbSessions, query, providerID.String(), contactAddress)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find active sessions by contact", errx.TypeInternal).
			WithDetail("provider_id", providerID.String()).
			WithDetail("contact_address", contactAddress)
	}

	sessions := make([]*engine.Session, 0, len(dbSessions))
	for i := range dbSessions {
		session, err := toDomainSession(&dbSessions[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert session", errx.TypeInternal)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (r *PostgresSessionRepository) FindDueForResume(ctx context.Context, now time.Time) ([]*engine.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE is_active = TRUE AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at ASC`, sessionColumns)

	var dbSessions []dbSession
	err := r.db.SelectContext(ctx, &dbSessions, query, now)
	if err != nil {
		return nil, errx.Wrap(err, "failed to find sessions due for resume", errx.TypeInternal)
	}

	sessions := make([]*engine.Session, 0, len(dbSessions))
	for i := range dbSessions {
		session, err := toDomainSession(&dbSessions[i])
		if err != nil {
			return nil, errx.Wrap(err, "failed to convert session", errx.TypeInternal)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (r *PostgresSessionRepository) List(ctx context.Context, req engine.SessionListRequest) (engine.SessionListResponse, error) {
	conditions := []string{"1=1"}
	args := []any{}
	argPos := 1

	if !req.WorkflowID.IsEmpty() {
		conditions = append(conditions, fmt.Sprintf("workflow_id = $%d", argPos))
		args = append(args, req.WorkflowID.String())
		argPos++
	}

	if !req.ProviderID.IsEmpty() {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", argPos))
		args = append(args, req.ProviderID.String())
		argPos++
	}

	if req.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sessions WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return engine.SessionListResponse{}, errx.Wrap(err, "failed to count sessions", errx.TypeInternal)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`,
		sessionColumns, whereClause, argPos, argPos+1)

	args = append(args, req.PageSize, req.GetOffset())

	var dbSessions []dbSession
	err = r.db.SelectContext(ctx, &dbSessions, dataQuery, args...)
	if err != nil {
		return engine.SessionListResponse{}, errx.Wrap(err, "failed to list sessions", errx.TypeInternal)
	}

	sessions := make([]engine.Session, 0, len(dbSessions))
	for i := range dbSessions {
		session, err := toDomainSession(&dbSessions[i])
		if err != nil {
			return engine.SessionListResponse{}, errx.Wrap(err, "failed to convert session", errx.TypeInternal)
		}
		sessions = append(sessions, *session)
	}

	return storex.NewPaginated(sessions, total, req.Page, req.PageSize), nil
}

func (r *PostgresSessionRepository) CloseIdle(ctx context.Context, idleSince time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET is_active = FALSE, current_node_id = '', resume_at = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE is_active = TRUE AND updated_at <= $1`

	result, err := r.db.ExecContext(ctx, query, idleSince)
	if err != nil {
		return 0, errx.Wrap(err, "failed to close idle sessions", errx.TypeInternal)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	return int(rowsAffected), nil
}

func (r *PostgresSessionRepository) sessionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`
	err := r.db.GetContext(ctx, &exists, query, id)
	return exists, err
}
