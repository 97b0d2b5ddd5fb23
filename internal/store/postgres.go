package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/pipehunter/pkg/models"
)

const processedEmailColumns = `id, message_uid, message_id, received_at, from_email, subject,
	project_id, pipeline_id, pipeline_ref, pipeline_status, status, error_message,
	gitlab_error_log, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Processed emails ---

func (s *PostgresStore) CreateProcessedEmail(ctx context.Context, record *models.ProcessedEmailRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_emails (id, message_uid, message_id, received_at, from_email, subject,
			project_id, pipeline_id, pipeline_ref, pipeline_status, status, error_message,
			gitlab_error_log, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		record.ID, record.MessageUID, record.MessageID, record.ReceivedAt, record.FromEmail,
		record.Subject, record.ProjectID, record.PipelineID, record.PipelineRef,
		record.PipelineStatus, record.Status, record.ErrorMessage, record.GitLabErrorLog,
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create processed email: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProcessedEmailByMessageID(ctx context.Context, messageID string) (*models.ProcessedEmailRecord, error) {
	return s.getProcessedEmail(ctx,
		`SELECT `+processedEmailColumns+` FROM processed_emails WHERE message_id = $1`, messageID)
}

func (s *PostgresStore) GetProcessedEmailByUID(ctx context.Context, uid string) (*models.ProcessedEmailRecord, error) {
	return s.getProcessedEmail(ctx,
		`SELECT `+processedEmailColumns+` FROM processed_emails WHERE message_uid = $1`, uid)
}

func (s *PostgresStore) getProcessedEmail(ctx context.Context, query string, arg any) (*models.ProcessedEmailRecord, error) {
	var r models.ProcessedEmailRecord
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&r.ID, &r.MessageUID, &r.MessageID, &r.ReceivedAt, &r.FromEmail, &r.Subject,
		&r.ProjectID, &r.PipelineID, &r.PipelineRef, &r.PipelineStatus, &r.Status,
		&r.ErrorMessage, &r.GitLabErrorLog, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get processed email: %w", err)
	}
	return &r, nil
}

// UpdateProcessedEmailStatus changes a record's status plus any optional
// fields supplied through options. The UPDATE is built dynamically so
// untouched columns stay as they are.
func (s *PostgresStore) UpdateProcessedEmailStatus(ctx context.Context, id uuid.UUID, status string, opts ...EmailUpdateOption) error {
	var params emailUpdateParams
	for _, opt := range opts {
		opt(&params)
	}

	sets := []string{"status = $1", "updated_at = NOW()"}
	args := []any{status}
	argIdx := 2

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if params.ErrorMessage != nil {
		addSet("error_message", *params.ErrorMessage)
	}
	if params.GitLabErrorLog != nil {
		addSet("gitlab_error_log", *params.GitLabErrorLog)
	}
	if params.ProjectID != nil {
		addSet("project_id", *params.ProjectID)
	}
	if params.PipelineID != nil {
		addSet("pipeline_id", *params.PipelineID)
	}
	if params.PipelineRef != nil {
		addSet("pipeline_ref", *params.PipelineRef)
	}
	if params.PipelineStatus != nil {
		addSet("pipeline_status", *params.PipelineStatus)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE processed_emails SET %s WHERE id = $%d",
		strings.Join(sets, ", "), argIdx)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update processed email status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProcessedEmail(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processed_emails WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete processed email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListProcessedEmails(ctx context.Context, filter EmailFilter) ([]*models.ProcessedEmailRecord, int, error) {
	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.Since.IsZero() {
		where = append(where, fmt.Sprintf("received_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM processed_emails WHERE " + whereClause
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count processed emails: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(
		"SELECT %s FROM processed_emails WHERE %s ORDER BY received_at DESC LIMIT $%d OFFSET $%d",
		processedEmailColumns, whereClause, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list processed emails: %w", err)
	}
	defer rows.Close()

	var records []*models.ProcessedEmailRecord
	for rows.Next() {
		var r models.ProcessedEmailRecord
		if err := rows.Scan(
			&r.ID, &r.MessageUID, &r.MessageID, &r.ReceivedAt, &r.FromEmail, &r.Subject,
			&r.ProjectID, &r.PipelineID, &r.PipelineRef, &r.PipelineStatus, &r.Status,
			&r.ErrorMessage, &r.GitLabErrorLog, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan processed email: %w", err)
		}
		records = append(records, &r)
	}
	return records, total, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
