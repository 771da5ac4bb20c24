package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrRecordNotFound is returned when no verification record exists for an
// entity.
var ErrRecordNotFound = errors.New("verification record not found")

// ErrEntityNotFound is returned when the business entity itself is unknown.
var ErrEntityNotFound = errors.New("business entity not found")

// Repository defines the interface for verification data access
type Repository interface {
	CreateRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, entityID string) (*Record, error)
	UpdateRecord(ctx context.Context, record *Record) error
	ListQueue(ctx context.Context, filters *QueueFilters) ([]*QueueEntry, int, error)

	AppendHistory(ctx context.Context, entry *StatusHistory) error
	ListHistory(ctx context.Context, entityID string) ([]*StatusHistory, error)

	GetEntity(ctx context.Context, entityID string) (*BusinessEntity, error)
	UpdateAccountStatus(ctx context.Context, entityID string, status AccountStatus) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateRecord(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO verification_records (
			entity_id, entity_type, status, admin_notes, verification_date,
			submitted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.EntityID, record.EntityType, record.Status, record.AdminNotes,
		record.VerificationDate, record.SubmittedAt, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verification record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetRecord(ctx context.Context, entityID string) (*Record, error) {
	query := `
		SELECT entity_id, entity_type, status, admin_notes, verification_date,
			   submitted_at, created_at, updated_at
		FROM verification_records
		WHERE entity_id = $1
	`

	var record Record
	err := r.db.GetContext(ctx, &record, query, entityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get verification record: %w", err)
	}

	return &record, nil
}

func (r *PostgresRepository) UpdateRecord(ctx context.Context, record *Record) error {
	query := `
		UPDATE verification_records SET
			status = $2, admin_notes = $3, verification_date = $4,
			submitted_at = $5, updated_at = $6
		WHERE entity_id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		record.EntityID, record.Status, record.AdminNotes,
		record.VerificationDate, record.SubmittedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update verification record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (r *PostgresRepository) ListQueue(ctx context.Context, filters *QueueFilters) ([]*QueueEntry, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	baseQuery := `
		SELECT r.entity_id, r.entity_type, r.status, r.admin_notes, r.verification_date,
			   r.submitted_at, r.created_at, r.updated_at,
			   e.business_name, e.owner_name, e.email
		FROM verification_records r
		JOIN business_entities e ON e.entity_id = r.entity_id
	`

	countQuery := `
		SELECT COUNT(*)
		FROM verification_records r
		JOIN business_entities e ON e.entity_id = r.entity_id
	`

	if filters.Status != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argCount))
		args = append(args, *filters.Status)
	}

	if filters.EntityType != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("r.entity_type = $%d", argCount))
		args = append(args, *filters.EntityType)
	}

	if filters.SearchTerm != nil && *filters.SearchTerm != "" {
		argCount++
		conditions = append(conditions, fmt.Sprintf("(e.business_name ILIKE $%d OR e.owner_name ILIKE $%d OR e.email ILIKE $%d)", argCount, argCount, argCount))
		args = append(args, "%"+*filters.SearchTerm+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count review queue: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	argCount++
	limitArg := argCount
	argCount++
	offsetArg := argCount
	args = append(args, pageSize, (page-1)*pageSize)

	listQuery := baseQuery + whereClause +
		fmt.Sprintf(" ORDER BY r.submitted_at ASC LIMIT $%d OFFSET $%d", limitArg, offsetArg)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list review queue: %w", err)
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		var entry QueueEntry
		err := rows.Scan(
			&entry.Record.EntityID, &entry.Record.EntityType, &entry.Record.Status,
			&entry.Record.AdminNotes, &entry.Record.VerificationDate,
			&entry.Record.SubmittedAt, &entry.Record.CreatedAt, &entry.Record.UpdatedAt,
			&entry.BusinessName, &entry.OwnerName, &entry.Email,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate review queue: %w", err)
	}

	return entries, total, nil
}

func (r *PostgresRepository) AppendHistory(ctx context.Context, entry *StatusHistory) error {
	query := `
		INSERT INTO verification_status_history (
			id, entity_id, from_status, to_status, notes, changed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.EntityID, entry.FromStatus, entry.ToStatus,
		entry.Notes, entry.ChangedBy, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListHistory(ctx context.Context, entityID string) ([]*StatusHistory, error) {
	query := `
		SELECT id, entity_id, from_status, to_status, notes, changed_by, created_at
		FROM verification_status_history
		WHERE entity_id = $1
		ORDER BY created_at DESC
	`

	var entries []*StatusHistory
	if err := r.db.SelectContext(ctx, &entries, query, entityID); err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}

	return entries, nil
}

func (r *PostgresRepository) GetEntity(ctx context.Context, entityID string) (*BusinessEntity, error) {
	query := `
		SELECT entity_id, entity_type, business_name, owner_name, email, phone,
			   account_status, revenue_total, order_total, rating
		FROM business_entities
		WHERE entity_id = $1
	`

	var entity BusinessEntity
	err := r.db.GetContext(ctx, &entity, query, entityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get business entity: %w", err)
	}

	return &entity, nil
}

func (r *PostgresRepository) UpdateAccountStatus(ctx context.Context, entityID string, status AccountStatus) error {
	query := `UPDATE business_entities SET account_status = $2 WHERE entity_id = $1`

	result, err := r.db.ExecContext(ctx, query, entityID, status)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrEntityNotFound
	}

	return nil
}
