package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"captable/internal/company/models"
	id "captable/pkg/domain"
	"captable/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store needs. pgxmock pools satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists companies in PostgreSQL. The verification record is
// stored as JSONB and always written as a whole.
type PostgresStore struct {
	db DB
}

// NewPostgres constructs a PostgreSQL-backed company store.
func NewPostgres(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectCompany = `
		SELECT id, name, registration_number, status, verification, verified_at,
		       creator_user_id, version, created_at, updated_at
		FROM companies
	`

func (s *PostgresStore) Create(ctx context.Context, company *models.Company) error {
	verification, err := json.Marshal(company.Verification)
	if err != nil {
		return fmt.Errorf("marshal verification record: %w", err)
	}
	query := `
		INSERT INTO companies (id, name, registration_number, status, verification, verified_at,
		                       creator_user_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.Exec(ctx, query,
		uuid.UUID(company.ID),
		company.Name,
		company.RegistrationNumber.String(),
		company.Status.String(),
		verification,
		company.VerifiedAt,
		uuid.UUID(company.CreatorUserID),
		company.Version,
		company.CreatedAt,
		company.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	c, err := scanCompany(s.db.QueryRow(ctx, selectCompany+`WHERE id = $1`, uuid.UUID(companyID)))
	if err != nil {
		return nil, fmt.Errorf("find company by id: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindByRegistrationNumber(ctx context.Context, cnpj models.CNPJ) (*models.Company, error) {
	c, err := scanCompany(s.db.QueryRow(ctx, selectCompany+`WHERE registration_number = $1`, cnpj.String()))
	if err != nil {
		return nil, fmt.Errorf("find company by registration number: %w", err)
	}
	return c, nil
}

// Update writes the patch only if the stored version still matches. Unset
// patch fields keep their stored values through COALESCE.
func (s *PostgresStore) Update(ctx context.Context, companyID id.CompanyID, patch models.Patch) error {
	var status *string
	if patch.Status != nil {
		st := patch.Status.String()
		status = &st
	}
	var verification []byte
	if patch.Verification != nil {
		raw, err := json.Marshal(patch.Verification)
		if err != nil {
			return fmt.Errorf("marshal verification record: %w", err)
		}
		verification = raw
	}
	query := `
		UPDATE companies
		SET status = COALESCE($1, status),
		    verification = COALESCE($2, verification),
		    verified_at = COALESCE($3, verified_at),
		    updated_at = $4,
		    version = version + 1
		WHERE id = $5 AND version = $6
	`
	tag, err := s.db.Exec(ctx, query,
		status,
		verification,
		patch.VerifiedAt,
		patch.UpdatedAt,
		uuid.UUID(companyID),
		patch.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE id = $1)`, uuid.UUID(companyID)).Scan(&exists); err != nil {
		return fmt.Errorf("check company exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

// ListPending backs the stale-dispatch sweep; companies_pending_idx keeps it
// off the full table.
func (s *PostgresStore) ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.Company, error) {
	rows, err := s.db.Query(ctx, selectCompany+`
		WHERE status = 'DRAFT'
		  AND verification->>'validationStatus' = 'PENDING'
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending companies: %w", err)
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending companies: %w", err)
	}
	return out, nil
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var (
		rawID        string
		rawCreatorID string
		name         string
		cnpj         string
		status       string
		verification []byte
		verifiedAt   *time.Time
		version      int64
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(&rawID, &name, &cnpj, &status, &verification, &verifiedAt,
		&rawCreatorID, &version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	companyID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("decode company id: %w", err)
	}
	creatorID, err := uuid.Parse(rawCreatorID)
	if err != nil {
		return nil, fmt.Errorf("decode creator id: %w", err)
	}
	c := &models.Company{
		ID:                 id.CompanyID(companyID),
		Name:               name,
		RegistrationNumber: models.CNPJ(cnpj),
		Status:             models.Status(status),
		VerifiedAt:         verifiedAt,
		CreatorUserID:      id.UserID(creatorID),
		Version:            version,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}
	if len(verification) > 0 {
		if err := json.Unmarshal(verification, &c.Verification); err != nil {
			return nil, fmt.Errorf("decode verification record: %w", err)
		}
	}
	return c, nil
}
