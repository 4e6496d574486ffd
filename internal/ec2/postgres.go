package ec2

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore persists credentials in the ec2_credentials table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, cred Credential) error {
	_, err := s.db.ExecContext(ctx, `
		insert into ec2_credentials (access, secret, user_id, tenant_id)
		values ($1, $2, $3, $4)
	`, cred.Access, cred.Secret, cred.UserID, cred.TenantID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, access string) (Credential, error) {
	var cred Credential
	err := s.db.QueryRowContext(ctx, `
		select access, secret, user_id, tenant_id, created_at
		from ec2_credentials
		where access = $1
	`, access).Scan(&cred.Access, &cred.Secret, &cred.UserID, &cred.TenantID, &cred.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		select access, secret, user_id, tenant_id, created_at
		from ec2_credentials
		where user_id = $1
		order by access
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var cred Credential
		if err := rows.Scan(&cred.Access, &cred.Secret, &cred.UserID, &cred.TenantID, &cred.CreatedAt); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, access string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from ec2_credentials where access = $1`, access)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}
