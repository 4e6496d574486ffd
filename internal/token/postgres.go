package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore persists token snapshots as jsonb rows. The snapshot column holds
// the full bound state so a token read never depends on the identity tables
// changing underneath it.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, tok Token) error {
	snapshot, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into tokens (id, expires_at, snapshot)
		values ($1, $2, $3)
	`, tok.ID, tok.ExpiresAt, snapshot)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Token, error) {
	var snapshot []byte
	err := s.db.QueryRowContext(ctx,
		`select snapshot from tokens where id = $1`, id,
	).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, err
	}
	var tok Token
	if err := json.Unmarshal(snapshot, &tok); err != nil {
		return Token{}, fmt.Errorf("decode token snapshot: %w", err)
	}
	return tok, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tokens where id = $1`, id)
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
