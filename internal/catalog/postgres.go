package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"keygate.org/internal/ids"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore persists service records with jsonb definitions.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, svc Service) (Service, error) {
	if svc.ID == "" {
		svc.ID = ids.New()
	}
	def, err := json.Marshal(svc.Definition)
	if err != nil {
		return Service{}, fmt.Errorf("marshal definition: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into services (id, definition)
		values ($1, $2)
		returning id, definition, created_at
	`, svc.ID, def)
	out, err := scanService(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return Service{}, ErrConflict
		}
		return Service{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (Service, error) {
	var (
		svc Service
		raw []byte
	)
	if err := row.Scan(&svc.ID, &raw, &svc.CreatedAt); err != nil {
		return Service{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &svc.Definition); err != nil {
			return Service{}, fmt.Errorf("decode definition: %w", err)
		}
	}
	return svc, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Service, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, definition, created_at from services where id = $1`, id)
	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, ErrNotFound
	}
	if err != nil {
		return Service{}, err
	}
	return svc, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from services where id = $1`, id)
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

func (s *PGStore) List(ctx context.Context) ([]Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, definition, created_at from services order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}
