package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"keygate.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. Role grant/revoke run inside a
// transaction with a row lock so concurrent set mutations cannot drop
// each other's writes.
type PGStore struct {
	db   *sql.DB
	hash HashParams
}

func NewPGStore(db *sql.DB, hash HashParams) *PGStore {
	return &PGStore{db: db, hash: hash.normalized()}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func marshalExtra(extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(extra)
}

func unmarshalExtra(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode extra: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// Users ---------------------------------------------------------------------

func (s *PGStore) CreateUser(ctx context.Context, u User, password string) (User, error) {
	if u.ID == "" {
		u.ID = ids.New()
	}
	extra, err := marshalExtra(u.Extra)
	if err != nil {
		return User{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, name, password_hash, extra)
		values ($1, $2, $3, $4)
		returning id, name, extra, created_at, updated_at
	`, u.ID, u.Name, HashPassword(s.hash, u.ID, password), extra)
	out, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return User{}, fmt.Errorf("%w: user %s", ErrConflict, u.Name)
		}
		return User{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u   User
		raw []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &raw, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	extra, err := unmarshalExtra(raw)
	if err != nil {
		return User{}, err
	}
	u.Extra = extra
	return u, nil
}

func (s *PGStore) getUserBy(ctx context.Context, column, value string) (User, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select id, name, extra, created_at, updated_at
		from users
		where %s = $1
	`, column), value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PGStore) GetUser(ctx context.Context, id string) (User, error) {
	return s.getUserBy(ctx, "id", id)
}

func (s *PGStore) GetUserByName(ctx context.Context, name string) (User, error) {
	return s.getUserBy(ctx, "name", name)
}

func (s *PGStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Password != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, HashPassword(s.hash, id, *upd.Password))
		idx++
	}
	if upd.Extra != nil {
		patch, err := json.Marshal(upd.Extra)
		if err != nil {
			return User{}, fmt.Errorf("marshal extra: %w", err)
		}
		// jsonb || merges by key at the top level, preserving untouched keys.
		sets = append(sets, fmt.Sprintf("extra = extra || $%d::jsonb", idx))
		args = append(args, patch)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return User{}, fmt.Errorf("%w: user name", ErrConflict)
			}
			return User{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return User{}, err
		}
		if aff == 0 {
			return User{}, ErrNotFound
		}
	}
	return s.GetUser(ctx, id)
}

func (s *PGStore) DeleteUser(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "users", id)
}

func (s *PGStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, table), id)
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

func (s *PGStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, extra, created_at, updated_at
		from users
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) CheckPassword(ctx context.Context, userID, password string) error {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`select password_hash from users where id = $1`, userID,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		HashPassword(s.hash, userID, password)
		return ErrInvalidCredential
	}
	if err != nil {
		return err
	}
	if !VerifyPassword(s.hash, userID, password, stored) {
		return ErrInvalidCredential
	}
	return nil
}

// Tenants -------------------------------------------------------------------

func scanTenant(row rowScanner) (Tenant, error) {
	var (
		t   Tenant
		raw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Tenant{}, err
	}
	extra, err := unmarshalExtra(raw)
	if err != nil {
		return Tenant{}, err
	}
	t.Extra = extra
	return t, nil
}

func (s *PGStore) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	if t.ID == "" {
		t.ID = ids.New()
	}
	extra, err := marshalExtra(t.Extra)
	if err != nil {
		return Tenant{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into tenants (id, name, extra)
		values ($1, $2, $3)
		returning id, name, extra, created_at, updated_at
	`, t.ID, t.Name, extra)
	out, err := scanTenant(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return Tenant{}, fmt.Errorf("%w: tenant %s", ErrConflict, t.Name)
		}
		return Tenant{}, err
	}
	return out, nil
}

func (s *PGStore) getTenantBy(ctx context.Context, column, value string) (Tenant, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		select id, name, extra, created_at, updated_at
		from tenants
		where %s = $1
	`, column), value)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (s *PGStore) GetTenant(ctx context.Context, id string) (Tenant, error) {
	return s.getTenantBy(ctx, "id", id)
}

func (s *PGStore) GetTenantByName(ctx context.Context, name string) (Tenant, error) {
	return s.getTenantBy(ctx, "name", name)
}

func (s *PGStore) UpdateTenant(ctx context.Context, id string, upd TenantUpdate) (Tenant, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Extra != nil {
		patch, err := json.Marshal(upd.Extra)
		if err != nil {
			return Tenant{}, fmt.Errorf("marshal extra: %w", err)
		}
		sets = append(sets, fmt.Sprintf("extra = extra || $%d::jsonb", idx))
		args = append(args, patch)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update tenants set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return Tenant{}, fmt.Errorf("%w: tenant name", ErrConflict)
			}
			return Tenant{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return Tenant{}, err
		}
		if aff == 0 {
			return Tenant{}, ErrNotFound
		}
	}
	return s.GetTenant(ctx, id)
}

func (s *PGStore) DeleteTenant(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tenants", id)
}

func (s *PGStore) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, extra, created_at, updated_at
		from tenants
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// Roles ---------------------------------------------------------------------

func (s *PGStore) CreateRole(ctx context.Context, r Role) (Role, error) {
	if r.ID == "" {
		r.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles (id, name) values ($1, $2)`, r.ID, r.Name)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return Role{}, fmt.Errorf("%w: role %s", ErrConflict, r.ID)
		}
		return Role{}, err
	}
	return r, nil
}

func (s *PGStore) GetRole(ctx context.Context, id string) (Role, error) {
	var r Role
	err := s.db.QueryRowContext(ctx,
		`select id, name from roles where id = $1`, id,
	).Scan(&r.ID, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}
	return r, nil
}

func (s *PGStore) DeleteRole(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "roles", id)
}

func (s *PGStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from roles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// Memberships ---------------------------------------------------------------

func (s *PGStore) AddMembership(ctx context.Context, userID, tenantID string) error {
	// on conflict do nothing keeps the insert idempotent.
	_, err := s.db.ExecContext(ctx, `
		insert into user_tenant_memberships (user_id, tenant_id)
		values ($1, $2)
		on conflict (user_id, tenant_id) do nothing
	`, userID, tenantID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PGStore) RemoveMembership(ctx context.Context, userID, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_tenant_memberships
		where user_id = $1 and tenant_id = $2
	`, userID, tenantID)
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

func (s *PGStore) TenantsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select tenant_id from user_tenant_memberships
		where user_id = $1
		order by tenant_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// Metadata ------------------------------------------------------------------

func scanMetadata(row rowScanner) (Metadata, error) {
	var (
		md       Metadata
		rawRoles []byte
		rawExtra []byte
	)
	if err := row.Scan(&md.UserID, &md.TenantID, &rawRoles, &rawExtra); err != nil {
		return Metadata{}, err
	}
	if len(rawRoles) > 0 {
		if err := json.Unmarshal(rawRoles, &md.Roles); err != nil {
			return Metadata{}, fmt.Errorf("decode roles: %w", err)
		}
	}
	if md.Roles == nil {
		md.Roles = RoleSet{}
	}
	extra, err := unmarshalExtra(rawExtra)
	if err != nil {
		return Metadata{}, err
	}
	md.Extra = extra
	return md, nil
}

func (s *PGStore) GetMetadata(ctx context.Context, userID, tenantID string) (Metadata, error) {
	row := s.db.QueryRowContext(ctx, `
		select user_id, tenant_id, roles, extra
		from metadata
		where user_id = $1 and tenant_id = $2
	`, userID, tenantID)
	md, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, err
	}
	return md, nil
}

func (s *PGStore) UpdateMetadata(ctx context.Context, userID, tenantID string, data map[string]any) (Metadata, error) {
	patch, err := marshalExtra(data)
	if err != nil {
		return Metadata{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into metadata (user_id, tenant_id, roles, extra)
		values ($1, $2, '[]'::jsonb, $3::jsonb)
		on conflict (user_id, tenant_id) do update
		set extra = metadata.extra || excluded.extra
		returning user_id, tenant_id, roles, extra
	`, userID, tenantID, patch)
	md, err := scanMetadata(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return Metadata{}, ErrNotFound
		}
		return Metadata{}, err
	}
	return md, nil
}

func (s *PGStore) DeleteMetadata(ctx context.Context, userID, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from metadata where user_id = $1 and tenant_id = $2
	`, userID, tenantID)
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

// mutateRoles runs fn against the pair's role set inside a transaction,
// locking the metadata row so concurrent grants and revokes serialize.
func (s *PGStore) mutateRoles(ctx context.Context, userID, tenantID string, createIfAbsent bool, fn func(RoleSet) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if createIfAbsent {
		if _, err := tx.ExecContext(ctx, `
			insert into metadata (user_id, tenant_id, roles, extra)
			values ($1, $2, '[]'::jsonb, '{}'::jsonb)
			on conflict (user_id, tenant_id) do nothing
		`, userID, tenantID); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return ErrNotFound
			}
			return err
		}
	}

	var rawRoles []byte
	err = tx.QueryRowContext(ctx, `
		select roles from metadata
		where user_id = $1 and tenant_id = $2
		for update
	`, userID, tenantID).Scan(&rawRoles)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: no roles granted to user %s on tenant %s",
			ErrInvalidState, userID, tenantID)
	}
	if err != nil {
		return err
	}

	roles := RoleSet{}
	if len(rawRoles) > 0 {
		if err := json.Unmarshal(rawRoles, &roles); err != nil {
			return fmt.Errorf("decode roles: %w", err)
		}
	}
	if err := fn(roles); err != nil {
		return err
	}
	updated, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update metadata set roles = $3::jsonb
		where user_id = $1 and tenant_id = $2
	`, userID, tenantID, updated); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) GrantRole(ctx context.Context, userID, tenantID, roleID string) error {
	return s.mutateRoles(ctx, userID, tenantID, true, func(roles RoleSet) error {
		roles.Add(roleID)
		return nil
	})
}

func (s *PGStore) RevokeRole(ctx context.Context, userID, tenantID, roleID string) error {
	return s.mutateRoles(ctx, userID, tenantID, false, func(roles RoleSet) error {
		if !roles.Remove(roleID) {
			return fmt.Errorf("%w: role %s not granted to user %s on tenant %s",
				ErrInvalidState, roleID, userID, tenantID)
		}
		return nil
	})
}

func (s *PGStore) RolesFor(ctx context.Context, userID, tenantID string) ([]string, error) {
	var rawRoles []byte
	err := s.db.QueryRowContext(ctx, `
		select roles from metadata
		where user_id = $1 and tenant_id = $2
	`, userID, tenantID).Scan(&rawRoles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	roles := RoleSet{}
	if len(rawRoles) > 0 {
		if err := json.Unmarshal(rawRoles, &roles); err != nil {
			return nil, fmt.Errorf("decode roles: %w", err)
		}
	}
	return roles.List(), nil
}
