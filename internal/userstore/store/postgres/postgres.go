// Package postgres implements the user store primitives over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/internal/userstore"
	"idrealm/pkg/secrets"
)

// Store is a PostgreSQL-backed userstore.StoreOps implementation.
type Store struct {
	db              *sql.DB
	caseInsensitive bool
}

// Option configures a Store.
type Option func(*Store)

// WithCaseInsensitiveUsernames folds username case in every lookup.
func WithCaseInsensitiveUsernames() Option {
	return func(s *Store) { s.caseInsensitive = true }
}

// New opens a store over an existing database handle. The caller owns the
// handle's lifecycle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the store's tables when absent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS um_users (
			username        TEXT PRIMARY KEY,
			credential_hash TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS um_user_attributes (
			username  TEXT NOT NULL REFERENCES um_users(username) ON DELETE CASCADE,
			profile   TEXT NOT NULL,
			attribute TEXT NOT NULL,
			value     TEXT NOT NULL,
			PRIMARY KEY (username, profile, attribute)
		)`,
		`CREATE TABLE IF NOT EXISTS um_roles (
			role_name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS um_user_roles (
			username  TEXT NOT NULL REFERENCES um_users(username) ON DELETE CASCADE,
			role_name TEXT NOT NULL REFERENCES um_roles(role_name) ON DELETE CASCADE,
			PRIMARY KEY (username, role_name)
		)`,
		`CREATE TABLE IF NOT EXISTS um_shared_roles (
			role_name     TEXT NOT NULL,
			username      TEXT NOT NULL,
			tenant_domain TEXT NOT NULL,
			PRIMARY KEY (role_name, username, tenant_domain)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "migration failed")
		}
	}
	return nil
}

func (s *Store) key(name string) string {
	if s.caseInsensitive {
		return strings.ToLower(name)
	}
	return name
}

// likePattern converts a '*' wildcard filter to a LIKE pattern, escaping the
// LIKE metacharacters in the literal parts.
func likePattern(filter string) string {
	if filter == "" {
		return "%"
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	parts := strings.Split(filter, "*")
	for i, p := range parts {
		parts[i] = replacer.Replace(p)
	}
	return strings.Join(parts, "%")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *Store) DoAuthenticate(ctx context.Context, username string, credential *secrets.Secret) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT credential_hash FROM um_users WHERE username = $1`, s.key(username)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeDownstream, "credential lookup failed")
	}
	if err := secrets.Verify(credential, hash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeAuthentication) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) DoCheckExistingUser(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM um_users WHERE username = $1)`, s.key(username)).Scan(&exists)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeDownstream, "user lookup failed")
	}
	return exists, nil
}

func (s *Store) DoCheckExistingRole(ctx context.Context, role string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM um_roles WHERE lower(role_name) = lower($1))`, role).Scan(&exists)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeDownstream, "role lookup failed")
	}
	return exists, nil
}

func (s *Store) DoAddUser(ctx context.Context, username string, credential *secrets.Secret, roles []string, claims map[string]string, profile string) error {
	hash, err := secrets.Hash(credential)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "begin failed")
	}
	defer tx.Rollback()

	key := s.key(username)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO um_users (username, credential_hash) VALUES ($1, $2)`, key, hash); err != nil {
		if isUniqueViolation(err) {
			return dErrors.New(dErrors.CodeAlreadyExists, "user %s already exists", username)
		}
		return dErrors.Wrap(err, dErrors.CodeDownstream, "user insert failed")
	}
	for attr, value := range claims {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO um_user_attributes (username, profile, attribute, value) VALUES ($1, $2, $3, $4)`,
			key, profile, attr, value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "attribute insert failed")
		}
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO um_user_roles (username, role_name)
			 SELECT $1, role_name FROM um_roles WHERE lower(role_name) = lower($2)`,
			key, role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "role assignment failed")
		}
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "commit failed")
	}
	return nil
}

func (s *Store) DoUpdateCredential(ctx context.Context, username string, newCredential, oldCredential *secrets.Secret) error {
	ok, err := s.DoAuthenticate(ctx, username, oldCredential)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeAuthentication, "old credential does not match")
	}
	return s.DoUpdateCredentialByAdmin(ctx, username, newCredential)
}

func (s *Store) DoUpdateCredentialByAdmin(ctx context.Context, username string, newCredential *secrets.Secret) error {
	hash, err := secrets.Hash(newCredential)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE um_users SET credential_hash = $2 WHERE username = $1`, s.key(username), hash)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "credential update failed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	return nil
}

func (s *Store) DoDeleteUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM um_users WHERE username = $1`, s.key(username))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "user delete failed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "user %s does not exist", username)
	}
	return nil
}

func (s *Store) DoSetUserClaimValue(ctx context.Context, username, attribute, value, profile string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO um_user_attributes (username, profile, attribute, value) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (username, profile, attribute) DO UPDATE SET value = EXCLUDED.value`,
		s.key(username), profile, attribute, value)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "attribute write failed")
	}
	return nil
}

func (s *Store) DoSetUserClaimValues(ctx context.Context, username string, attributes map[string]string, profile string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "begin failed")
	}
	defer tx.Rollback()
	for attr, value := range attributes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO um_user_attributes (username, profile, attribute, value) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (username, profile, attribute) DO UPDATE SET value = EXCLUDED.value`,
			s.key(username), profile, attr, value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "attribute write failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "commit failed")
	}
	return nil
}

func (s *Store) DoDeleteUserClaimValue(ctx context.Context, username, attribute, profile string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM um_user_attributes WHERE username = $1 AND profile = $2 AND attribute = $3`,
		s.key(username), profile, attribute)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "attribute delete failed")
	}
	return nil
}

func (s *Store) DoDeleteUserClaimValues(ctx context.Context, username string, attributes []string, profile string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM um_user_attributes WHERE username = $1 AND profile = $2 AND attribute = ANY($3)`,
		s.key(username), profile, pq.Array(attributes))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "attribute delete failed")
	}
	return nil
}

func (s *Store) GetUserPropertyValues(ctx context.Context, username string, attributes []string, profile string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attribute, value FROM um_user_attributes
		 WHERE username = $1 AND profile = $2 AND attribute = ANY($3)`,
		s.key(username), profile, pq.Array(attributes))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "attribute read failed")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var attr, value string
		if err := rows.Scan(&attr, &value); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "attribute scan failed")
		}
		out[attr] = value
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "attribute read failed")
	}
	return out, nil
}

func (s *Store) DoAddRole(ctx context.Context, role string, members []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "begin failed")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO um_roles (role_name) VALUES ($1)`, role); err != nil {
		if isUniqueViolation(err) {
			return dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", role)
		}
		return dErrors.Wrap(err, dErrors.CodeDownstream, "role insert failed")
	}
	for _, member := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO um_user_roles (username, role_name) VALUES ($1, $2)`,
			s.key(member), role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "member insert failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "commit failed")
	}
	return nil
}

func (s *Store) DoDeleteRole(ctx context.Context, role string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM um_roles WHERE lower(role_name) = lower($1)`, role)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "role delete failed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", role)
	}
	return nil
}

func (s *Store) DoUpdateRoleName(ctx context.Context, oldName, newName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE um_roles SET role_name = $2 WHERE lower(role_name) = lower($1)`, oldName, newName)
	if err != nil {
		if isUniqueViolation(err) {
			return dErrors.New(dErrors.CodeAlreadyExists, "role %s already exists", newName)
		}
		return dErrors.Wrap(err, dErrors.CodeDownstream, "role rename failed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "role %s does not exist", oldName)
	}
	return nil
}

func (s *Store) DoGetRoleNames(ctx context.Context, filter string, limit int) ([]string, error) {
	query := `SELECT role_name FROM um_roles WHERE role_name ILIKE $1 ORDER BY role_name`
	args := []any{likePattern(filter)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryNames(ctx, query, args...)
}

func (s *Store) DoCheckIsUserInRole(ctx context.Context, username, role string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM um_user_roles WHERE username = $1 AND lower(role_name) = lower($2))`,
		s.key(username), role).Scan(&exists)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeDownstream, "membership lookup failed")
	}
	return exists, nil
}

func (s *Store) DoGetUserListOfRole(ctx context.Context, role string) ([]string, error) {
	return s.queryNames(ctx,
		`SELECT username FROM um_user_roles WHERE lower(role_name) = lower($1) ORDER BY username`, role)
}

func (s *Store) DoGetExternalRoleListOfUser(ctx context.Context, username string) ([]string, error) {
	return s.queryNames(ctx,
		`SELECT role_name FROM um_user_roles WHERE username = $1 ORDER BY role_name`, s.key(username))
}

func (s *Store) DoGetSharedRoleListOfUser(ctx context.Context, username, tenantDomain, filter string) ([]string, error) {
	return s.queryNames(ctx,
		`SELECT role_name FROM um_shared_roles
		 WHERE username = $1 AND tenant_domain = $2 AND role_name ILIKE $3 ORDER BY role_name`,
		s.key(username), tenantDomain, likePattern(filter))
}

func (s *Store) DoUpdateUserListOfRole(ctx context.Context, role string, deleted, added []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "begin failed")
	}
	defer tx.Rollback()

	for _, member := range deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM um_user_roles WHERE username = $1 AND lower(role_name) = lower($2)`,
			s.key(member), role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "member delete failed")
		}
	}
	for _, member := range added {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO um_user_roles (username, role_name)
			 SELECT $1, role_name FROM um_roles WHERE lower(role_name) = lower($2)
			 ON CONFLICT DO NOTHING`,
			s.key(member), role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "member insert failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "commit failed")
	}
	return nil
}

func (s *Store) DoUpdateRoleListOfUser(ctx context.Context, username string, deleted, added []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "begin failed")
	}
	defer tx.Rollback()

	key := s.key(username)
	for _, role := range deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM um_user_roles WHERE username = $1 AND lower(role_name) = lower($2)`,
			key, role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "role removal failed")
		}
	}
	for _, role := range added {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO um_user_roles (username, role_name)
			 SELECT $1, role_name FROM um_roles WHERE lower(role_name) = lower($2)
			 ON CONFLICT DO NOTHING`,
			key, role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeDownstream, "role assignment failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "commit failed")
	}
	return nil
}

func (s *Store) DoListUsers(ctx context.Context, filter string, limit int) ([]string, error) {
	query := `SELECT username FROM um_users WHERE username ILIKE $1 ORDER BY username`
	args := []any{likePattern(filter)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryNames(ctx, query, args...)
}

func (s *Store) DoGetUserList(ctx context.Context, attribute, value, profile string, limit int) ([]string, error) {
	query := `SELECT username FROM um_user_attributes
		WHERE profile = $1 AND attribute = $2 AND value ILIKE $3 ORDER BY username`
	args := []any{profile, attribute, likePattern(value)}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	return s.queryNames(ctx, query, args...)
}

func (s *Store) DoGetPaginatedUserList(ctx context.Context, attribute, value, profile string, limit, offset int) (userstore.PaginatedResult, error) {
	names, err := s.queryNames(ctx,
		`SELECT username FROM um_user_attributes
		 WHERE profile = $1 AND attribute = $2 AND value ILIKE $3
		 ORDER BY username LIMIT $4 OFFSET $5`,
		profile, attribute, likePattern(value), limit, offset)
	if err != nil {
		return userstore.PaginatedResult{}, err
	}
	// The predicate is evaluated natively, so the only rows passed over are
	// the offset window itself.
	return userstore.PaginatedResult{Names: names, SkippedCount: offset}, nil
}

func (s *Store) DoListPaginatedUsers(ctx context.Context, filter string, limit, offset int) (userstore.PaginatedResult, error) {
	names, err := s.queryNames(ctx,
		`SELECT username FROM um_users WHERE username ILIKE $1
		 ORDER BY username LIMIT $2 OFFSET $3`,
		likePattern(filter), limit, offset)
	if err != nil {
		return userstore.PaginatedResult{}, err
	}
	return userstore.PaginatedResult{Names: names, SkippedCount: offset}, nil
}

func (s *Store) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "query failed")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "scan failed")
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDownstream, "query failed")
	}
	return out, nil
}
