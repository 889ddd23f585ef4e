package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/lab-inventory/internal/model"
)

// UserRepo owns users, roles and the user_roles association. It is the
// identity store: usernames come from the directory, role assignments are
// purely local. All methods return repository sentinels instead of raw
// driver errors.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// EnsureRoles idempotently seeds the canonical role rows. It must run
// before any role assignment so the user_roles foreign keys resolve.
func (r *UserRepo) EnsureRoles(ctx context.Context) error {
	const q = `INSERT IGNORE INTO roles (name) VALUES (?), (?), (?), (?)`
	_, err := r.DB.ExecContext(ctx, q,
		model.RoleEmployee, model.RoleGestionnaire, model.RoleExpert, model.RoleAdmin)
	return err
}

// CountUsers returns the number of local user records. The service uses it
// to apply the first-user-becomes-admin provisioning rule.
func (r *UserRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// GetByUsername fetches a user by its unique username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name FROM users WHERE username = ? LIMIT 1`,
		username).Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// UserByID fetches a user by primary key.
func (r *UserRepo) UserByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name FROM users WHERE id = ? LIMIT 1`,
		id).Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// ResolveRoles returns the role names assigned to the user, sorted by name.
// It returns ErrNotFound when no user record exists; an existing user with
// an empty role set yields an empty slice.
func (r *UserRepo) ResolveRoles(ctx context.Context, username string) ([]string, error) {
	u, err := r.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	const q = `SELECT r.name
	           FROM user_roles ur
	           JOIN roles r ON r.id = ur.role_id
	           WHERE ur.user_id = ?
	           ORDER BY r.name`
	rows, err := r.DB.QueryContext(ctx, q, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := make([]string, 0, 2)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// UpsertWithRoles creates the user if absent and assigns it exactly the
// given role set, replacing any prior assignment. Role assignment is a
// total overwrite, not additive. Profile arguments backfill empty columns
// only; a populated field is never overwritten. The whole operation runs in
// one transaction and is idempotent.
func (r *UserRepo) UpsertWithRoles(ctx context.Context, username string, roles []string, email, firstName, lastName *string) (model.UserWithRoles, error) {
	for _, name := range roles {
		if !model.IsCanonicalRole(name) {
			return model.UserWithRoles{}, fmt.Errorf("%q: %w", name, ErrUnknownRole)
		}
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.UserWithRoles{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var u model.User
	err = tx.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name FROM users WHERE username = ? FOR UPDATE`,
		username).Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName)
	switch err {
	case sql.ErrNoRows:
		res, insErr := tx.ExecContext(ctx,
			`INSERT INTO users (username, email, first_name, last_name) VALUES (?, ?, ?, ?)`,
			username, email, firstName, lastName)
		if insErr != nil {
			// 1062: concurrent insert won the unique key race.
			if strings.Contains(strings.ToLower(insErr.Error()), "1062") {
				return model.UserWithRoles{}, ErrConflict
			}
			return model.UserWithRoles{}, insErr
		}
		id, idErr := res.LastInsertId()
		if idErr != nil {
			return model.UserWithRoles{}, idErr
		}
		u = model.User{ID: uint64(id), Username: username, Email: email, FirstName: firstName, LastName: lastName}
	case nil:
		if u, err = backfillProfileTx(ctx, tx, u, email, firstName, lastName); err != nil {
			return model.UserWithRoles{}, err
		}
	default:
		return model.UserWithRoles{}, err
	}

	// Replace the role set wholesale: delete then bulk insert by name.
	if _, err = tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, u.ID); err != nil {
		return model.UserWithRoles{}, err
	}
	assigned := dedupe(roles)
	if len(assigned) > 0 {
		query := `INSERT INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE name IN (`
		args := make([]interface{}, 0, len(assigned)+1)
		args = append(args, u.ID)
		for i, name := range assigned {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, name)
		}
		query += ")"
		res, insErr := tx.ExecContext(ctx, query, args...)
		if insErr != nil {
			return model.UserWithRoles{}, insErr
		}
		// Fewer rows than names means a role row is missing (EnsureRoles
		// was skipped); surface it rather than silently dropping roles.
		if n, aErr := res.RowsAffected(); aErr == nil && n != int64(len(assigned)) {
			return model.UserWithRoles{}, fmt.Errorf("role rows missing: %w", ErrUnknownRole)
		}
	}

	if err = tx.Commit(); err != nil {
		return model.UserWithRoles{}, err
	}
	committed = true
	return model.UserWithRoles{User: u, Roles: assigned}, nil
}

// UpdateProfile backfills empty profile columns from the directory profile.
// Populated fields are left untouched.
func (r *UserRepo) UpdateProfile(ctx context.Context, username string, email, firstName, lastName *string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var u model.User
	err = tx.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name FROM users WHERE username = ? FOR UPDATE`,
		username).Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err = backfillProfileTx(ctx, tx, u, email, firstName, lastName); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListWithRoles returns every user with its role names, ordered by username.
// Users without any assignment are included with an empty role slice.
func (r *UserRepo) ListWithRoles(ctx context.Context) ([]model.UserWithRoles, error) {
	const q = `SELECT u.id, u.username, u.email, u.first_name, u.last_name, r.name
	           FROM users u
	           LEFT JOIN user_roles ur ON ur.user_id = u.id
	           LEFT JOIN roles r ON r.id = ur.role_id
	           ORDER BY u.username, r.name`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.UserWithRoles, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var u model.User
		var role sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &role); err != nil {
			return nil, err
		}
		i, ok := index[u.ID]
		if !ok {
			i = len(out)
			index[u.ID] = i
			out = append(out, model.UserWithRoles{User: u, Roles: []string{}})
		}
		if role.Valid {
			out[i].Roles = append(out[i].Roles, role.String)
		}
	}
	return out, rows.Err()
}

// backfillProfileTx writes the given profile values into columns that are
// currently NULL or empty and returns the merged user. No-op when nothing
// needs filling.
func backfillProfileTx(ctx context.Context, tx *sql.Tx, u model.User, email, firstName, lastName *string) (model.User, error) {
	changed := false
	if empty(u.Email) && !empty(email) {
		u.Email = email
		changed = true
	}
	if empty(u.FirstName) && !empty(firstName) {
		u.FirstName = firstName
		changed = true
	}
	if empty(u.LastName) && !empty(lastName) {
		u.LastName = lastName
		changed = true
	}
	if !changed {
		return u, nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET email = ?, first_name = ?, last_name = ? WHERE id = ?`,
		u.Email, u.FirstName, u.LastName, u.ID)
	return u, err
}

func empty(s *string) bool { return s == nil || *s == "" }

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
