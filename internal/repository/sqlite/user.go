package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/support-desk/internal/apperror"
	"github.com/sakif/support-desk/internal/model"
)

const userColumns = `id, auth0_id, email, username, name, roles, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u       model.User
		subject sql.NullString
		name    sql.NullString
		roles   string
	)
	if err := row.Scan(&u.ID, &subject, &u.Email, &u.Username, &name, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Subject = subject.String
	u.Name = stringPtr(name)
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, fmt.Errorf("decoding roles of user %d: %w", u.ID, err)
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return &u, nil
}

func encodeRoles(roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	b, err := json.Marshal(roles)
	return string(b), err
}

// subjects are stored NULL when empty so several unlinked users can coexist
// under the UNIQUE constraint.
func nullSubject(subject string) sql.NullString {
	return sql.NullString{String: subject, Valid: subject != ""}
}

func (q *queries) getUser(ctx context.Context, where string, arg any, label string) (*model.User, error) {
	u, err := scanUser(q.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("User", label)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", label, err)
	}
	return u, nil
}

func (q *queries) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return q.getUser(ctx, "id = ?", id, strconv.FormatInt(id, 10))
}

func (q *queries) GetUserBySubject(ctx context.Context, subject string) (*model.User, error) {
	return q.getUser(ctx, "auth0_id = ?", subject, subject)
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return q.getUser(ctx, "email = ?", email, email)
}

func (q *queries) EmailInUse(ctx context.Context, email string, exceptID int64) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`, email, exceptID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking email: %w", err)
	}
	return n > 0, nil
}

func (q *queries) CreateUser(ctx context.Context, u *model.User) error {
	roles, err := encodeRoles(u.Roles)
	if err != nil {
		return fmt.Errorf("sqlite: encoding roles: %w", err)
	}

	now := time.Now().UTC()
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO users (auth0_id, email, username, name, roles, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullSubject(u.Subject), u.Email, u.Username, nullString(u.Name), roles, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", u.Email)
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Roles == nil {
		u.Roles = []string{}
	}
	return nil
}

func (q *queries) UpdateUser(ctx context.Context, u *model.User) error {
	roles, err := encodeRoles(u.Roles)
	if err != nil {
		return fmt.Errorf("sqlite: encoding roles: %w", err)
	}

	now := time.Now().UTC()
	res, err := q.q.ExecContext(ctx,
		`UPDATE users SET auth0_id = ?, email = ?, username = ?, name = ?, roles = ?, updated_at = ?
		 WHERE id = ?`,
		nullSubject(u.Subject), u.Email, u.Username, nullString(u.Name), roles, now, u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", u.Email)
		}
		return fmt.Errorf("sqlite: updating user %d: %w", u.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("User", strconv.FormatInt(u.ID, 10))
	}
	u.UpdatedAt = now
	return nil
}
