package user

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	var id int
	query := "INSERT INTO users (username, email, password) VALUES ($1, $2, $3) RETURNING id"

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.Password).Scan(&id)
	if err != nil {
		return nil, err
	}

	user.ID = id
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, email, password, is_online, last_seen FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.IsOnline, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := "SELECT id, username, email, password, is_online, last_seen FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.IsOnline, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return u, nil
}

// ListUsers returns everyone except the caller, online users first,
// most recently seen first within each group.
func (r *Repository) ListUsers(ctx context.Context, excludeID int) ([]User, error) {
	q := `SELECT id, username, email, is_online, last_seen
	      FROM users
	      WHERE id <> $1
	      ORDER BY is_online DESC, last_seen DESC`
	rows, err := r.db.QueryContext(ctx, q, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetOnline flips the persisted presence flag and stamps last_seen.
// Only the presence connect/disconnect transitions call this.
func (r *Repository) SetOnline(ctx context.Context, id int, online bool, seen time.Time) error {
	query := "UPDATE users SET is_online = $2, last_seen = $3 WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, id, online, seen)
	return err
}
