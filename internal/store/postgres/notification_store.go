package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var (
	_ domain.NotificationStore = (*NotificationStore)(nil)
	_ domain.UserStore         = (*UserStore)(nil)
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a NotificationStore backed by the given pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Create inserts a notification.
func (s *NotificationStore) Create(ctx context.Context, n domain.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create notification %s: %w", n.ID, err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	query, args := pageClause(
		`SELECT id, user_id, type, title, message, read, created_at FROM notifications WHERE user_id = $1`,
		[]any{userID}, opts, "created_at DESC")

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n   domain.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetByID returns the user with the given id.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, first_name FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}
