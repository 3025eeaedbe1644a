package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

type UserStore struct {
	logger zerolog.Logger
	pgPool *pgxpool.Pool
}

var _ services.UserStore = (*UserStore)(nil)

func NewUserStore(logger zerolog.Logger, pgPool *pgxpool.Pool) *UserStore {
	return &UserStore{
		logger: logger,
		pgPool: pgPool,
	}
}

func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	const insertUserQuery = `
INSERT INTO users (id, username, email, password, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := s.pgPool.Exec(
		ctx,
		insertUserQuery,
		user.ID,
		user.Username,
		user.Email,
		user.Password,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return models.ErrUserAlreadyExists
		}

		s.logger.Error().
			Err(err).
			Msg("failed to insert user")
		return err
	}
	return nil
}

func (s *UserStore) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	const selectUserByIDQuery = `
SELECT id, username, email, password, created_at, updated_at
FROM users WHERE id = $1
`
	return s.selectUser(ctx, selectUserByIDQuery, userID)
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const selectUserByEmailQuery = `
SELECT id, username, email, password, created_at, updated_at
FROM users WHERE lower(email) = lower($1)
`
	return s.selectUser(ctx, selectUserByEmailQuery, email)
}

func (s *UserStore) selectUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := s.pgPool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Password,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Msg("failed to select user")
		return nil, err
	}
	return &user, nil
}
