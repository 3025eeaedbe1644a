package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-share/internal/models"
)

type identityServiceImpl struct {
	logger  zerolog.Logger
	users   UserStore
	byID    *lru.Cache[string, *models.User]
	byEmail *lru.Cache[string, string]
}

// NewIdentityService caches up to cacheSize users. Misses are not cached,
// so a user registered after a failed lookup is found on the next call.
func NewIdentityService(
	logger zerolog.Logger,
	users UserStore,
	cacheSize int,
) (IdentityService, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	byID, err := lru.New[string, *models.User](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	byEmail, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create email cache: %w", err)
	}
	return &identityServiceImpl{
		logger:  logger,
		users:   users,
		byID:    byID,
		byEmail: byEmail,
	}, nil
}

func (s *identityServiceImpl) ResolveID(ctx context.Context, userID string) (*models.User, error) {
	if user, ok := s.byID.Get(userID); ok {
		return cloneUser(user), nil
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			s.logger.Error().
				Err(err).
				Str("user_id", userID).
				Msg("failed to select user by id")
		}
		return nil, err
	}
	s.remember(user)
	return user, nil
}

func (s *identityServiceImpl) ResolveEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if userID, ok := s.byEmail.Get(email); ok {
		if user, ok := s.byID.Get(userID); ok {
			return cloneUser(user), nil
		}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrUserNotFound) {
			s.logger.Error().
				Err(err).
				Str("email", email).
				Msg("failed to select user by email")
		}
		return nil, err
	}
	s.remember(user)
	return user, nil
}

func (s *identityServiceImpl) Summaries(ctx context.Context, userIDs []string) (map[string]models.UserSummary, error) {
	summaries := make(map[string]models.UserSummary, len(userIDs))
	for _, userID := range userIDs {
		user, err := s.ResolveID(ctx, userID)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				s.logger.Warn().
					Str("user_id", userID).
					Msg("dangling user reference")
				continue
			}
			return nil, err
		}
		summaries[userID] = user.Summary()
	}
	return summaries, nil
}

// remember caches a copy so callers never share the cached user.
func (s *identityServiceImpl) remember(user *models.User) {
	s.byID.Add(user.ID, cloneUser(user))
	s.byEmail.Add(normalizeEmail(user.Email), user.ID)
}

func cloneUser(user *models.User) *models.User {
	clone := *user
	return &clone
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
