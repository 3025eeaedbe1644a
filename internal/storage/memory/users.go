package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/adanyl0v/go-todo-share/internal/models"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

var _ services.UserStore = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user *models.User) error {
	email := strings.ToLower(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return models.ErrUserAlreadyExists
	}
	if _, ok := s.byID[user.ID]; ok {
		return models.ErrUserAlreadyExists
	}
	stored := *user
	s.byID[user.ID] = &stored
	s.byEmail[email] = user.ID
	return nil
}

func (s *UserStore) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	found := *user
	return &found, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return s.GetUserByID(ctx, userID)
}
