package services

import (
	"context"
	"sync"

	"github.com/markdave123-py/Cadence/internal/core"
)

// UserService resolves a user's tenant through the elevated lookup and
// caches the answer for the process lifetime.
type UserService struct {
	db    core.UserStore
	cache sync.Map
}

func NewUserService(db core.UserStore) *UserService {
	return &UserService{db: db}
}

func (s *UserService) ResolveTenant(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", core.ErrUnauthorized
	}
	if v, ok := s.cache.Load(userID); ok {
		return v.(string), nil
	}
	tenantID, err := s.db.GetUserTenant(ctx, userID)
	if err != nil {
		return "", err
	}
	s.cache.Store(userID, tenantID)
	return tenantID, nil
}
