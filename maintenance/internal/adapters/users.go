package adapters

import (
	"context"
	"time"

	"smart-campus-maintenance/maintenance/internal/engine"
	"smart-campus-maintenance/maintenance/internal/models"
	"smart-campus-maintenance/shared/cachex"
)

const (
	usersKeyPrefix  = "maintenance:users:role:"
	DefaultUsersTTL = time.Minute
)

var _ engine.Store = (*RoleCachedStore)(nil)

// RoleCachedStore serves ListUsersByRole from redis for a short time. Sweeps
// notify the same admins and wardens for every flagged item, and the roster
// changes far less often than a sweep runs. Cache errors fall through to the
// wrapped store.
type RoleCachedStore struct {
	engine.Store
	cache *cachex.Client
	ttl   time.Duration
}

func NewRoleCachedStore(store engine.Store, cache *cachex.Client, ttl time.Duration) *RoleCachedStore {
	if ttl <= 0 {
		ttl = DefaultUsersTTL
	}
	return &RoleCachedStore{Store: store, cache: cache, ttl: ttl}
}

func (s *RoleCachedStore) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	key := usersKeyPrefix + string(role)
	var users []models.User
	if ok, err := s.cache.GetJSON(ctx, key, &users); err == nil && ok {
		return users, nil
	}
	users, err := s.Store.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJSON(ctx, key, users, s.ttl)
	return users, nil
}
