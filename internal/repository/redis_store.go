package repository

import (
	"context"
	"errors"
	"fmt"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/pkg/cache"
)

// Record keys under the shared Redis prefix. Records are written by the
// excluded web and provisioning layers; this side mostly reads.
const (
	keyAdminCredential = "credential:admin"
	keyInstanceFmt     = "instance:%d"
	keyUserFmt         = "user:%d"
)

// RedisCredentialStore persists the admin credential set.
type RedisCredentialStore struct {
	cache cache.Service
}

var _ repository.CredentialStore = (*RedisCredentialStore)(nil)

func NewRedisCredentialStore(c cache.Service) *RedisCredentialStore {
	return &RedisCredentialStore{cache: c}
}

func (s *RedisCredentialStore) ActiveAdmin(ctx context.Context) (*models.Credential, error) {
	var cred models.Credential
	if err := s.cache.Get(ctx, keyAdminCredential, &cred); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("load admin credential: %w", err)
	}
	return &cred, nil
}

func (s *RedisCredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	if err := s.cache.Set(ctx, keyAdminCredential, cred, 0); err != nil {
		return fmt.Errorf("save admin credential: %w", err)
	}
	return nil
}

// RedisInstanceStore reads and flags strategy instance records.
type RedisInstanceStore struct {
	cache cache.Service
}

var _ repository.InstanceStore = (*RedisInstanceStore)(nil)

func NewRedisInstanceStore(c cache.Service) *RedisInstanceStore {
	return &RedisInstanceStore{cache: c}
}

func (s *RedisInstanceStore) Get(ctx context.Context, id int64) (*models.Instance, error) {
	var inst models.Instance
	if err := s.cache.Get(ctx, fmt.Sprintf(keyInstanceFmt, id), &inst); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("load instance %d: %w", id, err)
	}
	return &inst, nil
}

func (s *RedisInstanceStore) SetActive(ctx context.Context, id int64, active bool, webhookID string) error {
	inst, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	inst.Active = active
	if webhookID != "" {
		inst.WebhookID = webhookID
	}
	if err := s.cache.Set(ctx, fmt.Sprintf(keyInstanceFmt, id), inst, 0); err != nil {
		return fmt.Errorf("save instance %d: %w", id, err)
	}
	return nil
}

// RedisUserStore reads order-gateway account records.
type RedisUserStore struct {
	cache cache.Service
}

var _ repository.UserStore = (*RedisUserStore)(nil)

func NewRedisUserStore(c cache.Service) *RedisUserStore {
	return &RedisUserStore{cache: c}
}

func (s *RedisUserStore) Get(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := s.cache.Get(ctx, fmt.Sprintf(keyUserFmt, id), &user); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}
