package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"lifestory/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverKVStore writes to primary and switches to fallback when primary
// errors. Recovery is attempted once per recoverAfter.
type FailoverKVStore struct {
	primary      domain.KVStore
	fallback     domain.KVStore
	logger       *zerolog.Logger
	recoverAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverKVStore(primary, fallback domain.KVStore, logger *zerolog.Logger) *FailoverKVStore {
	return &FailoverKVStore{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
	}
}

func (r *FailoverKVStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > r.recoverAfter
}

func (r *FailoverKVStore) markDown(err error) {
	if !r.isDown.Load() {
		r.logger.Error().Err(err).Msg("Primary storage failed, falling back to memory")
	}
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverKVStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary storage recovered")
	}
}

func (r *FailoverKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.usePrimary() {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			r.markUp()
			return val, nil
		}
		r.markDown(err)
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverKVStore) Set(ctx context.Context, key string, value []byte) error {
	// Fallback mirrors every write.
	_ = r.fallback.Set(ctx, key, value)

	if r.usePrimary() {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}

	return nil
}

func (r *FailoverKVStore) Delete(ctx context.Context, key string) error {
	_ = r.fallback.Delete(ctx, key)

	if r.usePrimary() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}

	return nil
}
