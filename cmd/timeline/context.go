package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lifestory/internal/api"
	"lifestory/internal/config"
	"lifestory/internal/database"
	"lifestory/internal/domain"
	"lifestory/internal/logging"
	"lifestory/internal/repository"
	"lifestory/internal/timeline"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const defaultConfigPath = "configs/config.yaml"

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zerolog.Logger
	logCloser  io.Closer
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once. Without an explicit path a
// missing default file falls back to built-in defaults.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		explicit := path != ""
		if !explicit {
			path = os.Getenv("CONFIG_PATH")
			explicit = path != ""
		}
		if !explicit {
			path = defaultConfigPath
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				c.config = config.Default()
				return
			}
		}

		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*zerolog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, closer, err := logging.New(cfg.Logging, cfg.App)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
		c.logCloser = closer
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

// session is an open timeline store holding the process lock.
type session struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	store   *timeline.Store
	lock    *flock.Flock
	closers []func() error
}

// openSession acquires the data directory lock, opens the configured
// storage backend and loads the timeline.
func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lockPath := filepath.Join(cfg.App.DataDir, "timeline.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("timeline is in use by another process (lock %s)", lockPath)
	}

	sess := &session{cfg: cfg, logger: logger, lock: lock}
	kv, err := sess.openKV(ctx)
	if err != nil {
		sess.Close()
		return nil, err
	}

	store, err := timeline.NewStore(timeline.Deps{
		KV:       kv,
		Uploader: api.NewUploadClient(cfg.API),
		Logger:   logger,
	}, timeline.OptionsFromConfig(cfg))
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.store = store
	store.Init(ctx)
	return sess, nil
}

func (s *session) openKV(ctx context.Context) (domain.KVStore, error) {
	cfg := s.cfg
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		client := repository.NewRedisClient(cfg.Redis)
		s.closers = append(s.closers, client.Close)
		var kv domain.KVStore = repository.NewRedisKVStore(client, cfg.Storage.KeyPrefix, 0)
		if err := repository.Ping(ctx, client); err != nil {
			if !cfg.Storage.Failover {
				return nil, fmt.Errorf("connect redis: %w", err)
			}
			s.logger.Warn().Err(err).Msg("redis unavailable, serving from memory until it recovers")
		}
		if cfg.Storage.Failover {
			kv = repository.NewFailoverKVStore(kv, repository.NewMemoryKVStore(), s.logger)
		}
		return kv, nil
	case config.StorageSQLite:
		db, err := database.NewDB(cfg.Database.Path, s.logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		return database.NewKVStore(db, cfg.Storage.KeyPrefix), nil
	case config.StorageMemory:
		s.logger.Warn().Msg("memory storage does not survive restarts")
		return repository.NewMemoryKVStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (s *session) Close() {
	if s.store != nil {
		s.store.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn().Err(err).Msg("close storage")
		}
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release timeline lock")
	}
}
