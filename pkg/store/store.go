package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/docker/go-units"
	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/sirupsen/logrus"
)

// ErrValueTooLarge is returned when an encoded value exceeds the configured
// maximum value size.
var ErrValueTooLarge = errors.New("value too large")

// Store is a key-value space holding whole JSON documents. Writes replace
// the previous value of a key entirely.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Persist serializes value and stores it under key.
	Persist(ctx context.Context, key string, value any) error
	// Load decodes the value stored under key into out. It reports false
	// without error when the key has never been written.
	Load(ctx context.Context, key string, out any) (bool, error)
}

// backend stores opaque encoded values under encoded keys.
type backend interface {
	start(ctx context.Context) error
	stop() error
	// get returns (nil, nil) when the key does not exist.
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log          logrus.FieldLogger
	cfg          *config.StorageConfig
	codec        codec
	backend      backend
	maxValueSize int64
}

// NewStore creates a new Store backed by the configured driver. The
// backend is opened by Start.
func NewStore(log logrus.FieldLogger, cfg *config.StorageConfig) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start resolves the codec and size limit and opens the backend.
func (s *store) Start(ctx context.Context) error {
	c, err := newCodec(s.cfg.Mode)
	if err != nil {
		return err
	}

	s.codec = c

	if s.cfg.MaxValueSize != "" {
		size, err := units.FromHumanSize(s.cfg.MaxValueSize)
		if err != nil {
			return fmt.Errorf("parsing max value size %q: %w", s.cfg.MaxValueSize, err)
		}

		s.maxValueSize = size
	}

	switch s.cfg.Driver {
	case "sqlite", "postgres":
		s.backend = newDBBackend(s.log, s.cfg)
	case "file":
		s.backend = newFileBackend(s.cfg.File.Dir)
	case "s3":
		if s.cfg.S3 == nil {
			return fmt.Errorf("s3 storage selected without s3 settings")
		}

		s.backend = newS3Backend(s.log, s.cfg.S3)
	case "memory":
		s.backend = newMemoryBackend()
	default:
		return fmt.Errorf("unsupported storage driver: %s", s.cfg.Driver)
	}

	if err := s.backend.start(ctx); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"driver":         s.cfg.Driver,
		"mode":           s.cfg.Mode,
		"max_value_size": units.HumanSize(float64(s.maxValueSize)),
	}).Info("Store started")

	return nil
}

// Stop closes the backend.
func (s *store) Stop() error {
	if s.backend == nil {
		return nil
	}

	return s.backend.stop()
}

func (s *store) Persist(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	encoded := s.codec.encodeValue(raw)

	if s.maxValueSize > 0 && int64(len(encoded)) > s.maxValueSize {
		return fmt.Errorf("%w: %s is %s, limit is %s",
			ErrValueTooLarge,
			key,
			units.HumanSize(float64(len(encoded))),
			units.HumanSize(float64(s.maxValueSize)),
		)
	}

	if err := s.backend.put(ctx, s.codec.encodeKey(key), encoded); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":  key,
		"size": units.HumanSize(float64(len(encoded))),
	}).Debug("Persisted value")

	return nil
}

func (s *store) Load(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.backend.get(ctx, s.codec.encodeKey(key))
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}

	if data == nil {
		return false, nil
	}

	raw, err := s.codec.decodeValue(data)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", key, err)
	}

	return true, nil
}
