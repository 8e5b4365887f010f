package store_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/ethpandaops/circleboard/pkg/store"
)

type document struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`
	Entries []string `json:"entries"`
}

func setupTestStore(t *testing.T, cfg *config.StorageConfig) store.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func storageConfigs(t *testing.T) map[string]*config.StorageConfig {
	t.Helper()

	configs := make(map[string]*config.StorageConfig, 6)

	for _, mode := range []string{config.ModeDevelopment, config.ModeProduction} {
		configs["memory/"+mode] = &config.StorageConfig{
			Driver: "memory",
			Mode:   mode,
		}
		configs["sqlite/"+mode] = &config.StorageConfig{
			Driver: "sqlite",
			Mode:   mode,
			SQLite: config.SQLiteConfig{Path: ":memory:"},
		}
		configs["file/"+mode] = &config.StorageConfig{
			Driver: "file",
			Mode:   mode,
			File:   config.FileStorageConfig{Dir: t.TempDir()},
		}
	}

	return configs
}

func TestStore_PersistAndLoad(t *testing.T) {
	for name, cfg := range storageConfigs(t) {
		t.Run(name, func(t *testing.T) {
			s := setupTestStore(t, cfg)
			ctx := context.Background()

			key := "project-data/github/ethpandaops/dashboard"
			in := document{Name: "dashboard", Count: 3, Entries: []string{"a", "b"}}

			require.NoError(t, s.Persist(ctx, key, in))

			var out document

			found, err := s.Load(ctx, key, &out)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, in, out)
		})
	}
}

func TestStore_LoadMissing(t *testing.T) {
	for name, cfg := range storageConfigs(t) {
		t.Run(name, func(t *testing.T) {
			s := setupTestStore(t, cfg)

			var out document

			found, err := s.Load(context.Background(), "projects", &out)
			require.NoError(t, err)
			assert.False(t, found)
			assert.Equal(t, document{}, out)
		})
	}
}

func TestStore_PersistReplacesValue(t *testing.T) {
	for name, cfg := range storageConfigs(t) {
		t.Run(name, func(t *testing.T) {
			s := setupTestStore(t, cfg)
			ctx := context.Background()

			require.NoError(t, s.Persist(ctx, "projects", document{Name: "first", Entries: []string{"x"}}))
			require.NoError(t, s.Persist(ctx, "projects", document{Name: "second"}))

			var out document

			found, err := s.Load(ctx, "projects", &out)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "second", out.Name)
			assert.Empty(t, out.Entries)
		})
	}
}

func TestStore_KeysDoNotCollide(t *testing.T) {
	s := setupTestStore(t, &config.StorageConfig{
		Driver: "sqlite",
		Mode:   config.ModeDevelopment,
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})
	ctx := context.Background()

	require.NoError(t, s.Persist(ctx, "project-data/github/org/a", document{Name: "a"}))
	require.NoError(t, s.Persist(ctx, "project-data/github/org/b", document{Name: "b"}))

	var a, b document

	_, err := s.Load(ctx, "project-data/github/org/a", &a)
	require.NoError(t, err)

	_, err = s.Load(ctx, "project-data/github/org/b", &b)
	require.NoError(t, err)

	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "b", b.Name)
}

func TestStore_ValueTooLarge(t *testing.T) {
	s := setupTestStore(t, &config.StorageConfig{
		Driver:       "memory",
		Mode:         config.ModeDevelopment,
		MaxValueSize: "64B",
	})
	ctx := context.Background()

	big := document{Name: "big", Entries: make([]string, 50)}

	err := s.Persist(ctx, "projects", big)
	require.ErrorIs(t, err, store.ErrValueTooLarge)

	var out document

	found, err := s.Load(ctx, "projects", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Persist(ctx, "projects", document{Name: "ok"}))
}

func TestStore_FileLayout(t *testing.T) {
	key := "project-data/github/org/repo"

	t.Run("development stores plain json", func(t *testing.T) {
		dir := t.TempDir()
		s := setupTestStore(t, &config.StorageConfig{
			Driver: "file",
			Mode:   config.ModeDevelopment,
			File:   config.FileStorageConfig{Dir: dir},
		})

		require.NoError(t, s.Persist(context.Background(), key, document{Name: "repo"}))

		data, err := os.ReadFile(filepath.Join(dir, "project-data", "github", "org", "repo"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"repo","count":0,"entries":null}`, string(data))
	})

	t.Run("production obfuscates key and value", func(t *testing.T) {
		dir := t.TempDir()
		s := setupTestStore(t, &config.StorageConfig{
			Driver: "file",
			Mode:   config.ModeProduction,
			File:   config.FileStorageConfig{Dir: dir},
		})

		require.NoError(t, s.Persist(context.Background(), key, document{Name: "repo"}))

		encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))

		data, err := os.ReadFile(filepath.Join(dir, encodedKey))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "repo")

		decoded, err := base64.StdEncoding.DecodeString(string(data))
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"repo","count":0,"entries":null}`, string(decoded))
	})
}

func TestStore_StartErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.StorageConfig
	}{
		{
			name: "unknown driver",
			cfg:  &config.StorageConfig{Driver: "redis", Mode: config.ModeDevelopment},
		},
		{
			name: "unknown mode",
			cfg:  &config.StorageConfig{Driver: "memory", Mode: "staging"},
		},
		{
			name: "bad max value size",
			cfg:  &config.StorageConfig{Driver: "memory", Mode: config.ModeDevelopment, MaxValueSize: "lots"},
		},
		{
			name: "s3 without settings",
			cfg:  &config.StorageConfig{Driver: "s3", Mode: config.ModeDevelopment},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewStore(logrus.New(), tt.cfg)
			require.Error(t, s.Start(context.Background()))
			assert.NoError(t, s.Stop())
		})
	}
}
