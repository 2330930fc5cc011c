package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-location-resolver/config"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForDB(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := &flakyPinger{failures: 2}
	assert.True(t, WaitForDB(context.Background(), p, logger))
	assert.Equal(t, 3, p.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	down := &flakyPinger{failures: 100}
	assert.False(t, WaitForDB(ctx, down, logger))
	assert.Equal(t, 1, down.calls)
}

func TestNewDatabaseConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewDatabaseConfig(&config.Config{}, logger)
	require.Error(t, err)

	var cfg config.Config
	cfg.Repositories.Postgres.Host = "db"
	cfg.Repositories.Postgres.Port = "5432"
	cfg.Repositories.Postgres.Username = "postgres"
	cfg.Repositories.Postgres.Password = "p@ss"
	cfg.Repositories.Postgres.DB = "locations"

	dbCfg, err := NewDatabaseConfig(&cfg, logger)
	require.NoError(t, err)

	u, err := url.Parse(dbCfg.ConnectionURL)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/locations", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestRunMigrations_RejectsScheme(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.Error(t, RunMigrations("mysql://root@localhost/db", logger))
}
