// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authcore/internal/observability"
	"github.com/holomush/authcore/internal/store"
)

var settingEnvVars = []string{
	"AUTHCORE_DATABASE_URL", "AUTHCORE_JWT_SECRET", "AUTHCORE_HTTP_ADDR",
	"AUTHCORE_METRICS_ADDR", "AUTHCORE_LOG_FORMAT", "AUTHCORE_LOG_LEVEL",
	"AUTHCORE_BCRYPT_COST", "AUTHCORE_COOKIE_SECURE", "AUTHCORE_CORS_ALLOWED_ORIGINS",
	"AUTHCORE_AUTO_MIGRATE", "AUTHCORE_CONNECT_TIMEOUT", AdminPasswordEnv,
	"DATABASE_URL", "JWT_SECRET",
}

// isolateEnv clears every variable the CLI reads and returns a path to a
// dotenv file that does not exist.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range settingEnvVars {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "missing.env")
}

// execute runs the CLI with deps in a clean environment and returns
// everything it printed.
func execute(ctx context.Context, t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	return executeWithEnv(ctx, t, deps, nil, args...)
}

func executeWithEnv(ctx context.Context, t *testing.T, deps *Deps, env map[string]string, args ...string) (string, error) {
	t.Helper()
	envFile := isolateEnv(t)
	for k, v := range env {
		t.Setenv(k, v)
	}

	cmd := newRootCmd(deps)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--env-file", envFile, "--log-format", "text"}, args...))

	err := cmd.ExecuteContext(ctx)
	slog.SetDefault(slog.New(slog.DiscardHandler))
	return buf.String(), err
}

// mockMigrator implements Migrator for testing.
type mockMigrator struct {
	mu          sync.Mutex
	version     uint
	dirty       bool
	latest      uint
	upCalled    bool
	upError     error
	downCalled  bool
	steps       []int
	forced      []int
	closeCalled bool
}

func (m *mockMigrator) Up() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upCalled = true
	if m.upError != nil {
		return m.upError
	}
	m.version = m.latest
	return nil
}

func (m *mockMigrator) Down() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downCalled = true
	m.version = 0
	return nil
}

func (m *mockMigrator) Steps(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, n)
	m.version = uint(int(m.version) + n)
	return nil
}

func (m *mockMigrator) Version() (uint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.dirty, nil
}

func (m *mockMigrator) Force(v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = append(m.forced, v)
	m.version, m.dirty = uint(v), false
	return nil
}

func (m *mockMigrator) Status() (store.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := store.Status{Version: m.version, Dirty: m.dirty}
	for v := m.version + 1; v <= m.latest; v++ {
		st.Pending = append(st.Pending, v)
	}
	return st, nil
}

func (m *mockMigrator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return nil
}

// mockDatabase implements Database without a real pool.
type mockDatabase struct {
	closed bool
}

func (d *mockDatabase) Pool() *pgxpool.Pool        { return nil }
func (d *mockDatabase) Ping(context.Context) error { return nil }
func (d *mockDatabase) Close()                     { d.closed = true }

// mockObservabilityServer implements ObservabilityServer for testing.
type mockObservabilityServer struct {
	startErr error
	started  bool
	stopped  bool
}

func (s *mockObservabilityServer) Start() (<-chan error, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started = true
	return make(chan error), nil
}

func (s *mockObservabilityServer) Stop(context.Context) error {
	s.stopped = true
	return nil
}

func (s *mockObservabilityServer) Addr() string                    { return "127.0.0.1:0" }
func (s *mockObservabilityServer) Metrics() *observability.Metrics { return nil }

var errConnect = errors.New("connection refused")

func migratorDeps(m *mockMigrator) *Deps {
	return &Deps{
		MigratorFactory: func(string) (Migrator, error) { return m, nil },
	}
}
