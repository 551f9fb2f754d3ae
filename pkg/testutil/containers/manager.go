//go:build integration

// Package containers manages shared test containers for integration tests.
// Containers are started once per test binary and reused across suites; Ryuk
// terminates them when the binary exits.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out singleton containers so suites share one Postgres and one
// Redis instance instead of paying startup cost per suite.
type Manager struct {
	pgOnce    sync.Once
	postgres  *PostgresContainer
	redisOnce sync.Once
	redis     *RedisContainer
}

var manager = &Manager{}

func GetManager() *Manager { return manager }

// GetPostgres returns the shared Postgres container, starting it on first use.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.pgOnce.Do(func() {
		m.postgres = newPostgresContainer(t)
	})
	return m.postgres
}

// GetRedis returns the shared Redis container, starting it on first use.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() {
		m.redis = newRedisContainer(t)
	})
	return m.redis
}
