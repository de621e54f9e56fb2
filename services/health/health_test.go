package health

import (
	"context"
	"net/http"
	"testing"
	"time"

	"shortstacks/database/testdb"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounter int

func (c staticCounter) GetClientCount() int { return int(c) }

func dependency(t *testing.T, r Report, name string) Dependency {
	t.Helper()
	for _, d := range r.Dependencies {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("dependency %s missing", name)
	return Dependency{}
}

func TestReport(t *testing.T) {
	db := testdb.New(t)
	unreachable := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = unreachable.Close() })

	tests := []struct {
		name       string
		svc        *Service
		status     string
		redis      string
		storage    string
		httpStatus int
	}{
		{
			name:       "redis optional and absent",
			svc:        NewService(db, nil, staticCounter(3), Options{Environment: "test", StorageReady: true}),
			status:     StatusOK,
			redis:      depDisabled,
			storage:    depUp,
			httpStatus: http.StatusOK,
		},
		{
			name:       "redis required but absent",
			svc:        NewService(db, nil, nil, Options{RedisRequired: true}),
			status:     StatusDegraded,
			redis:      depDown,
			storage:    depDisabled,
			httpStatus: http.StatusOK,
		},
		{
			name:       "redis unreachable",
			svc:        NewService(db, unreachable, nil, Options{}),
			status:     StatusDegraded,
			redis:      depDown,
			storage:    depDisabled,
			httpStatus: http.StatusOK,
		},
		{
			name:       "no database",
			svc:        NewService(nil, nil, nil, Options{}),
			status:     StatusCritical,
			redis:      depDisabled,
			storage:    depDisabled,
			httpStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := tc.svc.Report(context.Background())
			assert.Equal(t, tc.status, r.Status)
			assert.Equal(t, tc.redis, dependency(t, r, "redis").Status)
			assert.Equal(t, tc.storage, dependency(t, r, "s3").Status)
			assert.Equal(t, tc.httpStatus, HTTPStatus(r.Status))
			assert.Equal(t, "ShortStacks API", r.Service)
			assert.Equal(t, "1.0.0", r.Version)
		})
	}

	r := NewService(db, nil, staticCounter(3), Options{}).Report(context.Background())
	assert.Equal(t, 3, r.Runtime.WSClients)
	assert.Equal(t, depUp, dependency(t, r, "database").Status)
	assert.Equal(t, "sqlite", dependency(t, r, "database").Details["dialect"])
}

func TestHumanizeDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "2s"},
		{time.Hour, "1h"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, humanizeDuration(tc.in))
	}
}

func TestCombineStatus(t *testing.T) {
	assert.Equal(t, StatusDegraded, combineStatus(StatusOK, StatusDegraded))
	assert.Equal(t, StatusCritical, combineStatus(StatusCritical, StatusOK))
	require.Equal(t, StatusOK, combineStatus(StatusOK, StatusOK))
}
