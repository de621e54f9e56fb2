package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBills struct{ refreshed, rolled, reminded int }

func (f *fakeBills) RefreshStatuses(context.Context) (int, error) { f.refreshed++; return 1, nil }
func (f *fakeBills) RollRecurringBills(context.Context) (int, error) {
	f.rolled++
	return 0, errors.New("db down")
}
func (f *fakeBills) SendDueReminders(context.Context) (int, error) { f.reminded++; return 2, nil }

type fakeStatements struct{ months []time.Time }

func (f *fakeStatements) GenerateMonthlyStatements(_ context.Context, month time.Time) (int, error) {
	f.months = append(f.months, month)
	return 3, nil
}

type fakeLogs struct{ flushed int }

func (f *fakeLogs) Flush(context.Context) (int, error) { f.flushed++; return 0, nil }

func TestRegisterOptionalJobs(t *testing.T) {
	tests := []struct {
		name    string
		logs    ActivityLogs
		archive func(context.Context) error
		want    int
	}{
		{"billing and statements only", nil, nil, 4},
		{"with log flushing", &fakeLogs{}, nil, 5},
		{"with log archiving", &fakeLogs{}, func(context.Context) error { return nil }, 6},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := New(time.UTC, &fakeBills{}, &fakeStatements{}, tc.logs, tc.archive)
			require.NoError(t, s.Register())
			assert.Equal(t, tc.want, s.Entries())
		})
	}
}

func TestLastMonthStatements(t *testing.T) {
	bangkok := time.FixedZone("ICT", 7*3600)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"end of march", time.Date(2025, 3, 31, 23, 0, 0, 0, bangkok), time.Date(2025, 2, 1, 0, 0, 0, 0, bangkok)},
		{"first of january", time.Date(2026, 1, 1, 1, 30, 0, 0, bangkok), time.Date(2025, 12, 1, 0, 0, 0, 0, bangkok)},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			stmts := &fakeStatements{}
			s := New(bangkok, &fakeBills{}, stmts, nil, nil)
			s.now = func() time.Time { return tc.now }

			n, err := s.lastMonthStatements(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			require.Len(t, stmts.months, 1)
			assert.True(t, tc.want.Equal(stmts.months[0]), "got %s", stmts.months[0])
		})
	}
}

func TestWrapRunsJobsAndSwallowsErrors(t *testing.T) {
	bills := &fakeBills{}
	logs := &fakeLogs{}
	archived := 0
	s := New(time.UTC, bills, &fakeStatements{}, logs, func(context.Context) error {
		archived++
		return errors.New("no bucket")
	})

	for _, j := range s.jobs() {
		s.wrap(j.name, j.run)()
	}
	assert.Equal(t, 1, bills.refreshed)
	assert.Equal(t, 1, bills.rolled)
	assert.Equal(t, 1, bills.reminded)
	assert.Equal(t, 1, logs.flushed)
	assert.Equal(t, 1, archived)
}

func TestStartStopsWithContext(t *testing.T) {
	s := New(time.UTC, &fakeBills{}, &fakeStatements{}, nil, nil)
	require.NoError(t, s.Register())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()
	assert.Equal(t, 4, s.Entries())
}
