//go:build integration

package integration

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/idguard/internal/models"
	"github.com/BradenHooton/idguard/internal/services"
)

func TestUsageMeter_ConcurrentReservationsNeverExceedLimit(t *testing.T) {
	ctx := resetDatabase(t)
	repos := InitializeRepositories(testDB.DB)
	meter := services.NewUsageMeterService(repos.Sessions, 5, quietLogger())

	sessionID := TestSessionID()

	var allowed, exceeded int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := meter.CheckAndReserve(ctx, sessionID)
			switch {
			case err == nil:
				atomic.AddInt32(&allowed, 1)
			case errors.Is(err, models.ErrQuotaExceeded):
				atomic.AddInt32(&exceeded, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed)
	assert.Equal(t, int32(35), exceeded)

	info, err := meter.GetUsage(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 5, info.UsageCount)
	assert.Equal(t, 0, info.Remaining)
}

func TestUsageMeter_UnknownSessionReportsFullQuota(t *testing.T) {
	ctx := resetDatabase(t)
	repos := InitializeRepositories(testDB.DB)
	meter := services.NewUsageMeterService(repos.Sessions, 5, quietLogger())

	info, err := meter.GetUsage(ctx, TestSessionID())
	require.NoError(t, err)
	assert.Equal(t, 0, info.UsageCount)
	assert.Equal(t, 5, info.Remaining)
	assert.False(t, info.Migrated)
}

func TestUsageMeter_MigratedSessionIsDenied(t *testing.T) {
	ctx := resetDatabase(t)
	repos := InitializeRepositories(testDB.DB)
	meter := services.NewUsageMeterService(repos.Sessions, 5, quietLogger())

	email, password := TestUser("meter")
	user, err := SeedUser(ctx, testDB.DB, email, password)
	require.NoError(t, err)

	sessionID := TestSessionID()
	_, err = meter.CheckAndReserve(ctx, sessionID)
	require.NoError(t, err)

	_, err = repos.Migrations.MigrateSession(ctx, sessionID, user.ID, time.Now().UTC())
	require.NoError(t, err)

	info, err := meter.CheckAndReserve(ctx, sessionID)
	assert.ErrorIs(t, err, models.ErrSessionMigrated)
	require.NotNil(t, info)
	assert.True(t, info.Migrated)
	assert.Equal(t, 1, info.UsageCount)
	assert.Equal(t, 0, info.Remaining)
}
