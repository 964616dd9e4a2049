package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vst-controls/green-machine/internal/domain/gm"
	"github.com/vst-controls/green-machine/internal/repository/settings"
	"github.com/vst-controls/green-machine/internal/sensors"
)

// TestPurgeSupervisor_CountsLowCurrent verifies a weak purge current
// increments the persisted pump failure count and a healthy one does not.
func TestPurgeSupervisor_CountsLowCurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := settings.NewMemoryStore()
	current := &sensors.Cached{}
	sup := NewPurgeSupervisor(repo, current)

	// No sample yet: nothing is recorded.
	sup.checkCurrent(ctx)
	count, err := settings.GetInt(ctx, repo, keyPumpFailureCount, 0)
	require.NoError(t, err)
	require.Zero(t, count)

	current.Update(1.2, time.Now())
	sup.checkCurrent(ctx)
	sup.checkCurrent(ctx)

	count, err = settings.GetInt(ctx, repo, keyPumpFailureCount, 0)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	current.Update(4.8, time.Now())
	sup.checkCurrent(ctx)

	count, err = settings.GetInt(ctx, repo, keyPumpFailureCount, 0)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

// TestPurgeSupervisor_ArmsOnlyForPurge verifies the timer lifecycle.
func TestPurgeSupervisor_ArmsOnlyForPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sup := NewPurgeSupervisor(settings.NewMemoryStore(), &sensors.Cached{})

	sup.ModeChanged(ctx, gm.ModePurge)
	sup.mu.Lock()
	require.NotNil(t, sup.timer)
	sup.mu.Unlock()

	// Leaving purge disarms the pending check.
	sup.ModeChanged(ctx, gm.ModeBurp)
	sup.mu.Lock()
	require.Nil(t, sup.timer)
	sup.mu.Unlock()

	sup.ModeChanged(ctx, gm.ModePurge)
	sup.Stop()
	sup.mu.Lock()
	require.Nil(t, sup.timer)
	sup.mu.Unlock()
}
