package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Parzival4o4/drawing-app/service"
)

func TestRefreshRegistry_MarkAndNeedsRefresh(t *testing.T) {
	r := service.NewRefreshRegistry()
	now := time.Now()

	assert.False(t, r.NeedsRefresh(1, now))

	r.Mark(1, now)
	// Tokens issued at or before the mark are stale.
	assert.True(t, r.NeedsRefresh(1, now))
	assert.True(t, r.NeedsRefresh(1, now.Add(-time.Second)))
	// A token issued after the mark is fine.
	assert.False(t, r.NeedsRefresh(1, now.Add(time.Second)))
	// Other users are unaffected.
	assert.False(t, r.NeedsRefresh(2, now))
}

func TestRefreshRegistry_ClearGuardsAgainstRaces(t *testing.T) {
	r := service.NewRefreshRegistry()
	t0 := time.Now()

	r.Mark(1, t0)
	// A newer invalidation lands while a refresh based on t0 is in flight.
	t1 := t0.Add(time.Second)
	r.Mark(1, t1)

	// Clearing up to t0 must not remove the newer entry.
	r.Clear(1, t0)
	assert.True(t, r.NeedsRefresh(1, t0))

	r.Clear(1, t1)
	assert.False(t, r.NeedsRefresh(1, t0))
	assert.Equal(t, 0, r.Len())
}

func TestRefreshRegistry_MarkOverwrites(t *testing.T) {
	r := service.NewRefreshRegistry()
	t0 := time.Now()

	r.Mark(1, t0)
	r.Mark(1, t0.Add(time.Minute))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.NeedsRefresh(1, t0.Add(30*time.Second)))
}

func TestRefreshRegistry_Sweep(t *testing.T) {
	r := service.NewRefreshRegistry()

	r.Mark(1, time.Now().Add(-10*time.Minute))
	r.Mark(2, time.Now())

	removed := r.Sweep(5 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.NeedsRefresh(2, time.Now().Add(-time.Second)))
}
