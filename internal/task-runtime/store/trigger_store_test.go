package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/taskerr"
)

func newCronTrigger(id string) db.Trigger {
	return db.Trigger{
		TriggerID:    id,
		TargetTaskID: "report",
		Kind:         db.TriggerKindCron,
		Config:       `{"schedule":"hourly"}`,
		Enabled:      true,
	}
}

func TestTriggerStoreCRUD(t *testing.T) {
	gormDB, cleanup := setupTestDB(t)
	defer cleanup()
	s := NewTriggerStore(gormDB)

	trigger := newCronTrigger("nightly")
	require.NoError(t, s.Create("acme", &trigger))
	assert.Equal(t, "acme", trigger.TenantID)

	got, err := s.Get("acme", "nightly")
	require.NoError(t, err)
	assert.Equal(t, "report", got.TargetTaskID)

	dup := newCronTrigger("nightly")
	assert.True(t, taskerr.IsKind(s.Create("acme", &dup), taskerr.KindConflict))

	_, err = s.Update("acme", "nightly", map[string]interface{}{"enabled": false})
	require.NoError(t, err)
	got, _ = s.Get("acme", "nightly")
	assert.False(t, got.Enabled)

	require.NoError(t, s.Delete("acme", "nightly"))
	_, err = s.Get("acme", "nightly")
	assert.True(t, taskerr.IsKind(err, taskerr.KindNotFound))
}

func TestTriggerStoreNoSharedFallback(t *testing.T) {
	gormDB, cleanup := setupTestDB(t)
	defer cleanup()
	s := NewTriggerStore(gormDB)

	trigger := newCronTrigger("shared-ish")
	require.NoError(t, s.Create(models.SharedTenant, &trigger))

	// Unlike tasks, triggers never resolve across tenants.
	_, err := s.Get("acme", "shared-ish")
	assert.True(t, taskerr.IsKind(err, taskerr.KindNotFound))
}

func TestTriggerStoreTenantsExcludesReserved(t *testing.T) {
	gormDB, cleanup := setupTestDB(t)
	defer cleanup()
	s := NewTriggerStore(gormDB)

	for _, tenant := range []string{"acme", "globex", models.SharedTenant, models.SystemTenant} {
		trigger := newCronTrigger("t-" + tenant)
		require.NoError(t, s.Create(tenant, &trigger))
	}

	tenants, err := s.Tenants()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acme", "globex"}, tenants)
}

func TestTriggerStoreListEnabledCron(t *testing.T) {
	gormDB, cleanup := setupTestDB(t)
	defer cleanup()
	s := NewTriggerStore(gormDB)

	enabled := newCronTrigger("on")
	require.NoError(t, s.Create("acme", &enabled))

	disabled := newCronTrigger("off")
	disabled.Enabled = false
	require.NoError(t, s.Create("acme", &disabled))

	httpKind := newCronTrigger("hooked")
	httpKind.Kind = db.TriggerKindHTTP
	require.NoError(t, s.Create("acme", &httpKind))

	triggers, err := s.ListEnabledCron("acme")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "on", triggers[0].TriggerID)
}

func TestTriggerStoreClaimFiringOnce(t *testing.T) {
	gormDB, cleanup := setupTestDB(t)
	defer cleanup()
	s := NewTriggerStore(gormDB)

	trigger := newCronTrigger("claimed")
	require.NoError(t, s.Create("acme", &trigger))

	loaded, err := s.Get("acme", "claimed")
	require.NoError(t, err)
	window := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

	// Two scanners holding the same snapshot race for the same window;
	// exactly one wins.
	first, err := s.ClaimFiring(loaded, window)
	require.NoError(t, err)
	second, err := s.ClaimFiring(loaded, window)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	// The next window is claimable from the refreshed snapshot.
	reloaded, err := s.Get("acme", "claimed")
	require.NoError(t, err)
	next, err := s.ClaimFiring(reloaded, window.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, next)
}
