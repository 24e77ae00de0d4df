package runtime

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/capabilities"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/events"
	"task-runtime-service/internal/task-runtime/executors"
	"task-runtime-service/internal/task-runtime/sandbox"
	"task-runtime-service/internal/task-runtime/store"
	"task-runtime-service/internal/task-runtime/taskerr"
)

func setupRuntime(t *testing.T) (*Runtime, *store.TaskStore, *store.DocumentStore, func()) {
	dbFile := "test_runtime_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".db"
	_ = os.Remove(dbFile)

	gormDB, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := gormDB.AutoMigrate(&db.TaskDefinition{}, &db.Trigger{}, &db.Document{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	tasks := store.NewTaskStore(gormDB)
	documents := store.NewDocumentStore(gormDB)
	registry := executors.NewRegistry(sandbox.New(capabilities.NewCatalogWith(nil, nil)))
	rt := New(tasks, documents, registry, nil)

	cleanup := func() {
		sqlDB, err := gormDB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
		_ = os.Remove(dbFile)
	}
	return rt, tasks, documents, cleanup
}

func createTask(t *testing.T, tasks *store.TaskStore, tenant string, task db.TaskDefinition) {
	t.Helper()
	require.NoError(t, tasks.Create(tenant, &task))
}

func acmeCaller() models.Caller {
	return models.Caller{UserID: "user-1", Tenant: "acme"}
}

func TestInvokeSuccessEnvelope(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:     "double",
		SourceCode: `module.exports = function (params) { return params.n * 2; };`,
		Enabled:    true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "double", map[string]interface{}{"n": 4}, events.SourceAPI)
	assert.True(t, envelope.Success)
	assert.EqualValues(t, 8, envelope.Result)
	assert.Equal(t, "double", envelope.TaskName)
	assert.Empty(t, envelope.Error)
	assert.Empty(t, envelope.ErrorKind)
	assert.False(t, envelope.ExecutedAt.IsZero())
}

func TestInvokeNotFoundEnvelope(t *testing.T) {
	rt, _, _, cleanup := setupRuntime(t)
	defer cleanup()

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "missing", nil, events.SourceAPI)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(taskerr.KindNotFound), envelope.ErrorKind)
	assert.NotEmpty(t, envelope.Error)
}

func TestInvokeForbiddenAcrossTenants(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "globex", db.TaskDefinition{
		TaskID:     "secret",
		SourceCode: `module.exports = function () { return "leaked"; };`,
		Enabled:    true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "globex", "secret", nil, events.SourceAPI)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(taskerr.KindForbidden), envelope.ErrorKind)

	// The system caller crosses tenants freely.
	envelope = rt.Invoke(context.Background(), models.SystemCaller("scheduler"), "globex", "secret", nil, events.SourceScheduler)
	assert.True(t, envelope.Success)
	assert.Equal(t, "leaked", envelope.Result)
}

func TestInvokeShadowingAndSharedPrefix(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, models.SharedTenant, db.TaskDefinition{
		TaskID:     "greet",
		SourceCode: `module.exports = function () { return "shared"; };`,
		Enabled:    true,
	})
	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:     "greet",
		SourceCode: `module.exports = function () { return "acme"; };`,
		Enabled:    true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "greet", nil, events.SourceAPI)
	assert.Equal(t, "acme", envelope.Result)

	// The shared prefix bypasses tenant-scope shadowing.
	envelope = rt.Invoke(context.Background(), acmeCaller(), "acme", "public/greet", nil, events.SourceAPI)
	assert.Equal(t, "shared", envelope.Result)
}

func TestInvokeDisabledTask(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:     "paused",
		SourceCode: `module.exports = function () { return 1; };`,
		Enabled:    false,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "paused", nil, events.SourceAPI)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(taskerr.KindExecutionError), envelope.ErrorKind)
	assert.Contains(t, envelope.Error, "disabled")
}

func TestInvokeParamsSchemaValidation(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:       "strict",
		SourceCode:   `module.exports = function (params) { return params.n; };`,
		ParamsSchema: `{"type":"object","required":["n"],"properties":{"n":{"type":"number"}}}`,
		Enabled:      true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "strict", map[string]interface{}{"n": 7}, events.SourceAPI)
	assert.True(t, envelope.Success)

	envelope = rt.Invoke(context.Background(), acmeCaller(), "acme", "strict", map[string]interface{}{"n": "seven"}, events.SourceAPI)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(taskerr.KindBadRequest), envelope.ErrorKind)

	envelope = rt.Invoke(context.Background(), acmeCaller(), "acme", "strict", map[string]interface{}{}, events.SourceAPI)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(taskerr.KindBadRequest), envelope.ErrorKind)
}

func TestInvokeComposition(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:     "inner",
		SourceCode: `module.exports = function (params) { return params.v + 1; };`,
		Enabled:    true,
	})
	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:     "outer",
		SourceCode: `module.exports = function (params, context) { return context.tasks.run("inner", {v: 10}); };`,
		Enabled:    true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "outer", nil, events.SourceAPI)
	require.True(t, envelope.Success, "error: %s", envelope.Error)
	assert.EqualValues(t, 11, envelope.Result)
}

func TestInvokeCompositionDepthLimit(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:     "loop",
		SourceCode: `module.exports = function (params, context) { return context.tasks.run("loop", {}); };`,
		Enabled:    true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "loop", nil, events.SourceAPI)
	assert.False(t, envelope.Success)
	assert.Equal(t, string(taskerr.KindExecutionError), envelope.ErrorKind)
	assert.Contains(t, envelope.Error, "depth")
}

func TestInvokeDataHandleIsTenantLocked(t *testing.T) {
	rt, tasks, documents, cleanup := setupRuntime(t)
	defer cleanup()

	// Seed another tenant's document; the task must not be able to see it.
	_, err := documents.Add("globex", "orders", map[string]interface{}{"amount": 99})
	require.NoError(t, err)

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID: "count-and-write",
		SourceCode: `module.exports = function (params, context) {
			var before = context.data.list("orders").length;
			context.data.add("orders", {amount: 5});
			var after = context.data.list("orders").length;
			return {before: before, after: after};
		};`,
		Enabled: true,
	})

	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "count-and-write", nil, events.SourceAPI)
	require.True(t, envelope.Success, "error: %s", envelope.Error)
	result, ok := envelope.Result.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 0, result["before"])
	assert.EqualValues(t, 1, result["after"])

	// The write landed in acme's scope only.
	acmeDocs, err := documents.List("acme", "orders")
	require.NoError(t, err)
	assert.Len(t, acmeDocs, 1)
	globexDocs, err := documents.List("globex", "orders")
	require.NoError(t, err)
	assert.Len(t, globexDocs, 1)
}

func TestInvokeEchoRuntime(t *testing.T) {
	rt, tasks, _, cleanup := setupRuntime(t)
	defer cleanup()

	createTask(t, tasks, "acme", db.TaskDefinition{
		TaskID:  "mirror",
		Runtime: executors.RuntimeEcho,
		Enabled: true,
	})

	params := map[string]interface{}{"hello": "world"}
	envelope := rt.Invoke(context.Background(), acmeCaller(), "acme", "mirror", params, events.SourceAPI)
	require.True(t, envelope.Success)
	assert.Equal(t, params, envelope.Result)
}
