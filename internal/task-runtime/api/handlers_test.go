package api

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"task-runtime-service/internal/task-runtime/capabilities"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/executors"
	"task-runtime-service/internal/task-runtime/runtime"
	"task-runtime-service/internal/task-runtime/sandbox"
	"task-runtime-service/internal/task-runtime/store"
)

type apiFixture struct {
	router   *route.Engine
	gormDB   *gorm.DB
	tasks    *store.TaskStore
	triggers *store.TriggerStore
}

func setupTestAppWithRoutes(t *testing.T) (*apiFixture, func()) {
	dbFile := "test_api_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".db"
	_ = os.Remove(dbFile)

	gormDB, err := gorm.Open(sqlite.Open(dbFile), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database '%s': %v", dbFile, err)
	}
	if err := gormDB.AutoMigrate(&db.TaskDefinition{}, &db.Trigger{}, &db.Document{}); err != nil {
		t.Fatalf("Failed to migrate test database '%s': %v", dbFile, err)
	}

	hlog.SetLevel(hlog.LevelFatal)

	taskStore := store.NewTaskStore(gormDB)
	triggerStore := store.NewTriggerStore(gormDB)
	documentStore := store.NewDocumentStore(gormDB)
	registry := executors.NewRegistry(sandbox.New(capabilities.NewCatalogWith(nil, nil)))
	rt := runtime.New(taskStore, documentStore, registry, nil)

	h := server.Default(
		server.WithHostPorts("127.0.0.1:0"),
		server.WithExitWaitTime(time.Duration(0)),
	)

	taskHandler := NewTaskHandler(taskStore, rt)
	triggerHandler := NewTriggerHandler(triggerStore)

	tenantGroup := h.Group("/tenants/:tenant", IdentityMiddleware(), TenantGuard())
	{
		tenantGroup.GET("/tasks", taskHandler.ListTasks)
		tenantGroup.POST("/tasks", taskHandler.CreateTask)
		tenantGroup.GET("/tasks/:id", taskHandler.GetTask)
		tenantGroup.PUT("/tasks/:id", taskHandler.UpdateTask)
		tenantGroup.DELETE("/tasks/:id", taskHandler.DeleteTask)
		tenantGroup.POST("/tasks/:id/invoke", taskHandler.InvokeTask)

		tenantGroup.GET("/triggers", triggerHandler.ListTriggers)
		tenantGroup.POST("/triggers", triggerHandler.CreateTrigger)
		tenantGroup.GET("/triggers/:id", triggerHandler.GetTrigger)
		tenantGroup.PUT("/triggers/:id", triggerHandler.UpdateTrigger)
		tenantGroup.DELETE("/triggers/:id", triggerHandler.DeleteTrigger)
	}

	cleanup := func() {
		sqlDB, err := gormDB.DB()
		if err == nil && sqlDB != nil {
			_ = sqlDB.Close()
		}
		_ = os.Remove(dbFile)
	}
	return &apiFixture{
		router:   h.Engine,
		gormDB:   gormDB,
		tasks:    taskStore,
		triggers: triggerStore,
	}, cleanup
}

// performJSON issues a request with the standard identity headers for acme's
// user-1 unless overridden.
func performJSON(router *route.Engine, method, url string, payload interface{}, headers ...ut.Header) *ut.ResponseRecorder {
	var body *ut.Body
	if payload != nil {
		payloadBytes, _ := json.Marshal(payload)
		body = &ut.Body{Body: bytes.NewReader(payloadBytes), Len: len(payloadBytes)}
	}
	if len(headers) == 0 {
		headers = []ut.Header{
			{Key: "X-Caller-Id", Value: "user-1"},
			{Key: "X-Caller-Tenant", Value: "acme"},
		}
	}
	headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	return ut.PerformRequest(router, method, url, body, headers...)
}
