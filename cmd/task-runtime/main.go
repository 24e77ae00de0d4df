package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/joho/godotenv"

	"task-runtime-service/internal/task-runtime/api"
	"task-runtime-service/internal/task-runtime/capabilities"
	taskDB "task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/executors"
	tmKafka "task-runtime-service/internal/task-runtime/kafka"
	"task-runtime-service/internal/task-runtime/runtime"
	"task-runtime-service/internal/task-runtime/sandbox"
	"task-runtime-service/internal/task-runtime/services"
	"task-runtime-service/internal/task-runtime/store"
	gorm_db "task-runtime-service/pkg/db"
)

func main() {
	stdlog.Println("Task Runtime Service starting...")
	_ = godotenv.Load()

	appCtx, appCancel := context.WithCancel(context.Background())

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	if err := gorm_db.AutoMigrate(gormDB, &taskDB.TaskDefinition{}, &taskDB.Trigger{}, &taskDB.Document{}); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}
	stdlog.Println("Database initialized and migrated.")

	taskStore := store.NewTaskStore(gormDB)
	triggerStore := store.NewTriggerStore(gormDB)
	documentStore := store.NewDocumentStore(gormDB)

	catalog := capabilities.NewCatalog()
	sb := sandbox.New(catalog)
	registry := executors.NewRegistry(sb)

	runEventWriter := tmKafka.NewRunEventWriter()
	publisher := tmKafka.NewRunEventPublisher(runEventWriter)

	rt := runtime.New(taskStore, documentStore, registry, publisher)

	schedulerService, err := services.NewSchedulerService(appCtx, triggerStore, rt, nil)
	if err != nil {
		stdlog.Fatalf("Failed to create scheduler service: %v", err)
	}
	if err := schedulerService.Start(); err != nil {
		stdlog.Fatalf("Failed to start scheduler service: %v", err)
	}

	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(serverAddr), server.WithExitWaitTime(5*time.Second))

	taskHandler := api.NewTaskHandler(taskStore, rt)
	triggerHandler := api.NewTriggerHandler(triggerStore)

	tenantGroup := h.Group("/tenants/:tenant", api.IdentityMiddleware(), api.TenantGuard())
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

	adminGroup := h.Group("/admin")
	adminGroup.POST("/scheduler/tick", func(c context.Context, ctxReq *app.RequestContext) {
		schedulerService.ScanOnce()
		ctxReq.JSON(http.StatusOK, utils.H{"message": "Trigger scan completed"})
	})

	h.GET("/ping", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		appCancel()

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		schedulerService.Stop()

		if err := publisher.Close(); err != nil {
			hlog.Errorf("Run event producer close error: %v", err)
		}
		hlog.Info("Task Runtime gracefully shut down.")
	}()

	hlog.Infof("Task Runtime Service fully initialized, starting Hertz server on %s...", serverAddr)
	h.Spin()

	stdlog.Println("Task Runtime Service has been shut down.")
}
