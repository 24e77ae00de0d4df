package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/events"
	"task-runtime-service/internal/task-runtime/runtime"
	"task-runtime-service/internal/task-runtime/store"
)

// DefaultScanInterval is the trigger-scan tick period.
const DefaultScanInterval = 60 * time.Second

// catchUpLimit bounds how many schedule steps a single evaluation walks when
// advancing a stale watermark; past it the trigger just fires for the most
// recent window.
const catchUpLimit = 1000

// SchedulerService owns the single process-wide trigger scan loop. Each tick
// enumerates tenant trigger stores, evaluates enabled cron triggers against
// their persisted last-fired watermark, and dispatches matches in the
// background through the same execution path as an inbound call.
type SchedulerService struct {
	Triggers  *store.TriggerStore
	Runtime   *runtime.Runtime
	Scheduler gocron.Scheduler
	Clock     clockwork.Clock
	Interval  time.Duration

	appContext context.Context
}

func NewSchedulerService(ctx context.Context, triggers *store.TriggerStore, rt *runtime.Runtime, clock clockwork.Clock) (*SchedulerService, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &SchedulerService{
		Triggers:   triggers,
		Runtime:    rt,
		Scheduler:  s,
		Clock:      clock,
		Interval:   DefaultScanInterval,
		appContext: ctx,
	}, nil
}

func (s *SchedulerService) Start() error {
	_, err := s.Scheduler.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(s.ScanOnce),
		gocron.WithName("trigger-scan"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule trigger scan: %w", err)
	}
	s.Scheduler.Start()
	log.Printf("SchedulerService started, scanning triggers every %s", s.Interval)
	return nil
}

func (s *SchedulerService) Stop() {
	if err := s.Scheduler.Shutdown(); err != nil {
		log.Printf("Error shutting down gocron scheduler: %v", err)
	} else {
		log.Println("SchedulerService stopped.")
	}
}

// ScanOnce performs a single tick: evaluate every tenant's enabled cron
// triggers at the current clock time. One trigger's failure never affects its
// siblings or the tick.
func (s *SchedulerService) ScanOnce() {
	now := s.Clock.Now()
	tenants, err := s.Triggers.Tenants()
	if err != nil {
		log.Printf("trigger scan: cannot enumerate tenants: %v", err)
		return
	}
	for _, tenant := range tenants {
		triggers, err := s.Triggers.ListEnabledCron(tenant)
		if err != nil {
			log.Printf("trigger scan: tenant %s: %v", tenant, err)
			continue
		}
		for i := range triggers {
			s.evaluateTrigger(&triggers[i], now)
		}
	}
}

// evaluateTrigger decides whether the trigger's schedule has a window due
// since its watermark, claims the firing, and dispatches asynchronously.
func (s *SchedulerService) evaluateTrigger(trigger *db.Trigger, now time.Time) {
	var cfg db.CronConfig
	if err := json.Unmarshal([]byte(trigger.Config), &cfg); err != nil {
		log.Printf("trigger %s/%s: malformed config, will not fire: %v", trigger.TenantID, trigger.TriggerID, err)
		return
	}
	sched, err := ParseSchedule(cfg.Schedule, cfg.Timezone)
	if err != nil {
		// Warned every tick it stays broken; it never fires.
		log.Printf("trigger %s/%s: %v", trigger.TenantID, trigger.TriggerID, err)
		return
	}

	// A fresh trigger starts observing from one interval back so it cannot
	// fire retroactively for windows that predate it.
	watermark := now.Add(-s.Interval)
	if trigger.LastFiredAt != nil {
		watermark = *trigger.LastFiredAt
	}

	due := time.Time{}
	cursor := watermark
	for i := 0; i < catchUpLimit; i++ {
		next := sched.Next(cursor)
		if next.IsZero() || next.After(now) {
			break
		}
		due = next
		cursor = next
	}
	if due.IsZero() {
		return
	}

	claimed, err := s.Triggers.ClaimFiring(trigger, due)
	if err != nil {
		log.Printf("trigger %s/%s: claim failed: %v", trigger.TenantID, trigger.TriggerID, err)
		return
	}
	if !claimed {
		// Another instance (or a concurrent tick) owns this window.
		return
	}

	go s.dispatch(trigger, due)
}

// dispatch fires the trigger's target task with its static params under a
// system-level caller. Failures are logged only; there is no caller to notify.
func (s *SchedulerService) dispatch(trigger *db.Trigger, scheduledAt time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("trigger %s/%s: dispatch panicked: %v", trigger.TenantID, trigger.TriggerID, r)
		}
	}()

	params := map[string]interface{}{}
	if trigger.StaticParams != "" {
		if err := json.Unmarshal([]byte(trigger.StaticParams), &params); err != nil {
			log.Printf("trigger %s/%s: malformed staticParams, firing with none: %v", trigger.TenantID, trigger.TriggerID, err)
			params = map[string]interface{}{}
		}
	}

	caller := models.SystemCaller(trigger.OwnerID)
	result := s.Runtime.Invoke(s.appContext, caller, trigger.TenantID, trigger.TargetTaskID, params, events.SourceScheduler)
	if result.Success {
		log.Printf("trigger %s/%s fired task %s for window %s", trigger.TenantID, trigger.TriggerID, trigger.TargetTaskID, scheduledAt.Format(time.RFC3339))
	} else {
		log.Printf("trigger %s/%s: task %s failed (%s): %s", trigger.TenantID, trigger.TriggerID, trigger.TargetTaskID, result.ErrorKind, result.Error)
	}
}
