package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/taskerr"
)

// TriggerStore gives tenant-scoped access to trigger definitions. Triggers have
// no shared-scope fallback: resolution is strictly within one tenant.
type TriggerStore struct {
	DB *gorm.DB
}

func NewTriggerStore(gormDB *gorm.DB) *TriggerStore {
	return &TriggerStore{DB: gormDB}
}

func (s *TriggerStore) Get(tenant, triggerID string) (*db.Trigger, error) {
	var trigger db.Trigger
	err := s.DB.Where("tenant_id = ? AND trigger_id = ?", tenant, triggerID).First(&trigger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, taskerr.NotFound("trigger %q not found in tenant %q", triggerID, tenant)
	}
	if err != nil {
		return nil, err
	}
	return &trigger, nil
}

func (s *TriggerStore) List(tenant string) ([]db.Trigger, error) {
	var triggers []db.Trigger
	if err := s.DB.Where("tenant_id = ?", tenant).Order("trigger_id").Find(&triggers).Error; err != nil {
		return nil, err
	}
	return triggers, nil
}

func (s *TriggerStore) Create(tenant string, trigger *db.Trigger) error {
	trigger.TenantID = tenant
	var existing db.Trigger
	err := s.DB.Where("tenant_id = ? AND trigger_id = ?", tenant, trigger.TriggerID).First(&existing).Error
	if err == nil {
		return taskerr.Conflict("trigger %q already exists in tenant %q", trigger.TriggerID, tenant)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.DB.Create(trigger).Error
}

func (s *TriggerStore) Update(tenant, triggerID string, updates map[string]interface{}) (*db.Trigger, error) {
	trigger, err := s.Get(tenant, triggerID)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.DB.Model(trigger).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return trigger, nil
}

func (s *TriggerStore) Delete(tenant, triggerID string) error {
	res := s.DB.Where("tenant_id = ? AND trigger_id = ?", tenant, triggerID).Delete(&db.Trigger{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return taskerr.NotFound("trigger %q not found in tenant %q", triggerID, tenant)
	}
	return nil
}

// Tenants returns every tenant that owns at least one trigger, excluding the
// reserved scopes. Enumeration order is not significant.
func (s *TriggerStore) Tenants() ([]string, error) {
	var tenants []string
	err := s.DB.Model(&db.Trigger{}).Distinct("tenant_id").Order("tenant_id").Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, err
	}
	out := tenants[:0]
	for _, t := range tenants {
		if !models.IsReservedTenant(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListEnabledCron returns the tenant's enabled cron triggers.
func (s *TriggerStore) ListEnabledCron(tenant string) ([]db.Trigger, error) {
	var triggers []db.Trigger
	err := s.DB.Where("tenant_id = ? AND kind = ? AND enabled = ?", tenant, db.TriggerKindCron, true).
		Find(&triggers).Error
	if err != nil {
		return nil, err
	}
	return triggers, nil
}

// ClaimFiring advances the trigger's watermark from prev to firedAt with a
// conditional update. It returns true only for the caller that won the claim,
// so a firing window is dispatched at most once even across instances.
func (s *TriggerStore) ClaimFiring(trigger *db.Trigger, firedAt time.Time) (bool, error) {
	tx := s.DB.Model(&db.Trigger{}).Where("id = ?", trigger.ID)
	if trigger.LastFiredAt == nil {
		tx = tx.Where("last_fired_at IS NULL")
	} else {
		tx = tx.Where("last_fired_at = ?", *trigger.LastFiredAt)
	}
	res := tx.Update("last_fired_at", firedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
