package store

import (
	"errors"

	"gorm.io/gorm"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/taskerr"
)

// TaskStore gives tenant-scoped access to task definitions with shared-scope
// fallback on resolution. Writes never cross the caller's own tenant scope.
type TaskStore struct {
	DB *gorm.DB
}

func NewTaskStore(gormDB *gorm.DB) *TaskStore {
	return &TaskStore{DB: gormDB}
}

// Resolve looks taskID up in the tenant scope first and falls back to the
// shared scope. A tenant-scoped definition shadows a shared one with the same id.
func (s *TaskStore) Resolve(tenant, taskID string) (*db.TaskDefinition, error) {
	var task db.TaskDefinition
	err := s.DB.Where("tenant_id = ? AND task_id = ?", tenant, taskID).First(&task).Error
	if err == nil {
		return &task, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if tenant != models.SharedTenant {
		err = s.DB.Where("tenant_id = ? AND task_id = ?", models.SharedTenant, taskID).First(&task).Error
		if err == nil {
			return &task, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, taskerr.NotFound("task %q not found in tenant %q or shared scope", taskID, tenant)
}

// Get returns the full definition, source code included, following the same
// resolution order as Resolve.
func (s *TaskStore) Get(tenant, taskID string) (*db.TaskDefinition, error) {
	return s.Resolve(tenant, taskID)
}

// List returns the tenant's own task definitions with SourceCode redacted.
func (s *TaskStore) List(tenant string) ([]db.TaskDefinition, error) {
	var tasks []db.TaskDefinition
	if err := s.DB.Where("tenant_id = ?", tenant).Order("task_id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].SourceCode = ""
	}
	return tasks, nil
}

// Create stores a new definition in the tenant scope. The id must be unique
// within that scope; a shared task with the same id is allowed and will be
// shadowed for this tenant.
func (s *TaskStore) Create(tenant string, task *db.TaskDefinition) error {
	task.TenantID = tenant
	var existing db.TaskDefinition
	err := s.DB.Where("tenant_id = ? AND task_id = ?", tenant, task.TaskID).First(&existing).Error
	if err == nil {
		return taskerr.Conflict("task %q already exists in tenant %q", task.TaskID, tenant)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if task.Runtime == "" {
		task.Runtime = "javascript"
	}
	return s.DB.Create(task).Error
}

// Update applies a partial update within the tenant scope only. Shared tasks
// are not reachable through tenant-scoped updates.
func (s *TaskStore) Update(tenant, taskID string, updates map[string]interface{}) (*db.TaskDefinition, error) {
	var task db.TaskDefinition
	err := s.DB.Where("tenant_id = ? AND task_id = ?", tenant, taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, taskerr.NotFound("task %q not found in tenant %q", taskID, tenant)
	}
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := s.DB.Model(&task).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &task, nil
}

// Delete removes the definition from the tenant scope only.
func (s *TaskStore) Delete(tenant, taskID string) error {
	res := s.DB.Where("tenant_id = ? AND task_id = ?", tenant, taskID).Delete(&db.TaskDefinition{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return taskerr.NotFound("task %q not found in tenant %q", taskID, tenant)
	}
	return nil
}
