package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"task-runtime-service/internal/models"
	"task-runtime-service/internal/task-runtime/store"
)

// DataHandle is the tenant-scoped view of the document store that task code
// receives. Implementations must never leak another tenant's data.
type DataHandle interface {
	Get(collection, docID string) (*store.DocumentSnapshot, error)
	List(collection string) ([]store.DocumentSnapshot, error)
	Add(collection string, data map[string]interface{}) (string, error)
	Set(collection, docID string, data map[string]interface{}) error
	Update(collection, docID string, partial map[string]interface{}) error
	Delete(collection, docID string) error
	Query(collection string, filters []store.QueryFilter) ([]store.DocumentSnapshot, error)
}

// TaskInvoker lets a task invoke another task in the same tenant through the
// full resolve-then-execute path.
type TaskInvoker interface {
	Run(taskID string, params map[string]interface{}) (interface{}, error)
}

// ExecutionContext is the ephemeral per-invocation bundle of identity, data
// access, composition, and logging. Built fresh for every invocation and
// discarded when it completes.
type ExecutionContext struct {
	Caller models.Caller
	Tenant string
	Data   DataHandle
	Tasks  TaskInvoker
	Logs   *LogSink
	Depth  int
}

// contextValue materializes the execution context as the JS object passed in
// the second parameter position of every task handler.
func contextValue(vm *goja.Runtime, ec *ExecutionContext) goja.Value {
	obj := vm.NewObject()
	_ = obj.Set("tenant", ec.Tenant)

	caller := vm.NewObject()
	_ = caller.Set("userId", ec.Caller.UserID)
	_ = caller.Set("tenant", ec.Caller.Tenant)
	_ = obj.Set("caller", caller)

	if ec.Data != nil {
		_ = obj.Set("data", dataValue(vm, ec))
	}

	if ec.Tasks != nil {
		tasks := vm.NewObject()
		_ = tasks.Set("run", func(taskID string, params map[string]interface{}) (interface{}, error) {
			return ec.Tasks.Run(taskID, params)
		})
		_ = obj.Set("tasks", tasks)
	}

	if ec.Logs != nil {
		_ = obj.Set("log", func(args ...interface{}) { ec.Logs.Log(joinArgs(args)) })
		_ = obj.Set("warn", func(args ...interface{}) { ec.Logs.Warn(joinArgs(args)) })
		_ = obj.Set("error", func(args ...interface{}) { ec.Logs.Error(joinArgs(args)) })
	}

	return obj
}

func dataValue(vm *goja.Runtime, ec *ExecutionContext) goja.Value {
	data := vm.NewObject()
	_ = data.Set("get", func(collection, docID string) (*store.DocumentSnapshot, error) {
		return ec.Data.Get(collection, docID)
	})
	_ = data.Set("list", func(collection string) ([]store.DocumentSnapshot, error) {
		return ec.Data.List(collection)
	})
	_ = data.Set("add", func(collection string, doc map[string]interface{}) (string, error) {
		return ec.Data.Add(collection, doc)
	})
	_ = data.Set("set", func(collection, docID string, doc map[string]interface{}) error {
		return ec.Data.Set(collection, docID, doc)
	})
	_ = data.Set("update", func(collection, docID string, partial map[string]interface{}) error {
		return ec.Data.Update(collection, docID, partial)
	})
	_ = data.Set("delete", func(collection, docID string) error {
		return ec.Data.Delete(collection, docID)
	})
	_ = data.Set("query", func(collection string, rawFilters []map[string]interface{}) ([]store.DocumentSnapshot, error) {
		filters := make([]store.QueryFilter, 0, len(rawFilters))
		for _, rf := range rawFilters {
			field, _ := rf["field"].(string)
			op, _ := rf["op"].(string)
			filters = append(filters, store.QueryFilter{Field: field, Op: op, Value: rf["value"]})
		}
		return ec.Data.Query(collection, filters)
	})
	return data
}

func joinArgs(args []interface{}) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	return strings.Join(parts, " ")
}
