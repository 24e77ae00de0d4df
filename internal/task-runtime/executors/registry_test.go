package executors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-runtime-service/internal/task-runtime/capabilities"
	"task-runtime-service/internal/task-runtime/db"
	"task-runtime-service/internal/task-runtime/sandbox"
	"task-runtime-service/internal/task-runtime/taskerr"
)

func newTestRegistry() *Registry {
	return NewRegistry(sandbox.New(capabilities.NewCatalogWith(nil, nil)))
}

func TestRegistryGet(t *testing.T) {
	r := newTestRegistry()

	js, err := r.Get(RuntimeJavaScript)
	require.NoError(t, err)
	assert.IsType(t, &JavaScriptExecutor{}, js)

	echo, err := r.Get(RuntimeEcho)
	require.NoError(t, err)
	assert.IsType(t, &EchoExecutor{}, echo)

	// Empty kind defaults to javascript.
	def, err := r.Get("")
	require.NoError(t, err)
	assert.IsType(t, &JavaScriptExecutor{}, def)

	_, err = r.Get("wasm")
	require.Error(t, err)
	assert.True(t, taskerr.IsKind(err, taskerr.KindInvalidTask))
}

func TestJavaScriptExecutorRunsSource(t *testing.T) {
	r := newTestRegistry()
	executor, err := r.Get(RuntimeJavaScript)
	require.NoError(t, err)

	task := &db.TaskDefinition{
		TaskID:     "double",
		SourceCode: `module.exports = function (params) { return params.n * 2; };`,
	}
	result, err := executor.Execute(task, map[string]interface{}{"n": 3}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 6, result)
}

func TestJavaScriptExecutorMalformedCapabilities(t *testing.T) {
	r := newTestRegistry()
	executor, _ := r.Get(RuntimeJavaScript)

	task := &db.TaskDefinition{
		TaskID:               "broken",
		SourceCode:           `module.exports = function () { return 1; };`,
		RequiredCapabilities: `not-json`,
	}
	_, err := executor.Execute(task, nil, nil)
	require.Error(t, err)
	assert.True(t, taskerr.IsKind(err, taskerr.KindInvalidTask))
}

func TestEchoExecutorReturnsParams(t *testing.T) {
	executor := &EchoExecutor{}
	params := map[string]interface{}{"ping": "pong"}

	logs := sandbox.NewLogSink("acme", "echo")
	result, err := executor.Execute(&db.TaskDefinition{TaskID: "echo"}, params, &sandbox.ExecutionContext{Logs: logs})
	require.NoError(t, err)
	assert.Equal(t, params, result)
	require.Len(t, logs.Entries(), 1)
}

func TestDecodeCapabilities(t *testing.T) {
	caps, err := decodeCapabilities(`["fetch","sms"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch", "sms"}, caps)

	caps, err = decodeCapabilities("")
	require.NoError(t, err)
	assert.Nil(t, caps)
}
