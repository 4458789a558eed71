package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/plan-context/pkg/scope"
)

func TestZeroLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithJSON(), WithLevel("debug"))

	ctx := scope.WithSessionID(scope.WithProjectID(context.Background(), "proj-A"), "sess-X")
	ctx = WithTraceID(ctx, "trace-1")
	logger.Debug(ctx, "plan context activated", map[string]interface{}{"reference_id": "plan-7"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "plan context activated", entry["message"])
	assert.Equal(t, "proj-A", entry["project_id"])
	assert.Equal(t, "sess-X", entry["session_id"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "plan-7", entry["reference_id"])
}

func TestZeroLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithJSON(), WithLevel("warn"))

	logger.Info(context.Background(), "dropped", nil)
	logger.Debug(context.Background(), "dropped", nil)
	assert.Zero(t, buf.Len())

	logger.Error(context.Background(), "kept", nil)
	assert.Contains(t, buf.String(), `"message":"kept"`)
}

func TestZeroLogger_DefaultLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(WithOutput(&buf), WithJSON(), WithLevel("bogus"))

	logger.Debug(context.Background(), "dropped", nil)
	assert.Zero(t, buf.Len())
	logger.Info(context.Background(), "kept", nil)
	assert.NotZero(t, buf.Len())
}

func TestNewNop(t *testing.T) {
	NewNop().Error(context.TODO(), "ignored", map[string]interface{}{"k": "v"})
}
