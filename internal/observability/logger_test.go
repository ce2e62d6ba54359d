// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/mindfields/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// initWithBuffer initializes the global logger against an in-memory sink.
func initWithBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console logger colorizes levels", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "mindfields",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("training started")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "training started")
		assert.Contains(t, out, ansiColors["green"])
		assert.Contains(t, out, colorReset)
		assert.Contains(t, out, "mindfields.")
	})

	t.Run("unknown color falls back to plain level", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:  "info",
			Format: "console",
			Colors: config.ColorConfig{Warn: "chartreuse"},
		})

		GetLogger().Warn("odd color")
		Sync()

		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), colorReset)
	})

	t.Run("json logger emits structured entries", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("recipe exited", zap.Int("exit_code", 3))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "recipe exited", entry["msg"])
		assert.EqualValues(t, 3, entry["exit_code"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "warn", Format: "json"})

		GetLogger().Info("hidden")
		Sync()
		assert.Empty(t, buf.String())
	})

	t.Run("writes a rotated json file when configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "mindfields.log")
		initWithBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})

	t.Run("only initializes once", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback before initialization", func(t *testing.T) {
		ResetForTest()
		assert.False(t, Initialized())
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the stored logger after initialization", func(t *testing.T) {
		initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json"})
		assert.True(t, Initialized())
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
