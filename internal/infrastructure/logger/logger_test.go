package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigPresets(t *testing.T) {
	dev := DefaultConfig()
	assert.Equal(t, "info", dev.Level)
	assert.Equal(t, "console", dev.Format)
	assert.Equal(t, "stdout", dev.Output)
	assert.NotEmpty(t, dev.TimeFormat)

	prod := ProductionConfig()
	assert.Equal(t, "info", prod.Level)
	assert.Equal(t, "json", prod.Format)
	assert.Equal(t, "stdout", prod.Output)
	assert.NotEmpty(t, prod.TimeFormat)
}

func TestNew(t *testing.T) {
	cases := map[string]*Config{
		"default":    DefaultConfig(),
		"production": ProductionConfig(),
		"debug console": {
			Level:      "debug",
			Format:     "console",
			Output:     "stdout",
			TimeFormat: defaultTimeFormat,
		},
		"info json": {
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: defaultTimeFormat,
		},
	}

	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			logger, err := New(cfg)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewForEnvironment(t *testing.T) {
	for _, env := range []string{"development", "production", "staging"} {
		t.Run(env, func(t *testing.T) {
			logger, err := NewForEnvironment(env)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"unknown": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for level, want := range cases {
		assert.Equal(t, want, ParseLevel(level), "level %q", level)
	}
}

func TestBuildEncoder(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		t.Run(format, func(t *testing.T) {
			enc := buildEncoder(&Config{
				Level:      "info",
				Format:     format,
				Output:     "stdout",
				TimeFormat: defaultTimeFormat,
			})
			assert.NotNil(t, enc)
		})
	}
}

func TestBuildWriter(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "STDOUT", ""} {
		assert.NotNil(t, buildWriter(output), "output %q", output)
	}

	t.Run("file path", func(t *testing.T) {
		tmpFile, err := os.CreateTemp("", "kambio-log-*.log")
		require.NoError(t, err)
		defer os.Remove(tmpFile.Name())
		tmpFile.Close()

		assert.NotNil(t, buildWriter(tmpFile.Name()))
	})
}

func TestHelpers(t *testing.T) {
	logger := devLogger(t)

	child := With(logger, zap.String("key", "value"))
	require.NotNil(t, child)
	assert.NotEqual(t, logger, child)

	named := Named(logger, "exchange")
	require.NotNil(t, named)
	assert.NotEqual(t, logger, named)

	// stdout may refuse Sync on some platforms, only assert it returns
	_ = Sync(logger)
}

func TestJSONOutputShape(t *testing.T) {
	var buf bytes.Buffer
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(&buf),
		zapcore.InfoLevel,
	))

	logger.Info("rate refreshed", zap.String("pair", "USD/EUR"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "rate refreshed", out["msg"])
	assert.Equal(t, "info", out["level"])
	assert.Equal(t, "USD/EUR", out["pair"])
}

func TestLevelFiltering(t *testing.T) {
	encoderConfig := zapcore.EncoderConfig{
		LevelKey:    "level",
		MessageKey:  "msg",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	atLevel := func(buf *bytes.Buffer, level zapcore.Level) *zap.Logger {
		return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buf), level))
	}

	var buf bytes.Buffer
	atLevel(&buf, zapcore.DebugLevel).Debug("debug message")
	assert.Contains(t, buf.String(), "debug message")

	buf.Reset()
	logger := atLevel(&buf, zapcore.InfoLevel)
	logger.Debug("debug message")
	assert.NotContains(t, buf.String(), "debug message")
	logger.Info("info message")
	assert.Contains(t, buf.String(), "info message")
}
