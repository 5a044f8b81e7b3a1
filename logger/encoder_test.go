package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeOne(t *testing.T, entry zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	enc := newMinimalEncoder()
	buf, err := enc.EncodeEntry(entry, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestEncodeEntry_MessageAndFields(t *testing.T) {
	out := encodeOne(t, zapcore.Entry{
		Time:       time.Date(2026, 3, 4, 9, 15, 0, 0, time.UTC),
		Level:      zapcore.InfoLevel,
		LoggerName: "resolver",
		Message:    "plan resolved",
	}, zap.Int("packs", 8), zap.String("root", "features/admin"))

	assert.Contains(t, out, "09:15:00")
	assert.Contains(t, out, "resolver")
	assert.Contains(t, out, "plan resolved")
	assert.Contains(t, out, "packs=8")
	assert.Contains(t, out, "root=features/admin")
}

func TestEncodeEntry_LevelShownForWarnAndError(t *testing.T) {
	info := encodeOne(t, zapcore.Entry{Level: zapcore.InfoLevel, Message: "m", Time: time.Now()})
	assert.NotContains(t, info, "info")

	warn := encodeOne(t, zapcore.Entry{Level: zapcore.WarnLevel, Message: "m", Time: time.Now()})
	assert.Contains(t, warn, "warn")

	errLine := encodeOne(t, zapcore.Entry{Level: zapcore.ErrorLevel, Message: "m", Time: time.Now()})
	assert.Contains(t, errLine, "error")
}

func TestInitialize(t *testing.T) {
	require.NoError(t, Initialize(false))
	assert.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
}
