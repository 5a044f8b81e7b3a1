package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// ANSI colors for the console encoder. One muted palette; no theming.
const (
	colorReset = "\x1b[0m"
	colorDim   = "\x1b[2m"
	colorCyan  = "\x1b[36m"
	colorGreen = "\x1b[32m"
	colorGray  = "\x1b[90m"
	colorRed   = "\x1b[31m"
	colorAmber = "\x1b[33m"
)

var bufPool = buffer.NewPool()

// minimalEncoder renders single-line log entries:
//
//	15:04:05 resolver  plan resolved  packs=8 conflicts=0
//
// Level shows only for warnings and errors. Fields render as key=value
// after two spaces, dimmed so the message stays prominent.
type minimalEncoder struct {
	zapcore.Encoder
	pool buffer.Pool
}

func newMinimalEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	return &minimalEncoder{
		Encoder: zapcore.NewJSONEncoder(cfg),
		pool:    bufPool,
	}
}

func (e *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: e.Encoder.Clone(), pool: e.pool}
}

func (e *minimalEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := e.pool.Get()

	line.AppendString(colorGray)
	line.AppendString(entry.Time.Format("15:04:05"))
	line.AppendString(colorReset)
	line.AppendString(" ")

	switch entry.Level {
	case zapcore.WarnLevel:
		line.AppendString(colorAmber + "warn" + colorReset + " ")
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		line.AppendString(colorRed + "error" + colorReset + " ")
	}

	if entry.LoggerName != "" {
		line.AppendString(colorCyan)
		line.AppendString(entry.LoggerName)
		line.AppendString(colorReset)
		line.AppendString(" ")
	}

	line.AppendString(entry.Message)

	for _, f := range fields {
		line.AppendString("  " + colorDim)
		line.AppendString(f.Key)
		line.AppendString("=")
		line.AppendString(fieldValue(f))
		line.AppendString(colorReset)
	}

	line.AppendString("\n")
	return line, nil
}

func fieldValue(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", uint64(f.Integer))
	case zapcore.BoolType:
		if f.Integer == 1 {
			return "true"
		}
		return "false"
	case zapcore.DurationType:
		return time.Duration(f.Integer).String()
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			return err.Error()
		}
		return fmt.Sprintf("%v", f.Interface)
	default:
		if f.Interface != nil {
			return fmt.Sprintf("%v", f.Interface)
		}
		return f.String
	}
}
