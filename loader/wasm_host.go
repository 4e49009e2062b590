package loader

import (
	"context"

	extism "github.com/extism/go-sdk"
	"github.com/rs/zerolog"
)

// Guest log levels accepted by plughost_log.
const (
	guestLevelDebug int32 = iota
	guestLevelInfo
	guestLevelWarn
	guestLevelError
)

func guestLevel(level int32) zerolog.Level {
	switch level {
	case guestLevelDebug:
		return zerolog.DebugLevel
	case guestLevelInfo:
		return zerolog.InfoLevel
	case guestLevelWarn:
		return zerolog.WarnLevel
	case guestLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// newLogFunction creates the plughost_log host function so guests can write
// to the host's log.
// WASM signature: (param i32 i64) -> void - takes level and message offset
func newLogFunction(logger *zerolog.Logger) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"plughost_log",
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			level := int32(stack[0])
			msg, err := p.ReadString(stack[1])
			if err != nil {
				logger.Warn().Err(err).Msg("plughost_log: failed to read message")
				return
			}
			logger.WithLevel(guestLevel(level)).Str("source", "guest").Msg(msg)
		},
		[]extism.ValueType{extism.ValueTypeI32, extism.ValueTypeI64}, // level, msg_offset
		[]extism.ValueType{}, // void
	)
	fn.SetNamespace("env")
	return fn
}
