package utils

import (
	"context"
	"runtime/debug"

	"astock-crawler/pkg/logger"

	"go.uber.org/zap"
)

// GoSafe runs fn in a new goroutine and recovers from panics so a single
// misbehaving job cannot take the process down.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("recovered from panic",
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}

// ShouldContinue reports whether the context is still live, logging when it
// is not so long-running loops exit visibly.
func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	select {
	case <-ctx.Done():
		log.Info("Context cancelled, stopping work", logger.ErrorField(ctx.Err()))
		return false
	default:
		return true
	}
}

// ContainsString reports whether s is present in list.
func ContainsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
