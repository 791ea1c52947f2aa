package js

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
)

// ErrFunctionMissing is returned when a requested export does not exist.
var ErrFunctionMissing = errors.New("strategy function missing")

// ExceptionMessage extracts the thrown value's message from a JS failure,
// pruned of stack frames, falling back to the Go error text.
func ExceptionMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) && jsErr != nil {
		if val := jsErr.Value(); val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
			if msg := strings.TrimSpace(val.String()); msg != "" {
				return pruneStackSuffix(msg)
			}
		}
	}
	return pruneStackSuffix(strings.TrimSpace(err.Error()))
}

func pruneStackSuffix(msg string) string {
	if idx := strings.Index(msg, "\n"); idx > 0 {
		msg = msg[:idx]
	}
	if idx := strings.Index(msg, " at "); idx > 0 && idx < len(msg)-4 {
		after := msg[idx+4:]
		if !strings.Contains(after, " at ") {
			msg = msg[:idx]
		}
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "unknown error"
	}
	const maxLen = 256
	if utf8.RuneCountInString(msg) > maxLen {
		return string([]rune(msg)[:maxLen])
	}
	return msg
}
