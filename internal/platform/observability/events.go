package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/requestctx"
)

// SeverityField lets callers force the level of a service event.
const SeverityField = "severity"

// EventLogger returns the structured event hook the services accept. Events are written to the
// request logger when one is present on ctx, otherwise to fallback.
//
// Level selection: fields["severity"] of "ERROR" or "WARN" wins, then any event whose name
// contains "failed" is a warning, everything else is info.
func EventLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}

		level := ""
		keys := make([]string, 0, len(fields))
		for key, value := range fields {
			if key == SeverityField {
				if s, ok := value.(string); ok {
					level = strings.ToUpper(strings.TrimSpace(s))
				}
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)

		zapFields := make([]zap.Field, 0, len(keys)+1)
		zapFields = append(zapFields, zap.String("event", event))
		for _, key := range keys {
			value := fields[key]
			if err, ok := value.(error); ok {
				zapFields = append(zapFields, zap.NamedError(key, err))
				continue
			}
			zapFields = append(zapFields, zap.Any(key, value))
		}

		switch {
		case level == "ERROR":
			logger.Error(event, zapFields...)
		case level == "WARN" || level == "WARNING" || strings.Contains(event, "failed"):
			logger.Warn(event, zapFields...)
		default:
			logger.Info(event, zapFields...)
		}
	}
}
