package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
)

// TraceIDMiddleware stores the trace id and the correlation id in the request
// context and echoes both. A request without a correlation header is
// correlated by its trace id.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(constants.TraceIDHeader))
		if traceID == "" {
			traceID = generateTraceID()
		}

		correlationID := strings.TrimSpace(r.Header.Get(constants.CorrelationIDHeader))
		if correlationID == "" {
			correlationID = traceID
		}

		w.Header().Set(constants.TraceIDHeader, traceID)
		w.Header().Set(constants.CorrelationIDHeader, correlationID)

		ctx := context.WithValue(r.Context(), constants.TraceIDKey, traceID)
		ctx = context.WithValue(ctx, constants.CorrelationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TraceIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, constants.TraceIDKey)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, constants.CorrelationIDKey)
}

func stringFromContext(ctx context.Context, key constants.TraceIDKeyType) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func generateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
