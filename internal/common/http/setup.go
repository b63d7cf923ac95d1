package http

import (
	"net/http"

	"github.com/AlibekovAA/user-directory/backend/internal/common/constants"
	"github.com/AlibekovAA/user-directory/backend/internal/common/httpmetrics"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

// BuildBaseHandler wraps handler with the middleware every endpoint shares.
// Recovery sits inside tracing so a recovered panic still carries the trace
// id.
func BuildBaseHandler(log *logger.Logger, handler http.Handler) http.Handler {
	collector := httpmetrics.New()
	recovery := RecoveryMiddleware(log)
	maxRequestSize := MaxRequestSizeMiddleware(constants.DefaultMaxRequestSize)

	return SecurityHeadersMiddleware(TraceIDMiddleware(recovery(maxRequestSize(collector.Wrap(handler)))))
}
