// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"

	"boost-service/internal/pkg/response"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a panic into a 500 envelope. It must run outside
// SentryMiddleware, which reports the panic and re-raises it.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				response.Error(c, http.StatusInternalServerError, "internal server error", nil)
			}
		}()
		c.Next()
	}
}

// SentryMiddleware attaches a per-request Sentry hub and reports panics.
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// CaptureError reports a non-panic error with the caller attached, if Sentry is enabled.
func CaptureError(c *gin.Context, err error) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if id, ok := GetIdentityID(c); ok {
			scope.SetUser(sentry.User{ID: strconv.FormatInt(id, 10)})
		}
		scope.SetTag("route", c.FullPath())
		hub.CaptureException(err)
	})
}
