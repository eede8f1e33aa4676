package utils

import (
	"errors"
	"net/http"
	"time"

	"dbaccountsync/pkg/errs"
	"dbaccountsync/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware logs every request at a level chosen by its status code.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		switch {
		case status >= 500:
			logger.Errorf("HTTP %s %s - Status: %d, Duration: %v, IP: %s",
				c.Request.Method, c.Request.URL.Path, status, elapsed, c.ClientIP())
		case status >= 400:
			logger.Warnf("HTTP %s %s - Status: %d, Duration: %v, IP: %s",
				c.Request.Method, c.Request.URL.Path, status, elapsed, c.ClientIP())
		default:
			logger.Infof("HTTP %s %s - Status: %d, Duration: %v, IP: %s",
				c.Request.Method, c.Request.URL.Path, status, elapsed, c.ClientIP())
		}
	}
}

// JSONResponse sends a JSON response with the specified HTTP status code.
func JSONResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

var statusByKind = []struct {
	kind   error
	status int
}{
	{errs.ErrNotFound, http.StatusNotFound},
	{errs.ErrValidationFailed, http.StatusBadRequest},
	{errs.ErrUnsupportedDialect, http.StatusBadRequest},
	{errs.ErrLockNotAcquired, http.StatusConflict},
	{errs.ErrNoRules, http.StatusUnprocessableEntity},
	{errs.ErrTaskTimeout, http.StatusGatewayTimeout},
	{errs.ErrConnectFailed, http.StatusBadGateway},
}

// StatusFor maps an error kind to an HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	for _, m := range statusByKind {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// ErrorResponse logs err and sends it with the status of its kind.
func ErrorResponse(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= 500 {
		logger.Errorf("API Error: %v", err)
	} else {
		logger.Warnf("API Error: %v", err)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}
