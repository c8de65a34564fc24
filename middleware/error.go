package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// ErrorHandler middleware recovers from any panics and answers with a JSON 500
func ErrorHandler(logger log.Interface) gin.HandlerFunc {
	if logger == nil {
		logger = log.Log
	}
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithFields(log.Fields{
					"panic":  err,
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
					"stack":  string(debug.Stack()),
				}).Error("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}
