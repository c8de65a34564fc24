package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/access-assistant/backend/logging"
)

// saveEvery is the number of tracked requests between statistics snapshots
const saveEvery = 100

// Stats tracks visitors and the latency and outcome of analysis and fix requests
func Stats(stats *logging.Statistics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Track unique visitor
		stats.TrackVisitor(c.ClientIP())

		c.Next()

		if c.Request.Method != http.MethodPost {
			return
		}

		loadTime := float64(time.Since(start).Milliseconds())
		failed := c.Writer.Status() >= 400
		path := c.FullPath()

		switch {
		case strings.HasSuffix(path, "/analyze"):
			stats.TrackAnalysis(loadTime, failed)
		case strings.HasSuffix(path, "/suggest-fix"), strings.HasSuffix(path, "/fix"):
			stats.TrackFix(loadTime, failed)
		default:
			return
		}

		// Periodically save statistics
		if stats.TotalRequests()%saveEvery == 0 {
			go func() {
				if err := stats.Save(); err != nil {
					log.WithError(err).Warn("Could not save statistics")
				}
			}()
		}
	}
}
