package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware that refreshes the uptime gauge
// before each status request
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.Uptime.Set(time.Since(metrics.startTime).Seconds())
		c.Next()
	}
}

// Timer measures a workflow's duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	entity  string
}

// NewTimer starts a workflow timer and marks it active
func NewTimer(metrics *Metrics, entity string) *Timer {
	metrics.WorkflowStarted()
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		entity:  entity,
	}
}

// Stop stops the timer and records the exit code
func (t *Timer) Stop(code int) time.Duration {
	duration := time.Since(t.start)
	t.metrics.WorkflowFinished(t.entity, strconv.Itoa(code), duration)
	return duration
}
