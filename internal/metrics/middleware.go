package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Пути, которые опрашиваются мониторингом и не попадают в HTTP метрики
var skipPaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
}

// HTTPMetricsMiddleware собирает метрики для HTTP запросов
//
// endpoint берется из шаблона маршрута (/api/v1/smh/:imo), поэтому IMO
// не размножает серии. Запросы вне маршрутов считаются как "unmatched".
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	}
}
