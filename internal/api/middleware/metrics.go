package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/Harshitk-cp/smartsearch/internal/metrics"
)

// MetricsCollector counts requests and errors for the JSON /metrics view and
// mirrors them into Prometheus.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
	}
}

// Middleware counts requests and 4xx/5xx responses.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, statusClass(rw.statusCode)).Inc()
	})
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
