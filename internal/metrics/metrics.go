package metrics

import (
  "context"
  "strconv"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/promauto"
  "github.com/prometheus/client_golang/prometheus/promhttp"

  "github.com/trackside-org/trackside-backend/internal/events"
)

// Metrics owns the service's collectors. It is also an events.Publisher so
// lifecycle events are counted as they are fanned out.
type Metrics struct {
  gatherer          prometheus.Gatherer
  lifecycleEvents   *prometheus.CounterVec
  requests          *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
  factory := promauto.With(reg)
  return &Metrics{
    gatherer: reg,
    lifecycleEvents: factory.NewCounterVec(prometheus.CounterOpts{
      Name: "trackside_ticket_events_total",
      Help: "Ticket lifecycle events published, by type",
    }, []string{"type"}),
    requests: factory.NewHistogramVec(prometheus.HistogramOpts{
      Name:    "trackside_http_request_duration_seconds",
      Help:    "HTTP request latency by route and status",
      Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
    }, []string{"method", "route", "status"}),
  }
}

func (m *Metrics) Publish(_ context.Context, evt events.Event) error {
  m.lifecycleEvents.WithLabelValues(string(evt.Type)).Inc()
  return nil
}

// Instrument observes every request under its route template, so path
// parameters such as tokens never become label values.
func (m *Metrics) Instrument() gin.HandlerFunc {
  return func(c *gin.Context) {
    started := time.Now()
    c.Next()
    route := c.FullPath()
    if route == "" {
      route = "unmatched"
    }
    m.requests.
      WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
      Observe(time.Since(started).Seconds())
  }
}

func (m *Metrics) Handler() gin.HandlerFunc {
  return gin.WrapH(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
