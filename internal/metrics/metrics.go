// Package metrics registers the controller's Prometheus collectors.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starbook_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starbook_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starbook_commands_total",
			Help: "Mount commands dispatched, by command and result.",
		},
		[]string{"command", "result"},
	)

	Polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starbook_polls_total",
			Help: "Status poller ticks, by result.",
		},
		[]string{"result"},
	)

	GotoInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starbook_goto_in_progress",
		Help: "1 while the mount reports a goto in flight.",
	})

	ReversalHazard = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starbook_reversal_hazard",
		Help: "1 while the encoder check reports a meridian-flip hazard.",
	})

	SiderealRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starbook_sidereal_rate",
		Help: "RA drive rate as a fraction of sidereal, when measurable.",
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "starbook_websocket_clients",
		Help: "Connected status websocket clients.",
	})

	ScreenFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "starbook_screen_frames_total",
		Help: "Framebuffer grabs decoded and encoded to PNG.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		Commands,
		Polls,
		GotoInProgress,
		ReversalHazard,
		SiderealRate,
		WebsocketClients,
		ScreenFrames,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", rw.ResponseWriter)
	}
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		HTTPRequests.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		HTTPDuration.WithLabelValues(r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
