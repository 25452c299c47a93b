package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/mailcampaign-sender/internal/logx"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CampaignRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaign_runs_total", Help: "Campaign send runs by outcome"},
		[]string{"outcome"},
	)
	RecipientsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaign_recipients_total", Help: "Recipient jobs processed by result"},
		[]string{"result"},
	)
	DispatchInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "campaign_dispatch_inflight", Help: "Mail dispatches currently in flight"},
	)
	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_dispatch_duration_seconds",
			Help:    "Time spent on one provider send attempt",
			Buckets: prometheus.DefBuckets,
		},
	)
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaign_token_refresh_total", Help: "OAuth token refreshes by outcome"},
		[]string{"outcome"},
	)
	Heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "campaign_heartbeats_total", Help: "Heartbeat rows written"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration,
		CampaignRuns, RecipientsProcessed, DispatchInflight, DispatchDuration, TokenRefreshes, Heartbeats,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

// Observability records request metrics and an access log line per request.
func Observability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		lat := time.Since(start).Seconds()
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		APIRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		APIRequestDuration.WithLabelValues(r.Method, path).Observe(lat)

		logx.L().Infow("http_access",
			"rid", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", path,
			"status", status,
			"duration", lat,
			"client_ip", r.RemoteAddr,
		)
	})
}
