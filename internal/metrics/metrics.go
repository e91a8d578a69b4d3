package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"route", "method", "status"},
	)
	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "In-flight HTTP requests"},
	)

	// AuthOps counts auth service operations by outcome ("ok" or an error kind).
	AuthOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_operations_total", Help: "Auth operations by outcome"},
		[]string{"op", "outcome"},
	)
	MailSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_mail_total", Help: "Outgoing mail by template and result"},
		[]string{"template", "result"},
	)
)

var once sync.Once

// MustRegister registers all collectors with the default registry. Safe to call twice.
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(RequestsTotal, ReqDuration, InFlight, AuthOps, MailSent)
	})
}
