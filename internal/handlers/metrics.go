package handlers

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teachme",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teachme",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	kidLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teachme",
		Name:      "kid_logins_total",
		Help:      "Join-code sign-in attempts by outcome.",
	}, []string{"result"})

	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "teachme",
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by a rate limiter.",
	})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, kidLogins, rateLimited)
}
