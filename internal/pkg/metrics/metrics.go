package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Subscription workflow metrics
var (
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_outcomes_total",
			Help: "Total number of subscribe and unsubscribe submissions by outcome.",
		},
		[]string{"action", "outcome"}, // action: "subscribe", "unsubscribe"
	)

	NoticeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsletter_notice_failures_total",
			Help: "Total number of unsubscribe notices that could not be sent.",
		},
	)

	IntegrationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_integration_errors_total",
			Help: "Total number of store failures by operation.",
		},
		[]string{"op"},
	)
)

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
