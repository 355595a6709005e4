package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tareeqk_requests_created_total",
		Help: "Total number of towing requests successfully created.",
	})

	RequestsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tareeqk_requests_accepted_total",
		Help: "Total number of towing requests claimed by a driver.",
	})

	RequestsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tareeqk_requests_completed_total",
		Help: "Total number of towing requests marked as completed.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tareeqk_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	RequestCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tareeqk_request_cache_items",
		Help: "Current number of items in the active request cache.",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tareeqk_websocket_clients",
		Help: "Current number of connected websocket clients.",
	})
)
