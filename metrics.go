package smtpd

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors the engine updates as it runs:
// command counts by verb, reply counts by code, TLS usage, and the
// current connection/processing gauges.
var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "submitd",
			Name:      "commands_total",
			Help:      "Count of SMTP commands received, by verb.",
		},
		[]string{"command"},
	)

	responseCodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "submitd",
			Name:      "response_codes_total",
			Help:      "Count of SMTP reply codes sent, by code.",
		},
		[]string{"code"},
	)

	tlsConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "submitd",
			Name:      "tls_connections_total",
			Help:      "Count of connections upgraded to TLS, by upgrade method.",
		},
		[]string{"status"},
	)

	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "submitd",
		Name:      "connections",
		Help:      "Currently held-open connections.",
	})

	processingsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "submitd",
		Name:      "processings",
		Help:      "Currently admitted, actively processing sessions.",
	})
)

func init() {
	prometheus.MustRegister(commandsTotal, responseCodesTotal, tlsConnectionsTotal,
		connectionsGauge, processingsGauge)
}
