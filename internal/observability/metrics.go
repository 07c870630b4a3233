package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "irc",
			Name:      "messages_received_total",
			Help:      "Inbound wire messages per server.",
		},
		[]string{"server"},
	)
	batchesFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "irc",
			Name:      "batches_flushed_total",
			Help:      "Non-empty inbound batches flushed per server.",
		},
		[]string{"server"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "irc",
			Name:      "reconnects_total",
			Help:      "Successful reconnections per server, excluding the initial connect.",
		},
		[]string{"server"},
	)
	connectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "irc",
			Name:      "connect_failures_total",
			Help:      "Failed connection attempts per server.",
		},
		[]string{"server"},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "irc",
			Name:      "sends_total",
			Help:      "Outbound messages written per server.",
		},
		[]string{"server"},
	)
	sendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "irc",
			Name:      "send_errors_total",
			Help:      "Outbound write failures per server.",
		},
		[]string{"server"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesReceived, batchesFlushed, reconnects, connectFailures, sends, sendErrors)
	})
}

func RecordInboundBatch(server string, size int) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(server).Add(float64(size))
	batchesFlushed.WithLabelValues(server).Inc()
}

func RecordReconnect(server string) {
	RegisterMetrics()
	reconnects.WithLabelValues(server).Inc()
}

func RecordConnectFailure(server string) {
	RegisterMetrics()
	connectFailures.WithLabelValues(server).Inc()
}

func RecordSend(server string) {
	RegisterMetrics()
	sends.WithLabelValues(server).Inc()
}

func RecordSendError(server string) {
	RegisterMetrics()
	sendErrors.WithLabelValues(server).Inc()
}
