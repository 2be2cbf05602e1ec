// Package metrics exposes Prometheus counters and gauges for PWS transport
// health, grounded on the teacher's internal/single/monitoring/metrics.go
// (same prometheus/client_golang registration style, renamed from
// broadcast-server concerns to PWS chunk/ack/journal concerns).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChunksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_chunks_sent_total",
		Help: "Total number of chunks written to the wire.",
	})

	ChunksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_chunks_received_total",
		Help: "Total number of chunks read from the wire.",
	})

	AcksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_acks_sent_total",
		Help: "Total number of ACK signals sent.",
	})

	AcksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_acks_received_total",
		Help: "Total number of ACK signals received.",
	})

	ResendsRequested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_resends_requested_total",
		Help: "Total number of RESEND signals emitted by this side.",
	})

	ResendsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_resends_served_total",
		Help: "Total number of RESEND signals received and served.",
	})

	DuplicatesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_duplicates_dropped_total",
		Help: "Total number of inbound chunks discarded as duplicates.",
	})

	JournalDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pws_journal_depth",
		Help: "Current number of unacknowledged chunks held in the outbound journal.",
	})

	JournalFullRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_journal_full_rejections_total",
		Help: "Total number of times a send found the outbound journal full and waited.",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pws_connections_active",
		Help: "Current number of online PWS connections.",
	})

	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pws_reconnects_total",
		Help: "Total number of successful reconnects.",
	})

	AdmissionRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pws_admission_rejections_total",
		Help: "Total number of inbound connection attempts rejected, by reason.",
	}, []string{"reason"})

	JetBytesRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pws_jet_bytes_relayed_total",
		Help: "Total bytes relayed through the jet sub-channel, by direction.",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(
		ChunksSent, ChunksReceived,
		AcksSent, AcksReceived,
		ResendsRequested, ResendsServed,
		DuplicatesDropped,
		JournalDepth, JournalFullRejections,
		ConnectionsActive, ReconnectsTotal,
		AdmissionRejections, JetBytesRelayed,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
