// Package metrics registers Prometheus counters for the packet codec
// and the record stream engine. The library only maintains the metrics;
// exposing them over HTTP is up to the embedding application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

var (
	packetsEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skadi_packets_encoded_total",
		Help: "Total number of data packets encoded",
	})

	packetsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skadi_packets_decoded_total",
		Help: "Total number of data packet decode attempts",
	}, []string{"status"})

	checksumFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skadi_checksum_failures_total",
		Help: "Total number of packet checksum verification failures",
	})

	recordsTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skadi_records_transferred_total",
		Help: "Total number of records moved between buffers and packets",
	}, []string{"direction"})

	streamsPoisoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skadi_streams_poisoned_total",
		Help: "Total number of stream handles poisoned by transfer errors",
	}, []string{"direction"})
)

// RecordPacketEncoded counts one encoded data packet.
func RecordPacketEncoded() {
	packetsEncoded.Inc()
}

// RecordPacketDecoded counts one packet decode attempt.
func RecordPacketDecoded(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	packetsDecoded.WithLabelValues(status).Inc()
}

// RecordChecksumFailure counts one checksum verification failure.
func RecordChecksumFailure() {
	checksumFailures.Inc()
}

// RecordRecordsRead counts records decoded into caller buffers.
func RecordRecordsRead(n int64) {
	recordsTransferred.WithLabelValues("read").Add(float64(n))
}

// RecordRecordsWritten counts records encoded from caller buffers.
func RecordRecordsWritten(n int64) {
	recordsTransferred.WithLabelValues("write").Add(float64(n))
}

// RecordStreamPoisoned counts one poisoned reader or writer handle.
func RecordStreamPoisoned(direction string) {
	streamsPoisoned.WithLabelValues(direction).Inc()
}
