// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceivedTotal counts datagrams read from the UDP socket.
	PacketsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csicollect_packets_received_total",
			Help: "Total number of UDP datagrams received",
		},
	)

	// RowsWrittenTotal counts records persisted to the output sink.
	RowsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csicollect_rows_written_total",
			Help: "Total number of records written to the output sink",
		},
	)

	// ParseDropsTotal counts datagrams that produced no record.
	ParseDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csicollect_parse_drops_total",
			Help: "Total number of datagrams dropped by the frame parser",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks the current ingestion queue depth.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "csicollect_queue_depth",
			Help: "Current number of datagrams waiting in the ingestion queue",
		},
	)

	// QueueDroppedTotal counts datagrams discarded by the overflow policy.
	QueueDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csicollect_queue_dropped_total",
			Help: "Total number of datagrams discarded by the queue overflow policy",
		},
		[]string{"policy"},
	)

	// ReceiveErrorsTotal counts fatal socket errors in the receiver.
	ReceiveErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "csicollect_receive_errors_total",
			Help: "Total number of unrecoverable UDP receive errors",
		},
	)
)

// Parse drop reasons.
const (
	ReasonIncomplete = "incomplete"
	ReasonShort      = "short"
	ReasonError      = "error"
)
