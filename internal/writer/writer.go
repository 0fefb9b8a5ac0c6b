// Package writer implements the durable sink worker: it drains the
// ingestion queue, parses frames and appends valid records to the sink.
package writer

import (
	"context"
	"errors"
	"time"

	"github.com/espsense/csicollect/internal/csi"
	"github.com/espsense/csicollect/internal/log"
	"github.com/espsense/csicollect/internal/metrics"
	"github.com/espsense/csicollect/internal/queue"
	"github.com/espsense/csicollect/internal/stats"
)

// Sink is the record-oriented output the writer appends to.
type Sink interface {
	Append(row []string) error
}

// Writer consumes the queue and persists parsed records.
type Writer struct {
	queue      *queue.Queue
	sink       Sink
	stats      *stats.Stats
	popTimeout time.Duration
	log        log.Logger
}

// New creates a writer worker. popTimeout bounds each queue wait so the
// loop can observe cancellation; it defaults to one second.
func New(q *queue.Queue, s Sink, st *stats.Stats, popTimeout time.Duration) *Writer {
	if popTimeout <= 0 {
		popTimeout = time.Second
	}
	return &Writer{
		queue:      q,
		sink:       s,
		stats:      st,
		popTimeout: popTimeout,
		log:        log.GetLogger().WithField("worker", "writer"),
	}
}

// Run consumes the queue until ctx is cancelled and the queue is empty,
// so that every datagram accepted before shutdown is persisted. Every
// popped item is acknowledged regardless of parse outcome, keeping the
// drain accounting accurate. A sink write failure stops the worker; the
// receiver keeps counting in degraded form until the coordinator stops
// the process.
func (w *Writer) Run(ctx context.Context) {
	w.log.Info("writer worker started")

	for {
		d, ok := w.queue.Pop(w.popTimeout)
		if !ok {
			if ctx.Err() != nil && w.queue.Len() == 0 {
				w.log.Info("writer worker stopped")
				return
			}
			continue
		}

		err := w.process(d)
		w.queue.Done()
		if err != nil {
			w.log.WithError(err).Error("sink write failed, stopping writer; queued frames may be lost")
			return
		}
	}
}

// process parses one datagram and appends the record if it yields one.
// Only sink failures are returned; parse failures are data-scoped and
// handled here.
func (w *Writer) process(d csi.Datagram) error {
	rec, err := csi.Parse(d.Payload)
	if err != nil {
		w.stats.IncParseDrops()
		switch {
		case errors.Is(err, csi.ErrIncompleteFrame):
			w.log.Warnf("incomplete data packet received: %v", err)
			metrics.ParseDropsTotal.WithLabelValues(metrics.ReasonIncomplete).Inc()
		case errors.Is(err, csi.ErrShortFrame):
			// Passed the coarse length check but cannot fill every
			// column. Dropped without a warning, matching the deployed
			// collector.
			metrics.ParseDropsTotal.WithLabelValues(metrics.ReasonShort).Inc()
		default:
			w.log.WithError(err).Error("frame parse failed")
			metrics.ParseDropsTotal.WithLabelValues(metrics.ReasonError).Inc()
		}
		return nil
	}

	if err := w.sink.Append(rec.Row()); err != nil {
		return err
	}
	w.stats.IncWritten()
	metrics.RowsWrittenTotal.Inc()
	return nil
}
