// Package collector wires the receiver, ingestion queue and durable
// writer together and owns their lifecycle.
package collector

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/espsense/csicollect/internal/csi"
	"github.com/espsense/csicollect/internal/log"
	"github.com/espsense/csicollect/internal/metrics"
	"github.com/espsense/csicollect/internal/queue"
	"github.com/espsense/csicollect/internal/receiver"
	"github.com/espsense/csicollect/internal/sink"
	"github.com/espsense/csicollect/internal/stats"
	"github.com/espsense/csicollect/internal/writer"
)

// State is the collector lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateSocketBound
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSocketBound:
		return "socket-bound"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// statusInterval is the cadence of the throughput report.
const statusInterval = time.Second

// Config contains collector configuration.
type Config struct {
	Listen        receiver.Config
	OutputPath    string
	QueueCapacity int
	QueuePolicy   queue.Policy
	DrainTimeout  time.Duration // bound on the shutdown drain wait

	// StatusOut receives the 1 Hz status line. Defaults to stdout.
	StatusOut io.Writer
}

// Collector runs the ingestion pipeline: one receiver goroutine, one
// writer goroutine and the coordinator status loop. Counters and the
// queue are owned here and handed to the workers at construction.
type Collector struct {
	cfg   Config
	log   log.Logger
	state atomic.Int32

	conn  *net.UDPConn
	queue *queue.Queue
	csv   *sink.CSV
	stats *stats.Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
	out    io.Writer
}

// New creates a collector from cfg. Nothing is bound until Run.
func New(cfg Config) *Collector {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	out := cfg.StatusOut
	if out == nil {
		out = os.Stdout
	}
	return &Collector{
		cfg: cfg,
		log: log.GetLogger(),
		out: out,
	}
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	return State(c.state.Load())
}

func (c *Collector) setState(s State) {
	c.state.Store(int32(s))
}

// Addr returns the bound UDP address, nil before Run binds the socket.
func (c *Collector) Addr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// TotalReceived returns the total packet count.
func (c *Collector) TotalReceived() int64 {
	if c.stats == nil {
		return 0
	}
	return c.stats.Received()
}

// Run starts the pipeline and blocks until ctx is cancelled, then
// performs the graceful shutdown sequence: stop reception, drain the
// queue, confirm everything is written, report final totals. A socket
// bind or sink open failure is fatal and returns before any worker
// starts.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.start(); err != nil {
		return err
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.stop()
		case <-ticker.C:
			c.reportStatus()
		}
	}
}

func (c *Collector) start() error {
	conn, err := receiver.Bind(c.cfg.Listen)
	if err != nil {
		return err
	}
	c.conn = conn
	c.setState(StateSocketBound)
	c.log.Infof("udp socket listening on %s", conn.LocalAddr())

	csv, err := sink.OpenCSV(c.cfg.OutputPath, csi.Header())
	if err != nil {
		conn.Close()
		c.setState(StateIdle)
		return err
	}
	c.csv = csv
	c.log.Infof("writing to %s", csv.Path())

	c.queue = queue.New(c.cfg.QueueCapacity, c.cfg.QueuePolicy)
	if n := c.queue.Capacity(); n > 0 {
		c.log.Infof("ingestion queue bounded at %d items, overflow policy %s", n, c.cfg.QueuePolicy)
	} else {
		c.log.Info("ingestion queue unbounded")
	}
	c.stats = stats.New(time.Now())

	workCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	rcv := receiver.New(conn, c.queue, c.stats, c.cfg.Listen.ReadTimeout)
	wrt := writer.New(c.queue, c.csv, c.stats, c.cfg.Listen.ReadTimeout)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		rcv.Run(workCtx)
	}()
	go func() {
		defer c.wg.Done()
		wrt.Run(workCtx)
	}()

	c.setState(StateRunning)
	c.log.Info("collection started")
	return nil
}

// stop sequences the graceful shutdown. The state machine never skips
// Draining while the queue is non-empty.
func (c *Collector) stop() error {
	c.setState(StateDraining)

	// Both workers observe the cancellation at their next timeout
	// checkpoint; closing the socket interrupts any in-flight read and
	// definitively stops new data.
	c.cancel()
	c.conn.Close()

	if n := c.queue.Len(); n > 0 {
		c.log.Infof("processing remaining %d items in queue", n)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer cancelDrain()
	drainErr := c.queue.Drain(drainCtx)
	if drainErr != nil {
		drainErr = fmt.Errorf("queue drain incomplete: %w", drainErr)
		c.log.WithError(drainErr).Error("shutdown drain failed")
	}
	c.queue.Close()

	c.wg.Wait()

	if err := c.csv.Close(); err != nil {
		c.log.WithError(err).Error("closing output sink failed")
		if drainErr == nil {
			drainErr = err
		}
	}

	c.setState(StateStopped)
	fmt.Fprintln(c.out)
	if n := c.queue.Dropped(); n > 0 {
		c.log.Warnf("%d datagrams were dropped by the %s overflow policy", n, c.cfg.QueuePolicy)
	}
	uptime := time.Since(c.stats.StartedAt()).Truncate(time.Second)
	c.log.Infof("collection stopped after %s, total packets processed: %d", uptime, c.stats.Received())
	return drainErr
}

// reportStatus emits the 1 Hz status line and refreshes the queue depth
// gauge.
func (c *Collector) reportStatus() {
	pps := c.stats.SampleRate(time.Now())
	depth := c.queue.Len()
	metrics.QueueDepth.Set(float64(depth))

	fmt.Fprintf(c.out, "\rStatus: %d total packets | PPS: %.2f | Queue: %d    ",
		c.stats.Received(), pps, depth)
}
