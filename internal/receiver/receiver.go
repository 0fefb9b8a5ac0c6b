// Package receiver implements the UDP ingress worker.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/espsense/csicollect/internal/csi"
	"github.com/espsense/csicollect/internal/log"
	"github.com/espsense/csicollect/internal/metrics"
	"github.com/espsense/csicollect/internal/queue"
	"github.com/espsense/csicollect/internal/stats"
)

// maxDatagramSize matches the sending device's UDP buffer.
const maxDatagramSize = 4096

// Config holds the UDP endpoint settings.
type Config struct {
	Address     string
	Port        int
	ReadTimeout time.Duration
}

// Bind opens the UDP socket with SO_REUSEADDR set, so a recently
// stopped collector can rebind the port immediately.
func Bind(cfg Config) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	pc, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", addr, err)
	}
	return pc.(*net.UDPConn), nil
}

// Receiver owns the read side of the UDP socket. The coordinator closes
// the socket at shutdown; an interrupted read at that point is the
// expected stop signal, not an error.
type Receiver struct {
	conn        *net.UDPConn
	queue       *queue.Queue
	stats       *stats.Stats
	readTimeout time.Duration
	log         log.Logger
}

// New creates a receiver worker reading from conn into q.
func New(conn *net.UDPConn, q *queue.Queue, st *stats.Stats, readTimeout time.Duration) *Receiver {
	if readTimeout <= 0 {
		readTimeout = time.Second
	}
	return &Receiver{
		conn:        conn,
		queue:       q,
		stats:       st,
		readTimeout: readTimeout,
		log:         log.GetLogger().WithField("worker", "receiver"),
	}
}

// Run reads datagrams until ctx is cancelled or the socket fails. Each
// read is bounded by the configured deadline; the deadline expiry is
// the cooperative cancellation checkpoint.
func (r *Receiver) Run(ctx context.Context) {
	r.log.Infof("udp receiver started on %s", r.conn.LocalAddr())

	buf := make([]byte, maxDatagramSize)
	for {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
			if ctx.Err() == nil {
				r.log.WithError(err).Error("set read deadline failed, stopping receiver")
				metrics.ReceiveErrorsTotal.Inc()
			}
			return
		}

		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					r.log.Info("udp receiver stopped")
					return
				}
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				// Socket closed by the coordinator during shutdown.
				r.log.Info("udp receiver stopped")
				return
			}
			r.log.WithError(err).Error("udp receive failed, stopping receiver")
			metrics.ReceiveErrorsTotal.Inc()
			return
		}

		// Lenient decode: invalid byte sequences are dropped, never
		// fatal. The device occasionally emits garbage mid-frame.
		payload := strings.ToValidUTF8(string(buf[:n]), "")

		// The queue accounts for overflow drops itself; the receive
		// counter tracks every datagram read off the socket.
		r.queue.Push(csi.Datagram{
			Payload:    payload,
			Source:     addr,
			ReceivedAt: time.Now(),
		})

		r.stats.IncReceived()
		metrics.PacketsReceivedTotal.Inc()
	}
}
