package receiver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espsense/csicollect/internal/queue"
	"github.com/espsense/csicollect/internal/stats"
)

func bindLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := Bind(Config{Address: "127.0.0.1", Port: 0, ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	return conn
}

func sender(t *testing.T, target net.Addr) *net.UDPConn {
	t.Helper()
	raddr, err := net.ResolveUDPAddr("udp", target.String())
	require.NoError(t, err)
	c, err := net.DialUDP("udp", nil, raddr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReceiverIngestsDatagrams(t *testing.T) {
	conn := bindLoopback(t)
	q := queue.New(0, queue.PolicyBlock)
	st := stats.New(time.Now())
	r := New(conn, q, st, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	snd := sender(t, conn.LocalAddr())
	payloads := []string{"frame-a", "frame-b", "frame-c"}
	for _, p := range payloads {
		_, err := snd.Write([]byte(p))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return st.Received() == int64(len(payloads))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, len(payloads), q.Len())

	got := make(map[string]bool)
	for range payloads {
		d, ok := q.Pop(time.Second)
		require.True(t, ok)
		require.NotNil(t, d.Source)
		assert.False(t, d.ReceivedAt.IsZero())
		got[d.Payload] = true
	}
	for _, p := range payloads {
		assert.True(t, got[p], "missing payload %q", p)
	}

	cancel()
	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop")
	}
}

func TestReceiverSanitizesInvalidUTF8(t *testing.T) {
	conn := bindLoopback(t)
	q := queue.New(0, queue.PolicyBlock)
	st := stats.New(time.Now())
	r := New(conn, q, st, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	defer conn.Close()

	snd := sender(t, conn.LocalAddr())
	_, err := snd.Write(append([]byte("f0,f1"), 0xff, 0xfe))
	require.NoError(t, err)

	d, ok := q.Pop(2 * time.Second)
	require.True(t, ok)
	assert.Equal(t, "f0,f1", d.Payload, "invalid bytes must be dropped, not kept")
}

func TestReceiverStopsQuietlyWhenSocketClosed(t *testing.T) {
	conn := bindLoopback(t)
	q := queue.New(0, queue.PolicyBlock)
	st := stats.New(time.Now())
	r := New(conn, q, st, 50*time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop after the socket was closed")
	}
}

func TestBindRejectsBadAddress(t *testing.T) {
	_, err := Bind(Config{Address: "256.0.0.1", Port: 9999})
	assert.Error(t, err)
}
