package collector

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espsense/csicollect/internal/queue"
	"github.com/espsense/csicollect/internal/receiver"
	"github.com/espsense/csicollect/internal/stats"
)

func testConfig(outputPath string) Config {
	return Config{
		Listen: receiver.Config{
			Address:     "127.0.0.1",
			Port:        0,
			ReadTimeout: 50 * time.Millisecond,
		},
		OutputPath:   outputPath,
		DrainTimeout: 5 * time.Second,
		StatusOut:    io.Discard,
	}
}

// validFrame builds a parseable 25-token payload carrying seq in the
// mac column.
func validFrame(seq int) string {
	tokens := make([]string, 25)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("f%d", i)
	}
	tokens[2] = fmt.Sprintf("seq-%d", seq)
	return strings.Join(tokens, ",")
}

// runCollector starts c and waits for it to reach Running.
func runCollector(t *testing.T, c *Collector, ctx context.Context) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return c.State() == StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	return errCh
}

func sendFrames(t *testing.T, target net.Addr, n int) {
	t.Helper()
	raddr, err := net.ResolveUDPAddr("udp", target.String())
	require.NoError(t, err)
	conn, err := net.DialUDP("udp", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < n; i++ {
		_, err := conn.Write([]byte(validFrame(i)))
		require.NoError(t, err)
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestLosslessCleanShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	c := New(testConfig(path))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runCollector(t, c, ctx)

	const k = 50
	sendFrames(t, c.Addr(), k)
	require.Eventually(t, func() bool {
		return c.TotalReceived() == int64(k)
	}, 5*time.Second, 10*time.Millisecond)

	// Shutdown may race the writer: whatever is still queued must be
	// flushed before Run returns.
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("collector did not shut down")
	}

	require.Equal(t, StateStopped, c.State())

	rows := readRows(t, path)
	require.Len(t, rows, k+1, "header plus one row per accepted datagram")
	assert.Equal(t, "type", rows[0][0])
	for i, row := range rows[1:] {
		assert.Equal(t, fmt.Sprintf("seq-%d", i), row[2], "rows must keep arrival order")
	}
}

func TestHeaderIdempotentAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	for run, n := range []int{2, 3} {
		c := New(testConfig(path))
		ctx, cancel := context.WithCancel(context.Background())
		errCh := runCollector(t, c, ctx)

		sendFrames(t, c.Addr(), n)
		require.Eventually(t, func() bool {
			return c.TotalReceived() == int64(n)
		}, 5*time.Second, 10*time.Millisecond)

		cancel()
		require.NoError(t, <-errCh, "run %d", run)
	}

	rows := readRows(t, path)
	require.Len(t, rows, 1+2+3)
	for _, row := range rows[1:] {
		assert.NotEqual(t, "type", row[0], "header must be written exactly once")
	}
}

func TestStartFailsOnBadSinkPath(t *testing.T) {
	cfg := testConfig(filepath.Join(string(os.PathSeparator), "nonexistent-dir-csicollect", "out.csv"))
	c := New(cfg)

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, StateRunning, c.State())
}

func TestStateLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	c := New(testConfig(path))
	assert.Equal(t, StateIdle, c.State())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runCollector(t, c, ctx)
	assert.Equal(t, StateRunning, c.State())

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, c.State())
}

func TestStatusLine(t *testing.T) {
	var buf bytes.Buffer
	c := New(Config{StatusOut: &buf})
	c.queue = queue.New(0, queue.PolicyBlock)
	c.stats = stats.New(time.Now().Add(-time.Second))

	for i := 0; i < 10; i++ {
		c.stats.IncReceived()
	}
	c.reportStatus()

	out := buf.String()
	assert.Contains(t, out, "Status: 10 total packets")
	assert.Contains(t, out, "PPS:")
	assert.Contains(t, out, "Queue: 0")
	assert.True(t, strings.HasPrefix(out, "\r"), "status line rewrites in place")
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(99).String())
}
