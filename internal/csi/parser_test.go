package csi

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame builds a comma-separated payload with n plain tokens.
func frame(n int) string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("f%d", i)
	}
	return strings.Join(tokens, ",")
}

var pcTimestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}$`)

func TestParseIncompleteFrame(t *testing.T) {
	rec, err := Parse(frame(19))
	require.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Nil(t, rec)
}

func TestParseShortFrameDroppedSilently(t *testing.T) {
	// 20 to 24 tokens pass the coarse check but cannot fill every
	// column. They must be distinguishable from incomplete frames so
	// the caller can skip the warning.
	for _, n := range []int{20, 22, 24} {
		rec, err := Parse(frame(n))
		require.ErrorIs(t, err, ErrShortFrame, "tokens=%d", n)
		require.NotErrorIs(t, err, ErrIncompleteFrame, "tokens=%d", n)
		assert.Nil(t, rec)
	}
}

func TestParseValidFrame(t *testing.T) {
	// 22 plain tokens plus the bracketed array [1,2,3] makes exactly
	// 25 comma-separated tokens.
	payload := frame(22) + ",[1,2,3]"
	require.Len(t, strings.Split(payload, ","), 25)

	rec, err := Parse(payload)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "f0", rec.Type)
	assert.Equal(t, "f2", rec.MAC)
	assert.Equal(t, "1,2,3", rec.CSIData)
	assert.Regexp(t, pcTimestampRe, rec.PCTimestamp)

	row := rec.Row()
	require.Len(t, row, len(Header()))
	assert.Equal(t, "1,2,3", row[25])
	assert.Equal(t, rec.PCTimestamp, row[26])
}

func TestParseTimestampIsLocallyStamped(t *testing.T) {
	rec, err := Parse(frame(25))
	require.NoError(t, err)

	// The last column never comes from the device.
	for _, f := range rec.Row()[:26] {
		assert.NotEqual(t, rec.PCTimestamp, f)
	}
}

func TestParseNoBrackets(t *testing.T) {
	rec, err := Parse(frame(25))
	require.NoError(t, err)
	assert.Empty(t, rec.CSIData)
}

func TestParseClosingBracketFirst(t *testing.T) {
	payload := "]" + frame(25) + "["
	rec, err := Parse(payload)
	require.NoError(t, err)
	assert.Empty(t, rec.CSIData)
}

func TestParseTrimsSurroundingWhitespace(t *testing.T) {
	rec, err := Parse("  " + frame(25) + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, "f0", rec.Type)
	assert.Equal(t, "f24", rec.Len)
}

func TestParseBracketContentTrimmed(t *testing.T) {
	rec, err := Parse(frame(24) + ",[ 7 8 9 ]")
	require.NoError(t, err)
	assert.Equal(t, "7 8 9", rec.CSIData)
}

func TestPreviewTruncatesLongFrames(t *testing.T) {
	long := strings.Repeat("x", 250)
	got := Preview(long)
	assert.Len(t, got, previewLimit+3)
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "short", Preview("short"))
}

func TestHeaderShape(t *testing.T) {
	h := Header()
	require.Len(t, h, 27)
	assert.Equal(t, "type", h[0])
	assert.Equal(t, "CSI_DATA", h[25])
	assert.Equal(t, "pc_timestamp", h[26])

	// Header returns a copy, mutating it must not leak.
	h[0] = "mutated"
	assert.Equal(t, "type", Header()[0])
}
