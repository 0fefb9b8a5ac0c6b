package csi

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// minCoarseTokens is the coarse length check. Frames below it are
	// reported as incomplete and should be logged by the caller.
	minCoarseTokens = 20
	// minRecordTokens is the number of tokens needed to fill every
	// device-reported column.
	minRecordTokens = 25

	// previewLimit bounds how much of a bad frame ends up in logs.
	previewLimit = 100

	// pcTimestampLayout is the host receive timestamp format,
	// millisecond precision.
	pcTimestampLayout = "2006-01-02 15:04:05.000"
)

// Sentinel errors for frames that produce no record.
var (
	// ErrIncompleteFrame marks frames failing the coarse length check.
	ErrIncompleteFrame = errors.New("csicollect: incomplete frame")
	// ErrShortFrame marks frames that pass the coarse check but cannot
	// fill every column. These are dropped without a warning; the
	// asymmetry with ErrIncompleteFrame is intentional and matches the
	// deployed collector behavior.
	ErrShortFrame = errors.New("csicollect: short frame")
)

// Parse converts the decoded text of one datagram into a Record.
// It is pure apart from stamping the pc_timestamp column with the
// current wall clock. Frames that do not yield a record return a nil
// Record and one of the sentinel errors above; malformed input never
// panics out of Parse.
func Parse(raw string) (rec *Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("csicollect: frame parse panic: %v (frame: %q)", r, Preview(raw))
		}
	}()

	tokens := strings.Split(strings.TrimSpace(raw), ",")
	if len(tokens) < minCoarseTokens {
		return nil, fmt.Errorf("%w: %d fields", ErrIncompleteFrame, len(tokens))
	}

	// The CSI subcarrier array sits between the first bracket pair of
	// the untrimmed text. Both brackets must be present, otherwise the
	// column stays empty.
	csiData := ""
	if start := strings.IndexByte(raw, '['); start >= 0 {
		if end := strings.IndexByte(raw, ']'); end > start {
			csiData = strings.TrimSpace(raw[start+1 : end])
		}
	}

	if len(tokens) < minRecordTokens {
		return nil, fmt.Errorf("%w: %d fields", ErrShortFrame, len(tokens))
	}

	return &Record{
		Type:             tokens[0],
		Role:             tokens[1],
		MAC:              tokens[2],
		RSSI:             tokens[3],
		Rate:             tokens[4],
		SigMode:          tokens[5],
		MCS:              tokens[6],
		Bandwidth:        tokens[7],
		Smoothing:        tokens[8],
		NotSounding:      tokens[9],
		Aggregation:      tokens[10],
		STBC:             tokens[11],
		FECCoding:        tokens[12],
		SGI:              tokens[13],
		NoiseFloor:       tokens[14],
		AMPDUCount:       tokens[15],
		Channel:          tokens[16],
		SecondaryChannel: tokens[17],
		LocalTimestamp:   tokens[18],
		Antenna:          tokens[19],
		SigLen:           tokens[20],
		RxState:          tokens[21],
		RealTimeSet:      tokens[22],
		RealTimestamp:    tokens[23],
		Len:              tokens[24],
		CSIData:          csiData,
		PCTimestamp:      time.Now().Format(pcTimestampLayout),
	}, nil
}

// Preview returns at most previewLimit bytes of a frame for log output.
func Preview(raw string) string {
	if len(raw) <= previewLimit {
		return raw
	}
	return raw[:previewLimit] + "..."
}
