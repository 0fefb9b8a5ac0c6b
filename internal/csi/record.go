// Package csi defines the CSI frame data model and the frame parser.
package csi

import (
	"net"
	"time"
)

// Datagram is one UDP datagram as received from the sensing device,
// before any parse attempt.
type Datagram struct {
	Payload    string
	Source     *net.UDPAddr
	ReceivedAt time.Time
}

// fieldNames is the fixed output column order. Columns 0-24 come from
// the device frame, CSI_DATA from the bracketed subcarrier array,
// pc_timestamp is stamped by the parser on the receiving host.
var fieldNames = []string{
	"type", "role", "mac", "rssi", "rate", "sig_mode", "mcs",
	"bandwidth", "smoothing", "not_sounding", "aggregation",
	"stbc", "fec_coding", "sgi", "noise_floor", "ampdu_cnt",
	"channel", "secondary_channel", "local_timestamp", "ant",
	"sig_len", "rx_state", "real_time_set", "real_timestamp",
	"len", "CSI_DATA", "pc_timestamp",
}

// Header returns the output column names in order.
func Header() []string {
	return append([]string(nil), fieldNames...)
}

// Record is one validated CSI measurement frame. All fields are kept as
// the verbatim strings the device sent; the collector never reinterprets
// the numeric values.
type Record struct {
	Type             string
	Role             string
	MAC              string
	RSSI             string
	Rate             string
	SigMode          string
	MCS              string
	Bandwidth        string
	Smoothing        string
	NotSounding      string
	Aggregation      string
	STBC             string
	FECCoding        string
	SGI              string
	NoiseFloor       string
	AMPDUCount       string
	Channel          string
	SecondaryChannel string
	LocalTimestamp   string
	Antenna          string
	SigLen           string
	RxState          string
	RealTimeSet      string
	RealTimestamp    string
	Len              string
	CSIData          string
	PCTimestamp      string
}

// Row returns the record as one output row, columns ordered as Header.
func (r *Record) Row() []string {
	return []string{
		r.Type, r.Role, r.MAC, r.RSSI, r.Rate, r.SigMode, r.MCS,
		r.Bandwidth, r.Smoothing, r.NotSounding, r.Aggregation,
		r.STBC, r.FECCoding, r.SGI, r.NoiseFloor, r.AMPDUCount,
		r.Channel, r.SecondaryChannel, r.LocalTimestamp, r.Antenna,
		r.SigLen, r.RxState, r.RealTimeSet, r.RealTimestamp,
		r.Len, r.CSIData, r.PCTimestamp,
	}
}
