// Package streamid defines the four-component stream identifier shared by
// every layer of the detection pipeline.
package streamid

import "strings"

// ID identifies a single waveform stream by network, station, location and
// channel code. Equality is plain struct equality.
type ID struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// String returns the dot-joined canonical form, e.g. "GE.WLF..BHZ".
func (id ID) String() string {
	return strings.Join([]string{id.Network, id.Station, id.Location, id.Channel}, ".")
}

// IsValid reports whether network, station and channel are non-empty.
// Location may legitimately be empty.
func (id ID) IsValid() bool {
	return id.Network != "" && id.Station != "" && id.Channel != ""
}

// Parse splits a dot-joined "NET.STA.LOC.CHA" string back into an ID.
func Parse(s string) (ID, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ID{}, false
	}
	id := ID{Network: parts[0], Station: parts[1], Location: parts[2], Channel: parts[3]}
	return id, id.IsValid()
}
