// Package remote moves a dfo stream over a websocket: a sender packs a
// tree straight into the connection, the receiver unpacks and verifies
// it, and a JSON receipt closes the exchange. The archive's own
// checksums mean the transport adds no framing of its own; the stream
// is self-delimiting.
package remote

import (
	"encoding/json"
	"fmt"
)

// Receipt is the receiver's verdict on one transferred tree, sent as a
// single text frame after the binary stream.
type Receipt struct {
	Checksum string `json:"root_checksum,omitempty"`
	Trailer  string `json:"trailer,omitempty"`
	Nodes    int    `json:"nodes,omitempty"`
	Error    string `json:"error,omitempty"`
}

func ParseReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	if r.Checksum == "" && r.Error == "" {
		return nil, fmt.Errorf("receipt carries neither checksum nor error")
	}
	return &r, nil
}
