package channel

import (
	"context"
	"net"
)

// PhysicalChannel is one accepted connection carrying link frames.
// TCP, QUIC streams and serial ports all look the same from here on.
type PhysicalChannel interface {
	// Read blocks until the next complete link frame. Damaged frames return
	// *link.CrcError or *link.FramingError and leave the channel usable; any
	// other error means the connection is gone.
	Read(ctx context.Context) ([]byte, error)

	// Write writes one encoded frame
	Write(ctx context.Context, data []byte) error

	// Close releases the connection and unblocks a pending Read
	Close() error

	// Statistics returns byte level counters
	Statistics() TransportStats

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener hands out physical channels as masters connect
type Listener interface {
	// Accept blocks until a master connects or ctx is done
	Accept(ctx context.Context) (PhysicalChannel, error)

	// Addr returns the address the listener is bound to
	Addr() net.Addr

	// Close stops accepting; channels already handed out stay open
	Close() error
}

// FrameTap observes every frame that crosses a channel
type FrameTap interface {
	RecordFrame(inbound bool, local, remote net.Addr, frame []byte)
}

// TransportStats provides byte level statistics of a physical channel
type TransportStats struct {
	BytesSent     uint64 `json:"bytesSent"`
	BytesReceived uint64 `json:"bytesReceived"`
	WriteErrors   uint64 `json:"writeErrors"`
	ReadErrors    uint64 `json:"readErrors"`
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateClosed ChannelState = iota
	ChannelStateOpen
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
