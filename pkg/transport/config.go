package transport

import "time"

// Config holds configuration for the transport layer
type Config struct {
	// ReassemblyTimeout discards a partial fragment that stalls this long
	ReassemblyTimeout time.Duration

	// MaxReassemblySize is the largest fragment accepted from the master
	MaxReassemblySize int

	// MaxSegmentSize bounds the payload of outgoing segments
	MaxSegmentSize int
}

// DefaultConfig returns default transport configuration
func DefaultConfig() Config {
	return Config{
		ReassemblyTimeout: 120 * time.Second,
		MaxReassemblySize: MaxReassemblySize,
		MaxSegmentSize:    MaxSegmentSize,
	}
}
