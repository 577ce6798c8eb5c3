package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialChannelConfig configures a serial port listener
type SerialChannelConfig struct {
	Device     string // e.g. /dev/ttyUSB0
	BaudRate   int
	DataBits   int
	Parity     string // "N", "E" or "O"
	StopBits   int    // 1 or 2
	RetryDelay time.Duration
}

// SerialAddr names a serial device as a net.Addr
type SerialAddr string

func (a SerialAddr) Network() string { return "serial" }
func (a SerialAddr) String() string  { return string(a) }

// SerialListener treats a serial port as one long-lived connection.
// Accept opens the port, and opens it again once the previous channel has
// been closed.
type SerialListener struct {
	config SerialChannelConfig
	mode   *serial.Mode

	mu      sync.Mutex
	current chan struct{} // closed when the handed out port is closed
	closed  chan struct{}
	once    sync.Once
}

// ListenSerial validates the port settings. The device is opened on Accept.
func ListenSerial(config SerialChannelConfig) (*SerialListener, error) {
	if config.Device == "" {
		return nil, fmt.Errorf("serial device is required")
	}
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	if config.DataBits == 0 {
		config.DataBits = 8
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 5 * time.Second
	}

	mode := &serial.Mode{BaudRate: config.BaudRate, DataBits: config.DataBits}
	switch config.Parity {
	case "", "N", "n":
		mode.Parity = serial.NoParity
	case "E", "e":
		mode.Parity = serial.EvenParity
	case "O", "o":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid parity %q", config.Parity)
	}
	switch config.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", config.StopBits)
	}

	return &SerialListener{config: config, mode: mode, closed: make(chan struct{})}, nil
}

// Accept implements Listener.Accept
func (sl *SerialListener) Accept(ctx context.Context) (PhysicalChannel, error) {
	sl.mu.Lock()
	current := sl.current
	sl.mu.Unlock()

	if current != nil {
		select {
		case <-current:
		case <-sl.closed:
			return nil, ErrChannelClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for {
		port, err := serial.Open(sl.config.Device, sl.mode)
		if err == nil {
			done := make(chan struct{})
			sl.mu.Lock()
			sl.current = done
			sl.mu.Unlock()
			return NewStreamChannel(&serialPort{Port: port, done: done}, StreamConfig{
				Local:  SerialAddr(sl.config.Device),
				Remote: SerialAddr(sl.config.Device),
			}), nil
		}

		select {
		case <-time.After(sl.config.RetryDelay):
		case <-sl.closed:
			return nil, ErrChannelClosed
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		}
	}
}

// Addr implements Listener.Addr
func (sl *SerialListener) Addr() net.Addr {
	return SerialAddr(sl.config.Device)
}

// Close implements Listener.Close
func (sl *SerialListener) Close() error {
	sl.once.Do(func() { close(sl.closed) })
	return nil
}

type serialPort struct {
	serial.Port
	done chan struct{}
	once sync.Once
}

func (p *serialPort) Close() error {
	err := p.Port.Close()
	p.once.Do(func() { close(p.done) })
	return err
}
