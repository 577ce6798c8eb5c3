package channel

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChannelConfig configures the channels handed out by a TCPListener
type TCPChannelConfig struct {
	Address      string        // "host:port" to listen on
	ReadTimeout  time.Duration // Read timeout (0 = no timeout)
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
	KeepAlive    time.Duration // TCP keep-alive period (0 = system default)
}

// TCPListener accepts masters over TCP
type TCPListener struct {
	listener net.Listener
	config   TCPChannelConfig
}

// ListenTCP binds the configured address
func ListenTCP(config TCPChannelConfig) (*TCPListener, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	lc := net.ListenConfig{KeepAlive: config.KeepAlive}
	listener, err := lc.Listen(context.Background(), "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Address, err)
	}
	return &TCPListener{listener: listener, config: config}, nil
}

// Accept implements Listener.Accept
func (tl *TCPListener) Accept(ctx context.Context) (PhysicalChannel, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := tl.listener.Accept()
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return NewTCPChannel(r.conn, tl.config), nil
	case <-ctx.Done():
		// the pending Accept returns once the listener is closed
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Addr implements Listener.Addr
func (tl *TCPListener) Addr() net.Addr {
	return tl.listener.Addr()
}

// Close implements Listener.Close
func (tl *TCPListener) Close() error {
	return tl.listener.Close()
}

// NewTCPChannel wraps an accepted TCP connection
func NewTCPChannel(conn net.Conn, config TCPChannelConfig) *StreamChannel {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return NewStreamChannel(conn, StreamConfig{
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}
