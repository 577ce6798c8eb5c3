package channel

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"avaneesh/dnp3-outstation/pkg/link"
)

var ErrNoConnection = errors.New("no connection")

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// StreamConfig configures a StreamChannel
type StreamConfig struct {
	ReadTimeout  time.Duration // 0 = no timeout
	WriteTimeout time.Duration // 0 = no timeout
	Local        net.Addr      // overrides the connection's own address
	Remote       net.Addr
}

// StreamChannel implements PhysicalChannel over any byte stream.
// Frames are located with a link.FrameReader, so the stream may split or
// join frames arbitrarily.
type StreamChannel struct {
	conn   io.ReadWriteCloser
	reader *link.FrameReader
	cfg    StreamConfig

	writeMu sync.Mutex

	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
	}

	closed atomic.Bool
}

// NewStreamChannel wraps conn
func NewStreamChannel(conn io.ReadWriteCloser, cfg StreamConfig) *StreamChannel {
	if nc, ok := conn.(net.Conn); ok {
		if cfg.Local == nil {
			cfg.Local = nc.LocalAddr()
		}
		if cfg.Remote == nil {
			cfg.Remote = nc.RemoteAddr()
		}
	}
	return &StreamChannel{
		conn:   conn,
		reader: link.NewFrameReader(conn),
		cfg:    cfg,
	}
}

// Read implements PhysicalChannel.Read
func (sc *StreamChannel) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sc.closed.Load() {
		return nil, ErrChannelClosed
	}

	if d, ok := sc.conn.(deadliner); ok && sc.cfg.ReadTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(sc.cfg.ReadTimeout))
	}

	_, raw, err := sc.reader.ReadFrame()
	if err != nil {
		sc.stats.readErrors.Inc()
		return nil, err
	}

	frame := make([]byte, len(raw))
	copy(frame, raw)
	sc.stats.bytesReceived.Add(uint64(len(frame)))
	return frame, nil
}

// Write implements PhysicalChannel.Write
func (sc *StreamChannel) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sc.closed.Load() {
		return ErrChannelClosed
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if d, ok := sc.conn.(deadliner); ok && sc.cfg.WriteTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(sc.cfg.WriteTimeout))
	}

	if _, err := sc.conn.Write(data); err != nil {
		sc.stats.writeErrors.Inc()
		return err
	}
	sc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close implements PhysicalChannel.Close
func (sc *StreamChannel) Close() error {
	if !sc.closed.CAS(false, true) {
		return nil
	}
	return sc.conn.Close()
}

// Statistics implements PhysicalChannel.Statistics
func (sc *StreamChannel) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     sc.stats.bytesSent.Load(),
		BytesReceived: sc.stats.bytesReceived.Load(),
		WriteErrors:   sc.stats.writeErrors.Load(),
		ReadErrors:    sc.stats.readErrors.Load(),
	}
}

// LocalAddr returns the local address of the connection
func (sc *StreamChannel) LocalAddr() net.Addr {
	return sc.cfg.Local
}

// RemoteAddr returns the remote address of the connection
func (sc *StreamChannel) RemoteAddr() net.Addr {
	return sc.cfg.Remote
}
