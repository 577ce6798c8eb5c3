package channel

import (
	"context"
	"errors"
	"sync"

	"avaneesh/dnp3-outstation/pkg/internal/logger"
	"avaneesh/dnp3-outstation/pkg/link"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrChannelOpen   = errors.New("channel is already open")
)

// Received is one item read from the wire: a decoded frame, or the protocol
// error that prevented decoding one
type Received struct {
	Frame *link.Frame
	Raw   []byte
	Err   error // *link.CrcError or *link.FramingError
}

// Channel owns one physical connection. It decodes inbound frames onto
// Frames() and serialises outbound writes.
type Channel struct {
	id              string
	physicalChannel PhysicalChannel
	stats           *Statistics
	logger          logger.Logger
	tap             FrameTap

	// State
	state   ChannelState
	stateMu sync.RWMutex

	// Concurrency
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frames     chan Received
	writeQueue chan *writeRequest

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// writeRequest represents a write request
type writeRequest struct {
	data []byte
	resp chan error
}

// New creates a new channel around an accepted connection
func New(id string, physical PhysicalChannel, log logger.Logger) *Channel {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Channel{
		id:              id,
		physicalChannel: physical,
		stats:           NewStatistics(),
		logger:          log,
		state:           ChannelStateClosed,
		ctx:             ctx,
		cancel:          cancel,
		frames:          make(chan Received, 16),
		writeQueue:      make(chan *writeRequest, 100),
		done:            make(chan struct{}),
	}
}

// SetTap installs an observer for every frame in and out. Call before Open.
func (c *Channel) SetTap(tap FrameTap) {
	c.tap = tap
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Physical returns the underlying connection
func (c *Channel) Physical() PhysicalChannel {
	return c.physicalChannel
}

// Statistics returns the live link counters
func (c *Channel) Statistics() *Statistics {
	return c.stats
}

// Frames delivers inbound frames until the channel stops
func (c *Channel) Frames() <-chan Received {
	return c.frames
}

// Done is closed once the channel stops, after a fatal I/O error or Close
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns why the channel stopped, nil while it runs
func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Open opens the channel and starts processing
func (c *Channel) Open() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == ChannelStateOpen {
		return ErrChannelOpen
	}
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.state = ChannelStateOpen
	c.logger.Debug("Channel %s opening", c.id)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()

	c.logger.Info("Channel %s opened, remote %v", c.id, c.physicalChannel.RemoteAddr())
	return nil
}

// Close closes the channel. It is safe to call more than once.
func (c *Channel) Close() error {
	c.stateMu.Lock()
	wasOpen := c.state == ChannelStateOpen
	c.state = ChannelStateClosed
	c.stateMu.Unlock()

	c.cancel()
	if err := c.physicalChannel.Close(); err != nil {
		c.logger.Debug("Channel %s: error closing physical channel: %v", c.id, err)
	}
	c.wg.Wait()
	c.stop(ErrChannelClosed)

	if wasOpen {
		c.logger.Info("Channel %s closed", c.id)
	}
	return nil
}

// Write queues one encoded frame and waits until it is written
func (c *Channel) Write(data []byte) error {
	req := &writeRequest{data: data, resp: make(chan error, 1)}

	select {
	case c.writeQueue <- req:
	case <-c.ctx.Done():
		return ErrChannelClosed
	}

	select {
	case err := <-req.resp:
		return err
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

func (c *Channel) stop(err error) {
	c.doneOnce.Do(func() {
		c.err = err
		close(c.done)
	})
	c.cancel()
}

// readLoop continuously reads from physical channel
func (c *Channel) readLoop() {
	c.logger.Debug("Channel %s read loop started", c.id)
	defer c.logger.Debug("Channel %s read loop stopped", c.id)

	for {
		data, err := c.physicalChannel.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			var (
				crcErr     *link.CrcError
				framingErr *link.FramingError
			)
			switch {
			case errors.As(err, &crcErr):
				c.stats.CRCErrors.Inc()
			case errors.As(err, &framingErr):
				c.stats.FramingErrors.Inc()
			default:
				c.logger.Info("Channel %s read error: %v", c.id, err)
				c.stop(err)
				return
			}

			c.logger.Debug("Channel %s dropped frame: %v", c.id, err)
			if !c.deliver(Received{Err: err}) {
				return
			}
			continue
		}

		frame, _, err := link.Decode(data)
		if err != nil {
			c.stats.FramingErrors.Inc()
			if !c.deliver(Received{Err: err}) {
				return
			}
			continue
		}

		c.stats.LinkFramesRx.Inc()
		if c.tap != nil {
			c.tap.RecordFrame(true, c.physicalChannel.LocalAddr(), c.physicalChannel.RemoteAddr(), data)
		}
		c.logger.Debug("Channel %s received frame: %s", c.id, frame)

		if !c.deliver(Received{Frame: frame, Raw: data}) {
			return
		}
	}
}

func (c *Channel) deliver(r Received) bool {
	select {
	case c.frames <- r:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// writeLoop processes write requests
func (c *Channel) writeLoop() {
	c.logger.Debug("Channel %s write loop started", c.id)
	defer c.logger.Debug("Channel %s write loop stopped", c.id)

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining requests with error
			for {
				select {
				case req := <-c.writeQueue:
					req.resp <- ErrChannelClosed
				default:
					return
				}
			}

		case req := <-c.writeQueue:
			err := c.physicalChannel.Write(c.ctx, req.data)
			if err != nil {
				c.stats.WriteErrors.Inc()
				c.logger.Error("Channel %s write error: %v", c.id, err)
				req.resp <- err
				c.stop(err)
				continue
			}

			c.stats.LinkFramesTx.Inc()
			if c.tap != nil {
				c.tap.RecordFrame(false, c.physicalChannel.LocalAddr(), c.physicalChannel.RemoteAddr(), req.data)
			}
			req.resp <- nil
		}
	}
}
