package outstation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"avaneesh/dnp3-outstation/pkg/channel"
	"avaneesh/dnp3-outstation/pkg/internal/logger"
	"avaneesh/dnp3-outstation/pkg/types"
)

// State is the lifecycle state of an Outstation
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ListenFunc opens the listener masters connect to
type ListenFunc func(cfg Config) (channel.Listener, error)

// ListenTCP is the default ListenFunc
func ListenTCP(cfg Config) (channel.Listener, error) {
	return channel.ListenTCP(channel.TCPChannelConfig{Address: cfg.Address()})
}

// Option customises an Outstation
type Option func(*Outstation)

// WithListener replaces the TCP listener, e.g. with QUIC or serial
func WithListener(listen ListenFunc) Option {
	return func(o *Outstation) {
		o.listen = listen
	}
}

// WithFrameTap installs an observer on every session's channel
func WithFrameTap(tap channel.FrameTap) Option {
	return func(o *Outstation) {
		o.tap = tap
	}
}

// Outstation serves the point database to DNP3 masters. One goroutine runs
// per accepted connection; they share the database, the event buffer and
// the select registry.
type Outstation struct {
	cfg     Config
	handler CommandHandler
	log     logger.Logger
	listen  ListenFunc
	tap     channel.FrameTap

	db      *Database
	events  *EventBuffer
	selects *selectRegistry

	restart    atomic.Bool
	needTime   atomic.Bool
	timeOffset atomic.Int64 // ms added to the local clock after a time sync

	mu       sync.Mutex
	state    State
	listener channel.Listener
	sessions map[string]*session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and builds an outstation. A nil handler selects
// DefaultCommandHandler, a nil log discards log output.
func New(cfg Config, handler CommandHandler, log logger.Logger, opts ...Option) (*Outstation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = NewDefaultCommandHandler()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Outstation{
		cfg:      cfg.clone(),
		handler:  handler,
		log:      log,
		listen:   ListenTCP,
		events:   NewEventBuffer(cfg.EventBufferSize),
		selects:  newSelectRegistry(cfg.SelectTimeout.Duration),
		sessions: make(map[string]*session),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.db = NewDatabase(o.cfg.Points, o.events)
	o.db.SetClock(o.now)
	o.db.OnChange(o.wakeSessions)
	o.restart.Store(true)
	o.needTime.Store(true)

	o.log.Info("Outstation %s created: local=%d, master=%d", cfg.ID, cfg.LocalAddress, cfg.MasterAddress)
	return o, nil
}

// Start binds the listener and begins accepting masters
func (o *Outstation) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return ErrAlreadyStarted
	}

	l, err := o.listen(o.cfg)
	if err != nil {
		return &BindError{Addr: o.cfg.Address(), Err: err}
	}
	o.listener = l
	o.state = StateRunning

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.acceptLoop(l)
	}()

	o.log.Info("Outstation %s listening on %v", o.cfg.ID, l.Addr())
	return nil
}

func (o *Outstation) acceptLoop(l channel.Listener) {
	for {
		pc, err := l.Accept(o.ctx)
		if err != nil {
			if o.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			o.log.Warn("Outstation %s: accept: %v", o.cfg.ID, err)
			select {
			case <-o.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		o.startSession(pc)
	}
}

func (o *Outstation) startSession(pc channel.PhysicalChannel) {
	id := uuid.NewString()
	ch := channel.New(id, pc, o.log)
	if o.tap != nil {
		ch.SetTap(o.tap)
	}

	s := newSession(id, o, ch)

	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		_ = pc.Close()
		return
	}
	o.sessions[id] = s
	o.wg.Add(1)
	o.mu.Unlock()

	if err := ch.Open(); err != nil {
		o.log.Error("Outstation %s: session %s: %v", o.cfg.ID, id, err)
	}
	o.log.Info("Outstation %s: session %s accepted from %v", o.cfg.ID, id, pc.RemoteAddr())

	go func() {
		defer o.wg.Done()
		s.run(o.ctx)
	}()
}

func (o *Outstation) removeSession(s *session) {
	o.mu.Lock()
	delete(o.sessions, s.id)
	o.mu.Unlock()
	o.log.Info("Outstation %s: session %s closed", o.cfg.ID, s.id)
}

func (o *Outstation) wakeSessions() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.sessions {
		s.wake()
	}
}

// Shutdown closes every session and the listener. It is safe to call more
// than once.
func (o *Outstation) Shutdown() error {
	o.mu.Lock()
	if o.state == StateStopped {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopped
	l := o.listener
	o.mu.Unlock()

	o.log.Info("Outstation %s shutting down", o.cfg.ID)
	o.cancel()

	var err error
	if l != nil {
		err = l.Close()
	}
	o.wg.Wait()

	o.log.Info("Outstation %s shutdown complete", o.cfg.ID)
	return err
}

// ApplyUpdate updates one point and returns the resulting snapshot
func (o *Outstation) ApplyUpdate(class types.PointClass, index uint16, value any, opts ...UpdateOption) (Snapshot, error) {
	if o.State() == StateStopped {
		return nil, ErrNotRunning
	}
	if _, err := o.db.Update(class, index, value, opts...); err != nil {
		return nil, err
	}
	return o.db.Snapshot(), nil
}

// Apply applies a batch of updates atomically
func (o *Outstation) Apply(updates *Updates) error {
	if o.State() == StateStopped {
		return ErrNotRunning
	}
	return o.db.Apply(updates)
}

// GetConfig returns the configuration the outstation was built with
func (o *Outstation) GetConfig() Config {
	return o.cfg.clone()
}

// IsConnected reports whether at least one master session is active
func (o *Outstation) IsConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.sessions {
		if s.State() == SessionActive {
			return true
		}
	}
	return false
}

// DBSnapshot returns every point value keyed by class name and index
func (o *Outstation) DBSnapshot() Snapshot {
	return o.db.Snapshot()
}

// Database returns the point database
func (o *Outstation) Database() *Database {
	return o.db
}

// Sessions lists the current sessions ordered by connection time
func (o *Outstation) Sessions() []SessionInfo {
	o.mu.Lock()
	list := make([]*session, 0, len(o.sessions))
	for _, s := range o.sessions {
		list = append(list, s)
	}
	o.mu.Unlock()

	infos := make([]SessionInfo, len(list))
	for i, s := range list {
		infos[i] = s.info()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// State returns the lifecycle state
func (o *Outstation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Addr returns the listening address, nil before Start
func (o *Outstation) Addr() net.Addr {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listener == nil {
		return nil
	}
	return o.listener.Addr()
}

// now is the outstation clock: local time corrected by the last time sync
func (o *Outstation) now() types.DNP3Time {
	return types.FromTime(time.Now().Add(time.Duration(o.timeOffset.Load()) * time.Millisecond))
}

func (o *Outstation) setTime(t types.DNP3Time) {
	o.timeOffset.Store(int64(t) - time.Now().UnixMilli())
	o.needTime.Store(false)
}

// String returns string representation
func (o *Outstation) String() string {
	return fmt.Sprintf("Outstation{ID=%s, Local=%d, Master=%d}", o.cfg.ID, o.cfg.LocalAddress, o.cfg.MasterAddress)
}
