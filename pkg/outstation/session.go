package outstation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/channel"
	"avaneesh/dnp3-outstation/pkg/internal/logger"
	"avaneesh/dnp3-outstation/pkg/link"
	"avaneesh/dnp3-outstation/pkg/transport"
	"avaneesh/dnp3-outstation/pkg/types"
)

// SessionState is the lifecycle state of one master connection
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionLinked
	SessionActive
	SessionShutdown
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "Idle"
	case SessionLinked:
		return "Linked"
	case SessionActive:
		return "Active"
	case SessionShutdown:
		return "Shutdown"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// MarshalText encodes the state by name
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var errUnsolicitedStalled = errors.New("unsolicited response not confirmed")

// SessionInfo describes one session for display
type SessionInfo struct {
	ID           string                       `json:"id"`
	Remote       string                       `json:"remote"`
	Master       uint16                       `json:"master"`
	State        SessionState                 `json:"state"`
	ConnectedAt  time.Time                    `json:"connectedAt"`
	LastActivity time.Time                    `json:"lastActivity,omitempty"`
	Link         channel.StatisticsSnapshot   `json:"link"`
	Transport    transport.StatisticsSnapshot `json:"transport"`
	Physical     channel.TransportStats       `json:"physical"`
	Unsolicited  string                       `json:"unsolicited"`
}

// pendingSolicited is a solicited response waiting for application confirms
type pendingSolicited struct {
	fragments []*app.APDU
	next      int  // fragment awaiting confirmation
	events    bool // events were selected under the session id
}

// pendingUnsolicited is an unsolicited response waiting for its confirm
type pendingUnsolicited struct {
	data    []byte
	seq     uint8
	retries int
}

// session serves one master connection. Everything except the state and
// activity fields is owned by the run goroutine.
type session struct {
	id  string
	o   *Outstation
	ch  *channel.Channel
	log logger.Logger

	station   *link.Station
	transport *transport.OutstationTransport

	state        atomic.Int32
	masterAddr   atomic.Uint32
	unsolMask    atomic.Uint32
	connectedAt  time.Time
	lastActivity atomic.Int64

	notify chan struct{}

	// duplicate request detection
	lastRequest  []byte
	lastResponse []byte

	solicited *pendingSolicited
	solTimer  *time.Timer

	unsolSeq   uint8
	unsol      *pendingUnsolicited
	unsolTimer *time.Timer

	allStations bool
}

func newSession(id string, o *Outstation, ch *channel.Channel) *session {
	cfg := o.cfg
	s := &session{
		id:  id,
		o:   o,
		ch:  ch,
		log: o.log,
		station: link.NewStation(link.StationConfig{
			LocalAddress:    cfg.LocalAddress,
			MasterAddress:   cfg.MasterAddress,
			AcceptAnyMaster: cfg.AcceptAnyMaster,
			MaxFailures:     cfg.MaxLinkFailures,
		}),
		transport: transport.NewOutstationTransport(transport.Config{
			ReassemblyTimeout: cfg.ReassemblyTimeout.Duration,
			MaxReassemblySize: cfg.MaxRxFragmentSize,
			MaxSegmentSize:    transport.MaxSegmentSize,
		}),
		connectedAt: time.Now(),
		notify:      make(chan struct{}, 1),
	}
	s.masterAddr.Store(uint32(cfg.MasterAddress))
	s.state.Store(int32(SessionLinked))
	return s
}

func (s *session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *session) setState(state SessionState) {
	if old := SessionState(s.state.Swap(int32(state))); old != state {
		s.log.Info("Session %s: %s -> %s", s.id, old, state)
	}
}

func (s *session) master() uint16 {
	return uint16(s.masterAddr.Load())
}

// wake asks the run loop to look for unsolicited work
func (s *session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *session) info() SessionInfo {
	info := SessionInfo{
		ID:          s.id,
		Master:      s.master(),
		State:       s.State(),
		ConnectedAt: s.connectedAt,
		Link:        s.ch.Statistics().Snapshot(),
		Transport:   s.transport.Stats().Snapshot(),
		Physical:    s.ch.Physical().Statistics(),
		Unsolicited: app.ClassField(s.unsolMask.Load()).String(),
	}
	if addr := s.ch.Physical().RemoteAddr(); addr != nil {
		info.Remote = addr.String()
	}
	if n := s.lastActivity.Load(); n != 0 {
		info.LastActivity = time.Unix(0, n)
	}
	return info
}

func (s *session) unsolOwner() string {
	return s.id + ":unsol"
}

// run serves the connection until it fails, stalls or ctx is cancelled
func (s *session) run(ctx context.Context) {
	defer s.teardown()

	for {
		var solC, unsolC <-chan time.Time
		if s.solTimer != nil {
			solC = s.solTimer.C
		}
		if s.unsolTimer != nil {
			unsolC = s.unsolTimer.C
		}

		var err error
		select {
		case <-ctx.Done():
			return
		case <-s.ch.Done():
			s.log.Info("Session %s: connection closed: %v", s.id, s.ch.Err())
			return
		case r := <-s.ch.Frames():
			err = s.onReceived(ctx, r)
		case <-s.notify:
			err = s.trySendUnsolicited(ctx)
		case <-solC:
			s.solTimer = nil
			s.onSolicitedTimeout(ctx)
		case <-unsolC:
			s.unsolTimer = nil
			err = s.onUnsolicitedTimeout(ctx)
		}
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("Session %s: closing: %v", s.id, err)
			}
			return
		}
	}
}

func (s *session) teardown() {
	s.setState(SessionShutdown)
	stopTimer(s.solTimer)
	stopTimer(s.unsolTimer)
	s.solTimer, s.unsolTimer = nil, nil
	s.solicited, s.unsol = nil, nil

	s.o.events.Release(s.id)
	s.o.events.Release(s.unsolOwner())
	s.o.selects.Cancel(s.id)

	s.transport.Close()
	_ = s.ch.Close()
	s.o.removeSession(s)
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// onReceived applies link and transport processing to one channel item.
// A returned error ends the session.
func (s *session) onReceived(ctx context.Context, r channel.Received) error {
	if r.Err != nil {
		s.log.Debug("Session %s: bad frame: %v", s.id, r.Err)
		return s.station.Failure()
	}

	d, err := s.station.Receive(r.Frame)
	if err != nil {
		s.log.Debug("Session %s: ignoring frame: %v", s.id, err)
		return nil
	}
	s.lastActivity.Store(time.Now().UnixNano())

	if d.Reply != nil {
		if err := s.ch.Write(d.Reply); err != nil {
			return err
		}
	}
	if d.UserData == nil {
		return nil
	}
	if !d.Broadcast {
		s.masterAddr.Store(uint32(d.Master))
	}

	fragment, err := s.transport.Receive(d.UserData)
	if err != nil {
		s.log.Debug("Session %s: transport: %v", s.id, err)
		return s.station.Failure()
	}
	if fragment == nil {
		return nil
	}
	return s.onFragment(ctx, fragment, d.Broadcast)
}

// onFragment handles one complete application fragment from the master
func (s *session) onFragment(ctx context.Context, data []byte, broadcast bool) error {
	msg, err := app.ParseRequest(data)
	if msg == nil {
		s.log.Debug("Session %s: dropping fragment: %v", s.id, err)
		return nil
	}
	s.setState(SessionActive)
	s.log.Debug("Session %s: received %s", s.id, msg.APDU)

	fc := msg.Function()
	if fc == app.FuncConfirm {
		return s.onConfirm(ctx, msg.APDU)
	}

	// a new request ends any solicited transaction still waiting for confirms
	s.abandonSolicited()

	if broadcast {
		s.allStations = true
	} else if s.lastRequest != nil && fc != app.FuncRead && string(data) == string(s.lastRequest) {
		s.log.Debug("Session %s: repeated %s, sending previous response", s.id, fc)
		return s.sendRaw(ctx, s.lastResponse)
	}

	var res result
	var perr *app.ParseError
	switch {
	case errors.As(err, &perr):
		s.log.Debug("Session %s: %v", s.id, perr)
		res.iin.IIN2 = perr.IIN2
	case err != nil:
		return nil
	default:
		res = s.handle(msg)
	}

	if broadcast || fc.NoAck() {
		if res.events {
			s.o.events.Release(s.id)
		}
		return nil
	}

	apdus := app.Build(app.ResponseData{
		Function: app.FuncResponse,
		Sequence: msg.APDU.Sequence,
		IIN:      s.iin(res.iin),
		Confirm:  res.events,
		Blocks:   res.blocks,
	}, s.o.cfg.MaxTxFragmentSize)

	if fc == app.FuncRead {
		s.lastRequest, s.lastResponse = nil, nil
	} else {
		s.lastRequest = append([]byte(nil), data...)
		s.lastResponse = apdus[0].Serialize()
	}

	s.solicited = &pendingSolicited{fragments: apdus, events: res.events}
	return s.sendSolicited(ctx)
}

// sendSolicited transmits the next fragment of the pending response and
// arms the confirm timer if the fragment asks for one
func (s *session) sendSolicited(ctx context.Context) error {
	p := s.solicited
	apdu := p.fragments[p.next]
	if err := s.sendRaw(ctx, apdu.Serialize()); err != nil {
		return err
	}
	if apdu.CON {
		s.solTimer = time.NewTimer(s.o.cfg.SolicitedConfirmTimeout.Duration)
		return nil
	}
	s.solicited = nil
	return s.trySendUnsolicited(ctx)
}

func (s *session) onConfirm(ctx context.Context, apdu *app.APDU) error {
	if apdu.UNS {
		if s.unsol == nil || apdu.Sequence != s.unsol.seq {
			s.log.Debug("Session %s: unexpected unsolicited confirm seq=%d", s.id, apdu.Sequence)
			return nil
		}
		stopTimer(s.unsolTimer)
		s.unsolTimer = nil
		s.unsol = nil
		s.o.db.clearEventFlags(s.o.events.Ack(s.unsolOwner()))
		s.unsolSeq = app.NextSequence(s.unsolSeq)
		return s.trySendUnsolicited(ctx)
	}

	p := s.solicited
	if p == nil || apdu.Sequence != p.fragments[p.next].Sequence {
		s.log.Debug("Session %s: unexpected confirm seq=%d", s.id, apdu.Sequence)
		return nil
	}
	stopTimer(s.solTimer)
	s.solTimer = nil

	p.next++
	if p.next < len(p.fragments) {
		return s.sendSolicited(ctx)
	}
	s.solicited = nil
	if p.events {
		s.o.db.clearEventFlags(s.o.events.Ack(s.id))
	}
	return s.trySendUnsolicited(ctx)
}

func (s *session) onSolicitedTimeout(ctx context.Context) {
	s.log.Debug("Session %s: solicited confirm timeout", s.id)
	s.abandonSolicited()
	if err := s.trySendUnsolicited(ctx); err != nil {
		s.log.Debug("Session %s: %v", s.id, err)
	}
}

func (s *session) abandonSolicited() {
	if s.solicited == nil {
		return
	}
	stopTimer(s.solTimer)
	s.solTimer = nil
	if s.solicited.events {
		s.o.events.Release(s.id)
	}
	s.solicited = nil
}

// iin assembles the indications reported in a response
func (s *session) iin(extra types.IIN) types.IIN {
	o := s.o
	iin := types.IIN{}.
		WithIIN1(types.IIN1DeviceRestart, o.restart.Load()).
		WithIIN1(types.IIN1NeedTime, o.needTime.Load()).
		WithIIN1(types.IIN1LocalControl, o.cfg.LocalControl).
		WithIIN1(types.IIN1DeviceTrouble, o.cfg.DeviceTrouble).
		WithIIN1(types.IIN1AllStations, s.allStations).
		WithIIN2(types.IIN2EventBufferOverflow, o.events.Overflow())
	s.allStations = false

	pending := o.events.Pending()
	iin = iin.
		WithIIN1(types.IIN1Class1Events, pending.HasClass(app.Class1)).
		WithIIN1(types.IIN1Class2Events, pending.HasClass(app.Class2)).
		WithIIN1(types.IIN1Class3Events, pending.HasClass(app.Class3))
	return iin.Merge(extra)
}

// sendRaw segments and frames one serialized APDU. Nothing is written once
// ctx is done.
func (s *session) sendRaw(ctx context.Context, apdu []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	master := s.master()
	for _, seg := range s.transport.Send(apdu) {
		frame, err := s.station.Frame(master, seg)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.ch.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

// eventLimit caps events per response so they always fit in one fragment
func (s *session) eventLimit() int {
	n := (s.o.cfg.MaxTxFragmentSize - app.ResponseHeaderSize) / maxEventCost
	if n < 1 {
		n = 1
	}
	return n
}

// worst case bytes per event: a 0x28 header of its own, the index and the
// largest event object
const maxEventCost = 5 + 2 + 11
