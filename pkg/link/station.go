package link

import "fmt"

// StationConfig configures the secondary (outstation) side of a link
type StationConfig struct {
	LocalAddress    uint16 // Outstation address
	MasterAddress   uint16 // Only frames from this source are accepted
	AcceptAnyMaster bool   // Accept frames from any source address
	MaxFailures     int    // Consecutive failures that end the session, <= 0 disables the limit
}

// Delivery is the outcome of one received frame
type Delivery struct {
	Reply     []byte // Encoded link reply to transmit, nil when none is due
	UserData  []byte // Transport segment for the upper layer, nil when none
	Master    uint16 // Source address of the frame
	Broadcast bool   // Frame was addressed to a broadcast address
}

// FCBValidator handles Frame Count Bit validation and duplicate detection
// for one master
type FCBValidator struct {
	expected    bool
	initialized bool
}

// NewFCBValidator creates a validator that accepts the first FCB it sees
func NewFCBValidator() *FCBValidator {
	return &FCBValidator{}
}

// ValidateAndUpdate returns true if the frame repeats the previous one
func (v *FCBValidator) ValidateAndUpdate(fcb bool, fcv bool) bool {
	if !fcv {
		return false
	}
	if v.initialized && fcb != v.expected {
		return true
	}
	v.initialized = true
	v.expected = !fcb
	return false
}

// Reset follows a RESET LINK: the next valid frame must carry FCB=1
func (v *FCBValidator) Reset() {
	v.initialized = true
	v.expected = true
}

// Station implements the secondary link station of an outstation.
// It is owned by a single session goroutine and is not safe for concurrent use.
type Station struct {
	cfg       StationConfig
	fcb       map[uint16]*FCBValidator
	lastReply map[uint16][]byte
	failures  int
}

// NewStation creates a link station
func NewStation(cfg StationConfig) *Station {
	return &Station{
		cfg:       cfg,
		fcb:       make(map[uint16]*FCBValidator),
		lastReply: make(map[uint16][]byte),
	}
}

// LocalAddress returns the outstation address
func (s *Station) LocalAddress() uint16 {
	return s.cfg.LocalAddress
}

// Receive applies link semantics to a decoded frame.
// Frames that are not meant for this station return ErrInvalidAddress,
// ErrInvalidDirection or ErrNotPrimary and are otherwise ignored.
func (s *Station) Receive(f *Frame) (Delivery, error) {
	d := Delivery{Master: f.Source, Broadcast: IsBroadcast(f.Destination)}

	if f.Destination != s.cfg.LocalAddress && !d.Broadcast {
		return d, fmt.Errorf("%w: destination %d", ErrInvalidAddress, f.Destination)
	}
	if !s.cfg.AcceptAnyMaster && f.Source != s.cfg.MasterAddress {
		return d, fmt.Errorf("%w: source %d", ErrInvalidAddress, f.Source)
	}
	if f.Dir != DirectionMasterToOutstation {
		return d, ErrInvalidDirection
	}
	if f.IsPrimary != PrimaryFrame {
		// secondary replies to our own frames carry nothing to act on
		return d, ErrNotPrimary
	}

	s.failures = 0
	v := s.validator(f.Source)

	var (
		reply FunctionCode
		send  = true
	)
	switch f.FunctionCode {
	case FuncResetLink:
		v.Reset()
		reply = FuncAck
	case FuncTestLinkStates:
		if v.ValidateAndUpdate(f.FCB, f.FCV) {
			d.Reply = s.lastReply[f.Source]
			return s.dropBroadcastReply(d), nil
		}
		reply = FuncAck
	case FuncUserDataConfirmed:
		if v.ValidateAndUpdate(f.FCB, f.FCV) {
			// retry of a frame already delivered: confirm again, deliver nothing
			reply = FuncAck
			break
		}
		d.UserData = f.UserData
		reply = FuncAck
	case FuncUserDataUnconfirmed:
		d.UserData = f.UserData
		send = false
	case FuncRequestLinkStatus:
		reply = FuncLinkStatusResponse
	case FuncResetUserProcess:
		reply = FuncLinkNotUsed
	default:
		reply = FuncLinkNotUsed
	}

	if send {
		frame := NewFrame(DirectionOutstationToMaster, SecondaryFrame, reply, f.Source, s.cfg.LocalAddress, nil)
		encoded, err := frame.Encode()
		if err != nil {
			return d, err
		}
		d.Reply = encoded
		s.lastReply[f.Source] = encoded
	}
	return s.dropBroadcastReply(d), nil
}

// Failure records a CRC, framing or transport failure. It returns
// ErrTooManyFailures when the run of consecutive failures reaches
// MaxFailures.
func (s *Station) Failure() error {
	s.failures++
	if s.cfg.MaxFailures > 0 && s.failures >= s.cfg.MaxFailures {
		return fmt.Errorf("%w (%d)", ErrTooManyFailures, s.failures)
	}
	return nil
}

// Failures returns the current run of consecutive failures
func (s *Station) Failures() int {
	return s.failures
}

// Frame wraps a transport segment for master in an unconfirmed user data frame
func (s *Station) Frame(master uint16, segment []byte) ([]byte, error) {
	return NewUserDataFrame(master, s.cfg.LocalAddress, segment).Encode()
}

func (s *Station) validator(master uint16) *FCBValidator {
	v, ok := s.fcb[master]
	if !ok {
		v = NewFCBValidator()
		s.fcb[master] = v
	}
	return v
}

// broadcasts are never answered at the link layer
func (s *Station) dropBroadcastReply(d Delivery) Delivery {
	if d.Broadcast {
		d.Reply = nil
	}
	return d
}
