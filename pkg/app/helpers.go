package app

import (
	"time"

	"avaneesh/dnp3-outstation/pkg/types"
)

// Request builders, used by masters and by tests driving an outstation

// BuildReadRequest creates a read request APDU
func BuildReadRequest(seq uint8, objects []byte) *APDU {
	return NewRequestAPDU(FuncRead, seq, objects)
}

// BuildWriteRequest creates a write request APDU
func BuildWriteRequest(seq uint8, objects []byte) *APDU {
	return NewRequestAPDU(FuncWrite, seq, objects)
}

// BuildIntegrityPollRequest creates a Class 0 integrity poll request
func BuildIntegrityPollRequest(seq uint8) *APDU {
	return BuildReadRequest(seq, BuildIntegrityPoll())
}

// BuildEventPollRequest creates a Class 1,2,3 event poll request
func BuildEventPollRequest(seq uint8) *APDU {
	return BuildReadRequest(seq, BuildEventPoll())
}

// BuildEnableUnsolicitedRequest creates an enable unsolicited request
func BuildEnableUnsolicitedRequest(seq uint8, classes ...ClassField) *APDU {
	return NewRequestAPDU(FuncEnableUnsolicited, seq, BuildEnableUnsolicited(classes...))
}

// BuildDisableUnsolicitedRequest creates a disable unsolicited request
func BuildDisableUnsolicitedRequest(seq uint8, classes ...ClassField) *APDU {
	return NewRequestAPDU(FuncDisableUnsolicited, seq, BuildDisableUnsolicited(classes...))
}

// BuildTimeSyncRequest creates a time synchronization write request
func BuildTimeSyncRequest(seq uint8, t time.Time) *APDU {
	return BuildWriteRequest(seq, BuildTimeSync(t))
}

// BuildClearRestartRequest writes 0 to the DEVICE_RESTART indication
func BuildClearRestartRequest(seq uint8) *APDU {
	builder := NewObjectBuilder()
	builder.AddHeaderWithData(GroupInternalIndications, 1, Qualifier8BitStartStop,
		StartStopRange{Start: IINRestartIndex, Stop: IINRestartIndex}, []byte{0x00})
	return BuildWriteRequest(seq, builder.Build())
}

// BuildColdRestartRequest creates a cold restart request
func BuildColdRestartRequest(seq uint8) *APDU {
	return NewRequestAPDU(FuncColdRestart, seq, nil)
}

// BuildWarmRestartRequest creates a warm restart request
func BuildWarmRestartRequest(seq uint8) *APDU {
	return NewRequestAPDU(FuncWarmRestart, seq, nil)
}

// BuildSelectOperateRequest creates paired SELECT and OPERATE requests for
// one CROB. The OPERATE carries the next sequence number.
func BuildSelectOperateRequest(startSeq uint8, index uint16, crob types.CROB) (*APDU, *APDU) {
	objects := BuildCROBRequest(crob, index)
	return NewRequestAPDU(FuncSelect, startSeq, objects),
		NewRequestAPDU(FuncOperate, NextSequence(startSeq), objects)
}

// BuildDirectOperateCROBRequest creates a direct operate request for CROB
func BuildDirectOperateCROBRequest(seq uint8, index uint16, crob types.CROB) *APDU {
	return NewRequestAPDU(FuncDirectOperate, seq, BuildCROBRequest(crob, index))
}

// BuildDirectOperateAnalogRequest creates a direct operate request for an
// analog output
func BuildDirectOperateAnalogRequest(seq uint8, index uint16, ao types.AnalogOutput) *APDU {
	return NewRequestAPDU(FuncDirectOperate, seq, BuildAnalogOutputRequest(index, ao))
}

// BuildEmptyResponse creates a null response carrying only IIN
func BuildEmptyResponse(seq uint8, iin IIN) *APDU {
	return NewResponseAPDU(seq, iin, nil)
}

// SequenceCounter hands out 4-bit application sequence numbers
type SequenceCounter struct {
	current uint8
}

// NewSequenceCounter creates a new sequence counter starting at 0
func NewSequenceCounter() *SequenceCounter {
	return &SequenceCounter{}
}

// Next returns the next sequence number and increments the counter
func (s *SequenceCounter) Next() uint8 {
	seq := s.current
	s.current = NextSequence(s.current)
	return seq
}

// Current returns the current sequence number without incrementing
func (s *SequenceCounter) Current() uint8 {
	return s.current
}

// Reset resets the sequence counter to 0
func (s *SequenceCounter) Reset() {
	s.current = 0
}
