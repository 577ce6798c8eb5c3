package outstation

import (
	"context"
	"time"

	"avaneesh/dnp3-outstation/pkg/app"
)

// trySendUnsolicited reports buffered events of the enabled classes when no
// other transaction is in flight
func (s *session) trySendUnsolicited(ctx context.Context) error {
	mask := app.ClassField(s.unsolMask.Load())
	if !s.o.cfg.AllowUnsolicited || mask == 0 || s.unsol != nil || s.solicited != nil {
		return nil
	}
	if s.o.events.Pending()&mask == 0 {
		return nil
	}

	owner := s.unsolOwner()
	events := s.o.events.Select(owner, mask, s.eventLimit())
	if len(events) == 0 {
		return nil
	}

	apdus := app.Build(app.ResponseData{
		Function: app.FuncUnsolicitedResponse,
		Sequence: s.unsolSeq,
		IIN:      s.iin(app.IIN{}),
		Confirm:  true,
		Blocks:   eventBlocks(events),
	}, s.o.cfg.MaxTxFragmentSize)

	s.unsol = &pendingUnsolicited{data: apdus[0].Serialize(), seq: s.unsolSeq}
	s.log.Debug("Session %s: unsolicited seq=%d with %d events", s.id, s.unsolSeq, len(events))
	if err := s.sendRaw(ctx, s.unsol.data); err != nil {
		return err
	}
	s.unsolTimer = time.NewTimer(s.o.cfg.UnsolicitedConfirmTimeout.Duration)
	return nil
}

// onUnsolicitedTimeout repeats the pending unsolicited response until the
// retry limit, then gives up on the session
func (s *session) onUnsolicitedTimeout(ctx context.Context) error {
	u := s.unsol
	if u == nil {
		return nil
	}
	if u.retries >= s.o.cfg.UnsolicitedRetries {
		s.unsol = nil
		s.o.events.Release(s.unsolOwner())
		return errUnsolicitedStalled
	}

	u.retries++
	s.log.Debug("Session %s: unsolicited seq=%d retry %d", s.id, u.seq, u.retries)
	if err := s.sendRaw(ctx, u.data); err != nil {
		return err
	}
	s.unsolTimer = time.NewTimer(s.o.cfg.UnsolicitedConfirmTimeout.Duration)
	return nil
}
