package outstation

import (
	"testing"
	"time"

	"avaneesh/dnp3-outstation/pkg/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(timeout time.Duration) (*selectRegistry, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	r := newSelectRegistry(timeout)
	r.now = clock.now
	return r, clock
}

var crobPoint = pointKey{class: types.PointClassBinaryOutputStatus, index: 3}

func TestSelectRegistry_Operate(t *testing.T) {
	objects := []byte{0x0C, 0x01, 0x28, 0x01, 0x00, 0x03, 0x00}
	other := []byte{0x0C, 0x01, 0x28, 0x01, 0x00, 0x04, 0x00}

	tests := []struct {
		name    string
		seq     uint8
		objects []byte
		elapsed time.Duration
		want    bool
	}{
		{"matching", 6, objects, 0, true},
		{"just before expiry", 6, objects, 999 * time.Millisecond, true},
		{"expired", 6, objects, time.Second, false},
		{"wrong sequence", 7, objects, 0, false},
		{"same sequence", 5, objects, 0, false},
		{"different objects", 6, other, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, clock := newTestRegistry(time.Second)
			r.Arm("s1", 5, objects, []pointKey{crobPoint})
			clock.advance(tt.elapsed)
			if got := r.Operate("s1", tt.seq, tt.objects); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if r.Operate("s1", tt.seq, tt.objects) {
				t.Error("selection must be consumed by the first operate")
			}
		})
	}
}

func TestSelectRegistry_SequenceWraps(t *testing.T) {
	r, _ := newTestRegistry(time.Second)
	r.Arm("s1", 15, []byte{1}, nil)
	if !r.Operate("s1", 0, []byte{1}) {
		t.Error("operate after sequence 15 must carry sequence 0")
	}
}

func TestSelectRegistry_ArmCopiesObjects(t *testing.T) {
	r, _ := newTestRegistry(time.Second)
	objects := []byte{1, 2, 3}
	r.Arm("s1", 0, objects, nil)
	objects[0] = 9
	if !r.Operate("s1", 1, []byte{1, 2, 3}) {
		t.Error("selection should keep its own copy of the objects")
	}
}

func TestSelectRegistry_Busy(t *testing.T) {
	r, clock := newTestRegistry(time.Second)
	r.Arm("s1", 0, []byte{1}, []pointKey{crobPoint})

	if r.Busy("s1", crobPoint) {
		t.Error("a session's own selection does not block it")
	}
	if !r.Busy("s2", crobPoint) {
		t.Error("selected point should be busy for other sessions")
	}
	if r.Busy("s2", pointKey{class: types.PointClassBinaryOutputStatus, index: 4}) {
		t.Error("unselected point should not be busy")
	}

	clock.advance(time.Second)
	if r.Busy("s2", crobPoint) {
		t.Error("expired selection should not block")
	}
}

func TestSelectRegistry_Cancel(t *testing.T) {
	r, _ := newTestRegistry(time.Second)
	r.Arm("s1", 0, []byte{1}, []pointKey{crobPoint})
	r.Cancel("s1")
	if r.Busy("s2", crobPoint) || r.Operate("s1", 1, []byte{1}) {
		t.Error("cancelled selection should be gone")
	}
}
