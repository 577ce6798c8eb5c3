package outstation

import (
	"bytes"
	"sync"
	"time"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/types"
)

type pointKey struct {
	class types.PointClass
	index uint16
}

// selection is an armed SELECT waiting for its OPERATE
type selection struct {
	seq     uint8
	objects []byte
	points  []pointKey
	expires time.Time
}

// selectRegistry holds at most one armed selection per session. A selection
// is consumed by the first OPERATE from the same session, whether it matches
// or not.
type selectRegistry struct {
	timeout time.Duration
	now     func() time.Time

	byOwner map[string]*selection
	mu      sync.Mutex
}

func newSelectRegistry(timeout time.Duration) *selectRegistry {
	return &selectRegistry{
		timeout: timeout,
		now:     time.Now,
		byOwner: make(map[string]*selection),
	}
}

// Busy reports whether another session holds an unexpired selection of p
func (r *selectRegistry) Busy(owner string, p pointKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for o, sel := range r.byOwner {
		if o == owner || !now.Before(sel.expires) {
			continue
		}
		for _, k := range sel.points {
			if k == p {
				return true
			}
		}
	}
	return false
}

// Arm records a successful SELECT, replacing any earlier selection of owner
func (r *selectRegistry) Arm(owner string, seq uint8, objects []byte, points []pointKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byOwner[owner] = &selection{
		seq:     seq & app.AppCtrlSeqMask,
		objects: append([]byte(nil), objects...),
		points:  points,
		expires: r.now().Add(r.timeout),
	}
}

// Operate consumes the selection of owner. It reports whether the OPERATE
// carrying seq and objects follows the SELECT directly, repeats its objects
// byte for byte and arrives before the selection expired.
func (r *selectRegistry) Operate(owner string, seq uint8, objects []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, ok := r.byOwner[owner]
	if !ok {
		return false
	}
	delete(r.byOwner, owner)

	if !r.now().Before(sel.expires) {
		return false
	}
	return seq&app.AppCtrlSeqMask == app.NextSequence(sel.seq) && bytes.Equal(objects, sel.objects)
}

// Cancel drops the selection of owner
func (r *selectRegistry) Cancel(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byOwner, owner)
}
