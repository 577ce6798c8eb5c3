package outstation

import (
	"container/list"
	"sync"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/types"
)

// Event is a queued change of one point
type Event struct {
	ID         uint64
	Class      types.PointClass
	Index      uint16
	EventClass uint8 // 1..3
	Previous   any
	Value      any
	Flags      types.Flags
	Time       types.DNP3Time

	owner string // transaction that has the event in flight
}

// EventBuffer keeps unconfirmed events per event class.
// Each class holds at most maxSize events; adding to a full class drops its
// oldest event not in flight and raises the overflow indication, which stays
// set until a confirmed transfer leaves every class below capacity. When the
// whole class is in flight the oldest is dropped anyway and still reported by
// Ack of its owner.
type EventBuffer struct {
	classes [3]*list.List
	dropped map[string][]*Event

	maxSize  int
	nextID   uint64
	overflow bool
	mu       sync.Mutex
}

// NewEventBuffer creates a new event buffer
func NewEventBuffer(maxSize int) *EventBuffer {
	if maxSize < 1 {
		maxSize = 1
	}
	eb := &EventBuffer{maxSize: maxSize, dropped: make(map[string][]*Event)}
	for i := range eb.classes {
		eb.classes[i] = list.New()
	}
	return eb
}

// Add queues an event and returns its id. Events with an event class outside
// 1..3 are discarded and get id 0.
func (eb *EventBuffer) Add(ev *Event) uint64 {
	if ev.EventClass < 1 || ev.EventClass > 3 {
		return 0
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	target := eb.classes[ev.EventClass-1]
	if target.Len() >= eb.maxSize {
		eb.dropOldest(target)
		eb.overflow = true
	}

	eb.nextID++
	ev.ID = eb.nextID
	ev.owner = ""
	target.PushBack(ev)
	return ev.ID
}

func (eb *EventBuffer) dropOldest(l *list.List) {
	victim := l.Front()
	for e := victim; e != nil; e = e.Next() {
		if e.Value.(*Event).owner == "" {
			victim = e
			break
		}
	}
	ev := l.Remove(victim).(*Event)
	if ev.owner != "" {
		eb.dropped[ev.owner] = append(eb.dropped[ev.owner], ev)
	}
}

// Select marks up to limit free events of the requested classes as owned by
// owner and returns them oldest first. limit <= 0 means no limit.
func (eb *EventBuffer) Select(owner string, classes app.ClassField, limit int) []*Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.selectLocked(owner, limit, func(ev *Event) bool {
		return classes.HasClass(classBit(ev.EventClass))
	})
}

// SelectPoints is Select restricted to the events of one point class
func (eb *EventBuffer) SelectPoints(owner string, class types.PointClass, limit int) []*Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.selectLocked(owner, limit, func(ev *Event) bool {
		return ev.Class == class
	})
}

func (eb *EventBuffer) selectLocked(owner string, limit int, match func(*Event) bool) []*Event {
	var out []*Event
	// merge the class lists by id so the result is chronological
	cursors := [3]*list.Element{eb.classes[0].Front(), eb.classes[1].Front(), eb.classes[2].Front()}
	for limit <= 0 || len(out) < limit {
		best := -1
		for i, e := range cursors {
			for e != nil && (e.Value.(*Event).owner != "" || !match(e.Value.(*Event))) {
				e = e.Next()
			}
			cursors[i] = e
			if e != nil && (best < 0 || e.Value.(*Event).ID < cursors[best].Value.(*Event).ID) {
				best = i
			}
		}
		if best < 0 {
			break
		}
		ev := cursors[best].Value.(*Event)
		ev.owner = owner
		out = append(out, ev)
		cursors[best] = cursors[best].Next()
	}
	return out
}

// Ack removes every event owned by owner and returns them
func (eb *EventBuffer) Ack(owner string) []*Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	acked := eb.dropped[owner]
	delete(eb.dropped, owner)
	full := false
	for _, l := range eb.classes {
		for e := l.Front(); e != nil; {
			next := e.Next()
			if ev := e.Value.(*Event); ev.owner == owner {
				l.Remove(e)
				acked = append(acked, ev)
			}
			e = next
		}
		if l.Len() >= eb.maxSize {
			full = true
		}
	}
	if len(acked) > 0 && !full {
		eb.overflow = false
	}
	return acked
}

// Release returns the events owned by owner to the free pool
func (eb *EventBuffer) Release(owner string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	delete(eb.dropped, owner)
	for _, l := range eb.classes {
		for e := l.Front(); e != nil; e = e.Next() {
			if ev := e.Value.(*Event); ev.owner == owner {
				ev.owner = ""
			}
		}
	}
}

// Pending returns the classes that hold at least one free event
func (eb *EventBuffer) Pending() app.ClassField {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	var pending app.ClassField
	for i, l := range eb.classes {
		for e := l.Front(); e != nil; e = e.Next() {
			if e.Value.(*Event).owner == "" {
				pending |= classBit(uint8(i + 1))
				break
			}
		}
	}
	return pending
}

// Counts returns the number of buffered events per class, index 0 = class 1
func (eb *EventBuffer) Counts() [3]int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return [3]int{eb.classes[0].Len(), eb.classes[1].Len(), eb.classes[2].Len()}
}

// Overflow reports whether events were lost since the last drain
func (eb *EventBuffer) Overflow() bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.overflow
}

// HasEvents returns true if any events are buffered
func (eb *EventBuffer) HasEvents() bool {
	c := eb.Counts()
	return c[0]+c[1]+c[2] > 0
}

// Clear drops every event and the overflow indication
func (eb *EventBuffer) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, l := range eb.classes {
		l.Init()
	}
	eb.dropped = make(map[string][]*Event)
	eb.overflow = false
}

func classBit(eventClass uint8) app.ClassField {
	switch eventClass {
	case 1:
		return app.Class1
	case 2:
		return app.Class2
	case 3:
		return app.Class3
	}
	return 0
}
