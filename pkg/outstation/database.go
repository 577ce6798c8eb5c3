package outstation

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"avaneesh/dnp3-outstation/pkg/types"
)

// Point is the stored state of one data point
type Point struct {
	Value any            `json:"value"`
	Flags types.Flags    `json:"flags"`
	Time  types.DNP3Time `json:"time"`
	// Event is set while a change of this point has not been confirmed by
	// a master
	Event bool `json:"event"`

	lastEvent uint64
}

// Snapshot maps class name to string index to value,
// e.g. {"Analog": {"0": 12.5}}
type Snapshot map[string]map[string]any

// UpdateOption adjusts a single Update
type UpdateOption func(*updateOptions)

type updateOptions struct {
	flags    types.Flags
	hasFlags bool
	time     types.DNP3Time
	hasTime  bool
	mode     EventMode
}

// WithFlags stores the given quality flags instead of ONLINE
func WithFlags(flags types.Flags) UpdateOption {
	return func(o *updateOptions) {
		o.flags = flags
		o.hasFlags = true
	}
}

// WithTime stamps the point with t instead of the outstation clock
func WithTime(t types.DNP3Time) UpdateOption {
	return func(o *updateOptions) {
		o.time = t
		o.hasTime = true
	}
}

// WithEventMode selects how the update generates events
func WithEventMode(mode EventMode) UpdateOption {
	return func(o *updateOptions) {
		o.mode = mode
	}
}

// Database stores the points of every class and generates events.
// All mutations go through Update, under one lock shared with readers.
type Database struct {
	tables [][]Point
	config map[types.PointClass]PointConfig

	events *EventBuffer
	clock  func() types.DNP3Time
	notify func()

	mu sync.RWMutex
}

// NewDatabase creates a database sized by config. Points start offline with
// the RESTART flag and the zero value of their class.
func NewDatabase(config map[types.PointClass]PointConfig, events *EventBuffer) *Database {
	classes := types.AllPointClasses()
	db := &Database{
		tables: make([][]Point, len(classes)),
		config: make(map[types.PointClass]PointConfig, len(config)),
		events: events,
		clock:  types.Now,
	}

	for _, c := range classes {
		pc := config[c]
		db.config[c] = pc
		points := make([]Point, pc.Count)
		for i := range points {
			points[i] = Point{Value: types.ZeroValue(c), Flags: types.FlagRestart}
		}
		db.tables[c] = points
	}
	return db
}

// SetClock replaces the time source used to stamp updates
func (db *Database) SetClock(clock func() types.DNP3Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.clock = clock
}

// OnChange registers fn to be called after every update that produced an
// event. It runs outside the database lock.
func (db *Database) OnChange(fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.notify = fn
}

// Events returns the event buffer fed by this database
func (db *Database) Events() *EventBuffer {
	return db.events
}

// Count returns the number of points of a class
func (db *Database) Count(class types.PointClass) int {
	if !class.Valid() {
		return 0
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.tables[class])
}

// Get returns one point
func (db *Database) Get(class types.PointClass, index uint16) (Point, error) {
	if !class.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidPointClass, uint8(class))
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if int(index) >= len(db.tables[class]) {
		return Point{}, fmt.Errorf("%w: %s[%d], size %d", ErrIndexOutOfRange, class, index, len(db.tables[class]))
	}
	return db.tables[class][index], nil
}

// Update replaces a point, sets its event flag and queues an event according
// to the event mode (force by default). It returns the previous state.
func (db *Database) Update(class types.PointClass, index uint16, value any, opts ...UpdateOption) (Point, error) {
	o := updateOptions{mode: EventModeForce}
	for _, opt := range opts {
		opt(&o)
	}
	if !class.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidPointClass, uint8(class))
	}
	v, err := types.CoerceValue(class, value)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	db.mu.Lock()
	prev, emitted, err := db.updateLocked(class, index, v, o)
	notify := db.notify
	db.mu.Unlock()

	if err == nil && emitted && notify != nil {
		notify()
	}
	return prev, err
}

// Apply performs a batch of updates under one lock acquisition, so readers
// observe either none or all of them. Nothing is applied if any update is
// invalid.
func (db *Database) Apply(updates *Updates) error {
	if updates == nil || len(updates.items) == 0 {
		return nil
	}

	values := make([]any, len(updates.items))
	for i, u := range updates.items {
		if !u.class.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidPointClass, uint8(u.class))
		}
		v, err := types.CoerceValue(u.class, u.value)
		if err != nil {
			return fmt.Errorf("%w: %s[%d]: %v", ErrInvalidValue, u.class, u.index, err)
		}
		values[i] = v
	}

	db.mu.Lock()
	for _, u := range updates.items {
		if n := len(db.tables[u.class]); int(u.index) >= n {
			db.mu.Unlock()
			return fmt.Errorf("%w: %s[%d], size %d", ErrIndexOutOfRange, u.class, u.index, n)
		}
	}
	var emitted bool
	for i, u := range updates.items {
		_, e, _ := db.updateLocked(u.class, u.index, values[i], u.opts)
		emitted = emitted || e
	}
	notify := db.notify
	db.mu.Unlock()

	if emitted && notify != nil {
		notify()
	}
	return nil
}

func (db *Database) updateLocked(class types.PointClass, index uint16, value any, o updateOptions) (Point, bool, error) {
	table := db.tables[class]
	if int(index) >= len(table) {
		return Point{}, false, fmt.Errorf("%w: %s[%d], size %d", ErrIndexOutOfRange, class, index, len(table))
	}

	point := &table[index]
	prev := *point

	flags := types.FlagOnline
	if o.hasFlags {
		flags = o.flags
	}
	ts := o.time
	if !o.hasTime {
		ts = db.clock()
	}

	point.Value = value
	point.Flags = flags
	point.Time = ts

	cfg := db.config[class]
	generate := false
	switch o.mode {
	case EventModeForce:
		generate = true
	case EventModeDetect:
		generate = prev.Flags != flags || changed(prev.Value, value, cfg.Deadband)
	case EventModeSuppress:
	}

	if !generate || cfg.EventClass == 0 || db.events == nil {
		return prev, false, nil
	}

	id := db.events.Add(&Event{
		Class:      class,
		Index:      index,
		EventClass: cfg.EventClass,
		Previous:   prev.Value,
		Value:      value,
		Flags:      flags,
		Time:       ts,
	})
	point.Event = true
	point.lastEvent = id
	return prev, true, nil
}

// changed applies the deadband to numeric values and equality to the rest
func changed(old, cur any, deadband float64) bool {
	switch c := cur.(type) {
	case float64:
		o, _ := old.(float64)
		return math.Abs(c-o) > deadband
	case uint32:
		o, _ := old.(uint32)
		var diff uint32
		if c > o {
			diff = c - o
		} else {
			diff = o - c
		}
		return float64(diff) > deadband
	}
	return old != cur
}

// clearEventFlags resets the event flag of points whose most recent event
// has been confirmed
func (db *Database) clearEventFlags(acked []*Event) {
	if len(acked) == 0 {
		return
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, ev := range acked {
		table := db.tables[ev.Class]
		if int(ev.Index) < len(table) && table[ev.Index].lastEvent == ev.ID {
			table[ev.Index].Event = false
		}
	}
}

// View calls fn with read access to every class table. The tables must not
// be retained or modified.
func (db *Database) View(fn func(tables [][]Point)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(db.tables)
}

// Snapshot returns the values of every configured class keyed by class name
// then decimal index
func (db *Database) Snapshot() Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	snap := make(Snapshot)
	for _, c := range types.AllPointClasses() {
		table := db.tables[c]
		if len(table) == 0 {
			continue
		}
		values := make(map[string]any, len(table))
		for i, p := range table {
			values[strconv.Itoa(i)] = p.Value
		}
		snap[c.String()] = values
	}
	return snap
}
