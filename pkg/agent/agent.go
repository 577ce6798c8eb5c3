package agent

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"avaneesh/dnp3-outstation/pkg/internal/logger"
	"avaneesh/dnp3-outstation/pkg/outstation"
	"avaneesh/dnp3-outstation/pkg/types"
)

// DummyReply is the answer of RPCDummy
const DummyReply = "This is a dummy rpc call"

// ErrNotStarted is returned by operations that need a started agent
var ErrNotStarted = errors.New("agent not started")

// PointUpdate is one entry of a batch update
type PointUpdate struct {
	Class types.PointClass `json:"class" mapstructure:"class"`
	Index uint16           `json:"index" mapstructure:"index"`
	Value any              `json:"value" mapstructure:"value"`
}

// Agent is the remote procedure surface of one outstation. Reconfiguration
// discards the running outstation, its sessions, points and events, and
// builds a new one from the updated configuration.
type Agent struct {
	handler outstation.CommandHandler
	log     logger.Logger
	opts    []outstation.Option

	mu      sync.RWMutex
	cfg     Config
	station *outstation.Outstation
	started bool

	observersMu sync.Mutex
	observers   []func(outstation.Snapshot)
}

// New validates cfg and builds the outstation without starting it
func New(cfg Config, handler outstation.CommandHandler, log logger.Logger, opts ...outstation.Option) (*Agent, error) {
	a := &Agent{
		handler: handler,
		log:     log,
		opts:    opts,
	}
	station, err := a.build(cfg)
	if err != nil {
		return nil, err
	}
	a.cfg = cloneConfig(cfg)
	a.station = station
	return a, nil
}

func (a *Agent) build(cfg Config) (*outstation.Outstation, error) {
	station, err := outstation.New(cfg.OutstationConfig(), a.handler, a.log, a.opts...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid outstation config")
	}
	return station, nil
}

// Start starts the outstation
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.station.Start(); err != nil {
		return errors.Wrap(err, "start outstation")
	}
	a.started = true
	klog.InfoS("Outstation started", "address", a.station.Addr(), "outstationID", a.cfg.OutstationID, "masterID", a.cfg.MasterID)
	return nil
}

// Stop shuts the outstation down
func (a *Agent) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.started = false
	return a.station.Shutdown()
}

// OnUpdate registers fn to receive the snapshot after every applied update
func (a *Agent) OnUpdate(fn func(outstation.Snapshot)) {
	a.observersMu.Lock()
	defer a.observersMu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *Agent) notify(snap outstation.Snapshot) {
	a.observersMu.Lock()
	observers := append([]func(outstation.Snapshot){}, a.observers...)
	a.observersMu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}

// RPCDummy answers with a fixed string, for testing the RPC path
func (a *Agent) RPCDummy() string {
	return DummyReply
}

// ResetOutstation shuts the outstation down and starts a new one with the
// current configuration. Point values and events are lost.
func (a *Agent) ResetOutstation() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resetLocked(a.cfg)
}

// resetLocked fully tears the old outstation down before the new one binds
func (a *Agent) resetLocked(cfg Config) error {
	next, err := a.build(cfg)
	if err != nil {
		return err
	}

	if err := a.station.Shutdown(); err != nil {
		klog.ErrorS(err, "Failed to shut outstation down cleanly")
	}
	a.cfg = cloneConfig(cfg)
	a.station = next

	if err := next.Start(); err != nil {
		a.started = false
		return errors.Wrap(err, "restart outstation")
	}
	a.started = true
	klog.InfoS("Outstation has restarted", "address", next.Addr(), "outstationID", cfg.OutstationID, "masterID", cfg.MasterID)
	return nil
}

// UpdateOutstation merges params into the configuration and resets the
// outstation. An invalid result leaves the running outstation untouched.
func (a *Agent) UpdateOutstation(params UpdateParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := params.Merge(cloneConfig(a.cfg))
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid outstation config")
	}
	return a.resetLocked(cfg)
}

// SetConfig replaces the whole configuration and resets the outstation
func (a *Agent) SetConfig(cfg Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid outstation config")
	}
	return a.resetLocked(cfg)
}

// DisplayOutstationDB returns every point value
func (a *Agent) DisplayOutstationDB() outstation.Snapshot {
	return a.current().DBSnapshot()
}

// GetOutstationConfig returns the agent configuration
func (a *Agent) GetOutstationConfig() Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneConfig(a.cfg)
}

// IsOutstationConnected reports whether a master session is active
func (a *Agent) IsOutstationConnected() bool {
	return a.current().IsConnected()
}

// Sessions lists the sessions of the running outstation
func (a *Agent) Sessions() []outstation.SessionInfo {
	return a.current().Sessions()
}

// Started reports whether the outstation is accepting masters
func (a *Agent) Started() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// ApplyUpdateAnalogInput sets Analog[index] and returns the database
func (a *Agent) ApplyUpdateAnalogInput(value float64, index uint16) (outstation.Snapshot, error) {
	return a.ApplyUpdate(types.PointClassAnalog, index, value)
}

// ApplyUpdateAnalogOutput sets AnalogOutputStatus[index] and returns the database
func (a *Agent) ApplyUpdateAnalogOutput(value float64, index uint16) (outstation.Snapshot, error) {
	return a.ApplyUpdate(types.PointClassAnalogOutputStatus, index, value)
}

// ApplyUpdateBinaryInput sets Binary[index] and returns the database
func (a *Agent) ApplyUpdateBinaryInput(value bool, index uint16) (outstation.Snapshot, error) {
	return a.ApplyUpdate(types.PointClassBinary, index, value)
}

// ApplyUpdateBinaryOutput sets BinaryOutputStatus[index] and returns the database
func (a *Agent) ApplyUpdateBinaryOutput(value bool, index uint16) (outstation.Snapshot, error) {
	return a.ApplyUpdate(types.PointClassBinaryOutputStatus, index, value)
}

// ApplyUpdate sets one point of any class and returns the database
func (a *Agent) ApplyUpdate(class types.PointClass, index uint16, value any) (outstation.Snapshot, error) {
	snap, err := a.current().ApplyUpdate(class, index, value)
	if err != nil {
		return nil, errors.Wrapf(err, "update %s[%d]", class, index)
	}
	klog.V(4).InfoS("Updated outstation point", "class", class, "index", index, "value", value)
	a.notify(snap)
	return snap, nil
}

// ApplyUpdates applies a batch atomically and returns the database
func (a *Agent) ApplyUpdates(updates []PointUpdate) (outstation.Snapshot, error) {
	b := outstation.NewUpdateBuilder()
	for _, u := range updates {
		b.Update(u.Class, u.Index, u.Value)
	}

	station := a.current()
	if err := station.Apply(b.Build()); err != nil {
		return nil, errors.Wrap(err, "apply updates")
	}
	snap := station.DBSnapshot()
	klog.V(4).InfoS("Applied point batch", "count", len(updates))
	a.notify(snap)
	return snap, nil
}

func (a *Agent) current() *outstation.Outstation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.station
}

func cloneConfig(c Config) Config {
	if c.Outstation != nil {
		oc := *c.Outstation
		points := make(map[types.PointClass]outstation.PointConfig, len(oc.Points))
		for k, v := range oc.Points {
			points[k] = v
		}
		oc.Points = points
		c.Outstation = &oc
	}
	return c
}
